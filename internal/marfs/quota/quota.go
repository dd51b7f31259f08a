// Package quota defines the pluggable quota-check interface consulted at
// mknod time (§12, §9 open question: "semantics of total-space vs.
// total-names are defined by the external quota module and are not
// specified here"). The engine only needs a single CheckQuotas call; a
// real backend (MDFS df-style accounting, a database, a REST service)
// implements the Checker interface.
package quota

import (
	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Checker is consulted once, at mknod, before a new object-backed file is
// allowed to be created.
type Checker interface {
	// CheckQuotas returns an error if ns is over its space or name quota.
	// sizeHint is the caller's advisory expected size (0 if unknown).
	CheckQuotas(ns *model.Namespace, sizeHint int64) error
}

// AlwaysAllow is a Checker that never denies — the default when no real
// quota backend is configured, matching the original's advisory-only
// quota module contract.
type AlwaysAllow struct{}

func (AlwaysAllow) CheckQuotas(*model.Namespace, int64) error { return nil }

// StaticLimiter enforces a simple total-bytes-written and total-file-count
// ceiling per namespace, suitable for tests and small deployments; a
// production quota module would back this with the MDFS's own usage
// accounting instead of in-memory counters.
type StaticLimiter struct {
	MaxBytes int64
	MaxFiles int64

	usedBytes map[string]int64
	usedFiles map[string]int64
}

// NewStaticLimiter constructs a StaticLimiter with the given ceilings.
// Zero means "no limit" for that dimension.
func NewStaticLimiter(maxBytes, maxFiles int64) *StaticLimiter {
	return &StaticLimiter{
		MaxBytes:  maxBytes,
		MaxFiles:  maxFiles,
		usedBytes: make(map[string]int64),
		usedFiles: make(map[string]int64),
	}
}

// CheckQuotas implements Checker.
func (s *StaticLimiter) CheckQuotas(ns *model.Namespace, sizeHint int64) error {
	if s.MaxFiles > 0 && s.usedFiles[ns.Name]+1 > s.MaxFiles {
		return marfserrors.NewQuotaError(ns.Name)
	}
	if s.MaxBytes > 0 && s.usedBytes[ns.Name]+sizeHint > s.MaxBytes {
		return marfserrors.NewQuotaError(ns.Name)
	}
	return nil
}

// Record charges a successful mknod against the namespace's tallies.
// Neither the engine nor the FUSE adapter calls it; a caller that wants
// the counters to move records each file itself.
func (s *StaticLimiter) Record(ns *model.Namespace, sizeHint int64) {
	s.usedFiles[ns.Name]++
	s.usedBytes[ns.Name] += sizeHint
}

// Release credits back a namespace's tallies for one removed file.
// Neither unlink nor the Trash Manager calls it.
func (s *StaticLimiter) Release(ns *model.Namespace, size int64) {
	s.usedFiles[ns.Name]--
	s.usedBytes[ns.Name] -= size
}
