// Package hostselect renders a concrete object-store endpoint from a
// repository's templated host string, seeding a per-handle PRNG the way
// the original driver seeds info->seed from the monotonic clock on first
// need (§4.5.1, §9).
package hostselect

import (
	"fmt"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
)

// Seed derives a fresh per-handle RNG seed. Callers needing determinism
// (tests, N:1 coordination where every writer must agree on a host) should
// bypass this and supply their own seed to Render.
func Seed(nanos int64) uint32 {
	return uint32(nanos)
}

// Render builds the concrete host string for a repository, per §4.5.1 /
// §6: sprintf(template, offset + rand_r(seed) mod count). host_count == 1
// disables randomization and returns the template unmodified (the original
// driver's documented DNS-round-robin escape hatch).
//
// seed is passed by pointer and updated in place, mirroring rand_r's
// contract, so repeated Render calls on the same handle advance the same
// stream (the engine re-renders on every stream it opens for a handle:
// each chunk of a write and each reopen of a read).
func Render(repo *model.Repository, seed *uint32) string {
	if repo.HostCount <= 1 {
		return repo.HostTemplate
	}
	*seed = nextRand(*seed)
	octet := repo.HostOffset + int(*seed%uint32(repo.HostCount))
	return fmt.Sprintf(repo.HostTemplate, octet)
}

// nextRand is glibc's rand_r step: a linear congruential generator,
// sufficient for spreading opens across a host range without pulling in a
// full PRNG package for one modulo draw (§9 notes reseeding-on-reopen as
// implementation-defined).
func nextRand(seed uint32) uint32 {
	return seed*1103515245 + 12345
}
