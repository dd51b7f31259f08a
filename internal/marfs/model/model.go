// Package model defines the MarFS data model shared by every internal/marfs
// subpackage: namespaces, repositories, object identifiers, and the
// per-handle bookkeeping the I/O engine carries across an open file's
// lifetime.
package model

import "fmt"

// AccessMethod selects how a Repository's objects are reached.
type AccessMethod int

const (
	Direct AccessMethod = iota
	S3
	S3EMC
	Sproxyd
)

func (m AccessMethod) String() string {
	switch m {
	case Direct:
		return "DIRECT"
	case S3:
		return "S3"
	case S3EMC:
		return "S3_EMC"
	case Sproxyd:
		return "SPROXYD"
	default:
		return "UNKNOWN"
	}
}

// ObjType is the storage layout of a closed object-backed file.
type ObjType int

const (
	Uni ObjType = iota
	Multi
	Packed
	NTo1
	DirectType
)

func (t ObjType) String() string {
	switch t {
	case Uni:
		return "UNI"
	case Multi:
		return "MULTI"
	case Packed:
		return "PACKED"
	case NTo1:
		return "N_TO_1"
	case DirectType:
		return "DIRECT"
	default:
		return "UNKNOWN"
	}
}

// Perm is the namespace interactive-permission bitmask.
type Perm uint8

const (
	RMeta Perm = 1 << iota
	WMeta
	RData
	WData
	TData
)

// Has reports whether all bits of want are set in p.
func (p Perm) Has(want Perm) bool {
	return p&want == want
}

func (p Perm) String() string {
	s := ""
	if p.Has(RMeta) {
		s += "R_META|"
	}
	if p.Has(WMeta) {
		s += "W_META|"
	}
	if p.Has(RData) {
		s += "R_DATA|"
	}
	if p.Has(WData) {
		s += "W_DATA|"
	}
	if p.Has(TData) {
		s += "T_DATA|"
	}
	if s == "" {
		return "NONE"
	}
	return s[:len(s)-1]
}

// Repository is an object-store binding: how, and where, an object-backed
// file's bytes are reached.
type Repository struct {
	Name        string
	Method      AccessMethod
	HostTemplate string // printf-style, one %d verb for the selected octet
	HostOffset  int
	HostCount   int
	Bucket      string
	TLS         bool
	ChunkSize   int64 // bytes per backing object, including the recovery blob
}

// RecoverySize returns sizeof(RecoveryInfo)+8, the fixed trailer every
// backing object carries.
func (r *Repository) RecoverySize() int64 {
	return RecoveryInfoSize + 8
}

// Validate enforces the chunk_size > recovery invariant from the data model.
func (r *Repository) Validate() error {
	if r.ChunkSize <= r.RecoverySize() {
		return fmt.Errorf("repository %q: chunk_size %d must exceed recovery size %d", r.Name, r.ChunkSize, r.RecoverySize())
	}
	if r.HostCount < 1 {
		return fmt.Errorf("repository %q: host_count must be >= 1", r.Name)
	}
	return nil
}

// DataPerChunk returns the usable (non-recovery) payload bytes of one
// backing object for the Uni/Multi layouts. Packed layouts compute their
// own data-per-chunk from POST.Chunks; see chunk.DataPerChunk.
func (r *Repository) DataPerChunk() int64 {
	return r.ChunkSize - r.RecoverySize()
}

// Namespace is a logical tree root mounted under the filesystem mount point.
type Namespace struct {
	Name         string
	MountPrefix  string // mount-relative prefix this namespace owns
	MDFSRoot     string // absolute MDFS path backing this namespace
	InitRepo     *Repository
	Perms        Perm
}

// IsRoot reports whether ns is the artificial mount-point namespace.
func (ns *Namespace) IsRoot() bool {
	return ns.MountPrefix == "" || ns.MountPrefix == "/"
}

// RootNamespace constructs the artificial namespace covering the mount
// point itself. It grants R_META only; the Path Resolver does not look at
// the caller's uid, so uid 0 gets no wider access than anyone else.
func RootNamespace() *Namespace {
	return &Namespace{
		Name:        "",
		MountPrefix: "/",
		MDFSRoot:    "/",
		Perms:       RMeta,
	}
}

// RootMode and RootSize are the artificial stat values the Path Resolver
// reports for the mount point itself.
const (
	RootMode = 0551
	RootSize = 512
)
