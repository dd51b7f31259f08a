package model

import "os"

// OpenFlags mirror the subset of POSIX open(2) flags the engine interprets.
type OpenFlags uint32

const (
	ORDOnly OpenFlags = 1 << iota
	OWOnly
	OAppend
	ORDWR
	OCreat
	OTrunc
)

func (f OpenFlags) Has(want OpenFlags) bool { return f&want == want }

// HandleMode is the engine's internal open-mode state, distinct from the
// caller-supplied OpenFlags: it also tracks the N:1 risky-write opt-in.
type HandleMode uint8

const (
	Reading HandleMode = 1 << iota
	Writing
	AllowRisky
)

func (m HandleMode) Has(want HandleMode) bool { return m&want == want }

// XattrSnapshot is the parsed view of a file's reserved xattrs, populated
// by the engine's loadXattrs.
type XattrSnapshot struct {
	Restart bool
	Pre     *ObjectID
	Post    *ObjectLayout
	Slave   bool // set on non-primary N:1 writers' handles; advisory only
}

// Dirty bitmask values for XattrSnapshot fields that must be flushed back.
type XattrDirty uint8

const (
	DirtyPre XattrDirty = 1 << iota
	DirtyPost
	DirtyRestart
)

// PathInfo is the per-operation bundle the Path Resolver produces: owning
// namespace and repository, the absolute MDFS path, and (once populated)
// the parsed xattr snapshot a File Handle consults and mutates.
type PathInfo struct {
	Namespace *Namespace
	Repo      *Repository
	MDFSPath  string

	Stat    os.FileInfo // lazily populated
	Xattrs  XattrSnapshot
	Dirty   XattrDirty
	RNGSeed uint32 // per-open host-selection seed
}

// IsDirect reports whether this path, as currently known, is a Direct file:
// no MarFS xattrs present and the repository's access method is DIRECT.
func (p *PathInfo) IsDirect() bool {
	return p.Xattrs.Pre == nil && p.Repo != nil && p.Repo.Method == Direct
}
