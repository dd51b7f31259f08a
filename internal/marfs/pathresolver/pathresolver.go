// Package pathresolver implements the MarFS Path Resolver (§4.1): mapping
// a mount-relative path to the namespace, repository, and MDFS path that
// own it, and enforcing namespace-level interactive permissions.
package pathresolver

import (
	"encoding/gob"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mar-file-system/gomarfs/internal/cache"
	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Resolver holds the registered namespace table for one mount and performs
// longest-prefix resolution of mount-relative paths.
type Resolver struct {
	namespaces []*model.Namespace // sorted by descending MountPrefix length
	root       *model.Namespace
	statCache  *cache.LRUCache // repurposed per SPEC_FULL §11: stat metadata, not object bytes
}

// New builds a Resolver over the given namespace table. Namespaces are
// sorted so Resolve can do a simple linear longest-prefix scan.
func New(namespaces []*model.Namespace) *Resolver {
	sorted := make([]*model.Namespace, len(namespaces))
	copy(sorted, namespaces)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].MountPrefix) > len(sorted[j].MountPrefix)
	})
	return &Resolver{
		namespaces: sorted,
		root:       model.RootNamespace(),
		statCache: cache.NewLRUCache(&cache.CacheConfig{
			MaxSize:    64 * 1024 * 1024,
			MaxEntries: 100000,
			TTL:        2 * time.Second,
		}),
	}
}

// cachedStat is the gob-encodable subset of os.FileInfo the stat cache
// stores; os.FileInfo itself isn't a stable wire type across platforms.
type cachedStat struct {
	Size    int64
	Mode    uint32
	ModTime int64
	IsDir   bool
}

// Resolve maps a mount-relative path to a PathInfo, choosing the
// longest-prefix-matching namespace and verifying the caller holds
// required against the namespace's interactive-permission bitset.
func Resolve(r *Resolver, mountRelPath string, required model.Perm) (*model.PathInfo, error) {
	mountRelPath = normalize(mountRelPath)

	ns := r.match(mountRelPath)
	if !ns.Perms.Has(required) {
		return nil, marfserrors.NewPermissionError("resolve", mountRelPath, nil).
			WithContext("required", required.String()).
			WithContext("have", ns.Perms.String())
	}

	if ns.IsRoot() {
		return &model.PathInfo{
			Namespace: ns,
			MDFSPath:  "/",
		}, nil
	}

	rel := strings.TrimPrefix(mountRelPath, ns.MountPrefix)
	rel = strings.TrimPrefix(rel, "/")
	mdfsPath := filepath.Join(ns.MDFSRoot, rel)

	return &model.PathInfo{
		Namespace: ns,
		Repo:      ns.InitRepo,
		MDFSPath:  mdfsPath,
	}, nil
}

// match performs the longest-prefix scan, falling back to the artificial
// root namespace when nothing else matches (§3: "a path resolves to
// exactly one namespace; the artificial root namespace covers the mount
// point itself").
func (r *Resolver) match(mountRelPath string) *model.Namespace {
	for _, ns := range r.namespaces {
		if ns.MountPrefix == "/" || ns.MountPrefix == "" {
			continue
		}
		if mountRelPath == ns.MountPrefix || strings.HasPrefix(mountRelPath, ns.MountPrefix+"/") {
			return ns
		}
	}
	return r.root
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	return filepath.Clean("/" + p)
}

// Stat returns the caller-visible stat info for path: the artificial
// root stat for the mount point, or the real MDFS stat otherwise, served
// through the repurposed metadata cache when warm.
func Stat(r *Resolver, info *model.PathInfo) (os.FileInfo, error) {
	if info.Namespace.IsRoot() {
		return rootStat{}, nil
	}

	if cached := r.statCache.Get(info.MDFSPath, 0, 1); cached != nil {
		if cs, ok := decodeStat(cached); ok {
			return cs, nil
		}
	}

	fi, err := os.Lstat(info.MDFSPath)
	if err != nil {
		return nil, marfserrors.NewError(marfserrors.ErrCodeFileNotFound, "stat failed").
			WithComponent("marfs/pathresolver").WithOperation("stat").
			WithContext("path", info.MDFSPath).WithCause(err)
	}

	if enc, ok := encodeStat(fi); ok {
		r.statCache.Put(info.MDFSPath, 0, enc)
	}
	return fi, nil
}

// InvalidateStat evicts a path's cached stat — called by the engine after
// any operation that changes a file's size or mode (write, ftruncate,
// release, chmod).
func (r *Resolver) InvalidateStat(mdfsPath string) {
	r.statCache.Delete(mdfsPath)
}

func encodeStat(fi os.FileInfo) ([]byte, bool) {
	cs := cachedStat{Size: fi.Size(), Mode: uint32(fi.Mode()), ModTime: fi.ModTime().UnixNano(), IsDir: fi.IsDir()}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cs); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func decodeStat(data []byte) (rootStatLike, bool) {
	var cs cachedStat
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cs); err != nil {
		return rootStatLike{}, false
	}
	return rootStatLike{cs: cs}, true
}

// rootStatLike adapts a decoded cachedStat to os.FileInfo.
type rootStatLike struct {
	cs cachedStat
}

func (s rootStatLike) Name() string       { return "" }
func (s rootStatLike) Size() int64        { return s.cs.Size }
func (s rootStatLike) Mode() os.FileMode  { return os.FileMode(s.cs.Mode) }
func (s rootStatLike) ModTime() time.Time { return time.Unix(0, s.cs.ModTime) }
func (s rootStatLike) IsDir() bool        { return s.cs.IsDir }
func (s rootStatLike) Sys() any           { return nil }

// rootStat is the artificial stat the spec assigns the mount point itself:
// mode 0551, size 512 (§3, §4.1).
type rootStat struct{}

func (rootStat) Name() string       { return "/" }
func (rootStat) Size() int64        { return model.RootSize }
func (rootStat) Mode() os.FileMode  { return os.ModeDir | model.RootMode }
func (rootStat) ModTime() time.Time { return time.Time{} }
func (rootStat) IsDir() bool        { return true }
func (rootStat) Sys() any           { return nil }
