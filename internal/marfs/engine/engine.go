// Package engine implements the File Handle & I/O Engine (§4.5): the
// state machine that drives open, open_at_offset, read, write, release,
// and ftruncate against one MDFS file and its backing objects, moving a
// file through the Direct / Uni / Multi / Packed / N:1 layouts described
// in §3 as writes accumulate.
package engine

import (
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/mar-file-system/gomarfs/internal/marfs/chunk"
	"github.com/mar-file-system/gomarfs/internal/marfs/hostselect"
	marfsmetrics "github.com/mar-file-system/gomarfs/internal/marfs/metrics"
	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/mar-file-system/gomarfs/internal/marfs/objectstore"
	"github.com/mar-file-system/gomarfs/internal/marfs/pathresolver"
	"github.com/mar-file-system/gomarfs/internal/marfs/quota"
	"github.com/mar-file-system/gomarfs/internal/marfs/trash"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Engine wires together the Path Resolver, Object Stream, Trash Manager,
// and Quota Checker into the handle lifecycle operations. One Engine
// serves a whole mount; one Handle serves one open file descriptor.
type Engine struct {
	Resolver *pathresolver.Resolver
	Trash    *trash.Manager
	Quota    quota.Checker
	Client   *http.Client
	Metrics  *marfsmetrics.Recorder
}

// New constructs an Engine. quotaChecker may be nil, in which case
// quota.AlwaysAllow is used.
func New(resolver *pathresolver.Resolver, trashMgr *trash.Manager, quotaChecker quota.Checker, client *http.Client) *Engine {
	if quotaChecker == nil {
		quotaChecker = quota.AlwaysAllow{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{Resolver: resolver, Trash: trashMgr, Quota: quotaChecker, Client: client}
}

// readStatus and writeStatus are the per-handle cursors the original
// driver keeps in fh->read_status / fh->write_status.
type readStatus struct {
	logOffset int64 // logical offset of the next byte Read expects to serve
}

type writeStatus struct {
	logEnd int64 // logical offset, exclusive, at which the current chunk/object ends
	total  int64 // cumulative user-data bytes written across the handle's lifetime, independent of any one chunk's stream session
}

// Handle is one open file's engine-side state, the Go analogue of the
// original driver's marfs_fhandle_t.
type Handle struct {
	engine *Engine
	info   *model.PathInfo
	mode   model.HandleMode

	mdfsFile *os.File

	stream       *objectstore.Stream
	streamOpen   bool
	streamErr    bool // OSF_ERRORS: a prior stream op failed, skip finalization on release
	streamMethod objectstore.Method
	streamStart  time.Time
	openOffset   int64
	allowRisky   bool

	read  readStatus
	write writeStatus
}

// Open implements marfs_open (§4.5.1): resolve xattrs, decide Direct vs.
// object-backed, and (for writes) begin the first chunk's PUT stream.
// O_APPEND, O_CREAT, O_TRUNC, and O_RDWR are rejected, matching the
// original driver's ENOSYS branches — callers needing those compose them
// from mknod/ftruncate/release the way the FUSE adapter's create() does.
func Open(e *Engine, mountRelPath string, flags model.OpenFlags) (*Handle, error) {
	return openAt(e, mountRelPath, flags, 0, false)
}

// OpenAtOffset implements the N:1 parallel-writer entry point (§4.5.1,
// §9): open_offset must be chunk-aligned, or EFAULT (ErrCodeChunkBoundary
// here; the FUSE adapter maps it to EFAULT at the syscall boundary).
func OpenAtOffset(e *Engine, mountRelPath string, flags model.OpenFlags, openOffset int64, allowRisky bool) (*Handle, error) {
	return openAt(e, mountRelPath, flags, openOffset, allowRisky)
}

func openAt(e *Engine, mountRelPath string, flags model.OpenFlags, openOffset int64, allowRisky bool) (*Handle, error) {
	if flags.Has(model.OAppend) || flags.Has(model.OCreat) || flags.Has(model.OTrunc) || flags.Has(model.ORDWR) {
		return nil, marfserrors.NewUnsupportedError("open")
	}

	var required model.Perm
	var mode model.HandleMode
	switch {
	case flags.Has(model.ORDOnly):
		required = model.RMeta | model.RData
		mode = model.Reading
	case flags.Has(model.OWOnly):
		required = model.RMeta | model.WMeta | model.RData | model.WData
		mode = model.Writing
	default:
		return nil, marfserrors.NewUnsupportedError("open")
	}

	info, err := pathresolver.Resolve(e.Resolver, mountRelPath, required)
	if err != nil {
		return nil, err
	}

	if err := loadXattrs(info); err != nil {
		return nil, err
	}

	h := &Handle{engine: e, info: info, mode: mode, openOffset: openOffset, allowRisky: allowRisky}

	if info.IsDirect() && !hasAnyXattrs(info) {
		f, err := os.OpenFile(info.MDFSPath, directFlag(mode), 0644)
		if err != nil {
			return nil, marfserrors.NewError(marfserrors.ErrCodeFileNotFound, "direct open failed").
				WithComponent("marfs/engine").WithOperation("open").WithContext("path", info.MDFSPath).WithCause(err)
		}
		h.mdfsFile = f
		return h, nil
	}

	info.RNGSeed = hostselect.Seed(nowNanos())

	if allowRisky {
		if openOffset%dataPerChunkForOpen(info) != 0 {
			return nil, marfserrors.NewLayoutError(marfserrors.ErrCodeChunkBoundary, "open_at_offset",
				"open_offset must be a multiple of data_per_chunk")
		}
		f, err := os.OpenFile(info.MDFSPath, os.O_RDWR, 0644)
		if err != nil {
			return nil, marfserrors.NewError(marfserrors.ErrCodeFileNotFound, "n:1 open failed").
				WithComponent("marfs/engine").WithOperation("open_at_offset").WithContext("path", info.MDFSPath).WithCause(err)
		}
		h.mdfsFile = f
		h.mode |= model.AllowRisky

		dataPerChunk := dataPerChunkForOpen(info)
		chunkNo := uint32(openOffset / dataPerChunk)
		if _, err := f.Seek(int64(chunkNo)*model.ChunkInfoSize, 0); err != nil {
			return nil, marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "seek to chunk info slot failed").
				WithComponent("marfs/engine").WithOperation("open_at_offset").WithCause(err)
		}
		info.Xattrs.Pre = &model.ObjectID{
			Repo: info.Repo, Bucket: info.Repo.Bucket,
			INode: inodeOf(info), CTime: nowNanos(),
			ChunkSize: info.Repo.ChunkSize, ChunkNo: chunkNo, ObjType: model.NTo1,
		}
		h.write.logEnd = chunk.LogicalEnd(chunkNo, dataPerChunk)

		if err := h.openStream(objectstore.PUT, 0, false, 0); err != nil {
			return nil, err
		}
		return h, nil
	}

	if mode.Has(model.Reading) {
		if info.Xattrs.Post != nil && (info.Xattrs.Post.ObjType == model.Multi || info.Xattrs.Post.ObjType == model.Packed) {
			f, err := os.Open(info.MDFSPath)
			if err != nil {
				return nil, marfserrors.NewError(marfserrors.ErrCodeFileNotFound, "read open failed").
					WithComponent("marfs/engine").WithOperation("open").WithContext("path", info.MDFSPath).WithCause(err)
			}
			h.mdfsFile = f
		}
		return h, nil
	}

	if info.Xattrs.Restart {
		// A prior writer crashed mid-object; this open supersedes its
		// incomplete bytes with a fresh one, so the marker is stale.
		h.engine.Metrics.RecordRestartRecovered()
	}

	// Writing a fresh object-backed file: open the first chunk's PUT
	// stream now; the MDFS fd is opened lazily at the first chunk
	// boundary (write.go), matching marfs_write's lazy fd-open.
	dataPerChunk := info.Repo.DataPerChunk()
	info.Xattrs.Pre = &model.ObjectID{
		Repo: info.Repo, Bucket: info.Repo.Bucket,
		INode: inodeOf(info), CTime: nowNanos(),
		ChunkSize: info.Repo.ChunkSize, ChunkNo: 0, ObjType: model.Uni,
	}
	h.write.logEnd = chunk.LogicalEnd(0, dataPerChunk)
	if err := h.openStream(objectstore.PUT, 0, false, 0); err != nil {
		return nil, err
	}
	return h, nil
}

// resolveMeta resolves mountRelPath requiring only metadata read/write
// permission, for operations (utime, chmod, stat) that never touch
// object bytes directly.
func resolveMeta(e *Engine, mountRelPath string) (*model.PathInfo, error) {
	return pathresolver.Resolve(e.Resolver, mountRelPath, model.RMeta|model.WMeta)
}

func directFlag(mode model.HandleMode) int {
	if mode.Has(model.Writing) {
		return os.O_WRONLY
	}
	return os.O_RDONLY
}

// dataPerChunkForOpen resolves data_per_chunk using whatever layout
// xattrs are currently known (POST for an existing Multi/Packed file,
// otherwise the repository's flat Uni/Multi rate).
func dataPerChunkForOpen(info *model.PathInfo) int64 {
	return chunk.DataPerChunk(info.Repo, info.Xattrs.Post)
}

func inodeOf(info *model.PathInfo) uint64 {
	if info.Stat != nil {
		if st, ok := info.Stat.Sys().(*syscall.Stat_t); ok {
			return st.Ino
		}
	}
	if fi, err := os.Lstat(info.MDFSPath); err == nil {
		if st, ok := fi.Sys().(*syscall.Stat_t); ok {
			return st.Ino
		}
	}
	return 0
}

// nowNanos is the handle-lifecycle clock source. It is a package variable
// (rather than an inline time.Now call) so it can be replaced with a fixed
// clock.
var nowNanos = func() int64 { return time.Now().UnixNano() }

// openStream renders the current chunk's URL from PRE and a freshly
// selected host, then opens the Object Stream. rangeLo is the byte-range
// GET should start from; it is ignored for PUT opens (pass 0).
func (h *Handle) openStream(method objectstore.Method, sizeHint int64, preserveWritten bool, rangeLo int64) error {
	host := hostselect.Render(h.info.Repo, &h.info.RNGSeed)
	key := h.info.Xattrs.Pre.Key()
	url := objectstore.URLFor(h.info.Repo, host, key)

	h.stream = objectstore.New(h.engine.Client, url)
	if method == objectstore.GET {
		h.stream.SetRange(rangeLo)
	}
	h.streamMethod = method
	h.streamStart = time.Now()
	if err := h.stream.Open(method, sizeHint, preserveWritten); err != nil {
		h.streamErr = true
		return err
	}
	h.streamOpen = true
	return nil
}
