package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/mar-file-system/gomarfs/internal/marfs/objectstore"
	marfsxattr "github.com/mar-file-system/gomarfs/internal/marfs/xattr"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// truncateLogical truncates the MDFS file to size, the final step of a
// clean release reconciling the file's apparent size with its true
// user-data byte count (§4.5.5).
func (h *Handle) truncateLogical(size int64) error {
	if err := os.Truncate(h.info.MDFSPath, size); err != nil {
		return marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "final truncate failed").
			WithComponent("marfs/engine").WithOperation("release").WithContext("path", h.info.MDFSPath).WithCause(err)
	}
	return nil
}

// Ftruncate implements marfs_ftruncate (§4.5.4). Only truncation to zero
// mid-write is supported for object-backed files: it aborts any pending
// PUT and routes the old backing object through TRASH_TRUNCATE, leaving
// the handle free to start a fresh Uni object at chunk 0. A nonzero
// truncate of an object-backed file is rejected — the original driver
// has no way to rewrite an already-PUT byte range.
func (h *Handle) Ftruncate(length int64) error {
	if h.info.IsDirect() && !hasAnyXattrs(h.info) {
		if err := os.Truncate(h.info.MDFSPath, length); err != nil {
			return marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "direct truncate failed").
				WithComponent("marfs/engine").WithOperation("ftruncate").WithContext("path", h.info.MDFSPath).WithCause(err)
		}
		return nil
	}

	if length != 0 {
		return marfserrors.NewError(marfserrors.ErrCodeTruncateUnsupported, "non-zero truncate of an object-backed file is not supported").
			WithComponent("marfs/engine").WithOperation("ftruncate").WithContext("path", h.info.MDFSPath)
	}

	if h.streamOpen {
		if err := h.stream.Abort(); err != nil {
			return err
		}
		h.streamOpen = false
	}

	newObj, err := h.engine.Trash.TruncateTrash(h.info.MDFSPath, relPath(h.info), h.info.Xattrs.Pre)
	if err != nil {
		return err
	}

	newObj.ChunkNo = 0
	newObj.ObjType = model.Uni
	h.info.Xattrs.Pre = newObj
	h.info.Xattrs.Post = nil
	h.write = writeStatus{}
	h.read = readStatus{}

	if err := marfsxattr.RestartSet(h.info.MDFSPath); err != nil {
		return err
	}

	if h.mode.Has(model.Writing) {
		h.write.logEnd = dataPerChunkForOpen(h.info)
		if err := h.openStream(objectstore.PUT, 0, false, 0); err != nil {
			return err
		}
	}

	h.engine.Resolver.InvalidateStat(h.info.MDFSPath)
	return nil
}

// relPath recovers the namespace-relative path Trash needs to build its
// encoded trash entry name, inverting pathresolver's join of MDFSRoot and
// the mount-relative remainder.
func relPath(info *model.PathInfo) string {
	rel := strings.TrimPrefix(info.MDFSPath, info.Namespace.MDFSRoot)
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	return rel
}
