package engine

import (
	"os"

	"github.com/mar-file-system/gomarfs/internal/marfs/chunk"
	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/mar-file-system/gomarfs/internal/marfs/objectstore"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Write implements marfs_write (§4.5.3): append-only, contiguous writes
// that splice across a chunk boundary whenever the logical write would
// cross it, promoting a Uni object to Multi on the first such splice.
func (h *Handle) Write(buf []byte, offset int64) (int, error) {
	if !h.mode.Has(model.Writing) {
		return 0, marfserrors.NewUnsupportedError("write")
	}

	if h.info.IsDirect() && !hasAnyXattrs(h.info) {
		return h.mdfsFile.WriteAt(buf, offset)
	}

	logOffset := h.openOffset + h.write.total
	if offset != logOffset {
		return 0, marfserrors.NewLayoutError(marfserrors.ErrCodeNonContiguousWrite, "write",
			"write offset does not match the handle's contiguous write cursor")
	}

	dataPerChunk := chunk.DataPerChunk(h.info.Repo, h.info.Xattrs.Post)

	if !h.streamOpen {
		if h.mode.Has(model.AllowRisky) {
			return 0, marfserrors.NewLayoutError(marfserrors.ErrCodeChunkBoundary, "write",
				"n:1 writer exceeded its assigned chunk")
		}
		// The previous chunk ended exactly on its boundary while the file
		// was still Uni, so it was closed without an index entry; record it
		// now that a second chunk exists.
		if h.info.Xattrs.Pre.ObjType == model.Uni {
			if err := h.ensureMDFSFile(); err != nil {
				return 0, err
			}
			if err := h.writeChunkInfoRecord(h.info.Xattrs.Pre.ChunkNo, h.write.logEnd-dataPerChunk, dataPerChunk); err != nil {
				return 0, err
			}
		}
		promoteToMulti(h.info)
		h.write.logEnd += dataPerChunk
		if err := h.openStream(objectstore.PUT, 0, true, 0); err != nil {
			return 0, err
		}
	}

	var total int
	remaining := buf
	for logOffset+int64(len(remaining)) >= h.write.logEnd {
		fill := h.write.logEnd - logOffset
		if fill <= 0 {
			return total, marfserrors.NewError(marfserrors.ErrCodeLayoutCorrupt, "chunk fill computed non-positive").
				WithComponent("marfs/engine").WithOperation("write")
		}

		n, err := h.stream.Put(remaining[:fill])
		total += n
		h.write.total += int64(n)
		logOffset += int64(n)
		chunkUserBytes := int64(n)
		remaining = remaining[n:]
		if err != nil {
			h.streamErr = true
			return total, err
		}

		if err := h.writeRecoveryBlob(dataPerChunk); err != nil {
			return total, err
		}
		if err := h.closeStream(); err != nil {
			return total, err
		}

		// A chunk that ends here with no more data stays a single-object
		// Uni file and carries no chunk index; only once a second chunk
		// is known to exist does the file need a ChunkInfo table at all.
		// N:1 writers always record their slot: FinalizeNTo1 has no other
		// way to learn how many chunks exist or what each one covers.
		needsChunkInfo := h.mode.Has(model.AllowRisky) || h.info.Xattrs.Pre.ObjType == model.Multi || len(remaining) > 0
		if needsChunkInfo {
			if err := h.ensureMDFSFile(); err != nil {
				return total, err
			}
			chunkLogOffset := h.openOffset + h.write.total - chunkUserBytes
			if err := h.writeChunkInfoRecord(h.info.Xattrs.Pre.ChunkNo, chunkLogOffset, chunkUserBytes); err != nil {
				return total, err
			}
		}

		if len(remaining) == 0 {
			return total, nil
		}

		if h.mode.Has(model.AllowRisky) {
			return total, marfserrors.NewLayoutError(marfserrors.ErrCodeChunkBoundary, "write",
				"n:1 writer exceeded its assigned chunk")
		}

		promoteToMulti(h.info)
		h.write.logEnd += dataPerChunk
		if err := h.openStream(objectstore.PUT, 0, true, 0); err != nil {
			return total, err
		}
	}

	if len(remaining) > 0 {
		n, err := h.stream.Put(remaining)
		total += n
		h.write.total += int64(n)
		if err != nil {
			h.streamErr = true
			return total, err
		}
	}

	h.engine.Resolver.InvalidateStat(h.info.MDFSPath)
	return total, nil
}

// promoteToMulti advances the handle's PRE/POST xattrs to the next chunk
// of a Multi object, the first time a write crosses a chunk boundary.
func promoteToMulti(info *model.PathInfo) {
	info.Xattrs.Pre.ObjType = model.Multi
	info.Xattrs.Pre.ChunkNo++
	info.Xattrs.Post = &model.ObjectLayout{ObjType: model.Multi, Chunks: info.Xattrs.Pre.ChunkNo + 1,
		ChunkInfoBytes: int64(info.Xattrs.Pre.ChunkNo) * model.ChunkInfoSize}
}

// writeRecoveryBlob appends the current chunk's recovery trailer to the
// object stream. These bytes are never reflected in write.total, which
// tracks only user-visible data.
func (h *Handle) writeRecoveryBlob(dataPerChunk int64) error {
	chunkStart := h.write.logEnd - dataPerChunk
	dataLen := h.openOffset + h.write.total - chunkStart
	if dataLen > dataPerChunk {
		dataLen = dataPerChunk
	}
	info := &model.RecoveryInfo{
		Magic:      model.RecoveryMagic,
		Version:    1,
		ChunkNo:    h.info.Xattrs.Pre.ChunkNo,
		LogOffset:  uint64(chunkStart),
		DataLength: uint64(dataLen),
		INode:      h.info.Xattrs.Pre.INode,
		MTime:      nowNanos(),
		PathHash:   fnv1a(h.info.MDFSPath),
	}
	blob, err := info.MarshalBinary()
	if err != nil {
		return marfserrors.NewError(marfserrors.ErrCodeLayoutCorrupt, "encode recovery blob failed").
			WithComponent("marfs/engine").WithOperation("write").WithCause(err)
	}
	if _, err := h.stream.Put(blob); err != nil {
		h.streamErr = true
		return err
	}
	return nil
}

func (h *Handle) ensureMDFSFile() error {
	if h.mdfsFile != nil {
		return nil
	}
	f, err := os.OpenFile(h.info.MDFSPath, os.O_RDWR, 0644)
	if err != nil {
		return marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "could not open mdfs file for chunk index").
			WithComponent("marfs/engine").WithOperation("write").WithContext("path", h.info.MDFSPath).WithCause(err)
	}
	h.mdfsFile = f
	return nil
}

// writeChunkInfoRecord appends one ChunkInfo record to the MDFS file,
// the per-chunk index entry a Multi file's release reconciles into POST.
func (h *Handle) writeChunkInfoRecord(chunkNo uint32, logOffset, dataLen int64) error {
	rec := model.ChunkInfo{ChunkNo: chunkNo, LogOffset: uint64(logOffset), DataLen: uint64(dataLen)}
	enc, err := rec.MarshalBinary()
	if err != nil {
		return marfserrors.NewError(marfserrors.ErrCodeLayoutCorrupt, "encode chunk info failed").
			WithComponent("marfs/engine").WithOperation("write").WithCause(err)
	}
	if _, err := h.mdfsFile.Write(enc); err != nil {
		return marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "chunk info write failed").
			WithComponent("marfs/engine").WithOperation("write").WithCause(err)
	}
	if h.info.Xattrs.Post != nil {
		h.info.Xattrs.Post.ChunkInfoBytes += model.ChunkInfoSize
	}
	return nil
}

func fnv1a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}
