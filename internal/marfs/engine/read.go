package engine

import (
	"io"
	"time"

	"github.com/mar-file-system/gomarfs/internal/marfs/chunk"
	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/mar-file-system/gomarfs/internal/marfs/objectstore"
	"github.com/mar-file-system/gomarfs/internal/marfs/pathresolver"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Read implements marfs_read (§4.5.2): serve buf from either the MDFS
// file directly (Direct layout) or a sequence of chunk GETs, reopening
// the stream whenever the caller's offset breaks contiguity with the
// engine's read cursor or crosses a chunk boundary.
func (h *Handle) Read(buf []byte, offset int64) (int, error) {
	if !h.mode.Has(model.Reading) {
		return 0, marfserrors.NewUnsupportedError("read")
	}

	if h.info.IsDirect() && !hasAnyXattrs(h.info) {
		n, err := h.mdfsFile.ReadAt(buf, offset)
		if err == io.EOF {
			err = nil
		}
		return n, err
	}

	maxExtent, err := h.statSize()
	if err != nil {
		return 0, err
	}
	if offset >= maxExtent {
		return 0, nil
	}
	want := int64(len(buf))
	if offset+want > maxExtent {
		want = maxExtent - offset
	}

	phyOffset := offset
	if h.info.Xattrs.Post != nil {
		phyOffset = h.info.Xattrs.Post.ObjOffset + offset
	}
	dataPerChunk := chunk.DataPerChunk(h.info.Repo, h.info.Xattrs.Post)

	if offset != h.read.logOffset && h.streamOpen {
		if err := h.closeStream(); err != nil {
			return 0, err
		}
	}

	spans := chunk.Plan(phyOffset, want, dataPerChunk)
	var total int
	for i, span := range spans {
		if !h.streamOpen {
			h.info.Xattrs.Pre.ChunkNo = span.ChunkNo
			h.stream = nil
			if err := h.openStream(objectstore.GET, 0, false, span.ChunkOffset); err != nil {
				return total, err
			}
		}

		remain := span.Length
		for remain > 0 {
			n, err := h.stream.Get(buf[total : total+int(remain)])
			if n == 0 && err == nil {
				return total, marfserrors.NewTransportError("read", h.info.Xattrs.Pre.Key(), io.ErrUnexpectedEOF)
			}
			total += n
			remain -= int64(n)
			if err != nil {
				if err == io.EOF && remain == 0 {
					break
				}
				return total, err
			}
		}

		if i != len(spans)-1 {
			if err := h.closeStream(); err != nil {
				return total, err
			}
		}
	}

	h.read.logOffset = offset + int64(total)
	return total, nil
}

func (h *Handle) statSize() (int64, error) {
	fi, err := pathresolver.Stat(h.engine.Resolver, h.info)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (h *Handle) closeStream() error {
	if h.stream == nil {
		return nil
	}
	methodName := "GET"
	if h.streamMethod == objectstore.PUT {
		methodName = "PUT"
	}
	if err := h.stream.Sync(); err != nil {
		h.streamErr = true
		h.engine.Metrics.RecordChunkOp(methodName, time.Since(h.streamStart), false)
		return err
	}
	err := h.stream.Close()
	h.streamOpen = false
	if err != nil {
		h.streamErr = true
	}
	h.engine.Metrics.RecordChunkOp(methodName, time.Since(h.streamStart), err == nil)
	return err
}
