// Package chunk implements the pure arithmetic mapping a logical byte
// offset within an object-backed file to the chunk, in-chunk physical
// offset, and available byte count that chunk can serve — the Chunk
// Calculator of the MarFS I/O engine.
package chunk

import "github.com/mar-file-system/gomarfs/internal/marfs/model"

// Position is the result of resolving a logical offset: which chunk it
// falls in, the physical (within-object) offset inside that chunk, and how
// many bytes remain available in the chunk from that point.
type Position struct {
	ChunkNo     uint32
	ChunkOffset int64
	ChunkRemain int64
}

// DataPerChunk returns the usable payload bytes of one backing object,
// given the layout in play. Packed objects share one physical object
// across several logical files, so their per-file payload is reduced by
// every sibling file's own recovery blob (§4.4).
func DataPerChunk(repo *model.Repository, layout *model.ObjectLayout) int64 {
	if layout != nil && layout.ObjType == model.Packed {
		return repo.ChunkSize - int64(layout.Chunks)*repo.RecoverySize()
	}
	return repo.DataPerChunk()
}

// Resolve computes the Position addressed by logical offset lo, per §4.4:
//
//	chunk = floor(lo / dataPerChunk)
//
// with the edge case that lo exactly equal to dataPerChunk (a zero-byte
// read sitting at the first chunk's logical end) backs up one chunk rather
// than rolling into a chunk with zero bytes available.
func Resolve(lo int64, dataPerChunk int64) Position {
	if dataPerChunk <= 0 {
		return Position{}
	}
	chunk := lo / dataPerChunk
	if lo == dataPerChunk {
		chunk--
	}
	within := lo - chunk*dataPerChunk
	return Position{
		ChunkNo:     uint32(chunk),
		ChunkOffset: within,
		ChunkRemain: dataPerChunk - within,
	}
}

// LogicalEnd returns the logical offset, exclusive, at which chunk c ends:
// (c+1) * dataPerChunk. Reaching this while writing triggers the engine to
// append recovery, close the stream, and open the next chunk (§4.5.3).
func LogicalEnd(chunkNo uint32, dataPerChunk int64) int64 {
	return int64(chunkNo+1) * dataPerChunk
}

// Span is one (chunk, byte range) pair a multi-chunk read or write touches.
type Span struct {
	ChunkNo     uint32
	ChunkOffset int64
	Length      int64
}

// Plan decomposes a logical [lo, lo+length) range into the ordered
// sequence of per-chunk spans a read loop must walk (§4.5.2 step 4). It
// does not perform any I/O; the engine drives the actual GET/PUT calls.
func Plan(lo, length int64, dataPerChunk int64) []Span {
	if length <= 0 || dataPerChunk <= 0 {
		return nil
	}
	var spans []Span
	remain := length
	pos := Resolve(lo, dataPerChunk)
	for remain > 0 {
		take := pos.ChunkRemain
		if take > remain {
			take = remain
		}
		spans = append(spans, Span{ChunkNo: pos.ChunkNo, ChunkOffset: pos.ChunkOffset, Length: take})
		remain -= take
		pos = Position{ChunkNo: pos.ChunkNo + 1, ChunkOffset: 0, ChunkRemain: dataPerChunk}
	}
	return spans
}
