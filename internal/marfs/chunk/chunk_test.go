package chunk

import (
	"testing"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/stretchr/testify/assert"
)

func TestResolveWithinFirstChunk(t *testing.T) {
	pos := Resolve(100, 1000)
	assert.Equal(t, uint32(0), pos.ChunkNo)
	assert.Equal(t, int64(100), pos.ChunkOffset)
	assert.Equal(t, int64(900), pos.ChunkRemain)
}

func TestResolveExactBoundaryBacksUpOneChunk(t *testing.T) {
	pos := Resolve(1000, 1000)
	assert.Equal(t, uint32(0), pos.ChunkNo)
	assert.Equal(t, int64(1000), pos.ChunkOffset)
	assert.Equal(t, int64(0), pos.ChunkRemain)
}

func TestResolveSecondChunk(t *testing.T) {
	pos := Resolve(1500, 1000)
	assert.Equal(t, uint32(1), pos.ChunkNo)
	assert.Equal(t, int64(500), pos.ChunkOffset)
	assert.Equal(t, int64(500), pos.ChunkRemain)
}

func TestResolveZeroOffset(t *testing.T) {
	pos := Resolve(0, 1000)
	assert.Equal(t, uint32(0), pos.ChunkNo)
	assert.Equal(t, int64(0), pos.ChunkOffset)
	assert.Equal(t, int64(1000), pos.ChunkRemain)
}

func TestLogicalEnd(t *testing.T) {
	assert.Equal(t, int64(1000), LogicalEnd(0, 1000))
	assert.Equal(t, int64(2000), LogicalEnd(1, 1000))
}

func TestDataPerChunkUniMulti(t *testing.T) {
	repo := &model.Repository{ChunkSize: 1000 + model.RecoveryTrailerSize}
	assert.Equal(t, int64(1000), DataPerChunk(repo, nil))
	assert.Equal(t, int64(1000), DataPerChunk(repo, &model.ObjectLayout{ObjType: model.Uni}))
}

func TestDataPerChunkPacked(t *testing.T) {
	repo := &model.Repository{ChunkSize: 10000}
	layout := &model.ObjectLayout{ObjType: model.Packed, Chunks: 3}
	assert.Equal(t, 10000-3*model.RecoveryTrailerSize, DataPerChunk(repo, layout))
}

func TestPlanSingleChunk(t *testing.T) {
	spans := Plan(0, 500, 1000)
	assert.Equal(t, []Span{{ChunkNo: 0, ChunkOffset: 0, Length: 500}}, spans)
}

func TestPlanSpansTwoChunks(t *testing.T) {
	spans := Plan(900, 200, 1000)
	assert.Equal(t, []Span{
		{ChunkNo: 0, ChunkOffset: 900, Length: 100},
		{ChunkNo: 1, ChunkOffset: 0, Length: 100},
	}, spans)
}

func TestPlanSpansThreeChunks(t *testing.T) {
	spans := Plan(0, 2500, 1000)
	assert.Equal(t, []Span{
		{ChunkNo: 0, ChunkOffset: 0, Length: 1000},
		{ChunkNo: 1, ChunkOffset: 0, Length: 1000},
		{ChunkNo: 2, ChunkOffset: 0, Length: 500},
	}, spans)
}

func TestPlanZeroLength(t *testing.T) {
	assert.Nil(t, Plan(0, 0, 1000))
}

func TestPlanBoundaryExactChunk(t *testing.T) {
	spans := Plan(0, 1000, 1000)
	assert.Equal(t, []Span{{ChunkNo: 0, ChunkOffset: 0, Length: 1000}}, spans)
}

func TestPlanOneUnderAndOneOverBoundary(t *testing.T) {
	under := Plan(0, 999, 1000)
	assert.Equal(t, []Span{{ChunkNo: 0, ChunkOffset: 0, Length: 999}}, under)

	over := Plan(0, 1001, 1000)
	assert.Equal(t, []Span{
		{ChunkNo: 0, ChunkOffset: 0, Length: 1000},
		{ChunkNo: 1, ChunkOffset: 0, Length: 1},
	}, over)
}
