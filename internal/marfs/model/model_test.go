package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryInfoRoundTrip(t *testing.T) {
	r := &RecoveryInfo{
		Magic:      RecoveryMagic,
		Version:    1,
		ChunkNo:    3,
		LogOffset:  4096,
		DataLength: 2048,
		INode:      0xdeadbeef,
		MTime:      1700000000,
		PathHash:   0x1234,
	}

	buf, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, RecoveryTrailerSize)

	var got RecoveryInfo
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, *r, got)
}

func TestRecoveryInfoRejectsCorruption(t *testing.T) {
	r := &RecoveryInfo{Magic: RecoveryMagic, ChunkNo: 1}
	buf, err := r.MarshalBinary()
	require.NoError(t, err)

	buf[0] ^= 0xff
	var got RecoveryInfo
	assert.Error(t, got.UnmarshalBinary(buf))
}

func TestChunkInfoRoundTrip(t *testing.T) {
	c := &ChunkInfo{ChunkNo: 7, LogOffset: 123456, DataLen: 65536}
	buf, err := c.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, ChunkInfoSize)

	var got ChunkInfo
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, *c, got)
}

func TestDecodeChunkInfoTable(t *testing.T) {
	var packed []byte
	want := []ChunkInfo{
		{ChunkNo: 0, LogOffset: 0, DataLen: 100},
		{ChunkNo: 1, LogOffset: 100, DataLen: 200},
	}
	for _, c := range want {
		b, err := c.MarshalBinary()
		require.NoError(t, err)
		packed = append(packed, b...)
	}

	got, err := DecodeChunkInfoTable(packed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeChunkInfoTableRejectsMisalignedLength(t *testing.T) {
	_, err := DecodeChunkInfoTable(make([]byte, ChunkInfoSize+1))
	assert.Error(t, err)
}

func TestRepositoryValidate(t *testing.T) {
	repo := &Repository{Name: "r1", ChunkSize: 1024 * 1024, HostCount: 1}
	assert.NoError(t, repo.Validate())

	tooSmall := &Repository{Name: "r2", ChunkSize: 10, HostCount: 1}
	assert.Error(t, tooSmall.Validate())

	noHosts := &Repository{Name: "r3", ChunkSize: 1024 * 1024, HostCount: 0}
	assert.Error(t, noHosts.Validate())
}

func TestRepositoryDataPerChunk(t *testing.T) {
	repo := &Repository{ChunkSize: 1024*1024 + RecoveryTrailerSize}
	assert.Equal(t, int64(1024*1024), repo.DataPerChunk())
}
