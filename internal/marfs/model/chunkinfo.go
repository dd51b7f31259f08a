package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ChunkInfo is the fixed-size packed record written to the MDFS file, one
// per object chunk of a Multi file: sequence number, logical offset of
// this chunk's user data, and the chunk's user-data byte count.
type ChunkInfo struct {
	ChunkNo   uint32
	LogOffset uint64
	DataLen   uint64
}

// ChunkInfoSize is sizeof(ChunkInfo) under the fixed binary encoding below:
// 4 (padded to 8) + 8 + 8 = 24 bytes.
const ChunkInfoSize = 24

// MarshalBinary encodes c as a fixed 24-byte big-endian record.
func (c *ChunkInfo) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(ChunkInfoSize)
	if err := binary.Write(buf, binary.BigEndian, uint64(c.ChunkNo)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, c.LogOffset); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, c.DataLen); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a 24-byte record produced by MarshalBinary.
func (c *ChunkInfo) UnmarshalBinary(data []byte) error {
	if len(data) != ChunkInfoSize {
		return fmt.Errorf("marfs: chunk info record is %d bytes, want %d", len(data), ChunkInfoSize)
	}
	r := bytes.NewReader(data)
	var chunkNo uint64
	if err := binary.Read(r, binary.BigEndian, &chunkNo); err != nil {
		return err
	}
	c.ChunkNo = uint32(chunkNo)
	if err := binary.Read(r, binary.BigEndian, &c.LogOffset); err != nil {
		return err
	}
	return binary.Read(r, binary.BigEndian, &c.DataLen)
}

// DecodeChunkInfoTable decodes a packed run of ChunkInfo records, the raw
// content of a Multi file's MDFS backing before the final release truncate.
func DecodeChunkInfoTable(data []byte) ([]ChunkInfo, error) {
	if len(data)%ChunkInfoSize != 0 {
		return nil, fmt.Errorf("marfs: chunk info table length %d is not a multiple of %d", len(data), ChunkInfoSize)
	}
	n := len(data) / ChunkInfoSize
	out := make([]ChunkInfo, n)
	for i := 0; i < n; i++ {
		if err := out[i].UnmarshalBinary(data[i*ChunkInfoSize : (i+1)*ChunkInfoSize]); err != nil {
			return nil, fmt.Errorf("marfs: chunk info record %d: %w", i, err)
		}
	}
	return out, nil
}
