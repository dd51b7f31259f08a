package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecoveryInfo is the opaque trailer appended to every backing object,
// enabling reconstruction of a chunk's provenance independent of the MDFS.
// Field layout is implementation-defined (the original C driver treats it
// as an opaque blob sized at build time); this repository fixes a concrete
// binary layout so chunk math and the 8-byte post-trailer in
// Repository.RecoverySize have a real sizeof to agree on.
type RecoveryInfo struct {
	Magic      uint64 // sentinel identifying a valid recovery blob
	Version    uint32
	ChunkNo    uint32
	LogOffset  uint64 // logical byte offset of this chunk's first data byte
	DataLength uint64 // user-data bytes in this chunk (excludes the trailer)
	INode      uint64 // MDFS inode this object belongs to
	MTime      int64  // write-time, unix nanoseconds
	PathHash   uint64 // fnv-1a of the MDFS path, for orphan-object triage
}

// RecoveryMagic identifies a well-formed recovery blob.
const RecoveryMagic uint64 = 0x4d41524653524543 // "MARFSREC" in ASCII hex

// RecoveryInfoSize is sizeof(RecoveryInfo) under the fixed binary encoding
// MarshalBinary/UnmarshalBinary use: 8+4+4+8+8+8+8+8 = 56 bytes.
const RecoveryInfoSize = 56

// RecoveryTrailerSize is sizeof(RecoveryInfo)+8, the full per-object
// trailer Repository.RecoverySize reports.
const RecoveryTrailerSize = RecoveryInfoSize + 8

// MarshalBinary encodes r into a fixed RecoveryInfoSize-byte big-endian
// record followed by an 8-byte CRC-ish checksum of the record (the "+8"
// the spec's chunk math accounts for but leaves opaque).
func (r *RecoveryInfo) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(RecoveryTrailerSize)
	fields := []any{r.Magic, r.Version, r.ChunkNo, r.LogOffset, r.DataLength, r.INode, r.MTime, r.PathHash}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return nil, fmt.Errorf("marfs: encode recovery info: %w", err)
		}
	}
	sum := checksum(buf.Bytes())
	if err := binary.Write(buf, binary.BigEndian, sum); err != nil {
		return nil, fmt.Errorf("marfs: encode recovery checksum: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a RecoveryTrailerSize-byte blob produced by
// MarshalBinary, verifying both the magic and the trailing checksum.
func (r *RecoveryInfo) UnmarshalBinary(data []byte) error {
	if len(data) != RecoveryTrailerSize {
		return fmt.Errorf("marfs: recovery blob is %d bytes, want %d", len(data), RecoveryTrailerSize)
	}
	body, want := data[:RecoveryInfoSize], data[RecoveryInfoSize:]
	got := checksum(body)
	var wantSum uint64
	rd := bytes.NewReader(want)
	if err := binary.Read(rd, binary.BigEndian, &wantSum); err != nil {
		return fmt.Errorf("marfs: decode recovery checksum: %w", err)
	}
	if got != wantSum {
		return fmt.Errorf("marfs: recovery blob checksum mismatch")
	}
	br := bytes.NewReader(body)
	for _, f := range []any{&r.Magic, &r.Version, &r.ChunkNo, &r.LogOffset, &r.DataLength, &r.INode, &r.MTime, &r.PathHash} {
		if err := binary.Read(br, binary.BigEndian, f); err != nil {
			return fmt.Errorf("marfs: decode recovery info: %w", err)
		}
	}
	if r.Magic != RecoveryMagic {
		return fmt.Errorf("marfs: recovery blob bad magic %x", r.Magic)
	}
	return nil
}

// checksum is a simple FNV-1a 64-bit hash, adequate for trailer corruption
// detection without pulling in a CRC library for one opaque field.
func checksum(b []byte) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime
	}
	return h
}
