package model

import "fmt"

// ObjectID (the on-disk "PRE" xattr) is the tuple that, together with a
// chunk number, determines one backing object's URL.
type ObjectID struct {
	Repo      *Repository
	Bucket    string
	INode     uint64 // MDFS inode the object belongs to, part of the object key
	CTime     int64  // creation time, unix nanoseconds; disambiguates reused inodes
	ChunkSize int64
	ChunkNo   uint32
	ObjType   ObjType // N_TO_1 marker lives here per §3
}

// Key renders the backing-object key: objid[-chunk_no]. Chunk 0 has no
// suffix unless the object is N:1; every later chunk is suffixed.
func (o *ObjectID) Key() string {
	base := fmt.Sprintf("%016x.%d", o.INode, o.CTime)
	if o.ChunkNo == 0 && o.ObjType != NTo1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, o.ChunkNo)
}

// WithChunk returns a copy of o addressing a different chunk number,
// leaving the rest of the identity (inode, ctime) intact. The write
// engine's Uni-to-Multi promotion advances PRE's ChunkNo in place instead
// of calling this.
func (o ObjectID) WithChunk(chunkNo uint32) ObjectID {
	o.ChunkNo = chunkNo
	return o
}

// Format renders o to the ASCII encoding stored in the reserved PRE xattr.
func (o *ObjectID) Format() string {
	return fmt.Sprintf("%s|%016x|%d|%d|%d|%d", o.Repo.Name, o.INode, o.CTime, o.ChunkSize, o.ChunkNo, int(o.ObjType))
}

// ObjectLayout (the on-disk "POST" xattr) records, for a closed file, the
// shape the write engine produced.
type ObjectLayout struct {
	ObjType        ObjType
	Chunks         uint32 // total chunk count
	ObjOffset      int64  // byte offset of this logical file within the first physical object; nonzero only for PACKED
	ChunkInfoBytes int64  // bytes of per-chunk index actually written to the MDFS file
}

// Format renders l to the ASCII encoding stored in the reserved POST xattr.
func (l *ObjectLayout) Format() string {
	return fmt.Sprintf("%d|%d|%d|%d", int(l.ObjType), l.Chunks, l.ObjOffset, l.ChunkInfoBytes)
}
