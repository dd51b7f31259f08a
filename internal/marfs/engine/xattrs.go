package engine

import (
	"fmt"
	"strconv"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	marfsxattr "github.com/mar-file-system/gomarfs/internal/marfs/xattr"
)

// loadXattrs populates info.Xattrs from the MDFS file's reserved xattrs,
// per §4.5.1's "Parse xattrs." A file with none of PRE/POST/RESTART set
// is a candidate Direct file.
func loadXattrs(info *model.PathInfo) error {
	restart, err := marfsxattr.RestartGet(info.MDFSPath)
	if err != nil {
		return err
	}
	info.Xattrs.Restart = restart

	preRaw, found, err := marfsxattr.PreRaw(info.MDFSPath)
	if err != nil {
		return err
	}
	if found {
		pre, err := parsePre(info, preRaw)
		if err != nil {
			return err
		}
		info.Xattrs.Pre = pre
	}

	postRaw, found, err := marfsxattr.PostRaw(info.MDFSPath)
	if err != nil {
		return err
	}
	if found {
		post, err := parsePost(postRaw)
		if err != nil {
			return err
		}
		info.Xattrs.Post = post
	}

	slave, err := marfsxattr.SlaveGet(info.MDFSPath)
	if err != nil {
		return err
	}
	info.Xattrs.Slave = slave

	return nil
}

func parsePre(info *model.PathInfo, raw string) (*model.ObjectID, error) {
	fields, err := marfsxattr.PreParse(raw)
	if err != nil {
		return nil, err
	}
	inode, err := strconv.ParseUint(fields[1], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("pre.inode: %w", err)
	}
	ctime, err := marfsxattr.ParseUint64("pre.ctime", fields[2])
	if err != nil {
		return nil, err
	}
	chunkSize, err := marfsxattr.ParseUint64("pre.chunk_size", fields[3])
	if err != nil {
		return nil, err
	}
	chunkNo, err := marfsxattr.ParseInt("pre.chunk_no", fields[4])
	if err != nil {
		return nil, err
	}
	objType, err := marfsxattr.ParseInt("pre.obj_type", fields[5])
	if err != nil {
		return nil, err
	}
	return &model.ObjectID{
		Repo:      info.Repo,
		Bucket:    info.Repo.Bucket,
		INode:     inode,
		CTime:     int64(ctime),
		ChunkSize: int64(chunkSize),
		ChunkNo:   uint32(chunkNo),
		ObjType:   model.ObjType(objType),
	}, nil
}

func parsePost(raw string) (*model.ObjectLayout, error) {
	fields, err := marfsxattr.PostParse(raw)
	if err != nil {
		return nil, err
	}
	objType, err := marfsxattr.ParseInt("post.obj_type", fields[0])
	if err != nil {
		return nil, err
	}
	chunks, err := marfsxattr.ParseInt("post.chunks", fields[1])
	if err != nil {
		return nil, err
	}
	objOffset, err := marfsxattr.ParseInt("post.obj_offset", fields[2])
	if err != nil {
		return nil, err
	}
	chunkInfoBytes, err := marfsxattr.ParseInt("post.chunk_info_bytes", fields[3])
	if err != nil {
		return nil, err
	}
	return &model.ObjectLayout{
		ObjType:        model.ObjType(objType),
		Chunks:         uint32(chunks),
		ObjOffset:      int64(objOffset),
		ChunkInfoBytes: int64(chunkInfoBytes),
	}, nil
}

// hasAnyXattrs mirrors the original's has_any_xattrs(info, MARFS_ALL_XATTRS):
// true once any reserved xattr has been recorded on this file.
func hasAnyXattrs(info *model.PathInfo) bool {
	return info.Xattrs.Restart || info.Xattrs.Pre != nil || info.Xattrs.Post != nil
}

// saveXattrs flushes PRE/POST back to the MDFS file's reserved xattrs.
func saveXattrs(info *model.PathInfo) error {
	if info.Xattrs.Pre != nil {
		if err := marfsxattr.PreSet(info.MDFSPath, info.Xattrs.Pre.Format()); err != nil {
			return err
		}
	}
	if info.Xattrs.Post != nil {
		if err := marfsxattr.PostSet(info.MDFSPath, info.Xattrs.Post.Format()); err != nil {
			return err
		}
	}
	return nil
}
