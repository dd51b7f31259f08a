// Package xattr implements the MarFS Xattr Codec: serialization of the
// reserved xattr family (PRE, POST, RESTART, OBJID, SLAVE) that records an
// object-backed file's layout, plus the reservation rules that hide those
// names from ordinary getxattr/setxattr/listxattr/removexattr callers.
//
// Real extended-attribute I/O against the MDFS goes through
// github.com/pkg/xattr, the same library the pack's rclone local backend
// uses for POSIX xattr syscalls.
package xattr

import (
	"fmt"
	"strconv"
	"strings"

	pkgxattr "github.com/pkg/xattr"

	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
)

// Prefix is the reserved namespace. Any xattr name beginning with it is
// invisible and immutable to external callers (§4.2).
const Prefix = "user.marfs."

const (
	nameRestart = Prefix + "restart"
	namePre     = Prefix + "pre"
	namePost    = Prefix + "post"
	nameObjID   = Prefix + "objid"
	nameSlave   = Prefix + "slave"
)

// IsReserved reports whether name falls in the MarFS reserved namespace.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// Get reads an ordinary (non-reserved) xattr from mdfsPath. Reserved names
// are rejected with EPERM before any syscall is attempted, matching
// marfs_getxattr's prefix check ahead of the lgetxattr call.
func Get(mdfsPath, name string) ([]byte, error) {
	if IsReserved(name) {
		return nil, marfserrors.NewReservedXattrError(name)
	}
	v, err := pkgxattr.LGet(mdfsPath, name)
	if err != nil {
		return nil, wrapErr("getxattr", mdfsPath, name, err)
	}
	return v, nil
}

// Set writes an ordinary xattr. Reserved names are rejected with EPERM.
func Set(mdfsPath, name string, value []byte) error {
	if IsReserved(name) {
		return marfserrors.NewReservedXattrError(name)
	}
	if err := pkgxattr.LSet(mdfsPath, name, value); err != nil {
		return wrapErr("setxattr", mdfsPath, name, err)
	}
	return nil
}

// Remove removes an ordinary xattr. Reserved names are rejected with EPERM.
func Remove(mdfsPath, name string) error {
	if IsReserved(name) {
		return marfserrors.NewReservedXattrError(name)
	}
	if err := pkgxattr.LRemove(mdfsPath, name); err != nil {
		return wrapErr("removexattr", mdfsPath, name, err)
	}
	return nil
}

// List returns the xattr names on mdfsPath with every reserved name
// filtered out, per §4.2's "rewrite the buffer in place" contract — the
// caller-facing shape of that contract is just the filtered slice here,
// since Go callers don't manage a raw FUSE reply buffer directly. The FUSE
// adapter (internal/marfs/fuse) implements no xattr operations, so nothing
// flattens this into the kernel's NUL-separated byte buffer.
func List(mdfsPath string) ([]string, error) {
	names, err := pkgxattr.LList(mdfsPath)
	if err != nil {
		return nil, wrapErr("listxattr", mdfsPath, "", err)
	}
	out := names[:0]
	for _, n := range names {
		if IsReserved(n) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func wrapErr(op, path, name string, err error) error {
	if pkgxattr.IsNotExist(err) {
		return marfserrors.NewError(marfserrors.ErrCodeFileNotFound, "xattr not found").
			WithComponent("marfs/xattr").WithOperation(op).WithContext("path", path).WithContext("name", name)
	}
	return marfserrors.NewError(marfserrors.ErrCodeStorageRead, fmt.Sprintf("%s failed", op)).
		WithComponent("marfs/xattr").WithOperation(op).WithContext("path", path).WithContext("name", name).WithCause(err)
}

// --- reserved-xattr ASCII parse/format (PRE, POST, RESTART, OBJID, SLAVE) ---

// RestartGet reads the RESTART marker on mdfsPath. Absence is not an
// error: it simply means the file is not mid-write.
func RestartGet(mdfsPath string) (bool, error) {
	_, err := pkgxattr.LGet(mdfsPath, nameRestart)
	if err != nil {
		if pkgxattr.IsNotExist(err) {
			return false, nil
		}
		return false, wrapErr("getxattr", mdfsPath, nameRestart, err)
	}
	return true, nil
}

// RestartSet asserts the RESTART marker between mknod/ftruncate(0) and a
// successful release (§3).
func RestartSet(mdfsPath string) error {
	if err := pkgxattr.LSet(mdfsPath, nameRestart, []byte("1")); err != nil {
		return wrapErr("setxattr", mdfsPath, nameRestart, err)
	}
	return nil
}

// RestartClear removes the RESTART marker once release has finalized the
// file's layout and size.
func RestartClear(mdfsPath string) error {
	if err := pkgxattr.LRemove(mdfsPath, nameRestart); err != nil && !pkgxattr.IsNotExist(err) {
		return wrapErr("removexattr", mdfsPath, nameRestart, err)
	}
	return nil
}

// PreParse splits the ASCII PRE encoding (repo|inode|ctime|chunk_size|chunk_no|obj_type)
// into its six pipe-separated
// fields, returning an error if the shape does not match.
func PreParse(raw string) ([]string, error) {
	fields := strings.Split(raw, "|")
	if len(fields) != 6 {
		return nil, fmt.Errorf("marfs: malformed PRE xattr %q: want 6 fields, got %d", raw, len(fields))
	}
	return fields, nil
}

// PostParse splits the ASCII POST encoding (obj_type|chunks|obj_offset|chunk_info_bytes).
func PostParse(raw string) ([]string, error) {
	fields := strings.Split(raw, "|")
	if len(fields) != 4 {
		return nil, fmt.Errorf("marfs: malformed POST xattr %q: want 4 fields, got %d", raw, len(fields))
	}
	return fields, nil
}

// ParseUint64 is a small helper shared by PRE/POST field parsing, trimming
// the error-wrapping boilerplate at each call site.
func ParseUint64(field, raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("marfs: bad %s field %q: %w", field, raw, err)
	}
	return v, nil
}

// ParseInt is a small helper shared by PRE/POST field parsing.
func ParseInt(field, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("marfs: bad %s field %q: %w", field, raw, err)
	}
	return v, nil
}

// PreRaw reads the raw PRE xattr string, or ("", false, nil) if absent.
func PreRaw(mdfsPath string) (string, bool, error) {
	return rawGet(mdfsPath, namePre)
}

// PostRaw reads the raw POST xattr string, or ("", false, nil) if absent.
func PostRaw(mdfsPath string) (string, bool, error) {
	return rawGet(mdfsPath, namePost)
}

// ObjIDRaw reads the raw OBJID xattr string, or ("", false, nil) if absent.
func ObjIDRaw(mdfsPath string) (string, bool, error) {
	return rawGet(mdfsPath, nameObjID)
}

func rawGet(mdfsPath, name string) (string, bool, error) {
	v, err := pkgxattr.LGet(mdfsPath, name)
	if err != nil {
		if pkgxattr.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, wrapErr("getxattr", mdfsPath, name, err)
	}
	return string(v), true, nil
}

// PreSet, PostSet, ObjIDSet, SlaveSet write the corresponding reserved
// xattr's ASCII encoding.
func PreSet(mdfsPath, raw string) error  { return rawSet(mdfsPath, namePre, raw) }
func PostSet(mdfsPath, raw string) error { return rawSet(mdfsPath, namePost, raw) }
func ObjIDSet(mdfsPath, raw string) error { return rawSet(mdfsPath, nameObjID, raw) }

func rawSet(mdfsPath, name, raw string) error {
	if err := pkgxattr.LSet(mdfsPath, name, []byte(raw)); err != nil {
		return wrapErr("setxattr", mdfsPath, name, err)
	}
	return nil
}

// SlaveGet reports whether the SLAVE marker is present: an advisory flag
// on non-primary N:1 writers' handles (§3 Ownership and lifecycle).
func SlaveGet(mdfsPath string) (bool, error) {
	_, found, err := rawGet(mdfsPath, nameSlave)
	return found, err
}

// SlaveSet asserts the SLAVE marker.
func SlaveSet(mdfsPath string) error {
	return rawSet(mdfsPath, nameSlave, "1")
}
