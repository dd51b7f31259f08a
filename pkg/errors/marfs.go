package errors

import "syscall"

// ToErrno translates an ObjectFSError produced by the MarFS engine into the
// syscall.Errno the FUSE layer must return. Non-ObjectFSError values fall
// back to EIO, matching the original driver's habit of mapping any
// unanticipated failure to EIO.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	ofsErr, ok := err.(*ObjectFSError)
	if !ok {
		return syscall.EIO
	}

	switch ofsErr.Code {
	case ErrCodePermissionDenied, ErrCodeAccessDenied:
		return syscall.EACCES
	case ErrCodeReservedXattr, ErrCodeTruncateUnsupported:
		return syscall.EPERM
	case ErrCodeQuotaExceeded:
		return syscall.EDQUOT
	case ErrCodeNonContiguousWrite:
		return syscall.EINVAL
	case ErrCodeChunkBoundary:
		return syscall.EFAULT
	case ErrCodeUnsupportedMode:
		return syscall.ENOSYS
	case ErrCodeFileNotFound, ErrCodeObjectNotFound:
		return syscall.ENOENT
	default:
		if ofsErr.Category == CategoryMarFS || ofsErr.Category == CategoryConnection || ofsErr.Category == CategoryStorage {
			return syscall.EIO
		}
		return syscall.EIO
	}
}

// Permission denial at namespace interactive-permission checks.
func NewPermissionError(operation, path string, cause error) *ObjectFSError {
	return NewError(ErrCodePermissionDenied, "namespace interactive permissions do not allow "+operation).
		WithComponent("marfs").
		WithOperation(operation).
		WithContext("path", path).
		WithCause(cause)
}

// Quota denial at mknod time. Advisory per the quota module's contract.
func NewQuotaError(path string) *ObjectFSError {
	return NewError(ErrCodeQuotaExceeded, "namespace quota exceeded").
		WithComponent("marfs/quota").
		WithContext("path", path)
}

// A non-contiguous write attempt, or an ftruncate to a non-zero length.
func NewLayoutError(code ErrorCode, operation, detail string) *ObjectFSError {
	return NewError(code, detail).
		WithComponent("marfs/engine").
		WithOperation(operation)
}

// A transport failure: HTTP status outside {200,206}, or a short transfer.
func NewTransportError(operation, key string, cause error) *ObjectFSError {
	return NewError(ErrCodeStorageRead, "object stream transport error").
		WithComponent("marfs/objectstore").
		WithOperation(operation).
		WithContext("key", key).
		WithCause(cause)
}

// An attempt to get/set/remove a reserved xattr name.
func NewReservedXattrError(name string) *ObjectFSError {
	return NewError(ErrCodeReservedXattr, "xattr name is reserved for MarFS internal use").
		WithComponent("marfs/xattr").
		WithContext("name", name)
}

// An unsupported mode/operation combination (O_APPEND, O_RDWR, ...). A
// non-zero truncate uses ErrCodeTruncateUnsupported instead.
func NewUnsupportedError(operation string) *ObjectFSError {
	return NewError(ErrCodeUnsupportedMode, "operation not supported on object-backed files").
		WithComponent("marfs/engine").
		WithOperation(operation)
}
