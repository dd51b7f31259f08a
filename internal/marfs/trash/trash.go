// Package trash implements the MarFS Trash Manager (§4.6): atomically
// moving an MDFS file, with its xattr snapshot intact, aside so a new
// file (or a fresh truncated file) can occupy its name while the old
// backing object(s) stay reachable for later reclamation by an
// out-of-band reaper.
package trash

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mar-file-system/gomarfs/internal/marfs/metrics"
	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	marfserrors "github.com/mar-file-system/gomarfs/pkg/errors"
	"github.com/mar-file-system/gomarfs/pkg/retry"
)

// Manager moves files into a namespace's trash directory. Retries an
// EEXIST name collision through pkg/retry, per SPEC_FULL §11 — this is a
// transient MDFS rename race, not a stream-layer retry the spec's §7
// forbids.
type Manager struct {
	trashRoot string
	retrier   *retry.Retryer
	Metrics   *metrics.Recorder
}

// New constructs a Manager rooted at trashRoot (typically a
// namespace-relative ".trash" directory alongside its MDFS root).
func New(trashRoot string) *Manager {
	return &Manager{
		trashRoot: trashRoot,
		retrier:   retry.New(retry.DefaultConfig()),
	}
}

// entryName encodes the original path and object id into the trash
// filename, per §4.6: "a trash path whose name encodes the original path
// and object id."
func entryName(mdfsRelPath string, obj *model.ObjectID) string {
	safe := filepath.ToSlash(mdfsRelPath)
	for i := 0; i < len(safe); i++ {
		if safe[i] == '/' {
			safe = safe[:i] + "_" + safe[i+1:]
		}
	}
	return fmt.Sprintf("%s.%d.%d", safe, obj.INode, obj.CTime)
}

// TruncateTrash implements TRASH_TRUNCATE (§4.5.6, §4.6): move mdfsPath
// aside preserving its xattrs, then leave a fresh, empty, xattr-free MDFS
// file in its place, and return the new ObjectID subsequent writes should
// target.
func (m *Manager) TruncateTrash(mdfsPath, mdfsRelPath string, obj *model.ObjectID) (*model.ObjectID, error) {
	dest := filepath.Join(m.trashRoot, entryName(mdfsRelPath, obj))

	if err := m.rename(mdfsPath, dest); err != nil {
		return nil, err
	}
	m.Metrics.RecordTrashMove("truncate")

	f, err := os.OpenFile(mdfsPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "could not recreate truncated file").
			WithComponent("marfs/trash").WithOperation("truncate").WithContext("path", mdfsPath).WithCause(err)
	}
	f.Close()

	newObj := *obj
	newObj.CTime = time.Now().UnixNano()
	return &newObj, nil
}

// UnlinkTrash implements TRASH_UNLINK (§4.5.6, §4.6): rename the file,
// with its xattr snapshot, into the trash. No replacement file is created
// — the name is simply gone from the caller's perspective (directories
// never go to the trash; only regular object-backed files do).
func (m *Manager) UnlinkTrash(mdfsPath, mdfsRelPath string, obj *model.ObjectID) error {
	dest := filepath.Join(m.trashRoot, entryName(mdfsRelPath, obj))
	if err := m.rename(mdfsPath, dest); err != nil {
		return err
	}
	m.Metrics.RecordTrashMove("unlink")
	return nil
}

// rename performs the MDFS move, retrying on a transient EEXIST name
// collision (two unlinks of the same inode racing, or clock skew
// producing an identical ctime suffix).
func (m *Manager) rename(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "could not create trash directory").
			WithComponent("marfs/trash").WithContext("dest", dest).WithCause(err)
	}

	return m.retrier.Do(func() error {
		err := os.Rename(src, dest)
		if err == nil {
			return nil
		}
		if os.IsExist(err) {
			dest += fmt.Sprintf(".%d", time.Now().UnixNano())
			// ErrCodeInternalError is in pkg/retry's default retryable-code
			// list; this is the one legitimate use of that escape hatch
			// here, since a rename-target collision is transient MDFS
			// contention, not a stream-layer failure.
			return marfserrors.NewError(marfserrors.ErrCodeInternalError, "trash destination collision").
				WithComponent("marfs/trash").WithContext("dest", dest).WithCause(err)
		}
		return marfserrors.NewError(marfserrors.ErrCodeStorageWrite, "trash rename failed").
			WithComponent("marfs/trash").WithContext("src", src).WithContext("dest", dest).WithCause(err)
	})
}
