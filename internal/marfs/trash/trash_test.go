package trash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (string, *Manager) {
	t.Helper()
	root := t.TempDir()
	trashRoot := filepath.Join(root, ".trash")
	return root, New(trashRoot)
}

func TestTruncateTrashMovesFileAndRecreatesEmpty(t *testing.T) {
	root, m := setup(t)
	path := filepath.Join(root, "a")
	require.NoError(t, os.WriteFile(path, []byte("old content"), 0644))

	obj := &model.ObjectID{INode: 42, CTime: 1}
	newObj, err := m.TruncateTrash(path, "a", obj)
	require.NoError(t, err)
	assert.NotEqual(t, obj.CTime, newObj.CTime)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size())

	entries, err := os.ReadDir(filepath.Join(root, ".trash"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	trashed, err := os.ReadFile(filepath.Join(root, ".trash", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "old content", string(trashed))
}

func TestUnlinkTrashMovesFileAway(t *testing.T) {
	root, m := setup(t)
	path := filepath.Join(root, "b")
	require.NoError(t, os.WriteFile(path, []byte("gone"), 0644))

	obj := &model.ObjectID{INode: 7, CTime: 2}
	require.NoError(t, m.UnlinkTrash(path, "b", obj))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Join(root, ".trash"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEntryNameEncodesPathAndObjectID(t *testing.T) {
	obj := &model.ObjectID{INode: 1, CTime: 2}
	name := entryName("ns1/sub/file", obj)
	assert.Contains(t, name, "ns1")
	assert.Contains(t, name, "sub")
	assert.Contains(t, name, "file")
}
