package xattr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	return path
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved(nameRestart))
	assert.True(t, IsReserved(namePre))
	assert.False(t, IsReserved("user.comment"))
}

func TestGetSetRemoveOrdinaryXattr(t *testing.T) {
	path := tempFile(t)

	require.NoError(t, Set(path, "user.comment", []byte("hello")))
	v, err := Get(path, "user.comment")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)

	require.NoError(t, Remove(path, "user.comment"))
	_, err = Get(path, "user.comment")
	assert.Error(t, err)
}

func TestGetSetRemoveRejectReservedNames(t *testing.T) {
	path := tempFile(t)

	assert.Error(t, Set(path, namePre, []byte("x")))
	_, err := Get(path, namePre)
	assert.Error(t, err)
	assert.Error(t, Remove(path, namePre))
}

func TestListFiltersReservedNames(t *testing.T) {
	path := tempFile(t)
	require.NoError(t, Set(path, "user.visible", []byte("1")))
	require.NoError(t, PreSet(path, "repo|1|2|3|0|0"))

	names, err := List(path)
	require.NoError(t, err)
	assert.Contains(t, names, "user.visible")
	for _, n := range names {
		assert.False(t, IsReserved(n))
	}
}

func TestRestartMarkerLifecycle(t *testing.T) {
	path := tempFile(t)

	set, err := RestartGet(path)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, RestartSet(path))
	set, err = RestartGet(path)
	require.NoError(t, err)
	assert.True(t, set)

	require.NoError(t, RestartClear(path))
	set, err = RestartGet(path)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestPreRawRoundTrip(t *testing.T) {
	path := tempFile(t)

	_, found, err := PreRaw(path)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, PreSet(path, "repo1|abc|99|1048576|0|0"))
	raw, found, err := PreRaw(path)
	require.NoError(t, err)
	assert.True(t, found)
	fields, err := PreParse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"repo1", "abc", "99", "1048576", "0", "0"}, fields)
}

func TestPostParseRejectsMalformed(t *testing.T) {
	_, err := PostParse("1|2|3")
	assert.Error(t, err)

	fields, err := PostParse("0|4|0|96")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "4", "0", "96"}, fields)
}

func TestSlaveMarkerLifecycle(t *testing.T) {
	path := tempFile(t)

	found, err := SlaveGet(path)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SlaveSet(path))
	found, err = SlaveGet(path)
	require.NoError(t, err)
	assert.True(t, found)
}
