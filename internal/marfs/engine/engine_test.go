package engine

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/mar-file-system/gomarfs/internal/marfs/pathresolver"
	"github.com/mar-file-system/gomarfs/internal/marfs/quota"
	"github.com/mar-file-system/gomarfs/internal/marfs/trash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore is a minimal in-memory S3-like server: PUT stores the
// body under its path, GET serves it back honoring Range headers.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if rng := r.Header.Get("Range"); rng != "" {
			var lo int64
			if _, err := fmt.Sscanf(rng, "bytes=%d-", &lo); err == nil && lo < int64(len(body)) {
				body = body[lo:]
			}
			w.WriteHeader(http.StatusPartialContent)
			w.Write(body)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func testHarness(t *testing.T) (*Engine, *model.Namespace, string, *fakeObjectStore) {
	t.Helper()
	store := newFakeObjectStore()
	server := httptest.NewServer(store)
	t.Cleanup(server.Close)

	root := t.TempDir()
	mdfsRoot := filepath.Join(root, "ns1")
	require.NoError(t, os.MkdirAll(mdfsRoot, 0755))

	repo := &model.Repository{
		Name: "repo1", Method: model.S3, HostTemplate: server.Listener.Addr().String(),
		HostCount: 1, Bucket: "bucket1", TLS: false, ChunkSize: 256,
	}
	ns := &model.Namespace{
		Name: "ns1", MountPrefix: "/ns1", MDFSRoot: mdfsRoot, InitRepo: repo,
		Perms: model.RMeta | model.WMeta | model.RData | model.WData,
	}
	resolver := pathresolver.New([]*model.Namespace{ns})
	trashMgr := trash.New(filepath.Join(root, ".trash"))
	e := New(resolver, trashMgr, quota.AlwaysAllow{}, server.Client())
	return e, ns, mdfsRoot, store
}

func createEmpty(t *testing.T, mdfsRoot, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(mdfsRoot, name), nil, 0644))
}

// S1: a small write/read round trip on a Direct-layout file (no MarFS
// xattrs, repository method DIRECT) never touches the object store.
func TestDirectWriteReadRoundTrip(t *testing.T) {
	store := newFakeObjectStore()
	server := httptest.NewServer(store)
	t.Cleanup(server.Close)

	root := t.TempDir()
	mdfsRoot := filepath.Join(root, "ns1")
	require.NoError(t, os.MkdirAll(mdfsRoot, 0755))
	repo := &model.Repository{Name: "repo1", Method: model.Direct, ChunkSize: 256}
	ns := &model.Namespace{Name: "ns1", MountPrefix: "/ns1", MDFSRoot: mdfsRoot, InitRepo: repo, Perms: model.RMeta | model.WMeta | model.RData | model.WData}
	resolver := pathresolver.New([]*model.Namespace{ns})
	e := New(resolver, trash.New(filepath.Join(root, ".trash")), quota.AlwaysAllow{}, server.Client())

	createEmpty(t, mdfsRoot, "a")

	wh, err := Open(e, "/ns1/a", model.OWOnly)
	require.NoError(t, err)
	n, err := wh.Write([]byte("hello direct"), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	require.NoError(t, wh.Release())

	rh, err := Open(e, "/ns1/a", model.ORDOnly)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err = rh.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello direct", string(buf[:n]))
	require.NoError(t, rh.Release())
	assert.Empty(t, store.objects)
}

// S2: a write smaller than one chunk stays Uni and round-trips through
// the fake object store.
func TestUniWriteReadRoundTrip(t *testing.T) {
	e, _, mdfsRoot, store := testHarness(t)
	createEmpty(t, mdfsRoot, "uni")

	wh, err := Open(e, "/ns1/uni", model.OWOnly)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("x"), 50)
	n, err := wh.Write(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	require.NoError(t, wh.Release())
	assert.Len(t, store.objects, 1)

	rh, err := Open(e, "/ns1/uni", model.ORDOnly)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err = rh.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
	require.NoError(t, rh.Release())
}

// S3: a write spanning more than one chunk promotes Uni to Multi and
// splices cleanly across the chunk boundary.
func TestMultiChunkWriteSplices(t *testing.T) {
	e, _, mdfsRoot, store := testHarness(t)
	createEmpty(t, mdfsRoot, "multi")

	dataPerChunk := int(e.chunkSizeFor("/ns1/multi") - model.RecoveryTrailerSize)
	payload := bytes.Repeat([]byte("m"), dataPerChunk+10)

	wh, err := Open(e, "/ns1/multi", model.OWOnly)
	require.NoError(t, err)
	n, err := wh.Write(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, wh.Release())
	assert.Len(t, store.objects, 2)

	rh, err := Open(e, "/ns1/multi", model.ORDOnly)
	require.NoError(t, err)
	buf := make([]byte, len(payload))
	total := 0
	for total < len(payload) {
		n, err := rh.Read(buf[total:], int64(total))
		require.NoError(t, err)
		require.NotZero(t, n)
		total += n
	}
	assert.Equal(t, payload, buf)
	require.NoError(t, rh.Release())
}

// S4: ftruncate(0) mid-write aborts the pending object and trashes the
// old backing bytes, leaving a fresh empty file a second write succeeds
// against.
func TestFtruncateZeroMidWriteTrashesAndRestarts(t *testing.T) {
	e, _, mdfsRoot, store := testHarness(t)
	createEmpty(t, mdfsRoot, "restart")

	wh, err := Open(e, "/ns1/restart", model.OWOnly)
	require.NoError(t, err)
	_, err = wh.Write([]byte("partial"), 0)
	require.NoError(t, err)

	require.NoError(t, wh.Ftruncate(0))

	n, err := wh.Write([]byte("fresh"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, wh.Release())

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(mdfsRoot), ".trash"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	_ = store
}

// S5: a write at an offset other than the handle's contiguous cursor is
// rejected rather than silently accepted.
func TestNonContiguousWriteRejected(t *testing.T) {
	e, _, mdfsRoot, _ := testHarness(t)
	createEmpty(t, mdfsRoot, "noncontig")

	wh, err := Open(e, "/ns1/noncontig", model.OWOnly)
	require.NoError(t, err)
	_, err = wh.Write([]byte("abc"), 0)
	require.NoError(t, err)

	_, err = wh.Write([]byte("xyz"), 10)
	require.Error(t, err)
}

// S6: two independent N:1 writers each own a chunk-aligned slot; after
// both release, FinalizeNTo1 reconciles POST from the persisted
// ChunkInfo records.
func TestNTo1TwoWritersThenFinalize(t *testing.T) {
	e, _, mdfsRoot, store := testHarness(t)
	createEmpty(t, mdfsRoot, "nto1")

	dataPerChunk := e.chunkSizeFor("/ns1/nto1") - model.RecoveryTrailerSize

	h0, err := OpenAtOffset(e, "/ns1/nto1", model.OWOnly, 0, true)
	require.NoError(t, err)
	_, err = h0.Write(bytes.Repeat([]byte("a"), int(dataPerChunk)), 0)
	require.NoError(t, err)
	require.NoError(t, h0.Release())

	h1, err := OpenAtOffset(e, "/ns1/nto1", model.OWOnly, dataPerChunk, true)
	require.NoError(t, err)
	_, err = h1.Write(bytes.Repeat([]byte("b"), int(dataPerChunk)), dataPerChunk)
	require.NoError(t, err)
	require.NoError(t, h1.Release())

	require.NoError(t, e.FinalizeNTo1("/ns1/nto1"))
	assert.Len(t, store.objects, 2)
}

// chunkSizeFor is a test helper exposing the repository chunk size
// configured for path's namespace.
func (e *Engine) chunkSizeFor(mountRelPath string) int64 {
	info, err := resolveMeta(e, mountRelPath)
	if err != nil {
		return 0
	}
	return info.Repo.ChunkSize
}
