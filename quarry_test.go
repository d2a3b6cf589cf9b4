package quarry

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func openTest(t *testing.T, dir string, opts ...OpenOption) *Quarry {
	t.Helper()
	q, err := Open(dir, append([]OpenOption{WithSyncWrites(false)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestAddCatVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data := randomBytes(t, 1<<20)

	q, err := Open(dir)
	require.NoError(t, err)

	info, err := q.Add(ctx, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, 4, info.Leaves)
	require.NoError(t, q.Verify(ctx, info.Root))
	require.NoError(t, q.Close())

	q = openTest(t, dir)
	var out bytes.Buffer
	n, err := q.Cat(ctx, info.Root, &out)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)
	require.Equal(t, data, out.Bytes())
	require.NoError(t, q.Verify(ctx, info.Root))
}

func TestRootMatchesAcrossStores(t *testing.T) {
	ctx := context.Background()
	data := randomBytes(t, 300_000)

	q := openTest(t, t.TempDir(), WithChunkSize(1<<16))
	onDisk, err := q.Add(ctx, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	inMemory, err := Build(ctx, bytes.NewReader(data), int64(len(data)), NewMemoryStore(), WithChunkSize(1<<16))
	require.NoError(t, err)

	require.True(t, onDisk.Root.Equals(inMemory.Root))
	require.Equal(t, 5, onDisk.Leaves)
	require.Equal(t, inMemory.RootSize, onDisk.RootSize)
}

func TestEmptyInput(t *testing.T) {
	ctx := context.Background()
	q := openTest(t, t.TempDir())

	info, err := q.Add(ctx, bytes.NewReader(nil), 0)
	require.NoError(t, err)
	require.Zero(t, info.Leaves)

	data, ok, err := q.Get(ctx, info.Root)
	require.NoError(t, err)
	require.True(t, ok)

	node, err := DecodeNode(data)
	require.NoError(t, err)
	require.Empty(t, node.Links)

	var out bytes.Buffer
	n, err := q.Cat(ctx, info.Root, &out)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBuildOversizedDeclaredSize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	info, err := Build(ctx, bytes.NewReader([]byte("tiny")), 1<<62, store)
	require.NoError(t, err)
	require.Equal(t, 1, info.Leaves)

	var out bytes.Buffer
	_, err = Cat(ctx, store, info.Root, &out)
	require.NoError(t, err)
	require.Equal(t, "tiny", out.String())
}

func TestOpenFailsOnCorruptHeap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	q, err := Open(dir, WithSyncWrites(false))
	require.NoError(t, err)
	_, err = q.Put(ctx, []byte("precious"))
	require.NoError(t, err)
	path := q.Path()
	require.NoError(t, q.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Open(dir)
	require.ErrorIs(t, err, ErrHeapCorrupt)
}

func TestRawBlocks(t *testing.T) {
	ctx := context.Background()
	q := openTest(t, t.TempDir(), WithCompression("zstd"), WithPageCacheSize(0))

	c, err := q.Put(ctx, []byte("morrocan mint tea"))
	require.NoError(t, err)

	ok, err := Has(ctx, q, c)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, q.DeleteBlock(ctx, c))
	ok, err = Has(ctx, q, c)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddFile(t *testing.T) {
	ctx := context.Background()
	data := randomBytes(t, 10_000)
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))

	q := openTest(t, t.TempDir(), WithChunkSize(4096))
	info, err := q.AddFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 3, info.Leaves)

	var out bytes.Buffer
	_, err = q.Cat(ctx, info.Root, &out)
	require.NoError(t, err)
	require.Equal(t, data, out.Bytes())
}

func TestCompactKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := openTest(t, dir)

	var roots []Info
	for i := 0; i < 5; i++ {
		info, err := q.Add(ctx, bytes.NewReader(randomBytes(t, 5000)), 5000)
		require.NoError(t, err)
		roots = append(roots, info)
	}

	stats := q.Stats()
	require.LessOrEqual(t, stats.DeadObjects, stats.LiveObjects)

	require.NoError(t, q.Compact())
	require.Zero(t, q.Stats().DeadObjects)

	for _, info := range roots {
		require.NoError(t, q.Verify(ctx, info.Root))
	}
}

func TestOpenRejectsUnknownCompression(t *testing.T) {
	_, err := Open(t.TempDir(), WithCompression("brotli"))
	require.Error(t, err)
}

func TestDefaultDirs(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	require.Equal(t, filepath.Join("/xdg/data", "quarry"), DefaultDataDir())
	require.Equal(t, filepath.Join("/xdg/config", "quarry"), DefaultConfigDir())

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/quarry")
	require.Equal(t, filepath.Join("/home/quarry", ".local", "share", "quarry"), DefaultDataDir())
	require.Equal(t, filepath.Join("/home/quarry", ".config", "quarry"), DefaultConfigDir())
}
