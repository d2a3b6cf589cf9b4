package pagestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/aweris/quarry/internal/heap"
)

func rawCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, hash)
}

func openMemory(t *testing.T, opts ...Option) (*Store, *heap.Memory) {
	t.Helper()
	h := heap.NewMemory()
	s, err := Open(h, opts...)
	require.NoError(t, err)
	return s, h
}

func TestPutGetMorrocanMintTea(t *testing.T) {
	ctx := context.Background()
	h, err := heap.Open(t.TempDir())
	require.NoError(t, err)
	s, err := Open(h)
	require.NoError(t, err)
	defer s.Close()

	content := []byte("morrocan mint tea")
	require.Len(t, content, 17)
	c := rawCID(t, content)

	require.NoError(t, s.PutKeyed(ctx, c, content))

	got, ok, err := s.Get(ctx, c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content, got)
}

func TestRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openMemory(t)

	blocks := map[cid.Cid][]byte{}
	for i := 0; i < 20; i++ {
		data := []byte(fmt.Sprintf("block-%d", i))
		c := rawCID(t, data)
		blocks[c] = data
		require.NoError(t, s.PutKeyed(ctx, c, data))
	}

	for c, want := range blocks {
		got, ok, err := s.Get(ctx, c)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	for c := range blocks {
		require.NoError(t, s.DeleteBlock(ctx, c))
		_, ok, err := s.Get(ctx, c)
		require.NoError(t, err)
		require.False(t, ok)
	}

	missing := rawCID(t, []byte("never stored"))
	_, ok, err := s.Get(ctx, missing)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.DeleteBlock(ctx, missing))
}

func TestBootstrap(t *testing.T) {
	s, h := openMemory(t)

	require.Equal(t, 1, s.PageCount())
	require.Equal(t, uint64(2), s.index.LastPID)

	objects := h.Snapshot()
	require.Len(t, objects, 2)

	idx, err := decodeIndex(objects[IndexObjectID])
	require.NoError(t, err)
	require.Equal(t, uint64(2), idx.LastPID)
	require.Len(t, idx.Pages, 1)
	require.Empty(t, idx.Pages[0].Lo)
	require.Equal(t, heap.ObjectID(2), idx.Pages[0].PID)

	page, err := decodePage(objects[2])
	require.NoError(t, err)
	require.Empty(t, page.Lo)
	require.Nil(t, page.Hi)
	require.Empty(t, page.KVs)
}

func TestReopenKeepsIndex(t *testing.T) {
	ctx := context.Background()
	h := heap.NewMemory()

	s, err := Open(h)
	require.NoError(t, err)
	c := rawCID(t, []byte("persisted"))
	require.NoError(t, s.PutKeyed(ctx, c, []byte("persisted")))
	require.NoError(t, s.allocatePage(&Page{Lo: []byte{0xff}}))

	reopened, err := Open(h, WithCacheSize(0))
	require.NoError(t, err)
	require.Equal(t, 2, reopened.PageCount())
	require.Equal(t, uint64(3), reopened.index.LastPID)

	got, ok, err := reopened.Get(ctx, c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), got)
}

func TestBootstrapFailureLeavesHeapEmpty(t *testing.T) {
	h := heap.NewMemory()
	h.FailNextBatch(errors.New("disk full"))

	_, err := Open(h)
	require.Error(t, err)
	require.Empty(t, h.Snapshot())

	s, err := Open(h)
	require.NoError(t, err)
	require.Equal(t, 1, s.PageCount())
}

func TestAllocatePageIsAtomic(t *testing.T) {
	s, h := openMemory(t)
	before := h.Snapshot()

	boom := errors.New("batch failed")
	h.FailNextBatch(boom)
	require.ErrorIs(t, s.allocatePage(&Page{Lo: []byte{0x80}}), boom)

	require.Equal(t, before, h.Snapshot())
	require.Equal(t, 1, s.PageCount())
	require.Equal(t, uint64(2), s.index.LastPID)

	_, ok, err := h.Read(3)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.allocatePage(&Page{Lo: []byte{0x80}}))
	require.Equal(t, 2, s.PageCount())
	require.Equal(t, uint64(3), s.index.LastPID)
}

func TestAllocatePageRejectsDuplicateBound(t *testing.T) {
	s, h := openMemory(t)
	before := h.Snapshot()

	require.Error(t, s.allocatePage(&Page{Lo: []byte{}}))
	require.Equal(t, before, h.Snapshot())
	require.Equal(t, uint64(2), s.index.LastPID)
}

func TestRoutingAcrossPages(t *testing.T) {
	ctx := context.Background()
	s, h := openMemory(t, WithCacheSize(0))

	// CIDv1 bytes start with 0x01, so a bound of {0x01, 0x71} splits raw
	// (0x55) leaves from dag-cbor (0x71) roots.
	require.NoError(t, s.allocatePage(&Page{Lo: []byte{0x01, 0x71}}))

	leaf := rawCID(t, []byte("leaf"))
	hash, err := mh.Sum([]byte("root"), mh.SHA2_256, -1)
	require.NoError(t, err)
	root := cid.NewCidV1(cid.DagCBOR, hash)

	require.NoError(t, s.PutKeyed(ctx, leaf, []byte("leaf")))
	require.NoError(t, s.PutKeyed(ctx, root, []byte("root")))

	leafPage, err := s.route(leaf.Bytes())
	require.NoError(t, err)
	rootPage, err := s.route(root.Bytes())
	require.NoError(t, err)
	require.Equal(t, heap.ObjectID(2), leafPage)
	require.Equal(t, heap.ObjectID(3), rootPage)

	objects := h.Snapshot()
	page2, err := decodePage(objects[2])
	require.NoError(t, err)
	require.Len(t, page2.KVs, 1)
	page3, err := decodePage(objects[3])
	require.NoError(t, err)
	require.Len(t, page3.KVs, 1)

	got, ok, err := s.Get(ctx, root)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("root"), got)
}

func TestRoutingConsistency(t *testing.T) {
	ctx := context.Background()
	s, _ := openMemory(t)
	c := rawCID(t, []byte("stable"))

	first, err := s.route(c.Bytes())
	require.NoError(t, err)
	require.NoError(t, s.PutKeyed(ctx, c, []byte("stable")))
	second, err := s.route(c.Bytes())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

type stubHeap struct {
	*heap.Memory
	stats       heap.Stats
	maintenance int
}

func (s *stubHeap) Stats() heap.Stats { return s.stats }

func (s *stubHeap) Maintenance() error {
	s.maintenance++
	return nil
}

func TestCompactionTrigger(t *testing.T) {
	ctx := context.Background()
	h := &stubHeap{Memory: heap.NewMemory()}
	s, err := Open(h)
	require.NoError(t, err)

	c := rawCID(t, []byte("x"))

	h.stats = heap.Stats{LiveObjects: 5, DeadObjects: 5}
	require.NoError(t, s.PutKeyed(ctx, c, []byte("x")))
	require.NoError(t, s.DeleteBlock(ctx, c))
	require.Zero(t, h.maintenance)

	h.stats = heap.Stats{LiveObjects: 5, DeadObjects: 6}
	require.NoError(t, s.PutKeyed(ctx, c, []byte("x")))
	require.Equal(t, 1, h.maintenance)

	require.NoError(t, s.DeleteBlock(ctx, c))
	require.Equal(t, 2, h.maintenance)
}

func TestCompactionTriggerMemoryHeap(t *testing.T) {
	ctx := context.Background()
	s, h := openMemory(t)

	for i := 0; i < 2; i++ {
		data := []byte{byte(i)}
		require.NoError(t, s.PutKeyed(ctx, rawCID(t, data), data))
	}
	require.Zero(t, h.MaintenanceRuns())
	require.Equal(t, heap.Stats{LiveObjects: 2, DeadObjects: 2}, h.Stats())

	require.NoError(t, s.PutKeyed(ctx, rawCID(t, []byte{2}), []byte{2}))
	require.Equal(t, 1, h.MaintenanceRuns())
	require.Equal(t, heap.Stats{LiveObjects: 2}, h.Stats())
}

type failingMaintenanceHeap struct {
	*heap.Memory
}

var errMaintenance = errors.New("maintenance failed")

func (f failingMaintenanceHeap) Stats() heap.Stats {
	return heap.Stats{LiveObjects: 1, DeadObjects: 2}
}

func (f failingMaintenanceHeap) Maintenance() error { return errMaintenance }

func TestCompactionErrorSurfaces(t *testing.T) {
	s, err := Open(failingMaintenanceHeap{heap.NewMemory()})
	require.NoError(t, err)

	err = s.PutKeyed(context.Background(), rawCID(t, []byte("y")), []byte("y"))
	require.ErrorIs(t, err, errMaintenance)
}

func TestMissingPage(t *testing.T) {
	ctx := context.Background()
	s, h := openMemory(t, WithCacheSize(0))
	c := rawCID(t, []byte("orphan"))

	require.NoError(t, h.WriteBatch(map[heap.ObjectID][]byte{2: nil}))

	_, ok, err := s.Get(ctx, c)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrMissingPage)

	require.ErrorIs(t, s.PutKeyed(ctx, c, []byte("orphan")), ErrMissingPage)
	require.ErrorIs(t, s.DeleteBlock(ctx, c), ErrMissingPage)
}

func TestMissingPageAfterReopen(t *testing.T) {
	ctx := context.Background()
	h := heap.NewMemory()
	s, err := Open(h)
	require.NoError(t, err)

	c := rawCID(t, []byte("cached"))
	require.NoError(t, s.PutKeyed(ctx, c, []byte("cached")))
	require.NoError(t, h.WriteBatch(map[heap.ObjectID][]byte{2: nil}))

	reopened, err := Open(h)
	require.NoError(t, err)
	_, ok, err := reopened.Get(ctx, c)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrMissingPage)
}

func TestCorruptIndex(t *testing.T) {
	h := heap.NewMemory()
	require.NoError(t, h.WriteBatch(map[heap.ObjectID][]byte{IndexObjectID: []byte{0xde, 0xad}}))

	_, err := Open(h)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestCorruptPage(t *testing.T) {
	ctx := context.Background()
	s, h := openMemory(t, WithCacheSize(0))
	require.NoError(t, h.WriteBatch(map[heap.ObjectID][]byte{2: []byte{0, 0, 0, 9}}))

	_, _, err := s.Get(ctx, rawCID(t, []byte("z")))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestCustomIndexObjectID(t *testing.T) {
	s, h := openMemory(t, WithIndexObjectID(10))

	objects := h.Snapshot()
	require.Contains(t, objects, heap.ObjectID(10))
	require.Contains(t, objects, heap.ObjectID(11))
	require.Equal(t, uint64(11), s.index.LastPID)
}

func TestFileHeapPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	h, err := heap.Open(dir)
	require.NoError(t, err)
	s, err := Open(h)
	require.NoError(t, err)

	var cids []cid.Cid
	for i := 0; i < 50; i++ {
		data := []byte(fmt.Sprintf("persistent block %d", i))
		c := rawCID(t, data)
		cids = append(cids, c)
		require.NoError(t, s.PutKeyed(ctx, c, data))
	}
	require.NoError(t, s.DeleteBlock(ctx, cids[0]))
	require.NoError(t, s.Close())

	h, err = heap.Open(dir)
	require.NoError(t, err)
	s, err = Open(h)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 1, s.PageCount())
	_, ok, err := s.Get(ctx, cids[0])
	require.NoError(t, err)
	require.False(t, ok)

	for i, c := range cids[1:] {
		got, ok, err := s.Get(ctx, c)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte(fmt.Sprintf("persistent block %d", i+1)), got)
	}

	stats := s.Stats()
	require.LessOrEqual(t, stats.DeadObjects, stats.LiveObjects)
}
