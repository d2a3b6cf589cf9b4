package pagestore

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/aweris/quarry/internal/heap"
)

// indexEntry maps a page's low bound to its heap object.
type indexEntry struct {
	Lo  []byte
	PID heap.ObjectID
}

// Index routes keys to pages. Entries are sorted by Lo. LastPID is the most
// recently allocated object id and only ever grows.
type Index struct {
	Pages   []indexEntry
	LastPID uint64
}

func newIndex(indexID heap.ObjectID) *Index {
	return &Index{LastPID: uint64(indexID)}
}

// route returns the page owning key: the entry with the greatest low bound
// that is <= key.
func (idx *Index) route(key []byte) (heap.ObjectID, bool) {
	i := sort.Search(len(idx.Pages), func(i int) bool {
		return bytes.Compare(idx.Pages[i].Lo, key) > 0
	})
	if i == 0 {
		return 0, false
	}
	return idx.Pages[i-1].PID, true
}

// insert registers lo -> pid. It fails if lo is already registered.
func (idx *Index) insert(lo []byte, pid heap.ObjectID) error {
	i, found := slices.BinarySearchFunc(idx.Pages, lo, func(e indexEntry, lo []byte) int {
		return bytes.Compare(e.Lo, lo)
	})
	if found {
		return fmt.Errorf("page with low bound %x already exists", lo)
	}
	idx.Pages = slices.Insert(idx.Pages, i, indexEntry{Lo: slices.Clone(lo), PID: pid})
	return nil
}

func (idx *Index) clone() *Index {
	return &Index{Pages: slices.Clone(idx.Pages), LastPID: idx.LastPID}
}

func (idx *Index) encode() ([]byte, error) {
	var w recordWriter
	w.uint64(uint64(len(idx.Pages)))
	for _, e := range idx.Pages {
		w.bytes(e.Lo)
		w.uint64(uint64(e.PID))
	}
	w.uint64(idx.LastPID)
	return w.finish()
}

func decodeIndex(data []byte) (*Index, error) {
	r := newRecordReader(data)

	n, err := r.count(12)
	if err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrCorrupt, err)
	}
	idx := &Index{Pages: make([]indexEntry, 0, n)}
	for i := 0; i < n; i++ {
		lo, err := r.bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: index entry %d: %v", ErrCorrupt, i, err)
		}
		pid, err := r.uint64()
		if err != nil {
			return nil, fmt.Errorf("%w: index entry %d: %v", ErrCorrupt, i, err)
		}
		if i > 0 && bytes.Compare(idx.Pages[i-1].Lo, lo) >= 0 {
			return nil, fmt.Errorf("%w: index entries out of order at %d", ErrCorrupt, i)
		}
		idx.Pages = append(idx.Pages, indexEntry{Lo: lo, PID: heap.ObjectID(pid)})
	}
	if idx.LastPID, err = r.uint64(); err != nil {
		return nil, fmt.Errorf("%w: index last pid: %v", ErrCorrupt, err)
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrCorrupt, err)
	}
	return idx, nil
}
