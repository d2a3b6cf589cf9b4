// Package pagestore implements a Blockstore on top of an object heap.
//
// Keys (CID bytes) are routed to pages through an index persisted at a
// reserved heap object. Each page is an ordered key-value map stored as one
// heap object. A write loads the owning page, mutates it, and commits it in
// a single-object batch. A page allocation commits the page and the updated
// index in one batch so the two never diverge.
//
// After every write the store checks heap statistics and runs heap
// maintenance inline once dead objects outnumber live ones.
//
// Store does no internal locking. Callers serialize access to one handle.
package pagestore

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/aweris/quarry/internal/heap"
)

// ErrMissingPage means the index references a page object the heap does not
// have. It indicates index or heap corruption and is never retried.
var ErrMissingPage = errors.New("pagestore: index references missing page")

// Store is a page-oriented Blockstore.
type Store struct {
	heap    heap.Heap
	index   *Index
	indexID heap.ObjectID
	cache   *lru.Cache[heap.ObjectID, []byte]
	logger  *zap.Logger
}

// Open loads the index from h, bootstrapping a fresh index and a single
// page covering the whole key space when none exists.
func Open(h heap.Heap, opts ...Option) (*Store, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	s := &Store{
		heap:    h,
		indexID: options.IndexObjectID,
		logger:  options.Logger,
	}

	if options.CacheSize > 0 {
		cache, err := lru.New[heap.ObjectID, []byte](options.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		s.cache = cache
	}

	data, ok, err := h.Read(s.indexID)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if ok {
		if s.index, err = decodeIndex(data); err != nil {
			return nil, err
		}
	} else {
		s.index = newIndex(s.indexID)
	}

	if len(s.index.Pages) == 0 {
		if err := s.allocatePage(&Page{Lo: []byte{}}); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		s.logger.Info("bootstrapped page index",
			zap.Uint64("index_id", uint64(s.indexID)),
			zap.Uint64("page_id", s.index.LastPID),
		)
	}

	return s, nil
}

// allocatePage assigns the next object id to page and commits it together
// with the updated index. On failure the in-memory index is left as it was.
func (s *Store) allocatePage(page *Page) error {
	next := s.index.clone()
	next.LastPID++
	pid := heap.ObjectID(next.LastPID)

	if err := next.insert(page.Lo, pid); err != nil {
		return err
	}

	encoded, err := page.encode()
	if err != nil {
		return fmt.Errorf("encode page %d: %w", pid, err)
	}
	index, err := next.encode()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	batch := map[heap.ObjectID][]byte{
		pid:       encoded,
		s.indexID: index,
	}
	if err := s.heap.WriteBatch(batch); err != nil {
		return fmt.Errorf("commit page %d: %w", pid, err)
	}

	s.index = next
	if s.cache != nil {
		s.cache.Add(pid, encoded)
	}
	return nil
}

func (s *Store) route(key []byte) (heap.ObjectID, error) {
	pid, ok := s.index.route(key)
	if !ok {
		return 0, fmt.Errorf("%w: no page covers key %x", ErrCorrupt, key)
	}
	return pid, nil
}

// loadPage serves pages from the cache when it can. The cache is kept in
// step with every write this store commits, so a cached page is only stale
// if the heap was changed behind the store's back.
func (s *Store) loadPage(pid heap.ObjectID) (*Page, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(pid); ok {
			return decodePage(data)
		}
	}

	data, ok, err := s.heap.Read(pid)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", pid, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingPage, pid)
	}
	if s.cache != nil {
		s.cache.Add(pid, data)
	}
	return decodePage(data)
}

// Get returns the block stored under c. A missing key returns false with a
// nil error. A missing page also returns false, with an ErrMissingPage error.
// Pages held in the page cache are not re-read from the heap, so a page
// removed from the heap by another writer is reported missing only once it
// has left the cache or the store is reopened.
func (s *Store) Get(_ context.Context, c cid.Cid) ([]byte, bool, error) {
	key := c.Bytes()
	pid, err := s.route(key)
	if err != nil {
		return nil, false, err
	}
	page, err := s.loadPage(pid)
	if err != nil {
		return nil, false, err
	}
	value, ok := page.get(key)
	return value, ok, nil
}

func (s *Store) PutKeyed(_ context.Context, c cid.Cid, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return s.mutate(c.Bytes(), data, false)
}

func (s *Store) DeleteBlock(_ context.Context, c cid.Cid) error {
	return s.mutate(c.Bytes(), nil, true)
}

func (s *Store) mutate(key, value []byte, remove bool) error {
	pid, err := s.route(key)
	if err != nil {
		return err
	}
	page, err := s.loadPage(pid)
	if err != nil {
		return err
	}

	if remove {
		page.remove(key)
	} else {
		page.insert(key, value)
	}

	encoded, err := page.encode()
	if err != nil {
		return fmt.Errorf("encode page %d: %w", pid, err)
	}
	if err := s.heap.WriteBatch(map[heap.ObjectID][]byte{pid: encoded}); err != nil {
		if s.cache != nil {
			s.cache.Remove(pid)
		}
		return fmt.Errorf("commit page %d: %w", pid, err)
	}
	if s.cache != nil {
		s.cache.Add(pid, encoded)
	}

	s.logger.Debug("page committed",
		zap.Uint64("page_id", uint64(pid)),
		zap.Int("entries", len(page.KVs)),
		zap.Int("size", len(encoded)),
	)

	return s.maybeCompact()
}

// maybeCompact runs heap maintenance when dead objects outnumber live ones.
func (s *Store) maybeCompact() error {
	stats := s.heap.Stats()
	if stats.DeadObjects <= stats.LiveObjects {
		return nil
	}

	s.logger.Info("compacting heap",
		zap.Uint64("live", stats.LiveObjects),
		zap.Uint64("dead", stats.DeadObjects),
	)
	if err := s.heap.Maintenance(); err != nil {
		return fmt.Errorf("compact heap: %w", err)
	}
	return nil
}

// Compact runs heap maintenance regardless of the live/dead ratio.
func (s *Store) Compact() error {
	if err := s.heap.Maintenance(); err != nil {
		return fmt.Errorf("compact heap: %w", err)
	}
	return nil
}

// Stats returns the heap object counts.
func (s *Store) Stats() heap.Stats {
	return s.heap.Stats()
}

// PageCount returns the number of pages in the index.
func (s *Store) PageCount() int {
	return len(s.index.Pages)
}

// Close closes the underlying heap.
func (s *Store) Close() error {
	return s.heap.Close()
}
