package blockstore

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
)

// Memory is an in-memory Blockstore. It is safe for concurrent use.
type Memory struct {
	blocks map[string][]byte
	mu     sync.RWMutex
}

// NewMemory creates an empty in-memory blockstore.
func NewMemory() *Memory {
	return &Memory{blocks: make(map[string][]byte)}
}

func key(c cid.Cid) string { return c.KeyString() }

func (m *Memory) Get(_ context.Context, c cid.Cid) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blocks[key(c)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *Memory) PutKeyed(_ context.Context, c cid.Cid, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[key(c)] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) DeleteBlock(_ context.Context, c cid.Cid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, key(c))
	return nil
}

// Len returns the number of stored blocks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
