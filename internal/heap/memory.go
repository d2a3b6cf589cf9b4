package heap

import (
	"maps"
	"sync"
)

// Memory is an in-process Heap. Dead objects are counted but not retained.
type Memory struct {
	mu       sync.Mutex
	objects  map[ObjectID][]byte
	dead     uint64
	failNext error
	closed   bool

	maintenanceRuns int
}

// NewMemory creates an empty in-memory heap.
func NewMemory() *Memory {
	return &Memory{objects: make(map[ObjectID][]byte)}
}

func (m *Memory) Read(id ObjectID) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	data, ok := m.objects[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *Memory) WriteBatch(batch map[ObjectID][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}

	for id, data := range batch {
		if _, exists := m.objects[id]; exists {
			m.dead++
		}
		if data == nil {
			delete(m.objects, id)
			continue
		}
		m.objects[id] = append([]byte(nil), data...)
	}
	return nil
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{LiveObjects: uint64(len(m.objects)), DeadObjects: m.dead}
}

func (m *Memory) Maintenance() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.dead = 0
	m.maintenanceRuns++
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailNextBatch makes the next WriteBatch return err without applying
// any of its entries.
func (m *Memory) FailNextBatch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// MaintenanceRuns reports how many times Maintenance has completed.
func (m *Memory) MaintenanceRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maintenanceRuns
}

// Snapshot returns a copy of every live object.
func (m *Memory) Snapshot() map[ObjectID][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.objects)
}
