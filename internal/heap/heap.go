// Package heap defines the object heap the page store is built on and
// provides two backends for it.
//
// A heap maps small numeric object ids to opaque byte payloads. Writes are
// grouped into batches which apply atomically: either every entry of a batch
// becomes visible or none does. Overwriting or deleting an object leaves the
// previous version behind as a dead object until Maintenance reclaims it.
//
// Heaps are not safe for concurrent mutation; callers serialize writes.
package heap

import "errors"

// ObjectID is an opaque handle for a heap object.
type ObjectID uint64

// Stats reports heap-wide object counts.
type Stats struct {
	LiveObjects uint64
	DeadObjects uint64
}

// Heap is the append-only object heap collaborator.
type Heap interface {
	// Read returns the current payload of id, or false if it does not exist.
	Read(id ObjectID) ([]byte, bool, error)

	// WriteBatch atomically applies every entry of batch. A nil value
	// deletes the object.
	WriteBatch(batch map[ObjectID][]byte) error

	// Stats returns live and dead object counts.
	Stats() Stats

	// Maintenance reclaims space held by dead objects.
	Maintenance() error

	Close() error
}

var (
	ErrClosed   = errors.New("heap: closed")
	ErrCorrupt  = errors.New("heap: corrupt record")
	ErrTooLarge = errors.New("heap: object too large")
)
