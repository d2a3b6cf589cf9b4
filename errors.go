package quarry

import (
	"github.com/aweris/quarry/internal/dag"
	"github.com/aweris/quarry/internal/heap"
	"github.com/aweris/quarry/internal/pagestore"
)

var (
	// ErrNotFound is returned when a DAG references a block the store
	// does not hold.
	ErrNotFound = dag.ErrBlockNotFound

	// ErrDigestMismatch is returned by Verify when a block does not hash
	// to its CID.
	ErrDigestMismatch = dag.ErrDigestMismatch

	// ErrMissingPage means the page index references a heap object that
	// does not exist.
	ErrMissingPage = pagestore.ErrMissingPage

	// ErrCorrupt is returned when a persisted index or page cannot be
	// decoded.
	ErrCorrupt = pagestore.ErrCorrupt

	// ErrHeapCorrupt is returned when a heap record fails its checksum.
	ErrHeapCorrupt = heap.ErrCorrupt
)
