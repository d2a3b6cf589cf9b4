package quarry

import (
	"context"
	"io"
	"iter"

	"github.com/ipfs/go-cid"

	"github.com/aweris/quarry/internal/blockstore"
	"github.com/aweris/quarry/internal/chunker"
	"github.com/aweris/quarry/internal/dag"
	"github.com/aweris/quarry/internal/heap"
)

// Store is the content-addressed block storage capability.
// Re-exported from internal/blockstore for convenience.
type Store = blockstore.Blockstore

// Buffered is a Store that must be told when a DAG is complete.
type Buffered = blockstore.Buffered

// MemoryStore is an in-memory Store.
type MemoryStore = blockstore.Memory

// Info describes a DAG built by Build or Add.
type Info = dag.Info

// Node is a DAG descriptor.
type Node = dag.Node

// Link references a child block from a Node.
type Link = dag.Link

// HeapStats reports live and dead heap objects.
type HeapStats = heap.Stats

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return blockstore.NewMemory()
}

// Has reports whether store holds a block under c.
func Has(ctx context.Context, store Store, c cid.Cid) (bool, error) {
	return blockstore.Has(ctx, store, c)
}

// PutManyKeyed stores each block in order.
func PutManyKeyed(ctx context.Context, store Store, blocks iter.Seq2[cid.Cid, []byte]) error {
	return blockstore.PutManyKeyed(ctx, store, blocks)
}

// Build chunks r and stores it in store as a DAG with a single root linking
// every chunk. Options other than WithChunkSize and WithLogger are ignored.
//
// A read error from r ends the input early without being reported, so a
// failing reader produces a DAG of the bytes read so far.
func Build(ctx context.Context, r io.Reader, size int64, store Store, opts ...OpenOption) (Info, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	chunks := chunker.NewWithChunkSize(options.ChunkSize, r)
	if size > 0 {
		chunks.SetContentSize(uint64(size))
	}
	return dag.NewBuilder(chunks, store, dag.WithLogger(options.Logger)).Trickle(ctx)
}

// Cat writes the content of the DAG rooted at root to w.
func Cat(ctx context.Context, store Store, root cid.Cid, w io.Writer) (int64, error) {
	return dag.Read(ctx, store, root, w)
}

// DecodeNode parses a stored DAG-CBOR root.
func DecodeNode(data []byte) (*Node, error) {
	return dag.DecodeNode(data)
}
