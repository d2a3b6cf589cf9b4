// Package blockstore defines the content-addressed block storage capability.
//
// A Blockstore keeps immutable blocks keyed by CID. Blocks are inserted or
// deleted whole and never modified in place. Implementations provide Get,
// PutKeyed, and DeleteBlock; Has and PutManyKeyed are derived from them.
package blockstore

import (
	"context"
	"iter"

	"github.com/ipfs/go-cid"
)

// Blockstore is the minimal block storage capability.
type Blockstore interface {
	// Get returns the block stored under c, or false if there is none.
	Get(ctx context.Context, c cid.Cid) ([]byte, bool, error)

	// PutKeyed stores data under a precomputed CID.
	PutKeyed(ctx context.Context, c cid.Cid, data []byte) error

	// DeleteBlock removes the block stored under c. Deleting an absent
	// block is not an error.
	DeleteBlock(ctx context.Context, c cid.Cid) error
}

// Buffered is a Blockstore that holds writes until it is told a DAG is
// complete.
type Buffered interface {
	Blockstore

	// Flush persists every buffered block reachable from root.
	Flush(ctx context.Context, root cid.Cid) error
}

// Has reports whether bs holds a block under c.
func Has(ctx context.Context, bs Blockstore, c cid.Cid) (bool, error) {
	_, ok, err := bs.Get(ctx, c)
	return ok, err
}

// PutManyKeyed stores blocks one at a time in sequence order and stops at
// the first error.
func PutManyKeyed(ctx context.Context, bs Blockstore, blocks iter.Seq2[cid.Cid, []byte]) error {
	for c, data := range blocks {
		if err := bs.PutKeyed(ctx, c, data); err != nil {
			return err
		}
	}
	return nil
}
