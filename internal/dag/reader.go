package dag

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/sourcegraph/conc/pool"
)

// DefaultConcurrency is the number of hashing workers Verify uses when the
// caller passes zero.
const DefaultConcurrency = 4

// Getter fetches a block by CID.
type Getter interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, bool, error)
}

// Read writes the content under root to w, following links in order.
// Nested dag-cbor links are descended into.
func Read(ctx context.Context, store Getter, root cid.Cid, w io.Writer) (int64, error) {
	var written int64
	err := walk(ctx, store, root, func(_ cid.Cid, data []byte) error {
		n, err := w.Write(data)
		written += int64(n)
		return err
	})
	return written, err
}

// Verify fetches every block under root and checks that each one hashes to
// its CID. Fetches happen on the calling goroutine; hashing is spread over
// concurrency workers.
func Verify(ctx context.Context, store Getter, root cid.Cid, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	p := pool.New().WithMaxGoroutines(concurrency).WithContext(ctx).WithCancelOnError()
	walkErr := walk(ctx, store, root, func(c cid.Cid, data []byte) error {
		if !c.Defined() {
			return nil
		}
		p.Go(func(ctx context.Context) error {
			return checkBlock(c, data)
		})
		return nil
	})
	if err := p.Wait(); err != nil {
		return err
	}
	return walkErr
}

func checkBlock(c cid.Cid, data []byte) error {
	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("hash %s: %w", c, err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("%w: %s hashes to %s", ErrDigestMismatch, c, got)
	}
	return nil
}

// walk visits leaf blocks under c in link order.
func walk(ctx context.Context, store Getter, c cid.Cid, visit func(cid.Cid, []byte) error) error {
	data, ok, err := store.Get(ctx, c)
	if err != nil {
		return fmt.Errorf("get %s: %w", c, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, c)
	}

	if c.Type() != cid.DagCBOR {
		return visit(c, data)
	}

	if err := checkBlock(c, data); err != nil {
		return err
	}
	node, err := DecodeNode(data)
	if err != nil {
		return fmt.Errorf("node %s: %w", c, err)
	}
	if len(node.Data) > 0 {
		if err := visit(cid.Undef, node.Data); err != nil {
			return err
		}
	}
	for _, link := range node.Links {
		if err := walk(ctx, store, link.Cid, visit); err != nil {
			return err
		}
	}
	return nil
}
