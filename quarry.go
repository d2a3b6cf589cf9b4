package quarry

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/aweris/quarry/internal/chunker"
	"github.com/aweris/quarry/internal/compression"
	"github.com/aweris/quarry/internal/dag"
	"github.com/aweris/quarry/internal/heap"
	"github.com/aweris/quarry/internal/pagestore"
)

// Quarry is a persistent blockstore backed by a page store over a
// log-structured heap.
type Quarry struct {
	pages  *pagestore.Store
	heap   *heap.File
	opts   *OpenOptions
	logger *zap.Logger
}

var _ Store = (*Quarry)(nil)

// Open creates or opens a store in dir.
func Open(dir string, opts ...OpenOption) (*Quarry, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	tag, err := compression.ParseTag(options.Compression)
	if err != nil {
		return nil, err
	}

	h, err := heap.Open(expandPath(dir),
		heap.WithCompression(tag),
		heap.WithSyncWrites(options.SyncWrites),
		heap.WithLogger(options.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open heap: %w", err)
	}

	pages, err := pagestore.Open(h,
		pagestore.WithCacheSize(options.PageCacheSize),
		pagestore.WithLogger(options.Logger),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("open page store: %w", err)
	}

	return &Quarry{
		pages:  pages,
		heap:   h,
		opts:   options,
		logger: options.Logger,
	}, nil
}

func (q *Quarry) Get(ctx context.Context, c cid.Cid) ([]byte, bool, error) {
	return q.pages.Get(ctx, c)
}

func (q *Quarry) PutKeyed(ctx context.Context, c cid.Cid, data []byte) error {
	return q.pages.PutKeyed(ctx, c, data)
}

func (q *Quarry) DeleteBlock(ctx context.Context, c cid.Cid) error {
	return q.pages.DeleteBlock(ctx, c)
}

// Put stores data as a raw block and returns its CID.
func (q *Quarry) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	c, err := dag.LeafCID(data)
	if err != nil {
		return cid.Undef, err
	}
	if err := q.pages.PutKeyed(ctx, c, data); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

// Add chunks r and stores it as a DAG. size is the declared content length
// and only sizes internal buffers.
func (q *Quarry) Add(ctx context.Context, r io.Reader, size int64) (Info, error) {
	return Build(ctx, r, size, q, WithChunkSize(q.opts.ChunkSize), WithLogger(q.logger))
}

// AddFile stores the file at path as a DAG.
func (q *Quarry) AddFile(ctx context.Context, path string) (Info, error) {
	chunks, f, err := chunker.FromFile(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	chunks.SetChunkSize(q.opts.ChunkSize)
	return dag.NewBuilder(chunks, q, dag.WithLogger(q.logger)).Trickle(ctx)
}

// Cat writes the content of the DAG rooted at root to w.
func (q *Quarry) Cat(ctx context.Context, root cid.Cid, w io.Writer) (int64, error) {
	return Cat(ctx, q, root, w)
}

// Verify checks that every block under root matches its CID.
func (q *Quarry) Verify(ctx context.Context, root cid.Cid) error {
	return dag.Verify(ctx, q, root, q.opts.Concurrency)
}

// Stats returns the heap object counts.
func (q *Quarry) Stats() HeapStats {
	return q.pages.Stats()
}

// Compact forces heap maintenance.
func (q *Quarry) Compact() error {
	return q.pages.Compact()
}

// Path returns the heap log path.
func (q *Quarry) Path() string {
	return q.heap.Path()
}

func (q *Quarry) Close() error {
	return q.pages.Close()
}
