package dag

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
)

// Chunks is a finite sequence of chunks, such as a *chunker.Reader.
type Chunks interface {
	Next() ([]byte, bool)
}

// Putter stores a block under a precomputed CID.
type Putter interface {
	PutKeyed(ctx context.Context, c cid.Cid, data []byte) error
}

// maxLinkHint bounds how many links are preallocated from a size hint.
const maxLinkHint = 1024

type sizeHinter interface {
	SizeHint() int
}

// Builder turns a chunk sequence into a DAG stored in a Putter.
type Builder struct {
	chunks Chunks
	store  Putter
	logger *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a builder that consumes chunks into store.
func NewBuilder(chunks Chunks, store Putter, opts ...BuilderOption) *Builder {
	b := &Builder{chunks: chunks, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Trickle stores every chunk as a raw leaf and then stores one root node
// linking all leaves in order. The first store error aborts the build.
// Leaves stored before the failure are left in place.
func (b *Builder) Trickle(ctx context.Context) (Info, error) {
	capacity := 0
	if h, ok := b.chunks.(sizeHinter); ok {
		capacity = min(max(h.SizeHint(), 0), maxLinkHint)
	}
	root := &Node{Links: make([]Link, 0, capacity)}

	for {
		data, ok := b.chunks.Next()
		if !ok {
			break
		}
		leaf, err := LeafCID(data)
		if err != nil {
			return Info{}, fmt.Errorf("hash leaf %d: %w", len(root.Links), err)
		}
		if err := b.store.PutKeyed(ctx, leaf, data); err != nil {
			return Info{}, fmt.Errorf("store leaf %s: %w", leaf, err)
		}
		root.Links = append(root.Links, NewLink(leaf))
	}

	encoded, err := EncodeNode(root)
	if err != nil {
		return Info{}, fmt.Errorf("encode root: %w", err)
	}
	rootCID, err := NodeCID(encoded)
	if err != nil {
		return Info{}, fmt.Errorf("hash root: %w", err)
	}
	if err := b.store.PutKeyed(ctx, rootCID, encoded); err != nil {
		return Info{}, fmt.Errorf("store root %s: %w", rootCID, err)
	}

	b.logger.Debug("dag built",
		zap.Stringer("root", rootCID),
		zap.Int("leaves", len(root.Links)),
		zap.Int("root_size", len(encoded)),
	)

	return Info{
		Root:     rootCID,
		Leaves:   len(root.Links),
		RootSize: len(encoded),
	}, nil
}
