package pagestore

import (
	"go.uber.org/zap"

	"github.com/aweris/quarry/internal/heap"
)

// IndexObjectID is the heap object reserved for the page index.
const IndexObjectID heap.ObjectID = 1

// DefaultCacheSize is the number of decoded page payloads kept in memory.
const DefaultCacheSize = 64

// Options configures a Store.
type Options struct {
	IndexObjectID heap.ObjectID
	CacheSize     int
	Logger        *zap.Logger
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		IndexObjectID: IndexObjectID,
		CacheSize:     DefaultCacheSize,
		Logger:        zap.NewNop(),
	}
}

// WithIndexObjectID overrides the heap object that holds the index.
func WithIndexObjectID(id heap.ObjectID) Option {
	return func(o *Options) { o.IndexObjectID = id }
}

// WithCacheSize sets the page cache capacity. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.CacheSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
