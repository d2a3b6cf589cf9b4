package heap

import (
	"go.uber.org/zap"

	"github.com/aweris/quarry/internal/compression"
)

// Options configures a File heap.
type Options struct {
	Compression compression.Tag
	SyncWrites  bool
	Logger      *zap.Logger
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Compression: compression.LZ4,
		SyncWrites:  true,
		Logger:      zap.NewNop(),
	}
}

// WithCompression sets the codec used for newly written payloads.
func WithCompression(tag compression.Tag) Option {
	return func(o *Options) { o.Compression = tag }
}

// WithSyncWrites controls whether every batch is fsynced before
// WriteBatch returns.
func WithSyncWrites(sync bool) Option {
	return func(o *Options) { o.SyncWrites = sync }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
