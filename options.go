package quarry

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aweris/quarry/internal/chunker"
	"github.com/aweris/quarry/internal/dag"
	"github.com/aweris/quarry/internal/pagestore"
)

const (
	DefaultChunkSize     = chunker.DefaultChunkSize
	DefaultPageCacheSize = pagestore.DefaultCacheSize
)

// OpenOptions configures a Quarry store.
type OpenOptions struct {
	Compression   string
	SyncWrites    bool
	PageCacheSize int
	ChunkSize     int
	Concurrency   int
	Logger        *zap.Logger
}

// OpenOption is a functional option for configuring Open.
type OpenOption func(*OpenOptions)

func defaultOptions() *OpenOptions {
	return &OpenOptions{
		Compression:   "lz4",
		SyncWrites:    true,
		PageCacheSize: DefaultPageCacheSize,
		ChunkSize:     DefaultChunkSize,
		Concurrency:   dag.DefaultConcurrency,
		Logger:        zap.NewNop(),
	}
}

// WithCompression sets the heap payload codec: "none", "lz4" or "zstd".
func WithCompression(name string) OpenOption {
	return func(o *OpenOptions) { o.Compression = name }
}

// WithSyncWrites controls whether each heap batch is fsynced.
func WithSyncWrites(sync bool) OpenOption {
	return func(o *OpenOptions) { o.SyncWrites = sync }
}

// WithPageCacheSize sets how many pages are cached in memory.
func WithPageCacheSize(n int) OpenOption {
	return func(o *OpenOptions) {
		if n >= 0 {
			o.PageCacheSize = n
		}
	}
}

// WithChunkSize sets the chunk size used by Add and Build.
func WithChunkSize(size int) OpenOption {
	return func(o *OpenOptions) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithConcurrency sets the number of hashing workers used by Verify.
func WithConcurrency(n int) OpenOption {
	return func(o *OpenOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OpenOption {
	return func(o *OpenOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// DefaultDataDir returns the directory stores live in when none is given.
func DefaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// DefaultConfigDir returns the directory config.yaml is read from.
func DefaultConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// xdgDir resolves the quarry directory under an XDG base directory, falling
// back to homeRel under the user's home.
func xdgDir(env, homeRel string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, "quarry")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, homeRel, "quarry")
	}
	return ".quarry"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
