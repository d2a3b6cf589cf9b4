// Package chunker splits a byte stream into fixed-size chunks.
//
// A Reader yields a lazy, finite, forward-only sequence. Every chunk has the
// configured size except possibly the last one. Once the sequence ends it
// stays ended.
//
// Read errors from the underlying source end the sequence exactly like a
// clean end of input does. Bytes returned together with an error are still
// yielded as a final chunk. Callers that need to tell truncation from
// exhaustion must compare the bytes consumed against the expected size
// themselves.
package chunker

import (
	"fmt"
	"io"
	"iter"
	"math"
	"os"
)

// DefaultChunkSize is 256 KiB.
const DefaultChunkSize = 1 << 18

// Reader produces chunks from an underlying io.Reader.
type Reader struct {
	inner       io.Reader
	chunkSize   int
	contentSize uint64
	remaining   uint64
	done        bool
}

// New creates a Reader with the default chunk size.
func New(r io.Reader) *Reader {
	return NewWithChunkSize(DefaultChunkSize, r)
}

// NewWithChunkSize creates a Reader with the given chunk size.
func NewWithChunkSize(size int, r io.Reader) *Reader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Reader{inner: r, chunkSize: size}
}

// FromFile opens path and sets the content size from its length. The caller
// owns the returned file and closes it after iteration.
func FromFile(path string) (*Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	r := New(f)
	r.SetContentSize(uint64(info.Size()))
	return r, f, nil
}

// SetChunkSize changes the chunk size. Call it before iterating.
func (r *Reader) SetChunkSize(size int) {
	if size > 0 {
		r.chunkSize = size
	}
}

// SetContentSize declares the total number of bytes the source will yield.
// It only feeds SizeHint.
func (r *Reader) SetContentSize(size uint64) {
	r.contentSize = size
	r.remaining = size
}

// ChunkSize returns the configured chunk size.
func (r *Reader) ChunkSize() int { return r.chunkSize }

// Next returns the next chunk, or false once the source is exhausted or a
// read fails.
func (r *Reader) Next() ([]byte, bool) {
	if r.done {
		return nil, false
	}

	chunk := make([]byte, r.chunkSize)
	n, err := r.inner.Read(chunk)
	if n == 0 {
		r.finish()
		return nil, false
	}
	if err != nil && err != io.EOF {
		r.finish()
		return chunk[:n], true
	}

	if uint64(n) >= r.remaining {
		r.remaining = 0
	} else {
		r.remaining -= uint64(n)
	}
	return chunk[:n], true
}

func (r *Reader) finish() {
	r.done = true
	r.remaining = 0
}

// All returns the remaining chunks as a sequence.
func (r *Reader) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			chunk, ok := r.Next()
			if !ok || !yield(chunk) {
				return
			}
		}
	}
}

// SizeHint estimates the number of chunks left. It is derived from the
// declared content size and is not authoritative.
func (r *Reader) SizeHint() int {
	if r.done || r.remaining == 0 {
		return 0
	}
	return int(min(r.remaining/uint64(r.chunkSize), math.MaxInt))
}
