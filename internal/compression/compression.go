// Package compression implements the per-record payload codecs used by the
// file heap. Every compressed payload carries a one-byte Tag so readers can
// decode records written under a different configuration.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the algorithm a payload was stored with. Tag values are
// persisted in heap records and must not be renumbered.
type Tag uint8

const (
	None Tag = 0
	LZ4  Tag = 1
	Zstd Tag = 2
)

// minCompressSize is the payload size below which compression is skipped.
const minCompressSize = 128

var errIncompressible = errors.New("compression: incompressible")

func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// ParseTag parses the name of a compression algorithm.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Compressor encodes payloads with a preferred algorithm and decodes
// payloads of any known tag.
type Compressor struct {
	preferred Tag
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCompressor creates a compressor that prefers the given tag.
func NewCompressor(preferred Tag) (*Compressor, error) {
	switch preferred {
	case None, LZ4, Zstd:
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", preferred)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Compressor{
		preferred: preferred,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// Preferred returns the tag used for new payloads.
func (c *Compressor) Preferred() Tag { return c.preferred }

// Compress encodes data with the preferred algorithm. Small or
// incompressible payloads are returned unchanged with the None tag.
func (c *Compressor) Compress(data []byte) ([]byte, Tag, error) {
	if c.preferred == None || len(data) < minCompressSize {
		return data, None, nil
	}

	var (
		compressed []byte
		err        error
	)
	switch c.preferred {
	case LZ4:
		compressed, err = compressLZ4(data)
	case Zstd:
		compressed, err = c.compressZstd(data)
	}
	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, None, err
	}
	return compressed, c.preferred, nil
}

// Decompress reverses Compress. rawSize must match the original length.
func (c *Compressor) Decompress(data []byte, tag Tag, rawSize int) ([]byte, error) {
	switch tag {
	case None:
		if len(data) != rawSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d", len(data), rawSize)
		}
		return data, nil
	case LZ4:
		return decompressLZ4(data, rawSize)
	case Zstd:
		return c.decompressZstd(data, rawSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(data []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, rawSize)
	read, err := lz4.UncompressBlock(data, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
	}
	return destination, nil
}

func (c *Compressor) compressZstd(data []byte) ([]byte, error) {
	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func (c *Compressor) decompressZstd(data []byte, rawSize int) ([]byte, error) {
	result, err := c.decoder.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
	}
	return result, nil
}
