package pagestore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Index and page records are encoded field by field in declaration order.
// Byte strings carry a uint32 length prefix and optional values a one-byte
// presence flag. All integers are big-endian.

var (
	ErrCorrupt  = errors.New("pagestore: corrupt record")
	ErrTooLarge = errors.New("pagestore: field too large")
)

// recordWriter keeps the first error it hits and ignores later writes.
type recordWriter struct {
	buf bytes.Buffer
	err error
}

func (w *recordWriter) uint64(v uint64) {
	if w.err != nil {
		return
	}
	binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *recordWriter) bytes(b []byte) {
	if w.err != nil {
		return
	}
	if w.err = checkLength(uint64(len(b))); w.err != nil {
		return
	}
	binary.Write(&w.buf, binary.BigEndian, uint32(len(b)))
	w.buf.Write(b)
}

func (w *recordWriter) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

func checkLength(n uint64) error {
	if n > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	return nil
}

func (w *recordWriter) optionalBytes(b []byte) {
	if w.err != nil {
		return
	}
	if b == nil {
		w.buf.WriteByte(0)
		return
	}
	w.buf.WriteByte(1)
	w.bytes(b)
}

type recordReader struct {
	r *bytes.Reader
}

func newRecordReader(data []byte) *recordReader {
	return &recordReader{r: bytes.NewReader(data)}
}

func (r *recordReader) uint64() (uint64, error) {
	var v uint64
	if err := binary.Read(r.r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *recordReader) bytes() ([]byte, error) {
	var n uint32
	if err := binary.Read(r.r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if int64(n) > int64(r.r.Len()) {
		return nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, r.r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *recordReader) optionalBytes() ([]byte, error) {
	present, err := r.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch present {
	case 0:
		return nil, nil
	case 1:
		return r.bytes()
	default:
		return nil, fmt.Errorf("invalid presence flag %d", present)
	}
}

// count reads an element count and rejects counts that cannot fit in the
// remaining input given at least minSize bytes per element.
func (r *recordReader) count(minSize int) (int, error) {
	n, err := r.uint64()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.r.Len()/minSize) {
		return 0, fmt.Errorf("count %d exceeds remaining input", n)
	}
	return int(n), nil
}

func (r *recordReader) done() error {
	if r.r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.r.Len())
	}
	return nil
}
