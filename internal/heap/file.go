package heap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/aweris/quarry/internal/compression"
)

// LogName is the name of the heap log inside the heap directory.
const LogName = "heap.log"

// File layout:
//
//	header:  magic (8 bytes)
//	batch:   batchHeader record* batchTrailer
//	record:  recordHeader payload
//
// A batch header carries the record count, the byte length of the records
// that follow, and a checksum over those fields. The trailer sum covers
// every byte from the batch marker through the last payload.
//
// On open, a batch that is cut short by the end of the file is a torn write
// and is truncated away. Any other mismatch is corruption and fails Open.
var fileMagic = [8]byte{'Q', 'R', 'Y', 'H', 'E', 'A', 'P', 2}

const (
	batchMarker  byte = 'B'
	commitMarker byte = 'C'

	flagTombstone uint8 = 1 << 0
)

var errTornBatch = errors.New("heap: torn batch")

type batchHeader struct {
	Marker byte
	Count  uint32
	Length uint64
	Sum    [8]byte
}

func (bh batchHeader) checksum() [8]byte {
	var buf [13]byte
	buf[0] = bh.Marker
	binary.BigEndian.PutUint32(buf[1:5], bh.Count)
	binary.BigEndian.PutUint64(buf[5:13], bh.Length)
	sum := blake3.Sum256(buf[:])

	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

type batchTrailer struct {
	Marker byte
	Sum    [16]byte
}

type recordHeader struct {
	ID     uint64
	Flags  uint8
	Tag    uint8
	Raw    uint32
	Stored uint32
	Sum    [16]byte
}

var (
	batchHeaderSize  = int64(binary.Size(batchHeader{}))
	batchTrailerSize = int64(binary.Size(batchTrailer{}))
	recordHeaderSize = int64(binary.Size(recordHeader{}))
)

// checkLength rejects lengths that do not fit the 32-bit size fields of a
// record header.
func checkLength(n uint64) error {
	if n > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	return nil
}

// location is where the current version of an object lives in the log.
type location struct {
	offset int64
	raw    uint32
	stored uint32
	tag    compression.Tag
	sum    [16]byte
}

type logEntry struct {
	id        ObjectID
	tombstone bool
	loc       location
}

// File is a log-structured Heap backed by a single append-only file.
type File struct {
	dir        string
	path       string
	file       *os.File
	end        int64
	locs       map[ObjectID]location
	dead       uint64
	compressor *compression.Compressor
	opts       *Options
	mu         sync.Mutex
}

// Open opens or creates the heap stored in dir. A log holding a corrupt
// committed batch fails with ErrCorrupt.
func Open(dir string, opts ...Option) (*File, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create heap dir: %w", err)
	}

	compressor, err := compression.NewCompressor(options.Compression)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}

	h := &File{
		dir:        dir,
		path:       filepath.Join(dir, LogName),
		compressor: compressor,
		opts:       options,
	}
	if err := h.load(); err != nil {
		compressor.Close()
		return nil, err
	}
	return h, nil
}

func (h *File) load() error {
	f, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open heap log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat heap log: %w", err)
	}

	size := info.Size()
	if size == 0 {
		if _, err := f.WriteAt(fileMagic[:], 0); err != nil {
			f.Close()
			return fmt.Errorf("write heap header: %w", err)
		}
		size = int64(len(fileMagic))
	}

	var magic [8]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		f.Close()
		return fmt.Errorf("read heap header: %w", err)
	}
	if magic != fileMagic {
		f.Close()
		return fmt.Errorf("%w: bad magic in %s", ErrCorrupt, h.path)
	}

	h.file = f
	h.locs = make(map[ObjectID]location)
	h.dead = 0
	if err := h.replay(size); err != nil {
		f.Close()
		h.file = nil
		return err
	}
	return nil
}

// replay rebuilds the object table from the log and truncates a torn batch
// left behind by an interrupted write.
func (h *File) replay(size int64) error {
	offset := int64(len(fileMagic))
	reader := bufio.NewReader(io.NewSectionReader(h.file, offset, size-offset))

	for {
		entries, n, err := readBatch(reader, offset, size)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errTornBatch) {
			h.opts.Logger.Warn("discarding torn heap batch",
				zap.String("path", h.path),
				zap.Int64("offset", offset),
				zap.Error(err),
			)
			if err := h.file.Truncate(offset); err != nil {
				return fmt.Errorf("truncate heap log: %w", err)
			}
			break
		}
		if err != nil {
			return fmt.Errorf("replay %s: %w", h.path, err)
		}
		h.apply(entries)
		offset += n
	}

	h.end = offset
	h.opts.Logger.Debug("heap replayed",
		zap.String("path", h.path),
		zap.Int("live", len(h.locs)),
		zap.Uint64("dead", h.dead),
	)
	return nil
}

// readBatch reads one committed batch starting at offset in a log of size
// bytes. It returns io.EOF only when the log ends cleanly on a batch
// boundary, and errTornBatch when the batch runs past the end of the log.
func readBatch(r io.Reader, offset, size int64) ([]logEntry, int64, error) {
	hasher := blake3.New()
	tee := io.TeeReader(r, hasher)

	var header batchHeader
	if err := binary.Read(tee, binary.BigEndian, &header); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, 0, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, 0, fmt.Errorf("%w: short header at %d", errTornBatch, offset)
		default:
			return nil, 0, err
		}
	}
	if header.Marker != batchMarker || header.Sum != header.checksum() {
		return nil, 0, fmt.Errorf("%w: bad batch header at %d", ErrCorrupt, offset)
	}
	if header.Length < uint64(header.Count)*uint64(recordHeaderSize) {
		return nil, 0, fmt.Errorf("%w: batch at %d: %d records do not fit %d bytes", ErrCorrupt, offset, header.Count, header.Length)
	}
	if header.Length > uint64(size) || offset+batchHeaderSize+int64(header.Length)+batchTrailerSize > size {
		return nil, 0, fmt.Errorf("%w: batch at %d ends past the log", errTornBatch, offset)
	}

	entries, n, err := readRecords(tee, offset+batchHeaderSize, header.Count)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: batch at %d: %v", ErrCorrupt, offset, err)
	}
	if n != int64(header.Length) {
		return nil, 0, fmt.Errorf("%w: batch at %d: records span %d bytes, header says %d", ErrCorrupt, offset, n, header.Length)
	}

	sum := hasher.Sum(nil)
	var trailer batchTrailer
	if err := binary.Read(r, binary.BigEndian, &trailer); err != nil {
		return nil, 0, fmt.Errorf("%w: batch at %d trailer: %v", ErrCorrupt, offset, err)
	}
	if trailer.Marker != commitMarker || !bytes.Equal(sum[:16], trailer.Sum[:]) {
		return nil, 0, fmt.Errorf("%w: batch at %d fails its checksum", ErrCorrupt, offset)
	}

	return entries, batchHeaderSize + n + batchTrailerSize, nil
}

// readRecords reads count records whose first byte sits at base and returns
// them with the number of bytes consumed.
func readRecords(r io.Reader, base int64, count uint32) ([]logEntry, int64, error) {
	var n int64
	entries := make([]logEntry, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		var rh recordHeader
		if err := binary.Read(r, binary.BigEndian, &rh); err != nil {
			return nil, 0, err
		}
		n += recordHeaderSize

		payloadHasher := blake3.New()
		if _, err := io.CopyN(payloadHasher, r, int64(rh.Stored)); err != nil {
			return nil, 0, err
		}
		if !bytes.Equal(payloadHasher.Sum(nil)[:16], rh.Sum[:]) {
			return nil, 0, fmt.Errorf("object %d checksum mismatch", rh.ID)
		}

		entries = append(entries, logEntry{
			id:        ObjectID(rh.ID),
			tombstone: rh.Flags&flagTombstone != 0,
			loc: location{
				offset: base + n,
				raw:    rh.Raw,
				stored: rh.Stored,
				tag:    compression.Tag(rh.Tag),
				sum:    rh.Sum,
			},
		})
		n += int64(rh.Stored)
	}
	return entries, n, nil
}

func (h *File) apply(entries []logEntry) {
	for _, e := range entries {
		if _, exists := h.locs[e.id]; exists {
			h.dead++
		}
		if e.tombstone {
			delete(h.locs, e.id)
			h.dead++
			continue
		}
		h.locs[e.id] = e.loc
	}
}

// encodeBatch serializes a batch whose first byte lands at base.
func encodeBatch(base int64, records []encodedRecord) ([]byte, []logEntry, error) {
	if err := checkLength(uint64(len(records))); err != nil {
		return nil, nil, fmt.Errorf("record count: %w", err)
	}

	var body bytes.Buffer
	entries := make([]logEntry, 0, len(records))
	for _, rec := range records {
		if err := binary.Write(&body, binary.BigEndian, rec.header); err != nil {
			return nil, nil, err
		}
		entries = append(entries, logEntry{
			id:        ObjectID(rec.header.ID),
			tombstone: rec.header.Flags&flagTombstone != 0,
			loc: location{
				offset: base + batchHeaderSize + int64(body.Len()),
				raw:    rec.header.Raw,
				stored: rec.header.Stored,
				tag:    compression.Tag(rec.header.Tag),
				sum:    rec.header.Sum,
			},
		})
		body.Write(rec.payload)
	}

	header := batchHeader{
		Marker: batchMarker,
		Count:  uint32(len(records)),
		Length: uint64(body.Len()),
	}
	header.Sum = header.checksum()

	var buf bytes.Buffer
	buf.Grow(int(batchHeaderSize) + body.Len() + int(batchTrailerSize))
	if err := binary.Write(&buf, binary.BigEndian, header); err != nil {
		return nil, nil, err
	}
	buf.Write(body.Bytes())

	sum := blake3.Sum256(buf.Bytes())
	trailer := batchTrailer{Marker: commitMarker}
	copy(trailer.Sum[:], sum[:16])
	if err := binary.Write(&buf, binary.BigEndian, trailer); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), entries, nil
}

type encodedRecord struct {
	header  recordHeader
	payload []byte
}

func newRecord(id ObjectID, flags uint8, tag compression.Tag, raw int, payload []byte) (encodedRecord, error) {
	if err := checkLength(uint64(raw)); err != nil {
		return encodedRecord{}, fmt.Errorf("object %d: %w", id, err)
	}
	if err := checkLength(uint64(len(payload))); err != nil {
		return encodedRecord{}, fmt.Errorf("object %d: %w", id, err)
	}

	sum := blake3.Sum256(payload)
	rec := encodedRecord{
		header: recordHeader{
			ID:     uint64(id),
			Flags:  flags,
			Tag:    uint8(tag),
			Raw:    uint32(raw),
			Stored: uint32(len(payload)),
		},
		payload: payload,
	}
	copy(rec.header.Sum[:], sum[:16])
	return rec, nil
}

func (h *File) Read(id ObjectID) ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil, false, ErrClosed
	}

	loc, ok := h.locs[id]
	if !ok {
		return nil, false, nil
	}

	stored, err := h.readStored(loc)
	if err != nil {
		return nil, false, fmt.Errorf("read object %d: %w", id, err)
	}
	data, err := h.compressor.Decompress(stored, loc.tag, int(loc.raw))
	if err != nil {
		return nil, false, fmt.Errorf("%w: object %d: %v", ErrCorrupt, id, err)
	}
	return data, true, nil
}

func (h *File) readStored(loc location) ([]byte, error) {
	stored := make([]byte, loc.stored)
	if _, err := h.file.ReadAt(stored, loc.offset); err != nil {
		return nil, err
	}
	sum := blake3.Sum256(stored)
	if !bytes.Equal(sum[:16], loc.sum[:]) {
		return nil, ErrCorrupt
	}
	return stored, nil
}

func (h *File) WriteBatch(batch map[ObjectID][]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return ErrClosed
	}

	ids := make([]ObjectID, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make([]encodedRecord, 0, len(ids))
	for _, id := range ids {
		data := batch[id]
		if data == nil {
			rec, err := newRecord(id, flagTombstone, compression.None, 0, nil)
			if err != nil {
				return err
			}
			records = append(records, rec)
			continue
		}
		if err := checkLength(uint64(len(data))); err != nil {
			return fmt.Errorf("object %d: %w", id, err)
		}
		stored, tag, err := h.compressor.Compress(data)
		if err != nil {
			return fmt.Errorf("compress object %d: %w", id, err)
		}
		rec, err := newRecord(id, 0, tag, len(data), stored)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	encoded, entries, err := encodeBatch(h.end, records)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	if _, err := h.file.WriteAt(encoded, h.end); err != nil {
		h.rollback()
		return fmt.Errorf("write batch: %w", err)
	}
	if h.opts.SyncWrites {
		if err := h.file.Sync(); err != nil {
			h.rollback()
			return fmt.Errorf("sync batch: %w", err)
		}
	}

	h.end += int64(len(encoded))
	h.apply(entries)
	return nil
}

// rollback drops a partially written batch so it cannot be replayed.
func (h *File) rollback() {
	if err := h.file.Truncate(h.end); err != nil {
		h.opts.Logger.Error("truncate after failed batch", zap.String("path", h.path), zap.Error(err))
	}
}

func (h *File) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{LiveObjects: uint64(len(h.locs)), DeadObjects: h.dead}
}

// Maintenance rewrites the live objects into a fresh log and swaps it in.
// Stored payloads are copied as-is without recompression.
func (h *File) Maintenance() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return ErrClosed
	}
	if h.dead == 0 {
		return nil
	}

	ids := make([]ObjectID, 0, len(h.locs))
	for id := range h.locs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make([]encodedRecord, 0, len(ids))
	for _, id := range ids {
		loc := h.locs[id]
		stored, err := h.readStored(loc)
		if err != nil {
			return fmt.Errorf("copy object %d: %w", id, err)
		}
		rec, err := newRecord(id, 0, loc.tag, int(loc.raw), stored)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	encoded, _, err := encodeBatch(int64(len(fileMagic)), records)
	if err != nil {
		return fmt.Errorf("encode compacted batch: %w", err)
	}

	tmp := h.path + ".compact"
	if err := writeLog(tmp, encoded); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, h.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("swap compacted log: %w", err)
	}

	before := h.dead
	h.file.Close()
	if err := h.load(); err != nil {
		h.file = nil
		return fmt.Errorf("reopen compacted log: %w", err)
	}

	h.opts.Logger.Info("heap compacted",
		zap.String("path", h.path),
		zap.Int("live", len(h.locs)),
		zap.Uint64("reclaimed", before),
	)
	return nil
}

func writeLog(path string, batch []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create compacted log: %w", err)
	}
	if _, err := f.Write(fileMagic[:]); err != nil {
		f.Close()
		return fmt.Errorf("write compacted log: %w", err)
	}
	if _, err := f.Write(batch); err != nil {
		f.Close()
		return fmt.Errorf("write compacted log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync compacted log: %w", err)
	}
	return f.Close()
}

func (h *File) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	h.compressor.Close()
	return err
}

// Path returns the path of the heap log.
func (h *File) Path() string { return h.path }
