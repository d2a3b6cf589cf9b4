package pagestore

import (
	"bytes"
	"fmt"
	"slices"
)

type kv struct {
	Key   []byte
	Value []byte
}

// Page holds the blocks whose keys fall in [Lo, next page's Lo). Hi is
// persisted but not used for routing. Pages never split or merge, so a
// single page can grow without bound.
type Page struct {
	Lo  []byte
	Hi  []byte
	KVs []kv
}

func (p *Page) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(p.KVs, key, func(e kv, key []byte) int {
		return bytes.Compare(e.Key, key)
	})
}

func (p *Page) get(key []byte) ([]byte, bool) {
	i, found := p.search(key)
	if !found {
		return nil, false
	}
	return p.KVs[i].Value, true
}

// insert sets key to value and returns the previous value, if any.
func (p *Page) insert(key, value []byte) ([]byte, bool) {
	i, found := p.search(key)
	if found {
		prev := p.KVs[i].Value
		p.KVs[i].Value = value
		return prev, true
	}
	p.KVs = slices.Insert(p.KVs, i, kv{Key: key, Value: value})
	return nil, false
}

// remove deletes key and returns its value, if any.
func (p *Page) remove(key []byte) ([]byte, bool) {
	i, found := p.search(key)
	if !found {
		return nil, false
	}
	prev := p.KVs[i].Value
	p.KVs = slices.Delete(p.KVs, i, i+1)
	return prev, true
}

func (p *Page) encode() ([]byte, error) {
	var w recordWriter
	w.bytes(p.Lo)
	w.optionalBytes(p.Hi)
	w.uint64(uint64(len(p.KVs)))
	for _, e := range p.KVs {
		w.bytes(e.Key)
		w.bytes(e.Value)
	}
	return w.finish()
}

func decodePage(data []byte) (*Page, error) {
	r := newRecordReader(data)
	p := &Page{}

	var err error
	if p.Lo, err = r.bytes(); err != nil {
		return nil, fmt.Errorf("%w: page low bound: %v", ErrCorrupt, err)
	}
	if p.Hi, err = r.optionalBytes(); err != nil {
		return nil, fmt.Errorf("%w: page high bound: %v", ErrCorrupt, err)
	}

	n, err := r.count(8)
	if err != nil {
		return nil, fmt.Errorf("%w: page: %v", ErrCorrupt, err)
	}
	p.KVs = make([]kv, 0, n)
	for i := 0; i < n; i++ {
		key, err := r.bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: page key %d: %v", ErrCorrupt, i, err)
		}
		value, err := r.bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: page value %d: %v", ErrCorrupt, i, err)
		}
		if i > 0 && bytes.Compare(p.KVs[i-1].Key, key) >= 0 {
			return nil, fmt.Errorf("%w: page keys out of order at %d", ErrCorrupt, i)
		}
		p.KVs = append(p.KVs, kv{Key: key, Value: value})
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("%w: page: %v", ErrCorrupt, err)
	}
	return p, nil
}
