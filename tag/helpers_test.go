package tag

import (
	"encoding/binary"
	"fmt"
	"testing"
)

// ---------------------------------------------------------------------------
// Test store
// ---------------------------------------------------------------------------

type stubStore struct {
	records map[TagHash][]byte
	meta    map[TagHash]EntryMeta
	hash64  map[uint64]TagHash
	queries int
}

func newStubStore() *stubStore {
	return &stubStore{
		records: make(map[TagHash][]byte),
		meta:    make(map[TagHash]EntryMeta),
		hash64:  make(map[uint64]TagHash),
	}
}

func (s *stubStore) put(h TagHash, data []byte) {
	s.records[h] = data
}

func (s *stubStore) Bytes(h TagHash) ([]byte, error) {
	s.queries++
	b, ok := s.records[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, h)
	}
	return b, nil
}

func (s *stubStore) Bytes64(h uint64) ([]byte, error) {
	h32, ok := s.ResolveHash64(h)
	if !ok {
		return nil, fmt.Errorf("%w: %016X", ErrHash64Unresolved, h)
	}
	return s.Bytes(h32)
}

func (s *stubStore) ResolveHash64(h uint64) (TagHash, bool) {
	h32, ok := s.hash64[h]
	return h32, ok
}

func (s *stubStore) EntryMeta(h TagHash) (EntryMeta, bool) {
	m, ok := s.meta[h]
	return m, ok
}

// panicStore fails the test on any access.
type panicStore struct{ t *testing.T }

func (p panicStore) Bytes(h TagHash) ([]byte, error) {
	p.t.Fatalf("store queried for %s", h)
	return nil, nil
}

func (p panicStore) Bytes64(h uint64) ([]byte, error) {
	p.t.Fatalf("store queried for hash64 %016X", h)
	return nil, nil
}

func (p panicStore) ResolveHash64(h uint64) (TagHash, bool) {
	p.t.Fatalf("hash64 table queried for %016X", h)
	return TagHashNone, false
}

func (p panicStore) EntryMeta(h TagHash) (EntryMeta, bool) {
	p.t.Fatalf("metadata queried for %s", h)
	return EntryMeta{}, false
}

// ---------------------------------------------------------------------------
// Record builder
// ---------------------------------------------------------------------------

type recordBuilder struct {
	b     []byte
	order binary.ByteOrder
}

func newRecord(size int) *recordBuilder {
	return &recordBuilder{b: make([]byte, size), order: binary.LittleEndian}
}

func (r *recordBuilder) u16(at int, v uint16) *recordBuilder {
	r.order.PutUint16(r.b[at:], v)
	return r
}

func (r *recordBuilder) u32(at int, v uint32) *recordBuilder {
	r.order.PutUint32(r.b[at:], v)
	return r
}

func (r *recordBuilder) u64(at int, v uint64) *recordBuilder {
	r.order.PutUint64(r.b[at:], v)
	return r
}

func (r *recordBuilder) i64(at int, v int64) *recordBuilder {
	return r.u64(at, uint64(v))
}

func (r *recordBuilder) bytes() []byte { return r.b }
