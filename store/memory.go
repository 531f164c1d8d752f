package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/tagview/tag"
)

// Memory is a map-backed store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[tag.TagHash][]byte
	meta    map[tag.TagHash]tag.EntryMeta
	hash64  map[uint64]tag.TagHash
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[tag.TagHash][]byte),
		meta:    make(map[tag.TagHash]tag.EntryMeta),
		hash64:  make(map[uint64]tag.TagHash),
	}
}

// Put stores a record. Its metadata is created or its size updated.
func (m *Memory) Put(h tag.TagHash, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[h] = data
	meta := m.meta[h]
	meta.Hash = h
	meta.Size = uint32(len(data))
	m.meta[h] = meta
}

// SetMeta replaces a record's metadata. Hash must be set.
func (m *Memory) SetMeta(meta tag.EntryMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[meta.Hash] = meta
}

// Put64 adds a hash64 table row.
func (m *Memory) Put64(h64 uint64, h tag.TagHash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash64[h64] = h
}

func (m *Memory) Bytes(h tag.TagHash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.records[h]
	if !ok {
		return nil, notFound(h)
	}
	return b, nil
}

func (m *Memory) Bytes64(h uint64) ([]byte, error) {
	h32, ok := m.ResolveHash64(h)
	if !ok {
		return nil, unresolved(h)
	}
	return m.Bytes(h32)
}

func (m *Memory) ResolveHash64(h uint64) (tag.TagHash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h32, ok := m.hash64[h]
	return h32, ok
}

func (m *Memory) EntryMeta(h tag.TagHash) (tag.EntryMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[h]
	return meta, ok
}

// Entries lists metadata for every stored record, ordered by hash.
func (m *Memory) Entries() []tag.EntryMeta {
	m.mu.RLock()
	out := make([]tag.EntryMeta, 0, len(m.records))
	for h := range m.records {
		out = append(out, m.meta[h])
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out
}

// Hash64Table lists the hash64 rows, ordered by 64-bit hash.
func (m *Memory) Hash64Table() []tag.Hash64Entry {
	m.mu.RLock()
	out := make([]tag.Hash64Entry, 0, len(m.hash64))
	for h64, h32 := range m.hash64 {
		out = append(out, tag.Hash64Entry{Hash64: h64, Hash32: h32})
	}
	m.mu.RUnlock()
	sortHash64(out)
	return out
}

// LoadDir reads loose records named "<hash>.bin", where hash is the dump
// form accepted by tag.ParseTagHash. An optional "<hash>.ref" file holds
// the record's reference class in hex. Other files are ignored.
func LoadDir(dir string) (*Memory, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	m := NewMemory()
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".bin" {
			continue
		}
		h, err := tag.ParseTagHash(strings.TrimSuffix(name, ".bin"))
		if err != nil {
			log.Warningf("skipping %s: %s", name, err)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		m.Put(h, data)

		ref, err := os.ReadFile(filepath.Join(dir, strings.TrimSuffix(name, ".bin")+".ref"))
		if err == nil {
			text := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(string(ref))), "0x")
			class, err := strconv.ParseUint(text, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("parsing reference class for %s: %w", h, err)
			}
			meta, _ := m.EntryMeta(h)
			meta.Reference = uint32(class)
			m.SetMeta(meta)
		}
	}
	log.Debugf("loaded %d records from %s", len(m.records), dir)
	return m, nil
}
