package store

import (
	"errors"
	"sync"

	"github.com/chazu/tagview/tag"
)

// Set unions several stores. Lookups are routed by the package id encoded
// in the hash; stores added later win when two cover the same record.
type Set struct {
	mu      sync.RWMutex
	members []tag.Enumerable
	byPkg   map[uint16][]tag.Enumerable
	hash64  map[uint64]tag.TagHash
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		byPkg:  make(map[uint16][]tag.Enumerable),
		hash64: make(map[uint64]tag.TagHash),
	}
}

// Add indexes s by the package ids of its records and merges its hash64
// table.
func (u *Set) Add(s tag.Enumerable) {
	pkgs := make(map[uint16]bool)
	for _, meta := range s.Entries() {
		pkgs[meta.Hash.PkgID()] = true
	}
	rows := s.Hash64Table()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.members = append(u.members, s)
	for id := range pkgs {
		u.byPkg[id] = append([]tag.Enumerable{s}, u.byPkg[id]...)
	}
	for _, e := range rows {
		u.hash64[e.Hash64] = e.Hash32
	}
}

// Len returns the number of member stores.
func (u *Set) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.members)
}

func (u *Set) candidates(h tag.TagHash) []tag.Enumerable {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.byPkg[h.PkgID()]
}

func (u *Set) Bytes(h tag.TagHash) ([]byte, error) {
	for _, s := range u.candidates(h) {
		b, err := s.Bytes(h)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, tag.ErrTagNotFound) {
			return nil, err
		}
	}
	return nil, notFound(h)
}

func (u *Set) Bytes64(h uint64) ([]byte, error) {
	h32, ok := u.ResolveHash64(h)
	if !ok {
		return nil, unresolved(h)
	}
	return u.Bytes(h32)
}

func (u *Set) ResolveHash64(h uint64) (tag.TagHash, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	h32, ok := u.hash64[h]
	return h32, ok
}

func (u *Set) EntryMeta(h tag.TagHash) (tag.EntryMeta, bool) {
	for _, s := range u.candidates(h) {
		if meta, ok := s.EntryMeta(h); ok {
			return meta, true
		}
	}
	return tag.EntryMeta{}, false
}

// Entries lists every record once, ordered by hash.
func (u *Set) Entries() []tag.EntryMeta {
	u.mu.RLock()
	members := append([]tag.Enumerable(nil), u.members...)
	u.mu.RUnlock()

	seen := make(map[tag.TagHash]int)
	var out []tag.EntryMeta
	for _, s := range members {
		for _, meta := range s.Entries() {
			if i, ok := seen[meta.Hash]; ok {
				out[i] = meta
				continue
			}
			seen[meta.Hash] = len(out)
			out = append(out, meta)
		}
	}
	sortEntries(out)
	return out
}

func (u *Set) Hash64Table() []tag.Hash64Entry {
	u.mu.RLock()
	out := make([]tag.Hash64Entry, 0, len(u.hash64))
	for h64, h32 := range u.hash64 {
		out = append(out, tag.Hash64Entry{Hash64: h64, Hash32: h32})
	}
	u.mu.RUnlock()
	sortHash64(out)
	return out
}

// Close closes every member that holds resources.
func (u *Set) Close() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var errs []error
	for _, s := range u.members {
		if err := Close(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
