package tfx

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrNoCatalog = errors.New("extern has no field catalog")
	ErrNoField   = errors.New("extern field not found")
	ErrFieldType = errors.New("extern field type mismatch")
)

// ExternStore is the default ExternSource. Every extern with a catalog
// starts disabled except frame and decorator_wind; enabling one makes its fields readable,
// with catalog defaults until a value is Set. Safe for concurrent use.
type ExternStore struct {
	mu      sync.RWMutex
	enabled [externKindCount]bool
	values  map[externSlot]ExternValue

	used [externKindCount]atomic.Uint64
}

type externSlot struct {
	kind   ExternKind
	offset uint32
}

// NewExternStore returns a store with frame and decorator_wind enabled.
func NewExternStore() *ExternStore {
	s := &ExternStore{values: make(map[externSlot]ExternValue)}
	s.enabled[ExternFrame] = true
	s.enabled[ExternDecoratorWind] = true
	return s
}

// Enable makes kind readable for subsequent evaluations.
func (s *ExternStore) Enable(kind ExternKind) error {
	if !HasCatalog(kind) {
		return fmt.Errorf("%w: %s", ErrNoCatalog, kind)
	}
	s.mu.Lock()
	s.enabled[kind] = true
	s.mu.Unlock()
	return nil
}

// Disable marks kind as not set. Frame cannot be disabled.
func (s *ExternStore) Disable(kind ExternKind) {
	if kind == ExternFrame || !kind.Valid() {
		return
	}
	s.mu.Lock()
	s.enabled[kind] = false
	s.mu.Unlock()
}

// Enabled reports whether kind is currently set.
func (s *ExternStore) Enabled(kind ExternKind) bool {
	if !kind.Valid() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[kind]
}

// Set stores a value for a named field. The value's kind must match the
// catalog.
func (s *ExternStore) Set(kind ExternKind, name string, v ExternValue) error {
	if !HasCatalog(kind) {
		return fmt.Errorf("%w: %s", ErrNoCatalog, kind)
	}
	c := externCatalogs[kind]
	i, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s->%s", ErrNoField, kind, name)
	}
	f := c.fields[i]
	if f.Kind != v.Kind {
		return fmt.Errorf("%w: %s->%s is %s, got %s", ErrFieldType, kind, name, f.Kind, v.Kind)
	}
	s.mu.Lock()
	s.values[externSlot{kind, f.Offset}] = v
	s.mu.Unlock()
	return nil
}

// Reset drops every value set with Set; enabled flags are kept.
func (s *ExternStore) Reset() {
	s.mu.Lock()
	s.values = make(map[externSlot]ExternValue)
	s.mu.Unlock()
}

// Lookup implements ExternLookup.
func (s *ExternStore) Lookup(kind ExternKind, offset uint32, want ValueKind) (ExternValue, ExternStatus) {
	if !HasCatalog(kind) {
		return ExternValue{}, ExternNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled[kind] {
		return ExternValue{}, ExternDisabled
	}
	f, ok := FieldAt(kind, offset)
	if !ok {
		return ExternValue{}, ExternFieldNotFound
	}
	if f.Kind != want {
		return ExternValue{Kind: f.Kind}, ExternInvalidType
	}
	v, ok := s.values[externSlot{kind, offset}]
	if !ok {
		v = f.Default
	}
	if f.Unimplemented {
		return v, ExternUnimplemented
	}
	return v, ExternOK
}

// Extern implements ExternSource.
func (s *ExternStore) Extern(kind ExternKind, offset uint32) (ExternValue, bool) {
	f, ok := FieldAt(kind, offset)
	if !ok {
		return ExternValue{}, false
	}
	v, st := s.Lookup(kind, offset, f.Kind)
	return v, st == ExternOK || st == ExternUnimplemented
}

// RecordUsed implements ExternSource.
func (s *ExternStore) RecordUsed(kind ExternKind) {
	if kind.Valid() {
		s.used[kind].Add(1)
	}
}

// Used returns how many reads of kind have succeeded.
func (s *ExternStore) Used(kind ExternKind) uint64 {
	if !kind.Valid() {
		return 0
	}
	return s.used[kind].Load()
}

// ResetUsed zeroes the usage counters.
func (s *ExternStore) ResetUsed() {
	for i := range s.used {
		s.used[i].Store(0)
	}
}
