package asset

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/tagview/tag"
)

// ErrUnknownType is returned by Decode for an unregistered type name.
var ErrUnknownType = errors.New("unknown asset type")

// DecodeFunc materializes the record h as a Go value.
type DecodeFunc func(r *tag.Reader, h tag.TagHash) (any, error)

// Types maps asset type names to decoders. The zero value is not usable;
// use NewTypes or DefaultTypes.
type Types struct {
	mu    sync.RWMutex
	types map[string]DecodeFunc
}

// NewTypes returns an empty registry.
func NewTypes() *Types {
	return &Types{types: make(map[string]DecodeFunc)}
}

// DefaultTypes returns a registry with the built-in types:
//
//	technique  Technique
//	meta       tag.EntryMeta
//	raw        the record bytes
func DefaultTypes() *Types {
	t := NewTypes()
	RegisterStruct[Technique](t, "technique")
	t.Register("meta", func(r *tag.Reader, h tag.TagHash) (any, error) {
		meta, ok := r.Store().EntryMeta(h)
		if !ok {
			return nil, fmt.Errorf("%w: %s", tag.ErrTagNotFound, h)
		}
		return meta, nil
	})
	t.Register("raw", func(r *tag.Reader, h tag.TagHash) (any, error) {
		return r.Store().Bytes(h)
	})
	return t
}

// Register adds or replaces the decoder for name.
func (t *Types) Register(name string, fn DecodeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.types[name] = fn
}

// RegisterStruct registers a decoder that reads the record as T.
func RegisterStruct[T any](t *Types, name string) {
	t.Register(name, func(r *tag.Reader, h tag.TagHash) (any, error) {
		v, err := tag.ReadTagStruct[T](r, h)
		if err != nil {
			return nil, err
		}
		return &v, nil
	})
}

// Names returns the registered type names, sorted.
func (t *Types) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.types))
	for n := range t.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decode reads h as the named type.
func (t *Types) Decode(r *tag.Reader, name string, h tag.TagHash) (any, error) {
	t.mu.RLock()
	fn, ok := t.types[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return fn(r, h)
}
