package tag

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// DefaultOpaqueWindow is how many raw bytes an unregistered resource keeps.
const DefaultOpaqueWindow = 256

// ResourceHandler decodes the resource whose data starts at the cursor.
type ResourceHandler interface {
	ReadResource(s *Session, c *Cursor) (any, error)
}

// ResourceFunc adapts a function to ResourceHandler.
type ResourceFunc func(s *Session, c *Cursor) (any, error)

func (f ResourceFunc) ReadResource(s *Session, c *Cursor) (any, error) { return f(s, c) }

// OpaqueResource is what an unregistered discriminant resolves to: the type
// id, where its data started and a bounded copy of the bytes there.
type OpaqueResource struct {
	Type   uint32
	Offset int
	Data   []byte
}

type resourceEntry struct {
	name    string
	handler ResourceHandler
}

// ResourceRegistry maps discriminants to handlers. It is safe for concurrent
// use; registration normally happens once at startup.
type ResourceRegistry struct {
	mu      sync.RWMutex
	entries map[uint32]resourceEntry
	strict  bool
	window  int
}

// RegistryOption configures a ResourceRegistry.
type RegistryOption func(*ResourceRegistry)

// Strict makes unregistered discriminants fail with ErrInvalidDiscriminant
// instead of resolving to an OpaqueResource.
func Strict() RegistryOption {
	return func(r *ResourceRegistry) { r.strict = true }
}

// OpaqueWindow sets how many bytes an OpaqueResource keeps.
func OpaqueWindow(n int) RegistryOption {
	return func(r *ResourceRegistry) {
		if n >= 0 {
			r.window = n
		}
	}
}

// NewResourceRegistry creates an empty registry.
func NewResourceRegistry(opts ...RegistryOption) *ResourceRegistry {
	r := &ResourceRegistry{
		entries: make(map[uint32]resourceEntry),
		window:  DefaultOpaqueWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds id to a handler, replacing any previous binding.
func (r *ResourceRegistry) Register(id uint32, name string, h ResourceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = resourceEntry{name: name, handler: h}
}

// RegisterStruct registers a handler that decodes T with its schema.
func RegisterStruct[T any](r *ResourceRegistry, id uint32, name string) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	r.Register(id, name, ResourceFunc(func(s *Session, c *Cursor) (any, error) {
		v := reflect.New(t).Elem()
		if err := s.DecodeValue(c, v); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}))
}

// Lookup returns the handler and name bound to id.
func (r *ResourceRegistry) Lookup(id uint32) (ResourceHandler, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.handler, e.name, ok
}

// Name returns the registered name for id, or its hex form.
func (r *ResourceRegistry) Name(id uint32) string {
	if _, name, ok := r.Lookup(id); ok {
		return name
	}
	return fmt.Sprintf("0x%08X", id)
}

// IDs returns the registered discriminants in ascending order.
func (r *ResourceRegistry) IDs() []uint32 {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsStrict reports whether unregistered discriminants are errors.
func (r *ResourceRegistry) IsStrict() bool { return r.strict }

// Resolve decodes the resource at the cursor using the handler for id, or
// the opaque fallback.
func (r *ResourceRegistry) Resolve(s *Session, c *Cursor, id uint32) (any, error) {
	h, _, ok := r.Lookup(id)
	if ok {
		return h.ReadResource(s, c)
	}
	if r.strict {
		return nil, readErr(ErrInvalidDiscriminant, c, "no handler for resource type 0x%08X", id)
	}
	log.Debugf("unregistered resource type 0x%08X at 0x%X", id, c.Pos())
	n := min(r.window, c.Remaining())
	b, _ := c.Bytes(n)
	return OpaqueResource{Type: id, Offset: c.Pos() - n, Data: append([]byte(nil), b...)}, nil
}
