package tag

import (
	"fmt"
	"math"
)

// Reference is implemented by values that were reached through another
// record or a pointer, so tree walkers can show where they came from.
type Reference interface {
	Origin() TagHash
	Target() any
}

// ---------------------------------------------------------------------------
// Tag[T]: 32-bit tag reference
// ---------------------------------------------------------------------------

// Tag is a reference to another record, decoded as T. The zero value is an
// absent reference.
type Tag[T any] struct {
	Value T
	hash  TagHash
}

// NewTag wraps an already decoded value.
func NewTag[T any](h TagHash, v T) Tag[T] {
	return Tag[T]{Value: v, hash: h}
}

// Hash returns the referenced record, or TagHashNone.
func (t Tag[T]) Hash() TagHash {
	if t.hash == 0 {
		return TagHashNone
	}
	return t.hash
}

// IsSome reports whether the reference points anywhere.
func (t Tag[T]) IsSome() bool { return t.hash.IsSome() }

// Get returns the value and whether it is present.
func (t Tag[T]) Get() (T, bool) { return t.Value, t.IsSome() }

func (t Tag[T]) Origin() TagHash { return t.Hash() }
func (t Tag[T]) Target() any     { return t.Value }

// TagSize implements Sized.
func (Tag[T]) TagSize() int { return 4 }

// UnmarshalTag implements Unmarshaler.
func (t *Tag[T]) UnmarshalTag(s *Session, c *Cursor) error {
	h, err := c.TagHash()
	if err != nil {
		return err
	}
	*t = Tag[T]{hash: TagHashNone}
	if h.IsNone() {
		return nil
	}
	if err := s.ReadTag(h, &t.Value); err != nil {
		return err
	}
	t.hash = h
	return nil
}

// ---------------------------------------------------------------------------
// WideTag[T]: 16-byte reference, 32- or 64-bit
// ---------------------------------------------------------------------------

// WideTag is a reference stored as a WideHash. After decoding, Hash returns
// the canonical 32-bit hash even when the record was referenced by its
// 64-bit hash.
type WideTag[T any] struct {
	Value T
	Wide  WideHash
	hash  TagHash
}

// Hash returns the resolved 32-bit hash, or TagHashNone.
func (t WideTag[T]) Hash() TagHash {
	if t.hash == 0 {
		return TagHashNone
	}
	return t.hash
}

// IsSome reports whether the reference resolved to a record.
func (t WideTag[T]) IsSome() bool { return t.hash.IsSome() }

// Get returns the value and whether it is present.
func (t WideTag[T]) Get() (T, bool) { return t.Value, t.IsSome() }

func (t WideTag[T]) Origin() TagHash { return t.Hash() }
func (t WideTag[T]) Target() any     { return t.Value }

// TagSize implements Sized.
func (WideTag[T]) TagSize() int { return WideHashSize }

// UnmarshalTag implements Unmarshaler.
func (t *WideTag[T]) UnmarshalTag(s *Session, c *Cursor) error {
	w, err := c.WideHash()
	if err != nil {
		return err
	}
	*t = WideTag[T]{Wide: w, hash: TagHashNone}
	if !w.IsSome() {
		return nil
	}
	h, ok := w.Resolve(s.Store())
	if !ok {
		return readErr(ErrHash64Unresolved, c, "hash64 %s", w.Hash64)
	}
	if h.IsNone() {
		return nil
	}
	if err := s.ReadTag(h, &t.Value); err != nil {
		return err
	}
	t.hash = h
	return nil
}

// ---------------------------------------------------------------------------
// DynamicTag: reference whose type is chosen by the record's class
// ---------------------------------------------------------------------------

// DynamicTag is a 32-bit tag reference decoded by the resource registry
// entry matching the record's reference class.
type DynamicTag struct {
	hash  TagHash
	Class uint32
	Value any
}

// Hash returns the referenced record, or TagHashNone.
func (t DynamicTag) Hash() TagHash {
	if t.hash == 0 {
		return TagHashNone
	}
	return t.hash
}

func (t DynamicTag) Origin() TagHash { return t.Hash() }
func (t DynamicTag) Target() any     { return t.Value }

// TagSize implements Sized.
func (DynamicTag) TagSize() int { return 4 }

// UnmarshalTag implements Unmarshaler.
func (t *DynamicTag) UnmarshalTag(s *Session, c *Cursor) error {
	h, err := c.TagHash()
	if err != nil {
		return err
	}
	*t = DynamicTag{hash: TagHashNone}
	if h.IsNone() {
		return nil
	}
	meta, ok := s.Store().EntryMeta(h)
	if !ok {
		return &ReadError{Kind: ErrTagNotFound, Offset: int64(c.Pos() - 4), Hash: h, Err: fmt.Errorf("no metadata for %s", h)}
	}
	child, rc, err := s.Open(h)
	if err != nil {
		return err
	}
	v, err := s.Reader().Resources().Resolve(child, rc, meta.Reference)
	if err != nil {
		return err
	}
	t.hash, t.Class, t.Value = h, meta.Reference, v
	return nil
}

// ---------------------------------------------------------------------------
// Resource pointers
// ---------------------------------------------------------------------------

// ResourcePointer is a relative pointer whose target is preceded by a u32
// resource type. The target is decoded by the registry entry for that type.
type ResourcePointer struct {
	Offset int64
	Type   uint32
	Valid  bool
	Value  any
}

func (p ResourcePointer) Origin() TagHash { return TagHashNone }
func (p ResourcePointer) Target() any     { return p.Value }

// TagSize implements Sized.
func (ResourcePointer) TagSize() int { return 8 }

// UnmarshalTag implements Unmarshaler.
func (p *ResourcePointer) UnmarshalTag(s *Session, c *Cursor) error {
	addr := c.Pos()
	d, err := c.I64()
	if err != nil {
		return err
	}
	*p = ResourcePointer{Offset: d, Type: math.MaxUint32}
	if IsNullOffset(d) {
		return nil
	}
	child, err := s.enter(c)
	if err != nil {
		return err
	}
	target, err := addOffset(addr, d)
	if err != nil {
		return readErr(ErrEndOfData, c, "resource offset %d: %v", d, err)
	}
	tc, err := c.Sub(target - 4)
	if err != nil {
		return err
	}
	if p.Type, err = tc.U32(); err != nil {
		return err
	}
	v, err := s.Reader().Resources().Resolve(child, tc, p.Type)
	if err != nil {
		return err
	}
	p.Valid, p.Value = true, v
	return nil
}

// ResourcePointerWithClass is a relative pointer whose target is preceded by
// the resource type, the parent tag and the class id. Dispatch uses the
// class id; data starts after the three fields.
type ResourcePointerWithClass struct {
	Offset int64
	Valid  bool
	Type   uint32
	Parent TagHash
	Class  uint32
	Value  any
}

func (p ResourcePointerWithClass) Origin() TagHash { return p.Parent }
func (p ResourcePointerWithClass) Target() any     { return p.Value }

// TagSize implements Sized.
func (ResourcePointerWithClass) TagSize() int { return 8 }

// UnmarshalTag implements Unmarshaler.
func (p *ResourcePointerWithClass) UnmarshalTag(s *Session, c *Cursor) error {
	addr := c.Pos()
	d, err := c.I64()
	if err != nil {
		return err
	}
	*p = ResourcePointerWithClass{Offset: d, Type: math.MaxUint32, Parent: TagHashNone, Class: math.MaxUint32}
	if IsNullOffset(d) {
		return nil
	}
	child, err := s.enter(c)
	if err != nil {
		return err
	}
	target, err := addOffset(addr, d)
	if err != nil {
		return readErr(ErrEndOfData, c, "resource offset %d: %v", d, err)
	}
	tc, err := c.Sub(target - 4)
	if err != nil {
		return err
	}
	if p.Type, err = tc.U32(); err != nil {
		return err
	}
	if p.Parent, err = tc.TagHash(); err != nil {
		return err
	}
	if p.Class, err = tc.U32(); err != nil {
		return err
	}
	v, err := s.Reader().Resources().Resolve(child, tc, p.Class)
	if err != nil {
		return err
	}
	p.Valid, p.Value = true, v
	return nil
}

// ---------------------------------------------------------------------------
// Markers
// ---------------------------------------------------------------------------

// CafeMarker is a u16 that must read 0xCAFE.
type CafeMarker struct{}

func (CafeMarker) TagSize() int { return 2 }

func (*CafeMarker) UnmarshalTag(_ *Session, c *Cursor) error {
	v, err := c.U16()
	if err != nil {
		return err
	}
	if v != 0xCAFE {
		return readErr(ErrBadMarker, c, "got 0x%04X, want 0xCAFE", v)
	}
	return nil
}

// DeadBeefMarker is a u32 that must read 0xDEADBEEF.
type DeadBeefMarker struct{}

func (DeadBeefMarker) TagSize() int { return 4 }

func (*DeadBeefMarker) UnmarshalTag(_ *Session, c *Cursor) error {
	v, err := c.U32()
	if err != nil {
		return err
	}
	if v != 0xDEADBEEF {
		return readErr(ErrBadMarker, c, "got 0x%08X, want 0xDEADBEEF", v)
	}
	return nil
}
