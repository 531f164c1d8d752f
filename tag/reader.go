package tag

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"fortio.org/safecast"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tagview.tag")

// DefaultMaxDepth bounds pointer and tag-reference nesting.
const DefaultMaxDepth = 64

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader materializes typed values from records. It holds no per-read state
// and is safe for concurrent use.
type Reader struct {
	store     Store
	endian    Endian
	resources *ResourceRegistry
	maxDepth  int
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithEndian sets the byte order of records opened through the store.
func WithEndian(e Endian) ReaderOption {
	return func(r *Reader) { r.endian = e }
}

// WithResources sets the registry used for pointer-with-class fields.
func WithResources(reg *ResourceRegistry) ReaderOption {
	return func(r *Reader) { r.resources = reg }
}

// WithMaxDepth sets the nesting limit.
func WithMaxDepth(n int) ReaderOption {
	return func(r *Reader) { r.maxDepth = n }
}

// NewReader creates a Reader resolving references through store.
func NewReader(store Store, opts ...ReaderOption) *Reader {
	r := &Reader{
		store:    store,
		endian:   LittleEndian,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resources == nil {
		r.resources = NewResourceRegistry()
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	return r
}

// Store returns the backing store.
func (r *Reader) Store() Store { return r.store }

// Endian returns the byte order used for records opened by hash.
func (r *Reader) Endian() Endian { return r.endian }

// Resources returns the resource registry.
func (r *Reader) Resources() *ResourceRegistry { return r.resources }

// Read decodes the value at the cursor into v, which must be a non-nil
// pointer.
func (r *Reader) Read(c *Cursor, v any) error {
	s := &Session{r: r, hash: TagHashNone}
	return s.Decode(c, v)
}

// ReadTagStruct opens the record for h and decodes it into v.
func (r *Reader) ReadTagStruct(h TagHash, v any) error {
	s := &Session{r: r, depth: -1, hash: TagHashNone}
	return s.ReadTag(h, v)
}

// ReadTag64Struct opens the record for a 64-bit hash and decodes it into v.
func (r *Reader) ReadTag64Struct(h uint64, v any) error {
	s := &Session{r: r, depth: -1, hash: TagHashNone}
	return s.ReadTag64(h, v)
}

// Read decodes a T at the cursor.
func Read[T any](r *Reader, c *Cursor) (T, error) {
	var v T
	err := r.Read(c, &v)
	return v, err
}

// ReadTagStruct decodes the record for h as a T.
func ReadTagStruct[T any](r *Reader, h TagHash) (T, error) {
	var v T
	err := r.ReadTagStruct(h, &v)
	return v, err
}

// LoadTag decodes the record for h and wraps it with its origin hash.
func LoadTag[T any](r *Reader, h TagHash) (Tag[T], error) {
	v, err := ReadTagStruct[T](r, h)
	if err != nil {
		return Tag[T]{}, err
	}
	return NewTag(h, v), nil
}

// ---------------------------------------------------------------------------
// Session: one recursive read
// ---------------------------------------------------------------------------

// Session tracks nesting depth and the record being read. Unmarshalers use
// it to decode nested values and follow references.
type Session struct {
	r     *Reader
	depth int
	hash  TagHash
}

// Reader returns the reader that owns the session.
func (s *Session) Reader() *Reader { return s.r }

// Store returns the backing store.
func (s *Session) Store() Store { return s.r.store }

// Depth returns the current nesting depth.
func (s *Session) Depth() int { return s.depth }

// Hash returns the record currently being read, or TagHashNone for reads
// that did not start from the store.
func (s *Session) Hash() TagHash { return s.hash }

func (s *Session) enter(c *Cursor) (*Session, error) {
	if s.depth+1 > s.r.maxDepth {
		return nil, readErr(ErrDepthExceeded, c, "limit %d", s.r.maxDepth)
	}
	return &Session{r: s.r, depth: s.depth + 1, hash: s.hash}, nil
}

// Decode reads the value at the cursor into v, a non-nil pointer.
func (s *Session) Decode(c *Cursor, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &ReadError{Kind: ErrNotPointer, Type: fmt.Sprintf("%T", v), Offset: int64(c.Pos())}
	}
	return s.DecodeValue(c, rv.Elem())
}

// DecodeValue reads into an addressable reflect.Value.
func (s *Session) DecodeValue(c *Cursor, v reflect.Value) error {
	schema, err := SchemaOf(v.Type())
	if err != nil {
		return &ReadError{Kind: kindFromSchemaErr(err), Type: v.Type().String(), Offset: int64(c.Pos()), Hash: s.hash, Err: err}
	}
	if err := s.decode(c, schema, v); err != nil {
		return annotate(err, v.Type().String(), "", s.hash)
	}
	return nil
}

// ReadTag opens the record for h through the store and decodes it into v.
func (s *Session) ReadTag(h TagHash, v any) error {
	if h.IsNone() {
		return &ReadError{Kind: ErrTagNotFound, Type: fmt.Sprintf("%T", v), Hash: h, Err: errors.New("hash is none")}
	}
	child, err := s.enter(nil)
	if err != nil {
		return annotate(err, fmt.Sprintf("%T", v), "", h)
	}
	data, err := s.r.store.Bytes(h)
	if err != nil {
		return storeErr(err, h, v)
	}
	child.hash = h
	return child.decodeRecord(h, data, v)
}

// ReadTag64 opens a record by 64-bit hash and decodes it into v.
func (s *Session) ReadTag64(h uint64, v any) error {
	child, err := s.enter(nil)
	if err != nil {
		return annotate(err, fmt.Sprintf("%T", v), "", TagHashNone)
	}
	h32, ok := s.r.store.ResolveHash64(h)
	if !ok {
		return &ReadError{Kind: ErrHash64Unresolved, Type: fmt.Sprintf("%T", v), Hash: TagHashNone,
			Err: fmt.Errorf("hash64 %s", Hash64(h))}
	}
	data, err := s.r.store.Bytes64(h)
	if err != nil {
		return storeErr(err, h32, v)
	}
	child.hash = h32
	return child.decodeRecord(h32, data, v)
}

// Open fetches the record for h and returns a session scoped to it with a
// cursor at its start.
func (s *Session) Open(h TagHash) (*Session, *Cursor, error) {
	if h.IsNone() {
		return nil, nil, &ReadError{Kind: ErrTagNotFound, Hash: h, Err: errors.New("hash is none")}
	}
	child, err := s.enter(nil)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.r.store.Bytes(h)
	if err != nil {
		return nil, nil, storeErr(err, h, nil)
	}
	child.hash = h
	return child, NewCursor(data, s.r.endian), nil
}

func (s *Session) decodeRecord(h TagHash, data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &ReadError{Kind: ErrNotPointer, Type: fmt.Sprintf("%T", v), Hash: h}
	}
	t := rv.Elem().Type()
	schema, err := SchemaOf(t)
	if err != nil {
		return &ReadError{Kind: kindFromSchemaErr(err), Type: t.String(), Hash: h, Err: err}
	}
	if len(data) < schema.Size {
		return &ReadError{Kind: ErrStructSizeMismatch, Type: t.String(), Hash: h,
			Err: fmt.Errorf("record is %d bytes, layout needs %d", len(data), schema.Size)}
	}
	if schema.Class != 0 {
		if meta, ok := s.r.store.EntryMeta(h); ok && meta.Reference != 0 && meta.Reference != schema.Class {
			return &ReadError{Kind: ErrInvalidDiscriminant, Type: t.String(), Hash: h,
				Err: fmt.Errorf("record class 0x%08X, layout expects 0x%08X", meta.Reference, schema.Class)}
		}
	}
	log.Debugf("reading %s as %s (%d bytes)", h, t, len(data))
	c := NewCursor(data, s.r.endian)
	if err := s.decode(c, schema, rv.Elem()); err != nil {
		return annotate(err, t.String(), "", h)
	}
	return nil
}

func storeErr(err error, h TagHash, v any) error {
	typ := ""
	if v != nil {
		typ = fmt.Sprintf("%T", v)
	}
	kind := ErrIO
	switch {
	case errors.Is(err, ErrTagNotFound):
		kind = ErrTagNotFound
	case errors.Is(err, ErrHash64Unresolved):
		kind = ErrHash64Unresolved
	}
	return &ReadError{Kind: kind, Type: typ, Hash: h, Err: err}
}

func kindFromSchemaErr(err error) error {
	if errors.Is(err, ErrStructSizeMismatch) {
		return ErrStructSizeMismatch
	}
	return ErrUnsupportedType
}

// ---------------------------------------------------------------------------
// Schema-driven decoding
// ---------------------------------------------------------------------------

func (s *Session) decode(c *Cursor, schema *Schema, v reflect.Value) error {
	switch schema.Kind {
	case KindScalar:
		return readScalar(c, v)
	case KindArray:
		return s.decodeArray(c, schema, v)
	case KindStruct:
		return s.decodeStruct(c, schema, v)
	case KindTable:
		return s.decodeTable(c, schema, v, DefaultArrayHeader)
	case KindPointer:
		return s.decodePointer(c, schema, v)
	case KindCustom:
		return s.decodeCustom(c, schema, v)
	}
	return readErr(ErrUnsupportedType, c, "%s", schema.Type)
}

func readScalar(c *Cursor, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := c.U8()
		v.SetBool(b != 0)
		return err
	case reflect.Uint8:
		b, err := c.U8()
		v.SetUint(uint64(b))
		return err
	case reflect.Int8:
		b, err := c.U8()
		v.SetInt(int64(int8(b)))
		return err
	case reflect.Uint16:
		n, err := c.U16()
		v.SetUint(uint64(n))
		return err
	case reflect.Int16:
		n, err := c.U16()
		v.SetInt(int64(int16(n)))
		return err
	case reflect.Uint32:
		n, err := c.U32()
		v.SetUint(uint64(n))
		return err
	case reflect.Int32:
		n, err := c.U32()
		v.SetInt(int64(int32(n)))
		return err
	case reflect.Uint64:
		n, err := c.U64()
		v.SetUint(n)
		return err
	case reflect.Int64:
		n, err := c.U64()
		v.SetInt(int64(n))
		return err
	case reflect.Float32:
		f, err := c.F32()
		v.SetFloat(float64(f))
		return err
	case reflect.Float64:
		f, err := c.F64()
		v.SetFloat(f)
		return err
	}
	return readErr(ErrUnsupportedType, c, "%s", v.Type())
}

func (s *Session) decodeArray(c *Cursor, schema *Schema, v reflect.Value) error {
	start := c.Pos()
	if err := c.need(schema.Size); err != nil {
		return err
	}
	if schema.Elem.Type.Kind() == reflect.Uint8 {
		b, _ := c.Bytes(schema.Len)
		reflect.Copy(v, reflect.ValueOf(b))
		return nil
	}
	stride := schema.Elem.Size
	for i := 0; i < schema.Len; i++ {
		if err := c.Seek(start + i*stride); err != nil {
			return err
		}
		if err := s.decode(c, schema.Elem, v.Index(i)); err != nil {
			return annotate(err, schema.Type.String(), "["+strconv.Itoa(i)+"]", s.hash)
		}
	}
	return c.Seek(start + schema.Size)
}

func (s *Session) decodeStruct(c *Cursor, schema *Schema, v reflect.Value) error {
	start := c.Pos()
	if err := c.need(schema.Size); err != nil {
		return annotate(err, schema.Type.String(), "", s.hash)
	}
	typ := schema.Type.String()
	for _, f := range schema.Fields {
		if err := c.Seek(start + f.Offset); err != nil {
			return annotate(err, typ, f.Name, s.hash)
		}
		fv := v.Field(f.Index)
		var err error
		if f.Schema.Kind == KindTable {
			err = s.decodeTable(c, f.Schema, fv, f.Header)
		} else {
			err = s.decode(c, f.Schema, fv)
		}
		if err != nil {
			return annotate(err, typ, f.Name, s.hash)
		}
		if c.Pos() > start+schema.Size {
			return &ReadError{Kind: ErrStructSizeMismatch, Type: typ, Field: f.Name, Offset: int64(c.Pos()), Hash: s.hash,
				Err: fmt.Errorf("read past declared size 0x%X", schema.Size)}
		}
	}
	return c.Seek(start + schema.Size)
}

// decodeTable reads a variable-length array: a u64 count followed by an i64
// offset measured from the offset field itself. Elements start header bytes
// past the target.
func (s *Session) decodeTable(c *Cursor, schema *Schema, v reflect.Value, header int) error {
	count, err := c.U64()
	if err != nil {
		return err
	}
	offsetAddr := c.Pos()
	offset, err := c.I64()
	if err != nil {
		return err
	}
	after := c.Pos()

	if count == 0 {
		v.Set(reflect.MakeSlice(schema.Type, 0, 0))
		return nil
	}
	n, err := safecast.Conv[int](count)
	if err != nil {
		return readErr(ErrEndOfData, c, "array count %d", count)
	}

	child, err := s.enter(c)
	if err != nil {
		return err
	}
	if err := c.SeekRel(offsetAddr, offset); err != nil {
		return err
	}
	if err := c.Skip(header); err != nil {
		return err
	}
	base := c.Pos()
	stride := schema.Elem.Size
	if stride > 0 && n > c.Remaining()/stride {
		return readErr(ErrEndOfData, c, "array of %d x %d bytes at 0x%X exceeds record", n, stride, base)
	}

	if schema.Elem.Type.Kind() == reflect.Uint8 && schema.Elem.Kind == KindScalar {
		b, _ := c.Bytes(n)
		out := reflect.MakeSlice(schema.Type, n, n)
		reflect.Copy(out, reflect.ValueOf(b))
		v.Set(out)
		return c.Seek(after)
	}

	out := reflect.MakeSlice(schema.Type, n, n)
	for i := 0; i < n; i++ {
		if err := c.Seek(base + i*stride); err != nil {
			return err
		}
		if err := child.decode(c, schema.Elem, out.Index(i)); err != nil {
			return annotate(err, schema.Type.String(), "["+strconv.Itoa(i)+"]", s.hash)
		}
	}
	v.Set(out)
	return c.Seek(after)
}

// decodePointer follows a relative pointer. The target is the pointer
// field's own address plus the stored delta.
func (s *Session) decodePointer(c *Cursor, schema *Schema, v reflect.Value) error {
	addr := c.Pos()
	delta, err := c.I64()
	if err != nil {
		return err
	}
	after := c.Pos()
	if IsNullOffset(delta) {
		v.SetZero()
		return nil
	}

	child, err := s.enter(c)
	if err != nil {
		return err
	}
	if err := c.SeekRel(addr, delta); err != nil {
		return err
	}
	target := reflect.New(schema.Elem.Type)
	if err := child.decode(c, schema.Elem, target.Elem()); err != nil {
		return err
	}
	v.Set(target)
	return c.Seek(after)
}

func (s *Session) decodeCustom(c *Cursor, schema *Schema, v reflect.Value) error {
	start := c.Pos()
	if err := c.need(schema.Size); err != nil {
		return err
	}
	u := v.Addr().Interface().(Unmarshaler)
	if err := u.UnmarshalTag(s, c); err != nil {
		return err
	}
	if c.Pos() > start+schema.Size {
		return &ReadError{Kind: ErrStructSizeMismatch, Type: schema.Type.String(), Offset: int64(c.Pos()), Hash: s.hash,
			Err: fmt.Errorf("decoder consumed %d bytes, declared %d", c.Pos()-start, schema.Size)}
	}
	return c.Seek(start + schema.Size)
}

// IsNullOffset reports whether a stored relative offset means "no target".
func IsNullOffset(delta int64) bool {
	return delta == 0 || delta == math.MaxInt64
}
