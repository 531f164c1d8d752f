package tag

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Layout descriptors
// ---------------------------------------------------------------------------

// FieldKind classifies how a value is laid out on disk.
type FieldKind uint8

const (
	KindScalar  FieldKind = iota // fixed-width number
	KindArray                    // [N]T, inline
	KindTable                    // []T, count + offset + array header
	KindStruct                   // nested inline struct
	KindPointer                  // *T, relative 64-bit offset
	KindCustom                   // Unmarshaler (tag refs, resource pointers, markers)
)

var kindNames = [...]string{"scalar", "array", "table", "struct", "pointer", "custom"}

func (k FieldKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("FieldKind(%d)", k)
}

// DefaultArrayHeader is the size of the header that precedes every
// variable-length array's elements.
const DefaultArrayHeader = 16

// Schema is the layout of one Go type. Schemas are built once per type and
// shared; they must not be modified.
type Schema struct {
	Type     reflect.Type
	Kind     FieldKind
	Size     int  // on-disk width in bytes
	Declared bool // Size came from a Layout annotation
	Class    uint32
	Fields   []Field // KindStruct
	Elem     *Schema // KindArray, KindTable, KindPointer
	Len      int     // KindArray
}

// Field is one member of a struct schema.
type Field struct {
	Name    string
	Index   int
	Offset  int
	Header  int  // KindTable only
	Padding bool // unexported or blank; occupies space but is not decoded
	Schema  *Schema
}

// End returns the first byte after the field.
func (f Field) End() int { return f.Offset + f.Schema.Size }

// Layout is a zero-size marker whose struct tag carries struct-level
// metadata:
//
//	_ tag.Layout `tag:"size=0x90,class=0x80806D44"`
type Layout struct{}

// Unmarshaler is implemented by types that decode themselves. The cursor is
// positioned at the field; the reader moves it to the end of the field
// afterwards.
type Unmarshaler interface {
	UnmarshalTag(s *Session, c *Cursor) error
}

// Sized reports the on-disk width of an Unmarshaler. It must be implemented
// on the value receiver.
type Sized interface {
	TagSize() int
}

var (
	layoutType      = reflect.TypeOf(Layout{})
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	sizedType       = reflect.TypeOf((*Sized)(nil)).Elem()
)

// ---------------------------------------------------------------------------
// Schema cache
// ---------------------------------------------------------------------------

var (
	schemaCache sync.Map // reflect.Type -> *Schema
	schemaMu    sync.Mutex
)

// SchemaOf returns the layout of t, building and caching it on first use.
func SchemaOf(t reflect.Type) (*Schema, error) {
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema), nil
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema), nil
	}
	b := &schemaBuilder{building: make(map[reflect.Type]*Schema)}
	s, err := b.build(t)
	if err != nil {
		return nil, err
	}
	for typ, built := range b.building {
		schemaCache.Store(typ, built)
	}
	return s, nil
}

// SchemaFor is SchemaOf for a type parameter.
func SchemaFor[T any]() (*Schema, error) {
	return SchemaOf(reflect.TypeOf((*T)(nil)).Elem())
}

// SizeOf returns the on-disk width of T.
func SizeOf[T any]() (int, error) {
	s, err := SchemaFor[T]()
	if err != nil {
		return 0, err
	}
	return s.Size, nil
}

type schemaBuilder struct {
	building map[reflect.Type]*Schema
}

func (b *schemaBuilder) build(t reflect.Type) (*Schema, error) {
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema), nil
	}
	if s, ok := b.building[t]; ok {
		return s, nil
	}

	if reflect.PointerTo(t).Implements(unmarshalerType) {
		if !t.Implements(sizedType) {
			return nil, fmt.Errorf("%w: %s implements Unmarshaler but not Sized", ErrUnsupportedType, t)
		}
		size := reflect.Zero(t).Interface().(Sized).TagSize()
		s := &Schema{Type: t, Kind: KindCustom, Size: size}
		b.building[t] = s
		return s, nil
	}

	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return b.scalar(t, 1), nil
	case reflect.Int16, reflect.Uint16:
		return b.scalar(t, 2), nil
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return b.scalar(t, 4), nil
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return b.scalar(t, 8), nil

	case reflect.Array:
		s := &Schema{Type: t, Kind: KindArray, Len: t.Len()}
		b.building[t] = s
		elem, err := b.build(t.Elem())
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		s.Size = elem.Size * t.Len()
		return s, nil

	case reflect.Slice:
		s := &Schema{Type: t, Kind: KindTable, Size: 16}
		b.building[t] = s
		elem, err := b.build(t.Elem())
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil

	case reflect.Pointer:
		s := &Schema{Type: t, Kind: KindPointer, Size: 8}
		b.building[t] = s
		elem, err := b.build(t.Elem())
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil

	case reflect.Struct:
		return b.structSchema(t)
	}

	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, t, t.Kind())
}

func (b *schemaBuilder) scalar(t reflect.Type, size int) *Schema {
	s := &Schema{Type: t, Kind: KindScalar, Size: size}
	b.building[t] = s
	return s
}

func (b *schemaBuilder) structSchema(t reflect.Type) (*Schema, error) {
	s := &Schema{Type: t, Kind: KindStruct}
	b.building[t] = s

	next := 0
	end := 0
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		opts, err := parseTag(sf.Tag.Get("tag"))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, sf.Name, err)
		}

		if sf.Type == layoutType {
			if v, ok := opts["size"]; ok {
				s.Size, s.Declared = int(v), true
			}
			if v, ok := opts["class"]; ok {
				s.Class = uint32(v)
			}
			continue
		}
		if _, skip := opts["-"]; skip {
			continue
		}

		fs, err := b.build(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, sf.Name, err)
		}
		f := Field{
			Name:    sf.Name,
			Index:   i,
			Offset:  next,
			Padding: !sf.IsExported(),
			Schema:  fs,
		}
		if v, ok := opts["offset"]; ok {
			f.Offset = int(v)
		}
		if fs.Kind == KindTable {
			f.Header = DefaultArrayHeader
			if v, ok := opts["header"]; ok {
				f.Header = int(v)
			}
		}
		next = f.End()
		if next > end {
			end = next
		}
		if !f.Padding {
			s.Fields = append(s.Fields, f)
		}
	}

	if s.Declared {
		if end > s.Size {
			return nil, fmt.Errorf("%w: %s declares size 0x%X but its fields end at 0x%X",
				ErrStructSizeMismatch, t, s.Size, end)
		}
	} else {
		s.Size = end
	}
	return s, nil
}

// parseTag splits `offset=0x20,header=16` into numeric options. A bare "-"
// marks the field as ignored.
func parseTag(tag string) (map[string]int64, error) {
	opts := make(map[string]int64)
	if tag == "" {
		return opts, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "-" {
			opts["-"] = 0
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed layout option %q", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("layout option %s: %w", k, err)
		}
		switch k = strings.TrimSpace(k); k {
		case "offset", "size", "class", "header":
			opts[k] = n
		default:
			return nil, fmt.Errorf("unknown layout option %q", k)
		}
	}
	return opts, nil
}

// Describe renders a schema as an indented layout listing.
func (s *Schema) Describe() string {
	var b strings.Builder
	s.describe(&b, 0, make(map[*Schema]bool))
	return b.String()
}

func (s *Schema) describe(b *strings.Builder, indent int, seen map[*Schema]bool) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s %s size=0x%X", pad, s.Type, s.Kind, s.Size)
	if s.Class != 0 {
		fmt.Fprintf(b, " class=0x%08X", s.Class)
	}
	b.WriteByte('\n')
	if seen[s] {
		return
	}
	seen[s] = true
	for _, f := range s.Fields {
		fmt.Fprintf(b, "%s  0x%04X %s", pad, f.Offset, f.Name)
		if f.Schema.Kind == KindTable {
			fmt.Fprintf(b, " (header %d)", f.Header)
		}
		b.WriteByte('\n')
		if f.Schema.Kind == KindStruct || f.Schema.Elem != nil {
			target := f.Schema
			if target.Elem != nil {
				target = target.Elem
			}
			if target.Kind == KindStruct {
				target.describe(b, indent+2, seen)
			}
		}
	}
}
