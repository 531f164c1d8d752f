// Package dump converts materialized records into a neutral tree and
// encodes that tree for display or export.
package dump

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/tag"
)

// Kind classifies a Node.
type Kind string

const (
	KindNil         Kind = "nil"
	KindBool        Kind = "bool"
	KindInt         Kind = "int"
	KindUint        Kind = "uint"
	KindFloat       Kind = "float"
	KindString      Kind = "string"
	KindEnum        Kind = "enum"
	KindBytes       Kind = "bytes"
	KindHash        Kind = "hash"
	KindVector      Kind = "vector"
	KindInstruction Kind = "instruction"
	KindStruct      Kind = "struct"
	KindList        Kind = "list"
	KindMap         Kind = "map"
	KindRef         Kind = "ref"
	KindError       Kind = "error"
	KindOpaque      Kind = "opaque"
)

// Node is one value in a dump tree. Scalars carry Value; structs and maps
// carry Fields; lists carry Elements. Len is the full length of a list,
// map or byte string even when only a prefix is kept.
type Node struct {
	Kind      Kind    `json:"kind" cbor:"1,keyasint" msgpack:"kind"`
	Type      string  `json:"type,omitempty" cbor:"2,keyasint,omitempty" msgpack:"type,omitempty"`
	Value     any     `json:"value,omitempty" cbor:"3,keyasint,omitempty" msgpack:"value,omitempty"`
	Len       int     `json:"len,omitempty" cbor:"4,keyasint,omitempty" msgpack:"len,omitempty"`
	Fields    []Field `json:"fields,omitempty" cbor:"5,keyasint,omitempty" msgpack:"fields,omitempty"`
	Elements  []*Node `json:"elements,omitempty" cbor:"6,keyasint,omitempty" msgpack:"elements,omitempty"`
	Truncated bool    `json:"truncated,omitempty" cbor:"7,keyasint,omitempty" msgpack:"truncated,omitempty"`
}

// Field is a named child of a struct or map node.
type Field struct {
	Name string `json:"name" cbor:"1,keyasint" msgpack:"name"`
	Node *Node  `json:"node" cbor:"2,keyasint" msgpack:"node"`
}

// Field returns the child named name, or nil.
func (n *Node) Field(name string) *Node {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Node
		}
	}
	return nil
}

// Limits applied when building a tree.
const (
	DefaultMaxDepth    = 16
	DefaultMaxElements = 64
	DefaultMaxBytes    = 256
)

// Options bounds the size of a tree. Zero fields take the defaults.
type Options struct {
	MaxDepth    int
	MaxElements int
	MaxBytes    int
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxElements <= 0 {
		o.MaxElements = DefaultMaxElements
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	return o
}

// Builder turns Go values into trees.
type Builder struct {
	opts Options
}

// NewBuilder returns a builder with the given limits.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

// Build converts v with the default limits.
func Build(v any) *Node {
	return NewBuilder(Options{}).Build(v)
}

// Build converts v.
func (b *Builder) Build(v any) *Node {
	return b.value(reflect.ValueOf(v), 0)
}

var (
	tagHashType     = reflect.TypeFor[tag.TagHash]()
	hash64Type      = reflect.TypeFor[tag.Hash64]()
	wideHashType    = reflect.TypeFor[tag.WideHash]()
	vec4Type        = reflect.TypeFor[mgl32.Vec4]()
	mat4Type        = reflect.TypeFor[mgl32.Mat4]()
	instructionType = reflect.TypeFor[tfx.Instruction]()
	layoutType      = reflect.TypeFor[tag.Layout]()
	resPtrType      = reflect.TypeFor[tag.ResourcePointer]()
	resPtrClassType = reflect.TypeFor[tag.ResourcePointerWithClass]()
	errorType       = reflect.TypeFor[error]()
	stringerType    = reflect.TypeFor[fmt.Stringer]()
	referenceType   = reflect.TypeFor[tag.Reference]()
)

func (b *Builder) value(v reflect.Value, depth int) *Node {
	if !v.IsValid() {
		return &Node{Kind: KindNil}
	}
	t := v.Type()
	typ := t.String()

	switch t {
	case tagHashType, hash64Type, wideHashType:
		return &Node{Kind: KindHash, Type: typ, Value: v.Interface().(fmt.Stringer).String()}
	case vec4Type, mat4Type:
		return &Node{Kind: KindVector, Type: typ, Value: floats(v)}
	case instructionType:
		in := v.Interface().(tfx.Instruction)
		return &Node{Kind: KindInstruction, Type: typ, Value: in.Disassemble(nil)}
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return &Node{Kind: KindNil, Type: typ}
		}
		if t.Implements(errorType) {
			return &Node{Kind: KindError, Type: typ, Value: v.Interface().(error).Error()}
		}
		return b.value(v.Elem(), depth)
	}

	if t.Implements(errorType) && v.CanInterface() {
		return &Node{Kind: KindError, Type: typ, Value: v.Interface().(error).Error()}
	}
	if t.Kind() == reflect.Struct && t.Implements(referenceType) && t != resPtrType && t != resPtrClassType {
		return b.reference(v, depth)
	}

	switch v.Kind() {
	case reflect.Bool:
		return &Node{Kind: KindBool, Type: typ, Value: v.Bool()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t.Implements(stringerType) {
			return &Node{Kind: KindEnum, Type: typ, Value: v.Interface().(fmt.Stringer).String()}
		}
		return &Node{Kind: KindInt, Type: typ, Value: v.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if t.Implements(stringerType) {
			return &Node{Kind: KindEnum, Type: typ, Value: v.Interface().(fmt.Stringer).String()}
		}
		return &Node{Kind: KindUint, Type: typ, Value: v.Uint()}
	case reflect.Float32, reflect.Float64:
		return &Node{Kind: KindFloat, Type: typ, Value: floatValue(v.Float())}
	case reflect.String:
		return &Node{Kind: KindString, Type: typ, Value: v.String()}
	}

	if depth >= b.opts.MaxDepth {
		return &Node{Kind: KindOpaque, Type: typ, Truncated: true}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return b.bytes(v, typ)
		}
		return b.list(v, typ, depth)
	case reflect.Map:
		return b.mapNode(v, typ, depth)
	case reflect.Struct:
		return b.structNode(v, typ, depth)
	}
	return &Node{Kind: KindOpaque, Type: typ}
}

func (b *Builder) reference(v reflect.Value, depth int) *Node {
	ref := v.Interface().(tag.Reference)
	n := &Node{Kind: KindRef, Type: v.Type().String(), Value: ref.Origin().String()}
	if ref.Origin().IsSome() {
		n.Elements = []*Node{b.value(reflect.ValueOf(ref.Target()), depth+1)}
	}
	return n
}

func (b *Builder) bytes(v reflect.Value, typ string) *Node {
	n := &Node{Kind: KindBytes, Type: typ, Len: v.Len()}
	keep := min(v.Len(), b.opts.MaxBytes)
	buf := make([]byte, keep)
	for i := range keep {
		buf[i] = byte(v.Index(i).Uint())
	}
	n.Value = hex.EncodeToString(buf)
	n.Truncated = keep < v.Len()
	return n
}

func (b *Builder) list(v reflect.Value, typ string, depth int) *Node {
	n := &Node{Kind: KindList, Type: typ, Len: v.Len()}
	keep := min(v.Len(), b.opts.MaxElements)
	n.Elements = make([]*Node, keep)
	for i := range keep {
		n.Elements[i] = b.value(v.Index(i), depth+1)
	}
	n.Truncated = keep < v.Len()
	return n
}

func (b *Builder) mapNode(v reflect.Value, typ string, depth int) *Node {
	n := &Node{Kind: KindMap, Type: typ, Len: v.Len()}
	type entry struct {
		name string
		val  reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{fmt.Sprint(iter.Key().Interface()), iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	keep := min(len(entries), b.opts.MaxElements)
	for _, e := range entries[:keep] {
		n.Fields = append(n.Fields, Field{Name: e.name, Node: b.value(e.val, depth+1)})
	}
	n.Truncated = keep < len(entries)
	return n
}

func (b *Builder) structNode(v reflect.Value, typ string, depth int) *Node {
	n := &Node{Kind: KindStruct, Type: typ}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Type == layoutType {
			continue
		}
		n.Fields = append(n.Fields, Field{Name: sf.Name, Node: b.value(v.Field(i), depth+1)})
	}
	return n
}

// floatValue keeps finite values as numbers and spells out the rest, since
// JSON has no NaN or infinity.
func floatValue(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func floats(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = floatValue(v.Index(i).Float())
	}
	return out
}
