// Package assettest builds in-memory technique records for tests.
package assettest

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/tagview/store"
	"github.com/chazu/tagview/tag"
)

// Shader slot offsets inside a technique record.
const (
	VertexAt  = 0x70
	PixelAt   = 0x70 + 4*0x90
	ComputeAt = 0x70 + 5*0x90
)

const (
	TechniqueSize = 0x3D0
	TextureSlot   = 3
)

// Hashes of the records Store writes.
var (
	Technique    = tag.NewTagHash(1, 1)
	VertexShader = tag.NewTagHash(1, 2)
	PixelShader  = tag.NewTagHash(1, 3)
	ConstBuffer  = tag.NewTagHash(1, 4)
	ConstData    = tag.NewTagHash(1, 5)
	Sampler      = tag.NewTagHash(1, 6)
	PixelTexture = tag.TagHash(0x80801000)
)

// Record is a little-endian record under construction.
type Record struct{ B []byte }

// NewRecord returns a zeroed record of the given size.
func NewRecord(size int) *Record { return &Record{B: make([]byte, size)} }

func (r *Record) U32(at int, v uint32) { binary.LittleEndian.PutUint32(r.B[at:], v) }
func (r *Record) U64(at int, v uint64) { binary.LittleEndian.PutUint64(r.B[at:], v) }

// Table writes a count/offset pair at `at` and appends a 16-byte header
// plus elems to the end of the record.
func (r *Record) Table(at, count int, elems []byte) {
	target := len(r.B)
	r.U64(at, uint64(count))
	r.U64(at+8, uint64(int64(target-(at+8))))
	r.B = append(r.B, make([]byte, tag.DefaultArrayHeader)...)
	r.B = append(r.B, elems...)
}

// Vec4Bytes encodes vectors as little-endian floats.
func Vec4Bytes(vs ...mgl32.Vec4) []byte {
	var b []byte
	for _, v := range vs {
		for _, f := range v {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	}
	return b
}

// Store holds a technique with a vertex stage that uses inline buffer
// defaults and a pixel stage backed by a constant buffer record.
//
//	vertex: out[1] = c0, buffer [{9,9,9,9}]
//	pixel:  out[0] = c0 + c1, buffer from ConstData [{0,0,0,0},{7,7,7,7}]
func Store() *store.Memory {
	r := NewRecord(TechniqueSize)
	r.U64(0, uint64(TechniqueSize))
	r.U32(0x08, 1)

	r.U32(VertexAt, uint32(VertexShader))
	r.Table(VertexAt+0x20, 4, []byte{0x34, 0x00, 0x44, 0x01})
	r.Table(VertexAt+0x30, 1, Vec4Bytes(mgl32.Vec4{1, 2, 3, 4}))
	r.Table(VertexAt+0x50, 1, Vec4Bytes(mgl32.Vec4{9, 9, 9, 9}))
	r.U32(VertexAt+0x70, math.MaxUint32)

	r.U32(PixelAt, uint32(PixelShader))
	tex := make([]byte, 24)
	binary.LittleEndian.PutUint32(tex[0:], TextureSlot)
	binary.LittleEndian.PutUint32(tex[8:], uint32(PixelTexture))
	binary.LittleEndian.PutUint32(tex[12:], 1)
	r.Table(PixelAt+0x08, 1, tex)
	r.Table(PixelAt+0x20, 7, []byte{0x34, 0x00, 0x34, 0x01, 0x01, 0x44, 0x00})
	r.Table(PixelAt+0x30, 2, Vec4Bytes(mgl32.Vec4{1, 1, 1, 1}, mgl32.Vec4{0.5, 0, 0, 0}))
	wide := make([]byte, 16)
	binary.LittleEndian.PutUint32(wide[0:], uint32(Sampler))
	binary.LittleEndian.PutUint32(wide[4:], 1)
	r.Table(PixelAt+0x40, 1, wide)
	r.U32(PixelAt+0x70, 0)
	r.U32(PixelAt+0x74, uint32(ConstBuffer))

	r.U32(ComputeAt+0x74, math.MaxUint32)

	m := store.NewMemory()
	m.Put(Technique, r.B)
	m.Put(ConstData, Vec4Bytes(mgl32.Vec4{0, 0, 0, 0}, mgl32.Vec4{7, 7, 7, 7}))
	m.SetMeta(tag.EntryMeta{Hash: ConstBuffer, Reference: uint32(ConstData)})
	return m
}
