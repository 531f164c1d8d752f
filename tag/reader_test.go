package tag

import (
	"errors"
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentinel struct {
	Magic uint32
}

type scenarioRecord struct {
	FileSize uint64
	A        Tag[sentinel]
	_        [4]byte
	Items    []uint32
}

// ---------------------------------------------------------------------------
// Record scenario: {file_size, a, items}
// ---------------------------------------------------------------------------

func TestReadScenarioRecord(t *testing.T) {
	const (
		recordHash   = TagHash(0x80801000)
		sentinelHash = TagHash(0x80801001)
	)
	st := newStubStore()
	st.put(sentinelHash, newRecord(4).u32(0, 0xDEADC0DE).bytes())

	// [size:8][tag:4][pad:4][count:8][ptr:8][array header:16][3 x u32]
	rec := newRecord(60).
		u64(0, 0x0123456789ABCDEF).
		u32(8, uint32(sentinelHash)).
		u64(16, 3).
		i64(24, 8).
		u32(48, 11).u32(52, 22).u32(56, 33)
	st.put(recordHash, rec.bytes())

	r := NewReader(st)
	got, err := ReadTagStruct[scenarioRecord](r, recordHash)
	require.NoError(t, err)

	assert.Equal(t, uint64(0x0123456789ABCDEF), got.FileSize)
	assert.True(t, got.A.IsSome())
	assert.Equal(t, sentinelHash, got.A.Hash())
	assert.Equal(t, uint32(0xDEADC0DE), got.A.Value.Magic)
	assert.Equal(t, []uint32{11, 22, 33}, got.Items)
}

// ---------------------------------------------------------------------------
// Relative pointers
// ---------------------------------------------------------------------------

type offsetProbe struct {
	Lead uint64
	P    *uint32
}

func TestRelativePointerOffsetLaw(t *testing.T) {
	r := NewReader(newStubStore())

	t.Run("forward", func(t *testing.T) {
		// Field at A=8, delta 24, target 32.
		rec := newRecord(40).u64(0, 7).i64(8, 24).u32(32, 0xA11CE)
		got, err := Read[offsetProbe](r, NewCursor(rec.bytes(), LittleEndian))
		require.NoError(t, err)
		require.NotNil(t, got.P)
		assert.Equal(t, uint32(0xA11CE), *got.P)
	})

	t.Run("backward", func(t *testing.T) {
		// Struct at 16, field at A=24, delta -20, target 4.
		rec := newRecord(40).u32(4, 0xB0B).i64(24, -20)
		c := NewCursor(rec.bytes(), LittleEndian)
		require.NoError(t, c.Seek(16))
		got, err := Read[offsetProbe](r, c)
		require.NoError(t, err)
		require.NotNil(t, got.P)
		assert.Equal(t, uint32(0xB0B), *got.P)
		assert.Equal(t, 32, c.Pos(), "cursor ends after the struct")
	})

	t.Run("null", func(t *testing.T) {
		for _, d := range []int64{0, math.MaxInt64} {
			rec := newRecord(16).i64(8, d)
			got, err := Read[offsetProbe](r, NewCursor(rec.bytes(), LittleEndian))
			require.NoError(t, err)
			assert.Nil(t, got.P, "delta %d", d)
		}
	})

	t.Run("out of record", func(t *testing.T) {
		rec := newRecord(16).i64(8, 1000)
		_, err := Read[offsetProbe](r, NewCursor(rec.bytes(), LittleEndian))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEndOfData)
	})
}

// ---------------------------------------------------------------------------
// Null tag references never reach the store
// ---------------------------------------------------------------------------

type nullProbe struct {
	A Tag[sentinel]
	B WideTag[sentinel]
	C DynamicTag
}

func TestNullReferencesDoNotQueryStore(t *testing.T) {
	r := NewReader(panicStore{t})
	for _, none := range []uint32{0, math.MaxUint32} {
		rec := newRecord(24).
			u32(0, none).
			u32(4, none).u32(8, 1).u64(12, math.MaxUint64).
			u32(20, none)
		got, err := Read[nullProbe](r, NewCursor(rec.bytes(), LittleEndian))
		require.NoError(t, err)
		assert.False(t, got.A.IsSome())
		assert.Equal(t, TagHashNone, got.A.Hash())
		assert.Equal(t, sentinel{}, got.A.Value)
		assert.False(t, got.B.IsSome())
		assert.Nil(t, got.C.Value)
	}
}

// ---------------------------------------------------------------------------
// Variable-length arrays
// ---------------------------------------------------------------------------

type pair struct {
	A uint32
	B uint16
	_ [2]byte
}

type pairTable struct {
	Pairs []pair
}

func TestArrayCountFidelity(t *testing.T) {
	r := NewReader(newStubStore())
	for _, n := range []int{0, 1, 2, 7} {
		// offset field at 8, delta 8: header at 16, elements at 32.
		rec := newRecord(32 + n*8).u64(0, uint64(n)).i64(8, 8)
		for i := 0; i < n; i++ {
			rec.u32(32+i*8, uint32(100+i)).u16(32+i*8+4, uint16(i))
		}
		c := NewCursor(rec.bytes(), LittleEndian)
		got, err := Read[pairTable](r, c)
		require.NoError(t, err, "n=%d", n)
		require.Len(t, got.Pairs, n)
		require.NotNil(t, got.Pairs)
		for i, p := range got.Pairs {
			assert.Equal(t, uint32(100+i), p.A)
			assert.Equal(t, uint16(i), p.B)
		}
		assert.Equal(t, 16, c.Pos(), "cursor restored after the field")
	}
}

func TestArrayCountZeroDoesNotDereference(t *testing.T) {
	r := NewReader(newStubStore())
	rec := newRecord(16).u64(0, 0).i64(8, math.MaxInt64)
	got, err := Read[pairTable](r, NewCursor(rec.bytes(), LittleEndian))
	require.NoError(t, err)
	assert.Empty(t, got.Pairs)
}

type headerless struct {
	Values []uint16 `tag:"header=0"`
}

func TestArrayHeaderOverride(t *testing.T) {
	r := NewReader(newStubStore())
	rec := newRecord(20).u64(0, 2).i64(8, 8).u16(16, 5).u16(18, 6)
	got, err := Read[headerless](r, NewCursor(rec.bytes(), LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, []uint16{5, 6}, got.Values)
}

func TestArrayElementFailureFailsWholeArray(t *testing.T) {
	r := NewReader(newStubStore())
	// Second element's pointer escapes the record.
	type holder struct{ Items []*uint32 }
	rec := newRecord(48).u64(0, 2).i64(8, 8).i64(32, 8).i64(40, 9999)
	got, err := Read[holder](r, NewCursor(rec.bytes(), LittleEndian))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndOfData)
	assert.Nil(t, got.Items)
}

func TestArrayCountLargerThanRecord(t *testing.T) {
	r := NewReader(newStubStore())
	rec := newRecord(40).u64(0, 1<<40).i64(8, 8)
	_, err := Read[pairTable](r, NewCursor(rec.bytes(), LittleEndian))
	assert.ErrorIs(t, err, ErrEndOfData)
}

// ---------------------------------------------------------------------------
// Endianness
// ---------------------------------------------------------------------------

type scalars struct {
	U8  uint8
	I8  int8
	U16 uint16
	I16 int16
	U32 uint32
	I32 int32
	U64 uint64
	I64 int64
	F32 float32
	F64 float64
}

func TestEndiannessConsistency(t *testing.T) {
	raw := make([]byte, 42)
	for i := range raw {
		raw[i] = byte(i*7 + 3)
	}
	r := NewReader(newStubStore())

	for _, e := range []Endian{LittleEndian, BigEndian} {
		order := e.ByteOrder()
		got, err := Read[scalars](r, NewCursor(raw, e))
		require.NoError(t, err)

		assert.Equal(t, raw[0], got.U8)
		assert.Equal(t, int8(raw[1]), got.I8)
		assert.Equal(t, order.Uint16(raw[2:]), got.U16)
		assert.Equal(t, int16(order.Uint16(raw[4:])), got.I16)
		assert.Equal(t, order.Uint32(raw[6:]), got.U32)
		assert.Equal(t, int32(order.Uint32(raw[10:])), got.I32)
		assert.Equal(t, order.Uint64(raw[14:]), got.U64)
		assert.Equal(t, int64(order.Uint64(raw[22:])), got.I64)
		assert.Equal(t, math.Float32frombits(order.Uint32(raw[30:])), got.F32)
		assert.Equal(t, math.Float64frombits(order.Uint64(raw[34:])), got.F64)
	}

	le, _ := Read[scalars](r, NewCursor(raw, LittleEndian))
	be, _ := Read[scalars](r, NewCursor(raw, BigEndian))
	assert.Equal(t, le.U32, bits.ReverseBytes32(be.U32))
	assert.Equal(t, le.U64, bits.ReverseBytes64(be.U64))
}

// ---------------------------------------------------------------------------
// Tag records
// ---------------------------------------------------------------------------

type classed struct {
	_     Layout `tag:"size=0x10,class=0x80801234"`
	Value uint32
	Next  uint32 `tag:"offset=0x8"`
}

func TestReadTagStructChecks(t *testing.T) {
	const h = TagHash(0x80802000)

	t.Run("ok", func(t *testing.T) {
		st := newStubStore()
		st.put(h, newRecord(16).u32(0, 1).u32(8, 2).bytes())
		st.meta[h] = EntryMeta{Hash: h, Reference: 0x80801234, Size: 16}
		got, err := ReadTagStruct[classed](NewReader(st), h)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), got.Value)
		assert.Equal(t, uint32(2), got.Next)
	})

	t.Run("short record", func(t *testing.T) {
		st := newStubStore()
		st.put(h, make([]byte, 12))
		_, err := ReadTagStruct[classed](NewReader(st), h)
		assert.ErrorIs(t, err, ErrStructSizeMismatch)
	})

	t.Run("class mismatch", func(t *testing.T) {
		st := newStubStore()
		st.put(h, make([]byte, 16))
		st.meta[h] = EntryMeta{Hash: h, Reference: 0x80809999}
		_, err := ReadTagStruct[classed](NewReader(st), h)
		assert.ErrorIs(t, err, ErrInvalidDiscriminant)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadTagStruct[classed](NewReader(newStubStore()), h)
		assert.ErrorIs(t, err, ErrTagNotFound)
		var re *ReadError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, h, re.Hash)
	})

	t.Run("store failure", func(t *testing.T) {
		st := failingStore{err: errors.New("disk on fire")}
		_, err := ReadTagStruct[classed](NewReader(st), h)
		assert.ErrorIs(t, err, ErrIO)
		assert.Equal(t, ErrIO, KindOf(err))
	})

	t.Run("none hash", func(t *testing.T) {
		_, err := ReadTagStruct[classed](NewReader(panicStore{t}), TagHashNone)
		assert.ErrorIs(t, err, ErrTagNotFound)
	})
}

type failingStore struct{ err error }

func (f failingStore) Bytes(TagHash) ([]byte, error)        { return nil, f.err }
func (f failingStore) Bytes64(uint64) ([]byte, error)       { return nil, f.err }
func (f failingStore) ResolveHash64(uint64) (TagHash, bool) { return TagHashNone, false }
func (f failingStore) EntryMeta(TagHash) (EntryMeta, bool)  { return EntryMeta{}, false }

func TestLoadTag(t *testing.T) {
	const h = TagHash(0x80802001)
	st := newStubStore()
	st.put(h, newRecord(4).u32(0, 42).bytes())
	got, err := LoadTag[sentinel](NewReader(st), h)
	require.NoError(t, err)
	assert.Equal(t, h, got.Hash())
	v, ok := got.Get()
	assert.True(t, ok)
	assert.Equal(t, uint32(42), v.Magic)
}

// ---------------------------------------------------------------------------
// Wide and dynamic references
// ---------------------------------------------------------------------------

type wideHolder struct {
	W WideTag[sentinel]
}

func TestWideTag(t *testing.T) {
	const h = TagHash(0x80803000)
	st := newStubStore()
	st.put(h, newRecord(4).u32(0, 7).bytes())
	st.hash64[0x1122334455667788] = h
	r := NewReader(st)

	t.Run("hash32", func(t *testing.T) {
		rec := newRecord(16).u32(0, uint32(h)).u32(4, 1).u64(8, math.MaxUint64)
		got, err := Read[wideHolder](r, NewCursor(rec.bytes(), LittleEndian))
		require.NoError(t, err)
		assert.Equal(t, h, got.W.Hash())
		assert.Equal(t, uint32(7), got.W.Value.Magic)
	})

	t.Run("hash64", func(t *testing.T) {
		rec := newRecord(16).u32(0, math.MaxUint32).u32(4, 0).u64(8, 0x1122334455667788)
		got, err := Read[wideHolder](r, NewCursor(rec.bytes(), LittleEndian))
		require.NoError(t, err)
		assert.Equal(t, h, got.W.Hash(), "canonical 32-bit hash")
		assert.Equal(t, uint32(7), got.W.Value.Magic)
	})

	t.Run("unresolved", func(t *testing.T) {
		rec := newRecord(16).u32(0, math.MaxUint32).u32(4, 0).u64(8, 0x99)
		_, err := Read[wideHolder](r, NewCursor(rec.bytes(), LittleEndian))
		assert.ErrorIs(t, err, ErrHash64Unresolved)
	})
}

type dynHolder struct {
	D DynamicTag
}

func TestDynamicTagDispatchesOnClass(t *testing.T) {
	const h = TagHash(0x80803001)
	st := newStubStore()
	st.put(h, newRecord(4).u32(0, 99).bytes())
	st.meta[h] = EntryMeta{Hash: h, Reference: 0x80805555}

	reg := NewResourceRegistry()
	RegisterStruct[sentinel](reg, 0x80805555, "sentinel")
	r := NewReader(st, WithResources(reg))

	got, err := Read[dynHolder](r, NewCursor(newRecord(4).u32(0, uint32(h)).bytes(), LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, h, got.D.Hash())
	assert.Equal(t, uint32(0x80805555), got.D.Class)
	assert.Equal(t, sentinel{Magic: 99}, got.D.Value)
}

// ---------------------------------------------------------------------------
// Resource pointers
// ---------------------------------------------------------------------------

type resourceHolder struct {
	P ResourcePointer
	_ [8]byte
}

func resourceRecord() []byte {
	// Pointer at 0 with delta 20: type at 16, data at 20.
	return newRecord(28).i64(0, 20).u32(16, 0x1234).u32(20, 0xFEED).u32(24, 0xBEEF).bytes()
}

func TestResourcePointerFallback(t *testing.T) {
	r := NewReader(newStubStore())
	got, err := Read[resourceHolder](r, NewCursor(resourceRecord(), LittleEndian))
	require.NoError(t, err)
	assert.True(t, got.P.Valid)
	assert.Equal(t, uint32(0x1234), got.P.Type)
	op, ok := got.P.Value.(OpaqueResource)
	require.True(t, ok, "got %T", got.P.Value)
	assert.Equal(t, 20, op.Offset)
	assert.Equal(t, []byte{0xED, 0xFE, 0, 0, 0xEF, 0xBE, 0, 0}, op.Data)
}

func TestResourcePointerOpaqueWindow(t *testing.T) {
	r := NewReader(newStubStore(), WithResources(NewResourceRegistry(OpaqueWindow(2))))
	got, err := Read[resourceHolder](r, NewCursor(resourceRecord(), LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xED, 0xFE}, got.P.Value.(OpaqueResource).Data)
}

func TestResourcePointerStrict(t *testing.T) {
	r := NewReader(newStubStore(), WithResources(NewResourceRegistry(Strict())))
	_, err := Read[resourceHolder](r, NewCursor(resourceRecord(), LittleEndian))
	assert.ErrorIs(t, err, ErrInvalidDiscriminant)
}

func TestResourcePointerRegistered(t *testing.T) {
	reg := NewResourceRegistry(Strict())
	RegisterStruct[sentinel](reg, 0x1234, "sentinel")
	r := NewReader(newStubStore(), WithResources(reg))
	got, err := Read[resourceHolder](r, NewCursor(resourceRecord(), LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, sentinel{Magic: 0xFEED}, got.P.Value)
	assert.Equal(t, "sentinel", reg.Name(0x1234))
	assert.Equal(t, "0x00000001", reg.Name(1))
}

func TestResourcePointerNull(t *testing.T) {
	r := NewReader(newStubStore(), WithResources(NewResourceRegistry(Strict())))
	got, err := Read[resourceHolder](r, NewCursor(make([]byte, 16), LittleEndian))
	require.NoError(t, err)
	assert.False(t, got.P.Valid)
	assert.Equal(t, uint32(math.MaxUint32), got.P.Type)
}

type classHolder struct {
	P ResourcePointerWithClass
}

func TestResourcePointerWithClass(t *testing.T) {
	reg := NewResourceRegistry()
	RegisterStruct[sentinel](reg, 0x80806666, "sentinel")
	r := NewReader(newStubStore(), WithResources(reg))
	// Pointer at 0, delta 12: type at 8, parent at 12, class at 16, data at 20.
	rec := newRecord(24).i64(0, 12).u32(8, 3).u32(12, 0x80807777).u32(16, 0x80806666).u32(20, 5)
	got, err := Read[classHolder](r, NewCursor(rec.bytes(), LittleEndian))
	require.NoError(t, err)
	assert.True(t, got.P.Valid)
	assert.Equal(t, uint32(3), got.P.Type)
	assert.Equal(t, TagHash(0x80807777), got.P.Parent)
	assert.Equal(t, uint32(0x80806666), got.P.Class)
	assert.Equal(t, sentinel{Magic: 5}, got.P.Value)
}

// ---------------------------------------------------------------------------
// Guards
// ---------------------------------------------------------------------------

type node struct {
	Next *node
}

func TestDepthGuard(t *testing.T) {
	// Two nodes pointing at each other.
	rec := newRecord(16).i64(0, 8).i64(8, -8)
	r := NewReader(newStubStore(), WithMaxDepth(5))
	_, err := Read[node](r, NewCursor(rec.bytes(), LittleEndian))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

type markers struct {
	Cafe CafeMarker
	_    [2]byte
	Beef DeadBeefMarker
}

func TestMarkers(t *testing.T) {
	r := NewReader(newStubStore())
	good := newRecord(8).u16(0, 0xCAFE).u32(4, 0xDEADBEEF)
	_, err := Read[markers](r, NewCursor(good.bytes(), LittleEndian))
	require.NoError(t, err)

	bad := newRecord(8).u16(0, 0xCAFE).u32(4, 0xDEADBEEE)
	_, err = Read[markers](r, NewCursor(bad.bytes(), LittleEndian))
	assert.ErrorIs(t, err, ErrBadMarker)
	var re *ReadError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Beef", re.Field)
}

// greedy claims four bytes but reads eight.
type greedy struct{ V uint64 }

func (greedy) TagSize() int { return 4 }

func (g *greedy) UnmarshalTag(_ *Session, c *Cursor) error {
	v, err := c.U64()
	g.V = v
	return err
}

func TestCustomDecoderOverrun(t *testing.T) {
	r := NewReader(newStubStore())
	_, err := Read[greedy](r, NewCursor(make([]byte, 16), LittleEndian))
	assert.ErrorIs(t, err, ErrStructSizeMismatch)
}

func TestStructPastEndOfRecord(t *testing.T) {
	r := NewReader(newStubStore())
	_, err := Read[scalars](r, NewCursor(make([]byte, 41), LittleEndian))
	assert.ErrorIs(t, err, ErrEndOfData)
}

func TestReadRequiresPointer(t *testing.T) {
	r := NewReader(newStubStore())
	var v sentinel
	err := r.Read(NewCursor(make([]byte, 4), LittleEndian), v)
	assert.ErrorIs(t, err, ErrNotPointer)
}

func TestReadTag64Struct(t *testing.T) {
	const h = TagHash(0x80804000)
	st := newStubStore()
	st.put(h, newRecord(4).u32(0, 3).bytes())
	st.hash64[0xABCD] = h
	r := NewReader(st)

	var v sentinel
	require.NoError(t, r.ReadTag64Struct(0xABCD, &v))
	assert.Equal(t, uint32(3), v.Magic)
	assert.ErrorIs(t, r.ReadTag64Struct(0xFFFF, &v), ErrHash64Unresolved)
}
