package tfx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternKindNames(t *testing.T) {
	for _, k := range AllExternKinds() {
		got, err := ParseExternKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseExternKind("nope")
	assert.ErrorIs(t, err, ErrInvalidExtern)
	assert.Equal(t, "extern(200)", ExternKind(200).String())
}

func TestFieldCatalog(t *testing.T) {
	path, ok := FieldPath(ExternView, 0x40)
	require.True(t, ok)
	assert.Equal(t, "view->world_to_camera", path)

	_, ok = FieldPath(ExternView, 0x44)
	assert.False(t, ok)

	fields := Fields(ExternFrame)
	require.NotEmpty(t, fields)
	for i := 1; i < len(fields); i++ {
		assert.Less(t, fields[i-1].Offset, fields[i].Offset, "frame fields out of order at %s", fields[i].Name)
	}
	assert.Nil(t, Fields(ExternEditorMesh))
}

func TestExternStoreEnable(t *testing.T) {
	s := NewExternStore()
	assert.True(t, s.Enabled(ExternFrame))
	assert.True(t, s.Enabled(ExternDecoratorWind))
	assert.False(t, s.Enabled(ExternView))

	s.Disable(ExternFrame)
	assert.True(t, s.Enabled(ExternFrame))

	assert.ErrorIs(t, s.Enable(ExternEditorMesh), ErrNoCatalog)
	require.NoError(t, s.Enable(ExternView))
	_, st := s.Lookup(ExternView, 0x20, KindVec4)
	assert.Equal(t, ExternOK, st)

	s.Disable(ExternView)
	_, st = s.Lookup(ExternView, 0x20, KindVec4)
	assert.Equal(t, ExternDisabled, st)
}

func TestExternStoreSet(t *testing.T) {
	s := NewExternStore()
	assert.ErrorIs(t, s.Set(ExternFrame, "missing", FloatValue(1)), ErrNoField)
	assert.ErrorIs(t, s.Set(ExternFrame, "game_time", Vec4Value(vecOne)), ErrFieldType)
	assert.ErrorIs(t, s.Set(ExternEditorMesh, "x", FloatValue(1)), ErrNoCatalog)

	require.NoError(t, s.Set(ExternFrame, "game_time", FloatValue(42)))
	v, ok := s.Extern(ExternFrame, 0)
	require.True(t, ok)
	assert.Equal(t, FloatValue(42), v)

	s.Reset()
	v, _ = s.Extern(ExternFrame, 0)
	assert.Equal(t, float32(1), v.Float)
}

func TestExternStoreUsed(t *testing.T) {
	s := NewExternStore()
	s.RecordUsed(ExternFrame)
	s.RecordUsed(ExternFrame)
	s.RecordUsed(ExternKind(250))
	assert.Equal(t, uint64(2), s.Used(ExternFrame))
	s.ResetUsed()
	assert.Zero(t, s.Used(ExternFrame))
}

func TestSubstituteValue(t *testing.T) {
	assert.Equal(t, mgl32.Ident4(), SubstituteValue(KindMat4).Mat4)
	assert.Equal(t, ExternValue{Kind: KindTexture}, SubstituteValue(KindTexture))
	assert.Equal(t, "[1, 2, 3, 4]", Vec4Value(mgl32.Vec4{1, 2, 3, 4}).String())
	assert.Equal(t, "texture(0xBEEF)", TextureValue(0xBEEF).String())
}

func TestGlobalChannels(t *testing.T) {
	g := NewGlobalChannels()
	assert.Equal(t, vecOne, g.Channel(0).Value)
	assert.Equal(t, vecZero, g.Channel(10).Value)
	assert.Equal(t, "fog start", g.Channel(37).Name)

	g.Set(75, mgl32.Vec4{3, 0, 0, 0})
	assert.Equal(t, float32(1), g.Channel(75).Value[0])

	g.Value(93)
	g.Value(93)
	assert.Equal(t, uint64(2), g.Used(93))
	assert.Zero(t, g.Used(94))
	g.ResetUsed()
	assert.Zero(t, g.Used(93))
}

func TestDiagnostics(t *testing.T) {
	var nilSink *Diagnostics
	nilSink.Record(Malformed, "ignored")
	assert.Zero(t, nilSink.Len())
	assert.Nil(t, nilSink.Snapshot())

	d := NewDiagnostics()
	d.Record(Malformed, "b")
	d.Recordf(InvalidType, "a %d", 1)
	d.Record(Malformed, "b")
	d.Record(Unimplemented, "b")

	assert.Equal(t, []Diagnostic{
		{Message: "a 1", Kind: InvalidType, Count: 1},
		{Message: "b", Kind: Unimplemented, Count: 1},
		{Message: "b", Kind: Malformed, Count: 2},
	}, d.Snapshot())
	assert.Equal(t, "extern not set", ExternNotSet.String())

	d.Clear()
	assert.Zero(t, d.Len())
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(KindFloat, " 1.5 ")
	require.NoError(t, err)
	assert.Equal(t, FloatValue(1.5), v)

	v, err = ParseValue(KindU32, "0x10")
	require.NoError(t, err)
	assert.Equal(t, U32Value(16), v)

	v, err = ParseValue(KindTexture, "0x80801000")
	require.NoError(t, err)
	assert.Equal(t, TextureValue(0x80801000), v)

	v, err = ParseValue(KindVec4, "1, 2,3,4")
	require.NoError(t, err)
	assert.Equal(t, Vec4Value(mgl32.Vec4{1, 2, 3, 4}), v)

	v, err = ParseValue(KindMat4, "1,0,0,0,0,1,0,0,0,0,1,0,5,6,7,1")
	require.NoError(t, err)
	assert.Equal(t, Mat4Value(mgl32.Translate3D(5, 6, 7)), v)

	for _, tc := range []struct {
		kind ValueKind
		in   string
	}{
		{KindFloat, "x"},
		{KindU32, "-1"},
		{KindVec4, "1,2,3"},
		{KindVec4, "1,2,3,a"},
		{KindNone, "1"},
	} {
		_, err := ParseValue(tc.kind, tc.in)
		assert.ErrorIs(t, err, ErrFieldType, "%s %q", tc.kind, tc.in)
	}
}
