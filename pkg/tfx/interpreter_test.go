package tfx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tagview/tag"
)

// stubExterns is a plain ExternSource without detailed lookups.
type stubExterns struct {
	values map[externSlot]ExternValue
	used   map[ExternKind]int
}

func newStubExterns() *stubExterns {
	return &stubExterns{
		values: make(map[externSlot]ExternValue),
		used:   make(map[ExternKind]int),
	}
}

func (s *stubExterns) set(kind ExternKind, offset uint32, v ExternValue) {
	s.values[externSlot{kind, offset}] = v
}

func (s *stubExterns) Extern(kind ExternKind, offset uint32) (ExternValue, bool) {
	v, ok := s.values[externSlot{kind, offset}]
	return v, ok
}

func (s *stubExterns) RecordUsed(kind ExternKind) { s.used[kind]++ }

type binding struct {
	what   string
	stage  ShaderStage
	slot   uint8
	handle uint64
}

type recordingBinder struct{ calls []binding }

func (b *recordingBinder) BindTexture(stage ShaderStage, slot uint8, h uint64) {
	b.calls = append(b.calls, binding{"texture", stage, slot, h})
}

func (b *recordingBinder) BindSampler(stage ShaderStage, slot uint8, h uint64) {
	b.calls = append(b.calls, binding{"sampler", stage, slot, h})
}

func (b *recordingBinder) BindUAV(stage ShaderStage, slot uint8, h uint64) {
	b.calls = append(b.calls, binding{"uav", stage, slot, h})
}

func op(o Opcode) Instruction                 { return Instruction{Op: o} }
func withIndex(o Opcode, i uint8) Instruction { return Instruction{Op: o, Index: i} }

func externOp(o Opcode, kind ExternKind, index uint8) Instruction {
	return Instruction{Op: o, Extern: kind, Index: index}
}

func evaluate(t *testing.T, env *Env, ops ...Instruction) {
	t.Helper()
	require.NoError(t, NewInterpreter(ops).Evaluate(env))
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestEvaluateConstPlusExtern(t *testing.T) {
	ops, err := ParseAll([]byte{0x34, 0x00, 0x3d, 0x01, 0x00, 0x01, 0x44, 0x00}, tag.LittleEndian)
	require.NoError(t, err)

	externs := newStubExterns()
	externs.set(ExternFrame, 0, Vec4Value(mgl32.Vec4{2, 0, 0, 0}))
	diags := NewDiagnostics()
	env := &Env{
		Externs:     externs,
		Output:      make([]mgl32.Vec4, 1),
		Constants:   []mgl32.Vec4{{1, 1, 1, 1}},
		Diagnostics: diags,
	}
	require.NoError(t, NewInterpreter(ops).Evaluate(env))

	assert.Equal(t, mgl32.Vec4{3, 1, 1, 1}, env.Output[0])
	assert.Equal(t, 1, externs.used[ExternFrame])
	assert.Zero(t, diags.Len())
}

func TestExternNotSetRecordedOnce(t *testing.T) {
	diags := NewDiagnostics()
	env := &Env{
		Externs:     newStubExterns(),
		Output:      []mgl32.Vec4{{9, 9, 9, 9}},
		Diagnostics: diags,
	}
	prog := NewInterpreter([]Instruction{
		externOp(OpPushExternInputVec4, ExternFrame, 0),
		withIndex(OpPopOutput, 0),
	})
	for range 3 {
		require.NoError(t, prog.Evaluate(env))
	}

	assert.Equal(t, mgl32.Vec4{}, env.Output[0])
	require.Equal(t, 1, diags.Len())
	assert.Equal(t, uint64(3), diags.Count(ExternNotSet, "Extern frame not set"))
}

func TestExternSubstitutes(t *testing.T) {
	diags := NewDiagnostics()
	env := &Env{Output: make([]mgl32.Vec4, 6), Diagnostics: diags}
	evaluate(t, env,
		externOp(OpPushExternInputMat4, ExternView, 4),
		withIndex(OpPopOutputMat4, 0),
		externOp(OpPushExternInputFloat, ExternView, 0),
		withIndex(OpPopOutput, 4),
		externOp(OpPushExternInputTex, ExternView, 0),
		withIndex(OpSetShaderTexture, 0),
	)
	ident := mgl32.Ident4()
	for i := range 4 {
		assert.Equal(t, ident.Col(i), env.Output[i])
	}
	assert.Equal(t, mgl32.Vec4{}, env.Output[4])
	assert.Equal(t, uint64(3), diags.Count(ExternNotSet, "Extern view not set"))
}

func TestExternStatusDiagnostics(t *testing.T) {
	store := NewExternStore()
	diags := NewDiagnostics()
	env := &Env{Externs: store, Output: make([]mgl32.Vec4, 5), Diagnostics: diags}

	evaluate(t, env,
		externOp(OpPushExternInputFloat, ExternFrame, 0), // game_time, default 1
		withIndex(OpPopOutput, 0),
		externOp(OpPushExternInputFloat, ExternFrame, 3), // unk0c
		withIndex(OpPopOutput, 1),
		externOp(OpPushExternInputVec4, ExternFrame, 0), // float field read as vec4
		withIndex(OpPopOutput, 2),
		externOp(OpPushExternInputFloat, ExternFrame, 2), // nothing at 0x8
		withIndex(OpPopOutput, 3),
		externOp(OpPushExternInputFloat, ExternEditorMesh, 0),
		withIndex(OpPopOutput, 4),
	)

	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, env.Output[0])
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, env.Output[1])
	assert.Equal(t, mgl32.Vec4{}, env.Output[2])
	assert.Equal(t, mgl32.Vec4{}, env.Output[3])
	assert.Equal(t, mgl32.Vec4{}, env.Output[4])

	assert.Equal(t, []Diagnostic{
		{Message: "Extern editor_mesh not found", Kind: ExternNotSet, Count: 1},
		{Message: "Extern field @ 0x8 for frame not found (type float)", Kind: Unimplemented, Count: 1},
		{Message: "Extern field frame@0x0 has invalid type (expected vec4)", Kind: InvalidType, Count: 1},
		{Message: "Extern field frame@0xC is unimplemented (type float)", Kind: Unimplemented, Count: 1},
	}, diags.Snapshot())
	assert.Equal(t, uint64(2), store.Used(ExternFrame))
}

func TestExternStoreValues(t *testing.T) {
	store := NewExternStore()
	require.NoError(t, store.Enable(ExternView))
	m := mgl32.Translate3D(1, 2, 3)
	require.NoError(t, store.Set(ExternView, "world_to_camera", Mat4Value(m)))
	require.NoError(t, store.Set(ExternFrame, "specular_lobe_lookup", TextureValue(0xBEEF)))

	binder := &recordingBinder{}
	env := &Env{Externs: store, Output: make([]mgl32.Vec4, 4), Binder: binder}
	evaluate(t, env,
		externOp(OpPushExternInputMat4, ExternView, 4),
		withIndex(OpPopOutputMat4, 0),
		externOp(OpPushExternInputTex, ExternFrame, 0xa8/8),
		Instruction{Op: OpSetShaderTexture, Stage: StagePixel, Index: 2},
	)
	for i := range 4 {
		assert.Equal(t, m.Col(i), env.Output[i])
	}
	assert.Equal(t, []binding{{"texture", StagePixel, 2, 0xBEEF}}, binder.calls)
}

func TestExternU32Bits(t *testing.T) {
	externs := newStubExterns()
	externs.set(ExternFrame, 8, U32Value(0x3f800000))
	env := &Env{Externs: externs, Output: make([]mgl32.Vec4, 1)}
	evaluate(t, env, externOp(OpPushExternInputU32, ExternFrame, 2), withIndex(OpPopOutput, 0))
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 0}, env.Output[0])
}

// ---------------------------------------------------------------------------
// Stack discipline
// ---------------------------------------------------------------------------

func TestStackUnderflow(t *testing.T) {
	diags := NewDiagnostics()
	env := &Env{Output: []mgl32.Vec4{{5, 5, 5, 5}}, Diagnostics: diags}
	evaluate(t, env, op(OpAdd), withIndex(OpPopOutput, 0))
	assert.Equal(t, mgl32.Vec4{}, env.Output[0])
	assert.Equal(t, uint64(2), diags.Count(Malformed, "TFX stack underflow"))
}

func TestStackOverflow(t *testing.T) {
	ops := make([]Instruction, StackCapacity+2)
	for i := range ops {
		ops[i] = op(OpUnk42)
	}
	diags := NewDiagnostics()
	evaluate(t, &Env{Diagnostics: diags}, ops...)
	assert.Equal(t, uint64(2), diags.Count(Malformed, "TFX stack overflow"))
}

func TestOutputOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		ops  []Instruction
	}{
		{"pop_output", []Instruction{op(OpUnk42), withIndex(OpPopOutput, 2)}},
		{"push_from_output", []Instruction{withIndex(OpPushFromOutput, 2)}},
		{"pop_output_mat4", []Instruction{withIndex(OpPopOutputMat4, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Env{Output: make([]mgl32.Vec4, 2)}
			err := NewInterpreter(tt.ops).Evaluate(env)
			require.ErrorIs(t, err, ErrOutputOutOfRange)
		})
	}
}

func TestNilOutputDiscards(t *testing.T) {
	diags := NewDiagnostics()
	evaluate(t, &Env{Diagnostics: diags},
		op(OpUnk42),
		withIndex(OpPopOutput, 40),
		withIndex(OpPushFromOutput, 40),
		withIndex(OpPopTemp, 0),
	)
	assert.Equal(t, 1, diags.Len())
}

func TestHandleReadAsVector(t *testing.T) {
	diags := NewDiagnostics()
	env := &Env{Samplers: []uint64{7}, Output: []mgl32.Vec4{{1, 1, 1, 1}}, Diagnostics: diags}
	evaluate(t, env, withIndex(OpPushSampler, 0), withIndex(OpPopOutput, 0))
	assert.Equal(t, mgl32.Vec4{}, env.Output[0])
	assert.Equal(t, uint64(1), diags.Count(InvalidType, "TFX stack value is a resource handle, expected a vector"))
}

func TestUnimplementedOpcodes(t *testing.T) {
	diags := NewDiagnostics()
	env := &Env{Output: make([]mgl32.Vec4, 2), Diagnostics: diags}
	evaluate(t, env,
		op(OpUnk42),
		withIndex(OpPopOutput, 0),
		withIndex(OpUnk50, 9),
		withIndex(OpPopOutput, 1),
		op(OpUnk1b),
	)
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, env.Output[0])
	assert.Equal(t, mgl32.Vec4{}, env.Output[1])
	assert.Equal(t, uint64(1), diags.Count(Unimplemented, "TFX expression opcode 'unk42' is not implemented"))
	assert.Equal(t, uint64(1), diags.Count(Unimplemented, "TFX expression opcode 'unk50' is not implemented"))
	assert.Equal(t, uint64(1), diags.Count(Unimplemented, "TFX expression opcode 'unk1b' is not implemented"))
	assert.Equal(t, 3, diags.Len())
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// evalTop runs ops with the given constants and returns what is left on
// top, written to output element 0.
func evalTop(t *testing.T, constants []mgl32.Vec4, ops ...Instruction) mgl32.Vec4 {
	t.Helper()
	env := &Env{Output: make([]mgl32.Vec4, 1), Constants: constants}
	evaluate(t, env, append(ops, withIndex(OpPopOutput, 0))...)
	return env.Output[0]
}

func TestArithmeticOperandOrder(t *testing.T) {
	consts := []mgl32.Vec4{
		{5, 5, 5, 5},
		{2, 2, 2, 2},
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{0, 0, 0, 0},
	}
	c := func(i uint8) Instruction { return withIndex(OpPushConstVec4, i) }

	tests := []struct {
		name string
		ops  []Instruction
		want mgl32.Vec4
	}{
		{"subtract", []Instruction{c(0), c(1), op(OpSubtract)}, mgl32.Vec4{3, 3, 3, 3}},
		{"divide", []Instruction{c(0), c(1), op(OpDivide)}, mgl32.Vec4{2.5, 2.5, 2.5, 2.5}},
		{"less_than false", []Instruction{c(1), c(0), op(OpLessThan)}, mgl32.Vec4{}},
		{"less_than true", []Instruction{c(0), c(1), op(OpLessThan)}, mgl32.Vec4{1, 1, 1, 1}},
		{"min", []Instruction{c(2), c(1), op(OpMin)}, mgl32.Vec4{1, 2, 2, 2}},
		{"max", []Instruction{c(2), c(1), op(OpMax)}, mgl32.Vec4{2, 2, 3, 4}},
		{"dot", []Instruction{c(2), c(3), op(OpDot)}, mgl32.Vec4{70, 70, 70, 70}},
		{"merge_1_3", []Instruction{c(2), c(3), op(OpMerge1_3)}, mgl32.Vec4{1, 5, 6, 7}},
		{"merge_2_2", []Instruction{c(2), c(3), op(OpMerge2_2)}, mgl32.Vec4{1, 2, 5, 6}},
		{"merge_3_1", []Instruction{c(2), c(3), op(OpMerge3_1)}, mgl32.Vec4{1, 2, 3, 5}},
		{"multiply_add", []Instruction{c(1), c(0), c(2), op(OpMultiplyAdd)}, mgl32.Vec4{11, 12, 13, 14}},
		{"lerp", []Instruction{c(3), c(2), c(4), op(OpLerp)}, mgl32.Vec4{1, 2, 3, 4}},
		{"clamp", []Instruction{c(3), c(1), c(0), op(OpClamp)}, mgl32.Vec4{5, 5, 5, 5}},
		{"is_zero", []Instruction{c(4), op(OpIsZero)}, mgl32.Vec4{1, 1, 1, 1}},
		{"negate", []Instruction{c(2), op(OpNegate)}, mgl32.Vec4{-1, -2, -3, -4}},
		{"permute_extend_x", []Instruction{c(3), op(OpPermuteExtendX)}, mgl32.Vec4{5, 5, 5, 5}},
		{"permute", []Instruction{c(2), {Op: OpPermute, Fields: 0xe4}}, mgl32.Vec4{4, 3, 2, 1}},
		{"lerp_constant", []Instruction{c(4), withIndex(OpLerpConstant, 2)}, mgl32.Vec4{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalTop(t, consts, tt.ops...))
		})
	}
}

func TestTempSlots(t *testing.T) {
	consts := []mgl32.Vec4{{4, 3, 2, 1}}
	got := evalTop(t, consts,
		withIndex(OpPushConstVec4, 0),
		withIndex(OpPopTemp, 15),
		withIndex(OpPushTemp, 15),
	)
	assert.Equal(t, consts[0], got)

	diags := NewDiagnostics()
	evaluate(t, &Env{Diagnostics: diags}, withIndex(OpPushTemp, 16))
	assert.Equal(t, uint64(1), diags.Count(Malformed, "TFX temp slot 16 out of range"))
}

func TestConstantOutOfRange(t *testing.T) {
	diags := NewDiagnostics()
	env := &Env{Output: []mgl32.Vec4{{1, 1, 1, 1}}, Constants: make([]mgl32.Vec4, 3), Diagnostics: diags}
	evaluate(t, env,
		op(OpUnk42),
		withIndex(OpSpline4Const, 0),
		withIndex(OpPopOutput, 0),
	)
	assert.Equal(t, mgl32.Vec4{}, env.Output[0])
	assert.Equal(t, uint64(1), diags.Count(Malformed, "TFX spline4_const constant 4 out of range (3 constants)"))
}

func TestChannels(t *testing.T) {
	globals := NewGlobalChannels()
	env := &Env{
		Output:   make([]mgl32.Vec4, 3),
		Channels: map[uint32]mgl32.Vec4{0xCAFE: {1, 2, 3, 4}},
		Globals:  globals,
	}
	evaluate(t, env,
		Instruction{Op: OpPushObjectChannelVector, Hash: 0xCAFE},
		withIndex(OpPopOutput, 0),
		Instruction{Op: OpPushObjectChannelVector, Hash: 0xBEEF},
		withIndex(OpPopOutput, 1),
		withIndex(OpPushGlobalChannelVector, 131),
		withIndex(OpPopOutput, 2),
	)
	assert.Equal(t, mgl32.Vec4{1, 2, 3, 4}, env.Output[0])
	assert.Equal(t, mgl32.Vec4{}, env.Output[1])
	assert.Equal(t, mgl32.Vec4{0.5, 0.5, 0.3, 0}, env.Output[2])
	assert.Equal(t, uint64(1), globals.Used(131))

	got := evalTop(t, nil, withIndex(OpPushGlobalChannelVector, 131))
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, got)
}

func TestSamplerBinding(t *testing.T) {
	binder := &recordingBinder{}
	diags := NewDiagnostics()
	env := &Env{Samplers: []uint64{0x10, 0x20}, Binder: binder, Diagnostics: diags}
	evaluate(t, env,
		withIndex(OpPushSampler, 1),
		Instruction{Op: OpSetShaderSampler, Stage: StageCompute, Index: 4},
		withIndex(OpPushSampler, 9),
		Instruction{Op: OpSetShaderUav, Stage: StageVertex, Index: 1},
	)
	assert.Equal(t, []binding{
		{"sampler", StageCompute, 4, 0x20},
		{"uav", StageVertex, 1, 0},
	}, binder.calls)
	assert.Equal(t, uint64(1), diags.Count(Malformed, "TFX sampler index 9 out of range (2 samplers)"))
}

func TestTexturePlaceholder(t *testing.T) {
	got := evalTop(t, nil, Instruction{Op: OpPushTexDimensions, Fields: 0xff})
	assert.Equal(t, mgl32.Vec4{0.0625, 0.0625, 0.0625, 0.0625}, got)
}
