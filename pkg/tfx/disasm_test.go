package tfx

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionDisassemble(t *testing.T) {
	consts := []mgl32.Vec4{{1, 2, 3, 4}, {0.5, 0, 0, 1}}
	tests := []struct {
		in   Instruction
		want string
	}{
		{op(OpAdd), "add"},
		{Instruction{Op: OpPermute, Fields: 0xe4}, "permute(.wzyx)"},
		{withIndex(OpPushConstVec4, 0), "push_const_vec4(0) // [1, 2, 3, 4]"},
		{withIndex(OpPushConstVec4, 7), "push_const_vec4(7) // CONSTANT OUT OF RANGE"},
		{withIndex(OpLerpConstant, 0), "lerp_constant(0, 1) // a=[1, 2, 3, 4] b=[0.5, 0, 0, 1]"},
		{withIndex(OpSpline4Const, 3), "spline4_const unk1=3"},
		{withIndex(OpSpline8ChainConst, 3), "spline8_chain_const constant_start=3"},
		{withIndex(OpGradient8Const, 1), "gradient8_const constants[1] // [0.5, 0, 0, 1]"},
		{externOp(OpPushExternInputMat4, ExternView, 4), "push_extern_input_mat4 (view+0x40) // view->world_to_camera"},
		{externOp(OpPushExternInputFloat, ExternEditorMesh, 3), "push_extern_input_float (editor_mesh+0xC)"},
		{withIndex(OpPopOutputMat4, 8), "pop_output_mat4(8)"},
		{Instruction{Op: OpSetShaderSampler, Stage: StagePixel, Index: 2}, "set_shader_sampler stage=Pixel slot=2"},
		{withIndex(OpUnk4c, 5), "unk4c unk1=5"},
		{withIndex(OpPushSampler, 1), "push_sampler index=1"},
		{Instruction{Op: OpPushObjectChannelVector, Hash: 0xCAFE}, "push_object_channel_vector(0000CAFE)"},
		{Instruction{Op: OpPushTexDimensions, Index: 2, Fields: 0x1b}, "push_tex_dimensions index=2 fields=.xyzw"},
	}
	for _, tt := range tests {
		if got := tt.in.Disassemble(consts); got != tt.want {
			t.Errorf("Disassemble() = %q, want %q", got, tt.want)
		}
	}

	assert.Equal(t, "push_const_vec4(7)", withIndex(OpPushConstVec4, 7).Disassemble(nil))
}

func TestDisassembleListing(t *testing.T) {
	ops := []Instruction{withIndex(OpPushConstVec4, 0), op(OpAdd)}
	got := Disassemble(ops, []mgl32.Vec4{{1, 2, 3, 4}})
	want := "; Constants:\n" +
		";   [  0] [1, 2, 3, 4]\n" +
		"\n" +
		"0000  push_const_vec4(0) // [1, 2, 3, 4]\n" +
		"0001  add\n"
	assert.Equal(t, want, got)
}

func TestDisassembleToColor(t *testing.T) {
	ops := []Instruction{withIndex(OpPushConstVec4, 3)}
	var plain, colored strings.Builder
	require.NoError(t, DisassembleTo(&plain, "stage", ops, nil, false))
	require.NoError(t, DisassembleTo(&colored, "stage", ops, nil, true))

	assert.Equal(t, "; === stage ===\n0000  push_const_vec4(3)\n", plain.String())
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, colored.String(), "push_const_vec4")
}
