package tfx

import "fmt"

// Opcode is the first byte of a TFX instruction.
type Opcode byte

const (
	// ========================================================================
	// Math (0x01-0x2E)
	// ========================================================================

	OpAdd                   Opcode = 0x01
	OpSubtract              Opcode = 0x02 // t1 - t0
	OpMultiply              Opcode = 0x03
	OpDivide                Opcode = 0x04 // t1 / t0
	OpMultiply2             Opcode = 0x05
	OpAdd2                  Opcode = 0x06
	OpIsZero                Opcode = 0x07
	OpMin                   Opcode = 0x08
	OpMax                   Opcode = 0x09
	OpLessThan              Opcode = 0x0A // t0 < t1 per lane
	OpDot                   Opcode = 0x0B
	OpMerge1_3              Opcode = 0x0C
	OpMerge2_2              Opcode = 0x0D
	OpMerge3_1              Opcode = 0x0E
	OpCubic                 Opcode = 0x0F
	OpLerp                  Opcode = 0x10
	OpLerpSaturated         Opcode = 0x11
	OpMultiplyAdd           Opcode = 0x12 // t0 + t1*t2
	OpClamp                 Opcode = 0x13
	OpUnk14                 Opcode = 0x14
	OpAbs                   Opcode = 0x15
	OpSignum                Opcode = 0x16
	OpFloor                 Opcode = 0x17
	OpCeil                  Opcode = 0x18
	OpRound                 Opcode = 0x19
	OpFrac                  Opcode = 0x1A
	OpUnk1b                 Opcode = 0x1B
	OpUnk1c                 Opcode = 0x1C
	OpNegate                Opcode = 0x1D
	OpVectorRotationsSin    Opcode = 0x1E
	OpVectorRotationsCos    Opcode = 0x1F
	OpVectorRotationsSinCos Opcode = 0x20
	OpPermuteExtendX        Opcode = 0x21 // permute(.xxxx)
	OpPermute               Opcode = 0x22 // permute <fields:u8>
	OpSaturate              Opcode = 0x23
	OpUnk24                 Opcode = 0x24
	OpUnk25                 Opcode = 0x25
	OpUnk26                 Opcode = 0x26
	OpTriangle              Opcode = 0x27
	OpJitter                Opcode = 0x28
	OpWander                Opcode = 0x29
	OpRand                  Opcode = 0x2A
	OpRandSmooth            Opcode = 0x2B
	OpUnk2c                 Opcode = 0x2C
	OpUnk2d                 Opcode = 0x2D
	OpTransformVec4         Opcode = 0x2E

	// ========================================================================
	// Constants (0x34-0x3B), operand <constant:u8>
	// ========================================================================

	OpPushConstVec4         Opcode = 0x34
	OpLerpConstant          Opcode = 0x35
	OpLerpConstantSaturated Opcode = 0x36
	OpSpline4Const          Opcode = 0x37
	OpSpline8Const          Opcode = 0x38
	OpSpline8ChainConst     Opcode = 0x39
	OpGradient4Const        Opcode = 0x3A
	OpGradient8Const        Opcode = 0x3B

	// ========================================================================
	// Externs (0x3C-0x41), operands <extern:u8> <offset:u8>
	// ========================================================================

	OpPushExternInputFloat Opcode = 0x3C // offset in 4-byte units
	OpPushExternInputVec4  Opcode = 0x3D // offset in 16-byte units
	OpPushExternInputMat4  Opcode = 0x3E // offset in 16-byte units
	OpPushExternInputTex   Opcode = 0x3F // offset in 8-byte units
	OpPushExternInputU32   Opcode = 0x40 // offset in 4-byte units
	OpPushExternInputUav   Opcode = 0x41 // offset in 8-byte units

	// ========================================================================
	// Output, temporaries and bindings (0x42-0x58)
	// ========================================================================

	OpUnk42                   Opcode = 0x42
	OpPushFromOutput          Opcode = 0x43 // <element:u8>
	OpPopOutput               Opcode = 0x44 // <element:u8>
	OpPopOutputMat4           Opcode = 0x45 // <element:u8>
	OpPushTemp                Opcode = 0x46 // <slot:u8>
	OpPopTemp                 Opcode = 0x47 // <slot:u8>
	OpSetShaderTexture        Opcode = 0x48 // <stage<<5|slot:u8>
	OpUnk49                   Opcode = 0x49 // <unk:u8>
	OpSetShaderSampler        Opcode = 0x4A // <stage<<5|slot:u8>
	OpSetShaderUav            Opcode = 0x4B // <stage<<5|slot:u8>
	OpUnk4c                   Opcode = 0x4C // <unk:u8>
	OpPushSampler             Opcode = 0x4D // <index:u8>
	OpPushObjectChannelVector Opcode = 0x4E // <hash:u32 big-endian>
	OpPushGlobalChannelVector Opcode = 0x4F // <index:u8>
	OpUnk50                   Opcode = 0x50 // <unk:u8>
	OpUnk51                   Opcode = 0x51
	OpPushTexDimensions       Opcode = 0x52 // <index:u8> <fields:u8>
	OpPushTexTilingParams     Opcode = 0x53 // <index:u8> <fields:u8>
	OpPushTexTileLayerCount   Opcode = 0x54 // <index:u8> <fields:u8>
	OpUnk55                   Opcode = 0x55
	OpUnk56                   Opcode = 0x56
	OpUnk57                   Opcode = 0x57
	OpUnk58                   Opcode = 0x58
)

// OpcodeInfo describes an opcode's encoding and stack effect. A matrix
// counts as four stack values.
type OpcodeInfo struct {
	Name       string
	StackPop   int
	StackPush  int
	OperandLen int
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Math
	OpAdd:                   {"add", 2, 1, 0},
	OpSubtract:              {"subtract", 2, 1, 0},
	OpMultiply:              {"multiply", 2, 1, 0},
	OpDivide:                {"divide", 2, 1, 0},
	OpMultiply2:             {"multiply2", 2, 1, 0},
	OpAdd2:                  {"add2", 2, 1, 0},
	OpIsZero:                {"is_zero", 1, 1, 0},
	OpMin:                   {"min", 2, 1, 0},
	OpMax:                   {"max", 2, 1, 0},
	OpLessThan:              {"less_than", 2, 1, 0},
	OpDot:                   {"dot", 2, 1, 0},
	OpMerge1_3:              {"merge_1_3", 2, 1, 0},
	OpMerge2_2:              {"merge_2_2", 2, 1, 0},
	OpMerge3_1:              {"merge_3_1", 2, 1, 0},
	OpCubic:                 {"cubic", 2, 1, 0},
	OpLerp:                  {"lerp", 3, 1, 0},
	OpLerpSaturated:         {"lerp_saturated", 3, 1, 0},
	OpMultiplyAdd:           {"multiply_add", 3, 1, 0},
	OpClamp:                 {"clamp", 3, 1, 0},
	OpUnk14:                 {"unk14", 2, 0, 0},
	OpAbs:                   {"abs", 1, 1, 0},
	OpSignum:                {"signum", 1, 1, 0},
	OpFloor:                 {"floor", 1, 1, 0},
	OpCeil:                  {"ceil", 1, 1, 0},
	OpRound:                 {"round", 1, 1, 0},
	OpFrac:                  {"frac", 1, 1, 0},
	OpUnk1b:                 {"unk1b", 0, 0, 0},
	OpUnk1c:                 {"unk1c", 0, 0, 0},
	OpNegate:                {"negate", 1, 1, 0},
	OpVectorRotationsSin:    {"vector_rotations_sin", 1, 1, 0},
	OpVectorRotationsCos:    {"vector_rotations_cos", 1, 1, 0},
	OpVectorRotationsSinCos: {"vector_rotations_sin_cos", 1, 1, 0},
	OpPermuteExtendX:        {"permute_extend_x", 1, 1, 0},
	OpPermute:               {"permute", 1, 1, 1},
	OpSaturate:              {"saturate", 1, 1, 0},
	OpUnk24:                 {"unk24", 0, 0, 0},
	OpUnk25:                 {"unk25", 0, 0, 0},
	OpUnk26:                 {"unk26", 0, 0, 0},
	OpTriangle:              {"triangle", 1, 1, 0},
	OpJitter:                {"jitter", 1, 1, 0},
	OpWander:                {"wander", 1, 1, 0},
	OpRand:                  {"rand", 1, 1, 0},
	OpRandSmooth:            {"rand_smooth", 1, 1, 0},
	OpUnk2c:                 {"unk2c", 1, 0, 0},
	OpUnk2d:                 {"unk2d", 4, 0, 0},
	OpTransformVec4:         {"transform_vec4", 5, 1, 0},

	// Constants
	OpPushConstVec4:         {"push_const_vec4", 0, 1, 1},
	OpLerpConstant:          {"lerp_constant", 1, 1, 1},
	OpLerpConstantSaturated: {"lerp_constant_saturated", 1, 1, 1},
	OpSpline4Const:          {"spline4_const", 1, 1, 1},
	OpSpline8Const:          {"spline8_const", 1, 1, 1},
	OpSpline8ChainConst:     {"spline8_chain_const", 2, 1, 1},
	OpGradient4Const:        {"gradient4_const", 1, 1, 1},
	OpGradient8Const:        {"gradient8_const", 1, 1, 1},

	// Externs
	OpPushExternInputFloat: {"push_extern_input_float", 0, 1, 2},
	OpPushExternInputVec4:  {"push_extern_input_vec4", 0, 1, 2},
	OpPushExternInputMat4:  {"push_extern_input_mat4", 0, 4, 2},
	OpPushExternInputTex:   {"push_extern_input_tex", 0, 1, 2},
	OpPushExternInputU32:   {"push_extern_input_u32", 0, 1, 2},
	OpPushExternInputUav:   {"push_extern_input_uav", 0, 1, 2},

	// Output, temporaries and bindings
	OpUnk42:                   {"unk42", 0, 1, 0},
	OpPushFromOutput:          {"push_from_output", 0, 1, 1},
	OpPopOutput:               {"pop_output", 1, 0, 1},
	OpPopOutputMat4:           {"pop_output_mat4", 4, 0, 1},
	OpPushTemp:                {"push_temp", 0, 1, 1},
	OpPopTemp:                 {"pop_temp", 1, 0, 1},
	OpSetShaderTexture:        {"set_shader_texture", 1, 0, 1},
	OpUnk49:                   {"unk49", 1, 0, 1},
	OpSetShaderSampler:        {"set_shader_sampler", 1, 0, 1},
	OpSetShaderUav:            {"set_shader_uav", 1, 0, 1},
	OpUnk4c:                   {"unk4c", 0, 1, 1},
	OpPushSampler:             {"push_sampler", 0, 1, 1},
	OpPushObjectChannelVector: {"push_object_channel_vector", 0, 1, 4},
	OpPushGlobalChannelVector: {"push_global_channel_vector", 0, 1, 1},
	OpUnk50:                   {"unk50", 0, 1, 1},
	OpUnk51:                   {"unk51", 1, 0, 0},
	OpPushTexDimensions:       {"push_tex_dimensions", 0, 1, 2},
	OpPushTexTilingParams:     {"push_tex_tiling_params", 0, 1, 2},
	OpPushTexTileLayerCount:   {"push_tex_tile_layer_count", 0, 1, 2},
	OpUnk55:                   {"unk55", 0, 0, 0},
	OpUnk56:                   {"unk56", 0, 0, 0},
	OpUnk57:                   {"unk57", 0, 0, 0},
	OpUnk58:                   {"unk58", 0, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes get a zero
// OpcodeInfo named "UNKNOWN(0xNN)".
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Known reports whether op is in the opcode table.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the encoded length including the opcode byte.
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsExternPush reports whether op reads from extern storage.
func (op Opcode) IsExternPush() bool {
	return op >= OpPushExternInputFloat && op <= OpPushExternInputUav
}

// IsConstantOp reports whether op's operand indexes the constant pool.
func (op Opcode) IsConstantOp() bool {
	return op >= OpPushConstVec4 && op <= OpGradient8Const
}

// IsBinding reports whether op forwards a resource to a shader stage.
func (op Opcode) IsBinding() bool {
	return op == OpSetShaderTexture || op == OpSetShaderSampler || op == OpSetShaderUav
}

// IsUnimplemented reports whether op has no known semantics. Executing one
// records a diagnostic and applies only the stack effect from the table.
func (op Opcode) IsUnimplemented() bool {
	switch op {
	case OpUnk14, OpUnk1b, OpUnk1c, OpUnk24, OpUnk25, OpUnk26, OpUnk2c, OpUnk2d,
		OpUnk42, OpUnk49, OpUnk4c, OpUnk50, OpUnk51,
		OpUnk55, OpUnk56, OpUnk57, OpUnk58:
		return true
	}
	return false
}

// AllOpcodes returns every opcode in the table.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
