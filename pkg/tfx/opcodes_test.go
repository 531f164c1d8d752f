package tfx

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeTableCoversRanges(t *testing.T) {
	ranges := [][2]Opcode{{0x01, 0x2E}, {0x34, 0x58}}
	want := 0
	for _, r := range ranges {
		for op := r[0]; op <= r[1]; op++ {
			want++
			if !op.Known() {
				t.Errorf("Opcode 0x%02X missing from table", byte(op))
			}
		}
	}
	if got := OpcodeCount(); got != want {
		t.Errorf("OpcodeCount() = %d, want %d", got, want)
	}
	for _, op := range []Opcode{0x00, 0x2F, 0x33, 0x59, 0xFF} {
		if op.Known() {
			t.Errorf("Opcode 0x%02X should be unknown", byte(op))
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpAdd, "add"},
		{OpMerge1_3, "merge_1_3"},
		{OpPermute, "permute"},
		{OpPushConstVec4, "push_const_vec4"},
		{OpGradient8Const, "gradient8_const"},
		{OpPushExternInputMat4, "push_extern_input_mat4"},
		{OpPopOutputMat4, "pop_output_mat4"},
		{OpPushObjectChannelVector, "push_object_channel_vector"},
		{OpUnk58, "unk58"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	got := Opcode(0xEE).String()
	if got != "UNKNOWN(0xEE)" {
		t.Errorf("unknown opcode = %q", got)
	}
}

func TestOpcodeOperandLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpAdd, 0},
		{OpPermute, 1},
		{OpPushConstVec4, 1},
		{OpPushExternInputFloat, 2}, // extern + offset
		{OpPushTemp, 1},
		{OpSetShaderTexture, 1},
		{OpPushObjectChannelVector, 4}, // u32 hash
		{OpPushTexDimensions, 2},       // index + fields
		{OpUnk51, 0},
	}

	for _, tt := range tests {
		if got := tt.op.OperandLen(); got != tt.want {
			t.Errorf("%s.OperandLen() = %d, want %d", tt.op, got, tt.want)
		}
		if got := tt.op.InstructionLen(); got != tt.want+1 {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, tt.want+1)
		}
	}
}

func TestOpcodeClassification(t *testing.T) {
	for _, op := range AllOpcodes() {
		if op.IsExternPush() && op.ExternUnit() == 0 {
			t.Errorf("%s: extern push without unit", op)
		}
		if op.IsBinding() && op.OperandLen() != 1 {
			t.Errorf("%s: binding operand len %d", op, op.OperandLen())
		}
		if op.IsConstantOp() && op.OperandLen() != 1 {
			t.Errorf("%s: constant operand len %d", op, op.OperandLen())
		}
	}
	if !OpUnk14.IsUnimplemented() || OpAdd.IsUnimplemented() {
		t.Error("IsUnimplemented misclassifies")
	}
}
