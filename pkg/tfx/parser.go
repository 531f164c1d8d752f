package tfx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chazu/tagview/tag"
)

var (
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrTruncatedOperand   = errors.New("truncated operand")
	ErrInvalidExtern      = errors.New("invalid extern")
	ErrInvalidShaderStage = errors.New("invalid shader stage")
)

// ParseError reports where in a bytecode buffer parsing stopped.
type ParseError struct {
	Offset int
	Op     Opcode
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tfx: offset 0x%04X (opcode 0x%02X %s): %v", e.Offset, byte(e.Op), e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ShaderStage is the pipeline stage a binding opcode targets.
type ShaderStage uint8

const (
	StagePixel    ShaderStage = 1
	StageVertex   ShaderStage = 2
	StageGeometry ShaderStage = 3
	StageHull     ShaderStage = 4
	StageCompute  ShaderStage = 5
	StageDomain   ShaderStage = 6
)

func (s ShaderStage) String() string {
	switch s {
	case StagePixel:
		return "Pixel"
	case StageVertex:
		return "Vertex"
	case StageGeometry:
		return "Geometry"
	case StageHull:
		return "Hull"
	case StageCompute:
		return "Compute"
	case StageDomain:
		return "Domain"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// decodeStage splits a binding operand into stage (high three bits) and
// slot (low five bits).
func decodeStage(v uint8) (ShaderStage, uint8, error) {
	s := ShaderStage(v >> 5)
	if s < StagePixel || s > StageDomain {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidShaderStage, v>>5)
	}
	return s, v & 0x1f, nil
}

// Instruction is one decoded TFX operation. Only the operands the opcode
// uses are populated:
//
//	constant ops               Index = constant start
//	extern pushes              Extern, Index = offset in element units
//	output / temp ops          Index = element or slot
//	set_shader_*               Stage, Index = slot
//	push_sampler, global chan  Index
//	unk49 / unk4c / unk50      Index = raw operand
//	permute                    Fields
//	push_tex_*                 Index, Fields
//	push_object_channel_vector Hash
type Instruction struct {
	Op     Opcode
	Extern ExternKind
	Index  uint8
	Fields uint8
	Stage  ShaderStage
	Hash   uint32
}

// ExternUnit is the byte size of one offset unit for an extern push.
func (op Opcode) ExternUnit() uint32 {
	switch op {
	case OpPushExternInputFloat, OpPushExternInputU32:
		return 4
	case OpPushExternInputTex, OpPushExternInputUav:
		return 8
	case OpPushExternInputVec4, OpPushExternInputMat4:
		return 16
	}
	return 0
}

// ExternOffset returns the byte offset an extern push reads from.
func (in Instruction) ExternOffset() uint32 {
	return uint32(in.Index) * in.Op.ExternUnit()
}

// ParseAll decodes a whole bytecode buffer. Every operand is a single byte
// except the object-channel hash, which is big-endian regardless of the
// record endianness; endian is accepted so callers pass the record's byte
// order through unchanged.
//
// On success the result is never nil, so an empty program is
// distinguishable from a failed parse.
func ParseAll(data []byte, endian tag.Endian) ([]Instruction, error) {
	_ = endian
	out := make([]Instruction, 0, len(data)/2)
	for off := 0; off < len(data); {
		op := Opcode(data[off])
		info, ok := opcodeInfoTable[op]
		if !ok {
			return nil, &ParseError{Offset: off, Op: op, Err: ErrUnknownOpcode}
		}
		end := off + 1 + info.OperandLen
		if end > len(data) {
			return nil, &ParseError{Offset: off, Op: op,
				Err: fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedOperand, info.OperandLen, len(data)-off-1)}
		}
		in, err := decodeOperands(op, data[off+1:end])
		if err != nil {
			return nil, &ParseError{Offset: off, Op: op, Err: err}
		}
		out = append(out, in)
		off = end
	}
	return out, nil
}

func decodeOperands(op Opcode, operand []byte) (Instruction, error) {
	in := Instruction{Op: op}
	switch {
	case len(operand) == 0:
	case op.IsExternPush():
		in.Extern = ExternKind(operand[0])
		if !in.Extern.Valid() {
			return in, fmt.Errorf("%w: %d", ErrInvalidExtern, operand[0])
		}
		in.Index = operand[1]
	case op.IsBinding():
		stage, slot, err := decodeStage(operand[0])
		if err != nil {
			return in, err
		}
		in.Stage, in.Index = stage, slot
	case op == OpPermute:
		in.Fields = operand[0]
	case op == OpPushObjectChannelVector:
		in.Hash = binary.BigEndian.Uint32(operand)
	case op >= OpPushTexDimensions && op <= OpPushTexTileLayerCount:
		in.Index, in.Fields = operand[0], operand[1]
	default:
		in.Index = operand[0]
	}
	return in, nil
}

// Encode is the inverse of ParseAll.
func Encode(ops []Instruction) []byte {
	var out []byte
	for _, in := range ops {
		out = in.AppendTo(out)
	}
	return out
}

// AppendTo appends the encoded instruction to b.
func (in Instruction) AppendTo(b []byte) []byte {
	b = append(b, byte(in.Op))
	switch {
	case in.Op.OperandLen() == 0:
	case in.Op.IsExternPush():
		b = append(b, byte(in.Extern), in.Index)
	case in.Op.IsBinding():
		b = append(b, byte(in.Stage)<<5|in.Index&0x1f)
	case in.Op == OpPermute:
		b = append(b, in.Fields)
	case in.Op == OpPushObjectChannelVector:
		b = binary.BigEndian.AppendUint32(b, in.Hash)
	case in.Op >= OpPushTexDimensions && in.Op <= OpPushTexTileLayerCount:
		b = append(b, in.Index, in.Fields)
	default:
		b = append(b, in.Index)
	}
	return b
}
