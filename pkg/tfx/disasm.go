package tfx

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/go-gl/mathgl/mgl32"
)

// Disassemble renders one instruction. constants may be nil; when given,
// constant operands are shown inline.
func (in Instruction) Disassemble(constants []mgl32.Vec4) string {
	name := in.Op.String()
	constAt := func(i int) string {
		if constants == nil {
			return ""
		}
		if i >= len(constants) {
			return "CONSTANT OUT OF RANGE"
		}
		return formatVec4(constants[i])
	}

	switch in.Op {
	case OpPermute:
		return fmt.Sprintf("permute(%s)", swizzleName(in.Fields))
	case OpPushConstVec4:
		if c := constAt(int(in.Index)); c != "" {
			return fmt.Sprintf("%s(%d) // %s", name, in.Index, c)
		}
		return fmt.Sprintf("%s(%d)", name, in.Index)
	case OpLerpConstant, OpLerpConstantSaturated:
		s := int(in.Index)
		line := fmt.Sprintf("%s(%d, %d)", name, s, s+1)
		if constants != nil {
			line += fmt.Sprintf(" // a=%s b=%s", constAt(s), constAt(s+1))
		}
		return line
	case OpSpline4Const:
		return fmt.Sprintf("%s unk1=%d", name, in.Index)
	case OpSpline8Const, OpSpline8ChainConst, OpGradient4Const:
		return fmt.Sprintf("%s constant_start=%d", name, in.Index)
	case OpGradient8Const:
		if c := constAt(int(in.Index)); c != "" {
			return fmt.Sprintf("%s constants[%d] // %s", name, in.Index, c)
		}
		return fmt.Sprintf("%s constants[%d]", name, in.Index)
	case OpPushExternInputFloat, OpPushExternInputVec4, OpPushExternInputMat4,
		OpPushExternInputTex, OpPushExternInputU32, OpPushExternInputUav:
		off := in.ExternOffset()
		line := fmt.Sprintf("%s (%s+0x%X)", name, in.Extern, off)
		if path, ok := FieldPath(in.Extern, off); ok {
			line += " // " + path
		}
		return line
	case OpPushFromOutput, OpPopOutput, OpPopOutputMat4, OpPushTemp, OpPopTemp,
		OpPushGlobalChannelVector:
		return fmt.Sprintf("%s(%d)", name, in.Index)
	case OpSetShaderTexture, OpSetShaderSampler, OpSetShaderUav:
		return fmt.Sprintf("%s stage=%s slot=%d", name, in.Stage, in.Index)
	case OpUnk49, OpUnk4c, OpUnk50:
		return fmt.Sprintf("%s unk1=%d", name, in.Index)
	case OpPushSampler:
		return fmt.Sprintf("%s index=%d", name, in.Index)
	case OpPushObjectChannelVector:
		return fmt.Sprintf("%s(%08X)", name, in.Hash)
	case OpPushTexDimensions, OpPushTexTilingParams, OpPushTexTileLayerCount:
		return fmt.Sprintf("%s index=%d fields=%s", name, in.Index, swizzleName(in.Fields))
	}
	return name
}

// Disassemble returns a plain listing of ops.
func Disassemble(ops []Instruction, constants []mgl32.Vec4) string {
	var sb strings.Builder
	_ = DisassembleTo(&sb, "", ops, constants, false)
	return sb.String()
}

var (
	headerColor  = []color.Attribute{color.FgHiBlack}
	mnemonic     = []color.Attribute{color.FgCyan}
	commentColor = []color.Attribute{color.FgGreen}
	warnColor    = []color.Attribute{color.FgRed, color.Bold}
)

// DisassembleTo writes a listing with an optional name header and the
// constant table. colorize enables ANSI colors regardless of whether w is a
// terminal.
func DisassembleTo(w io.Writer, name string, ops []Instruction, constants []mgl32.Vec4, colorize bool) error {
	paint := func(attrs []color.Attribute, s string) string {
		if !colorize {
			return s
		}
		c := color.New(attrs...)
		c.EnableColor()
		return c.Sprint(s)
	}

	var sb strings.Builder
	if name != "" {
		sb.WriteString(paint(headerColor, fmt.Sprintf("; === %s ===", name)))
		sb.WriteString("\n")
	}
	if len(constants) > 0 {
		sb.WriteString(paint(headerColor, "; Constants:"))
		sb.WriteString("\n")
		for i, c := range constants {
			sb.WriteString(paint(headerColor, fmt.Sprintf(";   [%3d] %s", i, formatVec4(c))))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	for i, in := range ops {
		line := in.Disassemble(constants)
		if colorize {
			line = colorLine(line, paint)
		}
		fmt.Fprintf(&sb, "%04d  %s\n", i, line)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func colorLine(line string, paint func([]color.Attribute, string) string) string {
	code, comment, hasComment := strings.Cut(line, " // ")
	end := strings.IndexAny(code, " (")
	if end < 0 {
		end = len(code)
	}
	out := paint(mnemonic, code[:end]) + code[end:]
	if hasComment {
		c := commentColor
		if strings.Contains(comment, "OUT OF RANGE") {
			c = warnColor
		}
		out += " " + paint(c, "// "+comment)
	}
	return out
}
