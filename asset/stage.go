package asset

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/tliron/commonlog"

	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/tag"
)

var log = commonlog.GetLogger("tagview.asset")

// ErrConstantBuffer is returned when a stage's constant buffer record
// cannot be resolved or decoded.
var ErrConstantBuffer = errors.New("constant buffer")

// vec4Size is the on-disk width of one constant buffer element.
const vec4Size = 16

// ---------------------------------------------------------------------------
// Stage
// ---------------------------------------------------------------------------

// Stage is one loaded shader stage of a technique.
type Stage struct {
	Stage  tfx.ShaderStage
	Shader *TechniqueShader

	// Program is nil when the stage carries no bytecode.
	Program *tfx.Program

	// Buffer is the initial constant buffer. It is never written; Evaluate
	// works on a copy.
	Buffer []mgl32.Vec4

	// Samplers holds one handle per sampler reference, in operand order.
	Samplers []uint64
}

// Inputs is the per-draw state a stage evaluates against.
type Inputs struct {
	Externs     tfx.ExternSource
	Channels    map[uint32]mgl32.Vec4
	Globals     *tfx.GlobalChannels
	Binder      tfx.Binder
	Diagnostics *tfx.Diagnostics
}

// Evaluate runs the stage's program against a copy of its initial constant
// buffer and returns the result. A stage without bytecode returns the copy
// unchanged.
func (s *Stage) Evaluate(in Inputs) ([]mgl32.Vec4, error) {
	out := make([]mgl32.Vec4, len(s.Buffer))
	copy(out, s.Buffer)
	if err := s.EvaluateInto(out, in); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateInto runs the stage's program writing into a caller-owned buffer.
func (s *Stage) EvaluateInto(out []mgl32.Vec4, in Inputs) error {
	if s.Program == nil {
		return nil
	}
	err := s.Program.Evaluate(&tfx.Env{
		Externs:     in.Externs,
		Output:      out,
		Constants:   s.Shader.Constants,
		Samplers:    s.Samplers,
		Channels:    in.Channels,
		Globals:     in.Globals,
		Binder:      in.Binder,
		Diagnostics: in.Diagnostics,
	})
	if err != nil {
		return fmt.Errorf("%s stage: %w", s.Stage, err)
	}
	return nil
}

// Ops returns the parsed instructions, or nil.
func (s *Stage) Ops() []tfx.Instruction {
	if s.Program == nil {
		return nil
	}
	return s.Program.Ops
}

// ---------------------------------------------------------------------------
// Stage loading
// ---------------------------------------------------------------------------

func (l *Loader) loadStage(ss StageShader) (*Stage, error) {
	st := &Stage{Stage: ss.Stage, Shader: ss.Shader}
	sh := ss.Shader

	if len(sh.Bytecode) > 0 {
		st.Program = l.programs.Load(sh.Bytecode, l.reader.Endian())
	}

	buf, err := l.constantBuffer(sh)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", ss.Stage, err)
	}
	if need := tfx.OutputLen(st.Ops()); need > len(buf) {
		log.Debugf("%s stage: growing constant buffer from %d to %d elements", ss.Stage, len(buf), need)
		buf = append(buf, make([]mgl32.Vec4, need-len(buf))...)
	}
	st.Buffer = buf

	st.Samplers = make([]uint64, len(sh.Samplers))
	for i, smp := range sh.Samplers {
		st.Samplers[i] = smp.Key()
	}
	return st, nil
}

// constantBuffer returns the stage's initial constant buffer: the contents
// of the referenced buffer record when there is one, otherwise the inline
// defaults.
func (l *Loader) constantBuffer(sh *TechniqueShader) ([]mgl32.Vec4, error) {
	if !sh.ConstantBuffer.IsSome() {
		buf := make([]mgl32.Vec4, len(sh.Unk50))
		copy(buf, sh.Unk50)
		return buf, nil
	}
	store := l.reader.Store()
	meta, ok := store.EntryMeta(sh.ConstantBuffer)
	if !ok {
		return nil, fmt.Errorf("%w %s: %w", ErrConstantBuffer, sh.ConstantBuffer, tag.ErrTagNotFound)
	}
	data, err := store.Bytes(tag.TagHash(meta.Reference))
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrConstantBuffer, sh.ConstantBuffer, err)
	}
	return DecodeVec4s(data, l.reader.Endian())
}

// DecodeVec4s decodes a packed array of four-float vectors. Trailing bytes
// that do not form a whole vector are an error.
func DecodeVec4s(data []byte, endian tag.Endian) ([]mgl32.Vec4, error) {
	if len(data)%vec4Size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of vectors", ErrConstantBuffer, len(data))
	}
	c := tag.NewCursor(data, endian)
	out := make([]mgl32.Vec4, len(data)/vec4Size)
	for i := range out {
		for j := range 4 {
			f, err := c.F32()
			if err != nil {
				return nil, err
			}
			out[i][j] = f
		}
	}
	return out, nil
}
