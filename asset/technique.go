// Package asset declares the technique and shader-stage record layouts and
// turns a technique record into runnable TFX programs.
package asset

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/tag"
)

// NoConstantBufferSlot marks a shader that does not bind its constant
// buffer.
const NoConstantBufferSlot = -1

// TextureAssignment binds a texture to a shader resource slot.
type TextureAssignment struct {
	Slot    uint32
	_       uint32
	Texture tag.WideHash
}

// TechniqueShader is one stage of a technique: the shader reference, its
// resource bindings and the TFX bytecode that fills its constant buffer.
type TechniqueShader struct {
	_        tag.Layout `tag:"size=0x90"`
	Shader   tag.TagHash
	Unk4     uint32
	Textures []TextureAssignment
	Unk18    uint64

	Bytecode  []byte
	Constants []mgl32.Vec4
	Samplers  []tag.WideHash
	// Initial constant buffer contents when ConstantBuffer is absent.
	Unk50 []mgl32.Vec4
	Unk60 [4]uint32

	ConstantBufferSlot int32
	ConstantBuffer     tag.TagHash
	Unk78              [6]uint32
}

// IsSome reports whether the stage has a shader.
func (s *TechniqueShader) IsSome() bool { return s.Shader.IsSome() }

// Technique is a technique header: render state plus six shader stages.
// Unk8 selects which stages are bound (1 is the usual vertex+pixel pair).
type Technique struct {
	_        tag.Layout `tag:"size=0x3D0"`
	FileSize uint64
	Unk8     uint32
	UnkC     uint32
	Unk10    uint32
	Unk14    uint32
	Unk18    uint32
	Unk1C    uint32
	Unk20    uint16
	Unk22    uint16
	Unk24    uint32
	Unk28    uint32
	Unk2C    uint32
	Unk30    [16]uint32

	Vertex  TechniqueShader `tag:"offset=0x70"`
	Unk1    TechniqueShader
	Unk2    TechniqueShader
	Unk3    TechniqueShader
	Pixel   TechniqueShader
	Compute TechniqueShader
}

// StageShader pairs a pipeline stage with its shader record.
type StageShader struct {
	Stage  tfx.ShaderStage
	Shader *TechniqueShader
}

// Shaders returns the vertex, pixel and compute stages in that order,
// whether or not they are populated.
func (t *Technique) Shaders() []StageShader {
	return []StageShader{
		{tfx.StageVertex, &t.Vertex},
		{tfx.StagePixel, &t.Pixel},
		{tfx.StageCompute, &t.Compute},
	}
}

// ValidShaders is Shaders filtered to stages that reference a shader.
func (t *Technique) ValidShaders() []StageShader {
	var out []StageShader
	for _, s := range t.Shaders() {
		if s.Shader.IsSome() {
			out = append(out, s)
		}
	}
	return out
}
