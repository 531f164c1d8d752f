package asset

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/tag"
)

// Loader materializes techniques and prepares their stage programs.
// Parsed programs are shared through the cache, so loading the same
// technique twice parses its bytecode once. Safe for concurrent use.
type Loader struct {
	reader   *tag.Reader
	programs *tfx.ProgramCache
}

// NewLoader returns a loader reading through r.
func NewLoader(r *tag.Reader, programs *tfx.ProgramCache) *Loader {
	return &Loader{reader: r, programs: programs}
}

// Reader returns the tag reader the loader uses.
func (l *Loader) Reader() *tag.Reader { return l.reader }

// Programs returns the program cache.
func (l *Loader) Programs() *tfx.ProgramCache { return l.programs }

// LoadedTechnique is a technique record with its populated stages.
type LoadedTechnique struct {
	Hash      tag.TagHash
	Technique *Technique
	Stages    []*Stage
}

// Technique reads the technique record h and loads every stage that
// references a shader.
func (l *Loader) Technique(h tag.TagHash) (*LoadedTechnique, error) {
	t, err := tag.ReadTagStruct[Technique](l.reader, h)
	if err != nil {
		return nil, err
	}
	lt := &LoadedTechnique{Hash: h, Technique: &t}
	for _, ss := range t.ValidShaders() {
		st, err := l.loadStage(ss)
		if err != nil {
			return nil, fmt.Errorf("technique %s: %w", h, err)
		}
		lt.Stages = append(lt.Stages, st)
	}
	log.Debugf("loaded technique %s with %d stages", h, len(lt.Stages))
	return lt, nil
}

// Stage returns the loaded stage for s, or nil.
func (lt *LoadedTechnique) Stage(s tfx.ShaderStage) *Stage {
	for _, st := range lt.Stages {
		if st.Stage == s {
			return st
		}
	}
	return nil
}

// Evaluate runs every stage and returns the resulting constant buffers by
// stage. Evaluation stops at the first failing stage.
func (lt *LoadedTechnique) Evaluate(in Inputs) (map[tfx.ShaderStage][]mgl32.Vec4, error) {
	out := make(map[tfx.ShaderStage][]mgl32.Vec4, len(lt.Stages))
	for _, st := range lt.Stages {
		buf, err := st.Evaluate(in)
		if err != nil {
			return out, fmt.Errorf("technique %s: %w", lt.Hash, err)
		}
		out[st.Stage] = buf
	}
	return out, nil
}

// ObjectChannels merges the object channels read by every stage. A channel
// used as a vector anywhere is reported as a vector.
func (lt *LoadedTechnique) ObjectChannels() map[uint32]tfx.ChannelKind {
	ids := make(map[uint32]tfx.ChannelKind)
	for _, st := range lt.Stages {
		for h, k := range tfx.ObjectChannels(st.Ops()) {
			if prev, ok := ids[h]; ok && prev == tfx.ChannelVec4 {
				continue
			}
			ids[h] = k
		}
	}
	return ids
}

// ExternsUsed returns the union of extern kinds read by every stage.
func (lt *LoadedTechnique) ExternsUsed() []tfx.ExternKind {
	var ops []tfx.Instruction
	for _, st := range lt.Stages {
		ops = append(ops, st.Ops()...)
	}
	return tfx.ExternsUsed(ops)
}

// Textures returns the texture assignments of every stage keyed by stage.
func (lt *LoadedTechnique) Textures() map[tfx.ShaderStage][]TextureAssignment {
	out := make(map[tfx.ShaderStage][]TextureAssignment)
	for _, st := range lt.Stages {
		if len(st.Shader.Textures) > 0 {
			out[st.Stage] = st.Shader.Textures
		}
	}
	return out
}
