package server

import (
	"sort"
	"sync"

	"github.com/chazu/tagview/pkg/tfx"
)

// BindingKind distinguishes the resource tables a program can bind into.
type BindingKind string

const (
	BindTexture BindingKind = "texture"
	BindSampler BindingKind = "sampler"
	BindUAV     BindingKind = "uav"
)

// Binding is the last handle bound to one stage slot.
type Binding struct {
	Kind   BindingKind
	Stage  tfx.ShaderStage
	Slot   uint8
	Handle uint64
}

type bindingKey struct {
	kind  BindingKind
	stage tfx.ShaderStage
	slot  uint8
}

// Bindings is a tfx.Binder that records the last handle bound to each
// slot instead of talking to a GPU.
type Bindings struct {
	mu    sync.Mutex
	slots map[bindingKey]uint64
}

// NewBindings returns an empty recorder.
func NewBindings() *Bindings {
	return &Bindings{slots: make(map[bindingKey]uint64)}
}

func (b *Bindings) set(kind BindingKind, stage tfx.ShaderStage, slot uint8, h uint64) {
	b.mu.Lock()
	b.slots[bindingKey{kind, stage, slot}] = h
	b.mu.Unlock()
}

func (b *Bindings) BindTexture(stage tfx.ShaderStage, slot uint8, h uint64) { b.set(BindTexture, stage, slot, h) }
func (b *Bindings) BindSampler(stage tfx.ShaderStage, slot uint8, h uint64) { b.set(BindSampler, stage, slot, h) }
func (b *Bindings) BindUAV(stage tfx.ShaderStage, slot uint8, h uint64)     { b.set(BindUAV, stage, slot, h) }

// Snapshot returns every recorded binding ordered by kind, stage and slot.
func (b *Bindings) Snapshot() []Binding {
	b.mu.Lock()
	out := make([]Binding, 0, len(b.slots))
	for k, h := range b.slots {
		out = append(out, Binding{Kind: k.kind, Stage: k.stage, Slot: k.slot, Handle: h})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Clear forgets every binding.
func (b *Bindings) Clear() {
	b.mu.Lock()
	clear(b.slots)
	b.mu.Unlock()
}
