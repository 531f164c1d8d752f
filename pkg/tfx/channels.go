package tfx

import (
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// GlobalChannelCount is the number of global channel slots.
const GlobalChannelCount = 256

// ChannelKind hints how a channel is meant to be edited.
type ChannelKind uint8

const (
	ChannelVec4 ChannelKind = iota
	// ChannelFloat uses only the x lane.
	ChannelFloat
	// ChannelColor is linear; alpha usage varies per channel.
	ChannelColor
	// ChannelSlider is a float bounded by Min and Max.
	ChannelSlider
)

// GlobalChannel is one global channel slot.
type GlobalChannel struct {
	Name     string
	Kind     ChannelKind
	Min, Max float32
	Value    mgl32.Vec4
}

// GlobalChannels holds the 256 global channel vectors read by
// push_global_channel_vector. Safe for concurrent use.
type GlobalChannels struct {
	mu       sync.RWMutex
	channels [GlobalChannelCount]GlobalChannel
	used     [GlobalChannelCount]atomic.Uint64
}

// NewGlobalChannels returns channels initialised to the engine defaults.
func NewGlobalChannels() *GlobalChannels {
	g := &GlobalChannels{}
	for i := range g.channels {
		g.channels[i].Value = mgl32.Vec4{1, 1, 1, 1}
	}
	zero := mgl32.Vec4{}
	one := mgl32.Vec4{1, 1, 1, 1}
	for _, i := range []int{10, 82, 83, 97, 98, 100, 113, 127} {
		g.channels[i].Value = zero
	}
	named := func(i int, name string, kind ChannelKind, v mgl32.Vec4) {
		g.channels[i] = GlobalChannel{Name: name, Kind: kind, Value: v}
	}
	g.channels[75] = GlobalChannel{Name: "unk75 (verity dark/light)", Kind: ChannelSlider, Max: 1}
	g.channels[76] = GlobalChannel{Name: "unk76 (verity dark/light, cancels out unk75)", Kind: ChannelSlider, Max: 1}
	named(27, "global specular intensity", ChannelFloat, one)
	named(28, "global specular tint", ChannelColor, one)
	named(31, "global diffuse direct tint", ChannelColor, one)
	named(32, "global diffuse direct intensity", ChannelFloat, one)
	named(33, "global diffuse penumbra tint", ChannelColor, one)
	named(34, "global diffuse penumbra intensity", ChannelFloat, one)
	named(37, "fog start", ChannelFloat, mgl32.Vec4{50, 0, 0, 0})
	named(41, "fog falloff", ChannelFloat, mgl32.Vec4{50, 0, 0, 0})
	named(84, "ao intensity", ChannelFloat, one)
	g.channels[93].Value = mgl32.Vec4{1, 0, 0, 0}
	// Line lights depend on this; no single value suits every environment.
	g.channels[131].Value = mgl32.Vec4{0.5, 0.5, 0.3, 0}
	return g
}

// Value returns channel i's vector and counts the read.
func (g *GlobalChannels) Value(i uint8) mgl32.Vec4 {
	g.used[i].Add(1)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.channels[i].Value
}

// Channel returns a copy of slot i without counting a read.
func (g *GlobalChannels) Channel(i uint8) GlobalChannel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.channels[i]
}

// Set replaces channel i's vector. Slider channels are clamped to their
// range on the x lane.
func (g *GlobalChannels) Set(i uint8, v mgl32.Vec4) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := &g.channels[i]
	if c.Kind == ChannelSlider {
		v[0] = mgl32.Clamp(v[0], c.Min, c.Max)
	}
	c.Value = v
}

// Used returns how many times channel i has been read.
func (g *GlobalChannels) Used(i uint8) uint64 {
	return g.used[i].Load()
}

// ResetUsed zeroes the read counters.
func (g *GlobalChannels) ResetUsed() {
	for i := range g.used {
		g.used[i].Store(0)
	}
}
