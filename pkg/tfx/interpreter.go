package tfx

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrOutputOutOfRange is returned when an output opcode addresses an
// element past the end of the caller's buffer. It aborts the evaluation.
var ErrOutputOutOfRange = errors.New("output element out of range")

const (
	// StackCapacity is the maximum evaluation stack depth.
	StackCapacity = 64
	// TempSlots is the number of temporary registers.
	TempSlots = 16
)

// Binder receives the resources a program binds to shader stages.
type Binder interface {
	BindTexture(stage ShaderStage, slot uint8, handle uint64)
	BindSampler(stage ShaderStage, slot uint8, handle uint64)
	BindUAV(stage ShaderStage, slot uint8, handle uint64)
}

// Env is everything a single evaluation reads from and writes to. Every
// field may be left nil.
type Env struct {
	Externs ExternSource
	// Output is the constant buffer written by pop_output.
	Output    []mgl32.Vec4
	Constants []mgl32.Vec4
	Samplers  []uint64
	// Channels maps object channel hashes to values.
	Channels    map[uint32]mgl32.Vec4
	Globals     *GlobalChannels
	Binder      Binder
	Diagnostics *Diagnostics
}

// Interpreter evaluates one parsed program. It holds no per-call state and
// may be shared between goroutines.
type Interpreter struct {
	ops []Instruction
}

// NewInterpreter wraps a parsed program.
func NewInterpreter(ops []Instruction) *Interpreter {
	return &Interpreter{ops: ops}
}

// Ops returns the program's instructions.
func (ip *Interpreter) Ops() []Instruction {
	return ip.ops
}

// Evaluate runs the program once. Recoverable problems are recorded in
// env.Diagnostics and a substitute value is used; only output bounds
// violations return an error.
func (ip *Interpreter) Evaluate(env *Env) error {
	if env == nil {
		env = &Env{}
	}
	m := machine{env: env, diag: env.Diagnostics}
	for pc, in := range ip.ops {
		if err := m.step(in); err != nil {
			return fmt.Errorf("tfx: instruction %d (%s): %w", pc, in.Op, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

type stackSlot struct {
	handle bool
	vec    mgl32.Vec4
	h      uint64
}

type machine struct {
	env   *Env
	diag  *Diagnostics
	stack [StackCapacity]stackSlot
	sp    int
	temp  [TempSlots]mgl32.Vec4
}

func (m *machine) pushSlot(s stackSlot) {
	if m.sp == StackCapacity {
		m.diag.Record(Malformed, "TFX stack overflow")
		return
	}
	m.stack[m.sp] = s
	m.sp++
}

func (m *machine) push(v mgl32.Vec4) {
	m.pushSlot(stackSlot{vec: v})
}

func (m *machine) pushHandle(h uint64) {
	m.pushSlot(stackSlot{handle: true, h: h})
}

func (m *machine) popSlot() (stackSlot, bool) {
	if m.sp == 0 {
		m.diag.Record(Malformed, "TFX stack underflow")
		return stackSlot{}, false
	}
	m.sp--
	return m.stack[m.sp], true
}

func (m *machine) pop() mgl32.Vec4 {
	s, ok := m.popSlot()
	if ok && s.handle {
		m.diag.Record(InvalidType, "TFX stack value is a resource handle, expected a vector")
		return vecZero
	}
	return s.vec
}

func (m *machine) popHandle() uint64 {
	s, ok := m.popSlot()
	if ok && !s.handle {
		m.diag.Record(InvalidType, "TFX stack value is a vector, expected a resource handle")
		return 0
	}
	return s.h
}

// pop2 returns (t1, t0) with t0 the former top.
func (m *machine) pop2() (mgl32.Vec4, mgl32.Vec4) {
	t0 := m.pop()
	return m.pop(), t0
}

func (m *machine) pop3() (mgl32.Vec4, mgl32.Vec4, mgl32.Vec4) {
	t0 := m.pop()
	t1 := m.pop()
	return m.pop(), t1, t0
}

func (m *machine) apply(f func(mgl32.Vec4) mgl32.Vec4) {
	m.push(f(m.pop()))
}

func (m *machine) binary(f func(t1, t0 mgl32.Vec4) mgl32.Vec4) {
	m.push(f(m.pop2()))
}

// constants returns n constants starting at start, or nil after recording a
// diagnostic when the pool is too short.
func (m *machine) constants(op Opcode, start uint8, n int) []mgl32.Vec4 {
	c := m.env.Constants
	if int(start)+n > len(c) {
		m.diag.Recordf(Malformed, "TFX %s constant %d out of range (%d constants)", op, int(start)+n-1, len(c))
		return nil
	}
	return c[start : int(start)+n]
}

// constOp runs f over the top of the stack using n constants. When the
// constants are missing the inputs are consumed and zero is pushed.
func (m *machine) constOp(in Instruction, n int, f func(x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4) {
	c := m.constants(in.Op, in.Index, n)
	x := m.pop()
	if c == nil {
		m.push(vecZero)
		return
	}
	m.push(f(x, c))
}

func (m *machine) step(in Instruction) error {
	switch in.Op {
	// Arithmetic
	case OpAdd, OpAdd2:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return t1.Add(t0) })
	case OpSubtract:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return t1.Sub(t0) })
	case OpMultiply, OpMultiply2:
		m.binary(mulv)
	case OpDivide:
		m.binary(divv)
	case OpMin:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return lanes2(t1, t0, func(a, b float32) float32 { return min(a, b) }) })
	case OpMax:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return lanes2(t1, t0, func(a, b float32) float32 { return max(a, b) }) })
	case OpLessThan:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return lanes2(t0, t1, func(a, b float32) float32 { return boolf(a < b) }) })
	case OpDot:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return splat(t0.Dot(t1)) })
	case OpMerge1_3:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return mgl32.Vec4{t1[0], t0[0], t0[1], t0[2]} })
	case OpMerge2_2:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return mgl32.Vec4{t1[0], t1[1], t0[0], t0[1]} })
	case OpMerge3_1:
		m.binary(func(t1, t0 mgl32.Vec4) mgl32.Vec4 { return mgl32.Vec4{t1[0], t1[1], t1[2], t0[0]} })
	case OpCubic:
		m.binary(cubic)
	case OpLerp, OpLerpSaturated:
		b, a, v := m.pop3()
		r := a.Add(mulv(v, b.Sub(a)))
		if in.Op == OpLerpSaturated {
			r = saturate(r)
		}
		m.push(r)
	case OpMultiplyAdd:
		t2, t1, t0 := m.pop3()
		m.push(t0.Add(mulv(t1, t2)))
	case OpClamp:
		v, lo, hi := m.pop3()
		m.push(clampv(v, lo, hi))
	case OpTransformVec4:
		value := m.pop()
		w := m.pop()
		z := m.pop()
		y := m.pop()
		x := m.pop()
		m.push(transform(x, y, z, w, value))

	// Unary, in place
	case OpIsZero:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, func(x float32) float32 { return boolf(x == 0) }) })
	case OpNegate:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return v.Mul(-1) })
	case OpAbs:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, mgl32.Abs) })
	case OpSignum:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, signumf) })
	case OpFloor:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, floorf) })
	case OpCeil:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, ceilf) })
	case OpRound:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, roundf) })
	case OpFrac:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, fractf) })
	case OpSaturate:
		m.apply(saturate)
	case OpVectorRotationsSin:
		m.apply(sinRotations)
	case OpVectorRotationsCos:
		m.apply(cosRotations)
	case OpVectorRotationsSinCos:
		m.apply(sinCosRotations)
	case OpPermuteExtendX:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return splat(v[0]) })
	case OpPermute:
		m.apply(func(v mgl32.Vec4) mgl32.Vec4 { return permute(v, in.Fields) })
	case OpTriangle:
		m.apply(triangle)
	case OpJitter:
		m.apply(jitter)
	case OpWander:
		m.apply(wander)
	case OpRand:
		m.apply(rand)
	case OpRandSmooth:
		m.apply(randSmooth)

	// Constants
	case OpPushConstVec4:
		if c := m.constants(in.Op, in.Index, 1); c != nil {
			m.push(c[0])
		} else {
			m.push(vecZero)
		}
	case OpLerpConstant, OpLerpConstantSaturated:
		m.constOp(in, 2, func(x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4 {
			r := c[0].Add(mulv(x, c[1].Sub(c[0])))
			if in.Op == OpLerpConstantSaturated {
				r = saturate(r)
			}
			return r
		})
	case OpSpline4Const:
		m.constOp(in, 5, spline4)
	case OpSpline8Const:
		m.constOp(in, 10, spline8)
	case OpSpline8ChainConst:
		c := m.constants(in.Op, in.Index, 10)
		recursion, x := m.pop2()
		if c == nil {
			m.push(vecZero)
			break
		}
		m.push(spline8Chain(recursion, x, c))
	case OpGradient4Const:
		m.constOp(in, 6, gradient4)
	case OpGradient8Const:
		m.constOp(in, 11, gradient8)

	// Externs
	case OpPushExternInputFloat:
		m.push(splat(m.extern(in, KindFloat).Float))
	case OpPushExternInputVec4:
		m.push(m.extern(in, KindVec4).Vec4)
	case OpPushExternInputMat4:
		mat := m.extern(in, KindMat4).Mat4
		for i := range 4 {
			m.push(mat.Col(i))
		}
	case OpPushExternInputTex:
		m.pushHandle(m.extern(in, KindTexture).Handle)
	case OpPushExternInputUav:
		m.pushHandle(m.extern(in, KindUav).Handle)
	case OpPushExternInputU32:
		m.push(mgl32.Vec4{math.Float32frombits(m.extern(in, KindU32).U32), 0, 0, 0})

	// Output and temporaries
	case OpPushFromOutput:
		out := m.env.Output
		if out == nil {
			m.push(vecZero)
			break
		}
		if int(in.Index) >= len(out) {
			return fmt.Errorf("%w: element %d, buffer has %d", ErrOutputOutOfRange, in.Index, len(out))
		}
		m.push(out[in.Index])
	case OpPopOutput:
		out := m.env.Output
		if out != nil && int(in.Index) >= len(out) {
			return fmt.Errorf("%w: element %d, buffer has %d", ErrOutputOutOfRange, in.Index, len(out))
		}
		v := m.pop()
		if out != nil {
			out[in.Index] = v
		}
	case OpPopOutputMat4:
		out := m.env.Output
		if out != nil && int(in.Index)+3 >= len(out) {
			return fmt.Errorf("%w: elements %d..%d, buffer has %d", ErrOutputOutOfRange, in.Index, int(in.Index)+3, len(out))
		}
		var cols [4]mgl32.Vec4
		for i := 3; i >= 0; i-- {
			cols[i] = m.pop()
		}
		if out != nil {
			copy(out[in.Index:], cols[:])
		}
	case OpPushTemp:
		if int(in.Index) >= TempSlots {
			m.diag.Recordf(Malformed, "TFX temp slot %d out of range", in.Index)
			m.push(vecZero)
			break
		}
		m.push(m.temp[in.Index])
	case OpPopTemp:
		v := m.pop()
		if int(in.Index) >= TempSlots {
			m.diag.Recordf(Malformed, "TFX temp slot %d out of range", in.Index)
			break
		}
		m.temp[in.Index] = v

	// Resources and channels
	case OpSetShaderTexture:
		h := m.popHandle()
		if b := m.env.Binder; b != nil {
			b.BindTexture(in.Stage, in.Index, h)
		}
	case OpSetShaderSampler:
		h := m.popHandle()
		if b := m.env.Binder; b != nil {
			b.BindSampler(in.Stage, in.Index, h)
		}
	case OpSetShaderUav:
		h := m.popHandle()
		if b := m.env.Binder; b != nil {
			b.BindUAV(in.Stage, in.Index, h)
		}
	case OpPushSampler:
		s := m.env.Samplers
		if int(in.Index) >= len(s) {
			m.diag.Recordf(Malformed, "TFX sampler index %d out of range (%d samplers)", in.Index, len(s))
			m.pushHandle(0)
			break
		}
		m.pushHandle(s[in.Index])
	case OpPushObjectChannelVector:
		m.push(m.env.Channels[in.Hash])
	case OpPushGlobalChannelVector:
		if g := m.env.Globals; g != nil {
			m.push(g.Value(in.Index))
		} else {
			m.push(vecOne)
		}
	case OpPushTexDimensions, OpPushTexTilingParams, OpPushTexTileLayerCount:
		m.push(permute(mgl32.Vec4{0.25, 0.25, 0.25, 0.0625}, in.Fields))

	default:
		m.unimplemented(in.Op)
	}
	return nil
}

// unimplemented applies only the table's stack effect.
func (m *machine) unimplemented(op Opcode) {
	m.diag.Recordf(Unimplemented, "TFX expression opcode '%s' is not implemented", op)
	info := GetOpcodeInfo(op)
	for range info.StackPop {
		m.popSlot()
	}
	for range info.StackPush {
		if op == OpUnk50 {
			m.push(vecZero)
		} else {
			m.push(vecOne)
		}
	}
}

// ---------------------------------------------------------------------------
// Extern reads
// ---------------------------------------------------------------------------

// extern reads the field addressed by an extern push. On failure it records
// a diagnostic and returns the substitute for want.
func (m *machine) extern(in Instruction, want ValueKind) ExternValue {
	kind, offset := in.Extern, in.ExternOffset()
	src := m.env.Externs
	if src == nil {
		m.diag.Recordf(ExternNotSet, "Extern %s not set", kind)
		return SubstituteValue(want)
	}

	if lk, ok := src.(ExternLookup); ok {
		v, st := lk.Lookup(kind, offset, want)
		switch st {
		case ExternOK:
			src.RecordUsed(kind)
			return v
		case ExternUnimplemented:
			m.diag.Recordf(Unimplemented, "Extern field %s@0x%X is unimplemented (type %s)", kind, offset, want)
			src.RecordUsed(kind)
			return v
		case ExternInvalidType:
			m.diag.Recordf(InvalidType, "Extern field %s@0x%X has invalid type (expected %s)", kind, offset, want)
		case ExternFieldNotFound:
			m.diag.Recordf(Unimplemented, "Extern field @ 0x%X for %s not found (type %s)", offset, kind, want)
		case ExternNotFound:
			m.diag.Recordf(ExternNotSet, "Extern %s not found", kind)
		default:
			m.diag.Recordf(ExternNotSet, "Extern %s not set", kind)
		}
		return SubstituteValue(want)
	}

	v, ok := src.Extern(kind, offset)
	if !ok {
		m.diag.Recordf(ExternNotSet, "Extern %s not set", kind)
		return SubstituteValue(want)
	}
	if v.Kind != want {
		m.diag.Recordf(InvalidType, "Extern field %s@0x%X has invalid type (expected %s)", kind, offset, want)
		return SubstituteValue(want)
	}
	src.RecordUsed(kind)
	return v
}
