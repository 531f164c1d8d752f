package tfx

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	vecZero = mgl32.Vec4{}
	vecOne  = mgl32.Vec4{1, 1, 1, 1}
)

func formatVec4(v mgl32.Vec4) string {
	return fmt.Sprintf("[%g, %g, %g, %g]", v[0], v[1], v[2], v[3])
}

func splat(f float32) mgl32.Vec4 {
	return mgl32.Vec4{f, f, f, f}
}

// lanes applies f to every lane of v.
func lanes(v mgl32.Vec4, f func(float32) float32) mgl32.Vec4 {
	return mgl32.Vec4{f(v[0]), f(v[1]), f(v[2]), f(v[3])}
}

// lanes2 applies f lane-wise to a and b.
func lanes2(a, b mgl32.Vec4, f func(x, y float32) float32) mgl32.Vec4 {
	return mgl32.Vec4{f(a[0], b[0]), f(a[1], b[1]), f(a[2], b[2]), f(a[3], b[3])}
}

// mulv is the component-wise product.
func mulv(a, b mgl32.Vec4) mgl32.Vec4 {
	return mgl32.Vec4{a[0] * b[0], a[1] * b[1], a[2] * b[2], a[3] * b[3]}
}

func divv(a, b mgl32.Vec4) mgl32.Vec4 {
	return mgl32.Vec4{a[0] / b[0], a[1] / b[1], a[2] / b[2], a[3] / b[3]}
}

func hsum(v mgl32.Vec4) float32 {
	return v[0] + v[1] + v[2] + v[3]
}

func boolf(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func roundf(x float32) float32 { return float32(math.Round(float64(x))) }
func floorf(x float32) float32 { return float32(math.Floor(float64(x))) }
func ceilf(x float32) float32  { return float32(math.Ceil(float64(x))) }
func fractf(x float32) float32 { return x - floorf(x) }

func saturatef(x float32) float32 { return mgl32.Clamp(x, 0, 1) }

func saturate(v mgl32.Vec4) mgl32.Vec4 { return lanes(v, saturatef) }

func clampv(v, lo, hi mgl32.Vec4) mgl32.Vec4 {
	return mgl32.Vec4{
		min(max(v[0], lo[0]), hi[0]),
		min(max(v[1], lo[1]), hi[1]),
		min(max(v[2], lo[2]), hi[2]),
		min(max(v[3], lo[3]), hi[3]),
	}
}

func signumf(x float32) float32 {
	if x != x {
		return x
	}
	return float32(math.Copysign(1, float64(x)))
}

// permuteFields decodes a permute operand: lane i of the result takes
// source lane (fields >> (6 - 2i)) & 3.
func permuteFields(fields uint8) [4]int {
	return [4]int{
		int(fields>>6) & 3,
		int(fields>>4) & 3,
		int(fields>>2) & 3,
		int(fields) & 3,
	}
}

func permute(v mgl32.Vec4, fields uint8) mgl32.Vec4 {
	s := permuteFields(fields)
	return mgl32.Vec4{v[s[0]], v[s[1]], v[s[2]], v[s[3]]}
}

// swizzleName renders a permute operand as ".xyzw".
func swizzleName(fields uint8) string {
	const names = "xyzw"
	s := permuteFields(fields)
	return string([]byte{'.', names[s[0]], names[s[1]], names[s[2]], names[s[3]]})
}
