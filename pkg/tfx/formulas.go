package tfx

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ===========================================================================
// Periodic helpers
// ===========================================================================

// wrapHalf wraps every lane into [-0.5, 0.5].
func wrapHalf(v mgl32.Vec4) mgl32.Vec4 {
	return v.Sub(lanes(v, roundf))
}

func pseudoSin(a mgl32.Vec4) mgl32.Vec4 {
	w := wrapHalf(a)
	return lanes(w, func(x float32) float32 { return x * (float32(math.Abs(float64(x)))*-16 + 8) })
}

// sinRotations estimates sin(2πa) per lane, with a measured in rotations.
func sinRotations(a mgl32.Vec4) mgl32.Vec4 {
	return lanes(pseudoSin(a), func(y float32) float32 {
		return y * (0.225*float32(math.Abs(float64(y))) + 0.775)
	})
}

func cosRotations(a mgl32.Vec4) mgl32.Vec4 {
	return sinRotations(a.Add(splat(0.25)))
}

// sinCosRotations gives (sin x, cos y, sin z, cos w).
func sinCosRotations(a mgl32.Vec4) mgl32.Vec4 {
	return sinRotations(a.Add(mgl32.Vec4{0, 0.25, 0, 0.25}))
}

func triangle(v mgl32.Vec4) mgl32.Vec4 {
	return lanes(wrapHalf(v), func(x float32) float32 { return float32(math.Abs(float64(x))) * 2 })
}

// ===========================================================================
// Noise
// ===========================================================================

func jitter(v mgl32.Vec4) mgl32.Vec4 {
	rot := mulv(splat(v[0]), mgl32.Vec4{4.67, 2.99, 1.08, 1.35}).Add(mgl32.Vec4{0.52, 0.37, 0.16, 0.79})
	a := wrapHalf(rot)
	ma := lanes(a, func(x float32) float32 { return float32(math.Abs(float64(x)))*-16 + 8 })
	f := a.Mul(0.25).Dot(ma) + 0.5
	return splat((-2*f + 3) * f * f)
}

func wander(v mgl32.Vec4) mgl32.Vec4 {
	x := splat(v[0])
	rot0 := mulv(x, mgl32.Vec4{4.08, 1.02, 3.0 / 5.37, 3.0 / 9.67}).Add(mgl32.Vec4{0.92, 0.33, 0.26, 0.54})
	rot1 := mulv(x, mgl32.Vec4{1.83, 3.09, 0.39, 0.87}).Add(mgl32.Vec4{0.12, 0.37, 0.16, 0.79})
	s0 := pseudoSin(rot0)
	s1 := mulv(pseudoSin(rot1), mgl32.Vec4{0.02, 0.02, 0.28, 0.28})
	return splat(0.5 + s0.Dot(s1))
}

var randWeights = mgl32.Vec4{1.0 / 1.043501, 1.0 / 0.794471, 1.0 / 0.113777, 1.0 / 0.015101}

func hash1(x float32) float32 {
	v := fractf(splat(x).Dot(randWeights))
	return fractf(v * v * 251)
}

func rand(v mgl32.Vec4) mgl32.Vec4 {
	return splat(hash1(floorf(v[0])))
}

func randSmooth(v mgl32.Vec4) mgl32.Vec4 {
	v0 := roundf(v[0])
	f := v[0] - v0
	s := (-2*f + 3) * f * f
	r0, r1 := hash1(v0), hash1(v0+1)
	return splat(r0 + (r1-r0)*s)
}

// ===========================================================================
// Polynomials and gradients
// ===========================================================================

// cubic evaluates c.x*x³ + c.y*x² + c.z*x + c.w per lane.
func cubic(x, c mgl32.Vec4) mgl32.Vec4 {
	high := x.Mul(c[0]).Add(splat(c[1]))
	low := x.Mul(c[2]).Add(splat(c[3]))
	return mulv(high, mulv(x, x)).Add(low)
}

// spline4 evaluates the four-segment spline in c[0..4]. Lane i of the
// polynomial is kept when x has crossed threshold i but not i+1, and the
// kept lanes are folded together bitwise.
func spline4(x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4 {
	eval := mulv(mulv(x, c[0]).Add(c[1]), mulv(x, x)).Add(mulv(c[2], x).Add(c[3]))
	var m [5]bool
	for i := range 4 {
		m[i] = c[4][i] <= x[i]
	}
	var folded uint32
	for i := range 4 {
		if m[i] != m[i+1] {
			folded ^= math.Float32bits(eval[i])
		}
	}
	return splat(math.Float32frombits(folded))
}

func step(edge, x mgl32.Vec4) mgl32.Vec4 {
	return lanes2(edge, x, func(e, v float32) float32 { return boolf(v >= e) })
}

// segmentMask turns a threshold step mask into a one-hot channel mask.
func segmentMask(m mgl32.Vec4) mgl32.Vec4 {
	yzww := mgl32.Vec4{m[1], m[2], m[3], m[3]}
	s := lanes(m.Add(yzww), func(f float32) float32 {
		r := float32(math.Mod(float64(f), 2))
		if r < 0 {
			r += 2
		}
		return r
	})
	s[3] = m[3]
	return s
}

type splineEval struct {
	c, d         float32
	cMask, dMask mgl32.Vec4
}

// spline8Parts evaluates both four-segment halves of an eight-segment
// spline. c holds c3, c2, c1, c0, d3, d2, d1, d0, c thresholds, d
// thresholds.
func spline8Parts(x mgl32.Vec4, c []mgl32.Vec4) splineEval {
	x2 := mulv(x, x)
	cEval := mulv(mulv(c[0], x).Add(c[1]), x2).Add(mulv(c[2], x).Add(c[3]))
	dEval := mulv(mulv(c[4], x).Add(c[5]), x2).Add(mulv(c[6], x).Add(c[7]))
	cm, dm := step(c[8], x), step(c[9], x)
	return splineEval{
		c:     hsum(mulv(cEval, segmentMask(cm))),
		d:     hsum(mulv(dEval, segmentMask(dm))),
		cMask: cm,
		dMask: dm,
	}
}

func spline8(x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4 {
	e := spline8Parts(x, c)
	if e.dMask[0] > 0 {
		return splat(e.d)
	}
	return splat(e.c)
}

// spline8Chain is spline8 with a fallback: below the first c threshold the
// result comes from a previously evaluated spline.
func spline8Chain(recursion, x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4 {
	e := spline8Parts(x, c)
	r := recursion[0]
	if e.cMask[0] != 0 {
		r = e.c
	}
	if e.dMask[0] != 0 {
		r = e.d
	}
	return splat(r)
}

// segmentWeights gives how far x has progressed through each of the four
// segments starting at thr, saturated. A zero-width segment is a step.
func segmentWeights(x, thr, next mgl32.Vec4, zero func(float32) bool) mgl32.Vec4 {
	off := x.Sub(thr)
	interval := next.Sub(thr)
	var p mgl32.Vec4
	for i := range 4 {
		if zero(interval[i]) {
			p[i] = boolf(off[i] >= 0)
		} else {
			p[i] = off[i] / interval[i]
		}
	}
	return saturate(p)
}

// gradient4 blends a base color with four weighted color deltas. c holds
// base, red, green, blue, alpha and thresholds.
func gradient4(x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4 {
	thr := c[5]
	p := segmentWeights(x, thr, mgl32.Vec4{thr[1], thr[2], thr[3], 1},
		func(f float32) bool { return f == 0 })
	return c[0].Add(mgl32.Vec4{
		hsum(mulv(c[1], p)),
		hsum(mulv(c[2], p)),
		hsum(mulv(c[3], p)),
		hsum(mulv(c[4], p)),
	})
}

// gradient8 is the eight-stop form of gradient4. c holds base, four delta
// colors for the first half, four for the second, then the two threshold
// vectors. The first half's last segment ends at the second half's first
// threshold.
func gradient8(x mgl32.Vec4, c []mgl32.Vec4) mgl32.Vec4 {
	thr0, thr1 := c[9], c[10]
	nearZero := func(f float32) bool { return float32(math.Abs(float64(f))) <= 1e-4 }
	p0 := segmentWeights(x, thr0, mgl32.Vec4{thr0[1], thr0[2], thr0[3], thr1[0]}, nearZero)
	p1 := segmentWeights(x, thr1, mgl32.Vec4{thr1[1], thr1[2], thr1[3], 1}, nearZero)
	var sum mgl32.Vec4
	for i := range 4 {
		sum[i] = hsum(mulv(c[1+i], p0).Add(mulv(c[5+i], p1)))
	}
	return c[0].Add(sum)
}

// transform multiplies value by the matrix whose columns are x, y, z, w.
func transform(x, y, z, w, value mgl32.Vec4) mgl32.Vec4 {
	return mgl32.Mat4FromCols(x, y, z, w).Mul4x1(value)
}
