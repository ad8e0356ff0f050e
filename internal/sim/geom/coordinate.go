package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Coordinate describes how a vertex set is placed: scale, then rotate, then
// translate (or translate before rotating when the vertices are a rigid sub-part
// of something larger).
type Coordinate struct {
	Position mgl64.Vec3
	// Euler angles in radians, applied x then y then z.
	Rotation mgl64.Vec3
	Scale    float64
	Size     mgl64.Vec3

	// CenterFlag moves the centroid of the input vertices to the origin before scaling.
	CenterFlag bool
	// TranslateFirst moves by Position*Scale before rotating.
	TranslateFirst bool
}

func NewCoordinate() Coordinate {
	return Coordinate{
		Scale:      1,
		Size:       mgl64.Vec3{1, 1, 1},
		CenterFlag: true,
	}
}

// Transform returns a new vertex slice; the input and the Coordinate are not modified.
func (c Coordinate) Transform(vertices []mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(vertices))
	copy(out, vertices)
	if len(out) == 0 {
		return out
	}
	if c.CenterFlag {
		ctr := Centroid(out)
		for i := range out {
			out[i] = out[i].Sub(ctr)
		}
	}
	k := c.Size.Mul(c.Scale)
	for i := range out {
		out[i] = hadamard(out[i], k)
	}
	if c.TranslateFirst {
		off := c.Position.Mul(c.Scale)
		for i := range out {
			out[i] = out[i].Add(off)
		}
		return rotateInPlace(out, c.Rotation)
	}
	out = rotateInPlace(out, c.Rotation)
	for i := range out {
		out[i] = out[i].Add(c.Position)
	}
	return out
}

// Compose applies chain in order: chain[0] is the innermost (the vertices'
// own coordinate) and each following entry is the next enclosing parent.
func Compose(vertices []mgl64.Vec3, chain ...Coordinate) []mgl64.Vec3 {
	out := vertices
	for _, c := range chain {
		out = c.Transform(out)
	}
	if len(chain) == 0 {
		out = make([]mgl64.Vec3, len(vertices))
		copy(out, vertices)
	}
	return out
}

func Centroid(vertices []mgl64.Vec3) mgl64.Vec3 {
	if len(vertices) == 0 {
		return mgl64.Vec3{}
	}
	var sum mgl64.Vec3
	for _, v := range vertices {
		sum = sum.Add(v)
	}
	return sum.Mul(1 / float64(len(vertices)))
}

// Flatten lays vertices out as x0,y0,z0,x1,... for the renderer.
func Flatten(vertices []mgl64.Vec3) []float64 {
	out := make([]float64, 0, 3*len(vertices))
	for _, v := range vertices {
		out = append(out, v[0], v[1], v[2])
	}
	return out
}

// Wrap maps x into [lo, lo+span) with a floored modulo.
func Wrap(x, lo, span float64) float64 {
	m := math.Mod(x-lo, span)
	if m < 0 {
		m += span
	}
	if m >= span {
		m = 0
	}
	return m + lo
}

func hadamard(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
