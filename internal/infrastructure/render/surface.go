package render

import (
	"image/color"
)

// Point is a pixel-space coordinate.
type Point struct {
	X, Y float64
}

// Matrix is a 2-D affine transform in canvas order:
//
//	x' = A*x + C*y + E
//	y' = B*x + D*y + F
type Matrix struct {
	A, B, C, D, E, F float64
}

var Identity = Matrix{A: 1, D: 1}

// Multiply returns m × n, i.e. n is applied first.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Matrix) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Context is the 2-D drawing context of a surface. Coordinates passed to the
// drawing calls go through the current transform.
type Context interface {
	// Resize sets the backing raster size. Like a canvas, resizing discards the
	// pixels and resets the transform, even when the size does not change.
	Resize(width, height int)
	ResetTransform()
	Translate(x, y float64)
	Scale(sx, sy float64)
	ClearRect(x, y, w, h float64)
	FillCircle(cx, cy, radius float64, c color.Color)
	StrokePath(path []Point, closed bool, c color.Color, width float64)
	// Commit publishes the current raster to readers of the surface.
	Commit()
}

// Surface is something a Context can be acquired from.
type Surface interface {
	Context() (Context, bool)
}
