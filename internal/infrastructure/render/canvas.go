package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync/atomic"

	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// Canvas is an offscreen RGBA surface. Drawing happens on a single goroutine;
// Snapshot may be called from any goroutine and sees the last committed frame.
type Canvas struct {
	img       *image.RGBA
	transform Matrix
	published atomic.Pointer[image.RGBA]
}

func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.Resize(width, height)
	return c
}

func (c *Canvas) Context() (Context, bool) {
	return c, true
}

func (c *Canvas) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	c.transform = Identity
}

// Bounds reports the current raster size.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

func (c *Canvas) ResetTransform() {
	c.transform = Identity
}

func (c *Canvas) Translate(x, y float64) {
	c.transform = c.transform.Multiply(Matrix{A: 1, D: 1, E: x, F: y})
}

func (c *Canvas) Scale(sx, sy float64) {
	c.transform = c.transform.Multiply(Matrix{A: sx, D: sy})
}

// Transform returns the current transform.
func (c *Canvas) Transform() Matrix {
	return c.transform
}

func (c *Canvas) ClearRect(x, y, w, h float64) {
	p0 := c.transform.Apply(Point{x, y})
	p1 := c.transform.Apply(Point{x + w, y + h})
	r := image.Rect(
		int(math.Floor(math.Min(p0.X, p1.X))),
		int(math.Floor(math.Min(p0.Y, p1.Y))),
		int(math.Ceil(math.Max(p0.X, p1.X))),
		int(math.Ceil(math.Max(p0.Y, p1.Y))),
	).Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(c.img, r, image.Transparent, image.Point{}, draw.Src)
}

func (c *Canvas) FillCircle(cx, cy, radius float64, col color.Color) {
	b := c.img.Bounds()
	if b.Empty() || radius <= 0 {
		return
	}
	center := c.transform.Apply(Point{cx, cy})
	// uniform scale only; the mirror keeps |det| == 1
	r := radius * math.Sqrt(math.Abs(c.transform.A*c.transform.D-c.transform.B*c.transform.C))
	if !inflatedContains(b, center, r) {
		return
	}

	z := vector.NewRasterizer(b.Dx(), b.Dy())
	k := r * kappa
	x, y := center.X, center.Y
	z.MoveTo(f32(x+r), f32(y))
	z.CubeTo(f32(x+r), f32(y+k), f32(x+k), f32(y+r), f32(x), f32(y+r))
	z.CubeTo(f32(x-k), f32(y+r), f32(x-r), f32(y+k), f32(x-r), f32(y))
	z.CubeTo(f32(x-r), f32(y-k), f32(x-k), f32(y-r), f32(x), f32(y-r))
	z.CubeTo(f32(x+k), f32(y-r), f32(x+r), f32(y-k), f32(x+r), f32(y))
	z.ClosePath()
	z.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// StrokePath strokes the polyline as one quad per segment.
func (c *Canvas) StrokePath(path []Point, closed bool, col color.Color, width float64) {
	b := c.img.Bounds()
	if b.Empty() || len(path) < 2 || width <= 0 {
		return
	}

	pts := make([]Point, len(path), len(path)+1)
	for i, p := range path {
		pts[i] = c.transform.Apply(p)
	}
	if closed {
		pts = append(pts, pts[0])
	}

	z := vector.NewRasterizer(b.Dx(), b.Dy())
	hw := width / 2
	drawn := false
	for i := 0; i+1 < len(pts); i++ {
		a, e := pts[i], pts[i+1]
		dx, dy := e.X-a.X, e.Y-a.Y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*hw, dx/length*hw
		z.MoveTo(f32(a.X+nx), f32(a.Y+ny))
		z.LineTo(f32(e.X+nx), f32(e.Y+ny))
		z.LineTo(f32(e.X-nx), f32(e.Y-ny))
		z.LineTo(f32(a.X-nx), f32(a.Y-ny))
		z.ClosePath()
		drawn = true
	}
	if drawn {
		z.Draw(c.img, b, image.NewUniform(col), image.Point{})
	}
}

func (c *Canvas) Commit() {
	frame := image.NewRGBA(c.img.Bounds())
	copy(frame.Pix, c.img.Pix)
	c.published.Store(frame)
}

// Snapshot returns the last committed frame, or nil before the first commit.
// The returned image must not be modified.
func (c *Canvas) Snapshot() *image.RGBA {
	return c.published.Load()
}

// EncodePNG writes the last committed frame as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	frame := c.Snapshot()
	if frame == nil || frame.Bounds().Empty() {
		// png cannot encode an empty image
		frame = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	return png.Encode(w, frame)
}

// PNG is EncodePNG into a byte slice.
func (c *Canvas) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflatedContains(b image.Rectangle, p Point, r float64) bool {
	return p.X+r >= float64(b.Min.X) && p.X-r <= float64(b.Max.X) &&
		p.Y+r >= float64(b.Min.Y) && p.Y-r <= float64(b.Max.Y)
}

func f32(v float64) float32 {
	return float32(v)
}
