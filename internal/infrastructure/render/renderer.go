package render

import (
	"image/color"
	"math"

	"bemore/internal/core/domain"
	"bemore/pkg/validation"
)

// FaceOutline lists the landmark indices of the face oval in drawing order.
var FaceOutline = []int{
	10, 338, 297, 332, 284, 251, 389, 356, 454, 323, 361, 288,
	397, 365, 379, 378, 400, 377, 152, 148, 176, 149, 150, 136,
	172, 58, 132, 93, 234, 127, 162, 21, 54, 103, 67, 109,
}

var (
	DefaultMarkerColor  = color.RGBA{R: 0x00, G: 0xff, B: 0x00, A: 0xff}
	DefaultOutlineColor = color.RGBA{R: 0x00, G: 0xc8, B: 0xff, A: 0xff}
)

const (
	DefaultMarkerRadius = 1.0
	DefaultLineWidth    = 1.0
)

// Renderer draws landmark frames, mirrored to match a front camera preview, onto a
// bound surface. It keeps no state between frames besides the bound context.
type Renderer struct {
	ctx Context

	outline      []int
	markerColor  color.Color
	outlineColor color.Color
	markerRadius float64
	lineWidth    float64
}

type Option func(*Renderer)

func WithOutline(indices []int) Option {
	return func(r *Renderer) {
		r.outline = append([]int(nil), indices...)
	}
}

func WithColors(marker, outline color.Color) Option {
	return func(r *Renderer) {
		r.markerColor = marker
		r.outlineColor = outline
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		outline:      FaceOutline,
		markerColor:  DefaultMarkerColor,
		outlineColor: DefaultOutlineColor,
		markerRadius: DefaultMarkerRadius,
		lineWidth:    DefaultLineWidth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind acquires the drawing context of s, replacing any earlier binding. When no
// context can be acquired the renderer ends up unbound.
func (r *Renderer) Bind(s Surface) {
	r.ctx = nil
	if s == nil {
		return
	}
	if ctx, ok := s.Context(); ok && ctx != nil {
		r.ctx = ctx
	}
}

func (r *Renderer) Bound() bool {
	return r.ctx != nil
}

// Draw renders one frame. It never fails: an unbound renderer, a bad size or
// unusable points only mean less gets drawn.
func (r *Renderer) Draw(req domain.DrawRequest) {
	ctx := r.ctx
	if ctx == nil || req.Width <= 0 || req.Height <= 0 {
		return
	}
	if req.Width > validation.MaxFrameDimension || req.Height > validation.MaxFrameDimension {
		return
	}

	w, h := float64(req.Width), float64(req.Height)

	ctx.Resize(req.Width, req.Height)
	// Resize already resets the transform on a Canvas; reset explicitly so other
	// contexts cannot accumulate one mirror per frame.
	ctx.ResetTransform()
	ctx.Translate(w, 0)
	ctx.Scale(-1, 1)
	ctx.ClearRect(0, 0, w, h)
	defer ctx.Commit()

	if len(req.Points) == 0 {
		return
	}

	for _, p := range req.Points {
		px, ok := toPixel(p, w, h)
		if !ok {
			continue
		}
		ctx.FillCircle(px.X, px.Y, r.markerRadius, r.markerColor)
	}

	path := make([]Point, 0, len(r.outline))
	for _, idx := range r.outline {
		if idx < 0 || idx >= len(req.Points) {
			continue
		}
		if px, ok := toPixel(req.Points[idx], w, h); ok {
			path = append(path, px)
		}
	}
	if len(path) >= 2 {
		ctx.StrokePath(path, true, r.outlineColor, r.lineWidth)
	}
}

func toPixel(p *domain.NormalizedPoint, w, h float64) (Point, bool) {
	if p == nil || !finite(p.X) || !finite(p.Y) {
		return Point{}, false
	}
	return Point{X: p.X * w, Y: p.Y * h}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
