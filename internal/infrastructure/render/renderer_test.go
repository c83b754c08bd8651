package render

import (
	"image/color"
	"math"
	"testing"

	"bemore/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op     string
	args   []float64
	path   []Point
	closed bool
}

// recordingContext records drawing calls and tracks the transform the way a
// canvas would.
type recordingContext struct {
	calls     []call
	transform Matrix
	width     int
	height    int
}

func newRecordingContext() *recordingContext {
	return &recordingContext{transform: Identity}
}

func (r *recordingContext) Resize(w, h int) {
	r.width, r.height = w, h
	r.transform = Identity
	r.calls = append(r.calls, call{op: "resize", args: []float64{float64(w), float64(h)}})
}

func (r *recordingContext) ResetTransform() {
	r.transform = Identity
	r.calls = append(r.calls, call{op: "reset"})
}

func (r *recordingContext) Translate(x, y float64) {
	r.transform = r.transform.Multiply(Matrix{A: 1, D: 1, E: x, F: y})
	r.calls = append(r.calls, call{op: "translate", args: []float64{x, y}})
}

func (r *recordingContext) Scale(sx, sy float64) {
	r.transform = r.transform.Multiply(Matrix{A: sx, D: sy})
	r.calls = append(r.calls, call{op: "scale", args: []float64{sx, sy}})
}

func (r *recordingContext) ClearRect(x, y, w, h float64) {
	r.calls = append(r.calls, call{op: "clear", args: []float64{x, y, w, h}})
}

func (r *recordingContext) FillCircle(cx, cy, radius float64, _ color.Color) {
	r.calls = append(r.calls, call{op: "circle", args: []float64{cx, cy, radius}})
}

func (r *recordingContext) StrokePath(path []Point, closed bool, _ color.Color, _ float64) {
	r.calls = append(r.calls, call{op: "stroke", path: append([]Point(nil), path...), closed: closed})
}

func (r *recordingContext) Commit() {
	r.calls = append(r.calls, call{op: "commit"})
}

func (r *recordingContext) count(op string) int {
	n := 0
	for _, c := range r.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (r *recordingContext) find(op string) []call {
	var out []call
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fixedSurface struct {
	ctx Context
	ok  bool
}

func (s fixedSurface) Context() (Context, bool) {
	return s.ctx, s.ok
}

func fullFace(n int) []*domain.NormalizedPoint {
	pts := make([]*domain.NormalizedPoint, n)
	for i := range pts {
		pts[i] = &domain.NormalizedPoint{X: 0.25 + float64(i%10)*0.05, Y: 0.25 + float64(i%7)*0.05}
	}
	return pts
}

func TestRenderer_DrawBeforeBindIsNoop(t *testing.T) {
	r := NewRenderer()
	assert.False(t, r.Bound())

	assert.NotPanics(t, func() {
		r.Draw(domain.DrawRequest{Width: 640, Height: 480, Points: fullFace(468)})
	})

	ctx := newRecordingContext()
	r.Bind(fixedSurface{ctx: ctx, ok: true})
	require.True(t, r.Bound())
	assert.Empty(t, ctx.calls)
}

func TestRenderer_BindWithoutContextLeavesUnbound(t *testing.T) {
	r := NewRenderer()
	first := newRecordingContext()
	r.Bind(fixedSurface{ctx: first, ok: true})
	require.True(t, r.Bound())

	r.Bind(fixedSurface{ok: false})
	assert.False(t, r.Bound())

	r.Draw(domain.DrawRequest{Width: 10, Height: 10, Points: fullFace(5)})
	assert.Empty(t, first.calls)

	r.Bind(nil)
	assert.False(t, r.Bound())
}

func TestRenderer_EmptyPointsClearsOnly(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{Width: 320, Height: 240})

	assert.Equal(t, 1, ctx.count("resize"))
	assert.Equal(t, 1, ctx.count("clear"))
	assert.Equal(t, 0, ctx.count("circle"))
	assert.Equal(t, 0, ctx.count("stroke"))
	assert.Equal(t, 1, ctx.count("commit"))

	clear := ctx.find("clear")[0]
	assert.Equal(t, []float64{0, 0, 320, 240}, clear.args)
}

func TestRenderer_CallOrder(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{Width: 100, Height: 50, Points: fullFace(468)})

	var ops []string
	for _, c := range ctx.calls {
		if c.op != "circle" {
			ops = append(ops, c.op)
		}
	}
	assert.Equal(t, []string{"resize", "reset", "translate", "scale", "clear", "stroke", "commit"}, ops)
	assert.Equal(t, 468, ctx.count("circle"))
	assert.Equal(t, []float64{100, 0}, ctx.find("translate")[0].args)
	assert.Equal(t, []float64{-1, 1}, ctx.find("scale")[0].args)
}

func TestRenderer_MarkersAtPixelCoordinates(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{
		Width:  200,
		Height: 100,
		Points: []*domain.NormalizedPoint{{X: 0.5, Y: 0.5}, nil, {X: 0.1, Y: 0.9}},
	})

	circles := ctx.find("circle")
	require.Len(t, circles, 2)
	assert.Equal(t, []float64{100, 50, DefaultMarkerRadius}, circles[0].args)
	assert.InDelta(t, 20, circles[1].args[0], 1e-9)
	assert.InDelta(t, 90, circles[1].args[1], 1e-9)
}

func TestRenderer_ShortPointListSkipsMissingOutlineIndices(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	// covers outline indices 10, 21, 54, 58, 67, 93 and nothing above 99
	points := fullFace(100)
	r.Draw(domain.DrawRequest{Width: 100, Height: 100, Points: points})

	assert.Equal(t, 100, ctx.count("circle"))
	strokes := ctx.find("stroke")
	require.Len(t, strokes, 1)
	assert.True(t, strokes[0].closed)

	var expected []Point
	for _, idx := range FaceOutline {
		if idx < len(points) {
			expected = append(expected, Point{X: points[idx].X * 100, Y: points[idx].Y * 100})
		}
	}
	assert.Equal(t, expected, strokes[0].path)
	assert.Equal(t, 1, ctx.count("commit"))
}

func TestRenderer_NilOutlinePointIsSkipped(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer(WithOutline([]int{0, 1, 2}))
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{
		Width:  10,
		Height: 10,
		Points: []*domain.NormalizedPoint{{X: 0, Y: 0}, nil, {X: 1, Y: 1}},
	})

	strokes := ctx.find("stroke")
	require.Len(t, strokes, 1)
	assert.Equal(t, []Point{{0, 0}, {10, 10}}, strokes[0].path)
}

func TestRenderer_NonFinitePointsSkipped(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer(WithOutline([]int{0, 1}))
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{
		Width:  10,
		Height: 10,
		Points: []*domain.NormalizedPoint{{X: math.NaN(), Y: 0}, {X: 0.5, Y: math.Inf(1)}},
	})

	assert.Equal(t, 0, ctx.count("circle"))
	assert.Equal(t, 0, ctx.count("stroke"))
	assert.Equal(t, 1, ctx.count("commit"))
}

func TestRenderer_InvalidDimensionsSkipped(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{Width: 0, Height: 10, Points: fullFace(3)})
	r.Draw(domain.DrawRequest{Width: 10, Height: -1, Points: fullFace(3)})
	r.Draw(domain.DrawRequest{Width: 100000, Height: 100000, Points: fullFace(3)})

	assert.Empty(t, ctx.calls)
}

func TestRenderer_MirrorDoesNotAccumulate(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	for i := 0; i < 3; i++ {
		r.Draw(domain.DrawRequest{Width: 100, Height: 100, Points: fullFace(1)})
		assert.Equal(t, Matrix{A: -1, D: 1, E: 100}, ctx.transform, "frame %d", i)
	}
}

func TestRenderer_ResizesToEachRequest(t *testing.T) {
	ctx := newRecordingContext()
	r := NewRenderer()
	r.Bind(fixedSurface{ctx: ctx, ok: true})

	r.Draw(domain.DrawRequest{Width: 640, Height: 480, Points: fullFace(5)})
	r.Draw(domain.DrawRequest{Width: 320, Height: 200, Points: fullFace(5)})

	resizes := ctx.find("resize")
	require.Len(t, resizes, 2)
	assert.Equal(t, []float64{640, 480}, resizes[0].args)
	assert.Equal(t, []float64{320, 200}, resizes[1].args)
	assert.Equal(t, 320, ctx.width)
	assert.Equal(t, 200, ctx.height)
}
