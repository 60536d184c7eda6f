package image

import (
	"bytes"
	"context"
	"errors"
	goimage "image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
)

type request struct {
	layer Layer
	src   *composite.Source
}

// decodeQueue records decode requests so tests decide when, and in which
// order, results reach the engine.
type decodeQueue struct {
	reqs []request
}

func (q *decodeQueue) request(layer Layer, src *composite.Source) {
	q.reqs = append(q.reqs, request{layer, src})
}

func (q *decodeQueue) resolveAll(t *testing.T, e *Engine) {
	t.Helper()
	dec := NewDecoder(1, 0)
	for _, r := range q.reqs {
		img, err := dec.Decode(context.Background(), r.src)
		e.Resolve(Decoded{Layer: r.layer, ID: r.src.ID, Image: img, Err: err})
	}
	q.reqs = nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, m *composite.Model) (*Engine, *decodeQueue) {
	t.Helper()
	fonts, err := NewFontBook("", testLogger())
	require.NoError(t, err)

	q := &decodeQueue{}
	e := NewEngine(m.Canvas(), fonts, q.request, testLogger())
	t.Cleanup(e.Close)

	return e, q
}

func pngSource(t *testing.T, w, h int, fill func(x, y int) color.Color) composite.Source {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return composite.Source{MIME: "image/png", Data: buf.Bytes()}
}

func solid(t *testing.T, w, h int, c color.Color) composite.Source {
	return pngSource(t, w, h, func(int, int) color.Color { return c })
}

func encode(t *testing.T, e *Engine) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.Encode(&buf))
	return buf.Bytes()
}

func TestRenderPlaceholder(t *testing.T) {
	m := composite.New(composite.Canvas{})
	e, _ := newTestEngine(t, m)

	frame := e.Render(m.Snapshot())

	assert.True(t, frame.Complete)
	assert.Empty(t, frame.Pending)
	assert.Equal(t, Placeholder, e.Surface().RGBAAt(0, 0))
	assert.Equal(t, Placeholder, e.Surface().RGBAAt(499, 499))
}

func TestRenderIsIdempotent(t *testing.T) {
	m := composite.New(composite.Canvas{})
	content := "Hello"
	m.SetTextStyle(composite.Style{Content: &content})
	m.SetOverlayImage(solid(t, 40, 40, blue))
	e, q := newTestEngine(t, m)

	e.Render(m.Snapshot())
	q.resolveAll(t, e)

	e.Render(m.Snapshot())
	first := encode(t, e)
	e.Render(m.Snapshot())
	second := encode(t, e)

	assert.Equal(t, first, second)
}

func TestRenderLayerOrder(t *testing.T) {
	m := composite.New(composite.Canvas{})
	m.SetBackground(solid(t, 10, 10, red))
	m.SetOverlayImage(solid(t, 100, 100, blue))
	m.SetOverlayScale(0.5)
	content := "MMMM"
	size := 60
	m.SetTextStyle(composite.Style{Content: &content, SizePx: &size})
	m.SetTextAnchor(composite.Point{X: 250, Y: 280})
	e, q := newTestEngine(t, m)

	e.Render(m.Snapshot())
	q.resolveAll(t, e)
	frame := e.Render(m.Snapshot())
	require.True(t, frame.Complete)

	s := e.Surface()
	assert.Equal(t, red, s.RGBAAt(10, 10))
	assert.Equal(t, blue, s.RGBAAt(210, 205))

	textOverOverlay := false
	for y := 240; y < 280 && !textOverOverlay; y++ {
		for x := 201; x < 300; x++ {
			if c := s.RGBAAt(x, y); c.B < 0x20 && c.R < 0x20 {
				textOverOverlay = true
				break
			}
		}
	}
	assert.True(t, textOverOverlay, "text should be painted above the overlay")
}

func TestStaleDecodeIsDiscarded(t *testing.T) {
	m := composite.New(composite.Canvas{})
	a := m.SetOverlayImage(solid(t, 50, 50, red))
	e, q := newTestEngine(t, m)

	e.Render(m.Snapshot())
	require.Len(t, q.reqs, 1)
	reqA := q.reqs[0]
	q.reqs = nil

	b := m.SetOverlayImage(solid(t, 50, 50, blue))
	frame := e.Render(m.Snapshot())
	assert.Equal(t, []Layer{Overlay}, frame.Pending)
	require.Len(t, q.reqs, 1)
	assert.Equal(t, b.ID, q.reqs[0].src.ID)

	q.resolveAll(t, e)

	dec := NewDecoder(1, 0)
	imgA, err := dec.Decode(context.Background(), reqA.src)
	require.NoError(t, err)
	assert.False(t, e.Resolve(Decoded{Layer: Overlay, ID: a.ID, Image: imgA}))

	frame = e.Render(m.Snapshot())
	assert.True(t, frame.Complete)
	assert.Equal(t, blue, e.Surface().RGBAAt(250, 250))
}

func TestPendingBackgroundHoldsUpperLayers(t *testing.T) {
	m := composite.New(composite.Canvas{})
	m.SetBackground(solid(t, 10, 10, red))
	content := "text"
	m.SetTextStyle(composite.Style{Content: &content})
	e, q := newTestEngine(t, m)

	frame := e.Render(m.Snapshot())

	assert.False(t, frame.Complete)
	assert.Equal(t, []Layer{Background}, frame.Pending)
	assert.True(t, e.Pending())
	for y := 0; y < 500; y += 7 {
		for x := 0; x < 500; x += 7 {
			require.Equal(t, color.RGBA{}, e.Surface().RGBAAt(x, y))
		}
	}

	q.resolveAll(t, e)
	assert.False(t, e.Pending())
	assert.True(t, e.Render(m.Snapshot()).Complete)
}

func TestFailedDecodeLeavesLayerUnpainted(t *testing.T) {
	m := composite.New(composite.Canvas{})
	src := m.SetOverlayImage(composite.Source{MIME: "image/png", Data: []byte("not a png")})
	e, q := newTestEngine(t, m)

	e.Render(m.Snapshot())
	q.resolveAll(t, e)
	frame := e.Render(m.Snapshot())

	assert.True(t, frame.Complete)
	require.Contains(t, frame.Failed, Overlay)
	assert.Equal(t, Placeholder, e.Surface().RGBAAt(250, 250))
	assert.NotZero(t, src.ID)
}

func TestOutOfBoundsTextIsClipped(t *testing.T) {
	m := composite.New(composite.Canvas{})
	content := "off canvas"
	m.SetTextStyle(composite.Style{Content: &content})
	m.SetTextAnchor(composite.Point{X: -50, Y: 600})
	e, _ := newTestEngine(t, m)

	frame := e.Render(m.Snapshot())

	assert.True(t, frame.Complete)
	for y := 0; y < 500; y++ {
		for x := 0; x < 500; x++ {
			require.Equal(t, Placeholder, e.Surface().RGBAAt(x, y))
		}
	}
}

func TestBackgroundIsStretched(t *testing.T) {
	m := composite.New(composite.Canvas{})
	m.SetBackground(pngSource(t, 2, 1, func(x, _ int) color.Color {
		if x == 0 {
			return red
		}
		return green
	}))
	e, q := newTestEngine(t, m)

	e.Render(m.Snapshot())
	q.resolveAll(t, e)
	e.Render(m.Snapshot())

	assert.Equal(t, red, e.Surface().RGBAAt(5, 10))
	assert.Equal(t, red, e.Surface().RGBAAt(5, 490))
	assert.Equal(t, green, e.Surface().RGBAAt(495, 250))
}

func TestOverlayIsScaledAndCentred(t *testing.T) {
	m := composite.New(composite.Canvas{})
	m.SetOverlayImage(solid(t, 100, 40, blue))
	m.SetOverlayAnchor(composite.Point{X: 100, Y: 100})
	e, q := newTestEngine(t, m)

	e.Render(m.Snapshot())
	q.resolveAll(t, e)
	e.Render(m.Snapshot())

	// 50x20 at (75, 90)
	s := e.Surface()
	assert.Equal(t, blue, s.RGBAAt(100, 100))
	assert.Equal(t, blue, s.RGBAAt(77, 92))
	assert.Equal(t, Placeholder, s.RGBAAt(70, 100))
	assert.Equal(t, Placeholder, s.RGBAAt(130, 100))
	assert.Equal(t, Placeholder, s.RGBAAt(100, 85))
	assert.Equal(t, Placeholder, s.RGBAAt(100, 115))
}

func TestExportIsDeterministic(t *testing.T) {
	m := composite.New(composite.Canvas{})
	e, _ := newTestEngine(t, m)

	e.Render(m.Snapshot())
	first := encode(t, e)
	e.Render(m.Snapshot())
	second := encode(t, e)

	assert.Equal(t, first, second)

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, goimage.Rect(0, 0, 500, 500), img.Bounds())
}

func TestTextAlignment(t *testing.T) {
	leftmostInk := func(align composite.Align) int {
		m := composite.New(composite.Canvas{})
		content := "WWW"
		size := 40
		m.SetTextStyle(composite.Style{Content: &content, SizePx: &size, Align: &align})
		e, _ := newTestEngine(t, m)
		e.Render(m.Snapshot())

		for x := 0; x < 500; x++ {
			for y := 360; y < 405; y++ {
				if e.Surface().RGBAAt(x, y) != Placeholder {
					return x
				}
			}
		}
		return -1
	}

	left := leftmostInk(composite.AlignLeft)
	center := leftmostInk(composite.AlignCenter)
	right := leftmostInk(composite.AlignRight)

	assert.GreaterOrEqual(t, left, 249)
	assert.Less(t, center, left)
	assert.Less(t, right, center)
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xff, G: 0x88, B: 0x00, A: 0xff}, ParseColor("#ff8800"))
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, ParseColor("#fff"))
	assert.Equal(t, color.Black, ParseColor("tomato"))
}

func TestDecoderRejectsLargeImages(t *testing.T) {
	src := solid(t, 20, 20, red)
	src.ID = 7

	_, err := NewDecoder(2, 100).Decode(context.Background(), &src)
	assert.True(t, errors.Is(err, ErrTooLarge))

	img, err := NewDecoder(2, 400).Decode(context.Background(), &src)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
}

func TestDecoderHonoursContext(t *testing.T) {
	d := NewDecoder(1, 0)
	require.True(t, d.sem.TryAcquire(1))
	defer d.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := solid(t, 2, 2, red)
	_, err := d.Decode(ctx, &src)
	assert.True(t, errors.Is(err, context.Canceled))
}
