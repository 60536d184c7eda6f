package session

import (
	"bytes"
	"context"
	"errors"
	goimage "image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/image"
	"github.com/Carbon-X-DAO/TeeCustomizer/interact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

func testOptions(t *testing.T, decode image.DecodeFunc) Options {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fonts, err := image.NewFontBook("", logger)
	require.NoError(t, err)

	if decode == nil {
		decode = image.NewDecoder(2, 0).Decode
	}

	return Options{
		Canvas: composite.Canvas{Width: 500, Height: 500},
		Fonts:  fonts,
		Decode: decode,
		Logger: logger,
	}
}

func newTestSession(t *testing.T, decode image.DecodeFunc) *Session {
	t.Helper()
	s := New("test", testOptions(t, decode))
	t.Cleanup(s.Close)
	return s
}

func solid(t *testing.T, c color.Color) composite.Source {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return composite.Source{MIME: "image/png", Data: buf.Bytes()}
}

// gatedDecoder holds each decode until the test releases it by payload.
type gatedDecoder struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	inner image.DecodeFunc
}

func newGatedDecoder() *gatedDecoder {
	return &gatedDecoder{
		gates: make(map[string]chan struct{}),
		inner: image.NewDecoder(4, 0).Decode,
	}
}

func (g *gatedDecoder) gate(data []byte) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.gates[string(data)]
	if !ok {
		ch = make(chan struct{})
		g.gates[string(data)] = ch
	}
	return ch
}

func (g *gatedDecoder) Decode(ctx context.Context, src *composite.Source) (goimage.Image, error) {
	select {
	case <-g.gate(src.Data):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner(ctx, src)
}

func (g *gatedDecoder) release(data []byte) {
	close(g.gate(data))
}

func centre(t *testing.T, s *Session) color.RGBA {
	t.Helper()
	var c color.RGBA
	require.NoError(t, s.Do(context.Background(), func(w *Workspace) error {
		w.Frame()
		c = w.s.engine.Surface().RGBAAt(250, 250)
		return nil
	}))
	return c
}

func TestDoAppliesMutations(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		w.Model().SetOverlayScale(composite.ZoomStep)
		return nil
	}))

	var scale float64
	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		scale = w.Model().OverlayScale()
		return nil
	}))
	assert.InDelta(t, 0.6, scale, 1e-9)

	wantErr := errors.New("boom")
	assert.Equal(t, wantErr, s.Do(ctx, func(*Workspace) error { return wantErr }))
}

func TestSameTickMutationsRenderOnce(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	blocked := make(chan error, 1)
	go func() {
		blocked <- s.Do(ctx, func(*Workspace) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	for i := 0; i < 5; i++ {
		x := float64(i)
		require.True(t, s.post(ctx, func() {
			s.model.SetTextAnchor(composite.Point{X: x, Y: x})
		}))
	}
	close(release)
	require.NoError(t, <-blocked)

	var renders int
	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		w.Frame()
		renders = s.renders
		return nil
	}))
	assert.Equal(t, 1, renders)
}

func TestStaleOverlayDecodeNeverWins(t *testing.T) {
	g := newGatedDecoder()
	s := newTestSession(t, g.Decode)
	ctx := context.Background()

	a := solid(t, red)
	b := solid(t, blue)

	setOverlay := func(src composite.Source) {
		require.NoError(t, s.Do(ctx, func(w *Workspace) error {
			w.Model().SetOverlayImage(src)
			w.Frame()
			return nil
		}))
	}
	setOverlay(a)
	setOverlay(b)

	g.release(b.Data)
	settleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Settle(settleCtx))
	assert.Equal(t, blue, centre(t, s))

	g.release(a.Data)
	require.Eventually(t, func() bool { return s.Discarded() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, blue, centre(t, s))
}

func TestSettleWaitsForDecode(t *testing.T) {
	g := newGatedDecoder()
	s := newTestSession(t, g.Decode)
	ctx := context.Background()

	bg := solid(t, red)
	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		w.Model().SetBackground(bg)
		return nil
	}))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(s.Settle(short), context.DeadlineExceeded))

	g.release(bg.Data)
	long, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	require.NoError(t, s.Settle(long))

	var frame image.Frame
	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		frame = w.Frame()
		return nil
	}))
	assert.True(t, frame.Complete)
	assert.Equal(t, red, centre(t, s))
}

func TestDragThroughSession(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	var target interact.Target
	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		target = w.Controller().PointerDown(composite.Point{X: 240, Y: 240})
		w.Controller().PointerMove(composite.Point{X: 100, Y: 120})
		w.Controller().PointerLeave()
		return nil
	}))
	assert.Equal(t, interact.Overlay, target)

	var anchor composite.Point
	require.NoError(t, s.Do(ctx, func(w *Workspace) error {
		anchor = w.Model().OverlayAnchor()
		return nil
	}))
	assert.Equal(t, composite.Point{X: 100, Y: 120}, anchor)
}

func TestExportTwiceIsIdentical(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	export := func() []byte {
		var buf bytes.Buffer
		require.NoError(t, s.Do(ctx, func(w *Workspace) error { return w.Encode(&buf) }))
		return buf.Bytes()
	}

	assert.Equal(t, export(), export())
}

func TestClosedSession(t *testing.T) {
	s := newTestSession(t, nil)
	s.Close()
	s.Close()

	err := s.Do(context.Background(), func(*Workspace) error { return nil })
	assert.True(t, errors.Is(err, ErrClosed))
}
