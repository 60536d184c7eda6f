package composite

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	m := New(Canvas{})

	want := State{
		Canvas: Canvas{Width: 500, Height: 500},
		Overlay: Overlay{
			Scale:  0.5,
			Anchor: Point{X: 250, Y: 250},
		},
		Text: Text{
			Anchor:     Point{X: 250, Y: 400},
			SizePx:     20,
			ColorHex:   "#000000",
			FontFamily: FamilyArial,
			FontWeight: WeightNormal,
			Align:      AlignCenter,
		},
	}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Fatalf("unexpected initial state (-want +got):\n%s", diff)
	}
}

func TestZoomSaturates(t *testing.T) {
	m := New(Canvas{})

	for i := 0; i < 30; i++ {
		m.SetOverlayScale(ZoomStep)
		require.LessOrEqual(t, m.OverlayScale(), MaxScale)
	}
	assert.Equal(t, MaxScale, m.OverlayScale())

	for i := 0; i < 30; i++ {
		m.SetOverlayScale(-ZoomStep)
		require.GreaterOrEqual(t, m.OverlayScale(), MinScale)
	}
	assert.Equal(t, MinScale, m.OverlayScale())
}

func TestOverlayImageKeepsTransform(t *testing.T) {
	m := New(Canvas{})
	m.SetOverlayScale(0.3)
	m.SetOverlayAnchor(Point{X: 10, Y: 20})

	a := m.SetOverlayImage(Source{MIME: "image/png", Data: []byte("a")})
	b := m.SetOverlayImage(Source{MIME: "image/png", Data: []byte("b")})

	s := m.Snapshot()
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, b.ID, s.Overlay.Image.ID)
	assert.InDelta(t, 0.8, s.Overlay.Scale, 1e-9)
	assert.Equal(t, Point{X: 10, Y: 20}, s.Overlay.Anchor)
}

func TestAnchorsAreNotClamped(t *testing.T) {
	m := New(Canvas{})
	m.SetTextAnchor(Point{X: -50, Y: 600})
	m.SetOverlayAnchor(Point{X: 9000, Y: -9000})

	assert.Equal(t, Point{X: -50, Y: 600}, m.TextAnchor())
	assert.Equal(t, Point{X: 9000, Y: -9000}, m.OverlayAnchor())
}

func TestSetTextStyleMergesPartial(t *testing.T) {
	m := New(Canvas{})
	content := "hello"
	weight := WeightBold
	m.SetTextStyle(Style{Content: &content, FontWeight: &weight})

	size := 42
	m.SetTextStyle(Style{SizePx: &size})

	txt := m.Snapshot().Text
	assert.Equal(t, "hello", txt.Content)
	assert.Equal(t, WeightBold, txt.FontWeight)
	assert.Equal(t, 42, txt.SizePx)
	assert.Equal(t, AlignCenter, txt.Align)
	assert.Equal(t, "bold 42px Arial", txt.Font())
}

func TestEverySetterNotifiesOnce(t *testing.T) {
	m := New(Canvas{})
	calls := 0
	m.OnChange(func() { calls++ })

	m.SetBackground(Source{})
	m.SetOverlayImage(Source{})
	m.SetOverlayScale(ZoomStep)
	m.SetOverlayAnchor(Point{})
	m.SetTextAnchor(Point{})
	m.SetTextStyle(Style{})

	assert.Equal(t, 6, calls)
}

func TestParseStyleValues(t *testing.T) {
	f, err := ParseFontFamily("courier new")
	require.NoError(t, err)
	assert.Equal(t, FamilyCourierNew, f)

	_, err = ParseFontFamily("Comic Sans")
	assert.True(t, errors.Is(err, ErrUnknownValue))

	w, err := ParseFontWeight("Lighter")
	require.NoError(t, err)
	assert.Equal(t, WeightLighter, w)

	_, err = ParseAlign("justify")
	assert.Error(t, err)
}
