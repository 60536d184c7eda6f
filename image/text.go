package image

import (
	"fmt"
	goimage "image"
	"image/color"
	"math"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	defaultTextSize = 10
	maxTextSize     = 1024
	maxFaces        = 32

	// fixed.Int26_6 overflows past 2^25 pixels.
	fixedLimit = 1 << 24
)

type faceKey struct {
	fontKey
	size int
}

// ParseColor accepts #rgb and #rrggbb. Anything else yields opaque black.
func ParseColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.Black
	}

	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func textSize(px int) int {
	if px < 1 {
		return defaultTextSize
	}
	if px > maxTextSize {
		return maxTextSize
	}
	return px
}

func toFixed(v float64) fixed.Int26_6 {
	v = math.Max(-fixedLimit, math.Min(fixedLimit, v))
	return fixed.Int26_6(math.Round(v * 64))
}

func (e *Engine) face(t composite.Text) (font.Face, error) {
	key := faceKey{fontKey{t.FontFamily, t.FontWeight}, textSize(t.SizePx)}
	if f, ok := e.faces[key]; ok {
		return f, nil
	}

	f, err := opentype.NewFace(e.fonts.Lookup(t.FontFamily, t.FontWeight), &opentype.FaceOptions{
		Size:    float64(key.size),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s face: %w", t.Font(), err)
	}

	if len(e.faces) >= maxFaces {
		for k, old := range e.faces {
			old.Close()
			delete(e.faces, k)
		}
	}
	e.faces[key] = f

	return f, nil
}

// drawText paints t with its baseline at t.Anchor.Y; the alignment decides
// whether t.Anchor.X is the left edge, centre or right edge of the string.
func drawText(dst draw.Image, face font.Face, t composite.Text) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  goimage.NewUniform(ParseColor(t.ColorHex)),
		Face: face,
	}

	x := toFixed(t.Anchor.X)
	width := d.MeasureString(t.Content)
	switch t.Align {
	case composite.AlignCenter:
		x -= width / 2
	case composite.AlignRight:
		x -= width
	}

	d.Dot = fixed.Point26_6{X: x, Y: toFixed(t.Anchor.Y)}
	d.DrawString(t.Content)
}
