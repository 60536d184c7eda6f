package image

import (
	goimage "image"
	"image/color"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Placeholder is painted when no background image is set.
var Placeholder = color.RGBA{R: 0xd3, G: 0xd3, B: 0xd3, A: 0xff}

func Clear(dst draw.Image) {
	draw.Draw(dst, dst.Bounds(), goimage.Transparent, goimage.Point{}, draw.Src)
}

func Fill(dst draw.Image, c color.Color) {
	draw.Draw(dst, dst.Bounds(), goimage.NewUniform(c), goimage.Point{}, draw.Src)
}

// Stretch draws src over the whole of dst. Width and height are scaled
// independently, so the aspect ratio is not preserved.
func Stretch(dst draw.Image, src goimage.Image) {
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
}

// Place draws src at scale times its natural size, centred on anchor.
// Anything falling outside dst is clipped.
func Place(dst draw.Image, src goimage.Image, anchor composite.Point, scale float64) {
	sb := src.Bounds()
	w := float64(sb.Dx()) * scale
	h := float64(sb.Dy()) * scale
	left := anchor.X - w/2
	top := anchor.Y - h/2

	s2d := f64.Aff3{
		scale, 0, left - scale*float64(sb.Min.X),
		0, scale, top - scale*float64(sb.Min.Y),
	}
	draw.BiLinear.Transform(dst, s2d, src, sb, draw.Over, nil)
}
