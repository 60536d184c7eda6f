package interact

import "github.com/Carbon-X-DAO/TeeCustomizer/composite"

// Viewport is where the canvas is displayed in client coordinates. A zero
// Width or Height means the canvas is shown at its natural size.
type Viewport struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Local converts a client position into canvas pixel space.
func (v Viewport) Local(canvas composite.Canvas, clientX, clientY float64) composite.Point {
	p := composite.Point{X: clientX - v.Left, Y: clientY - v.Top}
	if v.Width > 0 {
		p.X *= float64(canvas.Width) / v.Width
	}
	if v.Height > 0 {
		p.Y *= float64(canvas.Height) / v.Height
	}
	return p
}
