// Package interact turns pointer events on the canvas into anchor moves on a
// composite.Model.
package interact

import (
	"math"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
)

// HitRadius is how close, in canvas pixels, a pointer-down must land to an
// anchor to grab that element.
const HitRadius = 50.0

type Target int

const (
	None Target = iota
	Overlay
	Text
)

func (t Target) String() string {
	switch t {
	case Overlay:
		return "overlay"
	case Text:
		return "text"
	}
	return "none"
}

type Controller struct {
	model    *composite.Model
	dragging Target
}

func New(model *composite.Model) *Controller {
	return &Controller{model: model}
}

func (c *Controller) Dragging() Target {
	return c.dragging
}

// PointerDown grabs the overlay if p is within HitRadius of its anchor, else
// the text, and snaps the grabbed anchor to p. The overlay wins ties.
func (c *Controller) PointerDown(p composite.Point) Target {
	switch {
	case distance(p, c.model.OverlayAnchor()) < HitRadius:
		c.dragging = Overlay
	case distance(p, c.model.TextAnchor()) < HitRadius:
		c.dragging = Text
	default:
		c.dragging = None
		return None
	}

	c.move(p)
	return c.dragging
}

// PointerMove reports whether an anchor moved.
func (c *Controller) PointerMove(p composite.Point) bool {
	if c.dragging == None {
		return false
	}

	c.move(p)
	return true
}

func (c *Controller) PointerUp() {
	c.dragging = None
}

func (c *Controller) PointerLeave() {
	c.dragging = None
}

func (c *Controller) move(p composite.Point) {
	switch c.dragging {
	case Overlay:
		c.model.SetOverlayAnchor(p)
	case Text:
		c.model.SetTextAnchor(p)
	}
}

func distance(a, b composite.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
