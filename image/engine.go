// Package image paints a composite.State onto a fixed-size RGBA surface.
//
// The paint order is fixed: clear, background (or placeholder), overlay,
// text. Image layers are decoded asynchronously; the engine asks for a decode
// when it first sees a source and accepts the result only while that source
// is still the layer's current one.
package image

import (
	"fmt"
	goimage "image"
	"image/png"
	"io"
	"log/slog"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"golang.org/x/image/font"
)

type Layer int

const (
	Background Layer = iota
	Overlay
)

func (l Layer) String() string {
	switch l {
	case Background:
		return "background"
	case Overlay:
		return "overlay"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// Decoded is the outcome of a decode started for (Layer, ID).
type Decoded struct {
	Layer Layer
	ID    uint64
	Image goimage.Image
	Err   error
}

// RequestFunc starts decoding src for layer. It must not block; the result
// is handed back through Engine.Resolve.
type RequestFunc func(layer Layer, src *composite.Source)

// Frame describes the last paint. A frame is complete when no layer was
// waiting on a decode.
type Frame struct {
	Complete bool
	Pending  []Layer
	Failed   map[Layer]error
}

type slot struct {
	id      uint64
	img     goimage.Image
	err     error
	pending bool
}

type Engine struct {
	surface *goimage.RGBA
	fonts   *FontBook
	faces   map[faceKey]font.Face
	request RequestFunc
	slots   [2]slot
	frame   Frame
	logger  *slog.Logger
}

func NewEngine(canvas composite.Canvas, fonts *FontBook, request RequestFunc, logger *slog.Logger) *Engine {
	return &Engine{
		surface: goimage.NewRGBA(goimage.Rect(0, 0, canvas.Width, canvas.Height)),
		fonts:   fonts,
		faces:   make(map[faceKey]font.Face),
		request: request,
		logger:  logger,
	}
}

// Render repaints the surface from scratch. Nothing is painted above a layer
// whose decode is still in flight.
func (e *Engine) Render(s composite.State) Frame {
	e.track(Background, s.Background)
	e.track(Overlay, s.Overlay.Image)

	frame := Frame{Failed: make(map[Layer]error)}
	defer func() { e.frame = frame }()

	Clear(e.surface)

	if s.Background == nil {
		Fill(e.surface, Placeholder)
	} else {
		img, ok := e.layer(Background, &frame)
		if !ok {
			return frame
		}
		if img != nil {
			Stretch(e.surface, img)
		}
	}

	if s.Overlay.Image != nil {
		img, ok := e.layer(Overlay, &frame)
		if !ok {
			return frame
		}
		if img != nil {
			Place(e.surface, img, s.Overlay.Anchor, s.Overlay.Scale)
		}
	}

	if s.Text.Content != "" {
		face, err := e.face(s.Text)
		if err != nil {
			e.logger.Error("text face unavailable", "font", s.Text.Font(), "err", err)
		} else {
			drawText(e.surface, face, s.Text)
		}
	}

	frame.Complete = true
	return frame
}

// Resolve stores a decode result. It reports false when the result belongs to
// a source that has since been replaced or cleared.
func (e *Engine) Resolve(d Decoded) bool {
	sl := &e.slots[d.Layer]
	if !sl.pending || sl.id != d.ID {
		e.logger.Debug("discarding stale decode", "layer", d.Layer, "id", d.ID, "current", sl.id)
		return false
	}

	sl.pending = false
	sl.img = d.Image
	sl.err = d.Err
	if d.Err != nil {
		e.logger.Warn("decode failed", "layer", d.Layer, "id", d.ID, "err", d.Err)
	}

	return true
}

func (e *Engine) Pending() bool {
	return e.slots[Background].pending || e.slots[Overlay].pending
}

func (e *Engine) Frame() Frame {
	return e.frame
}

// Surface is the shared pixel buffer; callers must not hold it across renders.
func (e *Engine) Surface() *goimage.RGBA {
	return e.surface
}

func (e *Engine) Encode(w io.Writer) error {
	if err := png.Encode(w, e.surface); err != nil {
		return fmt.Errorf("encode frame as PNG: %w", err)
	}
	return nil
}

func (e *Engine) Close() {
	for k, f := range e.faces {
		f.Close()
		delete(e.faces, k)
	}
}

func (e *Engine) track(layer Layer, src *composite.Source) {
	sl := &e.slots[layer]
	if src == nil {
		*sl = slot{}
		return
	}
	if sl.id == src.ID {
		return
	}

	*sl = slot{id: src.ID, pending: true}
	e.request(layer, src)
}

// layer returns the decoded image for a layer, or nil if its decode failed.
// ok is false while the decode is in flight.
func (e *Engine) layer(layer Layer, frame *Frame) (goimage.Image, bool) {
	sl := e.slots[layer]
	switch {
	case sl.pending:
		frame.Pending = append(frame.Pending, layer)
		return nil, false
	case sl.err != nil:
		frame.Failed[layer] = sl.err
		return nil, true
	}
	return sl.img, true
}
