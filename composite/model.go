// Package composite holds the layered design state: a background image, an
// overlay image with its transform, and a styled text string. It has no
// rendering or input logic; the image and interact packages mutate and read it.
package composite

const (
	DefaultWidth  = 500
	DefaultHeight = 500

	MinScale     = 0.1
	MaxScale     = 2.0
	DefaultScale = 0.5
	ZoomStep     = 0.1
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Source is an undecoded image as supplied by an upload. ID is stamped by
// the model and identifies the image for the lifetime of the model.
type Source struct {
	ID   uint64
	MIME string
	Data []byte
}

type Overlay struct {
	Image  *Source
	Scale  float64
	Anchor Point
}

type Text struct {
	Content    string
	Anchor     Point
	SizePx     int
	ColorHex   string
	FontFamily FontFamily
	FontWeight FontWeight
	Align      Align
}

// Style is a partial text style; nil fields are left untouched by a merge.
type Style struct {
	Content    *string
	SizePx     *int
	ColorHex   *string
	FontFamily *FontFamily
	FontWeight *FontWeight
	Align      *Align
}

// State is a value copy of the model taken at render time. Sources are
// shared but never mutated after they are set.
type State struct {
	Canvas     Canvas
	Background *Source
	Overlay    Overlay
	Text       Text
}

// Model is the single source of truth for a design. It is not safe for
// concurrent use; the owning session serialises access.
type Model struct {
	state    State
	lastID   uint64
	onChange func()
}

func New(canvas Canvas) *Model {
	if canvas.Width <= 0 || canvas.Height <= 0 {
		canvas = Canvas{Width: DefaultWidth, Height: DefaultHeight}
	}

	w, h := float64(canvas.Width), float64(canvas.Height)

	return &Model{
		state: State{
			Canvas: canvas,
			Overlay: Overlay{
				Scale:  DefaultScale,
				Anchor: Point{X: w / 2, Y: h / 2},
			},
			Text: Text{
				Anchor:     Point{X: w / 2, Y: h * 0.8},
				SizePx:     20,
				ColorHex:   "#000000",
				FontFamily: FamilyArial,
				FontWeight: WeightNormal,
				Align:      AlignCenter,
			},
		},
	}
}

// OnChange sets the hook called once after every mutation.
func (m *Model) OnChange(fn func()) {
	m.onChange = fn
}

func (m *Model) Snapshot() State {
	return m.state
}

func (m *Model) Canvas() Canvas {
	return m.state.Canvas
}

func (m *Model) OverlayAnchor() Point {
	return m.state.Overlay.Anchor
}

func (m *Model) OverlayScale() float64 {
	return m.state.Overlay.Scale
}

func (m *Model) TextAnchor() Point {
	return m.state.Text.Anchor
}

// SetBackground replaces the background image and returns the stamped source.
func (m *Model) SetBackground(src Source) Source {
	src.ID = m.nextID()
	m.state.Background = &src
	m.changed()

	return src
}

// SetOverlayImage replaces the overlay image. Scale and anchor carry over.
func (m *Model) SetOverlayImage(src Source) Source {
	src.ID = m.nextID()
	m.state.Overlay.Image = &src
	m.changed()

	return src
}

// SetOverlayScale adds delta to the overlay scale, clamped to [MinScale, MaxScale].
func (m *Model) SetOverlayScale(delta float64) float64 {
	m.state.Overlay.Scale = clamp(m.state.Overlay.Scale+delta, MinScale, MaxScale)
	m.changed()

	return m.state.Overlay.Scale
}

func (m *Model) SetOverlayAnchor(p Point) {
	m.state.Overlay.Anchor = p
	m.changed()
}

func (m *Model) SetTextAnchor(p Point) {
	m.state.Text.Anchor = p
	m.changed()
}

func (m *Model) SetTextStyle(s Style) {
	t := &m.state.Text
	if s.Content != nil {
		t.Content = *s.Content
	}
	if s.SizePx != nil {
		t.SizePx = *s.SizePx
	}
	if s.ColorHex != nil {
		t.ColorHex = *s.ColorHex
	}
	if s.FontFamily != nil {
		t.FontFamily = *s.FontFamily
	}
	if s.FontWeight != nil {
		t.FontWeight = *s.FontWeight
	}
	if s.Align != nil {
		t.Align = *s.Align
	}
	m.changed()
}

func (m *Model) nextID() uint64 {
	m.lastID++
	return m.lastID
}

func (m *Model) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
