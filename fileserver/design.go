package fileserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/exportlog"
	"github.com/Carbon-X-DAO/TeeCustomizer/image"
	"github.com/Carbon-X-DAO/TeeCustomizer/interact"
	"github.com/Carbon-X-DAO/TeeCustomizer/session"
	"github.com/ajg/form"
	jsoniter "github.com/json-iterator/go"
)

const (
	exportFilename = "custom_tshirt.png"

	frameSettleTimeout  = 2 * time.Second
	exportSettleTimeout = 10 * time.Second
	requestTimeout      = 15 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errBadRequest = errors.New("bad request")

type styleForm struct {
	Content string `form:"content"`
	Size    int    `form:"size"`
	Color   string `form:"color"`
	Font    string `form:"font"`
	Weight  string `form:"weight"`
	Align   string `form:"align"`
}

type zoomForm struct {
	Dir string `form:"dir"`
}

type pointerForm struct {
	Type   string  `form:"type"`
	X      float64 `form:"x"`
	Y      float64 `form:"y"`
	Left   float64 `form:"left"`
	Top    float64 `form:"top"`
	Width  float64 `form:"width"`
	Height float64 `form:"height"`
}

type imageInfo struct {
	ID    uint64 `json:"id"`
	MIME  string `json:"mime"`
	Bytes int    `json:"bytes"`
}

type overlayState struct {
	Image  *imageInfo      `json:"image,omitempty"`
	Scale  float64         `json:"scale"`
	Anchor composite.Point `json:"anchor"`
}

type textState struct {
	Content    string          `json:"content"`
	Anchor     composite.Point `json:"anchor"`
	SizePx     int             `json:"sizePx"`
	ColorHex   string          `json:"colorHex"`
	FontFamily string          `json:"fontFamily"`
	FontWeight string          `json:"fontWeight"`
	Align      string          `json:"align"`
}

type stateResponse struct {
	ID         string            `json:"id"`
	Canvas     composite.Canvas  `json:"canvas"`
	Background *imageInfo        `json:"background,omitempty"`
	Overlay    overlayState      `json:"overlay"`
	Text       textState         `json:"text"`
	Dragging   string            `json:"dragging"`
	Complete   bool              `json:"complete"`
	Pending    []string          `json:"pending"`
	Failed     map[string]string `json:"failed"`
	Exports    int               `json:"exports"`
}

func (server *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s, err := server.sessions.Create()
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	server.writeJSON(w, http.StatusCreated, map[string]string{"id": s.ID})
}

func (server *Server) handleDesign(w http.ResponseWriter, r *http.Request) {
	match := reDesign.FindStringSubmatch(r.URL.Path)
	id := match[reDesign.SubexpIndex("id")]
	action := match[reDesign.SubexpIndex("action")]

	s, err := server.sessions.Get(id)
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	switch {
	case action == "" && r.Method == http.MethodGet:
		server.handleState(ctx, s, w)
	case action == "" && r.Method == http.MethodDelete:
		if err := server.sessions.Remove(s.ID); err != nil {
			server.writeAPIErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "background" && r.Method == http.MethodPost:
		server.handleUpload(ctx, s, image.Background, w, r)
	case action == "overlay" && r.Method == http.MethodPost:
		server.handleUpload(ctx, s, image.Overlay, w, r)
	case action == "style" && r.Method == http.MethodPost:
		server.handleStyle(ctx, s, w, r)
	case action == "zoom" && r.Method == http.MethodPost:
		server.handleZoom(ctx, s, w, r)
	case action == "pointer" && r.Method == http.MethodPost:
		server.handlePointer(ctx, s, w, r)
	case action == "frame.png" && r.Method == http.MethodGet:
		server.handleFrame(ctx, s, w)
	case action == "export" && r.Method == http.MethodGet:
		server.handleExport(ctx, s, w)
	case action == "email" && r.Method == http.MethodPost:
		server.handleEmail(ctx, s, w, r)
	case action == "share" && r.Method == http.MethodGet:
		server.handleShare(s, w, r)
	case action == "qr.png" && r.Method == http.MethodGet:
		server.handleQRCode(s, w, r)
	default:
		server.serveNotFound(w)
	}
}

func (server *Server) handleState(ctx context.Context, s *session.Session, w http.ResponseWriter) {
	var resp stateResponse
	err := s.Do(ctx, func(ws *session.Workspace) error {
		st := ws.Model().Snapshot()
		frame := ws.Frame()

		resp = stateResponse{
			ID:         s.ID,
			Canvas:     st.Canvas,
			Background: describe(st.Background),
			Overlay: overlayState{
				Image:  describe(st.Overlay.Image),
				Scale:  st.Overlay.Scale,
				Anchor: st.Overlay.Anchor,
			},
			Text: textState{
				Content:    st.Text.Content,
				Anchor:     st.Text.Anchor,
				SizePx:     st.Text.SizePx,
				ColorHex:   st.Text.ColorHex,
				FontFamily: string(st.Text.FontFamily),
				FontWeight: string(st.Text.FontWeight),
				Align:      string(st.Text.Align),
			},
			Dragging: ws.Controller().Dragging().String(),
			Complete: frame.Complete,
			Pending:  make([]string, 0, len(frame.Pending)),
			Failed:   make(map[string]string, len(frame.Failed)),
		}
		for _, l := range frame.Pending {
			resp.Pending = append(resp.Pending, l.String())
		}
		for l, err := range frame.Failed {
			resp.Failed[l.String()] = err.Error()
		}
		return nil
	})
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	if resp.Exports, err = server.exports.Count(ctx, s.ID); err != nil {
		server.logger.Warn("failed to count exports", "session", s.ID, "err", err)
	}

	server.writeJSON(w, http.StatusOK, resp)
}

func describe(src *composite.Source) *imageInfo {
	if src == nil {
		return nil
	}
	return &imageInfo{ID: src.ID, MIME: src.MIME, Bytes: len(src.Data)}
}

func (server *Server) handleStyle(ctx context.Context, s *session.Session, w http.ResponseWriter, r *http.Request) {
	var sf styleForm
	values, err := decodeForm(w, r, &sf)
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	style, err := sf.style(values)
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	err = s.Do(ctx, func(ws *session.Workspace) error {
		ws.Model().SetTextStyle(style)
		return nil
	})
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// style keeps only the fields present in the submitted form.
func (sf styleForm) style(present url.Values) (composite.Style, error) {
	var style composite.Style

	if present.Has("content") {
		style.Content = &sf.Content
	}
	if present.Has("size") {
		style.SizePx = &sf.Size
	}
	if present.Has("color") {
		style.ColorHex = &sf.Color
	}
	if present.Has("font") {
		f, err := composite.ParseFontFamily(sf.Font)
		if err != nil {
			return style, fmt.Errorf("%w: %s", errBadRequest, err)
		}
		style.FontFamily = &f
	}
	if present.Has("weight") {
		wt, err := composite.ParseFontWeight(sf.Weight)
		if err != nil {
			return style, fmt.Errorf("%w: %s", errBadRequest, err)
		}
		style.FontWeight = &wt
	}
	if present.Has("align") {
		a, err := composite.ParseAlign(sf.Align)
		if err != nil {
			return style, fmt.Errorf("%w: %s", errBadRequest, err)
		}
		style.Align = &a
	}

	return style, nil
}

func (server *Server) handleZoom(ctx context.Context, s *session.Session, w http.ResponseWriter, r *http.Request) {
	var zf zoomForm
	if _, err := decodeForm(w, r, &zf); err != nil {
		server.writeAPIErr(w, err)
		return
	}

	var delta float64
	switch zf.Dir {
	case "in":
		delta = composite.ZoomStep
	case "out":
		delta = -composite.ZoomStep
	default:
		server.writeAPIErr(w, fmt.Errorf("%w: zoom direction %q", errBadRequest, zf.Dir))
		return
	}

	var scale float64
	err := s.Do(ctx, func(ws *session.Workspace) error {
		scale = ws.Model().SetOverlayScale(delta)
		return nil
	})
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	server.writeJSON(w, http.StatusOK, map[string]float64{"scale": scale})
}

func (server *Server) handlePointer(ctx context.Context, s *session.Session, w http.ResponseWriter, r *http.Request) {
	var pf pointerForm
	if _, err := decodeForm(w, r, &pf); err != nil {
		server.writeAPIErr(w, err)
		return
	}

	switch pf.Type {
	case "down", "move", "up", "leave":
	default:
		server.writeAPIErr(w, fmt.Errorf("%w: pointer event %q", errBadRequest, pf.Type))
		return
	}
	if err := pf.validate(); err != nil {
		server.writeAPIErr(w, err)
		return
	}

	vp := interact.Viewport{Left: pf.Left, Top: pf.Top, Width: pf.Width, Height: pf.Height}
	var dragging interact.Target
	err := s.Do(ctx, func(ws *session.Workspace) error {
		ctrl := ws.Controller()
		p := vp.Local(ws.Model().Canvas(), pf.X, pf.Y)

		switch pf.Type {
		case "down":
			ctrl.PointerDown(p)
		case "move":
			ctrl.PointerMove(p)
		case "up":
			ctrl.PointerUp()
		case "leave":
			ctrl.PointerLeave()
		}
		dragging = ctrl.Dragging()
		return nil
	})
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	server.writeJSON(w, http.StatusOK, map[string]string{"dragging": dragging.String()})
}

// validate rejects coordinates that would leave an anchor impossible to grab.
func (pf pointerForm) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"x", pf.X}, {"y", pf.Y},
		{"left", pf.Left}, {"top", pf.Top},
		{"width", pf.Width}, {"height", pf.Height},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: pointer %s must be finite", errBadRequest, f.name)
		}
	}
	return nil
}

func (server *Server) handleFrame(ctx context.Context, s *session.Session, w http.ResponseWriter) {
	png, _, err := server.render(ctx, s, frameSettleTimeout)
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (server *Server) handleExport(ctx context.Context, s *session.Session, w http.ResponseWriter) {
	png, canvas, err := server.render(ctx, s, exportSettleTimeout)
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	server.recordExport(ctx, exportlog.NewEntry(s.ID, exportlog.ViaDownload, png, canvas.Width, canvas.Height))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// render waits up to settle for in-flight decodes, then encodes whatever the
// surface holds. An unsettled export is still a valid export.
func (server *Server) render(ctx context.Context, s *session.Session, settle time.Duration) ([]byte, composite.Canvas, error) {
	settleCtx, cancel := context.WithTimeout(ctx, settle)
	err := s.Settle(settleCtx)
	cancel()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, composite.Canvas{}, err
	}
	if err != nil {
		server.logger.Warn("rendering before decodes settled", "session", s.ID)
	}

	var buf bytes.Buffer
	var canvas composite.Canvas
	err = s.Do(ctx, func(ws *session.Workspace) error {
		canvas = ws.Model().Canvas()
		return ws.Encode(&buf)
	})
	if err != nil {
		return nil, canvas, err
	}

	return buf.Bytes(), canvas, nil
}

func (server *Server) recordExport(ctx context.Context, entry exportlog.Entry) {
	if err := server.exports.Record(ctx, entry); err != nil {
		server.logger.Error("failed to log export", "session", entry.SessionID, "via", entry.Via, "err", err)
	}
}

// decodeForm reads a form-encoded body into dst and also returns the raw
// values so callers can tell absent fields from zero ones.
func decodeForm(w http.ResponseWriter, r *http.Request, dst interface{}) (url.Values, error) {
	bs, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %s", errBadRequest, err)
	}

	values, err := url.ParseQuery(string(bs))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errBadRequest, err)
	}

	dec := form.NewDecoder(bytes.NewReader(bs))
	dec.IgnoreUnknownKeys(true)
	if err := dec.Decode(dst); err != nil {
		return nil, fmt.Errorf("%w: decode form: %s", errBadRequest, err)
	}

	return values, nil
}

// writeJSON encodes before writing the header so an unencodable value
// becomes a 500 instead of an empty success.
func (server *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	bs, err := json.Marshal(v)
	if err != nil {
		server.logger.Error("failed to encode response", "status", status, "err", err)
		status = http.StatusInternalServerError
		bs = []byte(`{"error":"failed to encode response"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(bs, '\n'))
}

func (server *Server) writeAPIErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrFull):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errNotImage):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, errUploadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errMailDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		server.logger.Error("request failed", "status", status, "err", err)
	} else {
		server.logger.Debug("request rejected", "status", status, "err", err)
	}

	server.writeJSON(w, status, map[string]string{"error": err.Error()})
}
