package fileserver

import (
	"fmt"
	goimage "image"
	"image/png"
	"net/http"
	"strings"

	"github.com/Carbon-X-DAO/TeeCustomizer/session"
	"github.com/Carbon-X-DAO/TeeCustomizer/templates"
	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const qrSize = 256

func (server *Server) handleShare(s *session.Session, w http.ResponseWriter, r *http.Request) {
	base := server.baseURL(r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	server.writeTemplate(templates.Share, templates.ShareData{
		ExportURL: exportURL(base, s.ID),
		QRURL:     fmt.Sprintf("%s/designs/%s/qr.png", base, s.ID),
	}, w)
}

// handleQRCode serves a QR code pointing at the session's export download.
func (server *Server) handleQRCode(s *session.Session, w http.ResponseWriter, r *http.Request) {
	code, err := generateQRCode(exportURL(server.baseURL(r), s.ID))
	if err != nil {
		server.writeErr(err, w)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, code); err != nil {
		server.logger.Warn("failed to write QR code as PNG", "session", s.ID, "err", err)
	}
}

func generateQRCode(content string) (goimage.Image, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as QR code: %w", content, err)
	}

	// Scale the barcode to the appropriate size
	code, err = barcode.Scale(code, qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to scale QR code: %w", err)
	}

	return code, nil
}

func exportURL(base, id string) string {
	return fmt.Sprintf("%s/designs/%s/export", base, id)
}

func (server *Server) baseURL(r *http.Request) string {
	if server.publicURL != "" {
		return strings.TrimSuffix(server.publicURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
