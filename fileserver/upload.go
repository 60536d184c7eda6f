package fileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/image"
	"github.com/Carbon-X-DAO/TeeCustomizer/session"
)

var (
	errNotImage       = errors.New("please upload a valid image file")
	errUploadTooLarge = errors.New("upload too large")
)

// handleUpload replaces the background or overlay image. The model keeps the
// raw bytes; decoding happens when the next frame is painted.
func (server *Server) handleUpload(ctx context.Context, s *session.Session, layer image.Layer, w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, server.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			server.writeAPIErr(w, fmt.Errorf("%w: limit is %d bytes", errUploadTooLarge, tooLarge.Limit))
			return
		}
		server.writeAPIErr(w, fmt.Errorf("%w: %s", errBadRequest, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		server.writeAPIErr(w, fmt.Errorf("%w: read upload: %s", errBadRequest, err))
		return
	}

	mimeType, err := imageType(header.Header.Get("Content-Type"), data)
	if err != nil {
		server.writeAPIErr(w, fmt.Errorf("%w: %s", err, header.Filename))
		return
	}

	var stamped composite.Source
	err = s.Do(ctx, func(ws *session.Workspace) error {
		src := composite.Source{MIME: mimeType, Data: data}
		if layer == image.Background {
			stamped = ws.Model().SetBackground(src)
		} else {
			stamped = ws.Model().SetOverlayImage(src)
		}
		return nil
	})
	if err != nil {
		server.writeAPIErr(w, err)
		return
	}

	server.logger.Info("image uploaded", "session", s.ID, "layer", layer, "id", stamped.ID, "mime", mimeType, "bytes", len(data))
	server.writeJSON(w, http.StatusOK, describe(&stamped))
}

// imageType trusts a declared image/* type and sniffs the content when the
// client declared nothing useful.
func imageType(declared string, data []byte) (string, error) {
	if declared != "" {
		mt, _, err := mime.ParseMediaType(declared)
		if err == nil && strings.HasPrefix(mt, "image/") {
			return mt, nil
		}
		if err == nil && mt != "application/octet-stream" {
			return "", errNotImage
		}
	}

	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, nil
	}
	return "", errNotImage
}
