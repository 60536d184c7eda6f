package fileserver

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/fsutil"
	"github.com/Carbon-X-DAO/TeeCustomizer/templates"
)

func (server *Server) handleFrontendPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	file := filepath.Join(server.frontendRoot, path.Clean("/"+r.URL.Path))
	exists, err := fsutil.Exists(file)
	if err != nil {
		server.writeErr(err, w)
		return
	}

	if exists {
		isDir, err := fsutil.IsDir(file)
		if err != nil {
			server.writeErr(err, w)
			return
		}

		if isDir {
			server.serveDir(file, r, w)
			return
		}

		w.Header().Add("Cache-Control", "max-age=86400,s-maxage=86400")
		server.serveFile(file, w)
		return
	}

	htmlFile := file + ".html"
	exists, err = fsutil.Exists(htmlFile)
	if err != nil {
		server.writeErr(err, w)
		return
	}

	if exists {
		server.serveFile(htmlFile, w)
	} else if r.URL.Path == "/" {
		server.serveDesigner(w)
	} else {
		server.serveNotFound(w)
	}
}

func (server *Server) serveDir(dir string, r *http.Request, res http.ResponseWriter) {
	indexFile := filepath.Join(dir, "index.html")
	exists, err := fsutil.Exists(indexFile)
	if err != nil {
		server.writeErr(err, res)
		return
	}

	switch {
	case exists:
		server.serveFile(indexFile, res)
	case path.Clean(r.URL.Path) == "/":
		server.serveDesigner(res)
	default:
		server.serveNotFound(res)
	}
}

// serveDesigner renders the built-in designer page when the frontend root
// has no index of its own.
func (server *Server) serveDesigner(res http.ResponseWriter) {
	families := make([]string, 0, len(composite.Families))
	for _, f := range composite.Families {
		families = append(families, string(f))
	}

	res.Header().Set("Content-Type", "text/html; charset=utf-8")
	server.writeTemplate(templates.Designer, templates.DesignerData{
		Width:    server.canvas.Width,
		Height:   server.canvas.Height,
		Families: families,
	}, res)
}

func (server *Server) serveFile(file string, res http.ResponseWriter) {
	fp, err := os.Open(file)
	if err != nil {
		server.writeErr(err, res)
		return
	}
	defer fp.Close()

	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		res.Header().Set("Content-Type", ct)
	}

	_, err = io.Copy(res, fp)
	if err != nil {
		server.logger.Warn("failed to copy file to response", "path", file, "err", err)
	}
}
