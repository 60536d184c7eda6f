package fileserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/exportlog"
	"github.com/Carbon-X-DAO/TeeCustomizer/session"
	"github.com/Carbon-X-DAO/TeeCustomizer/templates"
)

var reDesign = regexp.MustCompile(`^/designs/(?P<id>[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})(?:/(?P<action>[a-z.]+))?$`)

type Options struct {
	Addr         string
	FrontendRoot string
	// PublicURL prefixes share links; when empty it is derived from the request.
	PublicURL string
	// TLSConfig may be nil, in which case an HTTP server will serve without TLS
	TLSConfig *tls.Config

	Sessions       *session.Store
	Exports        exportlog.Recorder
	Mailer         Mailer
	Canvas         composite.Canvas
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	frontendRoot string
	publicURL    string
	*http.Server

	sessions  *session.Store
	exports   exportlog.Recorder
	mailer    Mailer
	canvas    composite.Canvas
	maxUpload int64
	logger    *slog.Logger
}

func New(opts Options) *Server {
	if opts.Exports == nil {
		opts.Exports = exportlog.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	server := &Server{
		frontendRoot: opts.FrontendRoot,
		publicURL:    opts.PublicURL,
		sessions:     opts.Sessions,
		exports:      opts.Exports,
		mailer:       opts.Mailer,
		canvas:       opts.Canvas,
		maxUpload:    opts.MaxUploadBytes,
		logger:       opts.Logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/", server)

	server.Server = &http.Server{
		Addr:      opts.Addr,
		TLSConfig: opts.TLSConfig,
		Handler:   mux,
	}

	return server
}

func (server *Server) Listen() error {
	if server.Server.TLSConfig != nil {
		if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("TLS HTTP server failed: %w", err)
		}
	} else {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops accepting requests, then discards every session and closes
// the export log.
func (server *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := server.Server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		errs = append(errs, fmt.Errorf("failed to shut down HTTP server: %w", err))
	}
	if err := server.sessions.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := server.exports.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/designs" && r.Method == http.MethodPost:
		server.handleCreate(w, r)
	case reDesign.MatchString(r.URL.Path):
		server.handleDesign(w, r)
	default:
		server.handleFrontendPath(w, r)
	}
}

func (server *Server) serveNotFound(res http.ResponseWriter) {
	res.WriteHeader(http.StatusNotFound)
	server.writeTemplate(templates.NotFound, nil, res)
}

func (server *Server) writeTemplate(tmpl *template.Template, ctx interface{}, res http.ResponseWriter) {
	err := tmpl.Execute(res, ctx)
	if err != nil {
		server.writeErr(err, res)
	}
}

func (server *Server) writeErr(err error, res http.ResponseWriter) {
	res.WriteHeader(http.StatusInternalServerError)
	templates.Error.Execute(res, err)
	server.logger.Error("request failed", "err", err)
}
