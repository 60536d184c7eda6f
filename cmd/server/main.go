package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/config"
	"github.com/Carbon-X-DAO/TeeCustomizer/exportlog"
	"github.com/Carbon-X-DAO/TeeCustomizer/fileserver"
	"github.com/Carbon-X-DAO/TeeCustomizer/image"
	"github.com/Carbon-X-DAO/TeeCustomizer/session"
)

func main() {
	cfg, err := config.Load("server", os.Args[1:])
	logger := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	fonts, err := image.NewFontBook(cfg.FontsDir, logger)
	if err != nil {
		logger.Error("failed to load fonts", "dir", cfg.FontsDir, "err", err)
		os.Exit(1)
	}

	canvas := composite.Canvas{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height}
	decoder := image.NewDecoder(cfg.Decode.Concurrency, cfg.Decode.MaxPixels)

	sessions := session.NewStore(session.Options{
		Canvas: canvas,
		Fonts:  fonts,
		Decode: decoder.Decode,
		Logger: logger,
	}, cfg.Sessions.TTL, cfg.Sessions.Max)

	if cfg.Sessions.TTL > 0 {
		if err := sessions.Start(cfg.Sessions.Sweep); err != nil {
			logger.Error("failed to schedule session sweep", "spec", cfg.Sessions.Sweep, "err", err)
			os.Exit(1)
		}
	}

	var exports exportlog.Recorder = exportlog.Nop{}
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := exportlog.Open(ctx, cfg.Database.DSN)
		cancel()
		if err != nil {
			logger.Error("failed to open export log", "err", err)
			os.Exit(1)
		}
		exports = store
	}

	var mailer fileserver.Mailer
	if cfg.Mailgun.Domain != "" {
		mailer = fileserver.NewMailgun(cfg.Mailgun.Domain, cfg.Mailgun.APIKey, cfg.Mailgun.Sender)
	}

	var tlsConfig *tls.Config
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			logger.Error("failed to load key pair", "cert", cfg.CertFile, "key", cfg.KeyFile, "err", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	srv := fileserver.New(fileserver.Options{
		Addr:           cfg.Address,
		FrontendRoot:   cfg.FrontendRoot,
		PublicURL:      cfg.PublicURL,
		TLSConfig:      tlsConfig,
		Sessions:       sessions,
		Exports:        exports,
		Mailer:         mailer,
		Canvas:         canvas,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Logger:         logger,
	})

	killed := make(chan os.Signal, 1)
	signal.Notify(killed, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	serverShutdown := make(chan bool)

	go func() {
		sig := <-killed
		logger.Info("received signal to shutdown", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown server", "err", err)
		}
		cancel()
		close(serverShutdown)
	}()

	logger.Info("starting the web server", "address", cfg.Address, "root", cfg.FrontendRoot, "tls", tlsConfig != nil)
	if err := srv.Listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to serve", "err", err)
		os.Exit(1)
	}

	<-serverShutdown
	logger.Info("server has shut down... Exiting.")
}
