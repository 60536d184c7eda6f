// Package config loads server settings from an optional YAML file and lets
// command-line flags override individual fields.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address      string `yaml:"address"`
	FrontendRoot string `yaml:"frontend_root"`
	PublicURL    string `yaml:"public_url"`
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`

	Canvas   Canvas   `yaml:"canvas"`
	FontsDir string   `yaml:"fonts_dir"`
	Sessions Sessions `yaml:"sessions"`
	Decode   Decode   `yaml:"decode"`
	Upload   Upload   `yaml:"upload"`
	Log      Log      `yaml:"log"`
	Database Database `yaml:"database"`
	Mailgun  Mailgun  `yaml:"mailgun"`
}

type Canvas struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Sessions struct {
	TTL   time.Duration `yaml:"ttl"`
	Sweep string        `yaml:"sweep"`
	Max   int           `yaml:"max"`
}

type Decode struct {
	Concurrency int64 `yaml:"concurrency"`
	MaxPixels   int   `yaml:"max_pixels"`
}

type Upload struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Database configures the export log. An empty DSN disables it.
type Database struct {
	DSN string `yaml:"dsn"`
}

// Mailgun configures e-mailing exports. An empty Domain disables it.
type Mailgun struct {
	Domain string `yaml:"domain"`
	APIKey string `yaml:"api_key"`
	Sender string `yaml:"sender"`
}

func Default() Config {
	return Config{
		Address:      "0.0.0.0:8080",
		FrontendRoot: "static",
		Canvas:       Canvas{Width: 500, Height: 500},
		Sessions: Sessions{
			TTL:   30 * time.Minute,
			Sweep: "@every 1m",
			Max:   1000,
		},
		Decode: Decode{
			Concurrency: 4,
			MaxPixels:   40_000_000,
		},
		Upload: Upload{MaxBytes: 20 << 20},
		Log:    Log{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, then the file named by
// -config (if any), then the remaining flags in args.
func Load(name string, args []string) (Config, error) {
	scratch := Default()
	pre := flag.NewFlagSet(name, flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	path := pre.String("config", "", "")
	RegisterFlags(pre, &scratch)
	_ = pre.Parse(args)

	cfg := Default()
	if *path != "" {
		data, err := os.ReadFile(*path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %v: %w", *path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %v: %w", *path, err)
		}
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", *path, "path to a YAML config file")
	RegisterFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// RegisterFlags binds flags to cfg, using its current values as defaults.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address on which to listen")
	fs.StringVar(&cfg.FrontendRoot, "root", cfg.FrontendRoot, "root path to the frontend")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "externally visible base URL used in share links")
	fs.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS certificate file")
	fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS certificate signing key file")
	fs.IntVar(&cfg.Canvas.Width, "width", cfg.Canvas.Width, "canvas width in pixels")
	fs.IntVar(&cfg.Canvas.Height, "height", cfg.Canvas.Height, "canvas height in pixels")
	fs.StringVar(&cfg.FontsDir, "fonts", cfg.FontsDir, "directory with <Family>[-Bold|-Light].ttf overrides")
	fs.DurationVar(&cfg.Sessions.TTL, "session-ttl", cfg.Sessions.TTL, "discard sessions idle for longer than this")
	fs.IntVar(&cfg.Sessions.Max, "max-sessions", cfg.Sessions.Max, "maximum number of live sessions, 0 for no limit")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")
	fs.StringVar(&cfg.Database.DSN, "dsn", cfg.Database.DSN, "postgres DSN for the export log")
	fs.StringVar(&cfg.Mailgun.Domain, "mailgun-domain", cfg.Mailgun.Domain, "mailgun sending domain")
	fs.StringVar(&cfg.Mailgun.APIKey, "mailgun-key", cfg.Mailgun.APIKey, "mailgun API key")
	fs.StringVar(&cfg.Mailgun.Sender, "sender", cfg.Mailgun.Sender, "from address for e-mailed designs")
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Address == "" {
		result = multierror.Append(result, errors.New("address must not be empty"))
	}
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 || c.Canvas.Width > 4096 || c.Canvas.Height > 4096 {
		result = multierror.Append(result, fmt.Errorf("canvas %dx%d must be within 1..4096 on both sides", c.Canvas.Width, c.Canvas.Height))
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		result = multierror.Append(result, errors.New("cert and key must be set together"))
	}
	if c.Sessions.TTL < 0 {
		result = multierror.Append(result, fmt.Errorf("session ttl %v must not be negative", c.Sessions.TTL))
	}
	if c.Sessions.Max < 0 {
		result = multierror.Append(result, fmt.Errorf("max sessions %d must not be negative", c.Sessions.Max))
	}
	if c.Sessions.TTL > 0 && c.Sessions.Sweep == "" {
		result = multierror.Append(result, errors.New("session sweep schedule is required when a ttl is set"))
	}
	if c.Decode.Concurrency < 1 {
		result = multierror.Append(result, fmt.Errorf("decode concurrency %d must be at least 1", c.Decode.Concurrency))
	}
	if c.Decode.MaxPixels < 1 {
		result = multierror.Append(result, fmt.Errorf("decode max pixels %d must be at least 1", c.Decode.MaxPixels))
	}
	if c.Upload.MaxBytes < 1 {
		result = multierror.Append(result, fmt.Errorf("upload max bytes %d must be at least 1", c.Upload.MaxBytes))
	}
	if !logLevels[c.Log.Level] {
		result = multierror.Append(result, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		result = multierror.Append(result, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Mailgun.Domain != "" && (c.Mailgun.APIKey == "" || c.Mailgun.Sender == "") {
		result = multierror.Append(result, errors.New("mailgun domain requires an api key and a sender"))
	}

	return result.ErrorOrNil()
}
