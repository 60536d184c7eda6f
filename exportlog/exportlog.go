// Package exportlog records export events in postgres. Only metadata is kept:
// who exported, how, and a digest of the PNG. Designs themselves are never
// stored.
package exportlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const queryInsertExport = `INSERT INTO
	exports(session_id, via, sha256, size_bytes, width, height, ctime)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const queryCountExports = `SELECT COUNT(*) FROM exports WHERE session_id = $1`

const (
	ViaDownload = "download"
	ViaEmail    = "email"
)

type Entry struct {
	SessionID string
	Via       string
	SHA256    string
	Bytes     int
	Width     int
	Height    int
	CreatedAt time.Time
}

func NewEntry(sessionID, via string, encoded []byte, width, height int) Entry {
	return Entry{
		SessionID: sessionID,
		Via:       via,
		SHA256:    fmt.Sprintf("%x", sha256.Sum256(encoded)),
		Bytes:     len(encoded),
		Width:     width,
		Height:    height,
		CreatedAt: time.Now().UTC(),
	}
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Count(ctx context.Context, sessionID string) (int, error)
	Close() error
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error        { return nil }
func (Nop) Count(context.Context, string) (int, error) { return 0, nil }
func (Nop) Close() error                               { return nil }

type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	count  *sql.Stmt
}

// Open connects to postgres, applies pending migrations and prepares statements.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize a postgres instance: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to the postgres instance: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if s.insert, err = db.PrepareContext(ctx, queryInsertExport); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statement for storing exports: %w", err)
	}
	if s.count, err = db.PrepareContext(ctx, queryCountExports); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statement for counting exports: %w", err)
	}

	return s, nil
}

func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to obtain postgres driver for migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize a migrate driver instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply all migrations: %w", err)
	}

	return nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if _, err := s.insert.ExecContext(ctx, e.SessionID, e.Via, e.SHA256, e.Bytes, e.Width, e.Height, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to save export for session %s: %w", e.SessionID, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.count.QueryRowContext(ctx, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exports for session %s: %w", sessionID, err)
	}
	return n, nil
}

func (s *Store) Close() error {
	s.insert.Close()
	s.count.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close DB connection: %w", err)
	}
	return nil
}
