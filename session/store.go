package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Store keeps the live sessions and expires the idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	opts   Options
	ttl    time.Duration
	limit  int
	cron   *cron.Cron
	logger *slog.Logger
}

// NewStore creates an empty store. A zero limit means unlimited sessions.
func NewStore(opts Options, ttl time.Duration, limit int) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
		ttl:      ttl,
		limit:    limit,
		logger:   opts.Logger,
	}
}

func (st *Store) Create() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.limit > 0 && len(st.sessions) >= st.limit {
		return nil, ErrFull
	}

	s := New(uuid.New().String(), st.opts)
	st.sessions[s.ID] = s
	st.logger.Info("session created", "session", s.ID, "live", len(st.sessions))

	return s, nil
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (st *Store) Remove(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	s.Close()
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep closes sessions idle for longer than the store TTL and returns how
// many it closed.
func (st *Store) Sweep(now time.Time) int {
	if st.ttl <= 0 {
		return 0
	}

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.IdleFor(now) > st.ttl {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (st *Store) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := st.Sweep(time.Now()); n > 0 {
			st.logger.Info("expired idle sessions", "count", n, "live", st.Len())
		}
	}); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}

	c.Start()
	st.cron = c
	st.logger.Info("session sweep scheduled", "spec", spec, "ttl", st.ttl)

	return nil
}

// Close stops the sweeper and every session.
func (st *Store) Close(ctx context.Context) error {
	if st.cron != nil {
		select {
		case <-st.cron.Stop().Done():
		case <-ctx.Done():
			return fmt.Errorf("wait for session sweep to stop: %w", ctx.Err())
		}
	}

	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}
