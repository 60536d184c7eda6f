// Package session runs one design per visitor. Each Session owns a model,
// a render engine and an interaction controller, and serialises every event
// touching them on a single goroutine.
//
// Events run to completion in arrival order. After an event, any events
// already queued behind it run too, and the frame is repainted once if the
// model changed in between. Decodes run on their own goroutines and post their
// result back as an event.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/image"
	"github.com/Carbon-X-DAO/TeeCustomizer/interact"
	"go.uber.org/atomic"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session closed")
	ErrFull     = errors.New("too many sessions")
)

const eventBuffer = 64

type Options struct {
	Canvas composite.Canvas
	Fonts  *image.FontBook
	Decode image.DecodeFunc
	Logger *slog.Logger
}

type Session struct {
	ID string

	model  *composite.Model
	engine *image.Engine
	ctrl   *interact.Controller
	ws     *Workspace

	events    chan func()
	quit      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	decode    image.DecodeFunc

	// loop-owned
	dirty   bool
	renders int
	waiters []chan struct{}

	lastActive *atomic.Int64
	discarded  *atomic.Int64
	logger     *slog.Logger
}

// Workspace is the view of a session handed to event functions. It is only
// valid inside the function it was passed to.
type Workspace struct {
	s *Session
}

func New(id string, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		events:     make(chan func(), eventBuffer),
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		decode:     opts.Decode,
		dirty:      true,
		lastActive: atomic.NewInt64(time.Now().UnixNano()),
		discarded:  atomic.NewInt64(0),
		logger:     opts.Logger.With("session", id),
	}

	s.model = composite.New(opts.Canvas)
	s.model.OnChange(func() { s.dirty = true })
	s.engine = image.NewEngine(s.model.Canvas(), opts.Fonts, s.requestDecode, s.logger)
	s.ctrl = interact.New(s.model)
	s.ws = &Workspace{s: s}

	go s.run()

	return s
}

// Do runs fn on the session goroutine and waits for it to finish.
func (s *Session) Do(ctx context.Context, fn func(w *Workspace) error) error {
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	s.touch()

	errc := make(chan error, 1)
	if !s.post(ctx, func() { errc <- fn(s.ws) }) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return ErrClosed
		}
	}

	select {
	case err := <-errc:
		return err
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settle waits until no layer is waiting on a decode.
func (s *Session) Settle(ctx context.Context) error {
	var wait chan struct{}
	err := s.Do(ctx, func(w *Workspace) error {
		s.flush()
		if s.engine.Pending() {
			wait = make(chan struct{})
			s.waiters = append(s.waiters, wait)
		}
		return nil
	})
	if err != nil || wait == nil {
		return err
	}

	select {
	case <-wait:
		return nil
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop and abandons in-flight decodes. The model is discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.quit)
		s.logger.Debug("session closed")
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.quit
}

func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

// Discarded counts decode results dropped because their image was replaced.
func (s *Session) Discarded() int64 {
	return s.discarded.Load()
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) run() {
	defer s.engine.Close()

	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.events:
			fn()
			for n := len(s.events); n > 0; n-- {
				(<-s.events)()
			}
			s.flush()
		}
	}
}

func (s *Session) post(ctx context.Context, fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) flush() {
	if s.dirty {
		s.dirty = false
		s.renders++
		frame := s.engine.Render(s.model.Snapshot())
		s.logger.Debug("rendered frame", "complete", frame.Complete, "pending", len(frame.Pending), "failed", len(frame.Failed))
	}

	if !s.engine.Pending() && len(s.waiters) > 0 {
		for _, w := range s.waiters {
			close(w)
		}
		s.waiters = nil
	}
}

func (s *Session) requestDecode(layer image.Layer, src *composite.Source) {
	s.logger.Debug("decoding image", "layer", layer, "id", src.ID, "mime", src.MIME, "bytes", len(src.Data))

	go func() {
		img, err := s.decode(s.ctx, src)
		s.post(s.ctx, func() {
			if s.engine.Resolve(image.Decoded{Layer: layer, ID: src.ID, Image: img, Err: err}) {
				s.dirty = true
			} else {
				s.discarded.Inc()
			}
		})
	}()
}

func (w *Workspace) Model() *composite.Model {
	return w.s.model
}

func (w *Workspace) Controller() *interact.Controller {
	return w.s.ctrl
}

// Frame repaints if needed and describes the current surface.
func (w *Workspace) Frame() image.Frame {
	w.s.flush()
	return w.s.engine.Frame()
}

// Encode repaints if needed and writes the current surface as PNG.
func (w *Workspace) Encode(out io.Writer) error {
	w.s.flush()
	return w.s.engine.Encode(out)
}
