// Package engine composes the sequence store, stream adapter, reconciler,
// playback and activity notifier into one session per share token.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/activity"
	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/playback"
	"github.com/sho7650/media-wall/internal/reconcile"
	"github.com/sho7650/media-wall/internal/sequence"
	"github.com/sho7650/media-wall/internal/storage"
	"github.com/sho7650/media-wall/internal/stream"
	"github.com/sho7650/media-wall/internal/timing"
)

// Options wires an engine
type Options struct {
	// ShareToken is attached by Start
	ShareToken string
	Role       string

	Fetcher reconcile.Fetcher
	// NewTransport builds the push channel for one session. Nil runs the
	// wall on fallback pulls only.
	NewTransport func() stream.Transport
	// Journal receives every pull outcome; nil disables journaling
	Journal storage.Journal

	Reconcile  reconcile.Config
	Offsets    sequence.Offsets
	Activity   activity.Durations
	NewFlagTTL time.Duration

	// NewScheduler builds the loop of one session and the function that
	// stops it. Defaults to a started timing.Loop.
	NewScheduler func(logger zerolog.Logger) (timing.Scheduler, func())

	Logger zerolog.Logger
}

// Engine owns at most one attached session
type Engine struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	sess   *session
	closed bool
}

var _ core.Service = (*Engine)(nil)

// New creates a detached engine
func New(opts Options) *Engine {
	if opts.Role == "" {
		opts.Role = "photo-wall"
	}
	if opts.NewScheduler == nil {
		opts.NewScheduler = func(logger zerolog.Logger) (timing.Scheduler, func()) {
			loop := timing.NewLoop(logger)
			loop.Start()
			return loop, loop.Close
		}
	}
	return &Engine{
		opts: opts,
		log:  opts.Logger.With().Str("component", "engine").Logger(),
	}
}

// Start attaches to the configured share token
func (e *Engine) Start(ctx context.Context) error {
	return e.Attach(ctx, e.opts.ShareToken)
}

// Stop detaches and closes the engine
func (e *Engine) Stop(ctx context.Context) error {
	e.Close()
	return nil
}

// Attach creates a session for shareToken and issues the initial pull.
// Attaching to the token already attached is a no-op; any other token
// tears the previous session down first.
func (e *Engine) Attach(ctx context.Context, shareToken string) error {
	shareToken = strings.TrimSpace(shareToken)
	if shareToken == "" {
		return core.ErrInvalidShareToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine closed")
	}
	if e.sess != nil {
		if e.sess.token == shareToken {
			return nil
		}
		e.log.Info().Str("from", e.sess.token).Str("to", shareToken).Msg("switching share token")
		e.sess.close()
		e.sess = nil
	}

	s := newSession(shareToken, e.opts, e.log)
	if err := s.start(ctx); err != nil {
		s.close()
		return fmt.Errorf("failed to attach to %s: %w", shareToken, err)
	}
	e.sess = s
	e.log.Info().Str("share_token", shareToken).Msg("attached")
	return nil
}

// Detach tears down the current session, if any
func (e *Engine) Detach() {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	e.mu.Unlock()

	if s != nil {
		s.close()
		e.log.Info().Str("share_token", s.token).Msg("detached")
	}
}

// Close detaches and refuses further attachments
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.Detach()
}

// ShareToken returns the attached token, or empty when detached
func (e *Engine) ShareToken() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return ""
	}
	return e.sess.token
}

func (e *Engine) current() (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, core.ErrNotAttached
	}
	return e.sess, nil
}

// Snapshot returns a read-only view of the attached session
func (e *Engine) Snapshot(ctx context.Context) (View, error) {
	s, err := e.current()
	if err != nil {
		return View{}, err
	}
	var v View
	err = s.call(ctx, func() { v = s.view() })
	return v, err
}

// TogglePlayPause flips the slideshow between playing and paused
func (e *Engine) TogglePlayPause(ctx context.Context) (playback.State, error) {
	s, err := e.current()
	if err != nil {
		return playback.StateStopped, err
	}
	state := playback.StateStopped
	err = s.call(ctx, func() { state = s.play.TogglePlayPause() })
	return state, err
}

// Next moves the cursor forward one item
func (e *Engine) Next(ctx context.Context) error {
	return e.navigate(ctx, 1)
}

// Prev moves the cursor back one item
func (e *Engine) Prev(ctx context.Context) error {
	return e.navigate(ctx, -1)
}

func (e *Engine) navigate(ctx context.Context, delta int) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	return s.call(ctx, func() {
		if delta > 0 {
			s.play.Next()
		} else {
			s.play.Prev()
		}
	})
}

// SetDisplayMode switches between slideshow, grid and mosaic
func (e *Engine) SetDisplayMode(ctx context.Context, mode core.DisplayMode) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	var modeErr error
	if err := s.call(ctx, func() { modeErr = s.play.SetDisplayMode(mode) }); err != nil {
		return err
	}
	return modeErr
}

// SetEnabled turns the wall on or off
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	return s.call(ctx, func() { s.play.SetEnabled(enabled) })
}

// ManualRefresh requests a full pull, subject to throttling
func (e *Engine) ManualRefresh(ctx context.Context) (reconcile.Decision, error) {
	s, err := e.current()
	if err != nil {
		return reconcile.DecisionClosed, err
	}
	decision := reconcile.DecisionClosed
	err = s.call(ctx, func() { decision = s.recon.ManualRefresh() })
	return decision, err
}

// Journal returns the most recent pull records of the attached token
func (e *Engine) Journal(ctx context.Context, limit int) ([]*storage.PullRecord, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	if e.opts.Journal == nil {
		return nil, nil
	}
	return e.opts.Journal.RecentPulls(ctx, storage.PullQuery{ShareToken: s.token, Limit: limit})
}

// Health reports push channel and pull state of the attached session
func (e *Engine) Health() core.ServiceHealth {
	health := core.ServiceHealth{Timestamp: time.Now()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := e.Snapshot(ctx)
	switch {
	case err != nil:
		health.Status = core.StatusStopped
		health.Message = err.Error()
		return health
	case v.InitialError != "":
		health.Status = core.StatusError
		health.Message = "initial load failed: " + v.InitialError
	case !v.Connection.Healthy():
		health.Status = core.StatusWarning
		health.Message = "push channel unavailable, polling"
	default:
		health.Status = core.StatusHealthy
		health.Message = "live"
	}

	health.Details = map[string]interface{}{
		"share_token":           v.ShareToken,
		"items":                 len(v.Items),
		"initial_load_complete": v.Sync.InitialLoadComplete,
		"last_pull_at":          v.Sync.LastPullAt,
		"events_received":       v.Stream.Received,
		"events_dropped":        v.Stream.Dropped,
	}
	return health
}
