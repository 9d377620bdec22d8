// Package reconcile keeps the sequence eventually consistent with the
// server's full snapshot while push updates stay the primary source.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/timing"
)

// Config holds reconciliation timing and request parameters
type Config struct {
	ThrottleWindow   time.Duration `yaml:"throttle_window"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	Quality          string        `yaml:"quality"`
	MaxItems         int           `yaml:"max_items"`
}

// DefaultConfig returns a 5s throttle window and a 60s fallback interval
func DefaultConfig() Config {
	return Config{
		ThrottleWindow:   5 * time.Second,
		FallbackInterval: 60 * time.Second,
		Quality:          "display",
		MaxItems:         200,
	}
}

// PullRequest is one full-snapshot request
type PullRequest struct {
	ShareToken string
	Quality    string
	MaxItems   int
	RequestID  string
}

// Fetcher performs the pull. It runs off the loop.
type Fetcher interface {
	Fetch(ctx context.Context, req PullRequest) (*core.Snapshot, error)
}

// Sequence is the part of the store reconciliation replaces
type Sequence interface {
	Len() int
	ReplaceAll(items []core.MediaItem) int
}

// Decision is the immediate answer to a pull attempt
type Decision string

const (
	DecisionStarted   Decision = "started"
	DecisionThrottled Decision = "throttled"
	DecisionInFlight  Decision = "in_flight"
	DecisionClosed    Decision = "closed"
)

// Outcome describes a completed pull
type Outcome struct {
	RequestID  string
	ShareToken string
	Reason     core.PullReason
	StartedAt  time.Time
	FinishedAt time.Time
	SessionID  string
	ItemCount  int
	Replaced   bool
	Err        error
}

// Hooks let the owner react to pull results. Both run as loop turns.
type Hooks struct {
	// Applied runs after every successful pull, once the replace rule ran
	Applied func(snap *core.Snapshot, replaced bool)
	// Completed runs after every pull, successful or not
	Completed func(Outcome)
}

// Controller is the Reconciliation Controller. All methods must be called
// from loop turns.
type Controller struct {
	sched   timing.Scheduler
	fetcher Fetcher
	seq     Sequence
	token   string
	cfg     Config
	hooks   Hooks
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	meta       core.SyncMeta
	healthy    bool
	fallback   timing.Timer
	inFlight   context.CancelFunc
	initialErr error
	closed     bool
}

// NewController creates a controller for one share token
func NewController(sched timing.Scheduler, fetcher Fetcher, seq Sequence, shareToken string, cfg Config, hooks Hooks, logger zerolog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sched:   sched,
		fetcher: fetcher,
		seq:     seq,
		token:   shareToken,
		cfg:     cfg,
		hooks:   hooks,
		log:     logger.With().Str("component", "reconcile").Str("share_token", shareToken).Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start issues the initial pull
func (c *Controller) Start() Decision {
	return c.Pull(core.PullInitial)
}

// ManualRefresh issues a pull on behalf of the UI
func (c *Controller) ManualRefresh() Decision {
	return c.Pull(core.PullManual)
}

// Meta returns the sync bookkeeping
func (c *Controller) Meta() core.SyncMeta {
	return c.meta
}

// InitialError returns the error of a failed initial load, if no pull has
// succeeded since
func (c *Controller) InitialError() error {
	return c.initialErr
}

// Pull starts a fetch unless closed, in flight or throttled
func (c *Controller) Pull(reason core.PullReason) Decision {
	if c.closed {
		return DecisionClosed
	}
	if c.meta.PullInFlight {
		c.log.Debug().Str("reason", string(reason)).Msg("pull skipped, another pull is in flight")
		return DecisionInFlight
	}
	now := c.sched.Now()
	if c.meta.InitialLoadComplete && now.Sub(c.meta.LastPullAt) < c.cfg.ThrottleWindow {
		c.log.Debug().Str("reason", string(reason)).Dur("since_last", now.Sub(c.meta.LastPullAt)).Msg("pull throttled")
		return DecisionThrottled
	}

	req := PullRequest{
		ShareToken: c.token,
		Quality:    c.cfg.Quality,
		MaxItems:   c.cfg.MaxItems,
		RequestID:  uuid.NewString(),
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.inFlight = cancel
	c.meta.PullInFlight = true

	c.log.Debug().Str("reason", string(reason)).Str("request_id", req.RequestID).Msg("pull started")

	c.sched.Go(func() func() {
		snap, err := c.fetcher.Fetch(ctx, req)
		return func() {
			cancel()
			c.complete(req, reason, now, snap, err)
		}
	})
	return DecisionStarted
}

func (c *Controller) complete(req PullRequest, reason core.PullReason, started time.Time, snap *core.Snapshot, err error) {
	if c.closed {
		return
	}

	c.inFlight = nil
	c.meta.PullInFlight = false
	c.meta.LastPullAt = c.sched.Now()

	outcome := Outcome{
		RequestID:  req.RequestID,
		ShareToken: req.ShareToken,
		Reason:     reason,
		StartedAt:  started,
		FinishedAt: c.meta.LastPullAt,
	}

	if err == nil && snap == nil {
		err = core.ErrEmptySnapshot
	}
	if err != nil {
		outcome.Err = err
		c.log.Error().Err(err).Str("reason", string(reason)).Str("request_id", req.RequestID).Msg("pull failed")
		if !c.meta.InitialLoadComplete {
			c.initialErr = err
		}
		c.notify(outcome)
		return
	}

	outcome.ItemCount = len(snap.Items)
	outcome.SessionID = snap.SessionID
	if len(snap.Items) != c.seq.Len() || reason.ForcesReplace() {
		c.seq.ReplaceAll(snap.Items)
		outcome.Replaced = true
	}

	c.meta.InitialLoadComplete = true
	c.initialErr = nil

	c.log.Info().
		Str("reason", string(reason)).
		Int("items", outcome.ItemCount).
		Bool("replaced", outcome.Replaced).
		Msg("pull applied")

	if c.hooks.Applied != nil {
		c.hooks.Applied(snap, outcome.Replaced)
	}
	c.syncFallback()
	c.notify(outcome)
}

func (c *Controller) notify(o Outcome) {
	if c.hooks.Completed != nil {
		c.hooks.Completed(o)
	}
}

// ConnectionChanged arms the fallback timer while push updates cannot be
// trusted and disarms it once they can
func (c *Controller) ConnectionChanged(connected, authenticated bool) {
	c.healthy = connected && authenticated
	c.syncFallback()
}

// FallbackArmed reports whether the periodic fallback timer is live
func (c *Controller) FallbackArmed() bool {
	return c.fallback != nil
}

func (c *Controller) syncFallback() {
	arm := !c.closed && !c.healthy && c.meta.InitialLoadComplete && c.cfg.FallbackInterval > 0
	switch {
	case arm && c.fallback == nil:
		c.log.Info().Dur("interval", c.cfg.FallbackInterval).Msg("push channel unhealthy, fallback polling armed")
		c.fallback = c.sched.AfterFunc(c.cfg.FallbackInterval, c.fireFallback)
	case !arm && c.fallback != nil:
		c.fallback.Stop()
		c.fallback = nil
		c.log.Info().Msg("fallback polling disarmed")
	}
}

func (c *Controller) fireFallback() {
	c.fallback = nil
	if c.closed {
		return
	}
	c.Pull(core.PullPeriodicFallback)
	c.syncFallback()
}

// Close cancels the fallback timer and any in-flight fetch. Completions
// arriving afterwards are ignored.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	if c.inFlight != nil {
		c.inFlight()
		c.inFlight = nil
	}
	c.meta.PullInFlight = false
	c.cancel()
}
