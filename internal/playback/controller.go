// Package playback drives the slideshow cursor.
package playback

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/timing"
)

// State is the derived playback state
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Sequence is the part of the store playback is allowed to touch
type Sequence interface {
	Len() int
	Step(delta int) int
}

// Controller is the Playback Controller. It keeps at most one advance timer
// alive and must only be used from loop turns.
type Controller struct {
	sched timing.Scheduler
	seq   Sequence
	log   zerolog.Logger

	settings  core.Settings
	applied   bool
	isPlaying bool
	timer     timing.Timer
	closed    bool
}

// NewController creates a stopped controller; call ApplySettings to start it
func NewController(sched timing.Scheduler, seq Sequence, logger zerolog.Logger) *Controller {
	return &Controller{
		sched:    sched,
		seq:      seq,
		log:      logger.With().Str("component", "playback").Logger(),
		settings: core.DefaultSettings(),
	}
}

// State derives stopped, playing or paused
func (c *Controller) State() State {
	switch {
	case c.closed, !c.applied:
		return StateStopped
	case !c.settings.IsEnabled, c.settings.DisplayMode != core.DisplayModeSlideshow:
		return StateStopped
	case c.seq.Len() == 0:
		return StateStopped
	case c.isPlaying:
		return StatePlaying
	}
	return StatePaused
}

// Snapshot returns the observable playback fields
func (c *Controller) Snapshot() core.PlaybackState {
	return core.PlaybackState{
		IsPlaying:          c.isPlaying && c.State() == StatePlaying,
		DisplayMode:        c.settings.DisplayMode,
		TransitionDuration: c.settings.TransitionDuration,
	}
}

// Settings returns the settings playback currently runs with
func (c *Controller) Settings() core.Settings {
	return c.settings
}

// ApplySettings adopts settings from a pull. The first call derives the
// initial play flag; later calls replay mode and enablement changes as the
// matching transitions.
func (c *Controller) ApplySettings(s core.Settings) {
	if c.closed {
		return
	}
	if !s.DisplayMode.Valid() {
		s.DisplayMode = core.DisplayModeSlideshow
	}

	if !c.applied {
		c.applied = true
		c.settings = s
		c.isPlaying = s.AutoAdvance && s.IsEnabled
		c.reschedule()
		return
	}

	prev := c.settings
	c.settings = s
	if prev.DisplayMode != s.DisplayMode || prev.IsEnabled != s.IsEnabled || prev.AutoAdvance != s.AutoAdvance {
		c.isPlaying = c.resumeFlag()
	}
	c.reschedule()
}

// TogglePlayPause flips playing and paused. It is a no-op while stopped.
func (c *Controller) TogglePlayPause() State {
	if c.State() == StateStopped {
		return StateStopped
	}
	c.isPlaying = !c.isPlaying
	c.reschedule()
	return c.State()
}

// Next advances the cursor by one with wrap-around
func (c *Controller) Next() (int, bool) {
	return c.navigate(1)
}

// Prev moves the cursor back by one with wrap-around
func (c *Controller) Prev() (int, bool) {
	return c.navigate(-1)
}

func (c *Controller) navigate(delta int) (int, bool) {
	if c.State() == StateStopped {
		return 0, false
	}
	return c.seq.Step(delta), true
}

// SetDisplayMode switches mode. Entering slideshow resumes playing when
// auto-advance is set; leaving it cancels the advance timer.
func (c *Controller) SetDisplayMode(mode core.DisplayMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid display mode: %q", mode)
	}
	if c.closed || mode == c.settings.DisplayMode {
		return nil
	}
	c.settings.DisplayMode = mode
	c.isPlaying = c.resumeFlag()
	c.reschedule()
	return nil
}

// SetEnabled turns the wall on or off. Disabling always stops playback.
func (c *Controller) SetEnabled(enabled bool) {
	if c.closed || enabled == c.settings.IsEnabled {
		return
	}
	c.settings.IsEnabled = enabled
	c.isPlaying = c.resumeFlag()
	c.reschedule()
}

// LengthChanged recreates the timer after the sequence grew or shrank
func (c *Controller) LengthChanged() {
	if c.closed {
		return
	}
	c.reschedule()
}

// Close cancels the timer for good
func (c *Controller) Close() {
	c.closed = true
	c.stopTimer()
}

func (c *Controller) resumeFlag() bool {
	return c.settings.AutoAdvance && c.settings.IsEnabled && c.settings.DisplayMode == core.DisplayModeSlideshow
}

func (c *Controller) tick() {
	c.timer = nil
	if c.State() != StatePlaying {
		return
	}
	cursor := c.seq.Step(1)
	c.log.Debug().Int("cursor", cursor).Msg("advanced")
	c.reschedule()
}

func (c *Controller) reschedule() {
	c.stopTimer()
	if c.closed || c.State() != StatePlaying || c.settings.TransitionDuration <= 0 {
		return
	}
	c.timer = c.sched.AfterFunc(c.settings.TransitionDuration, c.tick)
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
