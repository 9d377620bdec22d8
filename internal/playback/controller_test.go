package playback

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/sequence"
	"github.com/sho7650/media-wall/internal/timing"
)

const transition = 5 * time.Second

func setup(t *testing.T, n int) (*Controller, *sequence.Store, *timing.Manual) {
	t.Helper()
	clock := timing.NewManual(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
	store := sequence.NewStore()
	items := make([]core.MediaItem, n)
	for i := range items {
		items[i] = core.MediaItem{ID: fmt.Sprintf("m%d", i), ImageURL: fmt.Sprintf("https://cdn.example.com/m%d.jpg", i)}
	}
	store.ReplaceAll(items)
	return NewController(clock, store, zerolog.Nop()), store, clock
}

func settings() core.Settings {
	s := core.DefaultSettings()
	s.TransitionDuration = transition
	return s
}

func TestController_InitialStateFromSettings(t *testing.T) {
	tests := []struct {
		name        string
		autoAdvance bool
		enabled     bool
		want        State
	}{
		{"auto advance and enabled", true, true, StatePlaying},
		{"manual advance", false, true, StatePaused},
		{"disabled", true, false, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := setup(t, 3)
			assert.Equal(t, StateStopped, c.State(), "stopped before settings arrive")

			s := settings()
			s.AutoAdvance = tt.autoAdvance
			s.IsEnabled = tt.enabled
			c.ApplySettings(s)

			assert.Equal(t, tt.want, c.State())
		})
	}
}

func TestController_TickWrapsAround(t *testing.T) {
	for _, n := range []int{1, 2, 5, 9} {
		t.Run(fmt.Sprintf("length %d", n), func(t *testing.T) {
			c, store, clock := setup(t, n)
			c.ApplySettings(settings())

			for i := 1; i <= n; i++ {
				clock.Advance(transition)
				assert.Equal(t, i%n, store.Cursor())
			}
			assert.Equal(t, 0, store.Cursor())
			assert.Equal(t, 1, clock.PendingTimers())
		})
	}
}

func TestController_EmptySequenceIsStopped(t *testing.T) {
	c, store, clock := setup(t, 0)
	c.ApplySettings(settings())

	assert.Equal(t, StateStopped, c.State())
	assert.Zero(t, clock.PendingTimers())

	store.Insert(core.MediaItem{ID: "first", ImageURL: "https://cdn.example.com/first.jpg"}, core.InsertEndOfQueue)
	c.LengthChanged()

	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, 1, clock.PendingTimers())
}

func TestController_TogglePlayPause(t *testing.T) {
	c, store, clock := setup(t, 4)
	c.ApplySettings(settings())

	assert.Equal(t, StatePaused, c.TogglePlayPause())
	assert.Zero(t, clock.PendingTimers())
	clock.Advance(3 * transition)
	assert.Equal(t, 0, store.Cursor())

	assert.Equal(t, StatePlaying, c.TogglePlayPause())
	clock.Advance(transition)
	assert.Equal(t, 1, store.Cursor())
}

func TestController_ToggleFromStoppedIsNoop(t *testing.T) {
	c, _, clock := setup(t, 4)
	s := settings()
	s.DisplayMode = core.DisplayModeGrid
	c.ApplySettings(s)

	assert.Equal(t, StateStopped, c.TogglePlayPause())
	assert.Zero(t, clock.PendingTimers())
}

func TestController_ManualNavigation(t *testing.T) {
	c, store, clock := setup(t, 3)
	s := settings()
	s.AutoAdvance = false
	c.ApplySettings(s)

	cursor, ok := c.Prev()
	require.True(t, ok)
	assert.Equal(t, 2, cursor)
	cursor, _ = c.Next()
	assert.Equal(t, 0, cursor)
	assert.Equal(t, StatePaused, c.State(), "navigation does not change the play flag")
	assert.Zero(t, clock.PendingTimers())

	c.SetEnabled(false)
	_, ok = c.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, store.Cursor())
}

func TestController_DisplayModeTransitions(t *testing.T) {
	c, _, clock := setup(t, 3)
	c.ApplySettings(settings())

	require.NoError(t, c.SetDisplayMode(core.DisplayModeMosaic))
	assert.Equal(t, StateStopped, c.State())
	assert.Zero(t, clock.PendingTimers())
	assert.False(t, c.Snapshot().IsPlaying)

	require.NoError(t, c.SetDisplayMode(core.DisplayModeSlideshow))
	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, 1, clock.PendingTimers())

	assert.Error(t, c.SetDisplayMode(core.DisplayMode("carousel")))
	assert.Equal(t, core.DisplayModeSlideshow, c.Settings().DisplayMode)
}

func TestController_SlideshowWithoutAutoAdvanceStaysPaused(t *testing.T) {
	c, _, _ := setup(t, 3)
	s := settings()
	s.AutoAdvance = false
	s.DisplayMode = core.DisplayModeGrid
	c.ApplySettings(s)

	require.NoError(t, c.SetDisplayMode(core.DisplayModeSlideshow))

	assert.Equal(t, StatePaused, c.State())
}

func TestController_DisableForcesStopped(t *testing.T) {
	c, _, clock := setup(t, 3)
	c.ApplySettings(settings())
	c.TogglePlayPause()

	c.SetEnabled(false)
	assert.Equal(t, StateStopped, c.State())
	assert.Zero(t, clock.PendingTimers())

	c.SetEnabled(true)
	assert.Equal(t, StatePlaying, c.State())
}

func TestController_SettingsChangeFromPull(t *testing.T) {
	c, store, clock := setup(t, 4)
	c.ApplySettings(settings())

	s := settings()
	s.IsEnabled = false
	c.ApplySettings(s)
	assert.Equal(t, StateStopped, c.State())
	assert.Zero(t, clock.PendingTimers())

	s.IsEnabled = true
	s.TransitionDuration = 2 * time.Second
	c.ApplySettings(s)
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, store.Cursor())
}

func TestController_UnchangedSettingsKeepPause(t *testing.T) {
	c, _, _ := setup(t, 4)
	c.ApplySettings(settings())
	c.TogglePlayPause()

	c.ApplySettings(settings())

	assert.Equal(t, StatePaused, c.State())
}

func TestController_ZeroDurationDisablesAutoAdvance(t *testing.T) {
	c, store, clock := setup(t, 4)
	s := settings()
	s.TransitionDuration = 0
	c.ApplySettings(s)

	assert.Equal(t, StatePlaying, c.State())
	assert.Zero(t, clock.PendingTimers())
	clock.Advance(time.Minute)
	assert.Equal(t, 0, store.Cursor())
}

func TestController_AtMostOneTimer(t *testing.T) {
	c, store, clock := setup(t, 4)
	c.ApplySettings(settings())

	for i := 0; i < 10; i++ {
		store.Insert(core.MediaItem{ID: fmt.Sprintf("x%d", i), ImageURL: "https://cdn.example.com/x.jpg"}, core.InsertEndOfQueue)
		c.LengthChanged()
		c.TogglePlayPause()
		c.TogglePlayPause()
		require.LessOrEqual(t, clock.PendingTimers(), 1)
	}
	assert.Equal(t, 1, clock.PendingTimers())
}

func TestController_CloseCancelsTimer(t *testing.T) {
	c, store, clock := setup(t, 3)
	c.ApplySettings(settings())

	c.Close()
	clock.Advance(10 * transition)

	assert.Zero(t, clock.PendingTimers())
	assert.Equal(t, 0, store.Cursor())
	assert.Equal(t, StateStopped, c.State())

	c.LengthChanged()
	c.ApplySettings(settings())
	assert.Zero(t, clock.PendingTimers())
}
