package reconcile

import (
	"context"
	"errors"
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

type result struct {
	snap *core.Snapshot
	err  error
}

// fakeFetcher returns queued results in order and repeats the last one
type fakeFetcher struct {
	results  []result
	requests []PullRequest
	contexts []context.Context
}

func (f *fakeFetcher) Fetch(ctx context.Context, req PullRequest) (*core.Snapshot, error) {
	f.requests = append(f.requests, req)
	f.contexts = append(f.contexts, ctx)
	if len(f.results) == 0 {
		return &core.Snapshot{Settings: core.DefaultSettings()}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.snap, r.err
}

func items(prefix string, n int) []core.MediaItem {
	out := make([]core.MediaItem, n)
	for i := range out {
		id := fmt.Sprintf("%s%d", prefix, i)
		out[i] = core.MediaItem{ID: id, ImageURL: "https://cdn.example.com/" + id + ".jpg"}
	}
	return out
}

func snapshot(list []core.MediaItem) result {
	return result{snap: &core.Snapshot{Items: list, Settings: core.DefaultSettings(), SessionID: "sess-1"}}
}

type harness struct {
	clock    *timing.Manual
	fetcher  *fakeFetcher
	store    *sequence.Store
	ctrl     *Controller
	applied  int
	outcomes []Outcome
}

func newHarness(t *testing.T, results ...result) *harness {
	t.Helper()
	h := &harness{
		clock:   timing.NewManual(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)),
		fetcher: &fakeFetcher{results: results},
		store:   sequence.NewStore(),
	}
	h.clock.AutoRunWork = true
	h.ctrl = NewController(h.clock, h.fetcher, h.store, "tok-abc", DefaultConfig(), Hooks{
		Applied:   func(*core.Snapshot, bool) { h.applied++ },
		Completed: func(o Outcome) { h.outcomes = append(h.outcomes, o) },
	}, zerolog.Nop())
	return h
}

// loaded returns a harness whose initial pull completed at t=0 while the
// push channel is healthy
func loaded(t *testing.T, results ...result) *harness {
	t.Helper()
	h := newHarness(t, results...)
	h.ctrl.ConnectionChanged(true, true)
	require.Equal(t, DecisionStarted, h.ctrl.Start())
	require.True(t, h.ctrl.Meta().InitialLoadComplete)
	return h
}

func TestController_InitialPullIsNeverThrottled(t *testing.T) {
	h := newHarness(t, snapshot(items("a", 3)))

	assert.Equal(t, DecisionStarted, h.ctrl.Start())

	require.Len(t, h.fetcher.requests, 1)
	req := h.fetcher.requests[0]
	assert.Equal(t, "tok-abc", req.ShareToken)
	assert.Equal(t, "display", req.Quality)
	assert.Equal(t, 200, req.MaxItems)
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, 3, h.store.Len())
	assert.True(t, h.ctrl.Meta().InitialLoadComplete)
	assert.False(t, h.ctrl.Meta().PullInFlight)
	assert.Equal(t, h.clock.Now(), h.ctrl.Meta().LastPullAt)
}

func TestController_ThrottleLaw(t *testing.T) {
	h := loaded(t, snapshot(items("a", 2)))

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, DecisionThrottled, h.ctrl.Pull(core.PullPeriodicFallback))

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, DecisionStarted, h.ctrl.Pull(core.PullPeriodicFallback))
	assert.Len(t, h.fetcher.requests, 2)
}

func TestController_ManualRefreshTwiceWithinWindow(t *testing.T) {
	h := loaded(t, snapshot(items("a", 3)), snapshot(items("b", 4)), snapshot(items("c", 5)))
	h.clock.Advance(10 * time.Second)

	require.Equal(t, DecisionStarted, h.ctrl.ManualRefresh())
	before := h.store.Items()
	beforeCursor := h.store.Cursor()

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, DecisionThrottled, h.ctrl.ManualRefresh())

	assert.Equal(t, before, h.store.Items())
	assert.Equal(t, beforeCursor, h.store.Cursor())
	assert.Len(t, h.fetcher.requests, 2)
}

func TestController_ReplaceLaw(t *testing.T) {
	t.Run("same count on fallback leaves order and cursor", func(t *testing.T) {
		h := loaded(t, snapshot(items("a", 4)), snapshot(items("z", 4)))
		h.store.Step(2)
		h.clock.Advance(10 * time.Second)

		require.Equal(t, DecisionStarted, h.ctrl.Pull(core.PullPeriodicFallback))

		assert.Equal(t, items("a", 4), h.store.Items())
		assert.Equal(t, 2, h.store.Cursor())
		require.Len(t, h.outcomes, 2)
		assert.False(t, h.outcomes[1].Replaced)
		assert.Equal(t, 2, h.applied, "settings and stats still apply")
	})

	t.Run("different count on fallback replaces", func(t *testing.T) {
		h := loaded(t, snapshot(items("a", 4)), snapshot(items("z", 5)))
		h.clock.Advance(10 * time.Second)

		h.ctrl.Pull(core.PullPeriodicFallback)

		assert.Equal(t, items("z", 5), h.store.Items())
		assert.True(t, h.outcomes[1].Replaced)
	})

	t.Run("manual always replaces", func(t *testing.T) {
		h := loaded(t, snapshot(items("a", 4)), snapshot(items("z", 4)))
		h.clock.Advance(10 * time.Second)

		h.ctrl.ManualRefresh()

		assert.Equal(t, items("z", 4), h.store.Items())
		assert.True(t, h.outcomes[1].Replaced)
	})
}

func TestController_InFlightSkipsPull(t *testing.T) {
	h := newHarness(t, snapshot(items("a", 2)))
	h.clock.AutoRunWork = false

	require.Equal(t, DecisionStarted, h.ctrl.Start())
	assert.True(t, h.ctrl.Meta().PullInFlight)
	assert.Equal(t, DecisionInFlight, h.ctrl.ManualRefresh())
	assert.Equal(t, 1, h.clock.PendingWork())

	h.clock.RunWork()

	assert.False(t, h.ctrl.Meta().PullInFlight)
	assert.Len(t, h.fetcher.requests, 1)
	assert.Equal(t, 2, h.store.Len())
}

func TestController_FailureHandling(t *testing.T) {
	t.Run("failed initial pull surfaces an error", func(t *testing.T) {
		boom := errors.New("connection refused")
		h := newHarness(t, result{err: boom}, snapshot(items("a", 2)))

		h.ctrl.Start()

		assert.ErrorIs(t, h.ctrl.InitialError(), boom)
		assert.False(t, h.ctrl.Meta().InitialLoadComplete)
		assert.False(t, h.ctrl.Meta().PullInFlight)
		assert.Equal(t, h.clock.Now(), h.ctrl.Meta().LastPullAt)
		require.Len(t, h.outcomes, 1)
		assert.ErrorIs(t, h.outcomes[0].Err, boom)
		assert.Zero(t, h.applied)
		assert.Len(t, h.fetcher.requests, 1, "no immediate retry")

		require.Equal(t, DecisionStarted, h.ctrl.ManualRefresh())
		assert.NoError(t, h.ctrl.InitialError())
		assert.Equal(t, 2, h.store.Len())
	})

	t.Run("failure after load keeps the sequence", func(t *testing.T) {
		h := loaded(t, snapshot(items("a", 3)), result{err: errors.New("status=false")})
		h.clock.Advance(10 * time.Second)

		h.ctrl.ManualRefresh()

		assert.Equal(t, items("a", 3), h.store.Items())
		assert.NoError(t, h.ctrl.InitialError())
		assert.Equal(t, DecisionThrottled, h.ctrl.ManualRefresh(), "failure stamps the throttle window")
	})

	t.Run("nil snapshot counts as failure", func(t *testing.T) {
		h := newHarness(t, result{})

		h.ctrl.Start()

		assert.ErrorIs(t, h.ctrl.InitialError(), core.ErrEmptySnapshot)
	})
}

func TestController_FallbackAfterDisconnect(t *testing.T) {
	h := loaded(t, snapshot(items("a", 3)))
	h.clock.Advance(30 * time.Second)

	h.ctrl.ConnectionChanged(false, false)
	assert.True(t, h.ctrl.FallbackArmed())

	h.clock.Advance(59 * time.Second)
	assert.Len(t, h.fetcher.requests, 1, "nothing before a full interval")

	h.clock.Advance(time.Second)
	require.Len(t, h.fetcher.requests, 2)
	assert.Equal(t, core.PullPeriodicFallback, h.outcomes[1].Reason)

	h.clock.Advance(60 * time.Second)
	assert.Len(t, h.fetcher.requests, 3, "fallback repeats while unhealthy")

	h.ctrl.ConnectionChanged(true, true)
	assert.False(t, h.ctrl.FallbackArmed())
	h.clock.Advance(10 * time.Minute)
	assert.Len(t, h.fetcher.requests, 3)
}

func TestController_UnauthenticatedArmsFallback(t *testing.T) {
	h := loaded(t, snapshot(items("a", 3)))

	h.ctrl.ConnectionChanged(true, false)
	h.clock.Advance(20 * time.Second)
	h.ctrl.ConnectionChanged(false, false)

	h.clock.Advance(40 * time.Second)
	assert.Len(t, h.fetcher.requests, 2, "first unhealthy transition starts the interval")
}

func TestController_NoFallbackBeforeInitialLoad(t *testing.T) {
	h := newHarness(t, result{err: errors.New("timeout")})

	h.ctrl.Start()
	h.ctrl.ConnectionChanged(false, false)

	assert.False(t, h.ctrl.FallbackArmed())
	h.clock.Advance(5 * time.Minute)
	assert.Len(t, h.fetcher.requests, 1)
}

func TestController_InitialLoadArmsFallbackWhenAlreadyDisconnected(t *testing.T) {
	h := newHarness(t, snapshot(items("a", 1)))

	h.ctrl.Start()

	assert.True(t, h.ctrl.FallbackArmed())
}

func TestController_CloseIgnoresLateCompletion(t *testing.T) {
	h := newHarness(t, snapshot(items("a", 2)))
	h.clock.AutoRunWork = false
	h.ctrl.Start()

	h.ctrl.Close()
	h.clock.RunWork()

	assert.Zero(t, h.store.Len())
	assert.Empty(t, h.outcomes)
	require.Len(t, h.fetcher.contexts, 1)
	assert.Error(t, h.fetcher.contexts[0].Err(), "in-flight fetch context is cancelled")
	assert.Equal(t, DecisionClosed, h.ctrl.ManualRefresh())
	assert.False(t, h.ctrl.FallbackArmed())
	assert.Zero(t, h.clock.PendingTimers())
}
