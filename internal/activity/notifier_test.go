package activity

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/media-wall/internal/timing"
)

func newNotifier() (*Notifier, *timing.Manual) {
	clock := timing.NewManual(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
	return NewNotifier(clock, DefaultDurations(), zerolog.Nop()), clock
}

func TestNotifier_ClearsAfterKindDelay(t *testing.T) {
	tests := []struct {
		kind  Kind
		delay time.Duration
		flag  func(Snapshot) bool
	}{
		{KindUploading, 3 * time.Second, func(s Snapshot) bool { return s.Uploading }},
		{KindQualityUpgraded, 2 * time.Second, func(s Snapshot) bool { return s.QualityUpgraded }},
		{KindRemoving, 3 * time.Second, func(s Snapshot) bool { return s.Removing }},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n, clock := newNotifier()

			require.NoError(t, n.Trigger(tt.kind))
			assert.True(t, tt.flag(n.Snapshot()))

			clock.Advance(tt.delay - time.Millisecond)
			assert.True(t, tt.flag(n.Snapshot()))

			clock.Advance(time.Millisecond)
			assert.False(t, tt.flag(n.Snapshot()))
		})
	}
}

func TestNotifier_FlagStaysUntilLastClear(t *testing.T) {
	n, clock := newNotifier()

	require.NoError(t, n.Trigger(KindUploading))
	clock.Advance(2 * time.Second)
	require.NoError(t, n.Trigger(KindUploading))

	clock.Advance(time.Second)
	assert.True(t, n.Snapshot().Uploading, "second upload keeps the flag raised")

	clock.Advance(2 * time.Second)
	snap := n.Snapshot()
	assert.False(t, snap.Uploading)
	assert.Equal(t, uint64(2), snap.NewMediaCount)
}

func TestNotifier_KindsAreIndependent(t *testing.T) {
	n, clock := newNotifier()

	require.NoError(t, n.Trigger(KindUploading))
	require.NoError(t, n.Trigger(KindQualityUpgraded))
	require.NoError(t, n.Trigger(KindRemoving))
	require.NoError(t, n.Trigger(KindRemoving))

	clock.Advance(2 * time.Second)
	snap := n.Snapshot()
	assert.True(t, snap.Uploading)
	assert.False(t, snap.QualityUpgraded)
	assert.True(t, snap.Removing)
	assert.Equal(t, uint64(1), snap.NewMediaCount)
	assert.Equal(t, uint64(1), snap.UpgradedMediaCount)
	assert.Equal(t, uint64(2), snap.RemovedMediaCount)
}

func TestNotifier_CountersNeverReset(t *testing.T) {
	n, clock := newNotifier()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Trigger(KindRemoving))
		clock.Advance(10 * time.Second)
	}

	assert.Equal(t, uint64(5), n.Snapshot().RemovedMediaCount)
	assert.False(t, n.Snapshot().Removing)
}

func TestNotifier_UnknownKind(t *testing.T) {
	n, _ := newNotifier()

	err := n.Trigger(Kind("cheering"))

	assert.Error(t, err)
	assert.Equal(t, Snapshot{}, n.Snapshot())
}

func TestNotifier_CloseCancelsClears(t *testing.T) {
	n, clock := newNotifier()
	require.NoError(t, n.Trigger(KindUploading))
	require.NoError(t, n.Trigger(KindQualityUpgraded))
	require.Equal(t, 2, clock.PendingTimers())

	n.Close()

	assert.Zero(t, clock.PendingTimers())
	assert.False(t, n.Snapshot().Uploading)

	require.NoError(t, n.Trigger(KindUploading))
	assert.Zero(t, clock.PendingTimers(), "closed notifier schedules nothing")
}
