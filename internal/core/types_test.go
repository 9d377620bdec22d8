package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Contract(t *testing.T) {
	var _ Service = (*mockService)(nil)
}

func TestMediaItem_Validation(t *testing.T) {
	media := MediaItem{
		ID:         "b1c5e3f2-0001",
		ImageURL:   "https://cdn.example.com/display/0001.jpg",
		UploadedAt: time.Now(),
	}

	err := media.Validate()
	require.NoError(t, err)
}

func TestMediaItem_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		media   MediaItem
		wantErr string
	}{
		{
			name:    "empty id",
			media:   MediaItem{ImageURL: "https://cdn.example.com/a.jpg"},
			wantErr: "ID cannot be empty",
		},
		{
			name:    "blank id",
			media:   MediaItem{ID: "   ", ImageURL: "https://cdn.example.com/a.jpg"},
			wantErr: "ID cannot be empty",
		},
		{
			name:    "missing url",
			media:   MediaItem{ID: "m-1"},
			wantErr: "no image URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.media.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseInsertionStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want InsertionStrategy
	}{
		{"immediate", InsertImmediate},
		{"after_current", InsertAfterCurrent},
		{"END_OF_QUEUE", InsertEndOfQueue},
		{" smart_priority ", InsertSmartPriority},
		{"", InsertEndOfQueue},
		{"shuffle", InsertEndOfQueue},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInsertionStrategy(tt.in))
		})
	}
}

func TestParseDisplayMode(t *testing.T) {
	assert.Equal(t, DisplayModeGrid, ParseDisplayMode("grid"))
	assert.Equal(t, DisplayModeMosaic, ParseDisplayMode("Mosaic"))
	assert.Equal(t, DisplayModeSlideshow, ParseDisplayMode("carousel"))
	assert.False(t, DisplayMode("carousel").Valid())
}

func TestPullReason_ForcesReplace(t *testing.T) {
	assert.True(t, PullInitial.ForcesReplace())
	assert.True(t, PullManual.ForcesReplace())
	assert.False(t, PullPeriodicFallback.ForcesReplace())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, DisplayModeSlideshow, s.DisplayMode)
	assert.True(t, s.IsEnabled)
	assert.True(t, s.AutoAdvance)
	assert.Equal(t, InsertAfterCurrent, s.NewImageInsertion)
	assert.Positive(t, s.TransitionDuration)
}

func TestSettings_JSONUsesMilliseconds(t *testing.T) {
	s := DefaultSettings()
	s.TransitionDuration = 7500 * time.Millisecond

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(7500), raw["transitionDuration"])
	assert.Equal(t, "slideshow", raw["displayMode"])

	var back Settings
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestPlaybackState_JSONUsesMilliseconds(t *testing.T) {
	p := PlaybackState{IsPlaying: true, DisplayMode: DisplayModeSlideshow, TransitionDuration: 5 * time.Second}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"isPlaying":true,"displayMode":"slideshow","transitionDuration":5000}`, string(data))

	var back PlaybackState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestSettings_UnmarshalWithoutDurationKeepsValue(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, json.Unmarshal([]byte(`{"isEnabled":false}`), &s))

	assert.False(t, s.IsEnabled)
	assert.Equal(t, 5*time.Second, s.TransitionDuration)
}

type mockService struct{}

func (m *mockService) Start(ctx context.Context) error { return nil }

func (m *mockService) Stop(ctx context.Context) error { return nil }

func (m *mockService) Health() ServiceHealth {
	return ServiceHealth{Status: StatusHealthy, Timestamp: time.Now()}
}
