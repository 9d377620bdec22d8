package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MediaItem represents one displayable item of an event's media wall
type MediaItem struct {
	ID           string    `json:"id"`
	ImageURL     string    `json:"imageUrl"`
	UploaderName string    `json:"uploaderName,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
	// IsNew is transient and never takes part in ordering or equality
	IsNew bool `json:"isNew"`
}

// Validate checks if MediaItem has required fields
func (m *MediaItem) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("media item ID cannot be empty")
	}
	if strings.TrimSpace(m.ImageURL) == "" {
		return fmt.Errorf("media item %s has no image URL", m.ID)
	}
	return nil
}

// DisplayMode selects how the wall renders the sequence
type DisplayMode string

const (
	DisplayModeSlideshow DisplayMode = "slideshow"
	DisplayModeGrid      DisplayMode = "grid"
	DisplayModeMosaic    DisplayMode = "mosaic"
)

// Valid reports whether the mode is one of the known display modes
func (m DisplayMode) Valid() bool {
	switch m {
	case DisplayModeSlideshow, DisplayModeGrid, DisplayModeMosaic:
		return true
	}
	return false
}

// ParseDisplayMode maps wire values to a DisplayMode, defaulting to slideshow
func ParseDisplayMode(s string) DisplayMode {
	mode := DisplayMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.Valid() {
		return DisplayModeSlideshow
	}
	return mode
}

// InsertionStrategy decides where a pushed item lands relative to the cursor
type InsertionStrategy string

const (
	InsertImmediate     InsertionStrategy = "immediate"
	InsertAfterCurrent  InsertionStrategy = "after_current"
	InsertEndOfQueue    InsertionStrategy = "end_of_queue"
	InsertSmartPriority InsertionStrategy = "smart_priority"
)

// ParseInsertionStrategy maps wire values to a strategy; unknown or empty
// values fall back to end_of_queue
func ParseInsertionStrategy(s string) InsertionStrategy {
	switch strategy := InsertionStrategy(strings.ToLower(strings.TrimSpace(s))); strategy {
	case InsertImmediate, InsertAfterCurrent, InsertEndOfQueue, InsertSmartPriority:
		return strategy
	}
	return InsertEndOfQueue
}

// Settings are the display settings delivered with every pull
type Settings struct {
	DisplayMode        DisplayMode       `json:"displayMode"`
	AutoAdvance        bool              `json:"autoAdvance"`
	TransitionDuration time.Duration     `json:"transitionDuration"`
	IsEnabled          bool              `json:"isEnabled"`
	ShowUploaderNames  bool              `json:"showUploaderNames"`
	NewImageInsertion  InsertionStrategy `json:"newImageInsertion"`
}

// DefaultSettings returns the settings used before the first pull resolves
func DefaultSettings() Settings {
	return Settings{
		DisplayMode:        DisplayModeSlideshow,
		AutoAdvance:        true,
		TransitionDuration: 5 * time.Second,
		IsEnabled:          true,
		NewImageInsertion:  InsertAfterCurrent,
	}
}

// SyncMeta tracks the reconciliation state of one session
type SyncMeta struct {
	LastPullAt          time.Time `json:"lastPullAt"`
	PullInFlight        bool      `json:"pullInFlight"`
	InitialLoadComplete bool      `json:"initialLoadComplete"`
}

// ViewerStats are display-only counters; they never drive sequence mutation
type ViewerStats struct {
	TotalImages int       `json:"totalImages"`
	ViewerCount int       `json:"viewerCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// PulledStats are the counters a pull may report. Nil fields were not sent.
type PulledStats struct {
	TotalImages *int `json:"totalImages,omitempty"`
	ViewerCount *int `json:"viewerCount,omitempty"`
}

// PlaybackState is the observable slideshow state
type PlaybackState struct {
	IsPlaying          bool          `json:"isPlaying"`
	DisplayMode        DisplayMode   `json:"displayMode"`
	TransitionDuration time.Duration `json:"transitionDuration"`
}

// Snapshot is the normalized result of one full pull
type Snapshot struct {
	Items     []MediaItem `json:"items"`
	Settings  Settings    `json:"settings"`
	SessionID string      `json:"sessionId"`
	// Stats carries server-side counters when the endpoint reports them
	Stats *PulledStats `json:"stats,omitempty"`
}

// PullReason records why a full pull was requested
type PullReason string

const (
	PullInitial          PullReason = "initial"
	PullManual           PullReason = "manual"
	PullPeriodicFallback PullReason = "periodic_fallback"
)

// ForcesReplace reports whether a pull for this reason always replaces the sequence
func (r PullReason) ForcesReplace() bool {
	return r == PullInitial || r == PullManual
}

// MarshalJSON writes TransitionDuration in milliseconds
func (s Settings) MarshalJSON() ([]byte, error) {
	type alias Settings
	return json.Marshal(struct {
		alias
		TransitionDuration int64 `json:"transitionDuration"`
	}{alias(s), s.TransitionDuration.Milliseconds()})
}

// UnmarshalJSON reads TransitionDuration in milliseconds
func (s *Settings) UnmarshalJSON(data []byte) error {
	type alias Settings
	aux := struct {
		*alias
		TransitionDuration *int64 `json:"transitionDuration"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TransitionDuration != nil {
		s.TransitionDuration = time.Duration(*aux.TransitionDuration) * time.Millisecond
	}
	return nil
}

// MarshalJSON writes TransitionDuration in milliseconds
func (p PlaybackState) MarshalJSON() ([]byte, error) {
	type alias PlaybackState
	return json.Marshal(struct {
		alias
		TransitionDuration int64 `json:"transitionDuration"`
	}{alias(p), p.TransitionDuration.Milliseconds()})
}

// UnmarshalJSON reads TransitionDuration in milliseconds
func (p *PlaybackState) UnmarshalJSON(data []byte) error {
	type alias PlaybackState
	aux := struct {
		*alias
		TransitionDuration *int64 `json:"transitionDuration"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TransitionDuration != nil {
		p.TransitionDuration = time.Duration(*aux.TransitionDuration) * time.Millisecond
	}
	return nil
}
