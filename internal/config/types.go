package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sho7650/media-wall/internal/activity"
	"github.com/sho7650/media-wall/internal/logging"
	"github.com/sho7650/media-wall/internal/reconcile"
	"github.com/sho7650/media-wall/internal/sequence"
	"github.com/sho7650/media-wall/internal/transport/ws"
)

// Config represents the complete application configuration
type Config struct {
	Wall      WallConfig       `yaml:"wall"`
	Sync      SyncConfig       `yaml:"sync"`
	Insertion sequence.Offsets `yaml:"insertion"`
	Activity  ActivityConfig   `yaml:"activity"`
	Logging   logging.Config   `yaml:"logging"`
	Storage   StorageConfig    `yaml:"storage"`
	HTTP      HTTPConfig       `yaml:"http"`
}

// WallConfig identifies the event and its endpoints
type WallConfig struct {
	ShareToken string `yaml:"share_token"`
	Role       string `yaml:"role"`
	BaseURL    string `yaml:"base_url"`
	// StreamURL is the websocket endpoint; empty runs on fallback pulls only
	StreamURL string `yaml:"stream_url"`
	Quality   string `yaml:"quality"`
	MaxItems  int    `yaml:"max_items"`
}

// SyncConfig holds reconciliation and reconnection timing
type SyncConfig struct {
	ThrottleWindow    time.Duration `yaml:"throttle_window"`
	FallbackInterval  time.Duration `yaml:"fallback_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
}

// ActivityConfig holds indicator clear delays and the new-item badge TTL
type ActivityConfig struct {
	Uploading       time.Duration `yaml:"uploading"`
	QualityUpgraded time.Duration `yaml:"quality_upgraded"`
	Removing        time.Duration `yaml:"removing"`
	NewFlagTTL      time.Duration `yaml:"new_flag_ttl"`
}

// StorageConfig represents sync journal configuration
type StorageConfig struct {
	// Path of the SQLite journal; empty keeps the journal in memory
	Path        string `yaml:"path"`
	MemoryLimit int    `yaml:"memory_limit"`
}

// HTTPConfig represents the display UI listener
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// ConfigChangeEvent represents a configuration change event
type ConfigChangeEvent struct {
	Type  string
	Path  string
	Error string
}

// Change event types
const (
	EventConfigUpdated = "config_updated"
	EventConfigError   = "config_error"
)

// Default returns a configuration with every tunable set; files overlay it
func Default() Config {
	rc := reconcile.DefaultConfig()
	wc := ws.DefaultConfig()
	ad := activity.DefaultDurations()
	return Config{
		Wall: WallConfig{
			Role:     "photo-wall",
			Quality:  rc.Quality,
			MaxItems: rc.MaxItems,
		},
		Sync: SyncConfig{
			ThrottleWindow:    rc.ThrottleWindow,
			FallbackInterval:  rc.FallbackInterval,
			RequestTimeout:    30 * time.Second,
			ReconnectDelay:    wc.ReconnectDelay,
			MaxReconnectDelay: wc.MaxReconnectDelay,
		},
		Insertion: sequence.DefaultOffsets(),
		Activity: ActivityConfig{
			Uploading:       ad.Uploading,
			QualityUpgraded: ad.QualityUpgraded,
			Removing:        ad.Removing,
			NewFlagTTL:      10 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		Storage: StorageConfig{MemoryLimit: 500},
		HTTP:    HTTPConfig{Listen: "127.0.0.1:8088"},
	}
}

// Validate checks if WallConfig is valid
func (w *WallConfig) Validate() error {
	if strings.TrimSpace(w.ShareToken) == "" {
		return fmt.Errorf("share token cannot be empty")
	}
	if err := checkURL(w.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if w.StreamURL != "" {
		if err := checkURL(w.StreamURL, "ws", "wss"); err != nil {
			return fmt.Errorf("invalid stream_url: %w", err)
		}
	}
	if w.MaxItems < 0 {
		return fmt.Errorf("max_items cannot be negative, got: %d", w.MaxItems)
	}
	return nil
}

// Validate checks if SyncConfig is valid
func (s *SyncConfig) Validate() error {
	if s.ThrottleWindow <= 0 {
		return fmt.Errorf("throttle_window must be greater than 0, got: %s", s.ThrottleWindow)
	}
	if s.FallbackInterval < s.ThrottleWindow {
		return fmt.Errorf("fallback_interval %s must not be shorter than throttle_window %s", s.FallbackInterval, s.ThrottleWindow)
	}
	if s.RequestTimeout < 0 || s.ReconnectDelay < 0 || s.MaxReconnectDelay < 0 {
		return fmt.Errorf("sync durations cannot be negative")
	}
	return nil
}

// Validate checks if ActivityConfig is valid
func (a *ActivityConfig) Validate() error {
	if a.Uploading <= 0 || a.QualityUpgraded <= 0 || a.Removing <= 0 {
		return fmt.Errorf("activity durations must be greater than 0")
	}
	if a.NewFlagTTL < 0 {
		return fmt.Errorf("new_flag_ttl cannot be negative, got: %s", a.NewFlagTTL)
	}
	return nil
}

// Reconcile returns the reconciliation settings
func (c *Config) Reconcile() reconcile.Config {
	return reconcile.Config{
		ThrottleWindow:   c.Sync.ThrottleWindow,
		FallbackInterval: c.Sync.FallbackInterval,
		RequestTimeout:   c.Sync.RequestTimeout,
		Quality:          c.Wall.Quality,
		MaxItems:         c.Wall.MaxItems,
	}
}

// ActivityDurations returns the indicator clear delays
func (c *Config) ActivityDurations() activity.Durations {
	return activity.Durations{
		Uploading:       c.Activity.Uploading,
		QualityUpgraded: c.Activity.QualityUpgraded,
		Removing:        c.Activity.Removing,
	}
}

// Stream returns the websocket transport settings
func (c *Config) Stream() ws.Config {
	cfg := ws.DefaultConfig()
	cfg.URL = c.Wall.StreamURL
	cfg.ReconnectDelay = c.Sync.ReconnectDelay
	cfg.MaxReconnectDelay = c.Sync.MaxReconnectDelay
	return cfg
}

func checkURL(raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("url %q must use one of %v with a host", raw, schemes)
}
