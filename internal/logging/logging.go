// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level and output format
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig logs info and above as JSON
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// Validate checks level and format
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "console":
		return nil
	}
	return fmt.Errorf("log format must be 'json' or 'console', got: %s", c.Format)
}

// ParseLevel maps a level name to zerolog; empty means info
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New builds a logger writing to w, or stderr when w is nil
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), err
	}
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, _ := ParseLevel(cfg.Level)
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "media-wall").Logger(), nil
}

// NewDynamic builds a logger whose level can change after construction.
// Every logger derived from it follows the returned Level.
func NewDynamic(cfg Config, w io.Writer) (zerolog.Logger, *Level, error) {
	logger, err := New(Config{Level: "trace", Format: cfg.Format}, w)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	lvl := &Level{}
	if err := lvl.Set(cfg.Level); err != nil {
		return zerolog.Nop(), nil, err
	}
	return logger.Hook(lvl), lvl, nil
}

// Level is a runtime log level gate
type Level struct {
	v atomic.Int32
}

// Set changes the level; events below it are discarded
func (l *Level) Set(level string) error {
	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.v.Store(int32(parsed))
	return nil
}

// Get returns the current level
func (l *Level) Get() zerolog.Level {
	return zerolog.Level(l.v.Load())
}

// Run implements zerolog.Hook
func (l *Level) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < l.Get() {
		e.Discard()
	}
}
