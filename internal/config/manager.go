package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ConfigManager handles configuration loading, validation, and hot reload
type ConfigManager struct {
	currentConfig *Config
	mutex         sync.RWMutex
	log           zerolog.Logger

	debounceDelay time.Duration
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(logger zerolog.Logger) *ConfigManager {
	return &ConfigManager{
		log:           logger.With().Str("component", "config").Logger(),
		debounceDelay: 200 * time.Millisecond,
	}
}

// SetDebounceDelay sets how long the watcher waits for writes to settle
func (cm *ConfigManager) SetDebounceDelay(d time.Duration) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.debounceDelay = d
}

// LoadFromFile loads configuration from a YAML file over the defaults.
// The current configuration only changes when the new one validates.
func (cm *ConfigManager) LoadFromFile(ctx context.Context, filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := cm.substituteEnvVars(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cm.ValidateConfig(ctx, &config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.mutex.Lock()
	cm.currentConfig = &config
	cm.mutex.Unlock()

	return &config, nil
}

// ValidateConfig validates the entire configuration
func (cm *ConfigManager) ValidateConfig(ctx context.Context, config *Config) error {
	if err := config.Wall.Validate(); err != nil {
		return fmt.Errorf("wall config validation failed: %w", err)
	}
	if err := config.Sync.Validate(); err != nil {
		return fmt.Errorf("sync config validation failed: %w", err)
	}
	if err := config.Activity.Validate(); err != nil {
		return fmt.Errorf("activity config validation failed: %w", err)
	}
	if err := config.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	if config.Insertion.AfterCurrent < 0 || config.Insertion.SmartBase < 0 || config.Insertion.SmartSpread < 0 {
		return fmt.Errorf("insertion offsets cannot be negative")
	}
	return nil
}

// GetCurrentConfig returns the currently loaded configuration
func (cm *ConfigManager) GetCurrentConfig() *Config {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.currentConfig
}

// WatchForChanges reloads filePath whenever it changes and reports each
// attempt on changeChan. The parent directory is watched so editors that
// replace the file are seen too. Watching stops when ctx is done.
func (cm *ConfigManager) WatchForChanges(ctx context.Context, filePath string, changeChan chan<- ConfigChangeEvent) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to add watch path %s: %w", filepath.Dir(abs), err)
	}

	go cm.watchLoop(ctx, watcher, filePath, abs, changeChan)
	return nil
}

func (cm *ConfigManager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, filePath, abs string, changeChan chan<- ConfigChangeEvent) {
	defer func() { _ = watcher.Close() }()

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	cm.mutex.RLock()
	delay := cm.debounceDelay
	cm.mutex.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(delay, func() {
				if ctx.Err() != nil {
					return
				}
				cm.handleConfigChange(ctx, filePath, changeChan)
			})
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			cm.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// handleConfigChange reloads the file and reports the outcome
func (cm *ConfigManager) handleConfigChange(ctx context.Context, filePath string, changeChan chan<- ConfigChangeEvent) {
	event := ConfigChangeEvent{Type: EventConfigUpdated, Path: filePath}
	if _, err := cm.LoadFromFile(ctx, filePath); err != nil {
		event.Type = EventConfigError
		event.Error = err.Error()
		cm.log.Error().Err(err).Str("path", filePath).Msg("config reload rejected, keeping previous configuration")
	} else {
		cm.log.Info().Str("path", filePath).Msg("config reloaded")
	}

	select {
	case changeChan <- event:
	case <-ctx.Done():
	default:
		cm.log.Warn().Str("path", filePath).Msg("config change listener is not keeping up, event dropped")
	}
}

// substituteEnvVars replaces ${VAR} patterns with environment variables
func (cm *ConfigManager) substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match
	})
}
