package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/api"
	"github.com/sho7650/media-wall/internal/config"
	"github.com/sho7650/media-wall/internal/engine"
	"github.com/sho7650/media-wall/internal/httpapi"
	"github.com/sho7650/media-wall/internal/logging"
	"github.com/sho7650/media-wall/internal/storage"
	"github.com/sho7650/media-wall/internal/stream"
	"github.com/sho7650/media-wall/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := os.Getenv("MEDIA_WALL_CONFIG")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	boot, _ := logging.New(logging.DefaultConfig(), os.Stderr)
	if err := run(configPath, boot); err != nil {
		boot.Fatal().Err(err).Str("config", configPath).Msg("media-wall daemon failed")
	}
}

func run(configPath string, boot zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := config.NewConfigManager(boot)
	cfg, err := manager.LoadFromFile(ctx, configPath)
	if err != nil {
		return err
	}

	logger, level, err := logging.NewDynamic(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	logger.Info().Str("config", configPath).Str("share_token", cfg.Wall.ShareToken).Msg("starting media-wall daemon")

	journal := openJournal(cfg.Storage)
	if err := journal.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close journal")
		}
	}()

	eng := engine.New(engineOptions(cfg, journal, logger))
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           httpapi.NewRouter(eng, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", srv.Addr).Msg("http surface listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	changes := make(chan config.ConfigChangeEvent, 4)
	if err := manager.WatchForChanges(ctx, configPath, changes); err != nil {
		logger.Warn().Err(err).Msg("config hot reload unavailable")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	current := cfg
	for {
		select {
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			return shutdown(srv, logger)
		case err := <-serveErr:
			return err
		case event := <-changes:
			if event.Type == config.EventConfigError {
				continue
			}
			next := manager.GetCurrentConfig()
			applyReload(ctx, eng, level, current, next, logger)
			current = next
		}
	}
}

func shutdown(srv *http.Server, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("http surface did not shut down cleanly")
	}
	return nil
}

// applyReload adopts the settings that can change without a restart
func applyReload(ctx context.Context, eng *engine.Engine, level *logging.Level, prev, next *config.Config, logger zerolog.Logger) {
	if next.Logging.Level != prev.Logging.Level {
		if err := level.Set(next.Logging.Level); err != nil {
			logger.Warn().Err(err).Msg("log level not changed")
		} else {
			logger.Info().Str("level", next.Logging.Level).Msg("log level changed")
		}
	}
	if next.Wall.ShareToken != prev.Wall.ShareToken {
		if err := eng.Attach(ctx, next.Wall.ShareToken); err != nil {
			logger.Error().Err(err).Msg("failed to switch share token")
		}
	}
	if next.Wall.BaseURL != prev.Wall.BaseURL || next.Wall.StreamURL != prev.Wall.StreamURL ||
		next.Sync != prev.Sync || next.HTTP != prev.HTTP || next.Storage != prev.Storage {
		logger.Warn().Msg("endpoint, sync, storage or listener changes take effect after a restart")
	}
}

func openJournal(cfg config.StorageConfig) storage.Journal {
	if cfg.Path == "" {
		return storage.NewMemoryJournal(cfg.MemoryLimit)
	}
	return storage.NewSQLiteJournal(cfg.Path)
}

func engineOptions(cfg *config.Config, journal storage.Journal, logger zerolog.Logger) engine.Options {
	opts := engine.Options{
		ShareToken: cfg.Wall.ShareToken,
		Role:       cfg.Wall.Role,
		Fetcher:    api.NewClient(&http.Client{Timeout: cfg.Sync.RequestTimeout}, cfg.Wall.BaseURL, logger),
		Journal:    journal,
		Reconcile:  cfg.Reconcile(),
		Offsets:    cfg.Insertion,
		Activity:   cfg.ActivityDurations(),
		NewFlagTTL: cfg.Activity.NewFlagTTL,
		Logger:     logger,
	}
	if cfg.Wall.StreamURL != "" {
		wsCfg := cfg.Stream()
		opts.NewTransport = func() stream.Transport {
			return ws.New(wsCfg, logger)
		}
	}
	return opts
}
