// Package httpapi exposes the attached wall to display UIs over HTTP.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/engine"
	"github.com/sho7650/media-wall/internal/playback"
	"github.com/sho7650/media-wall/internal/reconcile"
	"github.com/sho7650/media-wall/internal/storage"
)

// Wall is the engine surface the handlers drive
type Wall interface {
	Snapshot(ctx context.Context) (engine.View, error)
	TogglePlayPause(ctx context.Context) (playback.State, error)
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
	SetDisplayMode(ctx context.Context, mode core.DisplayMode) error
	SetEnabled(ctx context.Context, enabled bool) error
	ManualRefresh(ctx context.Context) (reconcile.Decision, error)
	Journal(ctx context.Context, limit int) ([]*storage.PullRecord, error)
	Health() core.ServiceHealth
}

// NewRouter builds the gin engine serving the wall API
func NewRouter(wall Wall, logger zerolog.Logger) *gin.Engine {
	h := NewWallHandler(wall, 5*time.Second)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	r.GET("/healthz", h.Health)

	api := r.Group("/api/wall")
	{
		api.GET("", h.View)
		api.POST("/play-pause", h.TogglePlayPause)
		api.POST("/next", h.Next)
		api.POST("/prev", h.Prev)
		api.POST("/refresh", h.Refresh)
		api.PUT("/mode", h.SetMode)
		api.PUT("/enabled", h.SetEnabled)
		api.GET("/journal", h.Journal)
	}
	return r
}

// RequestLogger logs one line per request
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Debug()
		if c.Writer.Status() >= 500 {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
