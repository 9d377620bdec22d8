package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sho7650/media-wall/internal/core"
)

// WallHandler serves the wall routes
type WallHandler struct {
	wall    Wall
	timeout time.Duration
}

// NewWallHandler creates a handler bounding every engine call by timeout
func NewWallHandler(wall Wall, timeout time.Duration) *WallHandler {
	return &WallHandler{wall: wall, timeout: timeout}
}

func (h *WallHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *WallHandler) Health(c *gin.Context) {
	health := h.wall.Health()
	status := http.StatusOK
	if health.Status == core.StatusError || health.Status == core.StatusStopped {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *WallHandler) View(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()
	h.respondView(c, ctx)
}

func (h *WallHandler) TogglePlayPause(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	state, err := h.wall.TogglePlayPause(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *WallHandler) Next(c *gin.Context) {
	h.navigate(c, h.wall.Next)
}

func (h *WallHandler) Prev(c *gin.Context) {
	h.navigate(c, h.wall.Prev)
}

func (h *WallHandler) navigate(c *gin.Context, move func(context.Context) error) {
	ctx, cancel := h.context(c)
	defer cancel()

	if err := move(ctx); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondView(c, ctx)
}

func (h *WallHandler) Refresh(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	decision, err := h.wall.ManualRefresh(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"decision": decision})
}

func (h *WallHandler) SetMode(c *gin.Context) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	mode := core.DisplayMode(strings.TrimSpace(body.Mode))
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be slideshow, grid or mosaic"})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()
	if err := h.wall.SetDisplayMode(ctx, mode); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondView(c, ctx)
}

func (h *WallHandler) SetEnabled(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()
	if err := h.wall.SetEnabled(ctx, *body.Enabled); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondView(c, ctx)
}

func (h *WallHandler) Journal(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	records, err := h.wall.Journal(ctx, parseIntDefault(c.Query("limit"), 20))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *WallHandler) respondView(c *gin.Context, ctx context.Context) {
	view, err := h.wall.Snapshot(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *WallHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNotAttached):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wall is not attached to an event"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "wall did not respond in time"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func parseIntDefault(v string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
		return i
	}
	return fallback
}
