// Package api is the HTTP client for the wall's full-snapshot endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/reconcile"
)

// ErrServerReported is returned when the endpoint answers with status=false
var ErrServerReported = errors.New("server reported a failed pull")

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("wall endpoint %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("wall endpoint status %d", e.Code)
}

// Client fetches wall snapshots
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

var _ reconcile.Fetcher = (*Client)(nil)

// NewClient creates a client against baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL string, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		log:        logger.With().Str("component", "api").Logger(),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type itemWire struct {
	ID           string `json:"id"`
	ImageURL     string `json:"imageUrl"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	UploaderName string `json:"uploaderName"`
	UploadedBy   *struct {
		Name string `json:"name"`
	} `json:"uploadedBy"`
	UploadedAt string `json:"uploadedAt"`
}

type settingsWire struct {
	DisplayMode        string `json:"displayMode"`
	AutoAdvance        *bool  `json:"autoAdvance"`
	TransitionDuration *int64 `json:"transitionDuration"`
	IsEnabled          *bool  `json:"isEnabled"`
	ShowUploaderNames  *bool  `json:"showUploaderNames"`
	NewImageInsertion  string `json:"newImageInsertion"`
}

type statsWire struct {
	TotalImages *int `json:"totalImages"`
	ViewerCount *int `json:"viewerCount"`
}

type dataWire struct {
	Items     []itemWire    `json:"items"`
	Settings  *settingsWire `json:"settings"`
	SessionID string        `json:"sessionId"`
	Stats     *statsWire    `json:"stats"`
}

// Fetch performs one pull. Items that fail validation are dropped.
func (c *Client) Fetch(ctx context.Context, req reconcile.PullRequest) (*core.Snapshot, error) {
	token := strings.TrimSpace(req.ShareToken)
	if token == "" {
		return nil, core.ErrInvalidShareToken
	}

	q := url.Values{}
	if req.Quality != "" {
		q.Set("quality", req.Quality)
	}
	if req.MaxItems > 0 {
		q.Set("maxItems", strconv.Itoa(req.MaxItems))
	}
	endpoint := c.baseURL + "/api/events/" + url.PathEscape(token) + "/wall"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", decodeErr)
	}
	if !env.Status {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrServerReported, env.Message)
		}
		return nil, ErrServerReported
	}

	var data dataWire
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode pull data: %w", err)
		}
	}

	return c.normalize(data, time.Now()), nil
}

func (c *Client) normalize(data dataWire, now time.Time) *core.Snapshot {
	snap := &core.Snapshot{
		Items:     make([]core.MediaItem, 0, len(data.Items)),
		Settings:  normalizeSettings(data.Settings),
		SessionID: data.SessionID,
	}

	for _, w := range data.Items {
		item := core.MediaItem{
			ID:           strings.TrimSpace(w.ID),
			ImageURL:     firstNonEmpty(w.ImageURL, w.URL, w.ThumbnailURL),
			UploaderName: strings.TrimSpace(w.UploaderName),
			UploadedAt:   now,
		}
		if item.UploaderName == "" && w.UploadedBy != nil {
			item.UploaderName = strings.TrimSpace(w.UploadedBy.Name)
		}
		if ts, err := time.Parse(time.RFC3339, w.UploadedAt); err == nil {
			item.UploadedAt = ts
		}
		if err := item.Validate(); err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid item from pull")
			continue
		}
		snap.Items = append(snap.Items, item)
	}

	if data.Stats != nil {
		snap.Stats = &core.PulledStats{
			TotalImages: data.Stats.TotalImages,
			ViewerCount: data.Stats.ViewerCount,
		}
	}
	return snap
}

// normalizeSettings fills missing fields from the defaults. Durations are
// milliseconds on the wire.
func normalizeSettings(w *settingsWire) core.Settings {
	s := core.DefaultSettings()
	if w == nil {
		return s
	}
	if w.DisplayMode != "" {
		s.DisplayMode = core.ParseDisplayMode(w.DisplayMode)
	}
	if w.AutoAdvance != nil {
		s.AutoAdvance = *w.AutoAdvance
	}
	if w.TransitionDuration != nil && *w.TransitionDuration >= 0 {
		s.TransitionDuration = time.Duration(*w.TransitionDuration) * time.Millisecond
	}
	if w.IsEnabled != nil {
		s.IsEnabled = *w.IsEnabled
	}
	if w.ShowUploaderNames != nil {
		s.ShowUploaderNames = *w.ShowUploaderNames
	}
	if w.NewImageInsertion != "" {
		s.NewImageInsertion = core.ParseInsertionStrategy(w.NewImageInsertion)
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
