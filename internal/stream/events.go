package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventName identifies a push notification
type EventName string

const (
	EventMediaUploaded        EventName = "media-uploaded"
	EventMediaQualityUpgraded EventName = "media-quality-upgraded"
	EventMediaRemoved         EventName = "media-removed"
	EventStatsUpdated         EventName = "stats-updated"
	EventViewerCountUpdated   EventName = "viewer-count-updated"
)

// Errors returned by payload normalization
var (
	ErrEmptyPayload   = errors.New("event payload is empty")
	ErrMissingMediaID = errors.New("event payload has no mediaId")
	ErrMissingURL     = errors.New("event payload has no usable image URL")
	ErrMissingField   = errors.New("event payload is missing a required field")
	ErrUnknownEvent   = errors.New("unknown event name")
)

// MediaUploaded is the normalized media-uploaded payload
type MediaUploaded struct {
	MediaID      string
	ImageURL     string
	UploaderName string
	UploadedAt   time.Time
}

// QualityUpgraded is the normalized media-quality-upgraded payload
type QualityUpgraded struct {
	MediaID  string
	ImageURL string
}

// MediaRemoved is the normalized media-removed payload
type MediaRemoved struct {
	MediaID string
	Reason  string
}

// StatsUpdated is the normalized stats-updated payload
type StatsUpdated struct {
	TotalImages int
}

// ViewerCountUpdated is the normalized viewer-count-updated payload
type ViewerCountUpdated struct {
	ViewerCount int
}

// wire shapes, kept private to this file

type uploadedWire struct {
	MediaID string `json:"mediaId"`
	Media   *struct {
		URL          string `json:"url"`
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"media"`
	UploadedBy *struct {
		Name string `json:"name"`
	} `json:"uploadedBy"`
	UploadedAt string `json:"uploadedAt"`
}

type upgradedWire struct {
	MediaID  string `json:"mediaId"`
	Variants *struct {
		Display string `json:"display"`
		Full    string `json:"full"`
	} `json:"variants"`
}

type removedWire struct {
	MediaID      string `json:"mediaId"`
	GuestContext *struct {
		ReasonDisplay string `json:"reasonDisplay"`
	} `json:"guestContext"`
}

type statsWire struct {
	Stats *struct {
		Approved   *int `json:"approved"`
		TotalMedia *int `json:"totalMedia"`
	} `json:"stats"`
}

type viewerWire struct {
	GuestCount *int `json:"guestCount"`
	Total      *int `json:"total"`
}

// decode rejects absent, null or non-object data before unmarshalling
func decode(raw json.RawMessage, v interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func normalizeUploaded(raw json.RawMessage, now time.Time) (MediaUploaded, error) {
	var w uploadedWire
	if err := decode(raw, &w); err != nil {
		return MediaUploaded{}, err
	}
	if strings.TrimSpace(w.MediaID) == "" {
		return MediaUploaded{}, ErrMissingMediaID
	}

	out := MediaUploaded{MediaID: w.MediaID, UploadedAt: now}
	if w.Media != nil {
		out.ImageURL = firstNonEmpty(w.Media.URL, w.Media.ThumbnailURL)
	}
	if out.ImageURL == "" {
		return MediaUploaded{}, ErrMissingURL
	}
	if w.UploadedBy != nil {
		out.UploaderName = strings.TrimSpace(w.UploadedBy.Name)
	}
	if w.UploadedAt != "" {
		if ts, err := time.Parse(time.RFC3339, w.UploadedAt); err == nil {
			out.UploadedAt = ts
		}
	}
	return out, nil
}

func normalizeUpgraded(raw json.RawMessage) (QualityUpgraded, error) {
	var w upgradedWire
	if err := decode(raw, &w); err != nil {
		return QualityUpgraded{}, err
	}
	if strings.TrimSpace(w.MediaID) == "" {
		return QualityUpgraded{}, ErrMissingMediaID
	}
	if w.Variants == nil {
		return QualityUpgraded{}, ErrMissingURL
	}
	url := firstNonEmpty(w.Variants.Display, w.Variants.Full)
	if url == "" {
		return QualityUpgraded{}, ErrMissingURL
	}
	return QualityUpgraded{MediaID: w.MediaID, ImageURL: url}, nil
}

func normalizeRemoved(raw json.RawMessage) (MediaRemoved, error) {
	var w removedWire
	if err := decode(raw, &w); err != nil {
		return MediaRemoved{}, err
	}
	if strings.TrimSpace(w.MediaID) == "" {
		return MediaRemoved{}, ErrMissingMediaID
	}
	out := MediaRemoved{MediaID: w.MediaID}
	if w.GuestContext != nil {
		out.Reason = w.GuestContext.ReasonDisplay
	}
	return out, nil
}

func normalizeStats(raw json.RawMessage) (StatsUpdated, error) {
	var w statsWire
	if err := decode(raw, &w); err != nil {
		return StatsUpdated{}, err
	}
	if w.Stats == nil {
		return StatsUpdated{}, fmt.Errorf("%w: stats", ErrMissingField)
	}
	switch {
	case w.Stats.Approved != nil:
		return StatsUpdated{TotalImages: *w.Stats.Approved}, nil
	case w.Stats.TotalMedia != nil:
		return StatsUpdated{TotalImages: *w.Stats.TotalMedia}, nil
	}
	return StatsUpdated{}, fmt.Errorf("%w: stats.approved or stats.totalMedia", ErrMissingField)
}

func normalizeViewerCount(raw json.RawMessage) (ViewerCountUpdated, error) {
	var w viewerWire
	if err := decode(raw, &w); err != nil {
		return ViewerCountUpdated{}, err
	}
	switch {
	case w.GuestCount != nil:
		return ViewerCountUpdated{ViewerCount: *w.GuestCount}, nil
	case w.Total != nil:
		return ViewerCountUpdated{ViewerCount: *w.Total}, nil
	}
	return ViewerCountUpdated{}, fmt.Errorf("%w: guestCount or total", ErrMissingField)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
