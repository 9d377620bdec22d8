package storage

import (
	"context"
	"errors"
	"time"
)

// ErrStorageNotReady is returned by journal operations before Initialize
var ErrStorageNotReady = errors.New("storage not ready")

// Journal records pull outcomes per share token. It never stores media.
type Journal interface {
	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
	IsReady() bool

	// Pull records
	RecordPull(ctx context.Context, record *PullRecord) error
	RecentPulls(ctx context.Context, query PullQuery) ([]*PullRecord, error)

	// Sync state, derived from recorded pulls
	GetSyncState(ctx context.Context, shareToken string) (*SyncState, error)
}

// PullRecord is one completed pull
type PullRecord struct {
	ID         string    `json:"id" db:"id"`
	ShareToken string    `json:"share_token" db:"share_token"`
	RequestID  string    `json:"request_id" db:"request_id"`
	Reason     string    `json:"reason" db:"reason"`
	SessionID  string    `json:"session_id,omitempty" db:"session_id"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	ItemCount  int       `json:"item_count" db:"item_count"`
	Replaced   bool      `json:"replaced" db:"replaced"`
	Error      string    `json:"error,omitempty" db:"error"`
}

// Failed reports whether the pull ended in an error
func (r *PullRecord) Failed() bool {
	return r.Error != ""
}

// SyncState summarizes the pulls of one share token
type SyncState struct {
	ShareToken    string    `json:"share_token" db:"share_token"`
	LastPullAt    time.Time `json:"last_pull_at" db:"last_pull_at"`
	LastSuccessAt time.Time `json:"last_success_at" db:"last_success_at"`
	SessionID     string    `json:"session_id" db:"session_id"`
	ItemCount     int       `json:"item_count" db:"item_count"`
	PullsTotal    int       `json:"pulls_total" db:"pulls_total"`
	PullsFailed   int       `json:"pulls_failed" db:"pulls_failed"`
}

// PullQuery defines search parameters for pull records
type PullQuery struct {
	ShareToken string
	Since      *time.Time
	FailedOnly bool
	Limit      int
}
