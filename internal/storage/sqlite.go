package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal implements Journal using SQLite
type SQLiteJournal struct {
	dbPath string
	db     *sql.DB
	ready  bool
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal creates a new SQLite journal instance
func NewSQLiteJournal(dbPath string) *SQLiteJournal {
	return &SQLiteJournal{
		dbPath: dbPath,
	}
}

// Initialize opens the database and brings the schema up to date
func (s *SQLiteJournal) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrations := NewMigrationManager(db)
	if err := migrations.Initialize(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := migrations.Migrate(ctx, JournalMigrations()); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate journal: %w", err)
	}

	s.db = db
	s.ready = true
	return nil
}

// Close closes the database connection
func (s *SQLiteJournal) Close() error {
	if s.db != nil {
		s.ready = false
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// IsReady returns whether the journal is ready for operations
func (s *SQLiteJournal) IsReady() bool {
	return s.ready && s.db != nil
}

// RecordPull stores the record and folds it into the token's sync state in
// one transaction
func (s *SQLiteJournal) RecordPull(ctx context.Context, record *PullRecord) error {
	if !s.IsReady() {
		return ErrStorageNotReady
	}
	if err := validateRecord(record); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pull_records (
			id, share_token, request_id, reason, session_id,
			started_at, finished_at, item_count, replaced, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ShareToken, record.RequestID, record.Reason, record.SessionID,
		record.StartedAt.UTC(), record.FinishedAt.UTC(), record.ItemCount, record.Replaced, record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to store pull record: %w", err)
	}

	failed := 0
	if record.Failed() {
		failed = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_states (
			share_token, last_pull_at, last_success_at, session_id,
			item_count, pulls_total, pulls_failed
		) VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(share_token) DO UPDATE SET
			last_pull_at = excluded.last_pull_at,
			last_success_at = CASE WHEN ? = 0 THEN excluded.last_success_at ELSE sync_states.last_success_at END,
			session_id = CASE WHEN ? = 0 THEN excluded.session_id ELSE sync_states.session_id END,
			item_count = CASE WHEN ? = 0 THEN excluded.item_count ELSE sync_states.item_count END,
			pulls_total = sync_states.pulls_total + 1,
			pulls_failed = sync_states.pulls_failed + excluded.pulls_failed`,
		record.ShareToken, record.FinishedAt.UTC(), successTime(record), record.SessionID,
		record.ItemCount, failed,
		failed, failed, failed,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentPulls returns pull records, newest first
func (s *SQLiteJournal) RecentPulls(ctx context.Context, query PullQuery) ([]*PullRecord, error) {
	if !s.IsReady() {
		return nil, ErrStorageNotReady
	}

	var conditions []string
	var args []interface{}

	if query.ShareToken != "" {
		conditions = append(conditions, "share_token = ?")
		args = append(args, query.ShareToken)
	}
	if query.Since != nil {
		conditions = append(conditions, "finished_at >= ?")
		args = append(args, query.Since.UTC())
	}
	if query.FailedOnly {
		conditions = append(conditions, "error != ''")
	}

	sqlQuery := `SELECT id, share_token, request_id, reason, session_id,
		started_at, finished_at, item_count, replaced, error FROM pull_records`
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY finished_at DESC, rowid DESC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pull records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*PullRecord
	for rows.Next() {
		r := &PullRecord{}
		if err := rows.Scan(
			&r.ID, &r.ShareToken, &r.RequestID, &r.Reason, &r.SessionID,
			&r.StartedAt, &r.FinishedAt, &r.ItemCount, &r.Replaced, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pull record: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return results, nil
}

// GetSyncState retrieves the sync state for a share token. It returns nil
// without error when the token has no pulls yet.
func (s *SQLiteJournal) GetSyncState(ctx context.Context, shareToken string) (*SyncState, error) {
	if !s.IsReady() {
		return nil, ErrStorageNotReady
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT share_token, last_pull_at, last_success_at, session_id,
		       item_count, pulls_total, pulls_failed
		FROM sync_states WHERE share_token = ?`, shareToken)

	state := &SyncState{}
	err := row.Scan(
		&state.ShareToken, &state.LastPullAt, &state.LastSuccessAt, &state.SessionID,
		&state.ItemCount, &state.PullsTotal, &state.PullsFailed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

func validateRecord(record *PullRecord) error {
	if record == nil {
		return fmt.Errorf("pull record cannot be nil")
	}
	if record.ShareToken == "" {
		return fmt.Errorf("pull record ShareToken cannot be empty")
	}
	if record.Reason == "" {
		return fmt.Errorf("pull record Reason cannot be empty")
	}
	return nil
}

// successTime is the zero time for failed pulls
func successTime(record *PullRecord) time.Time {
	if record.Failed() {
		return time.Time{}
	}
	return record.FinishedAt.UTC()
}
