package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Up        string    `json:"up"`
	Down      string    `json:"down"`
	AppliedAt time.Time `json:"applied_at"`
}

// JournalMigrations returns the journal schema in version order
func JournalMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_pull_records",
			Up: `CREATE TABLE pull_records (
				id TEXT PRIMARY KEY,
				share_token TEXT NOT NULL,
				request_id TEXT NOT NULL,
				reason TEXT NOT NULL,
				session_id TEXT NOT NULL DEFAULT '',
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL,
				item_count INTEGER NOT NULL DEFAULT 0,
				replaced BOOLEAN NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT ''
			)`,
			Down: `DROP TABLE pull_records`,
		},
		{
			Version: 2,
			Name:    "create_sync_states",
			Up: `CREATE TABLE sync_states (
				share_token TEXT PRIMARY KEY,
				last_pull_at DATETIME NOT NULL,
				last_success_at DATETIME NOT NULL,
				session_id TEXT NOT NULL DEFAULT '',
				item_count INTEGER NOT NULL DEFAULT 0,
				pulls_total INTEGER NOT NULL DEFAULT 0,
				pulls_failed INTEGER NOT NULL DEFAULT 0
			)`,
			Down: `DROP TABLE sync_states`,
		},
		{
			Version: 3,
			Name:    "index_pull_records_token_time",
			Up:      `CREATE INDEX idx_pull_records_token_finished ON pull_records(share_token, finished_at)`,
			Down:    `DROP INDEX idx_pull_records_token_finished`,
		},
	}
}

// MigrationManager applies versioned schema changes on an open database
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager over db
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// Initialize sets up the migration tracking table
func (mm *MigrationManager) Initialize(ctx context.Context) error {
	_, err := mm.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the current database schema version
func (mm *MigrationManager) GetCurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := mm.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// ApplyMigration applies a single migration in a transaction
func (mm *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	if migration.Version <= 0 {
		return fmt.Errorf("migration version must be positive, got %d", migration.Version)
	}
	if migration.Name == "" {
		return fmt.Errorf("migration name cannot be empty")
	}
	if migration.Up == "" {
		return fmt.Errorf("migration Up script cannot be empty")
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		migration.Version, migration.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}

// RollbackMigration runs the Down script and forgets the version
func (mm *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	if migration.Down == "" {
		return fmt.Errorf("migration %d has no Down script", migration.Version)
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start rollback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, migration.Version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("migration version %d not applied", migration.Version)
	}
	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to roll back migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	return nil
}

// ListAppliedMigrations returns all applied migrations
func (mm *MigrationManager) ListAppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := mm.db.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var migrations []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migrations = append(migrations, m)
	}
	return migrations, rows.Err()
}

// Migrate applies every migration newer than the current version
func (mm *MigrationManager) Migrate(ctx context.Context, migrations []Migration) error {
	return mm.MigrateToVersion(ctx, migrations, latestVersion(migrations))
}

// MigrateToVersion moves the schema up or down to targetVersion
func (mm *MigrationManager) MigrateToVersion(ctx context.Context, migrations []Migration, targetVersion int) error {
	current, err := mm.GetCurrentVersion(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	switch {
	case targetVersion > current:
		for _, m := range sorted {
			if m.Version <= current || m.Version > targetVersion {
				continue
			}
			if err := mm.ApplyMigration(ctx, m); err != nil {
				return err
			}
		}
	case targetVersion < current:
		for i := len(sorted) - 1; i >= 0; i-- {
			m := sorted[i]
			if m.Version > current || m.Version <= targetVersion {
				continue
			}
			if err := mm.RollbackMigration(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func latestVersion(migrations []Migration) int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}
