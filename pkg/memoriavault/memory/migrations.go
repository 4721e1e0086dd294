package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// sqliteMigrations are applied in order; migration i brings the schema to
// version i+1.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		title         TEXT    NOT NULL,
		text          TEXT    NOT NULL DEFAULT '',
		captured_date TEXT,
		location      TEXT,
		sentiment     REAL CHECK (sentiment IS NULL OR (sentiment >= -1 AND sentiment <= 1)),
		media_path    TEXT    NOT NULL,
		media_type    TEXT    NOT NULL CHECK (media_type IN ('image', 'audio')),
		person        TEXT,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_media_path ON memories(media_path);

	CREATE TABLE IF NOT EXISTS memory_terms (
		term      TEXT    NOT NULL,
		memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		field     TEXT    NOT NULL,
		spans     TEXT    NOT NULL,
		PRIMARY KEY (term, memory_id, field)
	) WITHOUT ROWID;
	CREATE INDEX IF NOT EXISTS idx_memory_terms_memory ON memory_terms(memory_id);`,
}

// SQLiteMigrator handles schema migrations for SQLite.
type SQLiteMigrator struct {
	db *sql.DB
}

// NewSQLiteMigrator creates a new SQLite migrator.
func NewSQLiteMigrator(db *sql.DB) *SQLiteMigrator {
	return &SQLiteMigrator{db: db}
}

// CurrentVersion returns the current schema version.
func (m *SQLiteMigrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every pending migration, each in its own transaction.
func (m *SQLiteMigrator) Migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := current; i < len(sqliteMigrations); i++ {
		if err := m.apply(ctx, i+1, sqliteMigrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *SQLiteMigrator) apply(ctx context.Context, version int, stmt string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("apply migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}

// NeedsMigration returns true if the schema is outdated.
func (m *SQLiteMigrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < len(sqliteMigrations), nil
}
