package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/inkwell-ai/inkwell/internal/config"
)

// Open opens a database connection for the configured driver and verifies it
// with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.SQLite.Path
		if cfg.SQLite.JournalMode != "" {
			dsn = fmt.Sprintf("file:%s?_journal_mode=%s", cfg.SQLite.Path, cfg.SQLite.JournalMode)
		}
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
	case "postgres":
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the schema if it does not already exist. The DDL sticks to
// the subset shared by SQLite and Postgres.
func Migrate(ctx context.Context, db DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT,
			input_type TEXT NOT NULL,
			input_text TEXT,
			settings TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			progress_message TEXT NOT NULL DEFAULT '',
			enhanced_text TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs (owner_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS flashcards (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			term TEXT NOT NULL,
			definition TEXT NOT NULL,
			source TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flashcards_job ON flashcards (job_id, position)`,
		`CREATE TABLE IF NOT EXISTS export_artifacts (
			job_id TEXT NOT NULL,
			format TEXT NOT NULL,
			location TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (job_id, format)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
