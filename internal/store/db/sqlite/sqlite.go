package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/z-support/backend/internal/store/db/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT    NOT NULL PRIMARY KEY,
		visitor_id TEXT    NOT NULL,
		status     TEXT    NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_visitor ON chat_sessions(visitor_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT    NOT NULL PRIMARY KEY,
		session_id TEXT    NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		content    TEXT,
		image_url  TEXT,
		is_admin   INTEGER NOT NULL DEFAULT 0,
		status     TEXT    NOT NULL DEFAULT 'sent',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id            TEXT    NOT NULL PRIMARY KEY,
		email         TEXT    NOT NULL UNIQUE,
		name          TEXT    NOT NULL DEFAULT '',
		password_hash TEXT    NOT NULL,
		is_online     INTEGER NOT NULL DEFAULT 0,
		last_seen     INTEGER,
		created_at    INTEGER NOT NULL
	)`,
}

// NewDB opens a sqlite database. dsn is a file path or ":memory:".
func NewDB(ctx context.Context, dsn string) (*sqlstore.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable sqlite foreign keys")
	}

	return sqlstore.New(db, sqlstore.Dialect{
		Name:        "sqlite",
		Placeholder: sqlstore.QuestionMark,
		Schema:      schema,
	}), nil
}
