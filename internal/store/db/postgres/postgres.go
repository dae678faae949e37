package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/store/db/sqlstore"
)

// NotifyChannel is the LISTEN/NOTIFY channel fed by the change triggers.
const NotifyChannel = "z_support_changes"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT   NOT NULL PRIMARY KEY,
		visitor_id TEXT   NOT NULL,
		status     TEXT   NOT NULL DEFAULT 'active',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_visitor ON chat_sessions(visitor_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT    NOT NULL PRIMARY KEY,
		session_id TEXT    NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		content    TEXT,
		image_url  TEXT,
		is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
		status     TEXT    NOT NULL DEFAULT 'sent',
		created_at BIGINT  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id            TEXT    NOT NULL PRIMARY KEY,
		email         TEXT    NOT NULL UNIQUE,
		name          TEXT    NOT NULL DEFAULT '',
		password_hash TEXT    NOT NULL,
		is_online     BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen     BIGINT,
		created_at    BIGINT  NOT NULL
	)`,
	`CREATE OR REPLACE FUNCTION z_support_notify() RETURNS trigger AS $$
	DECLARE
		rec RECORD;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec := OLD;
		ELSE
			rec := NEW;
		END IF;
		PERFORM pg_notify('` + NotifyChannel + `', json_build_object(
			'table', TG_TABLE_NAME,
			'type', TG_OP,
			'id', rec.id,
			'session_id', to_jsonb(rec)->>'session_id'
		)::text);
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,
}

func init() {
	for _, table := range []string{"chat_sessions", "messages", "admin_users"} {
		trigger := pq.QuoteIdentifier("z_support_notify_" + table)
		schema = append(schema,
			`DROP TRIGGER IF EXISTS `+trigger+` ON `+table,
			`CREATE TRIGGER `+trigger+` AFTER INSERT OR UPDATE OR DELETE ON `+table+
				` FOR EACH ROW EXECUTE FUNCTION z_support_notify()`,
		)
	}
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// NewDB opens a PostgreSQL connection pool through lib/pq.
func NewDB(ctx context.Context, dsn string) (*sqlstore.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return sqlstore.New(db, sqlstore.Dialect{
		Name:        "postgres",
		Placeholder: placeholder,
		Schema:      schema,
	}), nil
}
