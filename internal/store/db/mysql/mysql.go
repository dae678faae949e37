package mysql

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/store/db/sqlstore"
)

var schema = []string{
	"CREATE TABLE IF NOT EXISTS `chat_sessions` (" +
		"`id` VARCHAR(64) NOT NULL PRIMARY KEY," +
		"`visitor_id` VARCHAR(64) NOT NULL," +
		"`status` VARCHAR(16) NOT NULL DEFAULT 'active'," +
		"`created_at` BIGINT NOT NULL," +
		"`updated_at` BIGINT NOT NULL," +
		"INDEX `idx_chat_sessions_visitor` (`visitor_id`)" +
		")",
	"CREATE TABLE IF NOT EXISTS `messages` (" +
		"`id` VARCHAR(64) NOT NULL PRIMARY KEY," +
		"`session_id` VARCHAR(64) NOT NULL," +
		"`content` TEXT NULL," +
		"`image_url` TEXT NULL," +
		"`is_admin` BOOLEAN NOT NULL DEFAULT FALSE," +
		"`status` VARCHAR(16) NOT NULL DEFAULT 'sent'," +
		"`created_at` BIGINT NOT NULL," +
		"INDEX `idx_messages_session` (`session_id`, `created_at`)," +
		"CONSTRAINT `fk_messages_session` FOREIGN KEY (`session_id`) REFERENCES `chat_sessions`(`id`) ON DELETE CASCADE" +
		")",
	"CREATE TABLE IF NOT EXISTS `admin_users` (" +
		"`id` VARCHAR(64) NOT NULL PRIMARY KEY," +
		"`email` VARCHAR(255) NOT NULL UNIQUE," +
		"`name` VARCHAR(255) NOT NULL DEFAULT ''," +
		"`password_hash` VARCHAR(255) NOT NULL," +
		"`is_online` BOOLEAN NOT NULL DEFAULT FALSE," +
		"`last_seen` BIGINT NULL," +
		"`created_at` BIGINT NOT NULL" +
		")",
}

// NewDB opens a MySQL connection pool from a go-sql-driver DSN.
func NewDB(ctx context.Context, dsn string) (*sqlstore.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.MultiStatements = false

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create mysql connector")
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}

	return sqlstore.New(db, sqlstore.Dialect{
		Name:        "mysql",
		Placeholder: sqlstore.QuestionMark,
		Schema:      schema,
	}), nil
}
