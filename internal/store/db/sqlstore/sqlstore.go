// Package sqlstore holds the queries shared by every database/sql dialect.
// Dialect packages supply the connection, placeholders and DDL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/store"
)

// Dialect describes what differs between SQL engines.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
	Schema      []string
}

// QuestionMark is the placeholder style of mysql and sqlite.
func QuestionMark(int) string { return "?" }

// DB implements store.Driver on top of database/sql.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Driver = (*DB)(nil)

// New wraps an open connection pool.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// SQL exposes the connection pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Dialect returns the dialect name.
func (d *DB) Dialect() string {
	return d.dialect.Name
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range d.dialect.Schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "%s migrate", d.dialect.Name)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// where collects "column op placeholder" clauses and their arguments.
type where struct {
	ph      func(int) string
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, w.ph(len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return "1 = 1"
	}
	return strings.Join(w.clauses, " AND ")
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
