package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

const sessionColumns = `id, visitor_id, status, created_at, updated_at`

func (d *DB) CreateSession(ctx context.Context, create *chat.Session) (*chat.Session, error) {
	ph := d.dialect.Placeholder
	stmt := `INSERT INTO chat_sessions (` + sessionColumns + `) VALUES (` +
		ph(1) + `, ` + ph(2) + `, ` + ph(3) + `, ` + ph(4) + `, ` + ph(5) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.VisitorID, string(create.Status),
		toMicros(create.CreatedAt), toMicros(create.UpdatedAt),
	); err != nil {
		return nil, errors.Wrap(err, "insert chat session")
	}

	created := *create
	created.CreatedAt = fromMicros(toMicros(create.CreatedAt))
	created.UpdatedAt = fromMicros(toMicros(create.UpdatedAt))
	return &created, nil
}

func (d *DB) sessionWhere(find *store.FindSession) *where {
	w := &where{ph: d.dialect.Placeholder}
	if v := find.ID; v != nil {
		w.add("id = %s", *v)
	}
	if v := find.VisitorID; v != nil {
		w.add("visitor_id = %s", *v)
	}
	if v := find.Status; v != nil {
		w.add("status = %s", string(*v))
	}
	return w
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*chat.Session, error) {
	w := d.sessionWhere(find)
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE ` + w.String() +
		` ORDER BY created_at DESC, id DESC` + limitClause(find.Limit)

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "list chat sessions")
	}
	defer rows.Close()

	var list []*chat.Session
	for rows.Next() {
		var (
			s                  chat.Session
			status             string
			createdAt, updated int64
		)
		if err := rows.Scan(&s.ID, &s.VisitorID, &status, &createdAt, &updated); err != nil {
			return nil, errors.Wrap(err, "scan chat session")
		}
		s.Status = chat.SessionStatus(status)
		s.CreatedAt = fromMicros(createdAt)
		s.UpdatedAt = fromMicros(updated)
		list = append(list, &s)
	}
	return list, errors.Wrap(rows.Err(), "iterate chat sessions")
}

func (d *DB) UpdateSession(ctx context.Context, update *store.UpdateSession) (*chat.Session, error) {
	w := &where{ph: d.dialect.Placeholder}
	if v := update.Status; v != nil {
		w.add("status = %s", string(*v))
	}
	if len(w.clauses) > 0 {
		w.add("updated_at = %s", toMicros(time.Now()))
		set := strings.Join(w.clauses, ", ")
		w.args = append(w.args, update.ID)
		stmt := `UPDATE chat_sessions SET ` + set + ` WHERE id = ` + d.dialect.Placeholder(len(w.args))
		if _, err := d.db.ExecContext(ctx, stmt, w.args...); err != nil {
			return nil, errors.Wrap(err, "update chat session")
		}
	}

	list, err := d.ListSessions(ctx, &store.FindSession{ID: &update.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (d *DB) CountSessions(ctx context.Context, find *store.FindSession) (int64, error) {
	w := d.sessionWhere(find)
	var count int64
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_sessions WHERE `+w.String(), w.args...,
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count chat sessions")
	}
	return count, nil
}
