package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

const messageColumns = `id, session_id, content, image_url, is_admin, status, created_at`

func (d *DB) CreateMessage(ctx context.Context, create *chat.Message) (*chat.Message, error) {
	ph := d.dialect.Placeholder
	stmt := `INSERT INTO messages (` + messageColumns + `) VALUES (` +
		ph(1) + `, ` + ph(2) + `, ` + ph(3) + `, ` + ph(4) + `, ` + ph(5) + `, ` + ph(6) + `, ` + ph(7) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.SessionID, nullString(create.Content), nullString(create.ImageURL),
		create.IsAdmin, string(create.Status), toMicros(create.CreatedAt),
	); err != nil {
		return nil, errors.Wrap(err, "insert message")
	}

	created := *create
	created.CreatedAt = fromMicros(toMicros(create.CreatedAt))
	return &created, nil
}

func (d *DB) messageWhere(find *store.FindMessage) *where {
	w := &where{ph: d.dialect.Placeholder}
	if v := find.ID; v != nil {
		w.add("id = %s", *v)
	}
	if v := find.SessionID; v != nil {
		w.add("session_id = %s", *v)
	}
	return w
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*chat.Message, error) {
	w := d.messageWhere(find)
	order := "ASC"
	if find.Descending {
		order = "DESC"
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + w.String() +
		` ORDER BY created_at ` + order + `, id ` + order + limitClause(find.Limit)

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var list []*chat.Message
	for rows.Next() {
		var (
			m         chat.Message
			content   sql.NullString
			imageURL  sql.NullString
			status    string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &content, &imageURL, &m.IsAdmin, &status, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		m.Content = stringPtr(content)
		m.ImageURL = stringPtr(imageURL)
		m.Status = chat.MessageStatus(status)
		m.CreatedAt = fromMicros(createdAt)
		list = append(list, &m)
	}
	return list, errors.Wrap(rows.Err(), "iterate messages")
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*chat.Message, error) {
	w := &where{ph: d.dialect.Placeholder}
	if v := update.Status; v != nil {
		w.add("status = %s", string(*v))
	}
	if len(w.clauses) > 0 {
		set := strings.Join(w.clauses, ", ")
		w.args = append(w.args, update.ID)
		stmt := `UPDATE messages SET ` + set + ` WHERE id = ` + d.dialect.Placeholder(len(w.args))
		if _, err := d.db.ExecContext(ctx, stmt, w.args...); err != nil {
			return nil, errors.Wrap(err, "update message")
		}
	}

	list, err := d.ListMessages(ctx, &store.FindMessage{ID: &update.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (d *DB) DeleteMessage(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM messages WHERE id = `+d.dialect.Placeholder(1), id)
	return errors.Wrap(err, "delete message")
}

func (d *DB) CountMessages(ctx context.Context, find *store.FindMessage) (int64, error) {
	w := d.messageWhere(find)
	var count int64
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE `+w.String(), w.args...,
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count messages")
	}
	return count, nil
}
