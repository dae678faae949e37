package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

const adminUserColumns = `id, email, name, password_hash, is_online, last_seen, created_at`

func (d *DB) CreateAdminUser(ctx context.Context, create *admin.User) (*admin.User, error) {
	ph := d.dialect.Placeholder
	stmt := `INSERT INTO admin_users (` + adminUserColumns + `) VALUES (` +
		ph(1) + `, ` + ph(2) + `, ` + ph(3) + `, ` + ph(4) + `, ` + ph(5) + `, ` + ph(6) + `, ` + ph(7) + `)`

	var lastSeen sql.NullInt64
	if create.LastSeen != nil {
		lastSeen = sql.NullInt64{Int64: toMicros(*create.LastSeen), Valid: true}
	}
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, strings.ToLower(create.Email), create.Name, create.PasswordHash,
		create.IsOnline, lastSeen, toMicros(create.CreatedAt),
	); err != nil {
		return nil, errors.Wrap(err, "insert admin user")
	}

	created := *create
	created.CreatedAt = fromMicros(toMicros(create.CreatedAt))
	return &created, nil
}

func (d *DB) ListAdminUsers(ctx context.Context, find *store.FindAdminUser) ([]*admin.User, error) {
	w := &where{ph: d.dialect.Placeholder}
	if v := find.ID; v != nil {
		w.add("id = %s", *v)
	}
	if v := find.Email; v != nil {
		w.add("email = %s", strings.ToLower(*v))
	}
	if v := find.IsOnline; v != nil {
		w.add("is_online = %s", *v)
	}
	if v := find.ExcludeID; v != nil {
		w.add("id <> %s", *v)
	}
	if v := find.SeenBefore; v != nil {
		w.add("(last_seen IS NULL OR last_seen < %s)", toMicros(*v))
	}
	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE ` + w.String() + ` ORDER BY name ASC, email ASC`

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "list admin users")
	}
	defer rows.Close()

	var list []*admin.User
	for rows.Next() {
		var (
			u         admin.User
			lastSeen  sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsOnline, &lastSeen, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan admin user")
		}
		if lastSeen.Valid {
			t := fromMicros(lastSeen.Int64)
			u.LastSeen = &t
		}
		u.CreatedAt = fromMicros(createdAt)
		list = append(list, &u)
	}
	return list, errors.Wrap(rows.Err(), "iterate admin users")
}

func (d *DB) UpdateAdminUser(ctx context.Context, update *store.UpdateAdminUser) (*admin.User, error) {
	w := &where{ph: d.dialect.Placeholder}
	if v := update.Name; v != nil {
		w.add("name = %s", *v)
	}
	if v := update.Email; v != nil {
		w.add("email = %s", strings.ToLower(*v))
	}
	if v := update.PasswordHash; v != nil {
		w.add("password_hash = %s", *v)
	}
	if v := update.IsOnline; v != nil {
		w.add("is_online = %s", *v)
	}
	if v := update.LastSeen; v != nil {
		w.add("last_seen = %s", toMicros(*v))
	}
	if len(w.clauses) > 0 {
		set := strings.Join(w.clauses, ", ")
		w.args = append(w.args, update.ID)
		stmt := `UPDATE admin_users SET ` + set + ` WHERE id = ` + d.dialect.Placeholder(len(w.args))
		if _, err := d.db.ExecContext(ctx, stmt, w.args...); err != nil {
			return nil, errors.Wrap(err, "update admin user")
		}
	}

	list, err := d.ListAdminUsers(ctx, &store.FindAdminUser{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
