// Package pg implements the user directory on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"nvision.io/internal/store"
)

var _ store.Directory = (*Directory)(nil)

// Directory reads users, role bindings and direct grants from PostgreSQL.
type Directory struct {
	db *sql.DB
}

// NewDirectory wraps an open database handle.
func NewDirectory(db *sql.DB) (*Directory, error) {
	if db == nil {
		return nil, errors.New("pg: database handle is required")
	}
	return &Directory{db: db}, nil
}

func (d *Directory) FindUserByLogin(ctx context.Context, login string) (*store.User, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	if login == "" {
		return nil, store.ErrNotFound
	}

	row := d.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, status
		from users
		where lower(username) = $1 or lower(email) = $1
	`, login)

	var u store.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *Directory) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	row := d.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, status
		from users
		where id = $1
	`, userID)

	var u store.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *Directory) RoleBindings(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		select role_name from user_roles where user_id = $1 order by role_name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (d *Directory) DirectGrants(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		select permission_key from user_grants where user_id = $1 order by permission_key
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		grants = append(grants, key)
	}
	return grants, rows.Err()
}
