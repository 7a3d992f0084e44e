// Package store defines the external user directory consumed by the security
// subsystem at login time. Persistence of users and roles is a deployment
// concern; the core only depends on these interfaces.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: not found")

// User statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is the directory record needed to authenticate and mint tokens.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       string
}

// Directory resolves users and their authorization bindings.
type Directory interface {
	// FindUserByLogin accepts a username or an email address.
	FindUserByLogin(ctx context.Context, login string) (*User, error)
	// FindUserByID resolves a user by its identifier.
	FindUserByID(ctx context.Context, userID string) (*User, error)
	// RoleBindings returns the role names assigned to the user.
	RoleBindings(ctx context.Context, userID string) ([]string, error)
	// DirectGrants returns permission keys granted to the user outside of
	// any role.
	DirectGrants(ctx context.Context, userID string) ([]string, error)
}
