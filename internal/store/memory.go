package store

import (
	"context"
	"strings"
	"sync"
)

var _ Directory = (*MemoryDirectory)(nil)

// MemoryDirectory is an in-process Directory used for development and tests.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]*User
	roles  map[string][]string
	grants map[string][]string
}

// NewMemoryDirectory returns an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:  make(map[string]*User),
		roles:  make(map[string][]string),
		grants: make(map[string][]string),
	}
}

// AddUser stores a user with its role bindings and direct grants.
func (d *MemoryDirectory) AddUser(u User, roles []string, grants []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := u
	d.users[u.ID] = &copied
	d.roles[u.ID] = append([]string(nil), roles...)
	d.grants[u.ID] = append([]string(nil), grants...)
}

func (d *MemoryDirectory) FindUserByLogin(_ context.Context, login string) (*User, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	if login == "" {
		return nil, ErrNotFound
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if strings.ToLower(u.Username) == login || strings.ToLower(u.Email) == login {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (d *MemoryDirectory) FindUserByID(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (d *MemoryDirectory) RoleBindings(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.users[userID]; !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), d.roles[userID]...), nil
}

func (d *MemoryDirectory) DirectGrants(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.users[userID]; !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), d.grants[userID]...), nil
}
