package user

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user: not found")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("user: email already registered")
)

// Directory is the interface for user account backends. The online flag is
// the persisted view of presence for observers that are not connected over a
// live socket.
type Directory interface {
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByID(ctx context.Context, id string) (*User, error)
	SetOnline(ctx context.Context, id string, online bool) error
	// ListOthers returns every user except id, sorted by email.
	ListOthers(ctx context.Context, id string) ([]*User, error)
}

// MemoryDirectory keeps users in memory. Used in tests and development.
type MemoryDirectory struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string // lowercased email -> user ID
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// Create adds a new user. Emails are unique, compared case-insensitively.
func (d *MemoryDirectory) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	key := strings.ToLower(email)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byEmail[key]; taken {
		return nil, ErrEmailTaken
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		CreatedAt:    time.Now(),
		PasswordHash: passwordHash,
	}
	d.users[u.ID] = u
	d.byEmail[key] = u.ID

	out := *u
	return &out, nil
}

// ByEmail returns the user registered under email, or ErrNotFound.
func (d *MemoryDirectory) ByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d.users[id]
	return &out, nil
}

// ByID returns the user with the given ID, or ErrNotFound.
func (d *MemoryDirectory) ByID(ctx context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

// SetOnline updates the persisted online flag.
func (d *MemoryDirectory) SetOnline(ctx context.Context, id string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Online = online
	return nil
}

// ListOthers returns every user except id, sorted by email.
func (d *MemoryDirectory) ListOthers(ctx context.Context, id string) ([]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*User, 0, len(d.users))
	for _, u := range d.users {
		if u.ID == id {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
