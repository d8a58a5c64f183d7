package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteDirectory persists users in SQLite.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates the users table if needed and returns the
// directory. Every online flag is reset to offline: after a restart there
// are no live sockets, so any persisted "online" is stale.
func NewSQLiteDirectory(ctx context.Context, db *sql.DB) (*SQLiteDirectory, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		email_key TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		online INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init users schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE users SET online = 0`); err != nil {
		return nil, fmt.Errorf("reset online flags: %w", err)
	}
	return &SQLiteDirectory{db: db}, nil
}

// Create adds a new user. Emails are unique, compared case-insensitively.
func (d *SQLiteDirectory) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		CreatedAt:    time.Now(),
		PasswordHash: passwordHash,
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, email, email_key, password_hash, online, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, u.ID, u.Email, strings.ToLower(email), u.PasswordHash, u.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ByEmail returns the user registered under email, or ErrNotFound.
func (d *SQLiteDirectory) ByEmail(ctx context.Context, email string) (*User, error) {
	return d.scanOne(d.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, online, created_at
		FROM users WHERE email_key = ?
	`, strings.ToLower(email)))
}

// ByID returns the user with the given ID, or ErrNotFound.
func (d *SQLiteDirectory) ByID(ctx context.Context, id string) (*User, error) {
	return d.scanOne(d.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, online, created_at
		FROM users WHERE id = ?
	`, id))
}

// SetOnline updates the persisted online flag.
func (d *SQLiteDirectory) SetOnline(ctx context.Context, id string, online bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET online = ? WHERE id = ?`, boolToInt(online), id)
	if err != nil {
		return fmt.Errorf("update online flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOthers returns every user except id, sorted by email.
func (d *SQLiteDirectory) ListOthers(ctx context.Context, id string) ([]*User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, email, password_hash, online, created_at
		FROM users WHERE id != ? ORDER BY email ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func (d *SQLiteDirectory) scanOne(row *sql.Row) (*User, error) {
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func scanUser(scan func(...any) error) (*User, error) {
	var u User
	var online int
	var createdAt int64
	if err := scan(&u.ID, &u.Email, &u.PasswordHash, &online, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Online = online != 0
	u.CreatedAt = time.Unix(0, createdAt)
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation detects the driver's UNIQUE constraint error without
// depending on its error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
