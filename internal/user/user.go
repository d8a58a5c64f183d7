package user

import "time"

// User is a registered account. PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Online       bool      `json:"online"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}
