package model

import "time"

// User is an authenticated trader. The user's account ID doubles as the
// ledger account ID.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	TOTPSecret   string    `json:"-"` // empty unless two-factor is enrolled
	CreatedAt    time.Time `json:"created_at"`
}
