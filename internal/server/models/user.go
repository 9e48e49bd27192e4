// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a blog author. TOTPSecret is nil until the second factor is
// enabled. TempToken and TempTokenExpiresAt hold the single outstanding
// sign-in challenge, if any.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	TOTPSecret         *string
	TempToken          *string
	TempTokenExpiresAt *time.Time
	CreatedAt          time.Time
}

// TwoFactorEnabled reports whether sign-in requires a TOTP code.
func (u *User) TwoFactorEnabled() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}
