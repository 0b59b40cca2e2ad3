package model

import "time"

// Account is an auth principal that can sign in with a password.
// Admin privilege is granted separately through the admins allow-list.
type Account struct {
	ID           PrincipalID `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"password_hash"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Principal returns the public view of the account
func (a *Account) Principal() Principal {
	return Principal{ID: a.ID, Email: a.Email}
}
