package models

import "time"

// Snapshot is the durable copy of session data written on every successful
// login and renewal and cleared on logout. A snapshot is only usable when all
// three fields are present and the expiry is still in the future; anything
// less is discarded rather than partially restored.
type Snapshot struct {
	Token     string    `json:"token"`
	User      *User     `json:"user,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the snapshot can restore a session at time now.
func (s *Snapshot) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && !s.ExpiresAt.IsZero() && s.ExpiresAt.After(now)
}

// LoginRequest represents the request body for console login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// TokenResponse is the upstream credential-exchange response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}
