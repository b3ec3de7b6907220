// Package models defines the client-side data shapes shared by the Anansi
// session packages: profiles, credentials, compute runs and cloud-login state.
package models

import "time"

// UserProfile is the account record returned by GET /auth/me and cached
// locally between runs. The remote service is the source of truth.
type UserProfile struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Registration is the body of a successful POST /auth/register.
type Registration struct {
	APIKey string `json:"api_key"`
	UserID int64  `json:"user_id"`
}

// Health is the body of GET /health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
