// Package models - session.go defines the session registry row. Sessions have no
// revoked state: revocation deletes the row, and expiry is judged at read time.
package models

import (
	"fmt"
	"time"
)

// Session is one login session
type Session struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at" db:"last_used_at"`
	IPAddress    *string   `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    *string   `json:"user_agent,omitempty" db:"user_agent"`
}

// IsExpired reports whether the session is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// TimeRemaining renders the time left before expiry: "Expirada", "45min",
// "3h 20min" or "2d 4h".
func (s *Session) TimeRemaining(now time.Time) string {
	d := s.ExpiresAt.Sub(now)
	if d <= 0 {
		return "Expirada"
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dmin", hours, minutes%60)
	default:
		return fmt.Sprintf("%dmin", minutes)
	}
}

// SessionWithUser is a session joined to its owner
type SessionWithUser struct {
	Session
	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`
	Nome     string `json:"nome" db:"nome"`
	// Computed at read time.
	Expired       bool   `json:"expired" db:"-"`
	TimeRemaining string `json:"time_remaining" db:"-"`
}

// Annotate fills the read-time expiry fields.
func (s *SessionWithUser) Annotate(now time.Time) {
	s.Expired = s.IsExpired(now)
	s.TimeRemaining = s.Session.TimeRemaining(now)
}
