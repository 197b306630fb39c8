// Package models - two_factor_code.go defines the single-use step-up verification code.
package models

import "time"

// TwoFactorCode is an emailed verification code
type TwoFactorCode struct {
	ID             int64     `db:"id"`
	UserID         *string   `db:"user_id"`
	PublicUserUUID *string   `db:"public_user_uuid"`
	UserType       string    `db:"user_type"`
	Code           string    `db:"code"`
	Method         string    `db:"method"`
	Attempts       int       `db:"attempts"`
	Used           bool      `db:"used"`
	ExpiresAt      time.Time `db:"expires_at"`
	IPAddress      *string   `db:"ip_address"`
	UserAgent      *string   `db:"user_agent"`
	CreatedAt      time.Time `db:"created_at"`
}
