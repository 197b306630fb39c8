// Package models - audit_log.go defines the append-only audit trail entry and the
// narrower login log used for authentication events.
package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID             int64                  `json:"id"`
	UserID         *string                `json:"user_id,omitempty"` // staff user; nil for public or anonymous actors
	PublicUserUUID *string                `json:"public_user_uuid,omitempty"`
	UserType       *string                `json:"user_type,omitempty"` // admin, cliente, proprietario
	Action         string                 `json:"action"`              // upper case verb, e.g. LOGIN_SUCCESS, SESSION_REVOKED
	Resource       string                 `json:"resource"`            // AUTH, PUBLIC_AUTH, user_sessions, roles, ...
	ResourceID     *string                `json:"resource_id,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"` // JSONB
	IPAddress      *string                `json:"ip_address,omitempty"`
	UserAgent      *string                `json:"user_agent,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	// Username and UserName are joined from users when listing.
	Username *string `json:"username,omitempty"`
	UserName *string `json:"user_name,omitempty"`
}

// AuditStats counts audit entries by actor type
type AuditStats struct {
	Admin        int `json:"admin"`
	Cliente      int `json:"cliente"`
	Proprietario int `json:"proprietario"`
	Indefinido   int `json:"indefinido"`
	Total        int `json:"total"`
}

// Add accumulates count under userType; unknown or empty types count as indefinido.
func (s *AuditStats) Add(userType string, count int) {
	switch userType {
	case UserTypeAdmin:
		s.Admin += count
	case UserTypeCliente:
		s.Cliente += count
	case UserTypeProprietario:
		s.Proprietario += count
	default:
		s.Indefinido += count
	}
	s.Total += count
}

// LoginLog is one authentication attempt
type LoginLog struct {
	ID            int64     `json:"id" db:"id"`
	UserID        *string   `json:"user_id,omitempty" db:"user_id"`
	Username      *string   `json:"username,omitempty" db:"username"`
	Action        string    `json:"action" db:"action"` // login, login_failed, 2fa_required, 2fa_success, 2fa_failed, logout
	IPAddress     *string   `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string   `json:"user_agent,omitempty" db:"user_agent"`
	TwoFAUsed     bool      `json:"two_fa_used" db:"two_fa_used"`
	Success       bool      `json:"success" db:"success"`
	FailureReason *string   `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// PurgeStats reports how many rows a purge at each common window would remove
type PurgeStats struct {
	AuditTotal   int `json:"audit_total" db:"audit_total"`
	AuditOlder7  int `json:"audit_older_7_days" db:"audit_older_7"`
	AuditOlder30 int `json:"audit_older_30_days" db:"audit_older_30"`
	AuditOlder90 int `json:"audit_older_90_days" db:"audit_older_90"`
	LoginTotal   int `json:"login_total" db:"login_total"`
	LoginOlder7  int `json:"login_older_7_days" db:"login_older_7"`
	LoginOlder30 int `json:"login_older_30_days" db:"login_older_30"`
	LoginOlder90 int `json:"login_older_90_days" db:"login_older_90"`
}

// PurgeResult reports the rows removed by one purge
type PurgeResult struct {
	AuditDeleted int64     `json:"audit_deleted"`
	LoginDeleted int64     `json:"login_deleted"`
	Cutoff       time.Time `json:"cutoff"`
}
