// Package models - user.go defines the back-office staff account and its
// effective role as selected at login.
package models

import "time"

// User represents a back-office staff account
type User struct {
	ID           string     `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	Nome         string     `json:"nome" db:"nome"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Ativo        bool       `json:"ativo" db:"ativo"`
	TwoFAEnabled bool       `json:"two_fa_enabled" db:"two_fa_enabled"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// UserWithRole is a user joined to the single highest-level active role
// assignment. The role fields are nil when the user has no active role.
type UserWithRole struct {
	User
	RoleID          *int    `json:"role_id,omitempty" db:"role_id"`
	RoleName        *string `json:"role_name,omitempty" db:"role_name"`
	RoleLevel       *int    `json:"role_level,omitempty" db:"role_level"`
	RoleRequires2FA *bool   `json:"role_requires_2fa,omitempty" db:"role_requires_2fa"`
}

// RequiresTwoFactor reports whether logging in needs a second factor, either
// because the user enabled it or because the role enforces it.
func (u *UserWithRole) RequiresTwoFactor() bool {
	if u.TwoFAEnabled {
		return true
	}
	return u.RoleRequires2FA != nil && *u.RoleRequires2FA
}

// Role returns the role name or "" when none is assigned.
func (u *UserWithRole) Role() string {
	if u.RoleName == nil {
		return ""
	}
	return *u.RoleName
}

// Level returns the role level or 0 when no role is assigned.
func (u *UserWithRole) Level() int {
	if u.RoleLevel == nil {
		return 0
	}
	return *u.RoleLevel
}

// RoleUser is a user assigned to a role, as listed on the role's detail page.
type RoleUser struct {
	ID                 string     `json:"id" db:"id"`
	Username           string     `json:"username" db:"username"`
	Email              string     `json:"email" db:"email"`
	Nome               string     `json:"nome" db:"nome"`
	Ativo              bool       `json:"ativo" db:"ativo"`
	LastLogin          *time.Time `json:"last_login,omitempty" db:"last_login"`
	AssignmentActive   bool       `json:"assignment_active" db:"assignment_active"`
	AssignedAt         time.Time  `json:"assigned_at" db:"assigned_at"`
	AssignedBy         *string    `json:"assigned_by,omitempty" db:"assigned_by"`
	AssignedByUsername *string    `json:"assigned_by_username,omitempty" db:"assigned_by_username"`
}
