// Package models - public_account.go defines the non-staff accounts (clientes
// and proprietarios) that sign in through the public login flow.
package models

import "time"

// Public account types.
const (
	UserTypeCliente      = "cliente"
	UserTypeProprietario = "proprietario"
	UserTypeAdmin        = "admin"
)

// PublicAccount is a cliente or proprietario account
type PublicAccount struct {
	UUID         string    `json:"uuid" db:"uuid"`
	Nome         string    `json:"nome" db:"nome"`
	Email        string    `json:"email" db:"email"`
	PasswordHash *string   `json:"-" db:"password"`
	TwoFAEnabled bool      `json:"two_fa_enabled" db:"two_fa_enabled"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UserType     string    `json:"user_type" db:"-"`
}

// IsPublicUserType reports whether t names a public account table.
func IsPublicUserType(t string) bool {
	return t == UserTypeCliente || t == UserTypeProprietario
}
