package auth

import "github.com/netimobiliaria/admin-core/internal/db/models"

// Actor is the operator performing an administrative mutation.
type Actor struct {
	UserID    string
	Username  string
	RoleName  string
	RoleLevel int
	IPAddress string
	UserAgent string
	TwoFAUsed bool
}

// CanManageRole reports whether actor may modify target. Operators may only
// manage roles strictly below their own level; the system role manages all.
func CanManageRole(actor Actor, systemRoleName string, target *models.Role) bool {
	if actor.RoleName != "" && actor.RoleName == systemRoleName {
		return true
	}
	return target.Level < actor.RoleLevel
}
