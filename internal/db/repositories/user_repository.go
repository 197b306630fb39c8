// Package repositories implements the data access layer (repository pattern) for the back-office.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers and services never issue SQL directly; all database access goes through this layer.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// UserRepository handles staff user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// userWithRoleSelect joins each user to the single highest-level active role
// assignment. Users without an active role keep NULL role columns.
const userWithRoleSelect = `
	SELECT u.id, u.username, u.email, u.nome, u.password_hash, u.ativo, u.two_fa_enabled,
	       u.last_login, u.created_at, u.updated_at,
	       r.id, r.name, r.level, r.requires_2fa
	FROM users u
	LEFT JOIN LATERAL (
		SELECT ur.id, ur.name, ur.level, ur.requires_2fa
		FROM user_role_assignments ura
		JOIN user_roles ur ON ur.id = ura.role_id
		WHERE ura.user_id = u.id AND ura.is_active = true AND ur.is_active = true
		ORDER BY ur.level DESC NULLS LAST, ur.id
		LIMIT 1
	) r ON true`

func scanUserWithRole(row interface{ Scan(...interface{}) error }) (*models.UserWithRole, error) {
	u := &models.UserWithRole{}
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Nome,
		&u.PasswordHash,
		&u.Ativo,
		&u.TwoFAEnabled,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.RoleID,
		&u.RoleName,
		&u.RoleLevel,
		&u.RoleRequires2FA,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserWithRoleByLogin retrieves a user by username or email, with the
// highest-level active role. Inactive users are returned so the caller can
// distinguish a disabled account from an unknown one.
func (r *UserRepository) GetUserWithRoleByLogin(ctx context.Context, login string) (*models.UserWithRole, error) {
	query := userWithRoleSelect + ` WHERE u.username = $1 OR u.email = $1 LIMIT 1`

	u, err := scanUserWithRole(r.db.QueryRowContext(ctx, query, login))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserWithRoleByID retrieves a user by ID with the highest-level active role
func (r *UserRepository) GetUserWithRoleByID(ctx context.Context, userID string) (*models.UserWithRole, error) {
	query := userWithRoleSelect + ` WHERE u.id::text = $1`

	u, err := scanUserWithRole(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateLastLogin stamps the user's last successful login
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`, userID, time.Now())
	return err
}

// SetTwoFactorEnabled sets the user's two_fa_enabled flag. Disabling it also
// burns every outstanding code of the user in the same transaction. It returns
// false when no user has that ID.
func (r *UserRepository) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET two_fa_enabled = $2, updated_at = NOW() WHERE id::text = $1`, userID, enabled)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if !enabled {
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_2fa_codes SET used = true WHERE user_id::text = $1 AND used = false`, userID); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}
