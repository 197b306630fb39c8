// rbac_repository.go implements RBACRepository, providing database queries for roles,
// role assignments, replace-all role grants and the grant lookups the permission
// resolver folds into levels.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// RBACRepository handles database operations for roles and their grants
type RBACRepository struct {
	db *sqlx.DB
}

// NewRBACRepository creates a new RBAC repository
func NewRBACRepository(db *sqlx.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

const roleColumns = `id, name, description, level, requires_2fa, is_active, is_system_role, created_at, updated_at`

// ============================================================================
// Roles
// ============================================================================

// ListRoles returns every role with its active user and grant counts, highest level first
func (r *RBACRepository) ListRoles(ctx context.Context) ([]models.RoleWithCounts, error) {
	query := `
		SELECT ur.id, ur.name, ur.description, ur.level, ur.requires_2fa, ur.is_active,
		       ur.is_system_role, ur.created_at, ur.updated_at,
		       (SELECT COUNT(*) FROM user_role_assignments ura
		         WHERE ura.role_id = ur.id AND ura.is_active = true) AS user_count,
		       (SELECT COUNT(*) FROM role_permissions rp WHERE rp.role_id = ur.id) AS permission_count
		FROM user_roles ur
		ORDER BY ur.level DESC, ur.name`

	roles := make([]models.RoleWithCounts, 0)
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole retrieves a role by ID
func (r *RBACRepository) GetRole(ctx context.Context, id int) (*models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT `+roleColumns+` FROM user_roles WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRoleByName retrieves a role by its unique name
func (r *RBACRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT `+roleColumns+` FROM user_roles WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateRole inserts a role and fills its generated ID and timestamps
func (r *RBACRepository) CreateRole(ctx context.Context, role *models.Role) error {
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	query := `
		INSERT INTO user_roles (name, description, level, requires_2fa, is_active, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)
		RETURNING id`

	return r.db.QueryRowxContext(ctx, query,
		role.Name, role.Description, role.Level, role.Requires2FA, role.IsActive, role.CreatedAt, role.UpdatedAt,
	).Scan(&role.ID)
}

// UpdateRole updates the editable fields of a non-system role. It returns false
// when no such role exists.
func (r *RBACRepository) UpdateRole(ctx context.Context, role *models.Role) (bool, error) {
	role.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, `
		UPDATE user_roles
		SET name = $2, description = $3, level = $4, requires_2fa = $5, is_active = $6, updated_at = $7
		WHERE id = $1 AND is_system_role = false`,
		role.ID, role.Name, role.Description, role.Level, role.Requires2FA, role.IsActive, role.UpdatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ActiveRolesForUser returns the user's active roles through active assignments,
// highest level first. The first element is the role the login query selects.
func (r *RBACRepository) ActiveRolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	query := `
		SELECT ur.id, ur.name, ur.description, ur.level, ur.requires_2fa, ur.is_active,
		       ur.is_system_role, ur.created_at, ur.updated_at
		FROM user_role_assignments ura
		JOIN user_roles ur ON ur.id = ura.role_id
		WHERE ura.user_id = $1 AND ura.is_active = true AND ur.is_active = true
		ORDER BY ur.level DESC NULLS LAST, ur.id`

	roles := make([]models.Role, 0)
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, err
	}
	return roles, nil
}

// CountActiveAssignments returns how many users are currently assigned the role
func (r *RBACRepository) CountActiveAssignments(ctx context.Context, roleID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM user_role_assignments WHERE role_id = $1 AND is_active = true`, roleID)
	return count, err
}

// DeleteRole removes a non-system role and its grants in one transaction.
// It returns false when no deletable role with that ID exists.
func (r *RBACRepository) DeleteRole(ctx context.Context, roleID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE id = $1 AND is_system_role = false`, roleID)
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

	return true, tx.Commit()
}

// ListRoleUsers returns the users assigned to the role, including inactive
// assignments, ordered by name.
func (r *RBACRepository) ListRoleUsers(ctx context.Context, roleID int) ([]models.RoleUser, error) {
	query := `
		SELECT u.id, u.username, u.email, u.nome, u.ativo, u.last_login,
		       ura.is_active AS assignment_active, ura.assigned_at, ura.assigned_by,
		       ab.username AS assigned_by_username
		FROM user_role_assignments ura
		JOIN users u ON u.id = ura.user_id
		LEFT JOIN users ab ON ab.id = ura.assigned_by
		WHERE ura.role_id = $1
		ORDER BY u.nome, u.username`

	users := make([]models.RoleUser, 0)
	if err := r.db.SelectContext(ctx, &users, query, roleID); err != nil {
		return nil, err
	}
	return users, nil
}

// ============================================================================
// Role grants
// ============================================================================

// ListRolePermissionGrants returns every catalog permission with a flag telling
// whether the role grants it
func (r *RBACRepository) ListRolePermissionGrants(ctx context.Context, roleID int) ([]models.RolePermissionGrant, error) {
	query := `
		SELECT p.id, p.feature_id, p.action, p.description, p.requires_2fa, p.created_at,
		       sf.name AS feature_name, sf.slug AS feature_slug,
		       sc.name AS category_name, sc.slug AS category_slug,
		       (rp.role_id IS NOT NULL) AS granted
		FROM permissions p
		JOIN system_features sf ON sf.id = p.feature_id
		LEFT JOIN system_categorias sc ON sc.id = sf.category_id
		LEFT JOIN role_permissions rp ON rp.permission_id = p.id AND rp.role_id = $1
		WHERE sf.is_active = true
		ORDER BY sc.sort_order NULLS LAST, sf.name, p.action`

	grants := make([]models.RolePermissionGrant, 0)
	if err := r.db.SelectContext(ctx, &grants, query, roleID); err != nil {
		return nil, err
	}
	return grants, nil
}

// GrantedPermissionIDs returns the IDs of the permissions the role currently grants
func (r *RBACRepository) GrantedPermissionIDs(ctx context.Context, roleID int) ([]int, error) {
	ids := make([]int, 0)
	err := r.db.SelectContext(ctx, &ids,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
	return ids, err
}

// ReplaceRolePermissions swaps the role's grant set for permissionIDs in a single
// transaction: every existing grant is deleted, then the new set is inserted.
// Any failure rolls back to the previous grant set.
func (r *RBACRepository) ReplaceRolePermissions(ctx context.Context, roleID int, permissionIDs []int, grantedBy *string) error {
	return r.ReplaceManyRolePermissions(ctx, []int{roleID}, permissionIDs, grantedBy)
}

// ReplaceManyRolePermissions gives every role in roleIDs exactly permissionIDs,
// all in one transaction. Either every role ends up with the new set or none
// changes.
func (r *RBACRepository) ReplaceManyRolePermissions(ctx context.Context, roleIDs []int, permissionIDs []int, grantedBy *string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	ids := make([]int64, len(permissionIDs))
	for i, id := range permissionIDs {
		ids[i] = int64(id)
	}

	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}

		if len(ids) > 0 {
			query := `
				INSERT INTO role_permissions (role_id, permission_id, granted_by, created_at)
				SELECT $1, pid, $3, NOW() FROM unnest($2::int[]) AS pid`
			if _, err := tx.ExecContext(ctx, query, roleID, pq.Array(ids), grantedBy); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE user_roles SET updated_at = NOW() WHERE id = $1`, roleID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FeatureGrants returns the (feature slug, action) pairs the given roles grant on
// active features.
func (r *RBACRepository) FeatureGrants(ctx context.Context, roleIDs []int) ([]models.FeatureGrant, error) {
	ids := make([]int64, len(roleIDs))
	for i, id := range roleIDs {
		ids[i] = int64(id)
	}

	query := `
		SELECT DISTINCT sf.slug, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN system_features sf ON sf.id = p.feature_id
		WHERE rp.role_id = ANY($1) AND sf.is_active = true
		ORDER BY sf.slug, p.action`

	grants := make([]models.FeatureGrant, 0)
	if err := r.db.SelectContext(ctx, &grants, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	return grants, nil
}

// ActiveFeatureSlugs returns the slug of every active feature
func (r *RBACRepository) ActiveFeatureSlugs(ctx context.Context) ([]string, error) {
	slugs := make([]string, 0)
	err := r.db.SelectContext(ctx, &slugs, `SELECT slug FROM system_features WHERE is_active = true ORDER BY slug`)
	return slugs, err
}
