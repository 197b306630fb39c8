// permission_repository.go implements PermissionRepository, the read side of the
// permission catalog and the per-permission step-up flag.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// PermissionRepository handles catalog permission queries
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository creates a new PermissionRepository
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

const permissionDetailSelect = `
	SELECT p.id, p.feature_id, p.action, p.description, p.requires_2fa, p.created_at,
	       sf.name AS feature_name, sf.slug AS feature_slug,
	       sc.name AS category_name, sc.slug AS category_slug
	FROM permissions p
	JOIN system_features sf ON sf.id = p.feature_id
	LEFT JOIN system_categorias sc ON sc.id = sf.category_id`

// ListPermissions returns every permission joined to its feature and category
func (r *PermissionRepository) ListPermissions(ctx context.Context) ([]models.PermissionDetail, error) {
	query := permissionDetailSelect + `
	WHERE sf.is_active = true
	ORDER BY sc.sort_order NULLS LAST, sf.name, p.action`

	perms := make([]models.PermissionDetail, 0)
	if err := r.db.SelectContext(ctx, &perms, query); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetPermission retrieves a permission by ID
func (r *PermissionRepository) GetPermission(ctx context.Context, id int) (*models.PermissionDetail, error) {
	var p models.PermissionDetail
	err := r.db.GetContext(ctx, &p, permissionDetailSelect+` WHERE p.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPermission looks up the permission for a feature slug and raw action
func (r *PermissionRepository) FindPermission(ctx context.Context, featureSlug, action string) (*models.PermissionDetail, error) {
	var p models.PermissionDetail
	err := r.db.GetContext(ctx, &p, permissionDetailSelect+` WHERE sf.slug = $1 AND p.action = $2`, featureSlug, action)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetRequires2FA sets the step-up flag. It returns false when the permission does not exist.
func (r *PermissionRepository) SetRequires2FA(ctx context.Context, id int, required bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE permissions SET requires_2fa = $2 WHERE id = $1`, id, required)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ToggleRequires2FA flips the step-up flag and returns the new value.
// found is false when the permission does not exist.
func (r *PermissionRepository) ToggleRequires2FA(ctx context.Context, id int) (value bool, found bool, err error) {
	err = r.db.GetContext(ctx, &value,
		`UPDATE permissions SET requires_2fa = NOT requires_2fa WHERE id = $1 RETURNING requires_2fa`, id)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value, true, nil
}
