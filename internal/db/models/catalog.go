// Package models - catalog.go defines the permission catalog: feature categories,
// protectable features, (feature, action) permissions and the roles that grant them.
package models

import "time"

// Category groups features in the admin console
type Category struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Feature is a protectable resource, addressed by its slug
type Feature struct {
	ID         int       `json:"id" db:"id"`
	CategoryID *int      `json:"category_id,omitempty" db:"category_id"`
	Name       string    `json:"name" db:"name"`
	Slug       string    `json:"slug" db:"slug"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Permission is a (feature, action) pair. Requires2FA is independent of the
// acting role's own flag.
type Permission struct {
	ID          int       `json:"id" db:"id"`
	FeatureID   int       `json:"feature_id" db:"feature_id"`
	Action      string    `json:"action" db:"action"` // read, list, execute, create, update, delete, admin
	Description *string   `json:"description,omitempty" db:"description"`
	Requires2FA bool      `json:"requires_2fa" db:"requires_2fa"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PermissionDetail is a permission joined to its feature and category
type PermissionDetail struct {
	Permission
	FeatureName  string  `json:"feature_name" db:"feature_name"`
	FeatureSlug  string  `json:"feature_slug" db:"feature_slug"`
	CategoryName *string `json:"category_name,omitempty" db:"category_name"`
	CategorySlug *string `json:"category_slug,omitempty" db:"category_slug"`
}

// Role is a named grant set. Level orders roles for the hierarchy guard and for
// highest-level role selection; it is not a capability by itself.
type Role struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  *string   `json:"description,omitempty" db:"description"`
	Level        int       `json:"level" db:"level"`
	Requires2FA  bool      `json:"two_fa_required" db:"requires_2fa"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	IsSystemRole bool      `json:"is_system_role" db:"is_system_role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RoleWithCounts adds aggregate counts used by the role listing
type RoleWithCounts struct {
	Role
	UserCount       int `json:"user_count" db:"user_count"`
	PermissionCount int `json:"permission_count" db:"permission_count"`
}

// RolePermissionGrant is one row of a role's permission matrix: every catalog
// permission with a flag telling whether the role grants it.
type RolePermissionGrant struct {
	PermissionDetail
	Granted bool `json:"granted" db:"granted"`
}

// FeatureGrant is the raw (feature slug, action) pair the resolver folds into
// permission levels.
type FeatureGrant struct {
	Slug   string `db:"slug"`
	Action string `db:"action"`
}
