package auth

import (
	"context"
	"log/slog"

	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// RoleSource provides the role and grant data the resolver folds into levels.
type RoleSource interface {
	ActiveRolesForUser(ctx context.Context, userID string) ([]models.Role, error)
	FeatureGrants(ctx context.Context, roleIDs []int) ([]models.FeatureGrant, error)
	ActiveFeatureSlugs(ctx context.Context) ([]string, error)
}

// Resolver computes a user's effective permission map.
type Resolver struct {
	roles          RoleSource
	strategy       string
	systemRoleName string
}

// NewResolver creates a resolver. strategy is config.RoleResolutionHighestLevel
// (only the highest-level active role counts) or config.RoleResolutionUnion
// (every active role counts).
func NewResolver(roles RoleSource, strategy, systemRoleName string) *Resolver {
	if strategy != config.RoleResolutionUnion {
		strategy = config.RoleResolutionHighestLevel
	}
	return &Resolver{roles: roles, strategy: strategy, systemRoleName: systemRoleName}
}

// Resolve returns the highest level per active feature reachable through the
// user's active roles. It never fails: any lookup error yields an empty map,
// so a resolver outage denies access rather than blocking login.
func (r *Resolver) Resolve(ctx context.Context, userID string) PermissionMap {
	perms, err := r.resolve(ctx, userID)
	if err != nil {
		slog.Warn("permission resolution failed, continuing with no permissions",
			"user_id", userID, "error", err)
		return PermissionMap{}
	}
	return perms
}

func (r *Resolver) resolve(ctx context.Context, userID string) (PermissionMap, error) {
	roles, err := r.roles.ActiveRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return PermissionMap{}, nil
	}
	if r.strategy == config.RoleResolutionHighestLevel {
		roles = roles[:1]
	}

	perms := PermissionMap{}
	for _, role := range roles {
		if r.IsSystemRole(role) {
			slugs, err := r.roles.ActiveFeatureSlugs(ctx)
			if err != nil {
				return nil, err
			}
			for _, slug := range slugs {
				perms[slug] = LevelAdmin
			}
			return perms, nil
		}
	}

	ids := make([]int, len(roles))
	for i, role := range roles {
		ids[i] = role.ID
	}
	grants, err := r.roles.FeatureGrants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		level, ok := ParseAction(g.Action)
		if !ok {
			continue
		}
		perms.Merge(g.Slug, level)
	}
	return perms, nil
}

// IsSystemRole reports whether role is the all-powerful system role.
func (r *Resolver) IsSystemRole(role models.Role) bool {
	return role.IsSystemRole || (r.systemRoleName != "" && role.Name == r.systemRoleName)
}

// IsSystemRoleName reports whether name is the configured system role.
func (r *Resolver) IsSystemRoleName(name string) bool {
	return r.systemRoleName != "" && name == r.systemRoleName
}
