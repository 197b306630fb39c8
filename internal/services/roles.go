package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
)

// Audit actions for role administration.
const (
	ActionRolePermissionsUpdated = "ROLE_PERMISSIONS_UPDATED"
	ActionPermission2FAUpdated   = "PERMISSION_2FA_UPDATED"
	ActionRoleDeleted            = "ROLE_DELETED"
	ActionRoleCloned             = "ROLE_CLONED"
	ActionRoleUpdated            = "ROLE_UPDATED"

	ResourceRoles       = "user_roles"
	ResourcePermissions = "permissions"
)

// RoleService administers roles and their permission grants
type RoleService struct {
	rbac           *repositories.RBACRepository
	permissions    *repositories.PermissionRepository
	recorder       audit.Recorder
	systemRoleName string
}

// NewRoleService creates a new RoleService
func NewRoleService(rbac *repositories.RBACRepository, permissions *repositories.PermissionRepository, recorder audit.Recorder, systemRoleName string) *RoleService {
	return &RoleService{
		rbac:           rbac,
		permissions:    permissions,
		recorder:       recorder,
		systemRoleName: systemRoleName,
	}
}

// ListRoles returns every role with its user and permission counts.
func (s *RoleService) ListRoles(ctx context.Context) ([]models.RoleWithCounts, error) {
	return s.rbac.ListRoles(ctx)
}

// ListPermissions returns the whole permission catalog.
func (s *RoleService) ListPermissions(ctx context.Context) ([]models.PermissionDetail, error) {
	return s.permissions.ListPermissions(ctx)
}

// RolePermissions returns the role's permission matrix.
func (s *RoleService) RolePermissions(ctx context.Context, roleID int) (*models.Role, []models.RolePermissionGrant, error) {
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	grants, err := s.rbac.ListRolePermissionGrants(ctx, roleID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	return role, grants, nil
}

// UpdateRolePermissions replaces the role's grant set with permissionIDs. The
// swap is all-or-nothing; on failure the previous set stays in place.
func (s *RoleService) UpdateRolePermissions(ctx context.Context, roleID int, permissionIDs []int, actor auth.Actor) error {
	role, err := s.manageableRole(ctx, roleID, actor)
	if err != nil {
		return err
	}
	if s.isSystemRole(role) {
		return auth.NewError(auth.KindValidation, "As permissões do Super Admin não podem ser alteradas", nil)
	}
	return s.replaceGrants(ctx, role, dedupe(permissionIDs), actor, ActionRolePermissionsUpdated, nil)
}

func (s *RoleService) replaceGrants(ctx context.Context, role *models.Role, ids []int, actor auth.Actor, action string, extra map[string]interface{}) error {
	previous, err := s.rbac.GrantedPermissionIDs(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("failed to read current grants: %w", err)
	}

	if err := s.rbac.ReplaceRolePermissions(ctx, role.ID, ids, optional(actor.UserID)); err != nil {
		return auth.NewError(auth.KindTransactionFailure, "Erro ao atualizar permissões do perfil", err)
	}

	s.recordGrantChange(role, previous, ids, actor, action, extra)
	return nil
}

func (s *RoleService) recordGrantChange(role *models.Role, previous, ids []int, actor auth.Actor, action string, extra map[string]interface{}) {
	added, removed := diffIDs(previous, ids)
	details := map[string]interface{}{
		"roleName":           role.Name,
		"previousCount":      len(previous),
		"newCount":           len(ids),
		"addedPermissions":   added,
		"removedPermissions": removed,
	}
	for k, v := range extra {
		details[k] = v
	}
	s.record(actor, action, ResourceRoles, strconv.Itoa(role.ID), details)
}

// Bulk permission operations.
const (
	BulkApply = "apply"
	BulkCopy  = "copy"
	BulkReset = "reset"
)

// BulkPermissions describes one multi-role replace-all. PermissionIDs is read
// by apply, SourceRoleID by copy; reset clears every grant.
type BulkPermissions struct {
	Operation     string
	RoleIDs       []int
	PermissionIDs []int
	SourceRoleID  int
}

// BulkPermissionsResult summarizes a bulk operation.
type BulkPermissionsResult struct {
	Operation       string `json:"operation"`
	RoleIDs         []int  `json:"roleIds"`
	PermissionCount int    `json:"permissionsPerRole"`
}

// BulkUpdatePermissions gives every target role the same grant set in one
// transaction. Each target passes the same checks as a single-role update; if
// any fails, nothing changes.
func (s *RoleService) BulkUpdatePermissions(ctx context.Context, req BulkPermissions, actor auth.Actor) (*BulkPermissionsResult, error) {
	switch req.Operation {
	case BulkApply, BulkCopy, BulkReset:
	default:
		return nil, auth.NewError(auth.KindValidation, "Operação inválida", nil)
	}
	roleIDs := dedupe(req.RoleIDs)
	if len(roleIDs) == 0 || len(roleIDs) != len(req.RoleIDs) {
		return nil, auth.NewError(auth.KindValidation, "IDs dos perfis são obrigatórios e devem ser únicos", nil)
	}

	roles := make([]*models.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, err := s.manageableRole(ctx, id, actor)
		if err != nil {
			return nil, err
		}
		if s.isSystemRole(role) {
			return nil, auth.NewError(auth.KindValidation, "As permissões do Super Admin não podem ser alteradas", nil)
		}
		roles = append(roles, role)
	}

	var ids []int
	extra := map[string]interface{}{"bulkOperation": req.Operation}
	switch req.Operation {
	case BulkApply:
		ids = dedupe(req.PermissionIDs)
	case BulkCopy:
		if req.SourceRoleID <= 0 {
			return nil, auth.NewError(auth.KindValidation, "ID do perfil de origem é obrigatório", nil)
		}
		source, err := s.findRole(ctx, req.SourceRoleID)
		if err != nil {
			return nil, err
		}
		if s.isSystemRole(source) {
			return nil, auth.NewError(auth.KindValidation, "O perfil do sistema não pode ser usado como origem", nil)
		}
		if ids, err = s.rbac.GrantedPermissionIDs(ctx, source.ID); err != nil {
			return nil, fmt.Errorf("failed to read source grants: %w", err)
		}
		extra["sourceRoleId"] = source.ID
	case BulkReset:
		ids = []int{}
	}

	previous := make([][]int, len(roles))
	for i, role := range roles {
		prev, err := s.rbac.GrantedPermissionIDs(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read current grants: %w", err)
		}
		previous[i] = prev
	}

	if err := s.rbac.ReplaceManyRolePermissions(ctx, roleIDs, ids, optional(actor.UserID)); err != nil {
		return nil, auth.NewError(auth.KindTransactionFailure, "Erro ao atualizar permissões dos perfis", err)
	}

	for i, role := range roles {
		s.recordGrantChange(role, previous[i], ids, actor, ActionRolePermissionsUpdated, extra)
	}
	return &BulkPermissionsResult{Operation: req.Operation, RoleIDs: roleIDs, PermissionCount: len(ids)}, nil
}

// RoleUsers returns the role and the users assigned to it.
func (s *RoleService) RoleUsers(ctx context.Context, roleID int) (*models.Role, []models.RoleUser, error) {
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	users, err := s.rbac.ListRoleUsers(ctx, roleID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list role users: %w", err)
	}
	return role, users, nil
}

// RoleUpdate carries the editable role attributes
type RoleUpdate struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Level       int     `json:"level"`
	Requires2FA bool    `json:"two_fa_required"`
	IsActive    bool    `json:"is_active"`
}

// UpdateRole edits a non-system role. The new level must stay below the
// actor's own unless the actor holds the system role.
func (s *RoleService) UpdateRole(ctx context.Context, roleID int, upd RoleUpdate, actor auth.Actor) (*models.Role, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	if upd.Name == "" {
		return nil, auth.NewError(auth.KindValidation, "Nome do perfil é obrigatório", nil)
	}
	if upd.Level < 0 {
		return nil, auth.NewError(auth.KindValidation, "Nível inválido", nil)
	}

	role, err := s.manageableRole(ctx, roleID, actor)
	if err != nil {
		return nil, err
	}
	if s.isSystemRole(role) {
		return nil, auth.NewError(auth.KindValidation, "Perfis do sistema não podem ser alterados", nil)
	}
	if !auth.CanManageRole(actor, s.systemRoleName, &models.Role{Level: upd.Level}) {
		return nil, auth.NewError(auth.KindPermissionDenied,
			"O nível do perfil deve ser inferior ao seu", nil)
	}

	if upd.Name != role.Name {
		existing, err := s.rbac.GetRoleByName(ctx, upd.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up role name: %w", err)
		}
		if existing != nil {
			return nil, auth.NewError(auth.KindResourceInUse, "Já existe um perfil com este nome", nil)
		}
	}

	before := *role
	role.Name = upd.Name
	role.Description = upd.Description
	role.Level = upd.Level
	role.Requires2FA = upd.Requires2FA
	role.IsActive = upd.IsActive

	updated, err := s.rbac.UpdateRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	if !updated {
		return nil, auth.NewError(auth.KindNotFound, "Perfil não encontrado", nil)
	}

	s.record(actor, ActionRoleUpdated, ResourceRoles, strconv.Itoa(roleID), map[string]interface{}{
		"previousName":  before.Name,
		"roleName":      role.Name,
		"previousLevel": before.Level,
		"level":         role.Level,
		"requires2FA":   role.Requires2FA,
		"isActive":      role.IsActive,
	})
	return role, nil
}

// SetTwoFactorOnPermission sets the permission's step-up flag.
func (s *RoleService) SetTwoFactorOnPermission(ctx context.Context, permissionID int, required bool, actor auth.Actor) error {
	found, err := s.permissions.SetRequires2FA(ctx, permissionID, required)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}
	if !found {
		return auth.NewError(auth.KindNotFound, "Permissão não encontrada", nil)
	}
	s.record(actor, ActionPermission2FAUpdated, ResourcePermissions, strconv.Itoa(permissionID),
		map[string]interface{}{"requires2FA": required})
	return nil
}

// ToggleTwoFactorOnPermission flips the permission's step-up flag and returns
// the new value.
func (s *RoleService) ToggleTwoFactorOnPermission(ctx context.Context, permissionID int, actor auth.Actor) (bool, error) {
	value, found, err := s.permissions.ToggleRequires2FA(ctx, permissionID)
	if err != nil {
		return false, fmt.Errorf("failed to update permission: %w", err)
	}
	if !found {
		return false, auth.NewError(auth.KindNotFound, "Permissão não encontrada", nil)
	}
	s.record(actor, ActionPermission2FAUpdated, ResourcePermissions, strconv.Itoa(permissionID),
		map[string]interface{}{"requires2FA": value, "toggled": true})
	return value, nil
}

// DeleteRole removes a role that no user is assigned to, together with its grants.
func (s *RoleService) DeleteRole(ctx context.Context, roleID int, actor auth.Actor) error {
	role, err := s.manageableRole(ctx, roleID, actor)
	if err != nil {
		return err
	}
	if s.isSystemRole(role) {
		return auth.NewError(auth.KindValidation, "Perfis do sistema não podem ser excluídos", nil)
	}

	count, err := s.rbac.CountActiveAssignments(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to count role assignments: %w", err)
	}
	if count > 0 {
		return auth.NewError(auth.KindResourceInUse,
			fmt.Sprintf("Não é possível excluir o perfil: %d usuário(s) vinculado(s)", count), nil)
	}

	deleted, err := s.rbac.DeleteRole(ctx, roleID)
	if err != nil {
		return auth.NewError(auth.KindTransactionFailure, "Erro ao excluir perfil", err)
	}
	if !deleted {
		return auth.NewError(auth.KindNotFound, "Perfil não encontrado", nil)
	}

	s.record(actor, ActionRoleDeleted, ResourceRoles, strconv.Itoa(roleID),
		map[string]interface{}{"roleName": role.Name, "level": role.Level})
	return nil
}

// CloneRole creates a role named name with the source role's attributes and
// grant set. The system role cannot be a source.
func (s *RoleService) CloneRole(ctx context.Context, sourceID int, name string, actor auth.Actor) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, auth.NewError(auth.KindValidation, "Nome do novo perfil é obrigatório", nil)
	}

	source, err := s.manageableRole(ctx, sourceID, actor)
	if err != nil {
		return nil, err
	}
	// The system role's access comes from its name, not its stored grants.
	if s.isSystemRole(source) {
		return nil, auth.NewError(auth.KindValidation, "O perfil do sistema não pode ser clonado", nil)
	}

	existing, err := s.rbac.GetRoleByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up role name: %w", err)
	}
	if existing != nil {
		return nil, auth.NewError(auth.KindResourceInUse, "Já existe um perfil com este nome", nil)
	}

	grants, err := s.rbac.GrantedPermissionIDs(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read source grants: %w", err)
	}

	clone := &models.Role{
		Name:        name,
		Description: source.Description,
		Level:       source.Level,
		Requires2FA: source.Requires2FA,
		IsActive:    true,
	}
	if err := s.rbac.CreateRole(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	err = s.replaceGrants(ctx, clone, grants, actor, ActionRoleCloned, map[string]interface{}{
		"sourceRoleId":   source.ID,
		"sourceRoleName": source.Name,
	})
	if err != nil {
		if _, delErr := s.rbac.DeleteRole(ctx, clone.ID); delErr != nil {
			slog.Error("failed to remove partially cloned role", "role_id", clone.ID, "error", delErr)
		}
		return nil, err
	}
	return clone, nil
}

func (s *RoleService) findRole(ctx context.Context, roleID int) (*models.Role, error) {
	role, err := s.rbac.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if role == nil {
		return nil, auth.NewError(auth.KindNotFound, "Perfil não encontrado", nil)
	}
	return role, nil
}

// manageableRole loads the role and applies the hierarchy guard.
func (s *RoleService) manageableRole(ctx context.Context, roleID int, actor auth.Actor) (*models.Role, error) {
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !auth.CanManageRole(actor, s.systemRoleName, role) {
		return nil, auth.NewError(auth.KindPermissionDenied,
			"Você só pode gerenciar perfis de nível inferior ao seu", nil)
	}
	return role, nil
}

func (s *RoleService) isSystemRole(role *models.Role) bool {
	return role.IsSystemRole || (s.systemRoleName != "" && role.Name == s.systemRoleName)
}

func (s *RoleService) record(actor auth.Actor, action, resource, resourceID string, details map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(audit.Event{
		Kind:       audit.KindAction,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		UserID:     actor.UserID,
		UserType:   models.UserTypeAdmin,
		Username:   actor.Username,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		TwoFAUsed:  actor.TwoFAUsed,
		Details:    details,
	})
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// diffIDs returns the ids present only in next and only in prev.
func diffIDs(prev, next []int) (added, removed []int) {
	before := make(map[int]bool, len(prev))
	for _, id := range prev {
		before[id] = true
	}
	after := make(map[int]bool, len(next))
	added = []int{}
	for _, id := range next {
		after[id] = true
		if !before[id] {
			added = append(added, id)
		}
	}
	removed = []int{}
	for _, id := range prev {
		if !after[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}
