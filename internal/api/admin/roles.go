// roles.go implements handlers for the permission catalog and role administration.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/middleware"
	"github.com/netimobiliaria/admin-core/internal/services"
)

// RoleHandlers handles role and permission administration endpoints
type RoleHandlers struct {
	cfg     *config.Config
	roles   *services.RoleService
	monitor *audit.SecurityMonitor
}

// NewRoleHandlers creates a new RoleHandlers instance
func NewRoleHandlers(cfg *config.Config, roles *services.RoleService, monitor *audit.SecurityMonitor) *RoleHandlers {
	return &RoleHandlers{cfg: cfg, roles: roles, monitor: monitor}
}

// ============================================================================
// Permissions
// ============================================================================

// @Summary      List permissions
// @Description  Returns the full permission catalog with feature and category names.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}  "Acesso negado"
// @Router       /api/v1/permissions [get]
// ListPermissions returns every permission in the catalog
// GET /api/v1/permissions
func (h *RoleHandlers) ListPermissions(c *gin.Context) {
	perms, err := h.roles.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao listar permissões")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": perms})
}

// Permission2FARequest sets or toggles a permission's step-up flag. An absent
// requires_2fa toggles the current value.
type Permission2FARequest struct {
	Requires2FA *bool `json:"requires_2fa"`
}

// UpdatePermission2FA sets whether a permission demands step-up verification
// PUT /api/v1/permissions/:id/2fa
func (h *RoleHandlers) UpdatePermission2FA(c *gin.Context) {
	id, ok := intParam(c, "ID de permissão inválido")
	if !ok {
		return
	}
	var req Permission2FARequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}

	actor := middleware.ActorFrom(c)
	value := false
	if req.Requires2FA == nil {
		v, err := h.roles.ToggleTwoFactorOnPermission(c.Request.Context(), id, actor)
		if err != nil {
			respondError(c, h.cfg, err, "Erro ao atualizar permissão")
			return
		}
		value = v
	} else {
		if err := h.roles.SetTwoFactorOnPermission(c.Request.Context(), id, *req.Requires2FA, actor); err != nil {
			respondError(c, h.cfg, err, "Erro ao atualizar permissão")
			return
		}
		value = *req.Requires2FA
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Permissão atualizada com sucesso",
		"data":    gin.H{"id": id, "requires_2fa": value},
	})
}

// ============================================================================
// Roles
// ============================================================================

// @Summary      List roles
// @Description  Returns every role with user and permission counts.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/roles [get]
// ListRoles returns all roles
// GET /api/v1/roles
func (h *RoleHandlers) ListRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao listar perfis")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": roles})
}

// GetRolePermissions returns the role and its permission matrix
// GET /api/v1/roles/:id/permissions
func (h *RoleHandlers) GetRolePermissions(c *gin.Context) {
	id, ok := intParam(c, "ID de perfil inválido")
	if !ok {
		return
	}
	role, grants, err := h.roles.RolePermissions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao buscar permissões do perfil")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"role": role, "permissions": grants},
	})
}

// PermissionGrant is one row of the replace-all body. RoleID is accepted for
// compatibility with older clients and ignored; the path parameter wins.
type PermissionGrant struct {
	RoleID       *int `json:"role_id,omitempty"`
	PermissionID int  `json:"permission_id"`
	Granted      bool `json:"granted"`
}

// UpdateRolePermissionsRequest replaces a role's grant set
type UpdateRolePermissionsRequest struct {
	Permissions []PermissionGrant `json:"permissions"`
}

// @Summary      Replace role permissions
// @Description  Replaces the role's grant set with the granted rows of the body in one transaction.
// @Tags         RBAC
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                           true  "Role ID"
// @Param        body  body  UpdateRolePermissionsRequest  true  "Permission grants"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      403  {object}  map[string]interface{}  "Role above the caller's level"
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Router       /api/v1/roles/{id}/permissions [put]
// UpdateRolePermissions replaces a role's grants
// PUT /api/v1/roles/:id/permissions
func (h *RoleHandlers) UpdateRolePermissions(c *gin.Context) {
	id, ok := intParam(c, "ID de perfil inválido")
	if !ok {
		return
	}
	var req UpdateRolePermissionsRequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}
	if req.Permissions == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Lista de permissões é obrigatória"})
		return
	}

	granted := make([]int, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		if p.Granted {
			granted = append(granted, p.PermissionID)
		}
	}

	if err := h.roles.UpdateRolePermissions(c.Request.Context(), id, granted, middleware.ActorFrom(c)); err != nil {
		respondError(c, h.cfg, err, "Erro ao atualizar permissões do perfil")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Permissões atualizadas com sucesso"})
}

// BulkPermissionsRequest applies one grant set to several roles. permissions
// is read by "apply", sourceRoleId by "copy"; "reset" clears every grant.
type BulkPermissionsRequest struct {
	Operation    string            `json:"operation"`
	RoleIDs      []int             `json:"roleIds"`
	Permissions  []PermissionGrant `json:"permissions"`
	SourceRoleID int               `json:"sourceRoleId"`
}

// BulkUpdatePermissions replaces the grants of several roles at once
// POST /api/v1/roles/bulk-permissions
func (h *RoleHandlers) BulkUpdatePermissions(c *gin.Context) {
	var req BulkPermissionsRequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}
	if req.Operation == services.BulkApply && req.Permissions == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Lista de permissões é obrigatória"})
		return
	}

	granted := make([]int, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		if p.Granted {
			granted = append(granted, p.PermissionID)
		}
	}

	result, err := h.roles.BulkUpdatePermissions(c.Request.Context(), services.BulkPermissions{
		Operation:     req.Operation,
		RoleIDs:       req.RoleIDs,
		PermissionIDs: granted,
		SourceRoleID:  req.SourceRoleID,
	}, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao atualizar permissões dos perfis")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Permissões atualizadas com sucesso", "data": result})
}

// GetRoleUsers lists the users assigned to a role
// GET /api/v1/roles/:id/users
func (h *RoleHandlers) GetRoleUsers(c *gin.Context) {
	id, ok := intParam(c, "ID de perfil inválido")
	if !ok {
		return
	}
	role, users, err := h.roles.RoleUsers(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao buscar usuários do perfil")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"role": role, "users": users, "total": len(users)},
	})
}

// UpdateRole edits a role's attributes
// PUT /api/v1/roles/:id
func (h *RoleHandlers) UpdateRole(c *gin.Context) {
	id, ok := intParam(c, "ID de perfil inválido")
	if !ok {
		return
	}
	var req services.RoleUpdate
	if !bindJSON(c, h.monitor, &req) {
		return
	}

	role, err := h.roles.UpdateRole(c.Request.Context(), id, req, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao atualizar perfil")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Perfil atualizado com sucesso", "data": role})
}

// CloneRoleRequest names the copy
type CloneRoleRequest struct {
	Name string `json:"name"`
}

// CloneRole copies a role and its grants under a new name
// POST /api/v1/roles/:id/clone
func (h *RoleHandlers) CloneRole(c *gin.Context) {
	id, ok := intParam(c, "ID de perfil inválido")
	if !ok {
		return
	}
	var req CloneRoleRequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}

	role, err := h.roles.CloneRole(c.Request.Context(), id, req.Name, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao clonar perfil")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Perfil clonado com sucesso", "data": role})
}

// @Summary      Delete role
// @Description  Deletes a role no user is assigned to. Returns 409 while assignments remain.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Role ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Failure      409  {object}  map[string]interface{}  "Role in use"
// @Router       /api/v1/roles/{id} [delete]
// DeleteRole removes a role
// DELETE /api/v1/roles/:id
func (h *RoleHandlers) DeleteRole(c *gin.Context) {
	id, ok := intParam(c, "ID de perfil inválido")
	if !ok {
		return
	}
	if err := h.roles.DeleteRole(c.Request.Context(), id, middleware.ActorFrom(c)); err != nil {
		respondError(c, h.cfg, err, "Erro ao excluir perfil")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Perfil excluído com sucesso"})
}

// intParam parses the :id path parameter as a positive integer.
func intParam(c *gin.Context, message string) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
		return 0, false
	}
	return id, true
}
