// users.go implements staff account administration handlers.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/middleware"
	"github.com/netimobiliaria/admin-core/internal/services"
)

// UserHandlers handles staff account endpoints
type UserHandlers struct {
	cfg     *config.Config
	users   *services.UserService
	monitor *audit.SecurityMonitor
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(cfg *config.Config, users *services.UserService, monitor *audit.SecurityMonitor) *UserHandlers {
	return &UserHandlers{cfg: cfg, users: users, monitor: monitor}
}

// UserTwoFactorRequest turns a user's login 2FA on or off
type UserTwoFactorRequest struct {
	Enable *bool `json:"enable"`
}

// SetUserTwoFactor enables or disables login 2FA for a staff user
// PATCH /api/v1/users/:id/2fa
func (h *UserHandlers) SetUserTwoFactor(c *gin.Context) {
	var req UserTwoFactorRequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}
	if req.Enable == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Campo enable é obrigatório"})
		return
	}

	result, err := h.users.SetTwoFactor(c.Request.Context(), c.Param("id"), *req.Enable, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao atualizar 2FA do usuário")
		return
	}

	message := "2FA desabilitado com sucesso"
	switch {
	case !result.Changed && result.Enabled:
		message = "2FA já está habilitado"
	case !result.Changed:
		message = "2FA já está desabilitado"
	case result.Enabled:
		message = "2FA habilitado com sucesso"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "data": result})
}
