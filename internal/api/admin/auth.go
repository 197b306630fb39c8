// auth.go implements HTTP handlers for staff and public login, logout, and the
// current-user endpoint.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/middleware"
	"github.com/netimobiliaria/admin-core/internal/services"
)

const defaultCookieName = "auth_token"

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg     *config.Config
	login   *services.LoginService
	public  *services.PublicLoginService
	monitor *audit.SecurityMonitor
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, login *services.LoginService, public *services.PublicLoginService, monitor *audit.SecurityMonitor) *AuthHandlers {
	return &AuthHandlers{cfg: cfg, login: login, public: public, monitor: monitor}
}

// LoginRequest is the staff login body
type LoginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
}

// PublicLoginRequest is the cliente/proprietario login body
type PublicLoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	UserType      string `json:"userType"`
	TwoFactorCode string `json:"twoFactorCode"`
}

// @Summary      Staff login
// @Description  Authenticates a back-office user. When a second factor is required and no code is supplied, a code is emailed and the response asks for it.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "Authenticated, or 2FA code issued (requires2FA=true)"
// @Failure      400  {object}  map[string]interface{}  "Missing fields"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials or code"
// @Failure      429  {object}  map[string]interface{}  "Too many attempts"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates staff and sets the session cookie
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !bindJSON(c, h.monitor, &req) {
			return
		}

		result, err := h.login.Login(c.Request.Context(), services.LoginRequest{
			Username:      req.Username,
			Password:      req.Password,
			TwoFactorCode: req.TwoFactorCode,
			IPAddress:     middleware.ClientIP(c),
			UserAgent:     c.Request.UserAgent(),
		})
		if err != nil {
			respondError(c, h.cfg, err, "Erro ao realizar login")
			return
		}

		if result.RequiresTwoFactor {
			c.JSON(http.StatusOK, gin.H{
				"success":     false,
				"requires2FA": true,
				"message":     "Código de verificação enviado",
				"data":        result.CodeSent,
			})
			return
		}

		h.setAuthCookie(c, result.Token)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Login realizado com sucesso",
			"data": gin.H{
				"token":     result.Token,
				"sessionId": result.SessionID,
				"expiresAt": result.ExpiresAt,
				"user":      result.User,
			},
		})
	}
}

// PublicLoginHandler authenticates a cliente or proprietario
// POST /api/v1/public/auth/login
func (h *AuthHandlers) PublicLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PublicLoginRequest
		if !bindJSON(c, h.monitor, &req) {
			return
		}

		result, err := h.public.Login(c.Request.Context(), services.PublicLoginRequest{
			Email:         req.Email,
			Password:      req.Password,
			UserType:      req.UserType,
			TwoFactorCode: req.TwoFactorCode,
			IPAddress:     middleware.ClientIP(c),
			UserAgent:     c.Request.UserAgent(),
		})
		if err != nil {
			respondError(c, h.cfg, err, "Erro ao realizar login")
			return
		}

		if result.RequiresTwoFactor {
			c.JSON(http.StatusOK, gin.H{
				"success":     false,
				"requires2FA": true,
				"message":     "Código de verificação enviado",
				"data":        result.CodeSent,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Login realizado com sucesso",
			"data": gin.H{
				"token":     result.Token,
				"expiresAt": result.ExpiresAt,
				"user":      result.User,
			},
		})
	}
}

// @Summary      Logout
// @Description  Ends the caller's session and clears the auth cookie.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/logout [post]
// LogoutHandler ends the current session
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Não autenticado"})
			return
		}

		if err := h.login.Logout(c.Request.Context(), claims, middleware.ClientIP(c), c.Request.UserAgent()); err != nil {
			respondError(c, h.cfg, err, "Erro ao encerrar sessão")
			return
		}

		h.clearAuthCookie(c)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logout realizado com sucesso"})
	}
}

// MeHandler returns the authenticated user and the permission map in effect
// for this request.
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Não autenticado"})
			return
		}

		perms, _ := c.Get(middleware.PermissionsKey)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"id":           claims.UserID,
				"username":     claims.Username,
				"email":        claims.Email,
				"role_name":    claims.RoleName,
				"role_level":   claims.RoleLevel,
				"is2FAEnabled": claims.Is2FAEnabled,
				"sessionId":    claims.SessionID,
				"permissoes":   perms,
			},
		})
	}
}

// PublicMeHandler returns the cliente/proprietario identity of a public token.
// GET /api/v1/public/auth/me
func (h *AuthHandlers) PublicMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.PublicClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Não autenticado"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"uuid":         claims.UserUUID,
				"userType":     claims.UserType,
				"email":        claims.Email,
				"nome":         claims.Nome,
				"is2FAEnabled": claims.Is2FAEnabled,
			},
		})
	}
}

func (h *AuthHandlers) cookieName() string {
	if h.cfg.Auth.CookieName != "" {
		return h.cfg.Auth.CookieName
	}
	return defaultCookieName
}

func (h *AuthHandlers) setAuthCookie(c *gin.Context, token string) {
	maxAge := h.cfg.Auth.CookieMaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearAuthCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}
