// Package middleware provides Gin HTTP middleware for authentication, permission
// guards, step-up verification, rate limiting, security headers and request
// bookkeeping.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Metrics → Logger → Security → RateLimit → Auth → Permission → StepUp → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth so brute-force attempts are rejected before
// any DB work. Auth populates the claims; the permission guard and the step-up
// gate read them, and the handler runs only when every guard passed.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
)

// Context keys set by the auth middleware.
const (
	ClaimsKey       = "admin_claims"
	PublicClaimsKey = "public_claims"
	UserIDKey       = "user_id"
	PermissionsKey  = "permissoes"
	TwoFAUsedKey    = "two_fa_used"
)

// SessionChecker reports whether a session id is still registered and unexpired.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// PermissionResolver recomputes a user's permission map.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID string) auth.PermissionMap
}

// AdminAuth validates the back-office token from the auth cookie or a Bearer
// header. A token bound to a session is rejected once that session has been
// revoked. When auth.resolve_per_request is set the embedded permission
// snapshot is replaced with a fresh resolution.
func AdminAuth(cfg *config.Config, sessions SessionChecker, resolver PermissionResolver) gin.HandlerFunc {
	cookieName := cfg.Auth.CookieName
	if cookieName == "" {
		cookieName = "auth_token"
	}

	return func(c *gin.Context) {
		token := tokenFromRequest(c, cookieName)
		if token == "" {
			abort(c, http.StatusUnauthorized, "Token de acesso não fornecido")
			return
		}

		claims, err := auth.ValidateAdminJWT(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Token inválido ou expirado")
			return
		}

		if claims.SessionID != "" && sessions != nil {
			active, err := sessions.IsActive(c.Request.Context(), claims.SessionID)
			if err != nil {
				slog.Error("session lookup failed", "session_id", claims.SessionID, "error", err)
				abort(c, http.StatusInternalServerError, "Erro interno do servidor")
				return
			}
			if !active {
				abort(c, http.StatusUnauthorized, "Sessão encerrada ou expirada")
				return
			}
		}

		if cfg.Auth.ResolvePerRequest && resolver != nil {
			claims.Permissoes = resolver.Resolve(c.Request.Context(), claims.UserID)
		}
		if claims.Permissoes == nil {
			claims.Permissoes = auth.PermissionMap{}
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Set(PermissionsKey, claims.Permissoes)
		c.Next()
	}
}

// PublicAuth validates a cliente/proprietario token. Admin tokens are rejected
// because the two token kinds carry different audiences.
func PublicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "Token de acesso não fornecido")
			return
		}
		claims, err := auth.ValidatePublicJWT(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Token inválido ou expirado")
			return
		}
		c.Set(PublicClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the admin claims set by AdminAuth.
func ClaimsFrom(c *gin.Context) (*auth.AdminClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.AdminClaims)
	return claims, ok && claims != nil
}

// PublicClaimsFrom returns the public claims set by PublicAuth.
func PublicClaimsFrom(c *gin.Context) (*auth.PublicClaims, bool) {
	v, ok := c.Get(PublicClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.PublicClaims)
	return claims, ok && claims != nil
}

// ActorFrom builds the acting identity for service calls and audit events.
func ActorFrom(c *gin.Context) auth.Actor {
	actor := auth.Actor{
		IPAddress: ClientIP(c),
		UserAgent: c.Request.UserAgent(),
		TwoFAUsed: c.GetBool(TwoFAUsedKey),
	}
	if claims, ok := ClaimsFrom(c); ok {
		actor.UserID = claims.UserID
		actor.Username = claims.Username
		actor.RoleName = claims.RoleName
		actor.RoleLevel = claims.RoleLevel
	}
	return actor
}

func tokenFromRequest(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	return bearerToken(c)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}
