// Package middleware (rbac.go) implements the per-route permission guard.
//
// The guard reads the permission map placed in the context by AdminAuth. It
// either comes from the token snapshot or, with auth.resolve_per_request, from
// a fresh resolution, so the guard itself never touches the database.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// Context keys recording what the guard demanded, read by the step-up gate and
// by DeniedAccessAudit.
const (
	RequiredResourceKey = "required_resource"
	RequiredLevelKey    = "required_level"
)

// RequirePermission admits the request only when the caller's level for
// resource is at least level.
func RequirePermission(resource string, level auth.Level) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(RequiredResourceKey, resource)
		c.Set(RequiredLevelKey, level)

		claims, ok := ClaimsFrom(c)
		if !ok {
			telemetry.PermissionDenialsTotal.WithLabelValues(resource, "unauthenticated").Inc()
			abort(c, http.StatusUnauthorized, "Usuário não autenticado")
			return
		}

		if !claims.Permissoes.Grants(resource, level) {
			telemetry.PermissionDenialsTotal.WithLabelValues(resource, "insufficient_level").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success":  false,
				"error":    "Acesso negado",
				"required": resource + ":" + level.String(),
			})
			return
		}

		c.Next()
	}
}
