// audit.go records requests the permission guard refused, so probing for
// privileges leaves a trail in the audit log and the security monitor.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
)

// ActionAccessDenied is the audit action for a refused request.
const ActionAccessDenied = "ACCESS_DENIED"

// DeniedAccessAudit emits one audit event for every authenticated request that
// ended in 403. Unauthenticated requests carry no actor and are left to the
// rate limiter and the monitor.
func DeniedAccessAudit(recorder audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() != http.StatusForbidden {
			return
		}
		claims, ok := ClaimsFrom(c)
		if !ok {
			return
		}

		details := map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}
		resource := c.GetString(RequiredResourceKey)
		if v, ok := c.Get(RequiredLevelKey); ok {
			if level, ok := v.(auth.Level); ok {
				details["required"] = level.String()
			}
		}

		recorder.Record(audit.Event{
			Kind:       audit.KindAction,
			Action:     ActionAccessDenied,
			Resource:   resource,
			ResourceID: c.Param("id"),
			UserID:     claims.UserID,
			UserType:   "admin",
			Username:   claims.Username,
			IPAddress:  ClientIP(c),
			UserAgent:  c.Request.UserAgent(),
			Details:    details,
		})
	}
}
