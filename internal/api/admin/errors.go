// errors.go maps typed service failures to HTTP responses and centralizes
// request-body binding for the admin handlers.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/middleware"
)

// statusFor returns the HTTP status for an error kind.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidCredentials, auth.KindAccountDisabled, auth.KindTwoFactorInvalid:
		return http.StatusUnauthorized
	case auth.KindTwoFactorRequired:
		return http.StatusOK
	case auth.KindPermissionDenied:
		return http.StatusForbidden
	case auth.KindResourceInUse:
		return http.StatusConflict
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {success:false, error} for err. Classified errors carry
// their own message; anything else gets fallback. Internal error text is only
// attached to 500 responses when the config allows it.
func respondError(c *gin.Context, cfg *config.Config, err error, fallback string) {
	kind := auth.KindOf(err)
	status := statusFor(kind)

	body := gin.H{"success": false, "error": auth.MessageOf(err, fallback)}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"kind", kind.String(),
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err)
		if cfg != nil && cfg.ExposeErrorDetails() {
			body["details"] = err.Error()
		}
	}
	c.JSON(status, body)
}

// bindJSON decodes the body into dst. A malformed body is answered with 400
// and reported to the security monitor.
func bindJSON(c *gin.Context, monitor *audit.SecurityMonitor, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if monitor != nil {
			monitor.LogInvalidInput(c.Request.Context(), middleware.ClientIP(c), c.Request.UserAgent(), c.FullPath(), err.Error())
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Dados da requisição inválidos"})
		return false
	}
	return true
}
