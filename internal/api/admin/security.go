// security.go exposes the security monitor's recent events and alerts.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/middleware"
)

// SecurityHandlers handles security monitor endpoints
type SecurityHandlers struct {
	monitor *audit.SecurityMonitor
}

// NewSecurityHandlers creates a new SecurityHandlers instance
func NewSecurityHandlers(monitor *audit.SecurityMonitor) *SecurityHandlers {
	return &SecurityHandlers{monitor: monitor}
}

// ListEvents returns the most recent monitor events and summary counts
// GET /api/v1/security/events?limit=100
func (h *SecurityHandlers) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"events": h.monitor.RecentEvents(limit),
			"stats":  h.monitor.Stats(),
		},
	})
}

// ListAlerts returns open alerts, or all alerts with ?includeResolved=true
// GET /api/v1/security/alerts
func (h *SecurityHandlers) ListAlerts(c *gin.Context) {
	includeResolved, _ := strconv.ParseBool(c.Query("includeResolved"))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.monitor.Alerts(includeResolved)})
}

// ResolveAlert marks an alert resolved by the caller
// POST /api/v1/security/alerts/:id/resolve
func (h *SecurityHandlers) ResolveAlert(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	resolvedBy := actor.Username
	if resolvedBy == "" {
		resolvedBy = actor.UserID
	}
	if !h.monitor.ResolveAlert(c.Param("id"), resolvedBy) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Alerta não encontrado"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Alerta resolvido"})
}
