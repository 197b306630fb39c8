// audit.go implements handlers for reading and purging the audit and login logs.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/middleware"
	"github.com/netimobiliaria/admin-core/internal/services"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 100
)

// AuditHandlers handles audit trail endpoints
type AuditHandlers struct {
	cfg       *config.Config
	auditRepo *repositories.AuditRepository
	loginRepo *repositories.LoginLogRepository
	purge     *services.PurgeService
	monitor   *audit.SecurityMonitor
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(cfg *config.Config, auditRepo *repositories.AuditRepository, loginRepo *repositories.LoginLogRepository, purge *services.PurgeService, monitor *audit.SecurityMonitor) *AuditHandlers {
	return &AuditHandlers{cfg: cfg, auditRepo: auditRepo, loginRepo: loginRepo, purge: purge, monitor: monitor}
}

// @Summary      List audit logs
// @Description  Returns audit entries, newest first, with per-actor-type counts for the same filters.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        page       query  int     false  "Page (default 1)"
// @Param        limit      query  int     false  "Page size (default 50, max 100)"
// @Param        startDate  query  string  false  "Start date"
// @Param        endDate    query  string  false  "End date"
// @Param        userId     query  string  false  "Acting staff user"
// @Param        action     query  string  false  "Exact action"
// @Param        search     query  string  false  "Matches action, resource or username"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/audit [get]
// ListAuditLogs returns one page of the audit trail
// GET /api/v1/audit
func (h *AuditHandlers) ListAuditLogs(c *gin.Context) {
	var filters repositories.AuditFilters
	var ok bool
	if filters.StartDate, ok = dateQuery(c, "startDate", false); !ok {
		return
	}
	if filters.EndDate, ok = dateQuery(c, "endDate", true); !ok {
		return
	}
	filters.UserID = optionalQuery(c, "userId")
	filters.Action = optionalQuery(c, "action")
	filters.Search = optionalQuery(c, "search")

	page, limit := pageQuery(c)
	page, limit = services.NormalizePage(page, limit, defaultLogPageSize, maxLogPageSize)

	logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, limit, (page-1)*limit)
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao buscar logs de auditoria")
		return
	}
	stats, err := h.auditRepo.AuditStats(c.Request.Context(), filters)
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao buscar logs de auditoria")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"logs":       logs,
			"pagination": services.NewPagination(page, limit, total),
			"stats":      stats,
		},
	})
}

// ListLoginLogs returns one page of authentication attempts
// GET /api/v1/login-logs
func (h *AuditHandlers) ListLoginLogs(c *gin.Context) {
	var filters repositories.LoginLogFilters
	var ok bool
	if filters.StartDate, ok = dateQuery(c, "start_date", false); !ok {
		return
	}
	if filters.EndDate, ok = dateQuery(c, "end_date", true); !ok {
		return
	}
	filters.Username = optionalQuery(c, "username")
	filters.Action = optionalQuery(c, "action")
	filters.IPAddress = optionalQuery(c, "ip_address")
	if raw := c.Query("two_fa_used"); raw != "" {
		used, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Filtro two_fa_used inválido"})
			return
		}
		filters.TwoFAUsed = &used
	}

	page, limit := pageQuery(c)
	page, limit = services.NormalizePage(page, limit, defaultLogPageSize, maxLogPageSize)

	logs, total, err := h.loginRepo.ListLoginLogs(c.Request.Context(), filters, limit, (page-1)*limit)
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao buscar logs de login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"logs":       logs,
			"pagination": services.NewPagination(page, limit, total),
		},
	})
}

// PurgeStats reports how many rows each common retention window would remove
// GET /api/v1/audit/purge/stats
func (h *AuditHandlers) PurgeStats(c *gin.Context) {
	stats, err := h.purge.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao calcular estatísticas de limpeza")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// PurgeRequest selects the retention window
type PurgeRequest struct {
	Days    int  `json:"days"`
	Archive bool `json:"archive"`
}

// @Summary      Purge logs
// @Description  Deletes login and audit rows older than days. The purge itself is recorded first and never purged. archive=true ships the removed audit rows to the configured archive before deleting.
// @Tags         Audit
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  PurgeRequest  true  "Retention window"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid retention window"
// @Router       /api/v1/audit/purge [post]
// PurgeLogs removes old log rows
// POST /api/v1/audit/purge
func (h *AuditHandlers) PurgeLogs(c *gin.Context) {
	var req PurgeRequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}

	result, err := h.purge.Purge(c.Request.Context(), req.Days, req.Archive, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao limpar logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logs removidos com sucesso", "data": result})
}

func optionalQuery(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}
