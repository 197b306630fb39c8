// sessions.go implements handlers for the session registry: listing, detail and
// revocation of staff sessions.
package admin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/middleware"
	"github.com/netimobiliaria/admin-core/internal/services"
)

// SessionHandlers handles session registry endpoints
type SessionHandlers struct {
	cfg      *config.Config
	sessions *services.SessionService
	monitor  *audit.SecurityMonitor
}

// NewSessionHandlers creates a new SessionHandlers instance
func NewSessionHandlers(cfg *config.Config, sessions *services.SessionService, monitor *audit.SecurityMonitor) *SessionHandlers {
	return &SessionHandlers{cfg: cfg, sessions: sessions, monitor: monitor}
}

// @Summary      List sessions
// @Description  Lists staff sessions, newest first, with time-remaining labels. period is one of today, week, month or custom (with startDate/endDate).
// @Tags         Sessions
// @Security     Bearer
// @Produce      json
// @Param        period     query  string  false  "today | week | month | custom"
// @Param        startDate  query  string  false  "Start date (YYYY-MM-DD or RFC3339)"
// @Param        endDate    query  string  false  "End date (YYYY-MM-DD or RFC3339)"
// @Param        userId     query  string  false  "Owner user ID"
// @Param        page       query  int     false  "Page (default 1)"
// @Param        limit      query  int     false  "Page size (default 50, max 100)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/sessions [get]
// ListSessions returns one page of sessions
// GET /api/v1/sessions
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	filters := repositories.SessionFilters{Period: c.Query("period")}

	var ok bool
	if filters.StartDate, ok = dateQuery(c, "startDate", false); !ok {
		return
	}
	if filters.EndDate, ok = dateQuery(c, "endDate", true); !ok {
		return
	}
	if userID := c.Query("userId"); userID != "" {
		filters.UserID = &userID
	}

	page, limit := pageQuery(c)
	result, err := h.sessions.List(c.Request.Context(), filters, page, limit)
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao listar sessões")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// GetSession returns one session with its owner
// GET /api/v1/sessions/:id
func (h *SessionHandlers) GetSession(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao buscar sessão")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// @Summary      Revoke session
// @Description  Deletes one session. Revoking a session that no longer exists succeeds with revoked=false.
// @Tags         Sessions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/sessions/{id} [delete]
// RevokeSession deletes one session
// DELETE /api/v1/sessions/:id
func (h *SessionHandlers) RevokeSession(c *gin.Context) {
	result, err := h.sessions.Revoke(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao revogar sessão")
		return
	}

	message := "Sessão revogada com sucesso"
	if !result.Revoked {
		message = "Sessão já encerrada"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "data": result})
}

// BulkRevokeRequest selects the sessions to revoke
type BulkRevokeRequest struct {
	Type       string   `json:"type"` // selected, all, user
	SessionIDs []string `json:"sessionIds"`
	UserID     string   `json:"userId"`
}

// BulkRevokeSessions revokes several sessions in one transaction
// POST /api/v1/sessions/bulk-revoke
func (h *SessionHandlers) BulkRevokeSessions(c *gin.Context) {
	var req BulkRevokeRequest
	if !bindJSON(c, h.monitor, &req) {
		return
	}

	count, err := h.sessions.BulkRevoke(c.Request.Context(), req.Type, req.SessionIDs, req.UserID, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.cfg, err, "Erro ao revogar sessões")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": strconv.Itoa(count) + " sessão(ões) revogada(s)",
		"data":    gin.H{"revoked": count},
	})
}

// pageQuery reads page and limit; services clamp them.
func pageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return page, limit
}

// dateQuery parses an optional date parameter given as YYYY-MM-DD or RFC3339.
// A bare end date covers the whole day.
func dateQuery(c *gin.Context, name string, endOfDay bool) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Data inválida: " + name})
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}
