package admin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind auth.Kind
		want int
	}{
		{auth.KindInvalidCredentials, http.StatusUnauthorized},
		{auth.KindAccountDisabled, http.StatusUnauthorized},
		{auth.KindTwoFactorRequired, http.StatusOK},
		{auth.KindTwoFactorInvalid, http.StatusUnauthorized},
		{auth.KindPermissionDenied, http.StatusForbidden},
		{auth.KindResourceInUse, http.StatusConflict},
		{auth.KindNotFound, http.StatusNotFound},
		{auth.KindValidation, http.StatusBadRequest},
		{auth.KindTransactionFailure, http.StatusInternalServerError},
		{auth.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := statusFor(tt.kind); got != tt.want {
				t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func serveError(cfg *config.Config, err error) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { respondError(c, cfg, err, "Erro interno") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestRespondError_ClassifiedMessage(t *testing.T) {
	w := serveError(&config.Config{}, auth.NewError(auth.KindResourceInUse, "Perfil em uso", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "Perfil em uso" || body["success"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestRespondError_DetailsGating(t *testing.T) {
	cause := errors.New("pq: relation user_roles does not exist")
	tests := []struct {
		name        string
		cfg         *config.Config
		wantDetails bool
	}{
		{"default", &config.Config{}, false},
		{"verbose development", &config.Config{Environment: "development", VerboseErrors: true}, true},
		{"verbose production", &config.Config{Environment: "production", VerboseErrors: true}, false},
		{"nil config", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveError(tt.cfg, cause)
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			body := decodeBody(t, w)
			if body["error"] != "Erro interno" {
				t.Errorf("error = %v, want fallback message", body["error"])
			}
			_, has := body["details"]
			if has != tt.wantDetails {
				t.Errorf("details present = %v, want %v", has, tt.wantDetails)
			}
			if !tt.wantDetails && strings.Contains(w.Body.String(), "pq:") {
				t.Error("internal error text leaked")
			}
		})
	}
}

func TestBindJSON_ReportsInvalidInput(t *testing.T) {
	monitor := audit.NewSecurityMonitor(10, nil)
	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		var dst struct{ Name string }
		if bindJSON(c, monitor, &dst) {
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	events := monitor.RecentEvents(10)
	if len(events) != 1 || events[0].Type != audit.EventInvalidInput || events[0].IPAddress != "203.0.113.5" {
		t.Errorf("events = %+v", events)
	}
}
