package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/middleware"
	"github.com/netimobiliaria/admin-core/internal/services"
)

var userWithRoleCols = []string{
	"id", "username", "email", "nome", "password_hash", "ativo", "two_fa_enabled",
	"last_login", "created_at", "updated_at",
	"id", "name", "level", "requires_2fa",
}

var (
	hashOnce sync.Once
	testHash string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword("s3nha-forte")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		testHash = h
	})
	return testHash
}

type staticResolver struct{ perms auth.PermissionMap }

func (r staticResolver) Resolve(_ context.Context, _ string) auth.PermissionMap { return r.perms }

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

type authFixture struct {
	userMock    sqlmock.Sqlmock
	sessionMock sqlmock.Sqlmock
	stepUp      *fakeStepUp
	monitor     *audit.SecurityMonitor
	router      *gin.Engine
}

func newAuthFixture(t *testing.T, cfg *config.Config) *authFixture {
	t.Helper()
	db, userMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	xdb, sessionMock := newMockDB(t)

	f := &authFixture{
		userMock:    userMock,
		sessionMock: sessionMock,
		stepUp:      &fakeStepUp{},
		monitor:     audit.NewSecurityMonitor(50, nil),
	}
	rec := &captureRecorder{}
	sessions := services.NewSessionService(repositories.NewSessionRepository(xdb), rec, config.SessionConfig{})
	login := services.NewLoginService(
		repositories.NewUserRepository(db),
		staticResolver{perms: auth.PermissionMap{"imoveis": auth.LevelRead}},
		f.stepUp, sessions, rec, time.Hour)

	h := NewAuthHandlers(cfg, login, nil, f.monitor)
	r := gin.New()
	r.POST("/auth/login", h.LoginHandler())
	r.POST("/auth/logout", withClaims(gerenteClaims()), h.LogoutHandler())
	r.GET("/auth/me", withClaims(gerenteClaims()), h.MeHandler())
	r.GET("/auth/me-anon", h.MeHandler())
	f.router = r
	return f
}

func (f *authFixture) expectUser(t *testing.T, twoFA bool) {
	f.userMock.ExpectQuery("WHERE u.username = \\$1 OR u.email = \\$1").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userWithRoleCols).AddRow(
			"user-1", "alice", "alice@example.com", "Alice", passwordHash(t), true, twoFA,
			nil, time.Now(), time.Now(), 3, "Corretor", 10, false))
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// LoginHandler
// ---------------------------------------------------------------------------

func TestLoginHandler_MalformedBody(t *testing.T) {
	f := newAuthFixture(t, &config.Config{})

	w := postJSON(f.router, "/auth/login", `{"username":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if n := len(f.monitor.RecentEvents(10)); n != 1 {
		t.Errorf("monitor events = %d, want 1", n)
	}
}

func TestLoginHandler_UnknownUser(t *testing.T) {
	f := newAuthFixture(t, &config.Config{})
	f.userMock.ExpectQuery("WHERE u.username").WillReturnRows(sqlmock.NewRows(userWithRoleCols))

	w := postJSON(f.router, "/auth/login", `{"username":"ghost","password":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != services.MsgInvalidCredentials {
		t.Errorf("error = %v, want %q", got, services.MsgInvalidCredentials)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie expected on failure")
	}
}

func TestLoginHandler_SuccessSetsCookie(t *testing.T) {
	f := newAuthFixture(t, &config.Config{Environment: "production"})
	f.expectUser(t, false)
	f.sessionMock.ExpectExec("INSERT INTO user_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	f.userMock.ExpectExec("UPDATE users SET last_login").WillReturnResult(sqlmock.NewResult(0, 1))

	w := postJSON(f.router, "/auth/login", `{"username":"alice","password":"s3nha-forte"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != "auth_token" || !ck.HttpOnly || !ck.Secure || ck.Path != "/" {
		t.Errorf("cookie = %+v", ck)
	}
	if ck.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want 7 days", ck.MaxAge)
	}

	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["token"] != ck.Value {
		t.Error("body token should match cookie value")
	}
	if data["sessionId"] == "" {
		t.Error("sessionId missing")
	}
}

func TestLoginHandler_TwoFactorChallenge(t *testing.T) {
	f := newAuthFixture(t, &config.Config{})
	f.expectUser(t, true)

	w := postJSON(f.router, "/auth/login", `{"username":"alice","password":"s3nha-forte"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != false || body["requires2FA"] != true {
		t.Errorf("body = %v", body)
	}
	if len(f.stepUp.issued) != 1 {
		t.Errorf("codes issued = %d, want 1", len(f.stepUp.issued))
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie before the second factor")
	}
}

// ---------------------------------------------------------------------------
// LogoutHandler / MeHandler
// ---------------------------------------------------------------------------

func TestLogoutHandler_ClearsCookie(t *testing.T) {
	f := newAuthFixture(t, &config.Config{})
	f.sessionMock.ExpectQuery("DELETE FROM user_sessions WHERE id::text = \\$1").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := postJSON(f.router, "/auth/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("cookie should be expired, got %+v", cookies)
	}
	if err := f.sessionMock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMeHandler(t *testing.T) {
	f := newAuthFixture(t, &config.Config{})

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["username"] != "gerente" || data["sessionId"] != "sess-1" {
		t.Errorf("data = %v", data)
	}
	perms := data["permissoes"].(map[string]interface{})
	if perms["roles"] != "ADMIN" {
		t.Errorf("permissoes = %v", perms)
	}
}

func TestMeHandler_Unauthenticated(t *testing.T) {
	f := newAuthFixture(t, &config.Config{})

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me-anon", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestPublicMeHandler(t *testing.T) {
	h := NewAuthHandlers(&config.Config{}, nil, nil, nil)
	r := gin.New()
	r.GET("/public/auth/me", middleware.PublicAuth(), h.PublicMeHandler())

	token, err := auth.GeneratePublicJWT(auth.PublicClaims{
		UserUUID: "4f7c2a",
		UserType: "proprietario",
		Email:    "dono@example.com",
		Nome:     "Dono",
	}, time.Hour)
	if err != nil {
		t.Fatalf("GeneratePublicJWT: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/public/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["uuid"] != "4f7c2a" || data["userType"] != "proprietario" {
		t.Errorf("data = %v", data)
	}
}
