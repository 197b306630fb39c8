package admin

import (
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/services"
)

func newUsersRouter(t *testing.T) (sqlmock.Sqlmock, *captureRecorder, *gin.Engine) {
	t.Helper()
	db, mock := newMockDB(t)
	rec := &captureRecorder{}
	h := NewUserHandlers(&config.Config{},
		services.NewUserService(repositories.NewUserRepository(db.DB), rec, "Super Admin"), nil)

	r := gin.New()
	r.PATCH("/users/:id/2fa", withClaims(gerenteClaims()), h.SetUserTwoFactor)
	return mock, rec, r
}

func expectAdminUser(mock sqlmock.Sqlmock, id string, twoFA bool, level int) {
	mock.ExpectQuery("WHERE u.id::text = \\$1").WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userWithRoleCols).AddRow(
			id, "bia", "bia@example.com", "Bia", "$2a$10$hash", true, twoFA,
			nil, time.Now(), time.Now(), 3, "Corretor", level, false))
}

func TestSetUserTwoFactor_Disable(t *testing.T) {
	mock, rec, r := newUsersRouter(t)
	expectAdminUser(mock, "user-bia", true, 10)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET two_fa_enabled").WithArgs("user-bia", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_2fa_codes SET used = true").WithArgs("user-bia").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	w := doJSON(r, http.MethodPatch, "/users/user-bia/2fa", `{"enable":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["is_enabled"] != false || data["changed"] != true {
		t.Errorf("data = %v", data)
	}
	if got := rec.actions(); len(got) != 1 || got[0] != services.ActionUser2FADisabled {
		t.Errorf("audit actions = %v", got)
	}
}

func TestSetUserTwoFactor_AlreadyInState(t *testing.T) {
	mock, rec, r := newUsersRouter(t)
	expectAdminUser(mock, "user-bia", true, 10)

	w := doJSON(r, http.MethodPatch, "/users/user-bia/2fa", `{"enable":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if msg := decodeBody(t, w)["message"]; msg != "2FA já está habilitado" {
		t.Errorf("message = %v", msg)
	}
	if len(rec.events) != 0 {
		t.Error("no change, nothing audited")
	}
}

func TestSetUserTwoFactor_MissingEnable(t *testing.T) {
	_, _, r := newUsersRouter(t)
	if w := doJSON(r, http.MethodPatch, "/users/user-bia/2fa", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSetUserTwoFactor_HigherLevelForbidden(t *testing.T) {
	mock, _, r := newUsersRouter(t)
	expectAdminUser(mock, "user-dir", true, 90)

	if w := doJSON(r, http.MethodPatch, "/users/user-dir/2fa", `{"enable":false}`); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestSetUserTwoFactor_UnknownUser(t *testing.T) {
	mock, _, r := newUsersRouter(t)
	mock.ExpectQuery("WHERE u.id::text = \\$1").WillReturnRows(sqlmock.NewRows(userWithRoleCols))

	if w := doJSON(r, http.MethodPatch, "/users/abc/2fa", `{"enable":false}`); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
