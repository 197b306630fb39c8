package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/services"
)

var roleCols = []string{
	"id", "name", "description", "level", "requires_2fa", "is_active", "is_system_role", "created_at", "updated_at",
}

func roleRow(id int, name string, level int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(roleCols).AddRow(id, name, nil, level, false, true, false, now, now)
}

func newRolesRouter(t *testing.T) (sqlmock.Sqlmock, *captureRecorder, *gin.Engine) {
	t.Helper()
	db, mock := newMockDB(t)
	rec := &captureRecorder{}
	svc := services.NewRoleService(
		repositories.NewRBACRepository(db),
		repositories.NewPermissionRepository(db),
		rec,
		"Super Admin",
	)
	h := NewRoleHandlers(&config.Config{}, svc, nil)

	r := gin.New()
	g := r.Group("", withClaims(gerenteClaims()))
	g.GET("/roles", h.ListRoles)
	g.GET("/roles/:id/permissions", h.GetRolePermissions)
	g.PUT("/roles/:id/permissions", h.UpdateRolePermissions)
	g.PUT("/roles/:id", h.UpdateRole)
	g.POST("/roles/:id/clone", h.CloneRole)
	g.DELETE("/roles/:id", h.DeleteRole)
	g.GET("/roles/:id/users", h.GetRoleUsers)
	g.POST("/roles/bulk-permissions", h.BulkUpdatePermissions)
	g.PUT("/permissions/:id/2fa", h.UpdatePermission2FA)
	return mock, rec, r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

func TestListRoles(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	now := time.Now()
	mock.ExpectQuery("FROM user_roles ur").WillReturnRows(sqlmock.NewRows(append(append([]string{}, roleCols...), "user_count", "permission_count")).
		AddRow(1, "Super Admin", nil, 100, true, true, true, now, now, 1, 0).
		AddRow(3, "Corretor", nil, 10, false, true, false, now, now, 4, 12))

	w := doJSON(r, http.MethodGet, "/roles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeBody(t, w)["data"].([]interface{})
	if len(data) != 2 {
		t.Errorf("roles = %d, want 2", len(data))
	}
}

func TestRoleHandlers_InvalidID(t *testing.T) {
	_, _, r := newRolesRouter(t)

	for _, path := range []string{"/roles/abc/permissions", "/roles/0/permissions", "/roles/-3/permissions"} {
		w := doJSON(r, http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, w.Code)
		}
	}
}

func TestGetRolePermissions_NotFound(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(42).WillReturnRows(sqlmock.NewRows(roleCols))

	w := doJSON(r, http.MethodGet, "/roles/42/permissions", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateRolePermissions_MissingList(t *testing.T) {
	mock, _, r := newRolesRouter(t)

	w := doJSON(r, http.MethodPut, "/roles/3/permissions", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no queries expected: %v", err)
	}
}

func TestUpdateRolePermissions_OnlyGrantedRowsApplied(t *testing.T) {
	mock, rec, r := newRolesRouter(t)
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(3).WillReturnRows(roleRow(3, "Corretor", 10))
	mock.ExpectQuery("SELECT permission_id FROM role_permissions").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM role_permissions WHERE role_id = \\$1").WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO role_permissions").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE user_roles SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body := `{"permissions":[
		{"role_id":3,"permission_id":1,"granted":false},
		{"permission_id":2,"granted":true},
		{"permission_id":5,"granted":true}]}`
	w := doJSON(r, http.MethodPut, "/roles/3/permissions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	if got := rec.actions(); len(got) != 1 || got[0] != services.ActionRolePermissionsUpdated {
		t.Errorf("audit actions = %v", got)
	}
}

func TestUpdateRolePermissions_AboveCallerLevel(t *testing.T) {
	mock, rec, r := newRolesRouter(t)
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(2).WillReturnRows(roleRow(2, "Diretor", 80))

	w := doJSON(r, http.MethodPut, "/roles/2/permissions", `{"permissions":[]}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if len(rec.events) != 0 {
		t.Error("no audit entry for a refused change")
	}
}

func TestDeleteRole_InUse(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(3).WillReturnRows(roleRow(3, "Corretor", 10))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM user_role_assignments").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	w := doJSON(r, http.MethodDelete, "/roles/3", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if msg, _ := decodeBody(t, w)["error"].(string); !strings.Contains(msg, "2 usuário") {
		t.Errorf("error = %q, want the assignment count", msg)
	}
}

func TestCloneRole_EmptyName(t *testing.T) {
	_, _, r := newRolesRouter(t)

	w := doJSON(r, http.MethodPost, "/roles/3/clone", `{"name":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Permissions
// ---------------------------------------------------------------------------

func TestUpdatePermission2FA_Set(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	mock.ExpectExec("UPDATE permissions SET requires_2fa = \\$2").
		WithArgs(7, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPut, "/permissions/7/2fa", `{"requires_2fa":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["requires_2fa"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestUpdatePermission2FA_ToggleWhenAbsent(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	mock.ExpectQuery("UPDATE permissions SET requires_2fa = NOT requires_2fa").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"requires_2fa"}).AddRow(false))

	w := doJSON(r, http.MethodPut, "/permissions/7/2fa", `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if data := decodeBody(t, w)["data"].(map[string]interface{}); data["requires_2fa"] != false {
		t.Errorf("data = %v", data)
	}
}

func TestUpdatePermission2FA_NotFound(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	mock.ExpectExec("UPDATE permissions SET requires_2fa = \\$2").WillReturnResult(sqlmock.NewResult(0, 0))

	w := doJSON(r, http.MethodPut, "/permissions/99/2fa", `{"requires_2fa":false}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Role users and bulk grants
// ---------------------------------------------------------------------------

func TestGetRoleUsers(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	now := time.Now()
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(3).WillReturnRows(roleRow(3, "Corretor", 10))
	mock.ExpectQuery("FROM user_role_assignments ura").WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "nome", "ativo", "last_login",
			"assignment_active", "assigned_at", "assigned_by", "assigned_by_username",
		}).AddRow("u-1", "ana", "ana@example.com", "Ana", true, nil, true, now, nil, nil))

	w := doJSON(r, http.MethodGet, "/roles/3/users", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["total"] != float64(1) {
		t.Errorf("total = %v, want 1", data["total"])
	}
}

func TestGetRoleUsers_NotFound(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WillReturnRows(sqlmock.NewRows(roleCols))

	if w := doJSON(r, http.MethodGet, "/roles/9/users", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestBulkUpdatePermissions_Reset(t *testing.T) {
	mock, rec, r := newRolesRouter(t)
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(3).WillReturnRows(roleRow(3, "Corretor", 10))
	mock.ExpectQuery("SELECT permission_id FROM role_permissions").WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}).AddRow(5))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM role_permissions").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_roles SET updated_at").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doJSON(r, http.MethodPost, "/roles/bulk-permissions", `{"operation":"reset","roleIds":[3]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := rec.actions(); len(got) != 1 || got[0] != services.ActionRolePermissionsUpdated {
		t.Errorf("audit actions = %v", got)
	}
}

func TestBulkUpdatePermissions_ApplyNeedsPermissions(t *testing.T) {
	_, _, r := newRolesRouter(t)
	w := doJSON(r, http.MethodPost, "/roles/bulk-permissions", `{"operation":"apply","roleIds":[3]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBulkUpdatePermissions_UnknownOperation(t *testing.T) {
	_, _, r := newRolesRouter(t)
	w := doJSON(r, http.MethodPost, "/roles/bulk-permissions", `{"operation":"template","roleIds":[3]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCloneRole_SystemRoleRejected(t *testing.T) {
	mock, _, r := newRolesRouter(t)
	now := time.Now()
	mock.ExpectQuery("FROM user_roles WHERE id = \\$1").WithArgs(1).
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow(1, "Super Admin", nil, 0, false, true, true, now, now))

	w := doJSON(r, http.MethodPost, "/roles/1/clone", `{"name":"Cópia"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
