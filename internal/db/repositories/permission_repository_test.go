package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var permissionDetailCols = []string{
	"id", "feature_id", "action", "description", "requires_2fa", "created_at",
	"feature_name", "feature_slug", "category_name", "category_slug",
}

func newPermissionRepo(t *testing.T) (*PermissionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPermissionRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func samplePermissionRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(permissionDetailCols).
		AddRow(10, 4, "read", nil, false, now, "Imóveis", "imoveis", "Imóveis", "imoveis").
		AddRow(11, 4, "delete", "Excluir imóvel", true, now, "Imóveis", "imoveis", "Imóveis", "imoveis")
}

// ---------------------------------------------------------------------------
// ListPermissions / GetPermission / FindPermission
// ---------------------------------------------------------------------------

func TestListPermissions_Success(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectQuery("FROM permissions p").WillReturnRows(samplePermissionRows())

	perms, err := repo.ListPermissions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("len = %d, want 2", len(perms))
	}
	if perms[1].Action != "delete" || !perms[1].Requires2FA || perms[1].FeatureSlug != "imoveis" {
		t.Errorf("perms[1] = %+v", perms[1])
	}
	if perms[1].Description == nil || *perms[1].Description != "Excluir imóvel" {
		t.Errorf("Description = %v", perms[1].Description)
	}
}

func TestListPermissions_DBError(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectQuery("FROM permissions p").WillReturnError(errDB)

	if _, err := repo.ListPermissions(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestGetPermission_NotFound(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectQuery("WHERE p.id = \\$1").
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows(permissionDetailCols))

	p, err := repo.GetPermission(context.Background(), 404)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestFindPermission_Found(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	now := time.Now()
	mock.ExpectQuery("WHERE sf.slug = \\$1 AND p.action = \\$2").
		WithArgs("imoveis", "delete").
		WillReturnRows(sqlmock.NewRows(permissionDetailCols).
			AddRow(11, 4, "delete", nil, true, now, "Imóveis", "imoveis", nil, nil))

	p, err := repo.FindPermission(context.Background(), "imoveis", "delete")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || !p.Requires2FA {
		t.Errorf("permission = %+v, want requires_2fa", p)
	}
}

// ---------------------------------------------------------------------------
// SetRequires2FA / ToggleRequires2FA
// ---------------------------------------------------------------------------

func TestSetRequires2FA(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectExec("UPDATE permissions SET requires_2fa").
		WithArgs(11, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := repo.SetRequires2FA(context.Background(), 11, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("found = false, want true")
	}
}

func TestSetRequires2FA_Missing(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectExec("UPDATE permissions SET requires_2fa").
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.SetRequires2FA(context.Background(), 404, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("found = true for a missing permission")
	}
}

func TestToggleRequires2FA(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectQuery("SET requires_2fa = NOT requires_2fa").
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"requires_2fa"}).AddRow(false))

	value, found, err := repo.ToggleRequires2FA(context.Background(), 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || value {
		t.Errorf("toggle = (%v, %v), want (false, true)", value, found)
	}
}

func TestToggleRequires2FA_Missing(t *testing.T) {
	repo, mock := newPermissionRepo(t)
	mock.ExpectQuery("SET requires_2fa = NOT requires_2fa").
		WillReturnRows(sqlmock.NewRows([]string{"requires_2fa"}))

	_, found, err := repo.ToggleRequires2FA(context.Background(), 404)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("found = true for a missing permission")
	}
}
