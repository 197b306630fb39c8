package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var errDB = errors.New("db error")

var userWithRoleCols = []string{
	"id", "username", "email", "nome", "password_hash", "ativo", "two_fa_enabled",
	"last_login", "created_at", "updated_at",
	"id", "name", "level", "requires_2fa",
}

func sampleUserWithRoleRow() *sqlmock.Rows {
	return sqlmock.NewRows(userWithRoleCols).
		AddRow("user-1", "alice", "alice@example.com", "Alice", "$2a$10$hash", true, false,
			nil, time.Now(), time.Now(),
			3, "Corretor", 10, true)
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetUserWithRoleByLogin
// ---------------------------------------------------------------------------

func TestGetUserWithRoleByLogin_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("WHERE u.username = \\$1 OR u.email = \\$1").
		WithArgs("alice").
		WillReturnRows(sampleUserWithRoleRow())

	u, err := repo.GetUserWithRoleByLogin(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil {
		t.Fatal("expected user, got nil")
	}
	if u.Username != "alice" || u.Role() != "Corretor" || u.Level() != 10 {
		t.Errorf("user = %s/%s/%d, want alice/Corretor/10", u.Username, u.Role(), u.Level())
	}
	if !u.RequiresTwoFactor() {
		t.Error("RequiresTwoFactor() = false, want true from role flag")
	}
}

func TestGetUserWithRoleByLogin_NoRole(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("FROM users u").
		WillReturnRows(sqlmock.NewRows(userWithRoleCols).
			AddRow("user-2", "bob", "bob@example.com", "Bob", "$2a$10$hash", true, false,
				nil, time.Now(), time.Now(), nil, nil, nil, nil))

	u, err := repo.GetUserWithRoleByLogin(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RoleName != nil || u.Role() != "" {
		t.Errorf("Role() = %q, want empty", u.Role())
	}
}

func TestGetUserWithRoleByLogin_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("FROM users u").
		WillReturnRows(sqlmock.NewRows(userWithRoleCols))

	u, err := repo.GetUserWithRoleByLogin(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil, got %+v", u)
	}
}

func TestGetUserWithRoleByLogin_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("FROM users u").WillReturnError(errDB)

	if _, err := repo.GetUserWithRoleByLogin(context.Background(), "alice"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetUserWithRoleByID / UpdateLastLogin
// ---------------------------------------------------------------------------

func TestGetUserWithRoleByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("WHERE u.id::text = \\$1").
		WithArgs("user-1").
		WillReturnRows(sampleUserWithRoleRow())

	u, err := repo.GetUserWithRoleByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.ID != "user-1" {
		t.Errorf("user = %+v", u)
	}
}

func TestUpdateLastLogin(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users SET last_login").
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateLastLogin(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateLastLogin_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users SET last_login").WillReturnError(errDB)

	if err := repo.UpdateLastLogin(context.Background(), "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// SetTwoFactorEnabled
// ---------------------------------------------------------------------------

func TestSetTwoFactorEnabled_Enable(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET two_fa_enabled").
		WithArgs("user-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	found, err := repo.SetTwoFactorEnabled(context.Background(), "user-1", true)
	if err != nil || !found {
		t.Fatalf("SetTwoFactorEnabled() = (%v, %v), want (true, nil)", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetTwoFactorEnabled_DisableBurnsOutstandingCodes(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET two_fa_enabled").
		WithArgs("user-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_2fa_codes SET used = true WHERE user_id::text = \\$1 AND used = false").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	found, err := repo.SetTwoFactorEnabled(context.Background(), "user-1", false)
	if err != nil || !found {
		t.Fatalf("SetTwoFactorEnabled() = (%v, %v), want (true, nil)", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetTwoFactorEnabled_UnknownUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET two_fa_enabled").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	found, err := repo.SetTwoFactorEnabled(context.Background(), "nope", false)
	if err != nil || found {
		t.Errorf("SetTwoFactorEnabled() = (%v, %v), want (false, nil)", found, err)
	}
}

func TestSetTwoFactorEnabled_CodeInvalidationFailureRollsBack(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET two_fa_enabled").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_2fa_codes").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if _, err := repo.SetTwoFactorEnabled(context.Background(), "user-1", false); err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
