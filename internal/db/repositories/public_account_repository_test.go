package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var publicAccountCols = []string{"uuid", "nome", "email", "password", "two_fa_enabled", "created_at"}

func newPublicAccountRepo(t *testing.T) (*PublicAccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPublicAccountRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestPublicGetByEmail_Cliente(t *testing.T) {
	repo, mock := newPublicAccountRepo(t)
	mock.ExpectQuery("FROM clientes WHERE email").
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows(publicAccountCols).
			AddRow("5f0c7c1e-0000-4000-8000-000000000001", "Ana", "ana@example.com", "$2a$10$hash", false, time.Now()))

	acct, err := repo.GetByEmail(context.Background(), "cliente", "ana@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct == nil || acct.UserType != "cliente" || acct.PasswordHash == nil {
		t.Errorf("account = %+v", acct)
	}
}

func TestPublicGetByEmail_ProprietarioWithoutPassword(t *testing.T) {
	repo, mock := newPublicAccountRepo(t)
	mock.ExpectQuery("FROM proprietarios WHERE email").
		WillReturnRows(sqlmock.NewRows(publicAccountCols).
			AddRow("5f0c7c1e-0000-4000-8000-000000000002", "Paulo", "paulo@example.com", nil, true, time.Now()))

	acct, err := repo.GetByEmail(context.Background(), "proprietario", "paulo@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.PasswordHash != nil {
		t.Error("PasswordHash should be nil for an account without password")
	}
}

func TestPublicGetByEmail_NotFound(t *testing.T) {
	repo, mock := newPublicAccountRepo(t)
	mock.ExpectQuery("FROM clientes").WillReturnRows(sqlmock.NewRows(publicAccountCols))

	acct, err := repo.GetByEmail(context.Background(), "cliente", "x@example.com")
	if err != nil || acct != nil {
		t.Errorf("GetByEmail() = (%v, %v), want (nil, nil)", acct, err)
	}
}

func TestPublicGetByEmail_UnknownType(t *testing.T) {
	repo, _ := newPublicAccountRepo(t)
	if _, err := repo.GetByEmail(context.Background(), "users; DROP TABLE users", "x"); err == nil {
		t.Error("expected error for unknown user type")
	}
}
