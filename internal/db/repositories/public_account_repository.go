// public_account_repository.go implements PublicAccountRepository, looking up the
// cliente and proprietario accounts used by the public login flow.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// PublicAccountRepository handles cliente/proprietario lookups
type PublicAccountRepository struct {
	db *sqlx.DB
}

// NewPublicAccountRepository creates a new PublicAccountRepository
func NewPublicAccountRepository(db *sqlx.DB) *PublicAccountRepository {
	return &PublicAccountRepository{db: db}
}

// publicTables maps a user type to its table. Table names never come from input.
var publicTables = map[string]string{
	models.UserTypeCliente:      "clientes",
	models.UserTypeProprietario: "proprietarios",
}

// GetByEmail retrieves a public account of the given type by email
func (r *PublicAccountRepository) GetByEmail(ctx context.Context, userType, email string) (*models.PublicAccount, error) {
	table, ok := publicTables[userType]
	if !ok {
		return nil, fmt.Errorf("unknown public user type %q", userType)
	}

	// #nosec G201 -- table comes from the fixed publicTables map
	query := fmt.Sprintf(`SELECT uuid, nome, email, password, two_fa_enabled, created_at FROM %s WHERE email = $1`, table)

	var acct models.PublicAccount
	err := r.db.GetContext(ctx, &acct, query, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acct.UserType = userType
	return &acct, nil
}
