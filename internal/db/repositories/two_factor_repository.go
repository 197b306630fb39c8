// two_factor_repository.go implements TwoFactorRepository for single-use step-up
// codes. Validation is a single conditional UPDATE so a code can be claimed at
// most once, even under concurrent submissions.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// TwoFactorRepository handles user_2fa_codes operations
type TwoFactorRepository struct {
	db *sqlx.DB
}

// NewTwoFactorRepository creates a new TwoFactorRepository
func NewTwoFactorRepository(db *sqlx.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// CodeSubject identifies the owner of a code: a staff user ID when UserType is
// "admin", otherwise a public account UUID.
type CodeSubject struct {
	UserType string
	ID       string
}

// subjectClause matches the owner in $1 (user type) and $2 (id).
const subjectClause = `user_type = $1 AND COALESCE(user_id, public_user_uuid) = $2::uuid`

// InvalidateOutstanding marks every unused code of the subject and method as used
func (r *TwoFactorRepository) InvalidateOutstanding(ctx context.Context, subject CodeSubject, method string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_2fa_codes SET used = true WHERE `+subjectClause+` AND method = $3 AND used = false`,
		subject.UserType, subject.ID, method)
	return err
}

// CreateCode stores a freshly issued code and fills its ID
func (r *TwoFactorRepository) CreateCode(ctx context.Context, code *models.TwoFactorCode) error {
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO user_2fa_codes (user_id, public_user_uuid, user_type, code, method, expires_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return r.db.QueryRowxContext(ctx, query,
		code.UserID, code.PublicUserUUID, code.UserType, code.Code, code.Method,
		code.ExpiresAt, code.IPAddress, code.UserAgent, code.CreatedAt,
	).Scan(&code.ID)
}

// ClaimCode atomically consumes a matching, unused, unexpired code. It returns
// false when no such code exists; a second claim of the same code always fails.
func (r *TwoFactorRepository) ClaimCode(ctx context.Context, subject CodeSubject, code, method string) (bool, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `
		UPDATE user_2fa_codes SET used = true
		WHERE `+subjectClause+` AND code = $3 AND method = $4
		  AND used = false AND expires_at > NOW()
		RETURNING id`,
		subject.UserType, subject.ID, code, method)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AttemptResult describes the outstanding code after a failed attempt
type AttemptResult struct {
	Found     bool // an unused, unexpired code existed
	Attempts  int
	Exhausted bool // the code was invalidated by this attempt
}

// RecordFailedAttempt increments the attempt counter of the subject's outstanding
// codes and invalidates any that reach maxAttempts.
func (r *TwoFactorRepository) RecordFailedAttempt(ctx context.Context, subject CodeSubject, method string, maxAttempts int) (AttemptResult, error) {
	rows, err := r.db.QueryxContext(ctx, `
		UPDATE user_2fa_codes
		SET attempts = attempts + 1,
		    used = (attempts + 1 >= $4)
		WHERE `+subjectClause+` AND method = $3 AND used = false AND expires_at > NOW()
		RETURNING attempts, used`,
		subject.UserType, subject.ID, method, maxAttempts)
	if err != nil {
		return AttemptResult{}, err
	}
	defer rows.Close()

	var res AttemptResult
	for rows.Next() {
		var attempts int
		var used bool
		if err := rows.Scan(&attempts, &used); err != nil {
			return AttemptResult{}, err
		}
		res.Found = true
		if attempts > res.Attempts {
			res.Attempts = attempts
		}
		if used {
			res.Exhausted = true
		}
	}
	return res, rows.Err()
}

// DeleteExpired removes codes that expired or were consumed before the cutoff
func (r *TwoFactorRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_2fa_codes WHERE expires_at < $1 OR (used = true AND created_at < $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
