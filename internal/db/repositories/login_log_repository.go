// login_log_repository.go implements LoginLogRepository for the authentication
// attempt stream.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// LoginLogRepository handles login_logs operations
type LoginLogRepository struct {
	db *sql.DB
}

// NewLoginLogRepository creates a new LoginLogRepository
func NewLoginLogRepository(db *sql.DB) *LoginLogRepository {
	return &LoginLogRepository{db: db}
}

// LoginLogFilters contains filters for querying login logs
type LoginLogFilters struct {
	Username  *string // substring match
	Action    *string
	TwoFAUsed *bool
	IPAddress *string
	StartDate *time.Time
	EndDate   *time.Time
}

// CreateLoginLog appends one authentication attempt
func (r *LoginLogRepository) CreateLoginLog(ctx context.Context, l *models.LoginLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO login_logs (user_id, username, action, ip_address, user_agent, two_fa_used, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		l.UserID,
		l.Username,
		l.Action,
		l.IPAddress,
		l.UserAgent,
		l.TwoFAUsed,
		l.Success,
		l.FailureReason,
		l.CreatedAt,
	).Scan(&l.ID)
}

// ListLoginLogs retrieves login logs with optional filters and pagination
func (r *LoginLogRepository) ListLoginLogs(ctx context.Context, filters LoginLogFilters, limit, offset int) ([]*models.LoginLog, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.Username != nil {
		where += fmt.Sprintf(` AND username ILIKE $%d`, paramIndex)
		args = append(args, "%"+*filters.Username+"%")
		paramIndex++
	}

	if filters.Action != nil {
		where += fmt.Sprintf(` AND action = $%d`, paramIndex)
		args = append(args, *filters.Action)
		paramIndex++
	}

	if filters.TwoFAUsed != nil {
		where += fmt.Sprintf(` AND two_fa_used = $%d`, paramIndex)
		args = append(args, *filters.TwoFAUsed)
		paramIndex++
	}

	if filters.IPAddress != nil {
		where += fmt.Sprintf(` AND ip_address = $%d`, paramIndex)
		args = append(args, *filters.IPAddress)
		paramIndex++
	}

	if filters.StartDate != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}

	if filters.EndDate != nil {
		where += fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM login_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, username, action, ip_address, user_agent, two_fa_used, success, failure_reason, created_at
		FROM login_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.LoginLog, 0)
	for rows.Next() {
		l := &models.LoginLog{}
		if err := rows.Scan(
			&l.ID,
			&l.UserID,
			&l.Username,
			&l.Action,
			&l.IPAddress,
			&l.UserAgent,
			&l.TwoFAUsed,
			&l.Success,
			&l.FailureReason,
			&l.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}

	return logs, total, rows.Err()
}
