// session_repository.go implements SessionRepository. Sessions are never marked
// revoked: revocation deletes the row, and expiry is evaluated against expires_at
// by every query that cares about liveness. Ids arrive from URLs, so lookups
// compare id::text and a malformed id simply matches nothing.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// Session list date filters.
const (
	SessionPeriodToday  = "today"
	SessionPeriodWeek   = "week"
	SessionPeriodMonth  = "month"
	SessionPeriodCustom = "custom"
)

// SessionRepository handles session registry database operations
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SessionFilters contains filters for listing sessions
type SessionFilters struct {
	Period    string // today, week, month, custom; empty for no date filter
	StartDate *time.Time
	EndDate   *time.Time
	UserID    *string
}

const sessionWithUserSelect = `
	SELECT s.id, s.user_id, s.refresh_token, s.expires_at, s.created_at, s.last_used_at,
	       s.ip_address, s.user_agent, u.username, u.email, u.nome
	FROM user_sessions s
	JOIN users u ON u.id = s.user_id`

// CreateSession inserts a new session row
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO user_sessions (id, user_id, refresh_token, expires_at, created_at, last_used_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.RefreshToken, s.ExpiresAt, s.CreatedAt, s.LastUsedAt, s.IPAddress, s.UserAgent)
	return err
}

// ListSessions returns sessions matching the filters, newest first, plus the total count
func (r *SessionRepository) ListSessions(ctx context.Context, filters SessionFilters, limit, offset int) ([]models.SessionWithUser, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	switch filters.Period {
	case SessionPeriodToday:
		where += ` AND s.created_at >= CURRENT_DATE AND s.expires_at > NOW()`
	case SessionPeriodWeek:
		where += ` AND s.created_at >= NOW() - INTERVAL '7 days'`
	case SessionPeriodMonth:
		where += ` AND s.created_at >= NOW() - INTERVAL '30 days'`
	case SessionPeriodCustom:
		if filters.StartDate != nil {
			where += fmt.Sprintf(` AND s.created_at >= $%d`, paramIndex)
			args = append(args, *filters.StartDate)
			paramIndex++
		}
		if filters.EndDate != nil {
			where += fmt.Sprintf(` AND s.created_at <= $%d`, paramIndex)
			args = append(args, *filters.EndDate)
			paramIndex++
		}
	}

	if filters.UserID != nil {
		where += fmt.Sprintf(` AND s.user_id::text = $%d`, paramIndex)
		args = append(args, *filters.UserID)
		paramIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM user_sessions s`+where, args...); err != nil {
		return nil, 0, err
	}

	query := sessionWithUserSelect + where +
		fmt.Sprintf(` ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	sessions := make([]models.SessionWithUser, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// GetSession retrieves one session with its owner
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*models.SessionWithUser, error) {
	var s models.SessionWithUser
	err := r.db.GetContext(ctx, &s, sessionWithUserSelect+` WHERE s.id::text = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IsActive reports whether the session row exists and has not expired
func (r *SessionRepository) IsActive(ctx context.Context, id string) (bool, error) {
	var active bool
	err := r.db.GetContext(ctx, &active,
		`SELECT EXISTS (SELECT 1 FROM user_sessions WHERE id::text = $1 AND expires_at > NOW())`, id)
	return active, err
}

// DeleteSession hard-deletes one session and returns the removed row, or nil
// when no such session existed.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.db.GetContext(ctx, &s, `
		DELETE FROM user_sessions WHERE id::text = $1
		RETURNING id, user_id, refresh_token, expires_at, created_at, last_used_at, ip_address, user_agent`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Bulk revoke targets.
const (
	BulkTargetSelected = "selected"
	BulkTargetAll      = "all"
	BulkTargetUser     = "user"
)

// BulkDeleteSessions removes sessions in one transaction and returns exactly the
// rows that were deleted:
//   - selected: the intersection of ids with existing sessions
//   - all: every session that has not expired
//   - user: every session of userID
func (r *SessionRepository) BulkDeleteSessions(ctx context.Context, target string, ids []string, userID string) ([]models.Session, error) {
	var (
		query string
		args  []interface{}
	)
	const returning = ` RETURNING id, user_id, refresh_token, expires_at, created_at, last_used_at, ip_address, user_agent`

	switch target {
	case BulkTargetSelected:
		query = `DELETE FROM user_sessions WHERE id::text = ANY($1)` + returning
		args = []interface{}{pq.Array(ids)}
	case BulkTargetAll:
		query = `DELETE FROM user_sessions WHERE expires_at > NOW()` + returning
	case BulkTargetUser:
		query = `DELETE FROM user_sessions WHERE user_id::text = $1` + returning
		args = []interface{}{userID}
	default:
		return nil, fmt.Errorf("invalid bulk revoke target %q", target)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // nolint:errcheck

	deleted := make([]models.Session, 0)
	if err := tx.SelectContext(ctx, &deleted, query, args...); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}
