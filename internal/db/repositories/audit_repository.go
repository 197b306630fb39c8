// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving audit log entries, actor-type statistics, and the audited purge path.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// Purge actions. Entries with these actions survive every purge.
const (
	ActionPurgeLogs            = "PURGE_LOGS"
	ActionPurgeLogsWithArchive = "PURGE_LOGS_WITH_ARCHIVE"
	ActionAutoPurgeLogs        = "AUTO_PURGE_LOGS"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	UserID    *string
	Action    *string
	Search    *string // matched against action, resource and username
	StartDate *time.Time
	EndDate   *time.Time
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	// Marshal details to JSONB
	var detailsJSON []byte
	var err error
	if log.Details != nil {
		detailsJSON, err = json.Marshal(log.Details)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (user_id, public_user_uuid, user_type, action, resource, resource_id, details, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		log.UserID,
		log.PublicUserUUID,
		log.UserType,
		log.Action,
		log.Resource,
		log.ResourceID,
		detailsJSON,
		log.IPAddress,
		log.UserAgent,
		log.Timestamp,
	).Scan(&log.ID)
}

// buildAuditWhere renders the filter clause and its arguments, starting at $1.
func buildAuditWhere(filters AuditFilters) (string, []interface{}, int) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.UserID != nil {
		where += fmt.Sprintf(` AND a.user_id::text = $%d`, paramIndex)
		args = append(args, *filters.UserID)
		paramIndex++
	}

	if filters.Action != nil {
		where += fmt.Sprintf(` AND a.action = $%d`, paramIndex)
		args = append(args, *filters.Action)
		paramIndex++
	}

	if filters.Search != nil {
		where += fmt.Sprintf(` AND (a.action ILIKE $%d OR a.resource ILIKE $%d OR u.username ILIKE $%d)`,
			paramIndex, paramIndex, paramIndex)
		args = append(args, "%"+*filters.Search+"%")
		paramIndex++
	}

	if filters.StartDate != nil {
		where += fmt.Sprintf(` AND a.timestamp >= $%d`, paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}

	if filters.EndDate != nil {
		where += fmt.Sprintf(` AND a.timestamp <= $%d`, paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	return where, args, paramIndex
}

// ListAuditLogs retrieves audit logs with optional filters and pagination
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where, args, paramIndex := buildAuditWhere(filters)

	countQuery := `SELECT COUNT(*) FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT a.id, a.user_id, a.public_user_uuid, a.user_type, a.action, a.resource, a.resource_id,
		       a.details, a.ip_address, a.user_agent, a.timestamp, u.username, u.nome
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id` + where +
		fmt.Sprintf(` ORDER BY a.timestamp DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log := &models.AuditLog{}
		var detailsJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.PublicUserUUID,
			&log.UserType,
			&log.Action,
			&log.Resource,
			&log.ResourceID,
			&detailsJSON,
			&log.IPAddress,
			&log.UserAgent,
			&log.Timestamp,
			&log.Username,
			&log.UserName,
		)
		if err != nil {
			return nil, 0, err
		}

		if detailsJSON != nil {
			if err := json.Unmarshal(detailsJSON, &log.Details); err != nil {
				return nil, 0, err
			}
		}

		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// AuditStats counts entries matching the filters by actor type
func (r *AuditRepository) AuditStats(ctx context.Context, filters AuditFilters) (models.AuditStats, error) {
	where, args, _ := buildAuditWhere(filters)

	query := `
		SELECT COALESCE(a.user_type, ''), COUNT(*)
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id` + where + `
		GROUP BY COALESCE(a.user_type, '')`

	var stats models.AuditStats
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var userType string
		var count int
		if err := rows.Scan(&userType, &count); err != nil {
			return stats, err
		}
		stats.Add(userType, count)
	}
	return stats, rows.Err()
}

// Purge records the purge entry, then deletes login and audit rows older than
// cutoff in one transaction. The entry is committed before any row is removed
// and purge entries themselves are never deleted.
func (r *AuditRepository) Purge(ctx context.Context, cutoff time.Time, entry *models.AuditLog) (models.PurgeResult, error) {
	result := models.PurgeResult{Cutoff: cutoff}

	if err := r.CreateAuditLog(ctx, entry); err != nil {
		return result, fmt.Errorf("failed to record purge: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback() // nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM login_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return result, err
	}
	if result.LoginDeleted, err = res.RowsAffected(); err != nil {
		return result, err
	}

	res, err = tx.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE timestamp < $1 AND action NOT IN ($2, $3, $4)`,
		cutoff, ActionPurgeLogs, ActionPurgeLogsWithArchive, ActionAutoPurgeLogs)
	if err != nil {
		return result, err
	}
	if result.AuditDeleted, err = res.RowsAffected(); err != nil {
		return result, err
	}

	return result, tx.Commit()
}

// PurgeStats counts the rows older than 7, 30 and 90 days in both log tables
func (r *AuditRepository) PurgeStats(ctx context.Context) (models.PurgeStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM audit_logs),
			(SELECT COUNT(*) FROM audit_logs WHERE timestamp < NOW() - INTERVAL '7 days'),
			(SELECT COUNT(*) FROM audit_logs WHERE timestamp < NOW() - INTERVAL '30 days'),
			(SELECT COUNT(*) FROM audit_logs WHERE timestamp < NOW() - INTERVAL '90 days'),
			(SELECT COUNT(*) FROM login_logs),
			(SELECT COUNT(*) FROM login_logs WHERE created_at < NOW() - INTERVAL '7 days'),
			(SELECT COUNT(*) FROM login_logs WHERE created_at < NOW() - INTERVAL '30 days'),
			(SELECT COUNT(*) FROM login_logs WHERE created_at < NOW() - INTERVAL '90 days')`

	var s models.PurgeStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.AuditTotal, &s.AuditOlder7, &s.AuditOlder30, &s.AuditOlder90,
		&s.LoginTotal, &s.LoginOlder7, &s.LoginOlder30, &s.LoginOlder90,
	)
	return s, err
}
