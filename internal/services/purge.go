package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

const (
	// ResourceAuditLogs is the resource recorded on purge entries.
	ResourceAuditLogs = "audit_logs"
	// MaxPurgeDays bounds the retention window accepted from operators.
	MaxPurgeDays = 3650

	archivePageSize = 500
)

// PurgeService is the only deletion path for the login and audit logs
type PurgeService struct {
	repo     *repositories.AuditRepository
	archiver audit.Shipper // nil when archiving is not configured
	now      func() time.Time
}

// NewPurgeService creates a new PurgeService. archiver receives a copy of every
// audit row removed by an archiving purge; pass nil to disable archiving.
func NewPurgeService(repo *repositories.AuditRepository, archiver audit.Shipper) *PurgeService {
	return &PurgeService{repo: repo, archiver: archiver, now: time.Now}
}

// Stats reports how many rows each common retention window would remove.
func (s *PurgeService) Stats(ctx context.Context) (models.PurgeStats, error) {
	return s.repo.PurgeStats(ctx)
}

// Purge removes log rows older than days. Its own audit entry is written before
// anything is deleted and survives every later purge.
func (s *PurgeService) Purge(ctx context.Context, days int, archive bool, actor auth.Actor) (models.PurgeResult, error) {
	if days < 1 || days > MaxPurgeDays {
		return models.PurgeResult{}, auth.NewError(auth.KindValidation,
			fmt.Sprintf("O período de retenção deve estar entre 1 e %d dias", MaxPurgeDays), nil)
	}
	if archive && s.archiver == nil {
		return models.PurgeResult{}, auth.NewError(auth.KindValidation, "Arquivamento não configurado", nil)
	}

	cutoff := s.now().AddDate(0, 0, -days)
	action := repositories.ActionPurgeLogs

	details := map[string]interface{}{
		"retentionDays": days,
		"cutoff":        cutoff,
		"archive":       archive,
	}
	if actor.Username != "" {
		details["username"] = actor.Username
	}
	if actor.TwoFAUsed {
		details["twoFaUsed"] = true
	}

	if archive {
		action = repositories.ActionPurgeLogsWithArchive
		archived, err := s.archiveBefore(ctx, cutoff)
		if err != nil {
			return models.PurgeResult{}, auth.NewError(auth.KindInternal, "Erro ao arquivar logs", err)
		}
		details["archived"] = archived
	}

	entry := &models.AuditLog{
		UserID:    optional(actor.UserID),
		UserType:  optional(models.UserTypeAdmin),
		Action:    action,
		Resource:  ResourceAuditLogs,
		Details:   details,
		IPAddress: optional(actor.IPAddress),
		UserAgent: optional(actor.UserAgent),
	}
	return s.run(ctx, cutoff, entry)
}

// AutoPurge is the unattended purge run by the scheduler.
func (s *PurgeService) AutoPurge(ctx context.Context, days int) (models.PurgeResult, error) {
	if days < 1 {
		return models.PurgeResult{}, fmt.Errorf("invalid retention of %d days", days)
	}
	cutoff := s.now().AddDate(0, 0, -days)
	entry := &models.AuditLog{
		Action:   repositories.ActionAutoPurgeLogs,
		Resource: ResourceAuditLogs,
		Details: map[string]interface{}{
			"retentionDays": days,
			"cutoff":        cutoff,
			"automatic":     true,
		},
	}
	return s.run(ctx, cutoff, entry)
}

func (s *PurgeService) run(ctx context.Context, cutoff time.Time, entry *models.AuditLog) (models.PurgeResult, error) {
	result, err := s.repo.Purge(ctx, cutoff, entry)
	if err != nil {
		return result, auth.NewError(auth.KindTransactionFailure, "Erro ao expurgar logs", err)
	}

	telemetry.AuditPurgedRowsTotal.WithLabelValues("audit_logs").Add(float64(result.AuditDeleted))
	telemetry.AuditPurgedRowsTotal.WithLabelValues("login_logs").Add(float64(result.LoginDeleted))
	slog.Info("logs purged",
		"action", entry.Action,
		"cutoff", cutoff,
		"audit_deleted", result.AuditDeleted,
		"login_deleted", result.LoginDeleted)
	return result, nil
}

// archiveBefore ships every audit row older than cutoff to the archiver.
func (s *PurgeService) archiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	filters := repositories.AuditFilters{EndDate: &cutoff}
	archived := 0
	for offset := 0; ; offset += archivePageSize {
		logs, _, err := s.repo.ListAuditLogs(ctx, filters, archivePageSize, offset)
		if err != nil {
			return archived, err
		}
		for _, l := range logs {
			if err := s.archiver.Ship(ctx, audit.EntryFromLog(l)); err != nil {
				return archived, err
			}
			archived++
		}
		if len(logs) < archivePageSize {
			return archived, nil
		}
	}
}
