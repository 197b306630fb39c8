package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/safego"
)

// AutoPurger deletes audit and login log rows older than days.
type AutoPurger interface {
	AutoPurge(ctx context.Context, days int) (models.PurgeResult, error)
}

// AuditAutoPurge runs the retention purge on a schedule when
// audit.auto_purge.enabled is set. Every run writes its own AUTO_PURGE_LOGS
// audit entry through the purger.
type AuditAutoPurge struct {
	purger   AutoPurger
	days     int
	interval time.Duration
	enabled  bool

	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewAuditAutoPurge creates the job from the audit config. Retention defaults
// to 90 days and the interval to 24 hours.
func NewAuditAutoPurge(purger AutoPurger, cfg *config.AuditConfig) *AuditAutoPurge {
	days := cfg.RetentionDays
	if days <= 0 {
		days = 90
	}
	interval := cfg.AutoPurge.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditAutoPurge{
		purger:   purger,
		days:     days,
		interval: interval,
		enabled:  cfg.AutoPurge.Enabled,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop in the background. It is a no-op when disabled.
func (j *AuditAutoPurge) Start(ctx context.Context) {
	if !j.enabled {
		slog.Info("audit auto purge disabled (audit.auto_purge.enabled=false)")
		return
	}
	j.started = true
	safego.Go("audit-auto-purge", func() {
		defer close(j.done)
		runEvery(ctx, j.interval, j.stopChan, func() { j.RunOnce(ctx) })
	})
	slog.Info("audit auto purge started", "interval", j.interval, "retention_days", j.days)
}

// Stop ends the loop and waits for an in-flight purge to finish.
func (j *AuditAutoPurge) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	if j.started {
		<-j.done
	}
}

// RunOnce performs a single purge.
func (j *AuditAutoPurge) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := j.purger.AutoPurge(ctx, j.days); err != nil {
		slog.Error("audit auto purge failed", "retention_days", j.days, "error", err)
	}
}
