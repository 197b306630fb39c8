// Package jobs holds the background work started by the server: periodic
// housekeeping of verification codes, scheduled audit log purges and the SMTP
// transport used to deliver codes.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/netimobiliaria/admin-core/internal/safego"
)

// CodeSweeper deletes verification codes that can no longer be claimed.
type CodeSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TwoFactorCleanup periodically removes expired and consumed 2FA codes. It
// touches only code rows; sessions are never swept by a background job.
type TwoFactorCleanup struct {
	codes    CodeSweeper
	interval time.Duration
	now      func() time.Time

	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewTwoFactorCleanup creates the job. interval defaults to one hour.
func NewTwoFactorCleanup(codes CodeSweeper, interval time.Duration) *TwoFactorCleanup {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TwoFactorCleanup{
		codes:    codes,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop in the background. It sweeps once immediately.
func (j *TwoFactorCleanup) Start(ctx context.Context) {
	j.started = true
	safego.Go("two-factor-cleanup", func() {
		defer close(j.done)
		runEvery(ctx, j.interval, j.stopChan, func() { j.RunOnce(ctx) })
	})
	slog.Info("2FA code cleanup started", "interval", j.interval)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (j *TwoFactorCleanup) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	if j.started {
		<-j.done
	}
}

// RunOnce performs a single sweep.
func (j *TwoFactorCleanup) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := j.codes.DeleteExpired(ctx, j.now())
	if err != nil {
		slog.Error("2FA code cleanup failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("2FA code cleanup", "deleted", n)
	}
	return n
}

// runEvery calls fn immediately and then on every tick until ctx ends or stop
// is closed.
func runEvery(ctx context.Context, interval time.Duration, stop <-chan struct{}, fn func()) {
	fn()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
