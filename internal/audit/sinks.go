package audit

import (
	"context"

	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
)

// LoginLogSink writes authentication events to login_logs.
type LoginLogSink struct {
	repo *repositories.LoginLogRepository
}

// NewLoginLogSink creates a LoginLogSink
func NewLoginLogSink(repo *repositories.LoginLogRepository) *LoginLogSink {
	return &LoginLogSink{repo: repo}
}

func (s *LoginLogSink) Name() string { return "login_log" }

// Write ignores events outside the login flows.
func (s *LoginLogSink) Write(ctx context.Context, e Event) error {
	if !e.IsAuth() {
		return nil
	}

	userID := e.UserID
	if e.Kind == KindPublicAuth {
		userID = e.PublicUserUUID
	}

	return s.repo.CreateLoginLog(ctx, &models.LoginLog{
		UserID:        optional(userID),
		Username:      optional(e.Username),
		Action:        e.Action,
		IPAddress:     optional(e.IPAddress),
		UserAgent:     optional(e.UserAgent),
		TwoFAUsed:     e.TwoFAUsed,
		Success:       e.Success,
		FailureReason: optional(e.FailureReason),
		CreatedAt:     e.Timestamp,
	})
}

// AuditLogSink writes every event to audit_logs with a normalized action.
type AuditLogSink struct {
	repo *repositories.AuditRepository
}

// NewAuditLogSink creates an AuditLogSink
func NewAuditLogSink(repo *repositories.AuditRepository) *AuditLogSink {
	return &AuditLogSink{repo: repo}
}

func (s *AuditLogSink) Name() string { return "audit_log" }

func (s *AuditLogSink) Write(ctx context.Context, e Event) error {
	return s.repo.CreateAuditLog(ctx, ToAuditLog(e))
}

// ToAuditLog converts an event into the audit_logs row it is stored as.
func ToAuditLog(e Event) *models.AuditLog {
	action, resource := Normalize(e)
	return &models.AuditLog{
		UserID:         optional(e.UserID),
		PublicUserUUID: optional(e.PublicUserUUID),
		UserType:       optional(e.UserType),
		Action:         action,
		Resource:       resource,
		ResourceID:     optional(e.ResourceID),
		Details:        auditDetails(e),
		IPAddress:      optional(e.IPAddress),
		UserAgent:      optional(e.UserAgent),
		Timestamp:      e.Timestamp,
	}
}

// MonitorSink feeds login outcomes into the security monitor.
type MonitorSink struct {
	monitor *SecurityMonitor
}

// NewMonitorSink creates a MonitorSink
func NewMonitorSink(m *SecurityMonitor) *MonitorSink {
	return &MonitorSink{monitor: m}
}

func (s *MonitorSink) Name() string { return "security_monitor" }

func (s *MonitorSink) Write(ctx context.Context, e Event) error {
	if !e.IsAuth() {
		return nil
	}
	switch e.Action {
	case AuthLogin, AuthLoginFailed:
	default:
		return nil
	}

	userID := e.UserID
	if userID == "" {
		userID = e.PublicUserUUID
	}
	s.monitor.LogLoginAttempt(ctx, e.IPAddress, e.UserAgent, e.Success, userID)
	return nil
}

// ShipperSink forwards every event to one external shipper.
type ShipperSink struct {
	name    string
	shipper Shipper
}

// NewShipperSink wraps shipper as a bus sink reported as "shipper-<name>".
func NewShipperSink(name string, shipper Shipper) *ShipperSink {
	return &ShipperSink{name: name, shipper: shipper}
}

func (s *ShipperSink) Name() string { return "shipper-" + s.name }

func (s *ShipperSink) Write(ctx context.Context, e Event) error {
	return s.shipper.Ship(ctx, NewLogEntry(e))
}

// Close releases the underlying shipper.
func (s *ShipperSink) Close() error {
	return s.shipper.Close()
}
