package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// Audit action and resource for session revocation.
const (
	ActionSessionRevoked = "SESSION_REVOKED"
	ResourceSessions     = "user_sessions"
)

// SessionService manages the session registry
type SessionService struct {
	repo     *repositories.SessionRepository
	recorder audit.Recorder
	cfg      config.SessionConfig
	now      func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(repo *repositories.SessionRepository, recorder audit.Recorder, cfg config.SessionConfig) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &SessionService{repo: repo, recorder: recorder, cfg: cfg, now: time.Now}
}

// Create registers a new session for userID and returns its ID. The session
// lives for session.ttl regardless of the cookie lifetime.
func (s *SessionService) Create(ctx context.Context, userID, ip, userAgent string) (string, error) {
	now := s.now()
	session := &models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		RefreshToken: uuid.New().String(),
		ExpiresAt:    now.Add(s.cfg.TTL),
		CreatedAt:    now,
		LastUsedAt:   now,
		IPAddress:    optional(ip),
		UserAgent:    optional(userAgent),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return session.ID, nil
}

// SessionPage is one page of the session listing
type SessionPage struct {
	Sessions   []models.SessionWithUser `json:"sessions"`
	Pagination Pagination               `json:"pagination"`
}

// List returns sessions matching filters with read-time expiry labels.
func (s *SessionService) List(ctx context.Context, filters repositories.SessionFilters, page, limit int) (*SessionPage, error) {
	switch filters.Period {
	case "", repositories.SessionPeriodToday, repositories.SessionPeriodWeek,
		repositories.SessionPeriodMonth, repositories.SessionPeriodCustom:
	default:
		return nil, auth.NewError(auth.KindValidation, "Filtro de período inválido", nil)
	}

	page, limit = NormalizePage(page, limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	sessions, total, err := s.repo.ListSessions(ctx, filters, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := s.now()
	for i := range sessions {
		sessions[i].Annotate(now)
	}
	return &SessionPage{Sessions: sessions, Pagination: NewPagination(page, limit, total)}, nil
}

// Get returns one session with its owner.
func (s *SessionService) Get(ctx context.Context, id string) (*models.SessionWithUser, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, auth.NewError(auth.KindNotFound, "Sessão não encontrada", nil)
	}
	session.Annotate(s.now())
	return session, nil
}

// IsActive reports whether the session still exists and has not expired.
func (s *SessionService) IsActive(ctx context.Context, id string) (bool, error) {
	return s.repo.IsActive(ctx, id)
}

// RevokeResult reports the outcome of a single revocation
type RevokeResult struct {
	Revoked bool            `json:"revoked"`
	Session *models.Session `json:"session,omitempty"`
}

// Revoke deletes one session. Revoking a session that no longer exists is not
// an error; the result then reports Revoked=false.
func (s *SessionService) Revoke(ctx context.Context, id string, actor auth.Actor) (*RevokeResult, error) {
	deleted, err := s.repo.DeleteSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke session: %w", err)
	}
	if deleted == nil {
		return &RevokeResult{Revoked: false}, nil
	}

	telemetry.SessionsRevokedTotal.WithLabelValues("single").Inc()
	s.recordRevocation(*deleted, "single", actor)
	return &RevokeResult{Revoked: true, Session: deleted}, nil
}

// BulkRevoke deletes sessions by target (selected, all, user) in a single
// transaction and returns how many rows were removed.
func (s *SessionService) BulkRevoke(ctx context.Context, target string, ids []string, userID string, actor auth.Actor) (int, error) {
	switch target {
	case repositories.BulkTargetSelected:
		if len(ids) == 0 {
			return 0, auth.NewError(auth.KindValidation, "Nenhuma sessão selecionada", nil)
		}
	case repositories.BulkTargetUser:
		if userID == "" {
			return 0, auth.NewError(auth.KindValidation, "Usuário não informado", nil)
		}
	case repositories.BulkTargetAll:
	default:
		return 0, auth.NewError(auth.KindValidation, "Tipo de revogação inválido", nil)
	}

	deleted, err := s.repo.BulkDeleteSessions(ctx, target, ids, userID)
	if err != nil {
		return 0, auth.NewError(auth.KindTransactionFailure, "Erro ao revogar sessões", err)
	}

	telemetry.SessionsRevokedTotal.WithLabelValues(target).Add(float64(len(deleted)))
	for _, session := range deleted {
		s.recordRevocation(session, target, actor)
	}

	slog.Info("sessions revoked", "target", target, "count", len(deleted), "revoked_by", actor.UserID)
	return len(deleted), nil
}

// EndSession removes the caller's own session on logout. It is idempotent.
func (s *SessionService) EndSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	deleted, err := s.repo.DeleteSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if deleted != nil {
		telemetry.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	}
	return nil
}

func (s *SessionService) recordRevocation(session models.Session, mode string, actor auth.Actor) {
	if s.recorder == nil {
		return
	}
	details := map[string]interface{}{
		"mode":             mode,
		"revokedUserId":    session.UserID,
		"sessionCreatedAt": session.CreatedAt,
		"sessionExpiresAt": session.ExpiresAt,
	}
	if session.IPAddress != nil {
		details["sessionIp"] = *session.IPAddress
	}
	s.recorder.Record(audit.Event{
		Kind:       audit.KindAction,
		Action:     ActionSessionRevoked,
		Resource:   ResourceSessions,
		ResourceID: session.ID,
		UserID:     actor.UserID,
		UserType:   models.UserTypeAdmin,
		Username:   actor.Username,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		TwoFAUsed:  actor.TwoFAUsed,
		Details:    details,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
