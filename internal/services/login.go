package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// MsgInvalidCredentials is the only message returned for any credential
// failure, so callers cannot tell unknown users from wrong passwords.
const MsgInvalidCredentials = "Credenciais inválidas"

// Login failure reasons recorded in the login log.
const (
	ReasonUserNotFound    = "user_not_found"
	ReasonAccountDisabled = "account_disabled"
	ReasonBadPassword     = "bad_password"
	ReasonNoPassword      = "no_password"
)

// StepUp issues and validates second-factor codes. *auth.Gate satisfies it.
type StepUp interface {
	IssueCode(ctx context.Context, subject auth.Subject, meta auth.RequestMeta) (*auth.CodeSent, error)
	ValidateCode(ctx context.Context, subject auth.Subject, code string, meta auth.RequestMeta) (auth.ValidationResult, error)
}

// PermissionResolver computes a user's permission map. *auth.Resolver satisfies it.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID string) auth.PermissionMap
}

// LoginRequest is one admin login attempt
type LoginRequest struct {
	Username      string
	Password      string
	TwoFactorCode string
	IPAddress     string
	UserAgent     string
}

// UserSummary is the user object returned after a successful login
type UserSummary struct {
	ID           string             `json:"id"`
	Username     string             `json:"username"`
	Email        string             `json:"email"`
	Nome         string             `json:"nome"`
	RoleName     string             `json:"role_name"`
	RoleLevel    int                `json:"role_level"`
	Is2FAEnabled bool               `json:"is2FAEnabled"`
	Permissoes   auth.PermissionMap `json:"permissoes"`
}

// LoginResult is either a code-issued continuation or an authenticated session
type LoginResult struct {
	RequiresTwoFactor bool
	CodeSent          *auth.CodeSent

	Token     string
	SessionID string
	ExpiresAt time.Time
	User      *UserSummary
}

// LoginService authenticates back-office staff
type LoginService struct {
	users    *repositories.UserRepository
	resolver PermissionResolver
	stepUp   StepUp
	sessions *SessionService
	recorder audit.Recorder
	tokenTTL time.Duration
}

// NewLoginService creates a new LoginService
func NewLoginService(users *repositories.UserRepository, resolver PermissionResolver, stepUp StepUp, sessions *SessionService, recorder audit.Recorder, tokenTTL time.Duration) *LoginService {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &LoginService{
		users:    users,
		resolver: resolver,
		stepUp:   stepUp,
		sessions: sessions,
		recorder: recorder,
		tokenTTL: tokenTTL,
	}
}

// Login runs the admin login state machine. When a second factor is needed and
// no code was supplied, a code is issued and the result has RequiresTwoFactor
// set; no session exists until a valid code is presented.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, auth.NewError(auth.KindValidation, "Usuário e senha são obrigatórios", nil)
	}

	base := audit.Event{
		Kind:      audit.KindAdminAuth,
		UserType:  models.UserTypeAdmin,
		Username:  req.Username,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	user, err := s.users.GetUserWithRoleByLogin(ctx, req.Username)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("admin", "error").Inc()
		return nil, auth.NewError(auth.KindInternal, "Erro interno do servidor", err)
	}
	if user == nil {
		auth.EqualizeTiming(req.Password)
		s.fail(base, ReasonUserNotFound, "invalid_credentials")
		return nil, auth.NewError(auth.KindInvalidCredentials, MsgInvalidCredentials, nil)
	}

	base.UserID = user.ID
	base.Username = user.Username

	if !user.Ativo {
		auth.EqualizeTiming(req.Password)
		s.fail(base, ReasonAccountDisabled, "account_disabled")
		return nil, auth.NewError(auth.KindAccountDisabled, MsgInvalidCredentials, nil)
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.fail(base, ReasonBadPassword, "invalid_credentials")
		return nil, auth.NewError(auth.KindInvalidCredentials, MsgInvalidCredentials, nil)
	}

	twoFAUsed := false
	if user.RequiresTwoFactor() {
		subject := auth.Subject{
			UserType: models.UserTypeAdmin,
			ID:       user.ID,
			Email:    user.Email,
			Name:     user.Nome,
			Username: user.Username,
		}
		meta := auth.RequestMeta{IPAddress: req.IPAddress, UserAgent: req.UserAgent}

		if req.TwoFactorCode == "" {
			return s.requireCode(ctx, base, subject, meta, "admin")
		}
		if err := s.checkCode(ctx, base, subject, req.TwoFactorCode, meta, "admin"); err != nil {
			return nil, err
		}
		twoFAUsed = true
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	perms := s.resolver.Resolve(ctx, user.ID)

	sessionID, err := s.sessions.Create(ctx, user.ID, req.IPAddress, req.UserAgent)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("admin", "error").Inc()
		return nil, auth.NewError(auth.KindInternal, "Erro interno do servidor", err)
	}

	summary := &UserSummary{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Nome:         user.Nome,
		RoleName:     user.Role(),
		RoleLevel:    user.Level(),
		Is2FAEnabled: user.TwoFAEnabled,
		Permissoes:   perms,
	}
	token, err := auth.GenerateAdminJWT(auth.AdminClaims{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		RoleName:     summary.RoleName,
		RoleLevel:    summary.RoleLevel,
		Is2FAEnabled: user.TwoFAEnabled,
		Permissoes:   perms,
		SessionID:    sessionID,
	}, s.tokenTTL)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("admin", "error").Inc()
		return nil, auth.NewError(auth.KindInternal, "Erro interno do servidor", fmt.Errorf("failed to sign token: %w", err))
	}

	success := base
	success.Action = audit.AuthLogin
	success.Success = true
	success.TwoFAUsed = twoFAUsed
	success.Details = map[string]interface{}{"sessionId": sessionID, "roleName": summary.RoleName}
	s.emit(success)
	telemetry.LoginAttemptsTotal.WithLabelValues("admin", "success").Inc()

	return &LoginResult{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: time.Now().Add(s.tokenTTL),
		User:      summary,
	}, nil
}

// Logout ends the caller's session and records the logout.
func (s *LoginService) Logout(ctx context.Context, claims *auth.AdminClaims, ip, userAgent string) error {
	if err := s.sessions.EndSession(ctx, claims.SessionID); err != nil {
		return err
	}
	s.emit(audit.Event{
		Kind:      audit.KindAdminAuth,
		Action:    audit.AuthLogout,
		UserID:    claims.UserID,
		UserType:  models.UserTypeAdmin,
		Username:  claims.Username,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
		Details:   map[string]interface{}{"sessionId": claims.SessionID},
	})
	return nil
}

// requireCode issues a code and returns the continuation result.
func (s *LoginService) requireCode(ctx context.Context, base audit.Event, subject auth.Subject, meta auth.RequestMeta, flow string) (*LoginResult, error) {
	sent, err := s.stepUp.IssueCode(ctx, subject, meta)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues(flow, "error").Inc()
		return nil, err
	}

	e := base
	e.Action = audit.Auth2FARequired
	e.Success = false
	s.emit(e)
	telemetry.LoginAttemptsTotal.WithLabelValues(flow, "2fa_required").Inc()

	return &LoginResult{RequiresTwoFactor: true, CodeSent: sent}, nil
}

// checkCode validates a submitted code and records the outcome.
func (s *LoginService) checkCode(ctx context.Context, base audit.Event, subject auth.Subject, code string, meta auth.RequestMeta, flow string) error {
	result, err := s.stepUp.ValidateCode(ctx, subject, code, meta)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues(flow, "error").Inc()
		return err
	}
	if !result.Valid {
		e := base
		e.Action = audit.Auth2FAFailed
		e.FailureReason = result.Reason
		s.emit(e)
		telemetry.LoginAttemptsTotal.WithLabelValues(flow, "2fa_failed").Inc()
		return auth.NewError(auth.KindTwoFactorInvalid, result.Message(), nil)
	}

	e := base
	e.Action = audit.Auth2FASuccess
	e.Success = true
	e.TwoFAUsed = true
	s.emit(e)
	return nil
}

func (s *LoginService) fail(base audit.Event, reason, result string) {
	e := base
	e.Action = audit.AuthLoginFailed
	e.FailureReason = reason
	s.emit(e)
	telemetry.LoginAttemptsTotal.WithLabelValues("admin", result).Inc()
}

func (s *LoginService) emit(e audit.Event) {
	if s.recorder != nil {
		s.recorder.Record(e)
	}
}
