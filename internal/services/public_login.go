package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// PublicLoginRequest is one cliente/proprietario login attempt
type PublicLoginRequest struct {
	Email         string
	Password      string
	UserType      string
	TwoFactorCode string
	IPAddress     string
	UserAgent     string
}

// PublicUser is the account object returned after a successful public login
type PublicUser struct {
	UUID         string `json:"uuid"`
	Nome         string `json:"nome"`
	Email        string `json:"email"`
	UserType     string `json:"userType"`
	Is2FAEnabled bool   `json:"is2FAEnabled"`
}

// PublicLoginResult mirrors LoginResult for public accounts. There is no
// session row; the token is the only credential.
type PublicLoginResult struct {
	RequiresTwoFactor bool
	CodeSent          *auth.CodeSent

	Token     string
	ExpiresAt time.Time
	User      *PublicUser
}

// PublicLoginService authenticates clientes and proprietarios
type PublicLoginService struct {
	accounts *repositories.PublicAccountRepository
	tokenTTL time.Duration
	// login carries the step-up and audit helpers shared with the admin flow.
	login *LoginService
}

// NewPublicLoginService creates a new PublicLoginService
func NewPublicLoginService(accounts *repositories.PublicAccountRepository, stepUp StepUp, recorder audit.Recorder, tokenTTL time.Duration) *PublicLoginService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &PublicLoginService{
		accounts: accounts,
		tokenTTL: tokenTTL,
		login:    &LoginService{stepUp: stepUp, recorder: recorder},
	}
}

// Login runs the public login state machine against the account table chosen
// by UserType.
func (s *PublicLoginService) Login(ctx context.Context, req PublicLoginRequest) (*PublicLoginResult, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		return nil, auth.NewError(auth.KindValidation, "E-mail e senha são obrigatórios", nil)
	}
	if !models.IsPublicUserType(req.UserType) {
		return nil, auth.NewError(auth.KindValidation, "Tipo de usuário inválido", nil)
	}

	base := audit.Event{
		Kind:      audit.KindPublicAuth,
		UserType:  req.UserType,
		Username:  req.Email,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	acct, err := s.accounts.GetByEmail(ctx, req.UserType, req.Email)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("public", "error").Inc()
		return nil, auth.NewError(auth.KindInternal, "Erro interno do servidor", err)
	}
	if acct == nil {
		auth.EqualizeTiming(req.Password)
		s.fail(base, ReasonUserNotFound)
		return nil, auth.NewError(auth.KindInvalidCredentials, MsgInvalidCredentials, nil)
	}

	base.PublicUserUUID = acct.UUID
	if acct.PasswordHash == nil || *acct.PasswordHash == "" {
		s.fail(base, ReasonNoPassword)
		return nil, auth.NewError(auth.KindInvalidCredentials, "Conta sem senha cadastrada", nil)
	}
	if !auth.CheckPassword(*acct.PasswordHash, req.Password) {
		s.fail(base, ReasonBadPassword)
		return nil, auth.NewError(auth.KindInvalidCredentials, MsgInvalidCredentials, nil)
	}

	twoFAUsed := false
	if acct.TwoFAEnabled {
		subject := auth.Subject{
			UserType: req.UserType,
			ID:       acct.UUID,
			Email:    acct.Email,
			Name:     acct.Nome,
			Username: acct.Email,
		}
		meta := auth.RequestMeta{IPAddress: req.IPAddress, UserAgent: req.UserAgent}

		if req.TwoFactorCode == "" {
			res, err := s.login.requireCode(ctx, base, subject, meta, "public")
			if err != nil {
				return nil, err
			}
			return &PublicLoginResult{RequiresTwoFactor: true, CodeSent: res.CodeSent}, nil
		}
		if err := s.login.checkCode(ctx, base, subject, req.TwoFactorCode, meta, "public"); err != nil {
			return nil, err
		}
		twoFAUsed = true
	}

	token, err := auth.GeneratePublicJWT(auth.PublicClaims{
		UserUUID:     acct.UUID,
		UserType:     req.UserType,
		Email:        acct.Email,
		Nome:         acct.Nome,
		Is2FAEnabled: acct.TwoFAEnabled,
	}, s.tokenTTL)
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("public", "error").Inc()
		return nil, auth.NewError(auth.KindInternal, "Erro interno do servidor", fmt.Errorf("failed to sign token: %w", err))
	}

	success := base
	success.Action = audit.AuthLogin
	success.Success = true
	success.TwoFAUsed = twoFAUsed
	s.login.emit(success)
	telemetry.LoginAttemptsTotal.WithLabelValues("public", "success").Inc()

	return &PublicLoginResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokenTTL),
		User: &PublicUser{
			UUID:         acct.UUID,
			Nome:         acct.Nome,
			Email:        acct.Email,
			UserType:     req.UserType,
			Is2FAEnabled: acct.TwoFAEnabled,
		},
	}, nil
}

func (s *PublicLoginService) fail(base audit.Event, reason string) {
	e := base
	e.Action = audit.AuthLoginFailed
	e.FailureReason = reason
	s.login.emit(e)
	telemetry.LoginAttemptsTotal.WithLabelValues("public", "invalid_credentials").Inc()
}
