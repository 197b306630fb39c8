// Package auth - stepup.go implements the step-up verification gate: deciding
// whether an action needs a second factor, issuing emailed codes and claiming
// them exactly once.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
)

// MethodEmail is the only delivery channel.
const MethodEmail = "email"

// Validation failure reasons.
const (
	ReasonInvalidCode       = "invalid_code"
	ReasonExpiredOrUsed     = "expired_or_used"
	ReasonAttemptsExhausted = "attempts_exhausted"
)

// Audit actions recorded by the gate on resource "2FA".
const (
	ActionCodeSent      = "2FA_CODE_SENT"
	ActionCodeValidated = "2FA_SUCCESS"
	ActionCodeRejected  = "2FA_FAILED"
	resourceTwoFactor   = "2FA"
)

// PermissionLookup finds catalog permissions.
type PermissionLookup interface {
	FindPermission(ctx context.Context, featureSlug, action string) (*models.PermissionDetail, error)
}

// RoleLookup finds roles by name.
type RoleLookup interface {
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
}

// CodeStore persists codes. *repositories.TwoFactorRepository satisfies it.
type CodeStore interface {
	InvalidateOutstanding(ctx context.Context, subject repositories.CodeSubject, method string) error
	CreateCode(ctx context.Context, code *models.TwoFactorCode) error
	ClaimCode(ctx context.Context, subject repositories.CodeSubject, code, method string) (bool, error)
	RecordFailedAttempt(ctx context.Context, subject repositories.CodeSubject, method string, maxAttempts int) (repositories.AttemptResult, error)
}

// CodeMessage is one code delivery.
type CodeMessage struct {
	To        string
	Name      string
	Code      string
	ExpiresIn time.Duration
}

// CodeSender delivers a code to its owner.
type CodeSender interface {
	SendCode(ctx context.Context, msg CodeMessage) error
}

// Subject is the account a code is issued to. ID is the staff user ID when
// UserType is "admin", otherwise the public account UUID.
type Subject struct {
	UserType string
	ID       string
	Email    string
	Name     string
	Username string
}

func (s Subject) codeSubject() repositories.CodeSubject {
	return repositories.CodeSubject{UserType: s.UserType, ID: s.ID}
}

// RequestMeta carries the caller's network identity for storage and audit.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// CodeSent describes an issued code without revealing it.
type CodeSent struct {
	ExpiresAt   time.Time `json:"expiresAt"`
	Method      string    `json:"method"`
	Destination string    `json:"destination"`
}

// ValidationResult is the outcome of one code submission.
type ValidationResult struct {
	Valid             bool   `json:"valid"`
	Reason            string `json:"reason,omitempty"`
	AttemptsRemaining int    `json:"attemptsRemaining,omitempty"`
}

// Message renders the user-facing text for a rejected code.
func (r ValidationResult) Message() string {
	switch r.Reason {
	case ReasonAttemptsExhausted:
		return "Número máximo de tentativas excedido. Solicite um novo código"
	case ReasonExpiredOrUsed:
		return "Código expirado ou já utilizado"
	default:
		if r.AttemptsRemaining > 0 {
			return fmt.Sprintf("Código inválido. %d tentativa(s) restante(s)", r.AttemptsRemaining)
		}
		return "Código inválido"
	}
}

// Gate decides and enforces step-up verification.
type Gate struct {
	permissions PermissionLookup
	roles       RoleLookup
	codes       CodeStore
	sender      CodeSender
	recorder    audit.Recorder
	cfg         config.TwoFactorConfig

	now      func() time.Time
	generate func(length int) (string, error)
}

// NewGate creates a Gate. Zero config values fall back to a 6 digit code valid
// for 10 minutes, 5 attempts and a 10 second send timeout.
func NewGate(permissions PermissionLookup, roles RoleLookup, codes CodeStore, sender CodeSender, recorder audit.Recorder, cfg config.TwoFactorConfig) *Gate {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Gate{
		permissions: permissions,
		roles:       roles,
		codes:       codes,
		sender:      sender,
		recorder:    recorder,
		cfg:         cfg,
		now:         time.Now,
		generate:    GenerateCode,
	}
}

// RequiresStepUp reports whether performing level on resource as roleName needs
// a verified code: either the permission itself or the acting role demands it.
func (g *Gate) RequiresStepUp(ctx context.Context, resource string, level Level, roleName string) (bool, error) {
	perm, err := g.permissions.FindPermission(ctx, resource, level.Action())
	if err != nil {
		return false, fmt.Errorf("failed to look up permission %s:%s: %w", resource, level, err)
	}
	if perm != nil && perm.Requires2FA {
		return true, nil
	}

	if roleName == "" {
		return false, nil
	}
	role, err := g.roles.GetRoleByName(ctx, roleName)
	if err != nil {
		return false, fmt.Errorf("failed to look up role %q: %w", roleName, err)
	}
	return role != nil && role.Requires2FA, nil
}

// IssueCode invalidates the subject's outstanding codes, stores a fresh one and
// emails it. The code is only recorded as sent once delivery succeeded.
func (g *Gate) IssueCode(ctx context.Context, subject Subject, meta RequestMeta) (*CodeSent, error) {
	if subject.Email == "" {
		return nil, NewError(KindValidation, "Nenhum e-mail cadastrado para envio do código", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.SendTimeout)
	defer cancel()

	code, err := g.generate(g.cfg.CodeLength)
	if err != nil {
		return nil, NewError(KindInternal, "Erro ao gerar código de verificação", err)
	}

	if err := g.codes.InvalidateOutstanding(ctx, subject.codeSubject(), MethodEmail); err != nil {
		return nil, NewError(KindInternal, "Erro ao gerar código de verificação", err)
	}

	row := &models.TwoFactorCode{
		UserType:  subject.UserType,
		Code:      code,
		Method:    MethodEmail,
		ExpiresAt: g.now().Add(g.cfg.CodeTTL),
		IPAddress: optionalString(meta.IPAddress),
		UserAgent: optionalString(meta.UserAgent),
	}
	if subject.UserType == models.UserTypeAdmin {
		row.UserID = &subject.ID
	} else {
		row.PublicUserUUID = &subject.ID
	}
	if err := g.codes.CreateCode(ctx, row); err != nil {
		return nil, NewError(KindInternal, "Erro ao gerar código de verificação", err)
	}

	err = g.sender.SendCode(ctx, CodeMessage{
		To:        subject.Email,
		Name:      subject.Name,
		Code:      code,
		ExpiresIn: g.cfg.CodeTTL,
	})
	if err != nil {
		telemetry.TwoFactorCodesTotal.WithLabelValues("send_failed").Inc()
		slog.Error("failed to send verification code",
			"user_type", subject.UserType, "user_id", subject.ID, "error", err)
		return nil, NewError(KindInternal, "Erro ao enviar código de verificação", err)
	}

	telemetry.TwoFactorCodesTotal.WithLabelValues("issued").Inc()
	g.record(subject, meta, ActionCodeSent, map[string]interface{}{"method": MethodEmail})

	return &CodeSent{
		ExpiresAt:   row.ExpiresAt,
		Method:      MethodEmail,
		Destination: MaskEmail(subject.Email),
	}, nil
}

// ValidateCode claims code for the subject. A claim succeeds at most once; a
// wrong code counts against the outstanding one, which is burned after the
// configured number of attempts. Any store error or timeout is reported as a
// failed validation together with the error.
func (g *Gate) ValidateCode(ctx context.Context, subject Subject, code string, meta RequestMeta) (ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.SendTimeout)
	defer cancel()

	code = strings.TrimSpace(code)
	if code != "" {
		ok, err := g.codes.ClaimCode(ctx, subject.codeSubject(), code, MethodEmail)
		if err != nil {
			return ValidationResult{}, NewError(KindInternal, "Erro ao validar código", err)
		}
		if ok {
			telemetry.TwoFactorCodesTotal.WithLabelValues("validated").Inc()
			g.record(subject, meta, ActionCodeValidated, map[string]interface{}{"method": MethodEmail})
			return ValidationResult{Valid: true}, nil
		}
	}

	attempt, err := g.codes.RecordFailedAttempt(ctx, subject.codeSubject(), MethodEmail, g.cfg.MaxAttempts)
	if err != nil {
		return ValidationResult{}, NewError(KindInternal, "Erro ao validar código", err)
	}

	result := ValidationResult{Reason: ReasonInvalidCode}
	switch {
	case !attempt.Found:
		result.Reason = ReasonExpiredOrUsed
	case attempt.Exhausted:
		result.Reason = ReasonAttemptsExhausted
		telemetry.TwoFactorCodesTotal.WithLabelValues("exhausted").Inc()
	default:
		result.AttemptsRemaining = g.cfg.MaxAttempts - attempt.Attempts
	}
	telemetry.TwoFactorCodesTotal.WithLabelValues("rejected").Inc()

	g.record(subject, meta, ActionCodeRejected, map[string]interface{}{
		"method": MethodEmail,
		"reason": result.Reason,
	})
	return result, nil
}

func (g *Gate) record(subject Subject, meta RequestMeta, action string, details map[string]interface{}) {
	if g.recorder == nil {
		return
	}
	e := audit.Event{
		Kind:      audit.KindAction,
		Action:    action,
		Resource:  resourceTwoFactor,
		UserType:  subject.UserType,
		Username:  subject.Username,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   details,
	}
	if subject.UserType == models.UserTypeAdmin {
		e.UserID = subject.ID
	} else {
		e.PublicUserUUID = subject.ID
	}
	g.recorder.Record(e)
}

// GenerateCode returns a zero-padded numeric code of the given length drawn
// from crypto/rand.
func GenerateCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// MaskEmail hides most of the local part: "joao@example.com" -> "j***@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
