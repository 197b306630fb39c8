package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/db/models"
)

// TwoFactorCodeHeader carries the step-up code on a retried request.
const TwoFactorCodeHeader = "X-2FA-Code"

// StepUpGate is the subset of auth.Gate the middleware drives.
type StepUpGate interface {
	RequiresStepUp(ctx context.Context, resource string, level auth.Level, roleName string) (bool, error)
	IssueCode(ctx context.Context, subject auth.Subject, meta auth.RequestMeta) (*auth.CodeSent, error)
	ValidateCode(ctx context.Context, subject auth.Subject, code string, meta auth.RequestMeta) (auth.ValidationResult, error)
}

// RequireStepUp enforces email verification on a protected action.
//
// Without a code the gate issues one and answers 200 {success:false,
// requires2FA:true}; the handler does not run. A rejected code answers 401.
// A valid code sets two_fa_used in the context and the handler runs. Any
// error while deciding or validating fails closed.
func RequireStepUp(gate StepUpGate, resource string, level auth.Level) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Usuário não autenticado")
			return
		}
		ctx := c.Request.Context()

		required, err := gate.RequiresStepUp(ctx, resource, level, claims.RoleName)
		if err != nil {
			slog.Error("step-up lookup failed", "resource", resource, "level", level.String(), "error", err)
			abort(c, http.StatusInternalServerError, "Erro ao verificar requisitos de autenticação")
			return
		}
		if !required {
			c.Next()
			return
		}

		subject := auth.Subject{
			UserType: models.UserTypeAdmin,
			ID:       claims.UserID,
			Email:    claims.Email,
			Name:     claims.Username,
			Username: claims.Username,
		}
		meta := auth.RequestMeta{IPAddress: ClientIP(c), UserAgent: c.Request.UserAgent()}

		code := strings.TrimSpace(c.GetHeader(TwoFactorCodeHeader))
		if code == "" {
			code = strings.TrimSpace(c.Query("twoFactorCode"))
		}

		if code == "" {
			sent, err := gate.IssueCode(ctx, subject, meta)
			if err != nil {
				status := http.StatusInternalServerError
				if auth.KindOf(err) == auth.KindValidation {
					status = http.StatusBadRequest
				}
				abort(c, status, auth.MessageOf(err, "Erro ao enviar código de verificação"))
				return
			}
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"success":     false,
				"requires2FA": true,
				"message":     "Código de verificação enviado para seu e-mail",
				"data":        sent,
			})
			return
		}

		result, err := gate.ValidateCode(ctx, subject, code, meta)
		if err != nil {
			slog.Error("step-up validation failed", "user_id", claims.UserID, "error", err)
			abort(c, http.StatusInternalServerError, "Erro ao validar código")
			return
		}
		if !result.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":           false,
				"requires2FA":       true,
				"error":             result.Message(),
				"reason":            result.Reason,
				"attemptsRemaining": result.AttemptsRemaining,
			})
			return
		}

		c.Set(TwoFAUsedKey, true)
		c.Next()
	}
}
