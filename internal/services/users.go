package services

import (
	"context"

	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/db/models"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
)

// Audit actions for staff account administration.
const (
	ActionUser2FAEnabled  = "USER_2FA_ENABLED"
	ActionUser2FADisabled = "USER_2FA_DISABLED"

	ResourceUsers = "users"
)

// UserService administers staff account settings
type UserService struct {
	users          *repositories.UserRepository
	recorder       audit.Recorder
	systemRoleName string
}

// NewUserService creates a new UserService
func NewUserService(users *repositories.UserRepository, recorder audit.Recorder, systemRoleName string) *UserService {
	return &UserService{users: users, recorder: recorder, systemRoleName: systemRoleName}
}

// UserTwoFactorResult reports a user's login 2FA flag after a change.
type UserTwoFactorResult struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Enabled  bool   `json:"is_enabled"`
	Changed  bool   `json:"changed"`
}

// SetTwoFactor turns the user's login 2FA on or off. Operators may change
// their own account or accounts whose role sits below theirs. Disabling burns
// the user's outstanding codes. Asking for the current state is a no-op.
func (s *UserService) SetTwoFactor(ctx context.Context, userID string, enable bool, actor auth.Actor) (*UserTwoFactorResult, error) {
	user, err := s.users.GetUserWithRoleByID(ctx, userID)
	if err != nil {
		return nil, auth.NewError(auth.KindInternal, "Erro ao buscar usuário", err)
	}
	if user == nil {
		return nil, auth.NewError(auth.KindNotFound, "Usuário não encontrado", nil)
	}
	if user.ID != actor.UserID &&
		!auth.CanManageRole(actor, s.systemRoleName, &models.Role{Name: user.Role(), Level: user.Level()}) {
		return nil, auth.NewError(auth.KindPermissionDenied,
			"Você só pode gerenciar usuários de nível inferior ao seu", nil)
	}

	result := &UserTwoFactorResult{UserID: user.ID, Username: user.Username, Email: user.Email, Enabled: enable}
	if user.TwoFAEnabled == enable {
		return result, nil
	}

	found, err := s.users.SetTwoFactorEnabled(ctx, user.ID, enable)
	if err != nil {
		return nil, auth.NewError(auth.KindTransactionFailure, "Erro ao atualizar 2FA do usuário", err)
	}
	if !found {
		return nil, auth.NewError(auth.KindNotFound, "Usuário não encontrado", nil)
	}
	result.Changed = true

	action := ActionUser2FADisabled
	if enable {
		action = ActionUser2FAEnabled
	}
	if s.recorder != nil {
		s.recorder.Record(audit.Event{
			Kind:       audit.KindAction,
			Action:     action,
			Resource:   ResourceUsers,
			ResourceID: user.ID,
			UserID:     actor.UserID,
			UserType:   models.UserTypeAdmin,
			Username:   actor.Username,
			IPAddress:  actor.IPAddress,
			UserAgent:  actor.UserAgent,
			TwoFAUsed:  actor.TwoFAUsed,
			Details: map[string]interface{}{
				"targetUsername": user.Username,
				"enabled":        enable,
			},
		})
	}
	return result, nil
}
