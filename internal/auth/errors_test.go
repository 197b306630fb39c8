package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("tx aborted")
	err := NewError(KindTransactionFailure, "Erro ao atualizar permissões", cause)
	wrapped := fmt.Errorf("update role: %w", err)

	if KindOf(wrapped) != KindTransactionFailure {
		t.Errorf("KindOf = %s, want transaction_failure", KindOf(wrapped))
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("untyped errors should be internal")
	}
}

func TestMessageOf(t *testing.T) {
	err := NewError(KindResourceInUse, "Perfil em uso por 3 usuário(s)", nil)
	if got := MessageOf(err, "fallback"); got != "Perfil em uso por 3 usuário(s)" {
		t.Errorf("MessageOf = %q", got)
	}
	if got := MessageOf(errors.New("db down"), "Erro interno"); got != "Erro interno" {
		t.Errorf("MessageOf = %q, want fallback", got)
	}
}

func TestErrorString(t *testing.T) {
	err := NewError(KindNotFound, "Perfil não encontrado", nil)
	if err.Error() != "not_found: Perfil não encontrado" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unknown kind String() = %q", Kind(99).String())
	}
}
