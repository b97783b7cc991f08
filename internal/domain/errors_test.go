package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Gamenter95/wewa/internal/domain"
)

func TestErrorMatchesByKind(t *testing.T) {
	wrapped := fmt.Errorf("transfer: %w", &domain.Error{
		Kind: domain.ErrorKindUpdateFailed,
		Err:  errors.New("commit: connection reset"),
	})

	if !errors.Is(wrapped, domain.ErrUpdateFailed) {
		t.Error("expected wrapped error to match ErrUpdateFailed")
	}
	if errors.Is(wrapped, domain.ErrInsufficientFunds) {
		t.Error("did not expect wrapped error to match ErrInsufficientFunds")
	}

	kind, ok := domain.KindOf(wrapped)
	if !ok || kind != domain.ErrorKindUpdateFailed {
		t.Errorf("expected kind %s, got %s (ok=%v)", domain.ErrorKindUpdateFailed, kind, ok)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "success"},
		{domain.ErrInsufficientFunds, "insufficient_funds"},
		{domain.ErrGatewayDisabled, "gateway_disabled"},
		{fmt.Errorf("failed to look up gateway token: %w", errors.New("timeout")), "internal_error"},
	}

	for _, tt := range tests {
		if got := domain.OutcomeOf(tt.err); got != tt.expected {
			t.Errorf("OutcomeOf(%v) = %s, expected %s", tt.err, got, tt.expected)
		}
	}
}
