package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWithReasonKeepsIdentity(t *testing.T) {
	err := ErrInsufficientFunds.WithReason("balance 40 < fee 100")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("errors.Is should match by code")
	}
	if errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("different codes must not match")
	}
	if err.Error() != "insufficient_funds: balance 40 < fee 100" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestKindOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("enqueue: %w", ErrAlreadyQueued)
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("KindOf = %s, want conflict", KindOf(wrapped))
	}
	if CodeOf(wrapped) != "already_queued" {
		t.Fatalf("CodeOf = %s", CodeOf(wrapped))
	}
	if KindOf(nil) != "" {
		t.Fatalf("KindOf(nil) should be empty")
	}
}

func TestUnclassifiedIsInternal(t *testing.T) {
	raw := errors.New("connection reset")
	if KindOf(raw) != KindInternal || CodeOf(raw) != "internal_error" {
		t.Fatalf("raw error should classify as internal")
	}
	if ReasonOf(raw) != "internal error" {
		t.Fatalf("raw error text must not leak, got %q", ReasonOf(raw))
	}
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("tx commit failed")
	err := Internal(cause, "settle room")
	if err.Kind != KindInternal {
		t.Fatalf("kind = %s", err.Kind)
	}
	if err.Unwrap() == nil {
		t.Fatalf("cause should be kept")
	}
	if !strings.Contains(Format(err), "settle room") {
		t.Fatalf("Format should render the wrap message, got %q", Format(err))
	}
}
