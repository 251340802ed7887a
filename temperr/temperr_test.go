package temperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := State("channel closing")
	if KindOf(err) != KindState {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindState)
	}
	wrapped := fmt.Errorf("extend failed: %w", err)
	if !IsKind(wrapped, KindState) {
		t.Errorf("IsKind should see through fmt.Errorf wrapping")
	}
	if IsKind(errors.New("plain"), KindState) {
		t.Errorf("plain error should have no kind")
	}
}

func TestPlatformWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Platform("delete channel", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
	if got := err.Error(); got != "delete channel: boom" {
		t.Errorf("Error() = %q", got)
	}
}
