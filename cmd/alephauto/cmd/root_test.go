package cmd

import (
	"errors"
	"testing"
)

func TestExitCode_NilIsZero(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestExitCode_PlainErrorDefaultsToOne(t *testing.T) {
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestExitCode_ExitErrorCarriesItsOwnCode(t *testing.T) {
	err := exitf(3, "bad config: %s", "missing field")
	if got := ExitCode(err); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if err.Error() != "bad config: missing field" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestExitCode_WrappedExitErrorStillUnwraps(t *testing.T) {
	wrapped := errors.Join(exitf(2, "wrapped"), nil)
	if got := ExitCode(wrapped); got != 2 {
		t.Errorf("expected wrapped exitError code 2, got %d", got)
	}
}
