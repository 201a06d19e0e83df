package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(ErrSyncOffline, "cannot sync while offline")
		want := "[SYNC_OFFLINE] cannot sync while offline"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("wrap preserves the cause", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := Wrap(ErrStoreUnavailable, "failed to open store", cause)

		if !stderrors.Is(err, cause) {
			t.Error("wrapped cause lost from chain")
		}
		if got := err.Error(); got != "[STORE_UNAVAILABLE] failed to open store: disk full" {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("code check walks the chain", func(t *testing.T) {
		inner := New(ErrSyncFailed, "remote returned 500")
		outer := fmt.Errorf("drain pass: %w", inner)

		if !Is(outer, ErrSyncFailed) {
			t.Error("Is() = false for wrapped coded error")
		}
		if Is(outer, ErrSyncOffline) {
			t.Error("Is() matched the wrong code")
		}
		if Is(fmt.Errorf("plain"), ErrSyncFailed) {
			t.Error("Is() matched an uncoded error")
		}
	})
}
