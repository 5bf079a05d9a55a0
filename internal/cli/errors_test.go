package cli

import (
	"errors"
	"fmt"
	"testing"
)

// ---------------------------------------------------------------------------
// Tests for sentinel errors
// ---------------------------------------------------------------------------

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	sentinels := []error{ErrOutputExists, ErrInvalidParallel, ErrCancelled}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("sentinels %d and %d should not match: %v == %v", i, j, err1, err2)
			}
		}
		wrapped := fmt.Errorf("context: %w", err1)
		if !errors.Is(wrapped, err1) {
			t.Errorf("wrapped %v does not match its sentinel", err1)
		}
	}
}
