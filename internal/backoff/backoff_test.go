package backoff

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	if got := Delay(0, base, max); got != base {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := Delay(1, base, max); got != base {
		t.Fatalf("attempt 1: %v", got)
	}
	if got := Delay(2, base, max); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := Delay(10, base, max); got != max {
		t.Fatalf("attempt 10 should cap at max, got %v", got)
	}
	// Deep attempts must not overflow into negatives.
	if got := Delay(70, base, max); got != max {
		t.Fatalf("attempt 70: %v", got)
	}
}
