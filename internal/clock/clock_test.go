package clock

import (
	"testing"
	"time"
)

func TestManual_SetAndAdvance(t *testing.T) {
	start := time.Date(2026, 2, 28, 11, 59, 0, 0, time.UTC)
	c := NewManual(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	got := c.Advance(90 * time.Second)
	want := time.Date(2026, 2, 28, 12, 0, 30, 0, time.UTC)
	if !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("Advance() = %v, want %v", got, want)
	}

	// Backward jumps are allowed.
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("after Set, Now() = %v, want %v", c.Now(), start)
	}
}

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	if got.Before(before) {
		t.Errorf("Real.Now() = %v is before %v", got, before)
	}
}
