package clock

import (
	"testing"
	"time"
)

func TestFixedAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 14, 25, 0, 0, time.UTC)
	c := NewFixed(start)
	c.Advance(35 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(35 * time.Minute)) {
		t.Fatalf("unexpected time %s", got)
	}
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatal("Set did not take effect")
	}
}
