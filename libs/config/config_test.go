package config

import (
	"testing"
	"time"
)

func TestIntListSortsAndDedupes(t *testing.T) {
	t.Setenv("TIERS", "8, 2,4,2")
	got, err := IntList("TIERS", nil)
	if err != nil {
		t.Fatalf("IntList: %v", err)
	}
	want := []int{2, 4, 8}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestIntListRejectsNonPositive(t *testing.T) {
	t.Setenv("TIERS", "2,0")
	if _, err := IntList("TIERS", nil); err == nil {
		t.Fatal("expected error for zero entry")
	}
}

func TestDurationAndBoolFallbacks(t *testing.T) {
	d, err := Duration("UNSET_DURATION_KEY", 2*time.Hour)
	if err != nil || d != 2*time.Hour {
		t.Fatalf("expected fallback 2h, got %v (%v)", d, err)
	}
	t.Setenv("SOME_FLAG", "off")
	if Bool("SOME_FLAG", true) {
		t.Fatal("expected false for off")
	}
	t.Setenv("BAD_DURATION", "soon")
	if _, err := Duration("BAD_DURATION", time.Second); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPortValidation(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8083"); err == nil {
		t.Fatal("expected invalid port error")
	}
}
