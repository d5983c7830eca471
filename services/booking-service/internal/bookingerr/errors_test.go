package bookingerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("create booking: %w", CapacityExhausted("no tables left at 19:00"))
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatal("expected capacity kind through wrap")
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %d", HTTPStatus(err))
	}
	if Code(err) != "capacity_exhausted" {
		t.Fatalf("unexpected code %q", Code(err))
	}
	if !IsCallerFacing(err) {
		t.Fatal("capacity errors are caller facing")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("party size must be positive"), http.StatusBadRequest},
		{NotFound("booking x"), http.StatusNotFound},
		{SlotUnbookable("too soon"), http.StatusUnprocessableEntity},
		{Conflict("already booked"), http.StatusConflict},
		{ModificationAlreadyPending("pending"), http.StatusConflict},
		{ConcurrencyConflict("lost race"), http.StatusConflict},
		{InvalidTransition("completed -> pending"), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestInventoryLeakIsNotCallerFacing(t *testing.T) {
	cause := errors.New("rollback failed: conn closed")
	err := InventoryLeak(cause, "slot %s not restored", "s-1")
	if !errors.Is(err, ErrInventoryLeak) || !errors.Is(err, cause) {
		t.Fatal("expected both kind and cause")
	}
	if IsCallerFacing(err) {
		t.Fatal("leaks must not be shown as recoverable")
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", HTTPStatus(err))
	}
}
