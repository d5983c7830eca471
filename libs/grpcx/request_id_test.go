package grpcx

import (
	"context"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if RequestIDFromContext(ctx) != "" {
		t.Fatal("empty id must not be stored")
	}
	ctx = WithRequestID(ctx, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if len(NewRequestID()) != 32 {
		t.Fatal("expected 16 random bytes hex encoded")
	}
}
