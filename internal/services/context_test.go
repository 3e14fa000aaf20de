package services_test

import (
	"context"
	"testing"

	"olcsync/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithScope(ctx, "STERL1")
	ctx = services.WithYear(ctx, "2024")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if scope, ok := services.ScopeFromContext(ctx); !ok || scope != "STERL1" {
		t.Fatalf("unexpected scope: %v %v", scope, ok)
	}
	if year, ok := services.YearFromContext(ctx); !ok || year != "2024" {
		t.Fatalf("unexpected year: %v %v", year, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithScope(ctx, "")
	ctx = services.WithYear(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.ScopeFromContext(ctx); ok {
		t.Fatal("expected no scope value")
	}
	if _, ok := services.YearFromContext(ctx); ok {
		t.Fatal("expected no year value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id")
	}
}
