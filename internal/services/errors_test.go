package services_test

import (
	"errors"
	"strings"
	"testing"

	"olcsync/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDownload, "download", "fetch", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"download", "fetch", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"auth", services.Wrap(services.ErrAuthentication, "auth", "login", "", nil), true},
		{"config", services.Wrap(services.ErrConfiguration, "config", "", "missing", nil), true},
		{"rate limit", services.Wrap(services.ErrRateLimit, "download", "", "", nil), false},
		{"scraping", services.Wrap(services.ErrScraping, "site", "", "", nil), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := services.IsFatal(tc.err); got != tc.want {
			t.Errorf("%s: IsFatal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindLabels(t *testing.T) {
	if got := services.Kind(services.Wrap(services.ErrRateLimit, "d", "", "", nil)); got != "rate_limit" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(errors.New("other")); got != "transient" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
