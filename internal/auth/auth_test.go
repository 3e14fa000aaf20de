package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"olcsync/internal/auth"
	"olcsync/internal/services"
	"olcsync/internal/testsupport"
)

func newAuthenticator(t *testing.T, baseURL string) *auth.Authenticator {
	t.Helper()
	a, err := auth.New(auth.Config{BaseURL: baseURL, UserAgent: "olcsync-test"})
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	return a
}

func TestLoginSubmitsFormAndStoresSession(t *testing.T) {
	site := testsupport.NewFakeOLC(t)
	a := newAuthenticator(t, site.URL)

	if _, err := a.Session(); !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected Session to fail before login, got %v", err)
	}
	if err := a.Login(context.Background(), site.Username, site.Password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	client, err := a.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	u, _ := url.Parse(site.URL)
	if cookies := client.Jar.Cookies(u); len(cookies) != 1 || cookies[0].Value != "s1" {
		t.Fatalf("expected session cookie s1, got %v", cookies)
	}
	if site.Logins() != 1 {
		t.Fatalf("expected one login, got %d", site.Logins())
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	site := testsupport.NewFakeOLC(t)
	a := newAuthenticator(t, site.URL)

	err := a.Login(context.Background(), site.Username, "wrong")
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if a.Authenticated() {
		t.Fatal("authenticator must not report success")
	}
}

func TestLoginNetworkFailureIsAuthenticationError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	a := newAuthenticator(t, base)
	err := a.Login(context.Background(), "u", "p")
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestLoginWithoutFormFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer server.Close()

	err := newAuthenticator(t, server.URL).Login(context.Background(), "u", "p")
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestRefreshReplacesCookiesInPlace(t *testing.T) {
	site := testsupport.NewFakeOLC(t)
	a := newAuthenticator(t, site.URL)
	if err := a.Login(context.Background(), site.Username, site.Password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	before, _ := a.Session()

	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	after, err := a.Session()
	if err != nil {
		t.Fatalf("Session after refresh: %v", err)
	}
	if before != after {
		t.Fatal("expected the same client object after refresh")
	}
	u, _ := url.Parse(site.URL)
	cookies := after.Jar.Cookies(u)
	if len(cookies) != 1 || cookies[0].Value != "s2" {
		t.Fatalf("expected fresh cookie s2, got %v", cookies)
	}
}

func TestRefreshWithoutCredentialsFails(t *testing.T) {
	site := testsupport.NewFakeOLC(t)
	a := newAuthenticator(t, site.URL)
	err := a.Refresh(context.Background())
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if site.Logins() != 0 {
		t.Fatal("refresh without credentials must not contact the site")
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := auth.New(auth.Config{BaseURL: "not a url"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
