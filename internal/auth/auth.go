package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"olcsync/internal/logging"
	"olcsync/internal/services"
)

const (
	// LoginPath is the site's login form location.
	LoginPath = "/olc-3.0/secure/login.html"

	fieldUser   = "_ident_"
	fieldPass   = "_name__"
	fieldSubmit = "ok_par.x"

	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 4 << 20
)

// ErrNotAuthenticated is returned by Session before a successful login.
var ErrNotAuthenticated = errors.New("not authenticated")

var loggedInMarkers = []string{"logout", "abmelden"}

// Config describes the authenticator.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Authenticator owns the one mutable session.
type Authenticator struct {
	baseURL *url.URL
	client  *http.Client
	logger  *slog.Logger

	mu       sync.Mutex
	username string
	password string
	loggedIn bool
}

// New builds an Authenticator. No network activity happens until Login.
func New(cfg Config) (*Authenticator, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "auth", "new", fmt.Sprintf("invalid base url %q", cfg.BaseURL), err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Authenticator{
		baseURL: base,
		client: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: &userAgentTransport{base: transport, agent: strings.TrimSpace(cfg.UserAgent)},
		},
		logger: logging.NewComponentLogger(cfg.Logger, "auth"),
	}, nil
}

// BaseURL returns the site root all relative links resolve against.
func (a *Authenticator) BaseURL() *url.URL {
	clone := *a.baseURL
	return &clone
}

// Login authenticates and stores the credentials for later refreshes.
func (a *Authenticator) Login(ctx context.Context, username, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.username = username
	a.password = password
	return a.loginLocked(ctx)
}

// Refresh discards every cookie and logs in again with stored credentials.
// The client returned by Session stays the same object.
func (a *Authenticator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.username == "" || a.password == "" {
		return services.Wrap(services.ErrAuthentication, "auth", "refresh", "cannot refresh session: no credentials stored", nil)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	a.client.Jar = jar
	a.loggedIn = false
	a.logger.Info("refreshing session")
	return a.loginLocked(ctx)
}

// Session returns the authenticated client.
func (a *Authenticator) Session() (*http.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loggedIn {
		return nil, services.Wrap(services.ErrAuthentication, "auth", "session", "login first", ErrNotAuthenticated)
	}
	return a.client, nil
}

// Authenticated reports whether the last login succeeded.
func (a *Authenticator) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

func (a *Authenticator) loginLocked(ctx context.Context) error {
	a.loggedIn = false
	loginURL := a.baseURL.ResolveReference(&url.URL{Path: LoginPath})

	a.logger.Debug("fetching login page", logging.String("url", loginURL.String()))
	form, action, err := a.fetchLoginForm(ctx, loginURL)
	if err != nil {
		return err
	}

	form.Set(fieldUser, a.username)
	form.Set(fieldPass, a.password)
	form.Set(fieldSubmit, "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return services.Wrap(services.ErrAuthentication, "auth", "login", "build login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", loginURL.String())

	resp, err := a.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrAuthentication, "auth", "login", "network error during login", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return services.Wrap(services.ErrAuthentication, "auth", "login", fmt.Sprintf("login returned status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return services.Wrap(services.ErrAuthentication, "auth", "login", "read login response", err)
	}
	if !hasLoggedInMarker(string(body)) {
		return services.Wrap(services.ErrAuthentication, "auth", "login", "login failed: invalid credentials or unexpected response", nil)
	}

	a.loggedIn = true
	a.logger.Info("login successful", logging.String("user", a.username))
	return nil
}

func (a *Authenticator) fetchLoginForm(ctx context.Context, loginURL *url.URL) (url.Values, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL.String(), nil)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrAuthentication, "auth", "login", "build login page request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrAuthentication, "auth", "login", "network error fetching login page", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, nil, services.Wrap(services.ErrAuthentication, "auth", "login", fmt.Sprintf("login page returned status %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, services.Wrap(services.ErrAuthentication, "auth", "login", "parse login page", err)
	}
	formSel := doc.Find("form").First()
	if formSel.Length() == 0 {
		return nil, nil, services.Wrap(services.ErrAuthentication, "auth", "login", "could not find login form on page", nil)
	}

	action := loginURL
	if raw, ok := formSel.Attr("action"); ok && strings.TrimSpace(raw) != "" {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, nil, services.Wrap(services.ErrAuthentication, "auth", "login", "invalid form action", err)
		}
		action = resp.Request.URL.ResolveReference(ref)
	}

	values := url.Values{}
	formSel.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		values.Set(name, input.AttrOr("value", ""))
	})
	return values, action, nil
}

func hasLoggedInMarker(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range loggedInMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}
