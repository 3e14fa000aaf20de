package site

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"olcsync/internal/logging"
	"olcsync/internal/services"
)

const (
	airfieldPath   = "/olc-3.0/gliding/flightsOfAirfield.html"
	flightbookPath = "/olc-3.0/gliding/flightbook.html"
	flightInfoPath = "/olc-3.0/gliding/flightinfo.html"
	indexPath      = "/olc-3.0/gliding/index.html"

	// BatchSize is the largest page requested from the airfield listing.
	BatchSize = 50
	// YearDelay separates the listing of consecutive years.
	YearDelay = 10 * time.Second

	maxPageBytes = 8 << 20
)

var sleep = sleepWithContext

// SetSleepForTests replaces the delay function and returns a restore func.
func SetSleepForTests(fn func(context.Context, time.Duration) error) func() {
	prev := sleep
	if fn == nil {
		fn = sleepWithContext
	}
	sleep = fn
	return func() { sleep = prev }
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SessionProvider hands out the authenticated client.
type SessionProvider interface {
	Session() (*http.Client, error)
}

// Config describes an Adapter.
type Config struct {
	BaseURL string
	Session SessionProvider
	// RequestInterval is the minimum spacing between site requests.
	RequestInterval time.Duration
	Logger          *slog.Logger
	// Now is used for the supported year range; time.Now when nil.
	Now func() time.Time
}

// Adapter lists and resolves flights.
type Adapter struct {
	base    *url.URL
	session SessionProvider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an Adapter.
func New(cfg Config) (*Adapter, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "site", "new", fmt.Sprintf("invalid base url %q", cfg.BaseURL), err)
	}
	if cfg.Session == nil {
		return nil, services.Wrap(services.ErrConfiguration, "site", "new", "session provider is required", nil)
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	logger := logging.NewComponentLogger(cfg.Logger, "site")
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		base:    base,
		session: cfg.Session,
		limiter: rate.NewLimiter(limit, 1),
		breaker: newDetailBreaker(logger),
		logger:  logger,
		now:     now,
	}, nil
}

func newDetailBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "flight-detail",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errorsIsNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
}

func (a *Adapter) resolve(path string, query url.Values) *url.URL {
	u := a.base.ResolveReference(&url.URL{Path: path})
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u
}

// fetch performs a paced request and returns the body and the final URL.
func (a *Adapter) fetch(ctx context.Context, req *http.Request) ([]byte, *url.URL, error) {
	client, err := a.session.Session()
	if err != nil {
		return nil, nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, services.Wrap(services.ErrNotFound, "site", "fetch", req.URL.String(), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode)
	}
	return body, resp.Request.URL, nil
}
