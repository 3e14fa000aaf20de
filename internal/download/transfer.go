package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"

	"olcsync/internal/fileutil"
	"olcsync/internal/flight"
	"olcsync/internal/igc"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

const htmlPeekLimit = 1 << 20

var rateLimitPhrases = []string{"download limitation", "downloadlimit"}

type attemptState int

const (
	stateAttempting attemptState = iota
	stateSuccess
	stateValidationFailed
	stateTransientError
	stateClientError
	stateRateLimited
)

func (s attemptState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateSuccess:
		return "success"
	case stateValidationFailed:
		return "validation_failed"
	case stateTransientError:
		return "transient_error"
	case stateClientError:
		return "client_error"
	case stateRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

type outcome struct {
	state attemptState
	err   error
	// refresh asks for a new session before the next attempt.
	refresh bool
}

// transfer drives one file through its attempts. The destination never
// survives a failed attempt.
func (m *Manager) transfer(ctx context.Context, d flight.Descriptor, dest string, logger *slog.Logger) error {
	if !d.Resolved() {
		return services.Wrap(services.ErrDownload, "download", "transfer", m.describe(d)+" has no download link", nil)
	}
	var last outcome
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if attempt > 0 {
			wait := m.backoff(attempt)
			logger.Info("retrying download",
				logging.Int("attempt", attempt+1),
				logging.Int("max_attempts", m.maxRetries),
				logging.Duration("backoff", wait),
				logging.String("previous_state", last.state.String()),
			)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}

		last = m.attempt(ctx, d, dest)
		if last.state != stateSuccess {
			if err := fileutil.RemoveIfExists(dest); err != nil {
				logger.Warn("could not delete partial file", logging.Error(err))
			}
		}

		switch last.state {
		case stateSuccess:
			return nil
		case stateRateLimited:
			return services.Wrap(services.ErrRateLimit, "download", "transfer", m.describe(d), last.err)
		case stateClientError:
			return services.Wrap(services.ErrDownload, "download", "transfer", m.describe(d), last.err)
		case stateValidationFailed, stateTransientError:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("download attempt failed",
				logging.String("state", last.state.String()),
				logging.Int("attempt", attempt+1),
				logging.Error(last.err),
			)
			if last.refresh && m.refresher != nil && attempt < m.maxRetries-1 {
				if err := m.refresher.Refresh(ctx); err != nil {
					logging.WarnWithContext(logger, "session refresh failed", "session_refresh_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "remaining attempts may also be rejected"),
					)
				} else {
					logger.Info("session refreshed")
				}
			}
		}
	}
	return services.Wrap(services.ErrDownload, "download", "transfer",
		fmt.Sprintf("%s failed after %d attempts", m.describe(d), m.maxRetries), last.err)
}

// attempt performs one GET and classifies the result.
func (m *Manager) attempt(ctx context.Context, d flight.Descriptor, dest string) outcome {
	base, err := m.session.Session()
	if err != nil {
		return outcome{state: stateClientError, err: err}
	}
	client := *base
	client.Timeout = m.timeout

	attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, d.DownloadURL, nil)
	if err != nil {
		return outcome{state: stateClientError, err: err}
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if d.RefererURL != "" {
		req.Header.Set("Referer", d.RefererURL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return outcome{state: stateTransientError, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, htmlPeekLimit))
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, URL: d.DownloadURL}
		if statusErr.Retryable() {
			return outcome{state: stateTransientError, err: statusErr}
		}
		return outcome{state: stateClientError, err: statusErr}
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, htmlPeekLimit))
		if IsRateLimitPage(body) {
			return outcome{state: stateRateLimited, err: errors.New("download limitation page returned")}
		}
		return outcome{state: stateTransientError, err: errors.New("html page returned instead of track log"), refresh: true}
	}

	if err := writeBody(dest, resp.Body); err != nil {
		return outcome{state: stateTransientError, err: err}
	}
	if err := igc.CheckFile(dest); err != nil {
		refresh := igc.IsHTMLFile(dest)
		return outcome{state: stateValidationFailed, err: err, refresh: refresh}
	}
	return outcome{state: stateSuccess}
}

func writeBody(dest string, body io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html"
}

// IsRateLimitPage reports whether body is the site's daily-limit notice.
func IsRateLimitPage(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
