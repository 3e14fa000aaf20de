package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"olcsync/internal/config"
)

const userAgent = "olcsync/0.1.0"

// Event names a notification type.
type Event string

const (
	EventRunCompleted    Event = "run_completed"
	EventRateLimited     Event = "rate_limited"
	EventUploadCompleted Event = "upload_completed"
	EventError           Event = "error"
	EventTest            Event = "test"
)

// Payload carries event fields. Counts are ints, durations time.Duration.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	scope := payload.text("scope")
	switch event {
	case EventRunCompleted:
		downloaded := payload.count("downloaded")
		failed := payload.count("failed")
		if downloaded == 0 && failed == 0 {
			return message{}, false
		}
		duration := durationText(payload.duration("duration"))
		if failed == 0 {
			return message{
				title: "olcsync - " + scope,
				body:  fmt.Sprintf("Downloaded %d new flights in %s", downloaded, duration),
				tags:  []string{"olcsync", "download", "completed"},
			}, true
		}
		return message{
			title: "olcsync - " + scope + " (with errors)",
			body:  fmt.Sprintf("Downloaded %d new flights, %d failed in %s", downloaded, failed, duration),
			tags:  []string{"olcsync", "download", "failed"},
		}, true
	case EventRateLimited:
		return message{
			title: "olcsync - Download Limit",
			body:  fmt.Sprintf("Daily download limit reached for %s after %d flights", scope, payload.count("downloaded")),
			tags:  []string{"olcsync", "download", "limit"},
		}, true
	case EventUploadCompleted:
		body := fmt.Sprintf("Uploaded %d files for %s", payload.count("uploaded"), scope)
		if url := payload.text("url"); url != "" {
			body += "\n" + url
		}
		return message{
			title: "olcsync - Map Published",
			body:  body,
			tags:  []string{"olcsync", "upload", "completed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" during ")
			b.WriteString(label)
		}
		if scope != "" {
			b.WriteString(" for ")
			b.WriteString(scope)
		}
		b.WriteString(": ")
		if detail := payload.text("error"); detail != "" {
			b.WriteString(detail)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "olcsync - Error",
			body:     b.String(),
			tags:     []string{"olcsync", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "olcsync - Test",
			body:     "Notification system test",
			tags:     []string{"olcsync", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func durationText(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func (p Payload) duration(key string) time.Duration {
	if v, ok := p[key].(time.Duration); ok {
		return v
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
