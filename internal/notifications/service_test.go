package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"olcsync/internal/config"
	"olcsync/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "run completed",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"scope":      "EDKA",
				"downloaded": 4,
				"duration":   95 * time.Second,
			},
			expectTitle:   "olcsync - EDKA",
			expectMessage: "Downloaded 4 new flights in 1m35s",
			expectTags:    "olcsync,download,completed",
		},
		{
			name:  "run with failures",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"scope":      "pilot",
				"downloaded": 1,
				"failed":     2,
			},
			expectTitle:   "olcsync - pilot (with errors)",
			expectMessage: "Downloaded 1 new flights, 2 failed in 0s",
			expectTags:    "olcsync,download,failed",
		},
		{
			name:          "rate limited",
			event:         notifications.EventRateLimited,
			payload:       notifications.Payload{"scope": "EDKA", "downloaded": 12},
			expectTitle:   "olcsync - Download Limit",
			expectMessage: "Daily download limit reached for EDKA after 12 flights",
			expectTags:    "olcsync,download,limit",
		},
		{
			name:  "upload completed",
			event: notifications.EventUploadCompleted,
			payload: notifications.Payload{
				"scope":    "EDKA",
				"uploaded": 3,
				"url":      "https://maps.example.org/index.html",
			},
			expectTitle:   "olcsync - Map Published",
			expectMessage: "Uploaded 3 files for EDKA\nhttps://maps.example.org/index.html",
			expectTags:    "olcsync,upload,completed",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "download",
				"scope":   "EDKA",
				"error":   errors.New("login rejected"),
			},
			expectTitle:    "olcsync - Error",
			expectMessage:  "Error during download for EDKA: login rejected",
			expectTags:     "olcsync,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceSuppressesQuietRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	quiet := []struct {
		event   notifications.Event
		payload notifications.Payload
	}{
		{notifications.EventRunCompleted, notifications.Payload{"scope": "EDKA", "skipped": 40}},
		{notifications.Event("unknown"), notifications.Payload{"value": "ignored"}},
	}
	for _, q := range quiet {
		if err := svc.Publish(context.Background(), q.event, q.payload); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", q.event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
