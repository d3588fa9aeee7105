package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"transphire/internal/config"
	"transphire/internal/notifications"
)

func TestNewServiceReturnsNoopWithoutBackends(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("nil config: %v", err)
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
			name:           "lost connection",
			event:          notifications.EventLostConnection,
			payload:        notifications.Payload{"stage": "Copy_work", "dependency": "work"},
			expectTitle:    "transphire - Lost connection",
			expectMessage:  "Copy_work lost work. Waiting for it to come back.",
			expectTags:     "transphire,connection,lost",
			expectPriority: "high",
		},
		{
			name:          "recovered",
			event:         notifications.EventRecovered,
			payload:       notifications.Payload{"stage": "Copy_work", "dependency": "work"},
			expectTitle:   "transphire - Connection restored",
			expectMessage: "Copy_work regained work.",
			expectTags:    "transphire,connection,restored",
		},
		{
			name:           "quota stop",
			event:          notifications.EventQuotaStop,
			payload:        notifications.Payload{"detail": "project 96.0% used"},
			expectTitle:    "transphire - Quota exceeded",
			expectMessage:  "Stopping the pipeline: project 96.0% used",
			expectTags:     "transphire,quota,stop",
			expectPriority: "urgent",
		},
		{
			name:           "unknown error",
			event:          notifications.EventUnknownError,
			payload:        notifications.Payload{"stage": "Motion", "detail": "exit status 1"},
			expectTitle:    "transphire - Error",
			expectMessage:  "❌ Error in Motion: exit status 1",
			expectTags:     "transphire,error,alert",
			expectPriority: "high",
		},
		{
			name:          "no new files",
			event:         notifications.EventNoNewFiles,
			payload:       notifications.Payload{"minutes": "30"},
			expectTitle:   "transphire - No new files",
			expectMessage: "No new micrographs for 30 minutes.",
			expectTags:    "transphire,find,idle",
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
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
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

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestServiceSkipsEmptyMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for empty message: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventMessage, "unheard_of"} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{}); err != nil {
			t.Fatalf("expected no error for %s, got %v", event, err)
		}
	}
}
