package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"transphire/internal/config"
)

const userAgent = "transphire/0.1"

// Event identifies the kind of pipeline notification.
type Event string

const (
	EventLostConnection Event = "lost_connection"
	EventRecovered      Event = "recovered"
	EventDiskFull       Event = "disk_full"
	EventQuotaStop      Event = "quota_stop"
	EventUnknownError   Event = "unknown_error"
	EventStageHalted    Event = "stage_halted"
	EventNoNewFiles     Event = "no_new_files"
	EventDeviceRemoved  Event = "device_removed"
	EventMessage        Event = "message"
	EventTest           Event = "test"
)

// Payload carries the event fields used to render a message.
type Payload map[string]string

// Service publishes pipeline events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Message is a rendered notification.
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
}

// notifier delivers one rendered message over a transport.
type notifier interface {
	send(ctx context.Context, msg Message) error
}

// NewService builds a service from the configured backends.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var backends []notifier
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		backends = append(backends, newNtfyNotifier(topic, timeout))
	}
	if token := strings.TrimSpace(cfg.Notifications.TelegramToken); token != "" && cfg.Notifications.TelegramChatID != 0 {
		backends = append(backends, newTelegramNotifier(token, cfg.Notifications.TelegramChatID, "", timeout))
	}
	return newService(backends...)
}

func newService(backends ...notifier) Service {
	if len(backends) == 0 {
		return noopService{}
	}
	return &service{backends: backends}
}

type service struct {
	backends []notifier
}

func (s *service) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := Render(event, payload)
	if !ok {
		return nil
	}
	var errs []error
	for _, backend := range s.backends {
		if err := backend.send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Render formats an event. It returns false for events that carry nothing to
// send.
func Render(event Event, payload Payload) (Message, bool) {
	stage := strings.TrimSpace(payload["stage"])
	detail := strings.TrimSpace(payload["detail"])
	switch event {
	case EventLostConnection:
		return Message{
			Title:    "transphire - Lost connection",
			Body:     fmt.Sprintf("%s lost %s. Waiting for it to come back.", stage, payload["dependency"]),
			Tags:     []string{"transphire", "connection", "lost"},
			Priority: "high",
		}, true
	case EventRecovered:
		return Message{
			Title: "transphire - Connection restored",
			Body:  fmt.Sprintf("%s regained %s.", stage, payload["dependency"]),
			Tags:  []string{"transphire", "connection", "restored"},
		}, true
	case EventDiskFull:
		return Message{
			Title:    "transphire - Disk full",
			Body:     fmt.Sprintf("%s cannot write to %s. %s", stage, payload["dependency"], detail),
			Tags:     []string{"transphire", "disk", "full"},
			Priority: "high",
		}, true
	case EventQuotaStop:
		return Message{
			Title:    "transphire - Quota exceeded",
			Body:     fmt.Sprintf("Stopping the pipeline: %s", detail),
			Tags:     []string{"transphire", "quota", "stop"},
			Priority: "urgent",
		}, true
	case EventUnknownError:
		return Message{
			Title:    "transphire - Error",
			Body:     fmt.Sprintf("❌ Error in %s: %s", stage, detail),
			Tags:     []string{"transphire", "error", "alert"},
			Priority: "high",
		}, true
	case EventStageHalted:
		return Message{
			Title:    "transphire - Stage halted",
			Body:     fmt.Sprintf("%s worker stopped: %s", stage, detail),
			Tags:     []string{"transphire", "stage", "halted"},
			Priority: "high",
		}, true
	case EventNoNewFiles:
		return Message{
			Title: "transphire - No new files",
			Body:  fmt.Sprintf("No new micrographs for %s minutes.", payload["minutes"]),
			Tags:  []string{"transphire", "find", "idle"},
		}, true
	case EventDeviceRemoved:
		return Message{
			Title:    "transphire - Device removed",
			Body:     fmt.Sprintf("Block device %s was removed.", payload["device"]),
			Tags:     []string{"transphire", "device", "removed"},
			Priority: "high",
		}, true
	case EventMessage:
		if detail == "" {
			return Message{}, false
		}
		return Message{Title: "transphire", Body: detail, Tags: []string{"transphire"}}, true
	case EventTest:
		return Message{
			Title:    "transphire - Test",
			Body:     "🧪 Notification system test",
			Tags:     []string{"transphire", "test"},
			Priority: "low",
		}, true
	}
	return Message{}, false
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
