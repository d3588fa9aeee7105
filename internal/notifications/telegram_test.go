package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTelegramNotifierSendsToChat(t *testing.T) {
	var getMe, sent atomic.Int32
	var (
		mu         sync.Mutex
		text, chat string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			getMe.Add(1)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"transphire","username":"transphire_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sent.Add(1)
			_ = r.ParseForm()
			mu.Lock()
			text = r.FormValue("text")
			chat = r.FormValue("chat_id")
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	n := newTelegramNotifier("TOKEN", 42, server.URL+"/bot%s/%s", 5*time.Second)
	svc := newService(n)
	for range 2 {
		if err := svc.Publish(context.Background(), EventDeviceRemoved, Payload{"device": "/dev/sdb"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if getMe.Load() != 1 {
		t.Fatalf("expected bot to authorise once, got %d", getMe.Load())
	}
	if sent.Load() != 2 {
		t.Fatalf("expected two messages, got %d", sent.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if chat != "42" || !strings.Contains(text, "Block device /dev/sdb was removed.") {
		t.Fatalf("unexpected message chat=%q text=%q", chat, text)
	}
}

func TestTelegramNotifierAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer server.Close()

	n := newTelegramNotifier("BAD", 42, server.URL+"/bot%s/%s", time.Second)
	if err := n.send(context.Background(), Message{Body: "x"}); err == nil {
		t.Fatal("expected authorisation error")
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(30 * time.Minute)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if !l.Allow("Motion", start) {
		t.Fatal("first notification must pass")
	}
	if l.Allow("Motion", start.Add(29*time.Minute)) {
		t.Fatal("second notification within interval must be suppressed")
	}
	if !l.Allow("CTF", start.Add(time.Minute)) {
		t.Fatal("keys are independent")
	}
	if !l.Allow("Motion", start.Add(30*time.Minute)) {
		t.Fatal("notification after interval must pass")
	}
	if !NewLimiter(0).Allow("x", start) || !(*Limiter)(nil).Allow("x", start) {
		t.Fatal("disabled limiter must admit everything")
	}
}
