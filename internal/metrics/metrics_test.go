package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.SetQueue("Motion", 4, 10)
	m.ObserveSuccess("Motion", 2*time.Second)
	m.ObserveFailure("CTF", "lost_connection", time.Second)
	m.SetFlag("Copy_work", "lost_work", true)
	m.SetRunning("Motion", 2)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`transphire_queue_depth{stage="Motion"} 4`,
		`transphire_queue_done{stage="Motion"} 10`,
		`transphire_items_processed_total{stage="Motion"} 1`,
		`transphire_failures_total{kind="lost_connection",stage="CTF"} 1`,
		`transphire_stage_flag{flag="lost_work",stage="Copy_work"} 1`,
		`transphire_workers_running{stage="Motion"} 2`,
		`transphire_dispatch_duration_seconds_count{stage="Motion"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetQueue("x", 1, 1)
	m.ObserveSuccess("x", 0)
	m.ObserveFailure("x", "unknown", 0)
	m.SetFlag("x", "y", true)
	m.SetRunning("x", 1)
}

func TestServerServesAndShutsDown(t *testing.T) {
	m := New()
	m.SetQueue("Find", 0, 3)
	srv, err := m.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `transphire_queue_done{stage="Find"} 3`) {
		t.Fatalf("unexpected body:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
