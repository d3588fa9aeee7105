package history_test

import (
	"context"
	"testing"
	"time"

	"transphire/internal/history"
)

func TestRecordAndSummarize(t *testing.T) {
	ctx := context.Background()
	store, err := history.Open(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	entries := []history.Entry{
		{RunID: "r1", Stage: "Motion", Root: "m_1", Outcome: history.OutcomeSuccess, Duration: 1500 * time.Millisecond},
		{RunID: "r1", Stage: "Motion", Root: "m_2", Outcome: history.OutcomeRetry, Kind: "lost_connection", Detail: "stale handle"},
		{RunID: "r1", Stage: "CTF", Root: "m_1", Outcome: history.OutcomeSuccess},
		{RunID: "r1", Stage: "Import", Root: "FoilHole_7", Outcome: history.OutcomeSkip},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summary) != 3 || summary[0].Stage != "CTF" || summary[2].Stage != "Motion" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	motion := summary[2]
	if motion.Successes != 1 || motion.Retries != 1 || motion.LastAt.IsZero() {
		t.Fatalf("unexpected Motion summary %+v", motion)
	}

	recent, err := store.Recent(ctx, "Motion", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Root != "m_2" || recent[0].Kind != "lost_connection" {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first, err := history.Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Record(ctx, history.Entry{RunID: "r", Stage: "Find", Root: "x", Outcome: history.OutcomeSuccess}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = first.Close()

	second, err := history.Open(ctx, dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	recent, err := second.Recent(ctx, "", 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("expected persisted entry, got %v err=%v", recent, err)
	}
}
