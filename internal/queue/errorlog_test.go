package queue_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"transphire/internal/logging"
	"transphire/internal/queue"
)

func TestErrorLogAppendsRedactedEntry(t *testing.T) {
	dir := t.TempDir()
	log := queue.NewErrorLog(dir, "Copy_hdd", logging.NewRedactor("pa55word"))

	text, err := log.Append("micrograph_000002", errors.New("sudo -S mount failed with pa55word\n\nexit 32"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if strings.Contains(text, "pa55word") {
		t.Fatalf("returned text not redacted: %q", text)
	}

	data, err := os.ReadFile(log.Path())
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < 6 {
		t.Fatalf("unexpected entry layout: %q", data)
	}
	if lines[1] != "Copy_hdd" || lines[2] != "micrograph_000002" {
		t.Fatalf("unexpected header lines: %q", lines[:3])
	}
	if strings.Contains(string(data), "pa55word") {
		t.Fatalf("secret written to error file: %q", data)
	}

	snap, err := queue.ReadSnapshot(dir, "Copy_hdd")
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.Errors != 1 {
		t.Fatalf("expected one error entry, got %d", snap.Errors)
	}
}

func TestReadSnapshotCountsMirrors(t *testing.T) {
	dir := t.TempDir()
	q, err := queue.Open(dir, "Motion")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q.Enqueue("A")
	q.Enqueue("B")
	root, _ := q.Dequeue()
	if err := q.MarkDone(root); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	snap, err := queue.ReadSnapshot(dir, "Motion")
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.Pending != 1 || snap.Done != 1 || snap.Errors != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	missing, err := queue.ReadSnapshot(dir+"/absent", "Motion")
	if err != nil || missing.Pending != 0 {
		t.Fatalf("expected empty snapshot for missing dir, got %+v err=%v", missing, err)
	}
}

func TestBatchListRollsAndRecovers(t *testing.T) {
	dir := t.TempDir()
	list, err := queue.OpenBatchList(dir, "Copy_hdd")
	if err != nil {
		t.Fatalf("OpenBatchList: %v", err)
	}
	var complete []int
	for _, member := range []string{"a", "b", "c", "d", "e"} {
		index, full, err := list.Add(member, 2)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if full {
			complete = append(complete, index)
		}
	}
	if len(complete) != 2 || complete[0] != 0 || complete[1] != 1 {
		t.Fatalf("unexpected completed batches %v", complete)
	}

	reopened, err := queue.OpenBatchList(dir, "Copy_hdd")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	index, members := reopened.Current()
	if index != 2 || len(members) != 1 || members[0] != "e" {
		t.Fatalf("unexpected recovered batch %d %v", index, members)
	}
	if got := reopened.Members(1); len(got) != 2 || got[0] != "c" {
		t.Fatalf("unexpected members of batch 1: %v", got)
	}
	if _, full, _ := reopened.Add("e", 2); full {
		t.Fatal("re-adding an existing member must not complete the batch")
	}
}

func TestBatchListRejectsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeMirror(t, queue.ListPath(dir, "Copy_hdd"), "zero\tfile")
	if _, err := queue.OpenBatchList(dir, "Copy_hdd"); err == nil {
		t.Fatal("expected malformed list error")
	}
}
