package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFinder(root string) Finder {
	return Finder{
		SearchPath:    root,
		MarkerGlob:    "*.xml",
		FrameSuffixes: []string{"_fractions.tiff"},
		FrameFiles:    1,
	}
}

func TestScanOrdersByAcquisitionTime(t *testing.T) {
	root := t.TempDir()
	late := "FoilHole_1_Data_2_3_20240501_130000"
	early := "FoilHole_9_Data_2_3_20240501_120000"
	for _, name := range []string{late, early} {
		dir := filepath.Join(root, "GridSquare_1", "Data")
		writeFile(t, filepath.Join(dir, name+".xml"), "<xml/>")
		writeFile(t, filepath.Join(dir, name+"_fractions.tiff"), "frames")
	}

	found, err := newFinder(root).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(found) != 2 || found[0].Root != early || found[1].Root != late {
		t.Fatalf("unexpected order: %+v", found)
	}
	if len(found[0].Frames) != 1 || filepath.Base(found[0].Frames[0]) != early+"_fractions.tiff" {
		t.Fatalf("unexpected frames: %v", found[0].Frames)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	if !found[0].Acquired.Equal(want) {
		t.Fatalf("acquired = %v, want %v", found[0].Acquired, want)
	}
}

func TestScanSkipsKnownAndIncomplete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "done_20240101_000000.xml"), "x")
	writeFile(t, filepath.Join(root, "done_20240101_000000_fractions.tiff"), "x")
	writeFile(t, filepath.Join(root, "nofr_20240101_000001.xml"), "x")
	writeFile(t, filepath.Join(root, "empty_20240101_000002.xml"), "x")
	writeFile(t, filepath.Join(root, "empty_20240101_000002_fractions.tiff"), "")
	writeFile(t, filepath.Join(root, "ok_20240101_000003.xml"), "x")
	writeFile(t, filepath.Join(root, "ok_20240101_000003_fractions.tiff"), "x")
	writeFile(t, filepath.Join(root, "notes.txt"), "x")

	known := func(r string) bool { return r == "done_20240101_000000" }
	found, err := newFinder(root).Scan(context.Background(), known)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(found) != 1 || found[0].Root != "ok_20240101_000003" {
		t.Fatalf("expected only the complete acquisition, got %+v", found)
	}
}

func TestScanFrameCountMustMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a_20240101_000000.xml"), "x")
	writeFile(t, filepath.Join(root, "a_20240101_000000_1_fractions.tiff"), "x")
	writeFile(t, filepath.Join(root, "a_20240101_000000_2_fractions.tiff"), "x")

	f := newFinder(root)
	if found, _ := f.Scan(context.Background(), nil); len(found) != 0 {
		t.Fatalf("two frames where one is expected must not match: %+v", found)
	}
	f.FrameFiles = 2
	if found, _ := f.Scan(context.Background(), nil); len(found) != 1 {
		t.Fatalf("expected match with frame_files=2, got %+v", found)
	}
	f.FrameFiles = 0
	found, _ := f.Scan(context.Background(), nil)
	if len(found) != 1 || len(found[0].Frames) != 0 {
		t.Fatalf("frame_files=0 skips the frame check, got %+v", found)
	}
}

func TestScanMissingSearchPath(t *testing.T) {
	_, err := newFinder(filepath.Join(t.TempDir(), "unmounted")).Scan(context.Background(), nil)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestAcquisitionTimeWithoutStamp(t *testing.T) {
	if _, ok := AcquisitionTime("micrograph"); ok {
		t.Fatal("expected no timestamp")
	}
	if _, ok := AcquisitionTime("x_20241399_000000"); ok {
		t.Fatal("invalid dates must not parse")
	}
}

func TestWatcherSignalsNewFiles(t *testing.T) {
	root := t.TempDir()
	var errs []error
	w := NewWatcher(root, WithOnError(func(err error) { errs = append(errs, err) }))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()
	if err := w.Start(context.Background()); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	sub := filepath.Join(root, "GridSquare_7")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.Changed():
	case <-time.After(5 * time.Second):
		t.Fatal("no signal for new directory")
	}

	writeFile(t, filepath.Join(sub, "a.xml"), "x")
	select {
	case <-w.Changed():
	case <-time.After(5 * time.Second):
		t.Fatal("no signal for file in new directory")
	}

	w.Stop()
	w.Stop()
}
