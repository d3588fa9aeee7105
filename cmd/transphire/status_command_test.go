package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStatusWithoutQueues(t *testing.T) {
	path := sampleConfigPath(t)

	out, err := runCLI(t, "--config", path, "status", "--history")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[INFO] Not running")
	for _, want := range []string{"Motion", "Copy_work", "Transform", "Pending"} {
		requireContains(t, out, want)
	}
	requireContains(t, out, "No dispatch history recorded yet")
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no colour codes for a buffer writer: %q", out)
	}
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	path := sampleConfigPath(t)
	cfg := loadConfig(t, path)
	if err := os.MkdirAll(cfg.Paths.ProjectDir, 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}
	content := "2026-01-01 10:00:00\tFind\tfound 2\n2026-01-01 10:00:05\tImport#1\timported micrograph_000001\n"
	if err := os.WriteFile(filepath.Join(cfg.Paths.ProjectDir, "log.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := runCLI(t, "--config", path, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "imported micrograph_000001")
	if strings.Contains(out, "found 2") {
		t.Fatalf("expected only the last line, got %q", out)
	}
}

func TestCheckReportsMissingTools(t *testing.T) {
	path := sampleConfigPath(t)
	t.Setenv("PATH", t.TempDir())

	out, err := runCLI(t, "--config", path, "check")
	if err == nil {
		t.Fatal("expected check to fail without tool executables")
	}
	requireContains(t, out, "== Executables ==")
	requireContains(t, out, "[ERROR]")
	requireContains(t, out, "Summary:")
}
