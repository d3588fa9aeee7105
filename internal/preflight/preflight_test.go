package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transphire/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
	if CheckDirectoryAccess("test", "").Passed {
		t.Fatal("expected failure for empty path")
	}
}

func TestCheckMountAndQuota(t *testing.T) {
	if !CheckMount("root", "/").Passed {
		t.Fatal("root must be reported mounted")
	}
	if CheckMount("tmp", t.TempDir()).Passed {
		t.Fatal("plain directory must not pass the mount check")
	}
	if !CheckQuota("quota", t.TempDir(), 100.1).Passed {
		t.Fatal("a limit above 100% can never be exceeded")
	}
	if CheckQuota("quota", filepath.Join(t.TempDir(), "missing"), 95).Passed {
		t.Fatal("missing path must fail the quota check")
	}
}

func TestRunAllCoversEnabledTargets(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Stages = config.DefaultStages()
	cfg.Paths.ProjectDir = filepath.Join(root, "project")
	cfg.Paths.QueueDir = filepath.Join(root, "project", "Queue")
	cfg.Paths.SearchPath = filepath.Join(root, "incoming")
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	for _, dir := range []string{cfg.Paths.QueueDir, cfg.Paths.SearchPath, cfg.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg.Copy["Copy to work"] = "True"
	cfg.Copy["Copy to backup"] = "True"
	cfg.Health.RequireMounts = false
	cfg.Health.QuotaStopProject = 100.1

	results := RunAll(&cfg)
	failed := Failures(results)
	if len(failed) != 1 || failed[0].Name != "Copy target backup" {
		t.Fatalf("expected only the unconfigured backup target to fail, got %#v", failed)
	}

	var sawWork bool
	for _, r := range results {
		if r.Name == "Copy target work" {
			sawWork = r.Passed
		}
		if strings.HasPrefix(r.Name, "Copy target hdd") {
			t.Fatal("disabled hdd target must not be checked")
		}
	}
	if !sawWork {
		t.Fatal("expected work target check to pass")
	}

	cfg.Health.RequireMounts = true
	if len(Failures(RunAll(&cfg))) != 2 {
		t.Fatal("expected the work mount check to fail when mounts are required")
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := config.Default()
	cfg.Stages = config.DefaultStages()
	cfg.Tools = map[string]config.Tool{"motion": {Executable: "definitely-not-motioncor"}}
	cfg.Copy["Motion"] = "MotionCor2"

	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 1 || statuses[0].Available {
		t.Fatalf("expected one missing tool, got %#v", statuses)
	}
}
