package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"transphire/internal/config"
	"transphire/internal/deps"
	"transphire/internal/health"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks that apply to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Project directory", cfg.Paths.ProjectDir),
		CheckDirectoryAccess("Queue directory", cfg.Paths.QueueDir),
		CheckReadable("Search path", cfg.Paths.SearchPath),
		CheckQuota("Project quota", cfg.Paths.ProjectDir, cfg.Health.QuotaStopProject),
	}
	if cfg.Paths.ScratchDir != "" {
		results = append(results,
			CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
			CheckQuota("Scratch quota", cfg.Paths.ScratchDir, cfg.Health.QuotaStopScratch),
		)
	}

	seen := map[string]bool{}
	for _, stg := range cfg.Stages {
		if stg.Kind != config.KindCopy || !cfg.StageEnabled(stg) || seen[stg.Target] {
			continue
		}
		seen[stg.Target] = true
		dir := cfg.TargetDir(stg.Target)
		label := "Copy target " + stg.Target
		if dir == "" {
			results = append(results, Result{Name: label, Detail: fmt.Sprintf("%s enabled but paths.%s_dir is empty", stg.Name, stg.Target)})
			continue
		}
		results = append(results, CheckDirectoryAccess(label, dir))
		if cfg.Health.RequireMounts {
			results = append(results, CheckMount(label+" mount", dir))
		}
	}
	return results
}

// CheckDirectoryAccess verifies that path is a directory with read, write
// and execute permission.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadable verifies that path is a directory transphire can list.
func CheckReadable(name, path string) Result {
	if !(health.DirectoryProbe{}).Available(path) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a readable directory)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckMount verifies that path is a mount point.
func CheckMount(name, path string) Result {
	mounted, err := health.IsMounted(path)
	switch {
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	case !mounted:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not mounted)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (mounted)", path)}
}

// CheckQuota verifies the filesystem holding path is below stopPercent.
func CheckQuota(name, path string, stopPercent float64) Result {
	usage, err := health.DiskUsage(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	pct := usage.PercentUsed()
	if health.QuotaExceeded(usage, stopPercent) {
		return Result{Name: name, Detail: fmt.Sprintf("%.1f%% used, limit %.0f%%", pct, stopPercent)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%.1f%% used", pct)}
}

// CheckSystemDeps resolves the executables of every enabled tool.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.ToolRequirements(cfg))
}

// Failures returns the results that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
