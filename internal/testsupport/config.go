package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"transphire/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every root except the copy targets exists; mounts are not required and
// quotas never trip on a real filesystem.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		ProjectDir: filepath.Join(base, "project"),
		QueueDir:   filepath.Join(base, "project", "Queue"),
		LogDir:     filepath.Join(base, "project", "Logs"),
		SearchPath: filepath.Join(base, "incoming"),
		ScratchDir: filepath.Join(base, "scratch"),
		WorkDir:    filepath.Join(base, "work"),
		BackupDir:  filepath.Join(base, "backup"),
		HDDDir:     filepath.Join(base, "hdd"),
	}
	cfgVal.Health.QuotaStopProject = 100
	cfgVal.Health.QuotaStopScratch = 100
	cfgVal.Health.RequireMounts = false
	cfgVal.Health.WatchDevices = false
	cfgVal.Find.Watch = false
	cfgVal.Stages = config.DefaultStages()

	for _, dir := range []string{cfgVal.Paths.SearchPath, cfgVal.Paths.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStages replaces the pipeline topology.
func WithStages(stages ...config.Stage) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stages = stages
	}
}

// WithSetting sets one [copy] routing value, e.g. "Motion" to "True".
func WithSetting(key, value string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Copy == nil {
			b.cfg.Copy = map[string]string{}
		}
		b.cfg.Copy[key] = value
	}
}

// WithTool registers a tool template.
func WithTool(name string, tool config.Tool) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Tools == nil {
			b.cfg.Tools = map[string]config.Tool{}
		}
		b.cfg.Tools[name] = tool
	}
}

// WithCopyTargets creates the work, backup and hdd directories.
func WithCopyTargets() ConfigOption {
	return func(b *configBuilder) {
		for _, dir := range []string{b.cfg.Paths.WorkDir, b.cfg.Paths.BackupDir, b.cfg.Paths.HDDDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.t.Fatalf("mkdir %s: %v", dir, err)
			}
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
