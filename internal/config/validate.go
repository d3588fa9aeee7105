package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateFind(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	return c.ValidatePipeline()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ProjectDir) == "" {
		return errors.New("paths.project_dir must be set")
	}
	if strings.TrimSpace(c.Paths.SearchPath) == "" {
		return errors.New("paths.search_path must be set")
	}
	for key, target := range map[string]string{
		"paths.work_dir":   c.Paths.WorkDir,
		"paths.backup_dir": c.Paths.BackupDir,
		"paths.hdd_dir":    c.Paths.HDDDir,
	} {
		if target != "" && filepath.Clean(target) == filepath.Clean(c.Paths.ProjectDir) {
			return fmt.Errorf("%s must differ from paths.project_dir", key)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.idle_interval":          c.Workflow.IdleInterval,
		"workflow.find_interval":          c.Workflow.FindInterval,
		"workflow.health_retry_interval":  c.Workflow.HealthRetryInterval,
		"workflow.status_poll_interval":   c.Workflow.StatusPollInterval,
		"workflow.sleep_chunk":            c.Workflow.SleepChunk,
		"workflow.unknown_error_cooldown": c.Workflow.UnknownErrorCooldown,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.SleepChunk > 10 {
		return errors.New("workflow.sleep_chunk must be at most 10 seconds")
	}
	return nil
}

func (c *Config) validateHealth() error {
	for key, value := range map[string]float64{
		"health.quota_stop_project": c.Health.QuotaStopProject,
		"health.quota_stop_scratch": c.Health.QuotaStopScratch,
		"health.disk_full_percent":  c.Health.DiskFullPercent,
	} {
		if value <= 0 || value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", key)
		}
	}
	if c.Health.NotifyIntervalMinutes < 0 {
		return errors.New("health.notify_interval_minutes must be >= 0")
	}
	if c.Health.NoNewFilesMinutes < 0 {
		return errors.New("health.no_new_files_minutes must be >= 0")
	}
	return nil
}

func (c *Config) validateFind() error {
	if _, err := filepath.Match(c.Find.MarkerGlob, "probe"); err != nil {
		return fmt.Errorf("find.marker_glob: %w", err)
	}
	if c.Find.FrameFiles < 0 {
		return errors.New("find.frame_files must be >= 0")
	}
	if c.Find.FrameFiles > 0 && len(c.Find.FrameSuffixes) == 0 {
		return errors.New("find.frame_suffixes must be set when find.frame_files is positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	for name, tool := range c.Tools {
		if strings.TrimSpace(tool.Executable) == "" {
			return fmt.Errorf("tools.%s.executable must be set", name)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
