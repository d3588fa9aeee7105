package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the storage roots the pipeline reads from and writes to.
type Paths struct {
	ProjectDir string `toml:"project_dir"`
	QueueDir   string `toml:"queue_dir"`
	LogDir     string `toml:"log_dir"`
	SearchPath string `toml:"search_path"`
	ScratchDir string `toml:"scratch_dir"`
	WorkDir    string `toml:"work_dir"`
	BackupDir  string `toml:"backup_dir"`
	HDDDir     string `toml:"hdd_dir"`
}

// Workflow contains worker timing. All values are seconds.
type Workflow struct {
	IdleInterval         int `toml:"idle_interval"`
	FindInterval         int `toml:"find_interval"`
	HealthRetryInterval  int `toml:"health_retry_interval"`
	StatusPollInterval   int `toml:"status_poll_interval"`
	SleepChunk           int `toml:"sleep_chunk"`
	UnknownErrorCooldown int `toml:"unknown_error_cooldown"`
}

// Health contains quota, disk and connectivity thresholds.
type Health struct {
	// QuotaStopProject is the used percentage of the project filesystem at
	// which the whole pipeline stops.
	QuotaStopProject float64 `toml:"quota_stop_project"`
	// QuotaStopScratch is the same threshold for the scratch filesystem.
	QuotaStopScratch float64 `toml:"quota_stop_scratch"`
	// DiskFullPercent marks a copy target as full once exceeded.
	DiskFullPercent       float64 `toml:"disk_full_percent"`
	RequireMounts         bool    `toml:"require_mounts"`
	WatchDevices          bool    `toml:"watch_devices"`
	NotifyIntervalMinutes int     `toml:"notify_interval_minutes"`
	NoNewFilesMinutes     int     `toml:"no_new_files_minutes"`
}

// Find configures the discovery stage.
type Find struct {
	MarkerGlob    string   `toml:"marker_glob"`
	FrameSuffixes []string `toml:"frame_suffixes"`
	FrameFiles    int      `toml:"frame_files"`
	Watch         bool     `toml:"watch"`
}

// Import configures the renaming stage.
type Import struct {
	Prefix          string `toml:"prefix"`
	TranslationFile string `toml:"translation_file"`
}

// Notifications contains operator messaging configuration.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID int64  `toml:"telegram_chat_id"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Metrics configures the prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Secrets holds credentials that must never appear in logs or error files.
type Secrets struct {
	SudoPassword string `toml:"sudo_password"`
}

// Config encapsulates all configuration values for transphire.
//
// Configuration sections by subsystem:
//   - Paths: project, queue, log, search and copy-target roots
//   - Copy: the routing settings mapping evaluated by stage aims
//   - Workflow: worker sleep and poll intervals
//   - Health: quota, disk-full and notification thresholds
//   - Find / Import: discovery and renaming behaviour
//   - Notifications: ntfy and Telegram credentials
//   - Metrics / Logging: observability
//   - Tools: external command templates keyed by tool name
//   - Stages: pipeline topology (defaults to DefaultStages)
type Config struct {
	Paths         Paths             `toml:"paths"`
	Copy          map[string]string `toml:"copy"`
	Workflow      Workflow          `toml:"workflow"`
	Health        Health            `toml:"health"`
	Find          Find              `toml:"find"`
	Import        Import            `toml:"import"`
	Notifications Notifications     `toml:"notifications"`
	Metrics       Metrics           `toml:"metrics"`
	Logging       Logging           `toml:"logging"`
	Secrets       Secrets           `toml:"secrets"`
	Tools         map[string]Tool   `toml:"tools"`
	Stages        []Stage           `toml:"stages"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/transphire/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		loadDotEnv(filepath.Dir(resolvedPath))

		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	} else {
		loadDotEnv(".")
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads dir/.env when present. Variables already set in the
// environment win.
func loadDotEnv(dir string) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return
	}
	_ = godotenv.Load(envPath)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("transphire.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline owns. Copy targets
// are never created here; a missing target is a connectivity problem, not a
// setup step.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ProjectDir, c.Paths.QueueDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TargetDir returns the root directory for a copy target.
func (c *Config) TargetDir(target string) string {
	switch target {
	case TargetWork:
		return c.Paths.WorkDir
	case TargetBackup:
		return c.Paths.BackupDir
	case TargetHDD:
		return c.Paths.HDDDir
	default:
		return ""
	}
}

// Setting returns the routing setting value for key.
func (c *Config) Setting(key string) (string, bool) {
	value, ok := c.Copy[key]
	return value, ok
}

// SecretValues lists every configured credential for redaction.
func (c *Config) SecretValues() []string {
	var out []string
	for _, value := range []string{c.Secrets.SudoPassword, c.Notifications.TelegramToken} {
		if strings.TrimSpace(value) != "" {
			out = append(out, value)
		}
	}
	return out
}

// TranslationFilePath returns the import translation file location.
func (c *Config) TranslationFilePath() string {
	if c.Import.TranslationFile != "" {
		return c.Import.TranslationFile
	}
	return filepath.Join(c.Paths.ProjectDir, "Translation_file.txt")
}

// PipelineLockPath is the single-instance lock held while the pipeline runs.
func (c *Config) PipelineLockPath() string {
	return filepath.Join(c.Paths.QueueDir, "transphire.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
