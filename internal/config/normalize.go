package config

import (
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCopy()
	c.normalizeSecrets()
	c.normalizeNotifications()
	c.normalizeFind()
	c.normalizeLogging()
	if len(c.Stages) == 0 {
		c.Stages = DefaultStages()
	}
	for i := range c.Stages {
		c.Stages[i].Name = strings.TrimSpace(c.Stages[i].Name)
		c.Stages[i].Kind = StageKind(strings.ToLower(strings.TrimSpace(string(c.Stages[i].Kind))))
		c.Stages[i].Target = strings.ToLower(strings.TrimSpace(c.Stages[i].Target))
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ProjectDir, err = expandPath(c.Paths.ProjectDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		c.Paths.QueueDir = filepath.Join(c.Paths.ProjectDir, "Queue")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.ProjectDir, "Logs")
	}
	for _, field := range []*string{
		&c.Paths.QueueDir,
		&c.Paths.LogDir,
		&c.Paths.SearchPath,
		&c.Paths.ScratchDir,
		&c.Paths.WorkDir,
		&c.Paths.BackupDir,
		&c.Paths.HDDDir,
		&c.Import.TranslationFile,
	} {
		if *field, err = expandPath(strings.TrimSpace(*field)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalizeCopy() {
	if c.Copy == nil {
		c.Copy = map[string]string{}
	}
	for key, value := range DefaultCopy() {
		if _, ok := c.Copy[key]; !ok {
			c.Copy[key] = value
		}
	}
	for key, value := range c.Copy {
		c.Copy[key] = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeSecrets() {
	if c.Secrets.SudoPassword == "" {
		if value, ok := os.LookupEnv("TRANSPHIRE_SUDO_PASSWORD"); ok {
			c.Secrets.SudoPassword = value
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TRANSPHIRE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.TelegramToken = strings.TrimSpace(c.Notifications.TelegramToken)
	if c.Notifications.TelegramToken == "" {
		if value, ok := os.LookupEnv("TRANSPHIRE_TELEGRAM_TOKEN"); ok {
			c.Notifications.TelegramToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeFind() {
	c.Find.MarkerGlob = strings.TrimSpace(c.Find.MarkerGlob)
	if c.Find.MarkerGlob == "" {
		c.Find.MarkerGlob = defaultMarkerGlob
	}
	c.Import.Prefix = strings.TrimSpace(c.Import.Prefix)
	if c.Import.Prefix == "" {
		c.Import.Prefix = defaultImportPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
