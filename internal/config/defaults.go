package config

const (
	defaultProjectDir           = "~/transphire/project"
	defaultSearchPath           = "~/transphire/incoming"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultIdleInterval         = 5
	defaultFindInterval         = 20
	defaultHealthRetryInterval  = 10
	defaultStatusPollInterval   = 3
	defaultSleepChunk           = 10
	defaultUnknownErrorCooldown = 60
	defaultQuotaStopPercent     = 95
	defaultDiskFullPercent      = 98
	defaultNotifyInterval       = 30
	defaultNoNewFilesMinutes    = 30
	defaultMarkerGlob           = "*.xml"
	defaultImportPrefix         = "micrograph"
	defaultRequestTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectDir: defaultProjectDir,
			SearchPath: defaultSearchPath,
		},
		Copy: DefaultCopy(),
		Workflow: Workflow{
			IdleInterval:         defaultIdleInterval,
			FindInterval:         defaultFindInterval,
			HealthRetryInterval:  defaultHealthRetryInterval,
			StatusPollInterval:   defaultStatusPollInterval,
			SleepChunk:           defaultSleepChunk,
			UnknownErrorCooldown: defaultUnknownErrorCooldown,
		},
		Health: Health{
			QuotaStopProject:      defaultQuotaStopPercent,
			QuotaStopScratch:      defaultQuotaStopPercent,
			DiskFullPercent:       defaultDiskFullPercent,
			RequireMounts:         true,
			NotifyIntervalMinutes: defaultNotifyInterval,
			NoNewFilesMinutes:     defaultNoNewFilesMinutes,
		},
		Find: Find{
			MarkerGlob:    defaultMarkerGlob,
			FrameSuffixes: []string{"_fractions.tiff"},
			FrameFiles:    1,
			Watch:         true,
		},
		Import: Import{
			Prefix: defaultImportPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Tools: map[string]Tool{},
	}
}

// DefaultCopy returns the routing settings with every optional stage off.
func DefaultCopy() map[string]string {
	return map[string]string{
		"Meta":           SettingDisabled,
		"Motion":         SettingDisabled,
		"CTF":            SettingDisabled,
		"Picking":        SettingDisabled,
		"Compress":       SettingDisabled,
		"Copy to work":   SettingDisabled,
		"Copy to backup": SettingDisabled,
		"Copy to hdd":    SettingDisabled,
	}
}
