package workflow

import (
	"fmt"
	"strings"

	"transphire/internal/deps"
	"transphire/internal/logging"
	"transphire/internal/routing"
	"transphire/internal/stage"
)

// validate refuses to start a pipeline that cannot run: a broken topology,
// aims naming unknown settings or stages, missing executables, or
// unreachable directories and copy-target mounts. Every failure carries
// ErrConfiguration.
func (m *Manager) validate() error {
	cfg := m.cfg
	if err := cfg.ValidatePipeline(); err != nil {
		return stage.Wrap(stage.ErrConfiguration, "", "validate topology", "", err)
	}

	names := make(map[string]struct{}, len(cfg.Stages))
	for _, stg := range cfg.Stages {
		names[stg.Name] = struct{}{}
	}
	for _, stg := range cfg.Stages {
		aims, err := routing.ParseAll(stg.Aims)
		if err != nil {
			return stage.Wrap(stage.ErrConfiguration, stg.Name, "parse aims", "", err)
		}
		if err := routing.Validate(aims, cfg.Copy, names); err != nil {
			return stage.Wrap(stage.ErrConfiguration, stg.Name, "validate aims", "", err)
		}
	}

	if missing := deps.MissingRequired(deps.CheckBinaries(deps.ToolRequirements(cfg))); len(missing) > 0 {
		details := make([]string, 0, len(missing))
		for _, status := range missing {
			m.logger.Error("required executable missing",
				logging.String("tool", status.Name),
				logging.String("command", status.Command),
				logging.String(logging.FieldEventType, "dependency_missing"),
				logging.String(logging.FieldErrorHint, "install the tool or fix tools."+status.Name+".executable"),
			)
			details = append(details, fmt.Sprintf("%s (%s): %s", status.Name, status.Command, status.Detail))
		}
		return stage.Wrap(stage.ErrConfiguration, "", "check executables", strings.Join(details, "; "), nil)
	}

	var failures []string
	for _, r := range m.preflight(cfg) {
		if r.Passed {
			m.logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		m.logger.Error("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported issue and start the pipeline again"),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failures) > 0 {
		return stage.Wrap(stage.ErrConfiguration, "", "preflight", strings.Join(failures, "; "), nil)
	}
	return nil
}
