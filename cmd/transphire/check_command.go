package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"transphire/internal/config"
	"transphire/internal/deps"
	"transphire/internal/preflight"
	"transphire/internal/routing"
	"transphire/internal/stage"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the startup checks without starting the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if failed := printChecks(out, cfg, shouldColorize(out)); failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// printChecks renders topology, executable and filesystem checks and returns
// the number of failures.
func printChecks(out io.Writer, cfg *config.Config, colorize bool) int {
	var checks []stage.Health
	line := func(label string, kind statusKind, message string) {
		if kind == statusError {
			checks = append(checks, stage.Unhealthy(label, message))
		} else {
			checks = append(checks, stage.Healthy(label))
		}
		fmt.Fprintln(out, renderStatusLine(label, kind, message, colorize))
	}

	for _, l := range renderSectionHeader("Topology", colorize) {
		fmt.Fprintln(out, l)
	}
	if err := topologyError(cfg); err != nil {
		line("Stages", statusError, err.Error())
	} else {
		line("Stages", statusOK, fmt.Sprintf("%d stages", len(cfg.Stages)))
	}

	for _, l := range renderSectionHeader("Executables", colorize) {
		fmt.Fprintln(out, l)
	}
	statuses := deps.CheckBinaries(deps.ToolRequirements(cfg))
	if len(statuses) == 0 {
		line("Tools", statusInfo, "no enabled transform stages")
	}
	for _, s := range statuses {
		switch {
		case s.Available:
			line(s.Name, statusOK, "Ready (command: "+s.Command+")")
		case s.Optional:
			line(s.Name, statusWarn, s.Detail)
		default:
			line(s.Name, statusError, s.Detail)
		}
	}

	for _, l := range renderSectionHeader("Filesystem", colorize) {
		fmt.Fprintln(out, l)
	}
	for _, r := range preflight.RunAll(cfg) {
		if r.Passed {
			line(r.Name, statusOK, r.Detail)
		} else {
			line(r.Name, statusError, r.Detail)
		}
	}

	failed := 0
	for _, c := range checks {
		if !c.Ready {
			failed++
		}
	}
	fmt.Fprintln(out)
	if worst := stage.Worst("Summary", checks...); worst.Ready {
		fmt.Fprintln(out, renderStatusLine("Summary", statusOK, "ready to run", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Summary", statusError, fmt.Sprintf("%d failed, first: %s", failed, worst.Name), colorize))
	}
	return failed
}

func topologyError(cfg *config.Config) error {
	if err := cfg.ValidatePipeline(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(cfg.Stages))
	for _, stg := range cfg.Stages {
		names[stg.Name] = struct{}{}
	}
	var errs []error
	for _, stg := range cfg.Stages {
		aims, err := routing.ParseAll(stg.Aims)
		if err == nil {
			err = routing.Validate(aims, cfg.Copy, names)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("stages.%s: %w", stg.Name, err))
		}
	}
	return errors.Join(errs...)
}
