package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"transphire/internal/logging"
	"transphire/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the pipeline and process acquisitions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, workflow.ModeRun)
		},
	}
}

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Watch queue counts of a pipeline without touching its queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, workflow.ModeMonitor)
		},
	}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, mode workflow.Mode) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	out := cmd.OutOrStdout()
	sink := newTerminalSink(out, shouldColorize(out))
	manager := workflow.NewManager(cfg, logger, workflow.WithSink(sink))
	if err := manager.Start(signalCtx, mode); err != nil {
		return err
	}
	logger.Info("transphire started",
		logging.String("mode", mode.String()),
		logging.String("config", ctx.configPath),
	)

	select {
	case <-signalCtx.Done():
		logger.Info("transphire shutting down")
		manager.Stop()
	case <-manager.Done():
	}

	if reason := manager.StopReason(); reason != "" {
		return fmt.Errorf("pipeline stopped: %s", reason)
	}
	return nil
}
