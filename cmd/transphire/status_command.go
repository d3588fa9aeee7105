package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"transphire/internal/config"
	"transphire/internal/history"
	"transphire/internal/queue"
	"transphire/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showHistory bool
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts for every stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if err := printQueueStatus(out, cfg, shouldColorize(out)); err != nil {
				return err
			}
			if showHistory {
				return printHistory(cmd.Context(), out, cfg, recent)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showHistory, "history", false, "Include the dispatch history summary")
	cmd.Flags().IntVar(&recent, "recent", 0, "With --history, also list the newest N dispatches")
	return cmd
}

func printQueueStatus(out io.Writer, cfg *config.Config, colorize bool) error {
	active, err := workflow.PipelineActive(cfg)
	if err != nil {
		return fmt.Errorf("read pipeline lock: %w", err)
	}
	kind, message := statusInfo, "Not running"
	if active {
		kind, message = statusOK, "Running"
	}
	fmt.Fprintln(out, renderStatusLine("Pipeline", kind, message, colorize))

	labels := newTerminalSink(out, false)
	rows := make([][]string, 0, len(cfg.Stages))
	for _, stg := range cfg.Stages {
		snap, err := queue.ReadSnapshot(cfg.Paths.QueueDir, stg.Name)
		if err != nil {
			return err
		}
		enabled := yesNo(cfg.StageEnabled(stg))
		if cfg.StageDeferred(stg) {
			enabled = "later"
		}
		rows = append(rows, []string{
			stg.Name,
			labels.label(string(stg.Kind)),
			enabled,
			strconv.Itoa(stg.Workers),
			strconv.Itoa(snap.Pending),
			strconv.Itoa(snap.Done),
			strconv.Itoa(snap.Errors),
		})
	}
	fmt.Fprintln(out, renderTable(tableSpec{
		headers: []string{"Stage", "Kind", "Enabled", "Workers", "Pending", "Done", "Errors"},
		rows:    rows,
		numeric: map[int]bool{3: true, 4: true, 5: true, 6: true},
	}))
	return nil
}

func printHistory(ctx context.Context, out io.Writer, cfg *config.Config, recent int) error {
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "history.db")); os.IsNotExist(err) {
		fmt.Fprintln(out, "No dispatch history recorded yet")
		return nil
	}
	store, err := history.Open(ctx, cfg.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, []string{
			s.Stage,
			strconv.Itoa(s.Successes),
			strconv.Itoa(s.Skips),
			strconv.Itoa(s.Retries),
			strconv.Itoa(s.Fatals),
			formatTime(s.LastAt),
		})
	}
	fmt.Fprintln(out, renderTable(tableSpec{
		title:   "History",
		headers: []string{"Stage", "Success", "Skip", "Retry", "Fatal", "Last"},
		rows:    rows,
		numeric: map[int]bool{1: true, 2: true, 3: true, 4: true},
	}))

	if recent <= 0 {
		return nil
	}
	entries, err := store.Recent(ctx, "", recent)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, e := range entries {
		rows = append(rows, []string{
			formatTime(e.CreatedAt),
			e.Stage,
			e.Root,
			e.Outcome,
			e.Kind,
			e.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(out, renderTable(tableSpec{
		title:   "Recent",
		headers: []string{"Time", "Stage", "Item", "Outcome", "Kind", "Duration"},
		rows:    rows,
		numeric: map[int]bool{5: true},
	}))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
