package workflow

import (
	"context"
	"fmt"
	"time"

	"transphire/internal/health"
	"transphire/internal/logging"
	"transphire/internal/notifications"
	"transphire/internal/stage"
)

// healthy runs the pre-dispatch checks in order: quota, connection, disk
// full, unknown-error cooldown. A failing check reports its status, sleeps
// where appropriate and returns false.
func (w *worker) healthy(ctx context.Context) bool {
	return w.checkQuota() &&
		w.checkConnection(ctx) &&
		w.checkDiskFull(ctx) &&
		w.checkUnknownError(ctx)
}

// checkQuota escalates a quota breach into a global stop.
func (w *worker) checkQuota() bool {
	if !w.rt.WritesProject || w.p.Space == nil {
		return true
	}
	cfg := w.p.Config
	limits := []struct {
		label string
		path  string
		limit float64
	}{
		{"project", cfg.Paths.ProjectDir, cfg.Health.QuotaStopProject},
		{"scratch", cfg.Paths.ScratchDir, cfg.Health.QuotaStopScratch},
	}
	for _, l := range limits {
		if l.path == "" {
			continue
		}
		usage, err := w.p.Space.Usage(l.path)
		if err != nil {
			// An unreadable root is the connection check's business.
			w.logger.Debug("quota check skipped", logging.String("path", l.path), logging.Error(err))
			continue
		}
		if !health.QuotaExceeded(usage, l.limit) {
			continue
		}
		reason := fmt.Sprintf("%s filesystem %.1f%% used, limit %.0f%%", l.label, usage.PercentUsed(), l.limit)
		w.report(StatusQuota, reason)
		if w.p.GlobalStop(reason) {
			logging.ErrorWithContext(w.logger, "quota exceeded; stopping pipeline", "quota_stop",
				logging.String("path", l.path),
				logging.Float64("percent_used", usage.PercentUsed()),
				logging.String(logging.FieldErrorHint, "free space on "+l.path+" and restart"),
			)
			w.notify(notifications.EventQuotaStop, notifications.Payload{"stage": w.rt.Name, "detail": reason})
			w.p.emit(Event{Kind: EventError, Stage: w.rt.Name, Worker: w.index, Detail: "Quota exceeded: " + reason})
		}
		return false
	}
	return true
}

// checkConnection re-verifies every dependency flagged lost.
func (w *worker) checkConnection(ctx context.Context) bool {
	for _, dep := range w.rt.State.Lost() {
		path := w.p.DependencyPath(dep)
		if path == "" {
			// Nothing to re-check without a configured root.
			if w.rt.State.SetLost(dep, false) {
				w.p.Metrics.SetFlag(w.rt.Name, "lost_"+dep.String(), false)
				w.logger.Warn("lost flag cleared for dependency without a configured path",
					logging.String("dependency", dep.String()))
			}
			continue
		}
		if w.p.probeFor(dep).Available(path) {
			if w.rt.State.SetLost(dep, false) {
				w.p.Metrics.SetFlag(w.rt.Name, "lost_"+dep.String(), false)
				w.logger.Info("dependency reachable again", logging.String("dependency", dep.String()), logging.String("path", path))
				w.notify(notifications.EventRecovered, notifications.Payload{"stage": w.rt.Name, "dependency": dep.String()})
				w.log(fmt.Sprintf("%s: %s reachable again at %s", w.rt.Name, dep, path))
			}
			continue
		}
		w.report(StatusLostConnection, dep.String())
		w.sleep(ctx, w.timing.healthRetry, nil)
		return false
	}
	return true
}

// checkDiskFull re-verifies this stage's full targets and holds the stage
// back while a downstream copy target is full.
func (w *worker) checkDiskFull(ctx context.Context) bool {
	for _, dep := range w.rt.State.Full() {
		path := w.p.DependencyPath(dep)
		if w.p.Space != nil && path != "" {
			usage, err := w.p.Space.Usage(path)
			if err == nil && usage.PercentUsed() < w.p.Config.Health.DiskFullPercent {
				if w.rt.State.SetFull(dep, false) {
					w.p.Metrics.SetFlag(w.rt.Name, "full_"+dep.String(), false)
					w.logger.Info("space available again", logging.String("dependency", dep.String()))
					w.log(fmt.Sprintf("%s: %s has space again", w.rt.Name, dep))
				}
				continue
			}
		}
		w.report(StatusDiskFull, dep.String())
		w.sleep(ctx, w.timing.healthRetry, nil)
		return false
	}
	for _, target := range w.downstream {
		if full := target.State.Full(); len(full) > 0 {
			w.report(StatusDiskFull, fmt.Sprintf("%s: %s", target.Name, full[0]))
			w.sleep(ctx, w.timing.healthRetry, nil)
			return false
		}
	}
	return true
}

// checkUnknownError cools the stage down after an unclassified failure.
func (w *worker) checkUnknownError(ctx context.Context) bool {
	set, since := w.rt.State.UnknownError()
	if !set {
		return true
	}
	elapsed := w.p.Clock.Now().Sub(since).Round(time.Second)
	w.report(StatusUnknownError, fmt.Sprintf("raised %s ago, cooling down", elapsed))
	if !w.sleep(ctx, w.timing.cooldown, nil) {
		return false
	}
	w.rt.State.ClearUnknownError()
	w.p.Metrics.SetFlag(w.rt.Name, "unknown_error", false)
	return false
}

// dependencyLabel names a dependency for operator messages.
func dependencyLabel(p *PipelineContext, dep stage.Dependency) string {
	if path := p.DependencyPath(dep); path != "" {
		return fmt.Sprintf("%s (%s)", dep, path)
	}
	return dep.String()
}
