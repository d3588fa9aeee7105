package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"transphire/internal/history"
	"transphire/internal/logging"
	"transphire/internal/notifications"
	"transphire/internal/stage"
)

// fail handles a Retry or Fatal outcome for item and reports whether the
// worker halts. An empty item means the failure did not come from a queue
// entry, so nothing is requeued.
func (w *worker) fail(_ context.Context, logger *slog.Logger, item string, outcome stage.Outcome, elapsed time.Duration) bool {
	switch o := outcome.(type) {
	case stage.Retry:
		w.retry(logger, item, o, elapsed)
		return false
	case stage.Fatal:
		w.halt(logger, item, o, elapsed)
		return true
	case stage.Skip:
		logger.Debug("skip outside dispatch ignored", logging.String("reason", o.Reason))
		return false
	default:
		return false
	}
}

func (w *worker) retry(logger *slog.Logger, item string, r stage.Retry, elapsed time.Duration) {
	rt := w.rt
	w.requeue(logger, item)
	text := w.logError(logger, item, r.Err)
	w.outcome(item, history.OutcomeRetry, r.Kind.String(), text, elapsed)

	switch r.Kind {
	case stage.FailureLostConnection:
		logging.WarnWithContext(logger, "dependency unreachable; pausing stage", "lost_connection",
			logging.String("dependency", r.Dependency.String()),
			logging.String(logging.FieldErrorHint, "check that "+dependencyLabel(w.p, r.Dependency)+" is mounted"),
			logging.Error(r.Err),
		)
		if rt.State.SetLost(r.Dependency, true) {
			w.p.Metrics.SetFlag(rt.Name, "lost_"+r.Dependency.String(), true)
			w.notify(notifications.EventLostConnection, notifications.Payload{
				"stage":      rt.Name,
				"dependency": dependencyLabel(w.p, r.Dependency),
				"detail":     text,
			})
		}
	case stage.FailureDiskFull:
		logging.WarnWithContext(logger, "target full; pausing stage", "disk_full",
			logging.String("dependency", r.Dependency.String()),
			logging.String(logging.FieldErrorHint, "free space on "+dependencyLabel(w.p, r.Dependency)),
			logging.Error(r.Err),
		)
		if rt.State.SetFull(r.Dependency, true) {
			w.p.Metrics.SetFlag(rt.Name, "full_"+r.Dependency.String(), true)
			w.notify(notifications.EventDiskFull, notifications.Payload{
				"stage":      rt.Name,
				"dependency": dependencyLabel(w.p, r.Dependency),
				"detail":     text,
			})
		}
	default:
		if r.Benign {
			logger.Debug("benign blocking failure; item requeued", logging.Error(r.Err))
			return
		}
		logging.WarnWithContext(logger, "action failed; cooling down", "unknown_error",
			logging.String("failure", r.Kind.String()),
			logging.Error(r.Err),
		)
		if rt.State.SetUnknownError(w.p.Clock.Now()) {
			w.p.Metrics.SetFlag(rt.Name, "unknown_error", true)
		}
		if w.p.Limiter.Allow(rt.Name+"/unknown_error", w.p.Clock.Now()) {
			w.notify(notifications.EventUnknownError, notifications.Payload{"stage": rt.Name, "detail": text})
		}
	}
}

func (w *worker) halt(logger *slog.Logger, item string, f stage.Fatal, elapsed time.Duration) {
	w.requeue(logger, item)
	err := f.Err
	if err == nil {
		err = errors.New(f.Reason)
	}
	text := w.logError(logger, item, err)
	w.outcome(item, history.OutcomeFatal, "fatal", text, elapsed)
	logging.ErrorWithContext(logger, "worker halted", "stage_halted",
		logging.String(logging.FieldErrorHint, "fix the configuration and restart the pipeline"),
		logging.Error(err),
	)
	w.notify(notifications.EventStageHalted, notifications.Payload{"stage": w.name(), "detail": text})
	w.report(StatusHalted, text)
}

func (w *worker) requeue(logger *slog.Logger, item string) {
	if item == "" || w.rt.Queue == nil || !w.rt.Queue.Contains(item) {
		return
	}
	if err := w.rt.Queue.Requeue(item); err != nil {
		logger.Warn("requeue failed", logging.Error(err))
	}
}

// logError appends to the stage error file and forwards the redacted text to
// the project error log.
func (w *worker) logError(logger *slog.Logger, item string, err error) string {
	root := item
	if root == "" {
		root = w.rt.Name
	}
	text, werr := w.rt.Errors.Append(root, err)
	if werr != nil {
		logger.Warn("error file unavailable", logging.String("path", w.rt.Errors.Path()), logging.Error(werr))
	}
	w.p.emit(Event{Kind: EventError, Stage: w.rt.Name, Worker: w.index, Item: root, Detail: text})
	return text
}
