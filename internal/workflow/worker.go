package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"transphire/internal/discovery"
	"transphire/internal/history"
	"transphire/internal/logging"
	"transphire/internal/notifications"
	"transphire/internal/routing"
	"transphire/internal/stage"
	"transphire/internal/toolexec"
)

type workerTiming struct {
	idle        time.Duration
	find        time.Duration
	healthRetry time.Duration
	chunk       time.Duration
	cooldown    time.Duration
	quiet       time.Duration
}

func timingFromConfig(p *PipelineContext) workerTiming {
	wf := p.Config.Workflow
	return workerTiming{
		idle:        time.Duration(wf.IdleInterval) * time.Second,
		find:        time.Duration(wf.FindInterval) * time.Second,
		healthRetry: time.Duration(wf.HealthRetryInterval) * time.Second,
		chunk:       time.Duration(wf.SleepChunk) * time.Second,
		cooldown:    time.Duration(wf.UnknownErrorCooldown) * time.Second,
		quiet:       time.Duration(p.Config.Health.NoNewFilesMinutes) * time.Minute,
	}
}

// worker runs the loop for one instance of a stage.
type worker struct {
	p      *PipelineContext
	rt     *StageRuntime
	index  int
	logger *slog.Logger
	timing workerTiming

	// downstream lists destination stages whose full flags hold this stage back.
	downstream []*StageRuntime
	finder     discovery.Finder
	gpu        string

	lastNew       time.Time
	quietNotified bool

	lastStatus Status
	lastDetail string
	finished   atomic.Bool
}

func newWorker(p *PipelineContext, rt *StageRuntime, index int, logger *slog.Logger) *worker {
	w := &worker{
		p:     p,
		rt:    rt,
		index: index,
		logger: logging.NewComponentLogger(logger, "worker").With(
			logging.String(logging.FieldStage, rt.Name),
			logging.String(logging.FieldWorker, strconv.Itoa(index)),
		),
		timing: timingFromConfig(p),
	}
	if rt.Kind == stage.KindFind {
		w.finder = discovery.NewFinder(p.Config)
	}
	if dests, err := routing.Route(rt.Aims, p.Settings); err == nil {
		for _, dest := range dests {
			if target := p.Stages[dest]; target != nil && target.Kind == stage.KindCopy {
				w.downstream = append(w.downstream, target)
			}
		}
	}
	return w
}

func (w *worker) name() string { return fmt.Sprintf("%s#%d", w.rt.Name, w.index) }

// Finished reports whether the loop has exited.
func (w *worker) Finished() bool { return w.finished.Load() }

func (w *worker) run(ctx context.Context) {
	defer w.finished.Store(true)
	ctx = logging.WithStage(ctx, w.rt.Name)
	w.report(StatusStarting, "")
	w.lastNew = w.p.Clock.Now()

	if err := w.reserveGPU(); err != nil {
		w.fail(ctx, w.logger, "", w.rt.Classifier.Classify(err), 0)
		return
	}
	defer w.releaseGPU()

	for {
		if ctx.Err() != nil || w.p.Stopping() {
			w.report(StatusStopping, w.p.StopReason())
			break
		}
		if halt := w.iterate(ctx); halt {
			return
		}
	}
	w.report(StatusStopped, "")
}

// iterate runs one pass of the loop and reports whether the worker halts.
func (w *worker) iterate(ctx context.Context) bool {
	rt := w.rt
	if rt.State.Done() {
		w.report(StatusFinished, "")
		w.sleep(ctx, w.timing.idle, nil)
		return false
	}
	if !rt.Active {
		status := StatusSkipped
		if rt.Deferred {
			status = StatusLater
		}
		w.report(status, "")
		w.sleep(ctx, w.timing.idle, nil)
		return false
	}
	if !w.healthy(ctx) {
		return false
	}

	switch rt.Kind {
	case stage.KindFind:
		return w.find(ctx)
	case stage.KindMeta:
		return w.meta(ctx)
	default:
		item, ok := rt.Queue.Dequeue()
		if !ok {
			w.report(StatusWaiting, "")
			w.sleep(ctx, w.timing.idle, nil)
			return false
		}
		return w.process(ctx, item)
	}
}

func (w *worker) process(ctx context.Context, item string) bool {
	rt := w.rt
	ctx = logging.WithCorrelationID(logging.WithItem(ctx, toolexec.RootName(item)), uuid.NewString())
	logger := logging.WithContext(ctx, w.logger)

	w.p.Metrics.SetRunning(rt.Name, rt.State.BeginRun())
	w.report(StatusRunning, filepath.Base(item))
	start := w.p.Clock.Now()
	outcome := w.runAction(ctx, item)
	w.p.Metrics.SetRunning(rt.Name, rt.State.EndRun())
	elapsed := w.p.Clock.Now().Sub(start)

	if _, ok := outcome.(stage.Success); !ok && ctx.Err() != nil {
		if err := rt.Queue.Requeue(item); err != nil {
			logger.Warn("requeue after shutdown failed", logging.Error(err))
		}
		logger.Debug("dispatch interrupted by shutdown")
		return false
	}

	switch o := outcome.(type) {
	case stage.Success:
		return w.succeed(ctx, logger, item, o.Outputs, elapsed)
	case stage.Skip:
		if err := rt.Queue.MarkDone(item); err != nil {
			return w.fail(ctx, logger, item, rt.Classifier.Classify(err), elapsed)
		}
		logger.Info("item already processed; skipped", logging.String("reason", o.Reason))
		w.outcome(item, history.OutcomeSkip, "", o.Reason, elapsed)
		return false
	default:
		return w.fail(ctx, logger, item, outcome, elapsed)
	}
}

// runAction isolates the loop from panics inside actions.
func (w *worker) runAction(ctx context.Context, item string) (outcome stage.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = stage.Retry{
				Kind: stage.FailureUnknown,
				Err:  fmt.Errorf("%s: panic in action: %v", w.rt.Name, r),
			}
		}
	}()
	return w.rt.Action.Run(withGPU(ctx, w.gpu), item)
}

// succeed routes outputs downstream before marking the item done, so a crash
// in between re-processes the item instead of losing its outputs.
func (w *worker) succeed(ctx context.Context, logger *slog.Logger, item string, outputs []string, elapsed time.Duration) bool {
	rt := w.rt
	if err := w.route(outputs); err != nil {
		return w.fail(ctx, logger, item, rt.Classifier.Classify(err), elapsed)
	}
	if err := rt.Queue.MarkDone(item); err != nil {
		return w.fail(ctx, logger, item, rt.Classifier.Classify(err), elapsed)
	}
	n := rt.State.IncrementFileNumber()
	logger.Info("dispatch complete",
		logging.Int("outputs", len(outputs)),
		logging.Int("file_number", n),
		logging.Duration("duration", elapsed),
	)
	w.outcome(item, history.OutcomeSuccess, "", "", elapsed)
	return false
}

// route enqueues outputs into every destination whose aim fires.
func (w *worker) route(outputs []string) error {
	if len(outputs) == 0 {
		return nil
	}
	dests, err := routing.Route(w.rt.Aims, w.p.Settings)
	if err != nil {
		return stage.Wrap(stage.ErrConfiguration, w.rt.Name, "route", "", err)
	}
	for _, dest := range dests {
		target := w.p.Stages[dest]
		if target == nil {
			return stage.Wrap(stage.ErrConfiguration, w.rt.Name, "route", fmt.Sprintf("destination %q is not running", dest), nil)
		}
		for _, out := range outputs {
			if _, err := target.Queue.Enqueue(out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *worker) find(ctx context.Context) bool {
	rt := w.rt
	acquisitions, err := w.finder.Scan(ctx, w.known)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		return w.fail(ctx, w.logger, "", rt.Classifier.Classify(err), 0)
	}

	now := w.p.Clock.Now()
	added := 0
	for _, acq := range acquisitions {
		if !w.p.Share.Add(acq.Root) {
			continue
		}
		if err := w.route([]string{acq.Marker}); err != nil {
			w.p.Share.Remove(acq.Root)
			return w.fail(ctx, w.logger, acq.Marker, rt.Classifier.Classify(err), 0)
		}
		rt.State.IncrementFileNumber()
		w.outcome(acq.Marker, history.OutcomeSuccess, "", "", 0)
		added++
	}

	if added > 0 {
		w.lastNew = now
		w.quietNotified = false
		w.logger.Info("acquisitions discovered",
			logging.Int("new", added),
			logging.Int("known", w.p.Share.Len()),
		)
	} else if w.timing.quiet > 0 && !w.quietNotified && now.Sub(w.lastNew) >= w.timing.quiet {
		w.quietNotified = true
		w.notify(notifications.EventNoNewFiles, notifications.Payload{
			"stage":   rt.Name,
			"minutes": strconv.Itoa(int(w.timing.quiet / time.Minute)),
		})
	}

	w.report(StatusWaiting, fmt.Sprintf("%d acquisitions known", w.p.Share.Len()))
	w.sleep(ctx, w.timing.find, w.p.Wake)
	return false
}

func (w *worker) known(root string) bool {
	if w.p.Share.Contains(root) {
		return true
	}
	if w.p.Importer != nil {
		_, ok := w.p.Importer.Translated(root)
		return ok
	}
	return false
}

// meta runs the one-shot auxiliary archive and marks the stage done.
func (w *worker) meta(ctx context.Context) bool {
	rt := w.rt
	w.report(StatusRunning, "collecting auxiliary files")
	start := w.p.Clock.Now()
	outcome := w.runAction(ctx, w.p.RunID)
	elapsed := w.p.Clock.Now().Sub(start)
	if _, ok := outcome.(stage.Success); !ok && ctx.Err() != nil {
		return false
	}

	switch o := outcome.(type) {
	case stage.Success:
		if err := w.route(o.Outputs); err != nil {
			return w.fail(ctx, w.logger, "", rt.Classifier.Classify(err), elapsed)
		}
		rt.State.IncrementFileNumber()
		w.outcome(w.p.RunID, history.OutcomeSuccess, "", "", elapsed)
		w.logger.Info("auxiliary files archived", logging.Any("archives", o.Outputs))
	case stage.Skip:
		w.outcome(w.p.RunID, history.OutcomeSkip, "", o.Reason, elapsed)
	default:
		return w.fail(ctx, w.logger, "", outcome, elapsed)
	}
	rt.State.MarkDone()
	w.report(StatusFinished, "")
	return false
}

func (w *worker) reserveGPU() error {
	if w.rt.GPUs == nil || !w.rt.Active {
		return nil
	}
	gpu, err := w.rt.GPUs.Assign(w.name())
	if err != nil {
		return err
	}
	w.gpu = gpu
	w.logger.Info("gpu reserved", logging.String("gpu", gpu))
	return nil
}

func (w *worker) releaseGPU() {
	if w.rt.GPUs != nil && w.gpu != "" {
		w.rt.GPUs.Release(w.name())
	}
}

func (w *worker) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	return sleep(ctx, w.p.Clock, d, w.timing.chunk, wake)
}

// report publishes a status change. Once a global stop is raised every
// report turns into Stopping.
func (w *worker) report(status Status, detail string) {
	if w.p.Stopping() && status != StatusStopped && status != StatusHalted {
		status, detail = StatusStopping, w.p.StopReason()
	}
	if status == w.lastStatus && detail == w.lastDetail {
		return
	}
	w.lastStatus, w.lastDetail = status, detail
	w.p.emit(Event{Kind: EventStatus, Stage: w.rt.Name, Worker: w.index, Status: status, Detail: detail})
}

func (w *worker) notify(event notifications.Event, payload notifications.Payload) {
	w.p.emit(Event{Kind: EventNotification, Stage: w.rt.Name, Worker: w.index, Notice: event, Payload: payload})
}

func (w *worker) log(text string) {
	w.p.emit(Event{Kind: EventLog, Stage: w.rt.Name, Worker: w.index, Detail: text})
}

func (w *worker) outcome(item, outcome, failure, detail string, elapsed time.Duration) {
	w.p.emit(Event{
		Kind:     EventOutcome,
		Stage:    w.rt.Name,
		Worker:   w.index,
		Item:     item,
		Outcome:  outcome,
		Failure:  failure,
		Detail:   detail,
		Duration: elapsed,
	})
}
