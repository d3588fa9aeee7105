package workflow

import (
	"context"
	"errors"
	"sync"

	"transphire/internal/history"
	"transphire/internal/logging"
	"transphire/internal/notifications"
)

// dispatch is the only consumer of the event bus. It owns the sink, the
// project log files, the history ledger and outgoing notifications, so
// workers never touch them directly. It returns once the bus is closed.
func (m *Manager) dispatch(p *PipelineContext) {
	logFile := newProjectLog(p.Config.Paths.ProjectDir, "log.txt")
	errFile := newProjectLog(p.Config.Paths.ProjectDir, "error.txt")
	var publishing sync.WaitGroup
	defer publishing.Wait()

	for ev := range p.events {
		switch ev.Kind {
		case EventStatus:
			m.dispatchStatus(p, ev)
		case EventNotification:
			m.dispatchNotification(p, ev, logFile, &publishing)
		case EventError:
			if err := errFile.append(ev.Time, eventLabel(ev), ev.Detail); err != nil {
				m.logger.Warn("project error file unavailable", logging.String("path", errFile.path), logging.Error(err))
			}
			m.sink.Error(ev.Detail)
		case EventLog:
			if err := logFile.append(ev.Time, eventLabel(ev), ev.Detail); err != nil {
				m.logger.Warn("project log file unavailable", logging.String("path", logFile.path), logging.Error(err))
			}
			m.sink.Log(ev.Detail)
		case EventGlobalStop:
			logging.ErrorWithContext(m.logger, "global stop raised", "global_stop",
				logging.String("reason", ev.Detail),
				logging.String("run_id", p.RunID),
				logging.String(logging.FieldErrorHint, "free space in the project directory and restart the pipeline"),
			)
			m.setLastError(ev.Detail)
			_ = errFile.append(ev.Time, eventLabel(ev), "Global stop: "+ev.Detail)
			m.sink.Error("Global stop: " + ev.Detail)
		case EventOutcome:
			m.dispatchOutcome(p, ev)
		}
	}
}

func (m *Manager) dispatchStatus(p *PipelineContext, ev Event) {
	rt := p.Stages[ev.Stage]
	status := StageStatus{
		Stage:   ev.Stage,
		Worker:  ev.Worker,
		Status:  ev.Status,
		Color:   ev.Status.Color(),
		Detail:  ev.Detail,
		Updated: ev.Time,
	}
	if rt != nil {
		counters := rt.State.Counters()
		status.Pending = rt.Queue.PendingCount()
		status.Done = counters.FileNumber
		status.Running = counters.Running
		p.Metrics.SetQueue(rt.Name, status.Pending, rt.Queue.DoneCount())
	}
	m.statusMu.Lock()
	m.statuses[statusKey{stage: ev.Stage, worker: ev.Worker}] = status
	m.statusMu.Unlock()
	m.sink.Status(status)
}

func (m *Manager) dispatchNotification(p *PipelineContext, ev Event, logFile projectLog, publishing *sync.WaitGroup) {
	msg, ok := notifications.Render(ev.Notice, ev.Payload)
	if !ok {
		m.logger.Debug("notification event has no template", logging.String("event", string(ev.Notice)))
		return
	}
	text := msg.Title + ": " + msg.Body
	if err := logFile.append(ev.Time, eventLabel(ev), text); err != nil {
		m.logger.Warn("project log file unavailable", logging.String("path", logFile.path), logging.Error(err))
	}
	m.sink.Notification(text)

	if m.notifier == nil {
		return
	}
	publishing.Add(1)
	go func() {
		defer publishing.Done()
		if err := m.notifier.Publish(context.Background(), ev.Notice, ev.Payload); err != nil {
			if errors.Is(err, context.Canceled) {
				m.logger.Debug("pipeline shutting down, notification dropped", logging.String("event", string(ev.Notice)))
				return
			}
			m.logger.Warn("notification delivery failed",
				logging.String("event", string(ev.Notice)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and telegram settings"),
			)
		}
	}()
}

func (m *Manager) dispatchOutcome(p *PipelineContext, ev Event) {
	switch ev.Outcome {
	case history.OutcomeSuccess:
		p.Metrics.ObserveSuccess(ev.Stage, ev.Duration)
	case history.OutcomeRetry, history.OutcomeFatal:
		kind := ev.Failure
		if kind == "" {
			kind = ev.Outcome
		}
		p.Metrics.ObserveFailure(ev.Stage, kind, ev.Duration)
	}
	if p.History == nil {
		return
	}
	entry := history.Entry{
		RunID:     p.RunID,
		Stage:     ev.Stage,
		Root:      ev.Item,
		Outcome:   ev.Outcome,
		Kind:      ev.Failure,
		Detail:    ev.Detail,
		Duration:  ev.Duration,
		CreatedAt: ev.Time,
	}
	if err := p.History.Record(context.Background(), entry); err != nil {
		m.logger.Warn("record dispatch history", logging.String(logging.FieldStage, ev.Stage), logging.Error(err))
	}
}

func (m *Manager) setLastError(text string) {
	m.mu.Lock()
	m.lastErr = text
	m.mu.Unlock()
}
