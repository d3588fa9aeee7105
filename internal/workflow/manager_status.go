package workflow

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"transphire/internal/config"
	"transphire/internal/logging"
	"transphire/internal/queue"
	"transphire/internal/stage"
)

// StatusSummary is a point-in-time view of the manager.
type StatusSummary struct {
	Running    bool
	Mode       Mode
	RunID      string
	Stopping   bool
	StopReason string
	LastError  string
	Stages     []StageSummary
}

// StageSummary aggregates the workers of one stage.
type StageSummary struct {
	Name     string
	Kind     stage.Kind
	Active   bool
	Deferred bool
	Workers  []StageStatus
	Pending  int
	Done     int
	Flags    stage.Flags
	Counters stage.Counters
}

// Snapshot returns the latest status of every stage in topology order.
func (m *Manager) Snapshot() StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{Running: m.running, Mode: m.mode, LastError: m.lastErr}
	p := m.pipeline
	m.mu.Unlock()

	workers := m.workerStatuses()
	if p == nil {
		for _, stg := range m.cfg.Stages {
			kind, _ := stage.KindFromConfig(stg.Kind)
			s := StageSummary{
				Name:     stg.Name,
				Kind:     kind,
				Active:   m.cfg.StageEnabled(stg),
				Deferred: m.cfg.StageDeferred(stg),
				Workers:  workers[stg.Name],
			}
			if len(s.Workers) > 0 {
				s.Pending, s.Done = s.Workers[0].Pending, s.Workers[0].Done
			}
			summary.Stages = append(summary.Stages, s)
		}
		return summary
	}

	summary.RunID = p.RunID
	summary.Stopping = p.Stopping()
	summary.StopReason = p.StopReason()
	for _, name := range p.Order {
		rt := p.Stages[name]
		counters := rt.State.Counters()
		summary.Stages = append(summary.Stages, StageSummary{
			Name:     name,
			Kind:     rt.Kind,
			Active:   rt.Active,
			Deferred: rt.Deferred,
			Workers:  workers[name],
			Pending:  rt.Queue.PendingCount(),
			Done:     counters.FileNumber,
			Flags:    rt.State.Flags(),
			Counters: counters,
		})
	}
	return summary
}

func (m *Manager) workerStatuses() map[string][]StageStatus {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	out := make(map[string][]StageStatus)
	for key, status := range m.statuses {
		out[key.stage] = append(out[key.stage], status)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Worker < list[j].Worker })
	}
	return out
}

func (m *Manager) resetStatuses() {
	m.statusMu.Lock()
	m.statuses = make(map[statusKey]StageStatus)
	m.statusMu.Unlock()
}

// PipelineActive reports whether a pipeline in another process (or another
// manager in this one) holds the run lock for cfg's queue directory.
func PipelineActive(cfg *config.Config) (bool, error) {
	if _, err := os.Stat(cfg.Paths.QueueDir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	lock := flock.New(cfg.PipelineLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// Monitor reports queue mirror counts for every stage until ctx is done. It
// never mutates queues, so it can run next to a live pipeline.
func (m *Manager) Monitor(ctx context.Context) {
	interval := time.Duration(m.cfg.Workflow.StatusPollInterval) * time.Second
	chunk := time.Duration(m.cfg.Workflow.SleepChunk) * time.Second
	for {
		m.pollMirrors()
		if !sleep(ctx, m.clock, interval, chunk, nil) {
			return
		}
	}
}

func (m *Manager) pollMirrors() {
	active, err := PipelineActive(m.cfg)
	if err != nil {
		m.logger.Warn("pipeline lock unreadable", logging.String("path", m.cfg.PipelineLockPath()), logging.Error(err))
	}
	status := StatusMonitorIdle
	if active {
		status = StatusMonitorActive
	}
	now := m.clock.Now()
	for _, stg := range m.cfg.Stages {
		snap, err := queue.ReadSnapshot(m.cfg.Paths.QueueDir, stg.Name)
		if err != nil {
			m.logger.Warn("queue snapshot failed", logging.String(logging.FieldStage, stg.Name), logging.Error(err))
			continue
		}
		row := StageStatus{
			Stage:   stg.Name,
			Status:  status,
			Color:   status.Color(),
			Detail:  fmt.Sprintf("%d errors", snap.Errors),
			Pending: snap.Pending,
			Done:    snap.Done,
			Updated: now,
		}
		m.statusMu.Lock()
		m.statuses[statusKey{stage: stg.Name}] = row
		m.statusMu.Unlock()
		m.sink.Status(row)
	}
}
