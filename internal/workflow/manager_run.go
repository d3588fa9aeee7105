package workflow

import (
	"context"
	"errors"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"transphire/internal/discovery"
	"transphire/internal/health"
	"transphire/internal/history"
	"transphire/internal/logging"
	"transphire/internal/metrics"
	"transphire/internal/notifications"
	"transphire/internal/stage"
)

// ErrAlreadyRunning is returned by Start on a running manager.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Start begins the given mode in the background. Run mode validates the
// configuration, takes the pipeline lock and spawns every worker; Monitor
// mode only polls the queue mirrors. Use Done to wait for completion.
func (m *Manager) Start(ctx context.Context, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.lastErr = ""
	m.resetStatuses()

	if mode == ModeMonitor {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		m.cancel, m.done, m.mode, m.running = cancel, done, mode, true
		m.pipeline = nil
		go func() {
			defer close(done)
			defer m.markStopped()
			m.Monitor(runCtx)
		}()
		return nil
	}

	if err := m.startRun(ctx); err != nil {
		m.lastErr = err.Error()
		return err
	}
	m.mode = mode
	return nil
}

// startRun must be called with m.mu held.
func (m *Manager) startRun(ctx context.Context) (err error) {
	cfg := m.cfg
	if err := cfg.EnsureDirectories(); err != nil {
		return stage.Wrap(stage.ErrConfiguration, "", "prepare directories", "", err)
	}

	lock := flock.New(cfg.PipelineLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return stage.Wrap(stage.ErrConfiguration, "", "acquire pipeline lock", "", err)
	}
	if !locked {
		return stage.Wrap(stage.ErrConfiguration, "", "acquire pipeline lock",
			"another pipeline is running against "+cfg.Paths.QueueDir, nil)
	}
	defer func() {
		if err != nil {
			m.releaseResources(lock)
		}
	}()
	m.lock = lock

	if err := m.validate(); err != nil {
		return err
	}

	if store, herr := history.Open(ctx, cfg.Paths.LogDir); herr != nil {
		logging.WarnWithContext(m.logger, "dispatch history unavailable; continuing without it", "history_open_failed",
			logging.Error(herr),
			logging.String(logging.FieldErrorHint, "check permissions on the log directory"),
		)
	} else {
		m.history = store
	}
	m.metrics = metrics.New()

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		if err != nil {
			cancel()
		}
	}()
	p, err := m.buildPipeline(cancel)
	if err != nil {
		return err
	}

	var server *metrics.Server
	if cfg.Metrics.Bind != "" {
		server, err = m.metrics.Listen(cfg.Metrics.Bind, m.base)
		if err != nil {
			return stage.Wrap(stage.ErrConfiguration, "", "listen metrics", cfg.Metrics.Bind, err)
		}
	}

	var watcher *discovery.Watcher
	if cfg.Find.Watch {
		w := discovery.NewWatcher(cfg.Paths.SearchPath, discovery.WithOnError(func(werr error) {
			m.logger.Debug("search path watch error", logging.Error(werr))
		}))
		if werr := w.Start(runCtx); werr != nil {
			logging.WarnWithContext(m.logger, "search path watch unavailable; falling back to polling", "watch_failed",
				logging.Error(werr),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches or disable find.watch"),
			)
		} else {
			watcher = w
			p.Wake = w.Changed()
		}
	}
	var devices *health.DeviceMonitor
	if cfg.Health.WatchDevices {
		devices = health.NewDeviceMonitor(m.base, func(device string) { m.deviceRemoved(p, device) })
		_ = devices.Start(runCtx)
	}
	m.watcher, m.devices = watcher, devices

	m.pipeline = p
	m.workers = m.workers[:0]
	for _, name := range p.Order {
		rt := p.Stages[name]
		for i := 1; i <= rt.Config.Workers; i++ {
			m.workers = append(m.workers, newWorker(p, rt, i, m.base))
		}
	}

	done := make(chan struct{})
	m.cancel, m.done, m.running = cancel, done, true

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		m.dispatch(p)
	}()

	served := make(chan struct{})
	go func() {
		defer close(served)
		if server == nil {
			return
		}
		if serr := server.Serve(runCtx); serr != nil {
			m.logger.Warn("metrics server stopped", logging.Error(serr))
		}
	}()

	var g errgroup.Group
	for _, w := range m.workers {
		g.Go(func() error {
			w.run(runCtx)
			return nil
		})
	}

	m.logger.Info("pipeline started",
		logging.String("run_id", p.RunID),
		logging.Int("stages", len(p.Order)),
		logging.Int("workers", len(m.workers)),
		logging.String(logging.FieldEventType, "pipeline_started"),
	)

	go func() {
		_ = g.Wait()
		cancel()
		if watcher != nil {
			watcher.Stop()
		}
		devices.Stop()
		<-served
		p.closeBus()
		<-dispatched
		m.finishRun(p)
		close(done)
	}()
	return nil
}

// Stop cancels every worker and waits for the run to wind down. It is safe
// to call more than once and on a manager that never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// Done is closed once the current run or monitor has fully stopped.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.done
}

// Running reports whether a run or monitor is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// StopReason returns why the last run stopped on its own, if it did.
func (m *Manager) StopReason() string {
	m.mu.Lock()
	p := m.pipeline
	m.mu.Unlock()
	if p == nil {
		return ""
	}
	return p.StopReason()
}

// finishRun drains in-memory queues and releases the lock. Mirrors stay on
// disk so the next start recovers every pending item.
func (m *Manager) finishRun(p *PipelineContext) {
	pending := 0
	for _, name := range p.Order {
		pending += p.Stages[name].Queue.Drain()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseResources(m.lock)
	m.running = false
	m.logger.Info("pipeline stopped",
		logging.String("run_id", p.RunID),
		logging.Int("pending", pending),
		logging.String("reason", p.StopReason()),
		logging.String(logging.FieldEventType, "pipeline_stopped"),
	)
}

// releaseResources must be called with m.mu held.
func (m *Manager) releaseResources(lock *flock.Flock) {
	if m.history != nil {
		if err := m.history.Close(); err != nil {
			m.logger.Warn("close dispatch history", logging.Error(err))
		}
		m.history = nil
	}
	if lock != nil {
		_ = lock.Unlock()
	}
	m.lock = nil
	m.watcher = nil
	m.devices = nil
}

func (m *Manager) markStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// deviceRemoved flags the hdd target lost when its mount vanished with the
// removed device. The next failing copy would find out anyway; this only
// shortens the wait.
func (m *Manager) deviceRemoved(p *PipelineContext, device string) {
	hdd := p.Config.Paths.HDDDir
	if hdd == "" || p.Mounts.Available(hdd) {
		return
	}
	flagged := false
	for _, name := range p.Order {
		rt := p.Stages[name]
		for _, dep := range rt.Deps {
			if dep == stage.DepHDD && rt.State.SetLost(stage.DepHDD, true) {
				p.Metrics.SetFlag(rt.Name, "lost_"+stage.DepHDD.String(), true)
				flagged = true
			}
		}
	}
	if flagged {
		p.emit(Event{Kind: EventNotification, Notice: notifications.EventDeviceRemoved, Payload: notifications.Payload{
			"device": device,
			"path":   hdd,
		}})
	}
}
