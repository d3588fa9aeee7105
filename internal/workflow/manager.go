package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofrs/flock"

	"transphire/internal/config"
	"transphire/internal/discovery"
	"transphire/internal/health"
	"transphire/internal/history"
	"transphire/internal/logging"
	"transphire/internal/metrics"
	"transphire/internal/notifications"
	"transphire/internal/preflight"
	"transphire/internal/toolexec"
)

// Mode selects what Start does.
type Mode int

const (
	// ModeRun spawns workers and mutates queues.
	ModeRun Mode = iota
	// ModeMonitor only reports mirror line counts.
	ModeMonitor
)

func (m Mode) String() string {
	if m == ModeMonitor {
		return "monitor"
	}
	return "run"
}

// Manager coordinates the worker pools of every stage.
type Manager struct {
	cfg       *config.Config
	base      *slog.Logger
	logger    *slog.Logger
	notifier  notifications.Service
	sink      Sink
	clock     Clock
	space     health.SpaceChecker
	probe     health.Probe
	mounts    health.Probe
	executor  toolexec.Executor
	preflight func(*config.Config) []preflight.Result

	mu       sync.Mutex
	running  bool
	mode     Mode
	cancel   context.CancelFunc
	done     chan struct{}
	lock     *flock.Flock
	pipeline *PipelineContext
	workers  []*worker
	history  *history.Store
	metrics  *metrics.Metrics
	watcher  *discovery.Watcher
	devices  *health.DeviceMonitor
	lastErr  string

	statusMu sync.Mutex
	statuses map[statusKey]StageStatus
}

type statusKey struct {
	stage  string
	worker int
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithNotifier replaces the notification service built from the config.
func WithNotifier(service notifications.Service) Option {
	return func(m *Manager) { m.notifier = service }
}

// WithSink receives status, notification, error and log messages.
func WithSink(sink Sink) Option {
	return func(m *Manager) { m.sink = sink }
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithSpaceChecker replaces statfs-based usage reads.
func WithSpaceChecker(space health.SpaceChecker) Option {
	return func(m *Manager) { m.space = space }
}

// WithProbe replaces the connectivity probe for every dependency.
func WithProbe(probe health.Probe) Option {
	return func(m *Manager) {
		m.probe = probe
		m.mounts = probe
	}
}

// WithExecutor runs tools through exec instead of os/exec.
func WithExecutor(exec toolexec.Executor) Option {
	return func(m *Manager) { m.executor = exec }
}

// WithPreflight replaces the filesystem checks run by Start.
func WithPreflight(fn func(*config.Config) []preflight.Result) Option {
	return func(m *Manager) { m.preflight = fn }
}

// NewManager constructs a pipeline manager for cfg.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		base:      logger,
		logger:    logging.NewComponentLogger(logger, "workflow-manager"),
		sink:      nopSink{},
		clock:     realClock{},
		space:     health.StatfsChecker{},
		probe:     health.DirectoryProbe{},
		mounts:    health.DirectoryProbe{RequireMount: cfg.Health.RequireMounts},
		preflight: preflight.RunAll,
		statuses:  make(map[statusKey]StageStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	return m
}
