package workflow

import (
	"context"
	"sync"
	"sync/atomic"

	"transphire/internal/config"
	"transphire/internal/health"
	"transphire/internal/history"
	"transphire/internal/importer"
	"transphire/internal/metrics"
	"transphire/internal/notifications"
	"transphire/internal/queue"
	"transphire/internal/routing"
	"transphire/internal/stage"
	"transphire/internal/toolexec"
)

// StageRuntime is everything the workers of one stage share.
type StageRuntime struct {
	Name       string
	Kind       stage.Kind
	Config     config.Stage
	Queue      *queue.StageQueue
	State      *stage.State
	Aims       []routing.Aim
	Errors     *queue.ErrorLog
	Classifier stage.Classifier
	// Deps are the storage roots re-verified by the connection check.
	Deps []stage.Dependency
	// WritesProject enables the quota check.
	WritesProject bool
	Action        stage.Action
	GPUs          *toolexec.GPUPool
	// Active stages dispatch work. A deferred ("Later") stage is not active:
	// it accepts routed items but leaves them queued.
	Active   bool
	Deferred bool
}

// Share is the cross-stage membership set of acquisition roots that are in
// flight or finished, so Find never discovers the same acquisition twice.
type Share struct {
	mu    sync.Mutex
	roots map[string]struct{}
}

func newShare() *Share {
	return &Share{roots: make(map[string]struct{})}
}

// Add records root and reports whether it was new.
func (s *Share) Add(root string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roots[root]; ok {
		return false
	}
	s.roots[root] = struct{}{}
	return true
}

// Remove forgets root so a later scan can rediscover it.
func (s *Share) Remove(root string) {
	s.mu.Lock()
	delete(s.roots, root)
	s.mu.Unlock()
}

// Contains reports whether root is recorded.
func (s *Share) Contains(root string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.roots[root]
	return ok
}

// Len returns the number of recorded roots.
func (s *Share) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roots)
}

// PipelineContext is built once per run by the Manager and handed to every
// worker by pointer.
type PipelineContext struct {
	Config   *config.Config
	Settings map[string]string
	Stages   map[string]*StageRuntime
	Order    []string
	Share    *Share
	RunID    string

	Clock    Clock
	Space    health.SpaceChecker
	Probe    health.Probe
	Mounts   health.Probe
	Limiter  *notifications.Limiter
	History  *history.Store
	Metrics  *metrics.Metrics
	Importer *importer.Importer
	// Wake signals the Find worker to rescan early.
	Wake <-chan struct{}

	busMu      sync.RWMutex
	busClosed  bool
	events     chan Event
	stopping   atomic.Bool
	stopReason atomic.Value
	cancel     context.CancelFunc
}

// GlobalStop raises the process-wide stop flag and cancels every worker.
// Only the first caller wins; it reports whether this call raised the flag.
func (p *PipelineContext) GlobalStop(reason string) bool {
	if !p.stopping.CompareAndSwap(false, true) {
		return false
	}
	p.stopReason.Store(reason)
	p.emit(Event{Kind: EventGlobalStop, Detail: reason})
	if p.cancel != nil {
		p.cancel()
	}
	return true
}

// Stopping reports whether a global stop was raised.
func (p *PipelineContext) Stopping() bool { return p.stopping.Load() }

// StopReason returns the reason given to GlobalStop.
func (p *PipelineContext) StopReason() string {
	reason, _ := p.stopReason.Load().(string)
	return reason
}

// DependencyPath maps a dependency onto its configured root.
func (p *PipelineContext) DependencyPath(dep stage.Dependency) string {
	return dependencyRoots(p.Config)[dep]
}

func (p *PipelineContext) probeFor(dep stage.Dependency) health.Probe {
	switch dep {
	case stage.DepWork, stage.DepBackup, stage.DepHDD:
		if p.Mounts != nil {
			return p.Mounts
		}
	}
	return p.Probe
}

// emit sends ev to the dispatcher. Events raised after the bus closed, such
// as a late udev callback, are dropped.
func (p *PipelineContext) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = p.Clock.Now()
	}
	p.busMu.RLock()
	defer p.busMu.RUnlock()
	if p.busClosed {
		return
	}
	p.events <- ev
}

func (p *PipelineContext) closeBus() {
	p.busMu.Lock()
	defer p.busMu.Unlock()
	if !p.busClosed {
		p.busClosed = true
		close(p.events)
	}
}

// dependencyRoots lists every dependency with a configured root. The input
// dependencies share the search path; callers pick one of them.
func dependencyRoots(cfg *config.Config) map[stage.Dependency]string {
	return map[stage.Dependency]string{
		stage.DepInputMeta:   cfg.Paths.SearchPath,
		stage.DepInputFrames: cfg.Paths.SearchPath,
		stage.DepProject:     cfg.Paths.ProjectDir,
		stage.DepScratch:     cfg.Paths.ScratchDir,
		stage.DepWork:        cfg.Paths.WorkDir,
		stage.DepBackup:      cfg.Paths.BackupDir,
		stage.DepHDD:         cfg.Paths.HDDDir,
	}
}

// classifierFor resolves failing paths against the roots a stage touches.
// Only one input dependency is registered so equal-length roots never tie.
func classifierFor(cfg *config.Config, kind stage.Kind, deps []stage.Dependency, primary stage.Dependency) stage.Classifier {
	all := dependencyRoots(cfg)
	input := stage.DepInputFrames
	if kind == stage.KindMeta {
		input = stage.DepInputMeta
	}
	roots := map[stage.Dependency]string{input: all[input]}
	for _, dep := range []stage.Dependency{stage.DepProject, stage.DepScratch, stage.DepWork, stage.DepBackup, stage.DepHDD} {
		if all[dep] != "" {
			roots[dep] = all[dep]
		}
	}
	return stage.Classifier{Roots: roots, Primary: primary}
}

// stageDependencies returns the roots a stage kind needs, its primary
// dependency and whether it writes into the project.
func stageDependencies(cfg *config.Config, stg config.Stage, kind stage.Kind) ([]stage.Dependency, stage.Dependency, bool) {
	withScratch := func(deps []stage.Dependency) []stage.Dependency {
		if cfg.Paths.ScratchDir != "" {
			deps = append(deps, stage.DepScratch)
		}
		return deps
	}
	switch kind {
	case stage.KindFind:
		return []stage.Dependency{stage.DepInputFrames}, stage.DepInputFrames, false
	case stage.KindMeta:
		return []stage.Dependency{stage.DepInputMeta, stage.DepProject}, stage.DepInputMeta, true
	case stage.KindImport:
		return []stage.Dependency{stage.DepInputFrames, stage.DepProject}, stage.DepInputFrames, true
	case stage.KindCopy:
		target := stage.TargetDependency(stg.Target)
		return []stage.Dependency{stage.DepProject, target}, target, false
	default:
		return withScratch([]stage.Dependency{stage.DepProject}), stage.DepProject, true
	}
}
