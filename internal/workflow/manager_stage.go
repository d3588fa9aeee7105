package workflow

import (
	"context"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"transphire/internal/config"
	"transphire/internal/importer"
	"transphire/internal/logging"
	"transphire/internal/notifications"
	"transphire/internal/queue"
	"transphire/internal/routing"
	"transphire/internal/stage"
	"transphire/internal/toolexec"
)

const eventBuffer = 256

// buildPipeline opens every stage queue and assembles the shared context.
// Queues of disabled stages are opened too so routed items are never lost.
func (m *Manager) buildPipeline(cancel context.CancelFunc) (*PipelineContext, error) {
	cfg := m.cfg
	p := &PipelineContext{
		Config:   cfg,
		Settings: maps.Clone(cfg.Copy),
		Stages:   make(map[string]*StageRuntime, len(cfg.Stages)),
		Share:    newShare(),
		RunID:    uuid.NewString(),
		Clock:    m.clock,
		Space:    m.space,
		Probe:    m.probe,
		Mounts:   m.mounts,
		Limiter:  notifications.NewLimiter(time.Duration(cfg.Health.NotifyIntervalMinutes) * time.Minute),
		History:  m.history,
		Metrics:  m.metrics,
		events:   make(chan Event, eventBuffer),
		cancel:   cancel,
	}
	if p.Settings == nil {
		p.Settings = map[string]string{}
	}

	if needsImporter(cfg) {
		im, err := importer.Open(cfg)
		if err != nil {
			return nil, stage.Wrap(stage.ErrConfiguration, "Import", "open importer", "", err)
		}
		p.Importer = im
	}

	redactor := logging.NewRedactor(cfg.SecretValues()...)
	pools := make(map[string]*toolexec.GPUPool)
	for _, stg := range cfg.Stages {
		kind, ok := stage.KindFromConfig(stg.Kind)
		if !ok {
			return nil, stage.Wrap(stage.ErrConfiguration, stg.Name, "build pipeline", "unknown stage kind "+string(stg.Kind), nil)
		}
		q, err := queue.Open(cfg.Paths.QueueDir, stg.Name)
		if err != nil {
			return nil, stage.Wrap(stage.ErrConfiguration, stg.Name, "open queue", "", err)
		}
		aims, err := routing.ParseAll(stg.Aims)
		if err != nil {
			return nil, stage.Wrap(stage.ErrConfiguration, stg.Name, "parse aims", "", err)
		}
		deps, primary, writesProject := stageDependencies(cfg, stg, kind)

		state := stage.NewState(stg.Name, stg.Workers)
		state.SeedFileNumber(q.DoneCount())

		rt := &StageRuntime{
			Name:          stg.Name,
			Kind:          kind,
			Config:        stg,
			Queue:         q,
			State:         state,
			Aims:          aims,
			Errors:        queue.NewErrorLog(cfg.Paths.QueueDir, stg.Name, redactor),
			Classifier:    classifierFor(cfg, kind, deps, primary),
			Deps:          deps,
			WritesProject: writesProject,
			Active:        cfg.StageEnabled(stg) && !cfg.StageDeferred(stg),
			Deferred:      cfg.StageDeferred(stg),
		}
		if kind == stage.KindTransform {
			if tool, ok := cfg.Tools[stg.Tool]; ok && len(tool.GPUs) > 0 {
				if pools[stg.Tool] == nil {
					pools[stg.Tool] = toolexec.NewGPUPool(tool.GPUs, tool.SplitGPU)
				}
				rt.GPUs = pools[stg.Tool]
			}
		}
		p.Stages[stg.Name] = rt
		p.Order = append(p.Order, stg.Name)
	}

	runner := toolexec.NewRunner()
	if m.executor != nil {
		runner = toolexec.NewRunnerWithExecutor(m.executor)
	}
	for _, name := range p.Order {
		rt := p.Stages[name]
		if !rt.Active && !rt.Deferred {
			continue
		}
		if rt.Kind == stage.KindMeta {
			collector := metaCollector(cfg)
			rt.Action = stage.Bind(func(ctx context.Context, run string) ([]string, error) {
				tar, err := collector.Collect(ctx, run)
				if err != nil {
					return nil, err
				}
				return []string{tar}, nil
			}, rt.Classifier)
			continue
		}
		action, err := buildAction(p, rt, runner)
		if err != nil {
			return nil, err
		}
		rt.Action = action
	}

	seedShare(p)
	return p, nil
}

func needsImporter(cfg *config.Config) bool {
	for _, stg := range cfg.Stages {
		if stg.Kind == config.KindFind || stg.Kind == config.KindImport {
			return true
		}
	}
	return false
}

// seedShare records every acquisition the Import stage has already seen so a
// restarted Find does not discover it again.
func seedShare(p *PipelineContext) {
	for _, rt := range p.Stages {
		if rt.Kind != stage.KindImport {
			continue
		}
		roots := rt.Queue.Pending()
		if done, err := rt.Queue.Done(); err == nil {
			roots = append(roots, done...)
		}
		for _, marker := range roots {
			base := filepath.Base(marker)
			p.Share.Add(strings.TrimSuffix(base, filepath.Ext(base)))
		}
	}
}
