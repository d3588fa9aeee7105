package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"transphire/internal/archive"
	"transphire/internal/config"
	"transphire/internal/discovery"
	"transphire/internal/fileutil"
	"transphire/internal/queue"
	"transphire/internal/stage"
	"transphire/internal/toolexec"
)

type gpuKey struct{}

func withGPU(ctx context.Context, gpu string) context.Context {
	if gpu == "" {
		return ctx
	}
	return context.WithValue(ctx, gpuKey{}, gpu)
}

func gpuFromContext(ctx context.Context) string {
	gpu, _ := ctx.Value(gpuKey{}).(string)
	return gpu
}

// buildAction returns the action for queue-driven stages. Find and Meta are
// driven by the worker directly and get no Action.
func buildAction(p *PipelineContext, rt *StageRuntime, runner *toolexec.Runner) (stage.Action, error) {
	switch rt.Kind {
	case stage.KindImport:
		if p.Importer == nil {
			return nil, stage.Wrap(stage.ErrConfiguration, rt.Name, "build action", "importer unavailable", nil)
		}
		return stage.Bind(p.Importer.Import, rt.Classifier), nil
	case stage.KindTransform:
		builder, err := toolexec.NewTemplateBuilder(p.Config, rt.Config.Tool)
		if err != nil {
			return nil, err
		}
		return stage.Bind(transformStep(p, rt, builder, runner), rt.Classifier), nil
	case stage.KindCopy:
		step, err := copyStep(p, rt)
		if err != nil {
			return nil, err
		}
		return stage.Bind(step, rt.Classifier), nil
	}
	return nil, nil
}

func transformStep(p *PipelineContext, rt *StageRuntime, builder toolexec.Builder, runner *toolexec.Runner) stage.StepFunc {
	outputDir := filepath.Join(p.Config.Paths.ProjectDir, rt.Name)
	logDir := filepath.Join(p.Config.Paths.LogDir, rt.Name)
	return func(ctx context.Context, item string) ([]string, error) {
		if _, err := os.Stat(item); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, err
		}
		root := toolexec.RootName(item)
		gpu := gpuFromContext(ctx)
		cmd, err := builder.Build(toolexec.Request{
			Input:     item,
			Root:      root,
			OutputDir: outputDir,
			Settings:  p.Settings,
			Name:      rt.Name,
			GPU:       gpu,
		})
		if err != nil {
			return nil, err
		}
		if cmd.ReserveGPU && gpu == "" {
			return nil, stage.Wrap(stage.ErrGPUUnavailable, rt.Name, "run tool", "worker holds no gpu", nil)
		}
		return runner.Run(ctx, rt.Name, cmd, logDir, root)
	}
}

func copyStep(p *PipelineContext, rt *StageRuntime) (stage.StepFunc, error) {
	project := p.Config.Paths.ProjectDir
	target := p.Config.TargetDir(rt.Config.Target)
	if target == "" {
		return nil, stage.Wrap(stage.ErrConfiguration, rt.Name, "build action",
			fmt.Sprintf("paths.%s_dir is empty", rt.Config.Target), nil)
	}

	if rt.Config.TarBatch > 0 {
		list, err := queue.OpenBatchList(p.Config.Paths.QueueDir, rt.Name)
		if err != nil {
			return nil, err
		}
		batcher := archive.Batcher{
			Stage:      rt.Name,
			TargetDir:  target,
			SourceRoot: project,
			Size:       rt.Config.TarBatch,
			List:       list,
		}
		return func(_ context.Context, item string) ([]string, error) {
			if _, err := os.Stat(item); err != nil {
				return nil, err
			}
			if err := targetSpace(p, rt, target); err != nil {
				return nil, err
			}
			tar, err := batcher.Add(item)
			if err != nil {
				return nil, err
			}
			return []string{tar}, nil
		}, nil
	}

	return func(_ context.Context, item string) ([]string, error) {
		dst := fileutil.Mirror(item, project, target)
		same, err := fileutil.SameFile(item, dst)
		if err != nil {
			return nil, err
		}
		if same {
			return nil, stage.Wrap(stage.ErrAlreadyProcessed, rt.Name, "copy", dst+" is already up to date", nil)
		}
		if err := targetSpace(p, rt, target); err != nil {
			return nil, err
		}
		if err := fileutil.CopyFileVerified(item, dst); err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}, nil
}

// targetSpace refuses a copy once the target filesystem crosses the disk-full
// threshold. The classifier attributes the error to the stage's target.
func targetSpace(p *PipelineContext, rt *StageRuntime, target string) error {
	if p.Space == nil {
		return nil
	}
	usage, err := p.Space.Usage(target)
	if err != nil {
		// Let the copy itself surface an unreachable target.
		return nil
	}
	if percent := usage.PercentUsed(); percent >= p.Config.Health.DiskFullPercent {
		return stage.Wrap(stage.ErrDiskFull, rt.Name, "copy",
			fmt.Sprintf("%s is %.1f%% full", target, percent), nil)
	}
	return nil
}

func metaCollector(cfg *config.Config) archive.Meta {
	return archive.Meta{
		SearchPath: cfg.Paths.SearchPath,
		OutputDir:  filepath.Join(cfg.Paths.ProjectDir, "Meta"),
		Finder:     discovery.NewFinder(cfg),
	}
}
