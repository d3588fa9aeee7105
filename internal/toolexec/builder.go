package toolexec

import (
	"fmt"
	"path/filepath"
	"strings"

	"transphire/internal/config"
	"transphire/internal/stage"
)

// Request is what a Builder receives for one item.
type Request struct {
	// Input is the item path taken from the stage queue.
	Input string
	// Root is the item root name (file name without extension).
	Root      string
	OutputDir string
	// Settings is the routing settings mapping ([copy]).
	Settings map[string]string
	// Name is the stage name running the tool.
	Name string
	// GPU is the id assigned by the GPUPool, empty when none was reserved.
	GPU string
}

// Command is a fully resolved tool invocation.
type Command struct {
	// Line is the argv to execute. Shell commands carry a single element
	// that is passed to /bin/sh -c.
	Line []string
	// Outputs must exist and be non-empty after the tool exits.
	Outputs []string
	// Forward is the subset of Outputs routed downstream.
	Forward    []string
	ReserveGPU bool
	GPUs       []string
	Shell      bool
}

// Builder constructs the command for one item.
type Builder interface {
	Build(req Request) (Command, error)
}

// TemplateBuilder expands a configured tool template. Arguments, outputs and
// forwards may use {input}, {root}, {output_dir}, {gpu} and {name}.
type TemplateBuilder struct {
	Name string
	Tool config.Tool
}

// NewTemplateBuilder returns a builder for the named [tools] entry.
func NewTemplateBuilder(cfg *config.Config, tool string) (TemplateBuilder, error) {
	t, ok := cfg.Tools[tool]
	if !ok {
		return TemplateBuilder{}, stage.Wrap(stage.ErrConfiguration, "", "tool", fmt.Sprintf("tool %q is not configured", tool), nil)
	}
	return TemplateBuilder{Name: tool, Tool: t}, nil
}

// Build implements Builder.
func (b TemplateBuilder) Build(req Request) (Command, error) {
	exe := strings.TrimSpace(b.Tool.Executable)
	if exe == "" {
		return Command{}, stage.Wrap(stage.ErrConfiguration, req.Name, "build command", fmt.Sprintf("tool %q has no executable", b.Name), nil)
	}
	if req.Root == "" {
		req.Root = RootName(req.Input)
	}
	expand := placeholders(req)

	cmd := Command{
		ReserveGPU: len(b.Tool.GPUs) > 0,
		GPUs:       append([]string(nil), b.Tool.GPUs...),
		Shell:      b.Tool.Shell,
	}
	if b.Tool.Shell {
		line := exe
		if args := strings.TrimSpace(b.Tool.Args); args != "" {
			line += " " + args
		}
		cmd.Line = []string{expand.Replace(line)}
	} else {
		cmd.Line = append(cmd.Line, exe)
		for _, field := range strings.Fields(b.Tool.Args) {
			cmd.Line = append(cmd.Line, expand.Replace(field))
		}
	}

	for _, out := range b.Tool.Outputs {
		cmd.Outputs = append(cmd.Outputs, resolveOutput(expand.Replace(out), req.OutputDir))
	}
	for _, fwd := range b.Tool.Forward {
		cmd.Forward = append(cmd.Forward, resolveOutput(expand.Replace(fwd), req.OutputDir))
	}
	if len(b.Tool.Forward) == 0 {
		cmd.Forward = append([]string(nil), cmd.Outputs...)
	}
	return cmd, nil
}

func placeholders(req Request) *strings.Replacer {
	return strings.NewReplacer(
		"{input}", req.Input,
		"{root}", req.Root,
		"{output_dir}", req.OutputDir,
		"{gpu}", req.GPU,
		"{name}", req.Name,
	)
}

func resolveOutput(path, outputDir string) string {
	if path == "" || filepath.IsAbs(path) || outputDir == "" {
		return path
	}
	return filepath.Join(outputDir, path)
}

// RootName strips the directory and every extension from path.
func RootName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}
