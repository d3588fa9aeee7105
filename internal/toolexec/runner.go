package toolexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"transphire/internal/stage"
)

// Executor runs one process with the given output streams.
type Executor interface {
	Run(ctx context.Context, argv []string, shell bool, stdout, stderr io.Writer) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, argv []string, shell bool, stdout, stderr io.Writer) error {
	if len(argv) == 0 {
		return errors.New("empty command line")
	}
	var cmd *exec.Cmd
	if shell {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", argv[0]) //nolint:gosec
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Runner executes commands and validates their outputs.
type Runner struct {
	exec Executor
}

// NewRunner returns a runner backed by os/exec.
func NewRunner() *Runner {
	return &Runner{exec: commandExecutor{}}
}

// NewRunnerWithExecutor returns a runner backed by exec.
func NewRunnerWithExecutor(exec Executor) *Runner {
	return &Runner{exec: exec}
}

// Run executes cmd, capturing stdout and stderr to <logDir>/<root>.out and
// <logDir>/<root>.err. It returns cmd.Forward when every expected output
// exists and is non-empty.
func (r *Runner) Run(ctx context.Context, name string, cmd Command, logDir, root string) ([]string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	stdout, err := os.Create(filepath.Join(logDir, root+".out"))
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(logDir, root+".err"))
	if err != nil {
		return nil, err
	}
	defer stderr.Close()

	if err := r.exec.Run(ctx, cmd.Line, cmd.Shell, stdout, stderr); err != nil {
		if notStarted(err) {
			return nil, stage.Wrap(stage.ErrConfiguration, name, "run tool", "executable unavailable", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, stage.Wrap(stage.ErrExternalTool, name, "run tool", fmt.Sprintf("see %s", stderr.Name()), err)
	}

	if err := ValidateOutputs(cmd.Outputs); err != nil {
		return nil, stage.Wrap(stage.ErrExternalTool, name, "validate outputs", "", err)
	}
	return cmd.Forward, nil
}

// notStarted reports whether err means the process never ran.
func notStarted(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

// ValidateOutputs checks that every path exists and is non-empty.
func ValidateOutputs(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("expected output %s missing", path)
		}
		if info.IsDir() || info.Size() == 0 {
			return fmt.Errorf("expected output %s is empty", path)
		}
	}
	return nil
}
