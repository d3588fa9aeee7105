package toolexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"transphire/internal/config"
	"transphire/internal/stage"
)

func TestTemplateBuilderExpandsPlaceholders(t *testing.T) {
	b := TemplateBuilder{Name: "motion", Tool: config.Tool{
		Executable: "MotionCor2",
		Args:       "-InTiff {input} -OutMrc {output_dir}/{root}.mrc -Gpu {gpu}",
		Outputs:    []string{"{root}.mrc", "{root}_DW.mrc", "/abs/{name}.log"},
		Forward:    []string{"{root}_DW.mrc"},
		GPUs:       []string{"0", "1"},
	}}
	cmd, err := b.Build(Request{
		Input:     "/data/micrograph_000001_fractions.tiff",
		OutputDir: "/project/Motion",
		Name:      "Motion",
		GPU:       "1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	wantLine := []string{"MotionCor2", "-InTiff", "/data/micrograph_000001_fractions.tiff", "-OutMrc", "/project/Motion/micrograph_000001_fractions.mrc", "-Gpu", "1"}
	if !reflect.DeepEqual(cmd.Line, wantLine) {
		t.Fatalf("line = %q, want %q", cmd.Line, wantLine)
	}
	wantOutputs := []string{
		"/project/Motion/micrograph_000001_fractions.mrc",
		"/project/Motion/micrograph_000001_fractions_DW.mrc",
		"/abs/Motion.log",
	}
	if !reflect.DeepEqual(cmd.Outputs, wantOutputs) {
		t.Fatalf("outputs = %q", cmd.Outputs)
	}
	if !reflect.DeepEqual(cmd.Forward, []string{"/project/Motion/micrograph_000001_fractions_DW.mrc"}) {
		t.Fatalf("forward = %q", cmd.Forward)
	}
	if !cmd.ReserveGPU || len(cmd.GPUs) != 2 || cmd.Shell {
		t.Fatalf("unexpected flags %+v", cmd)
	}
}

func TestTemplateBuilderShellAndDefaults(t *testing.T) {
	b := TemplateBuilder{Name: "compress", Tool: config.Tool{
		Executable: "tif2mrc",
		Args:       "{input} {output_dir}/{root}.mrc && gzip {output_dir}/{root}.mrc",
		Outputs:    []string{"{root}.mrc.gz"},
		Shell:      true,
	}}
	cmd, err := b.Build(Request{Input: "/in/a.tiff", OutputDir: "/out", Name: "Compress"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(cmd.Line) != 1 || cmd.Line[0] != "tif2mrc /in/a.tiff /out/a.mrc && gzip /out/a.mrc" {
		t.Fatalf("unexpected shell line %q", cmd.Line)
	}
	if !reflect.DeepEqual(cmd.Forward, cmd.Outputs) {
		t.Fatal("forward must default to outputs")
	}

	if _, err := (TemplateBuilder{Name: "x"}).Build(Request{}); !errors.Is(err, stage.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	cfg := config.Default()
	if _, err := NewTemplateBuilder(&cfg, "missing"); !errors.Is(err, stage.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRootName(t *testing.T) {
	for in, want := range map[string]string{
		"/a/b/FoilHole_1_Data_2.xml":  "FoilHole_1_Data_2",
		"micrograph_000001.mrc":       "micrograph_000001",
		"/x/archive.tar.gz":           "archive",
		"/x/.hidden":                  ".hidden",
	} {
		if got := RootName(in); got != want {
			t.Fatalf("RootName(%q) = %q, want %q", in, got, want)
		}
	}
}

type scriptedExecutor struct {
	write map[string]string
	err   error
	argv  []string
}

func (s *scriptedExecutor) Run(_ context.Context, argv []string, _ bool, stdout, stderr io.Writer) error {
	s.argv = argv
	fmt.Fprintln(stdout, "aligned 40 frames")
	fmt.Fprintln(stderr, "warning: gain reference missing")
	for path, content := range s.write {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return s.err
}

func TestRunnerCapturesLogsAndValidates(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	out := filepath.Join(dir, "a.mrc")
	exec := &scriptedExecutor{write: map[string]string{out: "data"}}
	r := NewRunnerWithExecutor(exec)

	forward, err := r.Run(context.Background(), "Motion", Command{Line: []string{"tool"}, Outputs: []string{out}, Forward: []string{out}}, logDir, "a")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(forward, []string{out}) {
		t.Fatalf("forward = %v", forward)
	}
	stdout, _ := os.ReadFile(filepath.Join(logDir, "a.out"))
	stderr, _ := os.ReadFile(filepath.Join(logDir, "a.err"))
	if string(stdout) != "aligned 40 frames\n" || string(stderr) != "warning: gain reference missing\n" {
		t.Fatalf("unexpected captured output %q / %q", stdout, stderr)
	}
}

func TestRunnerRejectsEmptyOutputs(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mrc")
	r := NewRunnerWithExecutor(&scriptedExecutor{write: map[string]string{empty: ""}})
	_, err := r.Run(context.Background(), "CTF", Command{Line: []string{"tool"}, Outputs: []string{empty, filepath.Join(dir, "never.mrc")}}, dir, "b")
	if !errors.Is(err, stage.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestRunnerWrapsToolFailure(t *testing.T) {
	dir := t.TempDir()
	r := NewRunnerWithExecutor(&scriptedExecutor{err: errors.New("exit status 2")})
	_, err := r.Run(context.Background(), "CTF", Command{Line: []string{"tool"}}, dir, "c")
	if !errors.Is(err, stage.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestRunnerExecutesRealProcess(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "real.txt")
	r := NewRunner()
	cmd := Command{Line: []string{"echo done > " + out}, Outputs: []string{out}, Shell: true}
	if _, err := r.Run(context.Background(), "Compress", cmd, dir, "real"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, err := r.Run(context.Background(), "Compress", Command{Line: []string{filepath.Join(dir, "no-such-tool")}}, dir, "missing")
	if !errors.Is(err, stage.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing binary, got %v", err)
	}
}

func TestGPUPoolExclusive(t *testing.T) {
	pool := NewGPUPool([]string{"0", "1"}, false)
	a, err := pool.Assign("Motion#1")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := pool.Assign("Motion#1")
	if again != a {
		t.Fatalf("assignment not re-entrant: %s then %s", a, again)
	}
	b, err := pool.Assign("Motion#2")
	if err != nil || b == a {
		t.Fatalf("second owner got %q err=%v", b, err)
	}
	if _, err := pool.Assign("Motion#3"); !errors.Is(err, stage.ErrGPUUnavailable) {
		t.Fatalf("expected ErrGPUUnavailable, got %v", err)
	}
	pool.Release("Motion#1")
	if c, err := pool.Assign("Motion#3"); err != nil || c != a {
		t.Fatalf("released gpu not reused: %q %v", c, err)
	}
}

func TestGPUPoolSplit(t *testing.T) {
	pool := NewGPUPool([]string{"0"}, true)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Assign(fmt.Sprintf("CTF#%d", i)); err != nil {
				t.Errorf("split assign: %v", err)
			}
		}()
	}
	wg.Wait()
	if pool.Owners("0") != 4 {
		t.Fatalf("expected four owners on gpu 0, got %d", pool.Owners("0"))
	}
	if _, err := NewGPUPool(nil, true).Assign("x"); !errors.Is(err, stage.ErrConfiguration) {
		t.Fatalf("expected configuration error without gpus, got %v", err)
	}
}
