package stage_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"transphire/internal/stage"
)

func testClassifier() stage.Classifier {
	return stage.Classifier{
		Roots: map[stage.Dependency]string{
			stage.DepInputFrames: "/mnt/scope",
			stage.DepProject:     "/data/project",
			stage.DepWork:        "/mnt/work",
			stage.DepBackup:      "/mnt/work/backup",
		},
		Primary: stage.DepProject,
	}
}

func TestClassify(t *testing.T) {
	c := testClassifier()
	tests := []struct {
		name string
		err  error
		want stage.Outcome
	}{
		{
			name: "already processed",
			err:  stage.Wrap(stage.ErrAlreadyProcessed, "Import", "rename", "FoilHole_1 translated", nil),
			want: stage.Skip{},
		},
		{
			name: "configuration",
			err:  stage.Wrap(stage.ErrConfiguration, "Motion", "build", "missing gpu list", nil),
			want: stage.Fatal{},
		},
		{
			name: "gpu unavailable",
			err:  fmt.Errorf("assign: %w", stage.ErrGPUUnavailable),
			want: stage.Fatal{},
		},
		{
			name: "missing input file",
			err:  &fs.PathError{Op: "open", Path: "/mnt/scope/a.tiff", Err: unix.ENOENT},
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepInputFrames},
		},
		{
			name: "stale handle on nested root",
			err:  fmt.Errorf("copy: %w", &fs.PathError{Op: "write", Path: "/mnt/work/backup/x", Err: unix.ESTALE}),
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepBackup},
		},
		{
			name: "link error resolves new path",
			err:  &os.LinkError{Op: "rename", Old: "/data/project/tmp", New: "/mnt/work/x", Err: unix.EIO},
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepWork},
		},
		{
			name: "sentinel without path falls back to primary",
			err:  stage.ErrLostConnection,
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepProject},
		},
		{
			name: "permission denied on remounted share",
			err:  &fs.PathError{Op: "open", Path: "/mnt/work/x.mrc", Err: unix.EACCES},
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepWork},
		},
		{
			name: "read-only filesystem",
			err:  fmt.Errorf("copy: %w", &fs.PathError{Op: "write", Path: "/mnt/work/backup/x.mrc", Err: unix.EROFS}),
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepBackup},
		},
		{
			name: "device gone",
			err:  &os.LinkError{Op: "rename", Old: "/data/project/tmp", New: "/data/project/x", Err: unix.ENODEV},
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepProject},
		},
		{
			name: "syscall error without path",
			err:  os.NewSyscallError("fsync", unix.EACCES),
			want: stage.Retry{Kind: stage.FailureLostConnection, Dependency: stage.DepProject},
		},
		{
			name: "disk full",
			err:  &fs.PathError{Op: "write", Path: "/mnt/work/a", Err: unix.ENOSPC},
			want: stage.Retry{Kind: stage.FailureDiskFull, Dependency: stage.DepWork},
		},
		{
			name: "quota",
			err:  &fs.PathError{Op: "write", Path: "/elsewhere/a", Err: unix.EDQUOT},
			want: stage.Retry{Kind: stage.FailureDiskFull, Dependency: stage.DepProject},
		},
		{
			name: "blocking",
			err:  fmt.Errorf("read pipe: %w", unix.EAGAIN),
			want: stage.Retry{Kind: stage.FailureBlocking},
		},
		{
			name: "benign blocking on closed terminal",
			err:  errors.Join(unix.EAGAIN, os.ErrClosed),
			want: stage.Retry{Kind: stage.FailureBlocking, Benign: true},
		},
		{
			name: "unknown",
			err:  errors.New("segmentation fault"),
			want: stage.Retry{Kind: stage.FailureUnknown},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.err)
			switch want := tc.want.(type) {
			case stage.Skip:
				if _, ok := got.(stage.Skip); !ok {
					t.Fatalf("expected Skip, got %#v", got)
				}
			case stage.Fatal:
				if _, ok := got.(stage.Fatal); !ok {
					t.Fatalf("expected Fatal, got %#v", got)
				}
			case stage.Retry:
				retry, ok := got.(stage.Retry)
				if !ok {
					t.Fatalf("expected Retry, got %#v", got)
				}
				if retry.Kind != want.Kind || retry.Dependency != want.Dependency || retry.Benign != want.Benign {
					t.Fatalf("got %v/%v/benign=%v want %v/%v/benign=%v",
						retry.Kind, retry.Dependency, retry.Benign, want.Kind, want.Dependency, want.Benign)
				}
				if !errors.Is(retry.Err, tc.err) {
					t.Fatalf("retry must carry the original error")
				}
			}
		})
	}
}

func TestClassifyNilIsSuccess(t *testing.T) {
	if _, ok := testClassifier().Classify(nil).(stage.Success); !ok {
		t.Fatal("expected Success for nil error")
	}
}

func TestBindRoutesErrorsThroughClassifier(t *testing.T) {
	action := stage.Bind(func(_ context.Context, item string) ([]string, error) {
		if item == "bad" {
			return nil, stage.ErrDiskFull
		}
		return []string{item + ".mrc"}, nil
	}, testClassifier())

	if out, ok := action.Run(context.Background(), "a").(stage.Success); !ok || out.Outputs[0] != "a.mrc" {
		t.Fatalf("unexpected success outcome: %#v", out)
	}
	retry, ok := action.Run(context.Background(), "bad").(stage.Retry)
	if !ok || retry.Kind != stage.FailureDiskFull {
		t.Fatalf("unexpected failure outcome: %#v", retry)
	}
}

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := &fs.PathError{Op: "open", Path: "/x", Err: unix.ENOENT}
	err := stage.Wrap(stage.ErrExternalTool, "CTF", "validate", "output empty", cause)
	if !errors.Is(err, stage.ErrExternalTool) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("wrapped error lost marker or cause: %v", err)
	}
	if got := err.Error(); got != "external tool error: CTF: validate: output empty: open /x: no such file or directory" {
		t.Fatalf("unexpected message %q", got)
	}
	if stage.Wrap(nil, "", "", "", nil).Error() != "stage failure" {
		t.Fatal("expected fallback detail")
	}
}
