package stage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Classifier maps action errors onto outcomes. Roots resolves a failing path
// to the storage location it lives on; Primary is used when no path is
// available or none of the roots match.
type Classifier struct {
	Roots   map[Dependency]string
	Primary Dependency
}

// Classify converts err into an Outcome using only errors.Is and errors.As.
// A nil error is a Success with no outputs.
func (c Classifier) Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success{}
	case errors.Is(err, ErrAlreadyProcessed):
		return Skip{Reason: err.Error()}
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrGPUUnavailable):
		return Fatal{Reason: err.Error(), Err: err}
	case isDiskFull(err):
		return Retry{Kind: FailureDiskFull, Dependency: c.dependencyFor(err), Err: err}
	case isBlocking(err):
		return Retry{Kind: FailureBlocking, Benign: errors.Is(err, os.ErrClosed), Err: err}
	case isLostConnection(err), isFilesystemError(err):
		return Retry{Kind: FailureLostConnection, Dependency: c.dependencyFor(err), Err: err}
	default:
		return Retry{Kind: FailureUnknown, Err: err}
	}
}

// Resolve returns the dependency whose root is the longest prefix of path.
func (c Classifier) Resolve(path string) (Dependency, bool) {
	path = filepath.Clean(path)
	best, bestLen := DepNone, -1
	for dep, root := range c.Roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = dep, len(root)
		}
	}
	return best, bestLen >= 0
}

func (c Classifier) dependencyFor(err error) Dependency {
	for _, path := range failingPaths(err) {
		if dep, ok := c.Resolve(path); ok {
			return dep
		}
	}
	return c.Primary
}

func failingPaths(err error) []string {
	var paths []string
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		paths = append(paths, linkErr.New, linkErr.Old)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		paths = append(paths, pathErr.Path)
	}
	return paths
}

func isDiskFull(err error) bool {
	return errors.Is(err, ErrDiskFull) || errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

func isBlocking(err error) bool {
	return errors.Is(err, ErrBlocking) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func isLostConnection(err error) bool {
	return errors.Is(err, ErrLostConnection) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, unix.EIO) ||
		errors.Is(err, unix.ESTALE) ||
		errors.Is(err, unix.ENOTCONN) ||
		errors.Is(err, unix.EHOSTDOWN)
}

// isFilesystemError matches any remaining I/O failure on a path, such as
// EACCES or EROFS on a share that was remounted.
func isFilesystemError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr)
}
