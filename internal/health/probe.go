package health

import (
	"os"

	"golang.org/x/sys/unix"
)

// Probe re-verifies a dependency root after a lost-connection failure.
type Probe interface {
	Available(path string) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(path string) bool

// Available calls f(path).
func (f ProbeFunc) Available(path string) bool { return f(path) }

// DirectoryProbe treats a root as available when it is a readable directory.
// With RequireMount set the root must also be a mount point.
type DirectoryProbe struct {
	RequireMount bool
}

// Available implements Probe.
func (p DirectoryProbe) Available(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if unix.Access(path, unix.R_OK|unix.X_OK) != nil {
		return false
	}
	if !p.RequireMount {
		return true
	}
	mounted, err := IsMounted(path)
	return err == nil && mounted
}

// SpaceChecker reports the filesystem usage of a root.
type SpaceChecker interface {
	Usage(path string) (Usage, error)
}

// StatfsChecker reads usage with statfs(2).
type StatfsChecker struct{}

// Usage implements SpaceChecker.
func (StatfsChecker) Usage(path string) (Usage, error) { return DiskUsage(path) }
