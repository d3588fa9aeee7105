package health

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Usage describes the capacity of the filesystem holding a path.
type Usage struct {
	Path       string
	TotalBytes uint64
	FreeBytes  uint64
}

// UsedBytes returns the bytes not available to unprivileged writers.
func (u Usage) UsedBytes() uint64 {
	if u.FreeBytes > u.TotalBytes {
		return 0
	}
	return u.TotalBytes - u.FreeBytes
}

// PercentUsed returns the used share of the filesystem in [0,100].
func (u Usage) PercentUsed() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return float64(u.UsedBytes()) / float64(u.TotalBytes) * 100
}

// DiskUsage reports the usage of the filesystem that holds path.
func DiskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, &os.PathError{Op: "statfs", Path: path, Err: err}
	}
	bsize := uint64(st.Bsize) //nolint:gosec // block size is never negative
	return Usage{
		Path:       path,
		TotalBytes: st.Blocks * bsize,
		FreeBytes:  st.Bavail * bsize,
	}, nil
}

// QuotaExceeded reports whether usage crossed stopPercent. A non-positive
// limit disables the check.
func QuotaExceeded(usage Usage, stopPercent float64) bool {
	if stopPercent <= 0 {
		return false
	}
	return usage.PercentUsed() >= stopPercent
}

// IsMounted reports whether path is a mount point: it exists as a directory
// and either is the filesystem root or lives on a different device than its
// parent.
func IsMounted(path string) (bool, error) {
	clean := filepath.Clean(path)
	var st unix.Stat_t
	if err := unix.Stat(clean, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, &os.PathError{Op: "stat", Path: clean, Err: err}
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return false, fmt.Errorf("%s is not a directory", clean)
	}
	if clean == string(filepath.Separator) {
		return true, nil
	}
	var parent unix.Stat_t
	if err := unix.Stat(filepath.Dir(clean), &parent); err != nil {
		return false, &os.PathError{Op: "stat", Path: filepath.Dir(clean), Err: err}
	}
	return st.Dev != parent.Dev, nil
}
