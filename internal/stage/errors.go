package stage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLostConnection marks a storage location that is no longer reachable.
	ErrLostConnection = errors.New("lost connection")
	// ErrDiskFull marks a write that failed for lack of space.
	ErrDiskFull = errors.New("disk full")
	// ErrBlocking marks a resource that would block.
	ErrBlocking = errors.New("resource temporarily unavailable")
	// ErrAlreadyProcessed marks an item that an earlier run already handled.
	// The worker marks it done without routing or surfacing anything.
	ErrAlreadyProcessed = errors.New("already processed")
	ErrConfiguration    = errors.New("configuration error")
	ErrExternalTool     = errors.New("external tool error")
	// ErrGPUUnavailable is raised when every GPU slot is owned by another
	// worker and split mode is off.
	ErrGPUUnavailable = errors.New("no free gpu slot")
)

// Wrap builds an error message that includes stage context while tagging it
// with marker for classification. marker should be one of the sentinels
// above; a nil marker leaves classification to the wrapped error.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	switch {
	case marker == nil && err != nil:
		return fmt.Errorf("%s: %w", detail, err)
	case marker == nil:
		return errors.New(detail)
	case err != nil:
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	default:
		return fmt.Errorf("%w: %s", marker, detail)
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
