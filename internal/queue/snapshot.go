package queue

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"
)

// Snapshot is a read-only view of one stage's mirrors.
type Snapshot struct {
	Stage   string
	Pending int
	Done    int
	Errors  int
}

// ReadSnapshot counts mirror lines under a shared lock without touching the
// queue. Missing mirrors count as empty.
func ReadSnapshot(dir, stage string) (Snapshot, error) {
	snap := Snapshot{Stage: stage}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, fmt.Errorf("queue %s: stat dir: %w", stage, err)
	}

	lock := flock.New(LockPath(dir, stage))
	if err := lock.RLock(); err != nil {
		return snap, fmt.Errorf("queue %s: shared lock: %w", stage, err)
	}
	defer func() { _ = lock.Unlock() }()

	var err error
	if snap.Pending, err = countLines(PendingPath(dir, stage)); err != nil {
		return snap, err
	}
	if snap.Done, err = countLines(DonePath(dir, stage)); err != nil {
		return snap, err
	}
	content, err := os.ReadFile(ErrorPath(dir, stage))
	if err != nil && !os.IsNotExist(err) {
		return snap, fmt.Errorf("queue %s: read error log: %w", stage, err)
	}
	// Entries end with a blank separator line.
	snap.Errors = strings.Count(string(content), "\n\n")
	return snap, nil
}
