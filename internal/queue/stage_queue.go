package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// ErrNotPending is returned by MarkDone and Requeue for roots the queue does
// not hold.
var ErrNotPending = errors.New("root is not pending")

// StageQueue is the durable FIFO for one stage. Every root name is held at
// most once per stage: an Enqueue of a root that is already pending (queued
// or in flight) is a no-op.
type StageQueue struct {
	stage string
	dir   string

	mu       sync.Mutex
	items    []string
	queued   map[string]struct{}
	pending  map[string]struct{}
	// recorded holds roots already appended to the done mirror whose
	// pending rewrite has not succeeded yet.
	recorded map[string]struct{}
	doneSeen int
	lock     *flock.Flock
}

// PendingPath returns the pending mirror path for stage.
func PendingPath(dir, stage string) string { return filepath.Join(dir, "Queue_"+stage) }

// DonePath returns the done mirror path for stage.
func DonePath(dir, stage string) string { return filepath.Join(dir, "Queue_"+stage+"_done") }

// ListPath returns the batch membership list path for stage.
func ListPath(dir, stage string) string { return filepath.Join(dir, "Queue_"+stage+"_list") }

// ErrorPath returns the error log path for stage.
func ErrorPath(dir, stage string) string { return filepath.Join(dir, "Queue_"+stage+"_error") }

// LockPath returns the advisory lock path for stage.
func LockPath(dir, stage string) string { return filepath.Join(dir, "Queue_"+stage+".lock") }

// Open rebuilds the queue for stage from its mirrors, creating missing files
// empty. Roots listed as done are dropped from the pending mirror.
func Open(dir, stage string) (*StageQueue, error) {
	if strings.TrimSpace(stage) == "" || strings.ContainsRune(stage, filepath.Separator) {
		return nil, fmt.Errorf("queue: invalid stage name %q", stage)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: create dir: %w", err)
	}

	q := &StageQueue{
		stage:    stage,
		dir:      dir,
		queued:   make(map[string]struct{}),
		pending:  make(map[string]struct{}),
		recorded: make(map[string]struct{}),
		lock:     flock.New(LockPath(dir, stage)),
	}

	if err := q.lock.Lock(); err != nil {
		return nil, fmt.Errorf("queue %s: lock mirrors: %w", stage, err)
	}
	defer func() { _ = q.lock.Unlock() }()

	for _, path := range []string{q.PendingPath(), q.DonePath()} {
		if err := ensureFile(path); err != nil {
			return nil, fmt.Errorf("queue %s: create %s: %w", stage, filepath.Base(path), err)
		}
	}

	done, err := readLines(q.DonePath())
	if err != nil {
		return nil, fmt.Errorf("queue %s: read done mirror: %w", stage, err)
	}
	q.doneSeen = len(done)
	doneSet := make(map[string]struct{}, len(done))
	for _, root := range done {
		doneSet[root] = struct{}{}
	}

	lines, err := readLines(q.PendingPath())
	if err != nil {
		return nil, fmt.Errorf("queue %s: read pending mirror: %w", stage, err)
	}
	recovered := make([]string, 0, len(lines))
	for _, root := range lines {
		if _, isDone := doneSet[root]; isDone {
			continue
		}
		if _, dup := q.pending[root]; dup {
			continue
		}
		q.pending[root] = struct{}{}
		q.queued[root] = struct{}{}
		q.items = append(q.items, root)
		recovered = append(recovered, root)
	}
	if len(recovered) != len(lines) {
		if err := writeLinesAtomic(q.PendingPath(), recovered); err != nil {
			return nil, fmt.Errorf("queue %s: compact pending mirror: %w", stage, err)
		}
	}
	return q, nil
}

// Stage returns the stage name.
func (q *StageQueue) Stage() string { return q.stage }

// PendingPath returns this queue's pending mirror.
func (q *StageQueue) PendingPath() string { return PendingPath(q.dir, q.stage) }

// DonePath returns this queue's done mirror.
func (q *StageQueue) DonePath() string { return DonePath(q.dir, q.stage) }

// ErrorPath returns this queue's error log.
func (q *StageQueue) ErrorPath() string { return ErrorPath(q.dir, q.stage) }

// Enqueue adds root to the tail and records it in the pending mirror. It
// reports false when root is already pending.
func (q *StageQueue) Enqueue(root string) (bool, error) {
	root = strings.TrimSpace(root)
	if root == "" || strings.ContainsAny(root, "\r\n") {
		return false, fmt.Errorf("queue %s: invalid root %q", q.stage, root)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[root]; ok {
		return false, nil
	}
	if err := q.withFileLock(func() error {
		return appendLines(q.PendingPath(), root)
	}); err != nil {
		return false, fmt.Errorf("queue %s: append pending: %w", q.stage, err)
	}
	q.pending[root] = struct{}{}
	q.queued[root] = struct{}{}
	q.items = append(q.items, root)
	return true, nil
}

// Dequeue pops the head without blocking. The boolean is false when the
// queue is empty.
func (q *StageQueue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	root := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	delete(q.queued, root)
	return root, true
}

// Requeue returns an in-flight root to the tail. The pending mirror already
// holds it, so only memory changes.
func (q *StageQueue) Requeue(root string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[root]; !ok {
		return fmt.Errorf("queue %s: requeue %q: %w", q.stage, root, ErrNotPending)
	}
	if _, ok := q.queued[root]; ok {
		return nil
	}
	q.queued[root] = struct{}{}
	q.items = append(q.items, root)
	return nil
}

// MarkDone appends root to the done mirror and then removes it from the
// pending mirror. A crash between the two leaves the root in both files,
// which Open reconciles by dropping it from pending.
func (q *StageQueue) MarkDone(root string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[root]; !ok {
		return fmt.Errorf("queue %s: mark done %q: %w", q.stage, root, ErrNotPending)
	}
	err := q.withFileLock(func() error {
		// A previous attempt may have recorded the root before failing.
		if _, ok := q.recorded[root]; !ok {
			if err := appendLines(q.DonePath(), root); err != nil {
				return err
			}
			q.recorded[root] = struct{}{}
		}
		lines, err := readLines(q.PendingPath())
		if err != nil {
			return err
		}
		kept := lines[:0]
		for _, line := range lines {
			if line != root {
				kept = append(kept, line)
			}
		}
		return writeLinesAtomic(q.PendingPath(), kept)
	})
	if err != nil {
		return fmt.Errorf("queue %s: mark done %q: %w", q.stage, root, err)
	}
	delete(q.recorded, root)
	delete(q.pending, root)
	if _, ok := q.queued[root]; ok {
		delete(q.queued, root)
		q.removeQueuedLocked(root)
	}
	q.doneSeen++
	return nil
}

// Size returns the in-memory depth.
func (q *StageQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PendingCount returns queued plus in-flight roots.
func (q *StageQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DoneCount returns the number of done mirror entries.
func (q *StageQueue) DoneCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.doneSeen
}

// Contains reports whether root is pending in this stage.
func (q *StageQueue) Contains(root string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[root]
	return ok
}

// Pending returns the pending roots in queue order followed by in-flight
// roots in no particular order.
func (q *StageQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]string(nil), q.items...)
	for root := range q.pending {
		if _, ok := q.queued[root]; !ok {
			out = append(out, root)
		}
	}
	return out
}

// Done returns the done mirror contents.
func (q *StageQueue) Done() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var lines []string
	err := q.withFileLock(func() error {
		var err error
		lines, err = readLines(q.DonePath())
		return err
	})
	return lines, err
}

// Drain empties the in-memory queue on shutdown. Mirrors are untouched, so
// the next Open recovers everything that was pending.
func (q *StageQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	q.queued = make(map[string]struct{})
	return n
}

func (q *StageQueue) removeQueuedLocked(root string) {
	for i, item := range q.items {
		if item == root {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// withFileLock must be called with q.mu held; the flock handle is not safe
// for concurrent use within one process.
func (q *StageQueue) withFileLock(fn func() error) error {
	if err := q.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", filepath.Base(q.lock.Path()), err)
	}
	defer func() { _ = q.lock.Unlock() }()
	return fn()
}
