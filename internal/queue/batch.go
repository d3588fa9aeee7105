package queue

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// BatchList tracks tar batch membership for archiving stages in
// Queue_<stage>_list as "index<TAB>member" lines.
type BatchList struct {
	path string

	mu      sync.Mutex
	index   int
	members map[int][]string
}

// OpenBatchList recovers batch membership for stage. Malformed lines are
// rejected rather than skipped so a damaged list is noticed before members
// are appended to the wrong archive.
func OpenBatchList(dir, stage string) (*BatchList, error) {
	b := &BatchList{path: ListPath(dir, stage), members: make(map[int][]string)}
	if err := ensureFile(b.path); err != nil {
		return nil, fmt.Errorf("queue %s: create batch list: %w", stage, err)
	}
	lines, err := readLines(b.path)
	if err != nil {
		return nil, fmt.Errorf("queue %s: read batch list: %w", stage, err)
	}
	for n, line := range lines {
		rawIndex, member, ok := strings.Cut(line, "\t")
		index, convErr := strconv.Atoi(rawIndex)
		if !ok || convErr != nil || index < 0 || member == "" {
			return nil, fmt.Errorf("queue %s: batch list line %d malformed: %q", stage, n+1, line)
		}
		b.members[index] = append(b.members[index], member)
		if index > b.index {
			b.index = index
		}
	}
	return b, nil
}

// Add records member in the current batch, rolling to a new batch once the
// current one holds size members. It returns the batch index used and
// whether that batch is now complete.
func (b *BatchList) Add(member string, size int) (int, bool, error) {
	if size <= 0 {
		return 0, false, fmt.Errorf("batch size must be positive, got %d", size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.members[b.index] {
		if existing == member {
			return b.index, len(b.members[b.index]) >= size, nil
		}
	}
	if len(b.members[b.index]) >= size {
		b.index++
	}
	if err := appendLines(b.path, strconv.Itoa(b.index)+"\t"+member); err != nil {
		return 0, false, fmt.Errorf("append batch list: %w", err)
	}
	b.members[b.index] = append(b.members[b.index], member)
	return b.index, len(b.members[b.index]) >= size, nil
}

// Current returns the open batch index and its members.
func (b *BatchList) Current() (int, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index, append([]string(nil), b.members[b.index]...)
}

// Members returns the members of batch index.
func (b *BatchList) Members(index int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.members[index]...)
}
