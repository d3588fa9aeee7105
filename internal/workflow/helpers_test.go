package workflow

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"transphire/internal/config"
	"transphire/internal/health"
	"transphire/internal/notifications"
	"transphire/internal/preflight"
	"transphire/internal/queue"
	"transphire/internal/testsupport"
)

// fakeClock advances on every After call and fires almost immediately, so
// worker sleeps cost a millisecond of wall time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	time.AfterFunc(time.Millisecond, func() { ch <- now })
	return ch
}

type recordingSink struct {
	mu            sync.Mutex
	statuses      []StageStatus
	notifications []string
	errors        []string
	logs          []string
}

func (s *recordingSink) Status(status StageStatus) {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
}

func (s *recordingSink) Notification(text string) {
	s.mu.Lock()
	s.notifications = append(s.notifications, text)
	s.mu.Unlock()
}

func (s *recordingSink) Error(text string) {
	s.mu.Lock()
	s.errors = append(s.errors, text)
	s.mu.Unlock()
}

func (s *recordingSink) Log(text string) {
	s.mu.Lock()
	s.logs = append(s.logs, text)
	s.mu.Unlock()
}

func (s *recordingSink) sawStatus(stageName string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.statuses {
		if st.Stage == stageName && st.Status == status {
			return true
		}
	}
	return false
}

func (s *recordingSink) errorsContaining(sub string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, text := range s.errors {
		if strings.Contains(text, sub) {
			n++
		}
	}
	return n
}

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *stubNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *stubNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

// fixedSpace reports the same usage for every path.
type fixedSpace float64

func (f fixedSpace) Usage(path string) (health.Usage, error) {
	return health.Usage{Path: path, TotalBytes: 1000, FreeBytes: uint64(1000 - float64(f)*10)}, nil
}

// spaceByPath reports per-path usage that a test can change while the
// pipeline runs. Unknown paths are 10% used.
type spaceByPath struct {
	mu      sync.Mutex
	percent map[string]float64
}

func (s *spaceByPath) set(path string, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.percent == nil {
		s.percent = map[string]float64{}
	}
	s.percent[path] = percent
}

func (s *spaceByPath) Usage(path string) (health.Usage, error) {
	s.mu.Lock()
	percent, ok := s.percent[path]
	s.mu.Unlock()
	if !ok {
		percent = 10
	}
	return fixedSpace(percent).Usage(path)
}

// scriptedExecutor hands each argv to fn.
type scriptedExecutor func(argv []string) error

func (f scriptedExecutor) Run(_ context.Context, argv []string, _ bool, _, _ io.Writer) error {
	return f(argv)
}

// writeOutput is an executor step that creates the file named by the last
// argument, the way a real tool writes its result.
func writeOutput(argv []string) error {
	out := argv[len(argv)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("mrc"), 0o644)
}

var motionTool = config.Tool{
	Executable: "motioncor",
	Args:       "{input} {output_dir}/{root}.mrc",
	Outputs:    []string{"{root}.mrc"},
}

func motionStages() []config.Stage {
	return []config.Stage{
		{Name: "Motion", Kind: config.KindTransform, Workers: 1, Enable: "Motion", Tool: "motion"},
	}
}

func newTestConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	opts = append([]testsupport.ConfigOption{
		testsupport.WithSetting("Motion", "True"),
		testsupport.WithTool("motion", motionTool),
		testsupport.WithStubbedBinaries("motioncor"),
	}, opts...)
	return testsupport.NewConfig(t, opts...)
}

type harness struct {
	cfg      *config.Config
	manager  *Manager
	sink     *recordingSink
	notifier *stubNotifier
	clock    *fakeClock
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{cfg: cfg, sink: &recordingSink{}, notifier: &stubNotifier{}, clock: newFakeClock()}
	base := []Option{
		WithSink(h.sink),
		WithNotifier(h.notifier),
		WithClock(h.clock),
		WithSpaceChecker(fixedSpace(10)),
		WithProbe(health.ProbeFunc(func(string) bool { return true })),
		WithPreflight(func(*config.Config) []preflight.Result { return nil }),
	}
	h.manager = NewManager(cfg, nil, append(base, opts...)...)
	t.Cleanup(h.manager.Stop)
	return h
}

func seedQueue(t *testing.T, cfg *config.Config, stageName string, items ...string) {
	t.Helper()
	q, err := queue.Open(cfg.Paths.QueueDir, stageName)
	if err != nil {
		t.Fatalf("open queue %s: %v", stageName, err)
	}
	for _, item := range items {
		if _, err := q.Enqueue(item); err != nil {
			t.Fatalf("enqueue %s: %v", item, err)
		}
	}
}

func snapshot(t *testing.T, cfg *config.Config, stageName string) queue.Snapshot {
	t.Helper()
	snap, err := queue.ReadSnapshot(cfg.Paths.QueueDir, stageName)
	if err != nil {
		t.Fatalf("snapshot %s: %v", stageName, err)
	}
	return snap
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Fields(string(content))
}
