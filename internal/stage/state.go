package stage

import (
	"sort"
	"sync"
	"time"
)

// Flags is a point-in-time copy of a stage's health flags.
type Flags struct {
	LostInputMeta   bool
	LostInputFrames bool
	LostProject     bool
	LostScratch     bool
	LostWork        bool
	LostBackup      bool
	LostHDD         bool
	FullProject     bool
	FullWork        bool
	FullBackup      bool
	FullHDD         bool
	UnknownError    bool
	UnknownSince    time.Time
}

// Blocked reports whether any flag pauses dispatch.
func (f Flags) Blocked() bool {
	return f.LostInputMeta || f.LostInputFrames || f.LostProject || f.LostScratch ||
		f.LostWork || f.LostBackup || f.LostHDD ||
		f.FullProject || f.FullWork || f.FullBackup || f.FullHDD || f.UnknownError
}

// Counters is a point-in-time copy of a stage's counters.
type Counters struct {
	FileNumber int
	Running    int
	MaxRunning int
}

// State is the mutable per-stage state shared by every worker of a stage.
// Flags and counters sit behind separate mutexes so a worker bumping the
// file counter never waits on a health re-check.
type State struct {
	Name string

	mu           sync.Mutex
	lost         map[Dependency]bool
	full         map[Dependency]bool
	unknownError bool
	unknownSince time.Time
	done         bool

	counterMu  sync.Mutex
	fileNumber int
	running    int
	maxRunning int
}

// NewState constructs an empty state for the named stage.
func NewState(name string, maxRunning int) *State {
	return &State{
		Name:       name,
		lost:       make(map[Dependency]bool),
		full:       make(map[Dependency]bool),
		maxRunning: maxRunning,
	}
}

// SetLost toggles the lost-connection flag for dep and reports whether the
// value changed. Only the caller that flips the flag should notify.
func (s *State) SetLost(dep Dependency, lost bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost[dep] == lost {
		return false
	}
	if lost {
		s.lost[dep] = true
	} else {
		delete(s.lost, dep)
	}
	return true
}

// Lost returns the dependencies currently flagged lost, in enum order.
func (s *State) Lost() []Dependency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.lost)
}

// SetFull toggles the disk-full flag for dep and reports whether it changed.
func (s *State) SetFull(dep Dependency, full bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full[dep] == full {
		return false
	}
	if full {
		s.full[dep] = true
	} else {
		delete(s.full, dep)
	}
	return true
}

// Full returns the dependencies currently flagged full, in enum order.
func (s *State) Full() []Dependency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.full)
}

// SetUnknownError raises the unknown-error flag. The first raise wins the
// timestamp; it reports whether the flag was newly raised.
func (s *State) SetUnknownError(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unknownError {
		return false
	}
	s.unknownError = true
	s.unknownSince = now
	return true
}

// ClearUnknownError lowers the unknown-error flag.
func (s *State) ClearUnknownError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknownError = false
	s.unknownSince = time.Time{}
}

// UnknownError reports the flag and when it was raised.
func (s *State) UnknownError() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unknownError, s.unknownSince
}

// MarkDone records that a one-shot stage finished.
func (s *State) MarkDone() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

// Done reports whether a one-shot stage finished.
func (s *State) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Flags returns a snapshot of every health flag.
func (s *State) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Flags{
		LostInputMeta:   s.lost[DepInputMeta],
		LostInputFrames: s.lost[DepInputFrames],
		LostProject:     s.lost[DepProject],
		LostScratch:     s.lost[DepScratch],
		LostWork:        s.lost[DepWork],
		LostBackup:      s.lost[DepBackup],
		LostHDD:         s.lost[DepHDD],
		FullProject:     s.full[DepProject],
		FullWork:        s.full[DepWork],
		FullBackup:      s.full[DepBackup],
		FullHDD:         s.full[DepHDD],
		UnknownError:    s.unknownError,
		UnknownSince:    s.unknownSince,
	}
}

// SeedFileNumber sets the completed counter, typically from the done mirror.
func (s *State) SeedFileNumber(n int) {
	s.counterMu.Lock()
	s.fileNumber = n
	s.counterMu.Unlock()
}

// IncrementFileNumber bumps the completed counter and returns the new value.
func (s *State) IncrementFileNumber() int {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.fileNumber++
	return s.fileNumber
}

// BeginRun marks one worker as running and returns the running count.
func (s *State) BeginRun() int {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.running++
	return s.running
}

// EndRun reverses BeginRun.
func (s *State) EndRun() int {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	if s.running > 0 {
		s.running--
	}
	return s.running
}

// Counters returns a snapshot of the counters.
func (s *State) Counters() Counters {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	return Counters{FileNumber: s.fileNumber, Running: s.running, MaxRunning: s.maxRunning}
}

func sortedKeys(m map[Dependency]bool) []Dependency {
	out := make([]Dependency, 0, len(m))
	for dep, set := range m {
		if set {
			out = append(out, dep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
