package workflow

import (
	"time"

	"transphire/internal/notifications"
)

// EventKind selects the message channel an Event belongs to.
type EventKind int

const (
	EventStatus EventKind = iota
	EventNotification
	EventError
	EventLog
	// EventGlobalStop asks the Manager to stop the whole pipeline.
	EventGlobalStop
	// EventOutcome reports a finished dispatch for history and metrics.
	EventOutcome
)

// Status is the display state of a worker.
type Status string

const (
	StatusStarting       Status = "Starting"
	StatusRunning        Status = "Running"
	StatusWaiting        Status = "Waiting"
	StatusSkipped        Status = "Skipped"
	StatusLater          Status = "Later"
	StatusFinished       Status = "Finished"
	StatusLostConnection Status = "Lost connection"
	StatusQuota          Status = "Quota exceeded"
	StatusDiskFull       Status = "Disk full"
	StatusUnknownError   Status = "Unknown error"
	StatusHalted         Status = "Halted"
	StatusStopping       Status = "Stopping"
	StatusStopped        Status = "Stopped"
	StatusMonitorActive  Status = "Running (monitor)"
	StatusMonitorIdle    Status = "Not running (monitor)"
)

// Color is the status panel colour for a Status.
type Color string

const (
	ColorGreen  Color = "green"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
	ColorBlack  Color = "black"
)

// Color maps the status onto its panel colour.
func (s Status) Color() Color {
	switch s {
	case StatusRunning, StatusMonitorActive:
		return ColorGreen
	case StatusWaiting, StatusLater, StatusStarting:
		return ColorOrange
	case StatusLostConnection, StatusQuota, StatusDiskFull, StatusUnknownError, StatusHalted:
		return ColorRed
	default:
		return ColorBlack
	}
}

// Event is one message from a worker to the dispatcher.
type Event struct {
	Kind   EventKind
	Stage  string
	Worker int
	Time   time.Time

	Status Status
	Detail string
	Item   string

	Notice  notifications.Event
	Payload notifications.Payload

	// Outcome fields.
	Outcome  string
	Failure  string
	Duration time.Duration
}

// StageStatus is one row of the status panel.
type StageStatus struct {
	Stage   string
	Worker  int
	Status  Status
	Color   Color
	Detail  string
	Pending int
	Done    int
	Running int
	Updated time.Time
}

// Sink receives the four operator-facing channels. Implementations must be
// safe to call from the dispatcher goroutine; calls are never concurrent.
type Sink interface {
	Status(StageStatus)
	Notification(text string)
	Error(text string)
	Log(text string)
}

type nopSink struct{}

func (nopSink) Status(StageStatus)  {}
func (nopSink) Notification(string) {}
func (nopSink) Error(string)        {}
func (nopSink) Log(string)          {}
