package stage

import "context"

// FailureKind classifies a retryable failure.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureLostConnection
	FailureDiskFull
	FailureBlocking
)

func (k FailureKind) String() string {
	switch k {
	case FailureLostConnection:
		return "lost_connection"
	case FailureDiskFull:
		return "disk_full"
	case FailureBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// Outcome is the result of running an action on one item. It is one of
// Success, Skip, Retry or Fatal.
type Outcome interface {
	outcome()
}

// Success carries the paths to route downstream.
type Success struct {
	Outputs []string
}

// Skip marks the item done without routing.
type Skip struct {
	Reason string
}

// Retry requeues the item. Dependency names the storage location to pause on
// for lost-connection and disk-full failures. Benign blocking failures
// requeue without raising the unknown-error flag.
type Retry struct {
	Kind       FailureKind
	Dependency Dependency
	Benign     bool
	Err        error
}

// Fatal requeues the item and halts the worker.
type Fatal struct {
	Reason string
	Err    error
}

func (Success) outcome() {}
func (Skip) outcome()    {}
func (Retry) outcome()   {}
func (Fatal) outcome()   {}

// Action runs one stage step for one item.
type Action interface {
	Run(ctx context.Context, item string) Outcome
}

// StepFunc is an action body that reports outputs or an error.
type StepFunc func(ctx context.Context, item string) ([]string, error)

// Bind turns a StepFunc into an Action whose errors go through classifier.
func Bind(step StepFunc, classifier Classifier) Action {
	return boundAction{step: step, classifier: classifier}
}

type boundAction struct {
	step       StepFunc
	classifier Classifier
}

func (a boundAction) Run(ctx context.Context, item string) Outcome {
	outputs, err := a.step(ctx, item)
	if err != nil {
		return a.classifier.Classify(err)
	}
	return Success{Outputs: outputs}
}
