package queue

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"transphire/internal/logging"
)

const errorTimestampLayout = "2006-01-02 15:04:05"

// ErrorLog appends failure entries to Queue_<stage>_error. Each entry is a
// timestamp line, the stage, the root, the redacted error text and a blank
// separator line.
type ErrorLog struct {
	path     string
	stage    string
	redactor *logging.Redactor
	now      func() time.Time

	mu sync.Mutex
}

// NewErrorLog constructs the error log for stage under dir.
func NewErrorLog(dir, stage string, redactor *logging.Redactor) *ErrorLog {
	return &ErrorLog{
		path:     ErrorPath(dir, stage),
		stage:    stage,
		redactor: redactor,
		now:      time.Now,
	}
}

// Path returns the error file location.
func (l *ErrorLog) Path() string { return l.path }

// Append writes one entry for root. The returned text is the redacted error
// string, suitable for surfacing to the operator.
func (l *ErrorLog) Append(root string, err error) (string, error) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	text = strings.TrimRight(l.redactor.Redact(text), "\n")
	// Blank lines separate entries, so the text itself must not contain any.
	for strings.Contains(text, "\n\n") {
		text = strings.ReplaceAll(text, "\n\n", "\n")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if werr := appendLines(l.path,
		l.now().Format(errorTimestampLayout),
		l.stage,
		root,
		text,
		"",
	); werr != nil {
		return text, fmt.Errorf("queue %s: append error log: %w", l.stage, werr)
	}
	return text, nil
}
