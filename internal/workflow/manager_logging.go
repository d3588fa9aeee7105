package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const projectTimeLayout = "2006-01-02 15:04:05"

// projectLog appends operator-facing lines to a text file in the project
// directory (log.txt or error.txt). Only the dispatcher writes to it.
type projectLog struct {
	path string
}

func newProjectLog(projectDir, name string) projectLog {
	return projectLog{path: filepath.Join(projectDir, name)}
}

func (l projectLog) append(at time.Time, stage, text string) error {
	if l.path == "" {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s\t%s\t%s\n", at.Format(projectTimeLayout), stage, strings.TrimRight(text, "\n"))
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// eventLabel names the producer of an event for log lines.
func eventLabel(ev Event) string {
	switch {
	case ev.Stage == "":
		return "pipeline"
	case ev.Worker > 0:
		return fmt.Sprintf("%s#%d", ev.Stage, ev.Worker)
	default:
		return ev.Stage
	}
}
