package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"transphire/internal/workflow"
)

// terminalSink prints the four pipeline channels as status lines. The
// dispatcher calls it from a single goroutine.
type terminalSink struct {
	out      io.Writer
	colorize bool
	title    cases.Caser
}

func newTerminalSink(out io.Writer, colorize bool) *terminalSink {
	return &terminalSink{out: out, colorize: colorize, title: cases.Title(language.English)}
}

func (s *terminalSink) Status(st workflow.StageStatus) {
	label := st.Stage
	if st.Worker > 0 {
		label = fmt.Sprintf("%s#%d", st.Stage, st.Worker)
	}
	message := string(st.Status)
	if st.Detail != "" {
		message += " · " + st.Detail
	}
	message += fmt.Sprintf(" (%d pending, %d done)", st.Pending, st.Done)
	fmt.Fprintln(s.out, renderStatusLine(label, kindForColor(st.Color), message, s.colorize))
}

func (s *terminalSink) Notification(text string) {
	fmt.Fprintln(s.out, renderStatusLine("Notification", statusWarn, text, s.colorize))
}

func (s *terminalSink) Error(text string) {
	// Error entries span several lines; only the first reaches the terminal.
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	fmt.Fprintln(s.out, renderStatusLine("Error", statusError, first, s.colorize))
}

func (s *terminalSink) Log(text string) {
	fmt.Fprintln(s.out, renderStatusLine("Log", statusInfo, text, s.colorize))
}

// label renders a config keyword such as "transform" for display.
func (s *terminalSink) label(value string) string {
	return s.title.String(value)
}
