// Package toolexec turns [tools.<name>] templates into commands, runs them
// with per-item stdout/stderr capture, and checks the expected outputs.
//
// The pipeline treats a tool as opaque: a Builder returns the command line,
// the files it must produce and whether it needs a GPU. Runner only executes
// and validates. GPUPool hands out GPU ids so two workers never share one
// unless the tool allows split mode.
package toolexec
