// Package logs reads the project log files written by a running pipeline.
//
// Last returns the newest lines of log.txt or error.txt with bounded memory.
// Follow streams lines appended after an offset, waking on fsnotify events
// instead of polling, and restarts from the top when the file is truncated.
package logs
