// Package logging assembles structured slog loggers and formatting helpers used
// across transphire.
//
// It owns the console and JSON handlers, the fan-out that mirrors console
// output into <log_dir>/transphire.log, and the Redactor that masks
// credentials in every record. Context helpers tag log lines with the stage,
// work item and dispatch correlation id so worker output can be filtered per
// micrograph. NewNop serves tests and wiring code that cannot fail.
package logging
