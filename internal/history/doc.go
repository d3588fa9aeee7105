// Package history records per-item stage outcomes in a SQLite ledger.
//
// The ledger is advisory: queue mirrors remain the source of truth for what
// is pending. History answers operator questions ("how many CTF failures
// today?") for `transphire status --history` and survives queue resets.
// Schema changes bump schemaVersion; operators delete history.db to adopt a
// new schema.
package history
