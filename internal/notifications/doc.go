// Package notifications delivers pipeline events to the operator.
//
// ntfy and Telegram backends are built from config.toml; when both are
// configured every event goes to both, and when neither is configured the
// service is a no-op. Events are enumerated so stage workers emit consistent
// messages without knowing the transport. Limiter keeps repeated failures of
// one stage from paging the operator more than once per interval.
package notifications
