// Package logging assembles the slog loggers used by chatbatch.
//
// It owns the console and JSON handlers, level parsing and output plumbing,
// and the context helpers that tag log lines with request IDs, stage names
// and per-attempt correlation IDs. A configured log file always receives
// JSON so runs can be audited after the fact, even when the terminal shows
// the console format.
//
// WarnWithContext and ErrorWithContext enforce the event_type and error_hint
// fields on every warning and error.
package logging
