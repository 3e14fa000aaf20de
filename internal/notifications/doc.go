// Package notifications pushes run events to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Runs that found nothing new are suppressed.
package notifications
