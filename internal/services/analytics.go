package services

import "time"

// AnalyticsEvent is one best-effort telemetry record. Events are fire-and-forget: sinks log and drop
// on failure and must never block or fail the chat flow.
type AnalyticsEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Event types emitted by the application.
const (
	EventSessionStarted   = "session_started"
	EventMessageSubmitted = "message_submitted"
	EventImageAttached    = "image_attached"
	EventStreamError      = "stream_error"
)

// NopAnalytics drops every event. It is used when analytics capture is disabled in the config.
type NopAnalytics struct{}

// Emit discards the event.
func (NopAnalytics) Emit(AnalyticsEvent) {}
