package models

import "time"

// Message represents an individual communication entry within the transcript. It contains the core
// components of a chat message including its unique identifier, the participant's role, the accumulated
// text content, an optional image attachment, and the precise time when the message was created.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time

	// AttachedImage holds a displayable image payload as a data URI. It is only ever set on user
	// messages, and is immutable after the message is created.
	AttachedImage string

	// IsStreaming is true while the message is the single in-flight assistant reply whose Text is
	// still being filled in by the completion stream. Once cleared it never becomes true again.
	IsStreaming bool
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message. A message with this role may carry an image attachment.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message produced by the completion service.
	RoleAssistant Role = "assistant"
	// RoleSystem is never stored in the transcript; it only appears when provider clients prepend
	// the configured system prompt to an outbound request.
	RoleSystem Role = "system"
)

// Streaming display states used by the presentation layer.
const (
	StreamingStateLoading   = "loading"
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)
