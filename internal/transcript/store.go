package transcript

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solverpad/tutor-web-ui/internal/models"
	"github.com/solverpad/tutor-web-ui/internal/services"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a
// context and the conversation history, returning an iterator that yields response text chunks and
// potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Notifier receives transcript change notifications so the presentation layer can re-render. All
// methods are called outside the store's lock with message snapshots; implementations must not call
// back into the store's mutating operations from them.
type Notifier interface {
	// MessageAppended fires once for each message added to the transcript.
	MessageAppended(msg models.Message)
	// MessageUpdated fires each time a streaming message's text grows.
	MessageUpdated(msg models.Message)
	// MessageCompleted fires exactly once when a message leaves the streaming state.
	MessageCompleted(msg models.Message)
}

// Emitter records best-effort analytics events. It must never block or fail the core flow.
type Emitter interface {
	Emit(event services.AnalyticsEvent)
}

// ErrEmptySubmission is returned when a submission carries neither text nor an image.
var ErrEmptySubmission = errors.New("submission requires text or an image")

// Apology is the fixed assistant message appended whenever the completion stream fails. Partial
// streamed output is never presented as a final answer.
const Apology = "I'm sorry, I ran into a problem answering that. Please try again."

// Store owns the ordered, append-only list of chat messages for one session and mediates the
// streaming request/response lifecycle. All mutations are serialized through its lock, which keeps
// the single-streaming-message invariant intact even with concurrent callers.
type Store struct {
	mu       sync.Mutex
	messages []models.Message
	seq      uint64

	// streamingID identifies the single message with IsStreaming set, if any.
	streamingID  string
	cancelStream context.CancelFunc

	llm       LLM
	notifier  Notifier
	analytics Emitter

	logger *slog.Logger
}

// NewStore creates a transcript store backed by the given completion client. The notifier and
// analytics emitter may be nil, in which case their notifications are dropped.
func NewStore(llm LLM, notifier Notifier, analytics Emitter, logger *slog.Logger) *Store {
	return &Store{
		llm:       llm,
		notifier:  notifier,
		analytics: analytics,
		logger:    logger.With(slog.String("module", "transcript")),
	}
}

// SubmitUserMessage appends a user message and an empty streaming assistant placeholder, then starts
// consuming the completion stream for the placeholder. A submission with neither text nor image is
// rejected with ErrEmptySubmission and leaves the transcript untouched.
//
// If another message is still streaming, its stream is cancelled and replaced; the transcript only
// ever carries one active streaming placeholder at a time.
func (s *Store) SubmitUserMessage(ctx context.Context, text, image string) (models.Message, models.Message, error) {
	if strings.TrimSpace(text) == "" && image == "" {
		return models.Message{}, models.Message{}, ErrEmptySubmission
	}

	s.mu.Lock()

	// Cancel-and-replace: clear the previous placeholder's streaming state synchronously so the
	// single-streaming invariant holds before the new placeholder is appended.
	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}
	var replaced *models.Message
	if s.streamingID != "" {
		if idx := s.indexLocked(s.streamingID); idx >= 0 {
			s.messages[idx].IsStreaming = false
			m := s.messages[idx]
			replaced = &m
		}
		s.streamingID = ""
	}

	userMsg := models.Message{
		ID:            s.nextIDLocked(),
		Role:          models.RoleUser,
		Text:          text,
		AttachedImage: image,
		Timestamp:     time.Now(),
	}
	s.messages = append(s.messages, userMsg)

	placeholder := models.Message{
		ID:          s.nextIDLocked(),
		Role:        models.RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
	s.messages = append(s.messages, placeholder)
	s.streamingID = placeholder.ID

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelStream = cancel

	history := s.historyLocked()
	s.mu.Unlock()

	s.emit(services.AnalyticsEvent{
		Type:      services.EventMessageSubmitted,
		Timestamp: time.Now(),
		Fields: map[string]any{
			"hasImage":      image != "",
			"contentLength": len(text),
		},
	})

	if s.notifier != nil {
		if replaced != nil {
			s.notifier.MessageCompleted(*replaced)
		}
		s.notifier.MessageAppended(userMsg)
		s.notifier.MessageAppended(placeholder)
	}

	go s.consumeStream(streamCtx, placeholder.ID, history)

	return userMsg, placeholder, nil
}

// consumeStream drives the completion iterator for one placeholder. The streaming flag is always
// cleared on the way out, whether the stream completes, fails, or is cancelled.
func (s *Store) consumeStream(ctx context.Context, id string, history []models.Message) {
	defer s.CompleteStream(id)

	for chunk, err := range s.llm.Chat(ctx, history) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.FailStream(id, err)
			return
		}
		if msg, ok := s.AppendToken(id, chunk); ok && s.notifier != nil {
			s.notifier.MessageUpdated(msg)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// AppendToken appends deltaText to the identified message's text. It is a silent no-op when the
// identifier does not name the currently streaming message, so late chunks from a replaced stream
// can never corrupt the transcript.
func (s *Store) AppendToken(id, deltaText string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.streamingID {
		return models.Message{}, false
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		return models.Message{}, false
	}
	s.messages[idx].Text += deltaText
	return s.messages[idx], true
}

// CompleteStream clears the identified message's streaming state. The transition is terminal and
// the call is idempotent: completing an already-completed message has no further effect.
func (s *Store) CompleteStream(id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 || !s.messages[idx].IsStreaming {
		s.mu.Unlock()
		return
	}
	s.messages[idx].IsStreaming = false
	if s.streamingID == id {
		s.streamingID = ""
		if s.cancelStream != nil {
			s.cancelStream()
			s.cancelStream = nil
		}
	}
	msg := s.messages[idx]
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.MessageCompleted(msg)
	}
}

// FailStream clears the placeholder's streaming state and appends a new fixed apology message. The
// placeholder's partial content is left in place but never extended again; the apology is a separate
// message so truncated output is not presented as the final answer. The raw error is logged and
// reported to analytics, never shown to the user.
func (s *Store) FailStream(id string, streamErr error) {
	s.logger.Error("Completion stream failed", slog.String("err", streamErr.Error()))

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 || !s.messages[idx].IsStreaming {
		s.mu.Unlock()
		return
	}
	s.messages[idx].IsStreaming = false
	if s.streamingID == id {
		s.streamingID = ""
		if s.cancelStream != nil {
			s.cancelStream()
			s.cancelStream = nil
		}
	}
	placeholder := s.messages[idx]

	apology := models.Message{
		ID:        s.nextIDLocked(),
		Role:      models.RoleAssistant,
		Text:      Apology,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, apology)
	s.mu.Unlock()

	s.emit(services.AnalyticsEvent{
		Type:      services.EventStreamError,
		Timestamp: time.Now(),
		Fields: map[string]any{
			"errorMessage": streamErr.Error(),
		},
	})

	if s.notifier != nil {
		s.notifier.MessageCompleted(placeholder)
		s.notifier.MessageAppended(apology)
	}
}

// Messages returns a snapshot of the transcript in insertion order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// BuildHistoryPayload projects the current transcript into the history sent to the completion
// service: every message except the one currently streaming, in insertion order. Provider clients
// turn image-bearing user messages into their own multi-part wire shapes.
func (s *Store) BuildHistoryPayload() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Store) historyLocked() []models.Message {
	out := make([]models.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.IsStreaming {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// nextIDLocked issues sequence-prefixed identifiers so creation order is recoverable from the ID
// itself, the same scheme the analytics store uses for its keys.
func (s *Store) nextIDLocked() string {
	s.seq++
	return fmt.Sprintf("%d-%s", s.seq, uuid.New())
}

func (s *Store) emit(event services.AnalyticsEvent) {
	if s.analytics == nil {
		return
	}
	s.analytics.Emit(event)
}
