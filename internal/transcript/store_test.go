package transcript_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solverpad/tutor-web-ui/internal/models"
	"github.com/solverpad/tutor-web-ui/internal/services"
	"github.com/solverpad/tutor-web-ui/internal/transcript"
)

// scriptedLLM yields its chunks in order, then optionally an error.
type scriptedLLM struct {
	chunks []string
	err    error
}

func (l scriptedLLM) Chat(_ context.Context, _ []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range l.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if l.err != nil {
			yield("", l.err)
		}
	}
}

// blockingLLM never yields and only returns once its context is cancelled. It keeps a placeholder
// in the streaming state so tests can drive the store's operations directly.
type blockingLLM struct {
	started chan struct{}
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{started: make(chan struct{})}
}

func (l *blockingLLM) Chat(ctx context.Context, _ []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		close(l.started)
		<-ctx.Done()
	}
}

// recordingNotifier captures notifications and signals completions.
type recordingNotifier struct {
	mu        sync.Mutex
	appended  []models.Message
	updated   []models.Message
	completed []models.Message

	done chan models.Message
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan models.Message, 16)}
}

func (n *recordingNotifier) MessageAppended(msg models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.appended = append(n.appended, msg)
}

func (n *recordingNotifier) MessageUpdated(msg models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, msg)
}

func (n *recordingNotifier) MessageCompleted(msg models.Message) {
	n.mu.Lock()
	n.completed = append(n.completed, msg)
	n.mu.Unlock()
	n.done <- msg
}

func (n *recordingNotifier) waitCompleted(t *testing.T) models.Message {
	t.Helper()
	select {
	case msg := <-n.done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream completion")
		return models.Message{}
	}
}

// recordingEmitter captures analytics events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []services.AnalyticsEvent
}

func (e *recordingEmitter) Emit(event services.AnalyticsEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) byType(eventType string) []services.AnalyticsEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []services.AnalyticsEvent
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitRejectsEmptySubmission(t *testing.T) {
	store := transcript.NewStore(scriptedLLM{}, nil, nil, discardLogger())

	_, _, err := store.SubmitUserMessage(context.Background(), "   ", "")

	require.ErrorIs(t, err, transcript.ErrEmptySubmission)
	assert.Empty(t, store.Messages())
}

func TestSubmitAcceptsImageOnly(t *testing.T) {
	notifier := newRecordingNotifier()
	store := transcript.NewStore(scriptedLLM{chunks: []string{"ok"}}, notifier, nil, discardLogger())

	userMsg, placeholder, err := store.SubmitUserMessage(
		context.Background(), "", "data:image/png;base64,aGk=")

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,aGk=", userMsg.AttachedImage)
	assert.True(t, placeholder.IsStreaming)

	notifier.waitCompleted(t)
}

func TestStreamedChunksConcatenateInOrder(t *testing.T) {
	chunkings := [][]string{
		{"Hello"},
		{"He", "llo"},
		{"H", "e", "l", "l", "o"},
	}

	for _, chunks := range chunkings {
		notifier := newRecordingNotifier()
		store := transcript.NewStore(scriptedLLM{chunks: chunks}, notifier, nil, discardLogger())

		_, placeholder, err := store.SubmitUserMessage(context.Background(), "hi", "")
		require.NoError(t, err)

		final := notifier.waitCompleted(t)
		assert.Equal(t, placeholder.ID, final.ID)
		assert.Equal(t, "Hello", final.Text)
		assert.False(t, final.IsStreaming)
	}
}

func TestAppendTokenIgnoresUnknownMessage(t *testing.T) {
	llm := newBlockingLLM()
	store := transcript.NewStore(llm, nil, nil, discardLogger())

	_, placeholder, err := store.SubmitUserMessage(context.Background(), "hi", "")
	require.NoError(t, err)
	<-llm.started

	_, ok := store.AppendToken("no-such-id", "junk")
	assert.False(t, ok)

	msg, ok := store.AppendToken(placeholder.ID, "real")
	assert.True(t, ok)
	assert.Equal(t, "real", msg.Text)
}

func TestSingleStreamingMessageInvariant(t *testing.T) {
	llm := newBlockingLLM()
	store := transcript.NewStore(llm, nil, nil, discardLogger())

	_, _, err := store.SubmitUserMessage(context.Background(), "hi", "")
	require.NoError(t, err)
	<-llm.started

	streaming := 0
	for _, msg := range store.Messages() {
		if msg.IsStreaming {
			streaming++
		}
	}
	assert.Equal(t, 1, streaming)
}

func TestCompleteStreamIsIdempotent(t *testing.T) {
	llm := newBlockingLLM()
	notifier := newRecordingNotifier()
	store := transcript.NewStore(llm, notifier, nil, discardLogger())

	_, placeholder, err := store.SubmitUserMessage(context.Background(), "hi", "")
	require.NoError(t, err)
	<-llm.started

	store.CompleteStream(placeholder.ID)
	notifier.waitCompleted(t)

	store.CompleteStream(placeholder.ID)

	notifier.mu.Lock()
	completions := len(notifier.completed)
	notifier.mu.Unlock()
	assert.Equal(t, 1, completions, "second CompleteStream must have no further effect")

	for _, msg := range store.Messages() {
		assert.False(t, msg.IsStreaming)
	}
}

func TestBuildHistoryPayloadExcludesStreamingMessage(t *testing.T) {
	llm := newBlockingLLM()
	store := transcript.NewStore(llm, nil, nil, discardLogger())

	userMsg, placeholder, err := store.SubmitUserMessage(context.Background(), "question", "")
	require.NoError(t, err)
	<-llm.started

	history := store.BuildHistoryPayload()

	require.Len(t, history, 1)
	assert.Equal(t, userMsg.ID, history[0].ID)
	for _, msg := range history {
		assert.NotEqual(t, placeholder.ID, msg.ID)
	}
}

func TestFailStreamAppendsApology(t *testing.T) {
	streamErr := errors.New("connection reset")
	notifier := newRecordingNotifier()
	emitter := &recordingEmitter{}
	store := transcript.NewStore(
		scriptedLLM{chunks: []string{"partial "}, err: streamErr},
		notifier, emitter, discardLogger())

	userMsg, placeholder, err := store.SubmitUserMessage(context.Background(), "hi", "")
	require.NoError(t, err)

	final := notifier.waitCompleted(t)
	assert.Equal(t, placeholder.ID, final.ID)
	assert.False(t, final.IsStreaming)

	msgs := store.Messages()
	// user + placeholder + apology: exactly one extra message versus the pre-failure state.
	require.Len(t, msgs, 3)
	assert.Equal(t, userMsg.Text, msgs[0].Text)
	assert.Equal(t, placeholder.ID, msgs[1].ID)
	assert.Equal(t, models.RoleAssistant, msgs[2].Role)
	assert.Equal(t, transcript.Apology, msgs[2].Text)
	assert.False(t, msgs[2].IsStreaming)

	// Raw error goes to analytics, never into the transcript.
	for _, msg := range msgs {
		assert.NotContains(t, msg.Text, "connection reset")
	}
	events := emitter.byType(services.EventStreamError)
	require.Len(t, events, 1)
	assert.Equal(t, "connection reset", events[0].Fields["errorMessage"])
}

func TestSubmitCancelsAndReplacesActiveStream(t *testing.T) {
	llm := newBlockingLLM()
	notifier := newRecordingNotifier()
	store := transcript.NewStore(llm, notifier, nil, discardLogger())

	_, first, err := store.SubmitUserMessage(context.Background(), "first", "")
	require.NoError(t, err)
	<-llm.started

	llm.started = make(chan struct{})
	_, second, err := store.SubmitUserMessage(context.Background(), "second", "")
	require.NoError(t, err)
	<-llm.started

	streaming := 0
	for _, msg := range store.Messages() {
		if msg.IsStreaming {
			streaming++
			assert.Equal(t, second.ID, msg.ID)
		}
	}
	assert.Equal(t, 1, streaming)

	// Tokens for the replaced stream are silently dropped.
	_, ok := store.AppendToken(first.ID, "late chunk")
	assert.False(t, ok)
}

func TestSubmitEmitsAnalytics(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := newRecordingNotifier()
	store := transcript.NewStore(scriptedLLM{chunks: []string{"ok"}}, notifier, emitter, discardLogger())

	_, _, err := store.SubmitUserMessage(context.Background(), "hello", "")
	require.NoError(t, err)
	notifier.waitCompleted(t)

	events := emitter.byType(services.EventMessageSubmitted)
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0].Fields["hasImage"])
	assert.Equal(t, len("hello"), events[0].Fields["contentLength"])
}

func TestMessageOrderIsInsertionOrder(t *testing.T) {
	notifier := newRecordingNotifier()
	store := transcript.NewStore(scriptedLLM{chunks: []string{"a"}}, notifier, nil, discardLogger())

	for _, text := range []string{"one", "two", "three"} {
		_, _, err := store.SubmitUserMessage(context.Background(), text, "")
		require.NoError(t, err)
		notifier.waitCompleted(t)
	}

	msgs := store.Messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[2].Text)
	assert.Equal(t, "three", msgs[4].Text)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].ID < msgs[i].ID || len(msgs[i-1].ID) < len(msgs[i].ID),
			"IDs are issued in monotonic creation order")
	}
}
