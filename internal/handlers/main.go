package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/tmaxmax/go-sse"

	tutorwebui "github.com/solverpad/tutor-web-ui"
	"github.com/solverpad/tutor-web-ui/internal/glossary"
	"github.com/solverpad/tutor-web-ui/internal/models"
	"github.com/solverpad/tutor-web-ui/internal/renderer"
	"github.com/solverpad/tutor-web-ui/internal/transcript"
)

// Config carries the per-deployment presentation knobs. Page variants differ only in these values,
// never in code.
type Config struct {
	Renderer         renderer.Config
	ClickToHighlight bool
}

// Main handles the core functionality of the chat application, managing server-sent events, HTML
// templates, and interactions between the transcript store and its collaborators. It also acts as
// the transcript's Notifier, turning store updates into SSE publishes.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	store     *transcript.Store
	renderer  renderer.HTML
	glossary  glossary.Glossary
	analytics transcript.Emitter
	cfg       Config

	logger *slog.Logger
}

const (
	transcriptSSETopic = "transcript"

	errLoggerKey = "err"
)

// SSE event types for real-time updates.
var (
	messagesSSEType  = sse.Type("message")
	streamEndSSEType = sse.Type("streamEnd")
)

// NewMain creates a new Main instance wired to the provided completion client, analytics emitter,
// and glossary. It parses the embedded HTML templates and configures the SSE server to subscribe
// each client to the transcript topic plus, when requested, one message-specific topic.
func NewMain(
	llm transcript.LLM,
	analytics transcript.Emitter,
	gloss glossary.Glossary,
	cfg Config,
	logger *slog.Logger,
) (*Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		tutorwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, err
	}

	m := &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic, transcriptSSETopic}

				// We create a message-specific topic if the client requests updates for a particular message
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		renderer:  renderer.NewHTML(cfg.Renderer, renderer.KatexMarkup{}, logger),
		glossary:  gloss,
		analytics: analytics,
		cfg:       cfg,
		logger:    logger.With(slog.String("module", "handlers")),
	}
	m.store = transcript.NewStore(llm, m, analytics, logger)

	return m, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// MessageAppended implements transcript.Notifier. Messages created by a submission are rendered in
// the POST response itself, so only out-of-band appends (the apology message on stream failure) are
// pushed over SSE.
func (m *Main) MessageAppended(msg models.Message) {
	if msg.Role != models.RoleAssistant || msg.IsStreaming {
		return
	}

	html, err := m.renderMessage(msg, models.StreamingStateEnded)
	if err != nil {
		m.logger.Error("Failed to render appended message", slog.String(errLoggerKey, err.Error()))
		return
	}

	e := &sse.Message{Type: messagesSSEType}
	e.AppendData(html)
	if err := m.sseSrv.Publish(e, transcriptSSETopic); err != nil {
		m.logger.Error("Failed to publish appended message", slog.String(errLoggerKey, err.Error()))
	}
}

// MessageUpdated implements transcript.Notifier. Each token append re-renders the cumulative text
// and pushes it to the message's own topic.
func (m *Main) MessageUpdated(msg models.Message) {
	e := &sse.Message{Type: messagesSSEType}
	e.AppendData(m.renderer.Render(msg.Text))
	if err := m.sseSrv.Publish(e, messageIDTopic(msg.ID)); err != nil {
		m.logger.Error("Failed to publish message update",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}

// MessageCompleted implements transcript.Notifier. It pushes the final rendered content so the page
// can drop the message's loading state.
func (m *Main) MessageCompleted(msg models.Message) {
	e := &sse.Message{Type: streamEndSSEType}
	e.AppendData(m.renderer.Render(msg.Text))
	if err := m.sseSrv.Publish(e, messageIDTopic(msg.ID)); err != nil {
		m.logger.Error("Failed to publish stream end",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to
// all connected clients and waits up to 5 seconds for connections to terminate. After the timeout,
// any remaining connections are forcefully closed.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
