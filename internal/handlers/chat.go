package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/solverpad/tutor-web-ui/internal/models"
	"github.com/solverpad/tutor-web-ui/internal/services"
	"github.com/solverpad/tutor-web-ui/internal/transcript"
)

type message struct {
	ID      string
	Role    string
	Content template.HTML
	// AttachedImage is typed template.URL so data URIs survive template sanitization.
	AttachedImage template.URL
	Timestamp     time.Time

	StreamingState string
}

// HandleChat processes chat submissions through HTTP POST requests. It accepts a "message" form
// field plus an optional "image" data URI (the file picker, clipboard paste, and camera capture
// paths all resolve to that one field) and an "image_source" hint used only for analytics.
//
// A submission with neither text nor image is rejected with 400 and leaves the transcript
// untouched. For accepted submissions it appends the user message and the streaming assistant
// placeholder, then renders both as partial templates; the placeholder's content streams in over
// Server-Sent Events afterwards.
func (m *Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	image := r.FormValue("image")
	imageSource := r.FormValue("image_source")

	if image != "" {
		if _, err := models.ParseImageDataURI(image); err != nil {
			m.logger.Error("Rejecting malformed image payload", slog.String(errLoggerKey, err.Error()))
			http.Error(w, "Image must be a base64 data URI", http.StatusBadRequest)
			return
		}
	}

	userMsg, placeholder, err := m.store.SubmitUserMessage(r.Context(), msg, image)
	if err != nil {
		if errors.Is(err, transcript.ErrEmptySubmission) {
			m.logger.Error("Message is required")
			http.Error(w, "Message or image is required", http.StatusBadRequest)
			return
		}
		m.logger.Error("Failed to submit message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if image != "" {
		if imageSource == "" {
			imageSource = "file"
		}
		m.emit(services.AnalyticsEvent{
			Type:      services.EventImageAttached,
			Timestamp: time.Now(),
			Fields: map[string]any{
				"sourceType": imageSource,
				"size":       len(image),
			},
		})
	}

	if err := m.writeMessage(w, "user_message", userMsg, models.StreamingStateEnded); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.writeMessage(w, "ai_message", placeholder, models.StreamingStateLoading); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Main) writeMessage(w http.ResponseWriter, tmplName string, msg models.Message, state string) error {
	if err := m.templates.ExecuteTemplate(w, tmplName, m.messageView(msg, state)); err != nil {
		m.logger.Error("Failed to execute message template",
			slog.String("template", tmplName),
			slog.String(errLoggerKey, err.Error()))
		return err
	}
	return nil
}

func (m *Main) messageView(msg models.Message, state string) message {
	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Content:        template.HTML(m.renderer.Render(msg.Text)),
		AttachedImage:  template.URL(msg.AttachedImage),
		Timestamp:      msg.Timestamp,
		StreamingState: state,
	}
}

// renderMessage renders one message through its partial template into a string for SSE publishing.
func (m *Main) renderMessage(msg models.Message, state string) (string, error) {
	view := m.messageView(msg, state)

	tmplName := "ai_message"
	if msg.Role == models.RoleUser {
		tmplName = "user_message"
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, tmplName, view); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (m *Main) emit(event services.AnalyticsEvent) {
	if m.analytics == nil {
		return
	}
	m.analytics.Emit(event)
}
