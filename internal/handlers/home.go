package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/solverpad/tutor-web-ui/internal/models"
	"github.com/solverpad/tutor-web-ui/internal/services"
)

type homePageData struct {
	Messages         []message
	GlossaryTerms    []string
	ClickToHighlight bool
	MathEnabled      bool
}

// HandleHome renders the chat page with the current transcript. Each page load counts as a session
// start for analytics purposes.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	m.emit(services.AnalyticsEvent{
		Type:      services.EventSessionStarted,
		Timestamp: time.Now(),
	})

	msgs := m.store.Messages()
	views := make([]message, len(msgs))
	for i, msg := range msgs {
		state := models.StreamingStateEnded
		if msg.IsStreaming {
			state = models.StreamingStateStreaming
		}
		views[i] = m.messageView(msg, state)
	}

	data := homePageData{
		Messages:         views,
		GlossaryTerms:    m.glossary.Terms(),
		ClickToHighlight: m.cfg.ClickToHighlight,
		MathEnabled:      m.cfg.Renderer.Math,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSSE hands the request to the SSE server, which subscribes the client per the topics chosen
// in the server's OnSession hook.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}
