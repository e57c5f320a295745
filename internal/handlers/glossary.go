package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type glossaryResponse struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// HandleGlossary serves a single glossary definition as JSON for the page's click-to-highlight
// feature. Unknown terms return 404.
func (m *Main) HandleGlossary(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		http.Error(w, "Term is required", http.StatusBadRequest)
		return
	}

	def, ok := m.glossary.Lookup(term)
	if !ok {
		http.Error(w, "Term not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(glossaryResponse{
		Term:       def.Term,
		Definition: def.Definition,
	}); err != nil {
		m.logger.Error("Failed to encode glossary response", slog.String(errLoggerKey, err.Error()))
	}
}
