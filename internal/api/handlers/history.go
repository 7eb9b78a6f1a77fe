package handlers

import (
	"context"
	"net/http"

	"github.com/ssabihuddin/modelgate/internal/domain/history"
)

// TranscriptAccessor is the gateway surface the history handler needs.
type TranscriptAccessor interface {
	Turns() []history.Turn
	ClearHistory(ctx context.Context) error
}

// HistoryHandler serves the /history endpoints.
type HistoryHandler struct {
	gw TranscriptAccessor
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(gw TranscriptAccessor) *HistoryHandler {
	return &HistoryHandler{gw: gw}
}

// List handles GET /history/list and returns the transcript as a JSON array,
// empty array rather than null when there are no turns.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	turns := h.gw.Turns()
	if turns == nil {
		turns = []history.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

// Clear handles GET /history/clear.
//
// Response codes:
//   - 200 OK: transcript wiped, body is JSON true
//   - 500 Internal Server Error: the database delete failed
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.ClearHistory(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "history clear failed")
		return
	}
	writeJSON(w, http.StatusOK, true)
}
