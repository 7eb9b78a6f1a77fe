package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// TokenBudget is the gateway surface the tokens handler needs.
type TokenBudget interface {
	MaxTokens() int
	SetMaxTokens(tokens int) error
}

// TokensHandler serves the /tokens endpoints.
type TokensHandler struct {
	gw TokenBudget
}

// NewTokensHandler creates a TokensHandler.
func NewTokensHandler(gw TokenBudget) *TokensHandler {
	return &TokensHandler{gw: gw}
}

// Get handles GET /tokens/max.
func (h *TokensHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"max_tokens": h.gw.MaxTokens()})
}

// Set handles GET /tokens/max/{tokens} and persists the new cap.
//
// Response codes:
//   - 200 OK: cap updated, body is JSON true
//   - 400 Bad Request: not a positive integer
//   - 500 Internal Server Error: persisting the config failed
func (h *TokensHandler) Set(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "tokens")
	tokens, err := strconv.Atoi(raw)
	if err != nil || tokens <= 0 {
		writeError(w, http.StatusBadRequest, "max tokens must be a positive integer")
		return
	}

	if err := h.gw.SetMaxTokens(tokens); err != nil {
		writeError(w, http.StatusInternalServerError, "persisting max tokens failed")
		return
	}
	writeJSON(w, http.StatusOK, true)
}
