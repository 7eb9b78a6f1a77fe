package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ssabihuddin/modelgate/internal/domain/gateway"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/process"
	"github.com/ssabihuddin/modelgate/internal/infra/relay"
)

// Querier is the gateway surface the query handler needs.
type Querier interface {
	Query(ctx context.Context, model, prompt string) (string, error)
}

// QueryHandler serves GET /query/{model}/{prompt}.
type QueryHandler struct {
	gw Querier
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(gw Querier) *QueryHandler {
	return &QueryHandler{gw: gw}
}

// Query handles GET /query/{model}/{prompt}. The answer is returned as plain
// text, not wrapped in JSON.
//
// Response codes:
//   - 200 OK: the model's answer
//   - 404 Not Found: unknown model
//   - 409 Conflict: another model switch is still running
//   - 502 Bad Gateway: server start failure, upstream rejection, or a reply
//     without choices[0].message.content
//   - 500 Internal Server Error: backend unreachable
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	prompt := chi.URLParam(r, "prompt")

	answer, err := h.gw.Query(r.Context(), model, prompt)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownModel):
			writeError(w, http.StatusNotFound, "unknown model: "+model)
		case errors.Is(err, gateway.ErrSwitchInProgress):
			writeError(w, http.StatusConflict, "model switch in progress")
		case errors.Is(err, process.ErrStartFailed),
			errors.Is(err, gateway.ErrUpstream),
			errors.Is(err, gateway.ErrMalformedResponse):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, relay.ErrUnreachable):
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "query failed")
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(answer)) //nolint:errcheck
}
