package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ssabihuddin/modelgate/internal/domain/gateway"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/process"
)

// ModelSwitcher is the gateway surface the model handler needs.
type ModelSwitcher interface {
	Switch(ctx context.Context, name string) error
}

// ModelHandler serves PUT /model/{name}.
type ModelHandler struct {
	gw ModelSwitcher
}

// NewModelHandler creates a ModelHandler.
func NewModelHandler(gw ModelSwitcher) *ModelHandler {
	return &ModelHandler{gw: gw}
}

// Switch handles PUT /model/{name}.
//
// Response codes:
//   - 200 OK: switch completed, body is JSON true
//   - 404 Not Found: no configured model under that name
//   - 409 Conflict: another switch is still running
//   - 502 Bad Gateway: the model server failed to start
func (h *ModelHandler) Switch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.gw.Switch(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownModel):
			writeError(w, http.StatusNotFound, "unknown model: "+name)
		case errors.Is(err, gateway.ErrSwitchInProgress):
			writeError(w, http.StatusConflict, "model switch in progress")
		case errors.Is(err, process.ErrStartFailed):
			writeError(w, http.StatusBadGateway, "model server failed to start")
		default:
			writeError(w, http.StatusInternalServerError, "model switch failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, true)
}
