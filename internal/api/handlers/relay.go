package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ssabihuddin/modelgate/internal/domain/gateway"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/relay"
)

// ActiveResolver yields the entry requests should be relayed to.
type ActiveResolver interface {
	ActiveEntry() (registry.Entry, error)
}

// RelayHandler serves ANY /relay/*: a verbatim pass-through to the active
// model's backend.
type RelayHandler struct {
	reg ActiveResolver
	fwd gateway.Forwarder
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(reg ActiveResolver, fwd gateway.Forwarder) *RelayHandler {
	return &RelayHandler{reg: reg, fwd: fwd}
}

// Relay handles any method on /relay/*.
//
// Response codes:
//   - upstream status verbatim, 2xx or not
//   - 409 Conflict: no active model to relay to
//   - 500 Internal Server Error: backend unreachable, error text in body
func (h *RelayHandler) Relay(w http.ResponseWriter, r *http.Request) {
	entry, err := h.reg.ActiveEntry()
	if err != nil {
		writeError(w, http.StatusConflict, "no active model")
		return
	}

	resp, err := h.fwd.Forward(r.Context(), entry, r.Method, chi.URLParam(r, "*"), r.Header, r.Body)
	if err != nil {
		if errors.Is(err, relay.ErrUnreachable) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeError(w, http.StatusInternalServerError, "relay failed")
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body) //nolint:errcheck
}
