// Package api assembles the chi router for the gateway.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ssabihuddin/modelgate/internal/api/handlers"
	gwmiddleware "github.com/ssabihuddin/modelgate/internal/api/middleware"
	"github.com/ssabihuddin/modelgate/internal/domain/gateway"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/config"
)

// Deps are the wired services the router exposes over HTTP.
type Deps struct {
	Gateway  *gateway.Service
	Registry *registry.Registry
	Relay    gateway.Forwarder
	Store    *config.Store
}

// NewRouter creates and configures the chi router with all routes.
// Mutating endpoints (/model, /history/clear, /tokens/max/{tokens}) sit
// behind RequireAdmin; everything else is open.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check — unauthenticated, used by load balancers and probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handlers.NewAuthHandler(d.Store)
	r.Post("/auth/token", authHandler.Token) // POST /auth/token

	queryHandler := handlers.NewQueryHandler(d.Gateway)
	r.Get("/query/{model}/{prompt}", queryHandler.Query) // GET /query/{model}/{prompt}

	relayHandler := handlers.NewRelayHandler(d.Registry, d.Relay)
	r.HandleFunc("/relay/*", relayHandler.Relay) // ANY /relay/*

	historyHandler := handlers.NewHistoryHandler(d.Gateway)
	r.Get("/history/list", historyHandler.List) // GET /history/list

	tokensHandler := handlers.NewTokensHandler(d.Gateway)
	r.Get("/tokens/max", tokensHandler.Get) // GET /tokens/max

	// Mutating routes — Bearer JWT required once an admin key is configured
	modelHandler := handlers.NewModelHandler(d.Gateway)
	r.Group(func(r chi.Router) {
		r.Use(gwmiddleware.RequireAdmin(d.Store))
		r.Put("/model/{name}", modelHandler.Switch)      // PUT /model/{name}
		r.Get("/history/clear", historyHandler.Clear)    // GET /history/clear
		r.Get("/tokens/max/{tokens}", tokensHandler.Set) // GET /tokens/max/{tokens}
	})

	return r
}
