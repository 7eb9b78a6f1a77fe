package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ssabihuddin/modelgate/internal/infra/config"
	pkgauth "github.com/ssabihuddin/modelgate/pkg/auth"
)

// AuthHandler serves POST /auth/token: exchanges the configured admin key for
// a Bearer JWT used on the mutating endpoints.
type AuthHandler struct {
	store *config.Store
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(store *config.Store) *AuthHandler {
	return &AuthHandler{store: store}
}

// TokenRequest is the request body for POST /auth/token.
type TokenRequest struct {
	Key string `json:"key"`
}

// TokenResponse is the response body for a successful exchange.
type TokenResponse struct {
	Token string `json:"token"`
}

// Token handles POST /auth/token.
//
// Response codes:
//   - 200 OK: key accepted, token returned
//   - 400 Bad Request: invalid JSON body
//   - 401 Unauthorized: wrong key
//   - 409 Conflict: no admin key configured, auth is disabled
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	hash := h.store.Snapshot().API.AdminKeyHash
	if hash == "" {
		writeError(w, http.StatusConflict, "admin auth not configured")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !pkgauth.VerifyKey(hash, req.Key) {
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}

	token, err := pkgauth.GenerateToken("admin")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}
