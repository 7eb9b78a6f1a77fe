// Package relay forwards inbound requests verbatim to the active model's
// backend, injecting the entry's credentials. All models speak the OpenAI
// REST shape, so the gateway never needs to understand the payload: method,
// sub-path, headers and body pass through untouched.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/config"
)

// ErrUnreachable is returned when the backend cannot be reached at the
// transport level. Upstream non-2xx statuses are NOT errors — they pass
// through to the caller unchanged.
var ErrUnreachable = errors.New("upstream unreachable")

// relayTimeout bounds the whole upstream call. Completion calls on large
// local models can legitimately run for minutes, so the bound is generous;
// there is no retry inside it.
const relayTimeout = 15 * time.Minute

// hopHeaders are connection-specific and must not be forwarded in either
// direction (RFC 7230 §6.1).
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Response is the upstream reply handed back to the caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Router performs the forwarding.
type Router struct {
	client *http.Client
	log    *slog.Logger
}

// NewRouter creates a Router with the relay timeout applied.
func NewRouter(log *slog.Logger) *Router {
	return &Router{
		client: &http.Client{Timeout: relayTimeout},
		log:    log,
	}
}

// Forward sends method+pathSuffix+header+body to entry's backend and returns
// the reply. The caller's context propagates to the upstream call, so a
// disconnected client cancels the in-flight request instead of leaking it.
func (rt *Router) Forward(ctx context.Context, entry registry.Entry, method, pathSuffix string, header http.Header, body io.Reader) (*Response, error) {
	url := backendURL(entry, pathSuffix)
	rt.log.Debug("relaying request", "method", method, "url", url, "model", entry.Name)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header = forwardHeaders(header, entry)

	resp, err := rt.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     stripHopHeaders(resp.Header),
		Body:       respBody,
	}
	return out, nil
}

// backendURL builds the upstream URL for an entry. The transport scheme is a
// per-entry policy: sso-key entries are LAN-local inference servers reached
// over plaintext http, everything else goes over https.
func backendURL(entry registry.Entry, pathSuffix string) string {
	scheme := "https"
	if entry.Auth == config.AuthSSOKey {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d/%s", scheme, entry.Host, entry.Port, pathSuffix)
}

// forwardHeaders copies the inbound headers minus hop-by-hop ones and
// injects the entry's Authorization credential as "{scheme} {key}".
func forwardHeaders(header http.Header, entry registry.Entry) http.Header {
	out := stripHopHeaders(header)
	out.Del("Host")
	if entry.Key != "" && entry.Auth != config.AuthNone {
		out.Set("Authorization", entry.Auth+" "+entry.Key)
	}
	return out
}

func stripHopHeaders(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for k, vs := range header {
		out[k] = append([]string(nil), vs...)
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
