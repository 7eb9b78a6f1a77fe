package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/relay"
)

type fakeResolver struct {
	entry registry.Entry
	err   error
}

func (f *fakeResolver) ActiveEntry() (registry.Entry, error) { return f.entry, f.err }

type fakeForwarder struct {
	resp       *relay.Response
	err        error
	gotMethod  string
	gotPath    string
	gotBody    string
	gotHeaders http.Header
}

func (f *fakeForwarder) Forward(ctx context.Context, entry registry.Entry, method, pathSuffix string, header http.Header, body io.Reader) (*relay.Response, error) {
	f.gotMethod = method
	f.gotPath = pathSuffix
	f.gotHeaders = header
	if body != nil {
		b, _ := io.ReadAll(body)
		f.gotBody = string(b)
	}
	return f.resp, f.err
}

func relayRouter(res *fakeResolver, fwd *fakeForwarder) *chi.Mux {
	r := chi.NewRouter()
	r.HandleFunc("/relay/*", NewRelayHandler(res, fwd).Relay)
	return r
}

func TestRelay_PassesThroughUpstreamReply(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{entry: registry.Entry{Name: "phi3"}}
	fwd := &fakeForwarder{resp: &relay.Response{
		StatusCode: http.StatusTeapot,
		Header:     http.Header{"X-Upstream": {"yes"}},
		Body:       []byte("short and stout"),
	}}

	req := httptest.NewRequest(http.MethodPost, "/relay/v1/chat/completions", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	relayRouter(res, fwd).ServeHTTP(rec, req)

	if fwd.gotMethod != http.MethodPost || fwd.gotPath != "v1/chat/completions" {
		t.Errorf("forwarded call = %s %q", fwd.gotMethod, fwd.gotPath)
	}
	if fwd.gotBody != "{}" {
		t.Errorf("forwarded body = %q", fwd.gotBody)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d; want 418 verbatim", rec.Code)
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("upstream header not passed through")
	}
	if rec.Body.String() != "short and stout" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRelay_NoActiveModel(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{err: registry.ErrNoActiveModel}
	rec := httptest.NewRecorder()
	relayRouter(res, &fakeForwarder{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay/v1/models", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d; want 409", rec.Code)
	}
}

func TestRelay_Unreachable_ErrorTextBody(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{entry: registry.Entry{Name: "phi3"}}
	fwd := &fakeForwarder{err: relay.ErrUnreachable}

	rec := httptest.NewRecorder()
	relayRouter(res, fwd).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay/v1/models", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unreachable") {
		t.Errorf("body = %q; want error text", rec.Body.String())
	}
}
