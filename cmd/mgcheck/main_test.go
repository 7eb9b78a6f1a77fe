package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ssabihuddin/modelgate/internal/infra/config"
)

func openConfig(t *testing.T, body string) config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "modelgate.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	store, err := config.Open(path)
	if err != nil {
		t.Fatalf("config.Open error = %v", err)
	}
	return store.Snapshot()
}

func codes(vs []violation) map[string]int {
	out := make(map[string]int)
	for _, v := range vs {
		out[v.Code]++
	}
	return out
}

func TestCheck_CleanConfig(t *testing.T) {
	t.Parallel()

	modelFile := filepath.Join(t.TempDir(), "phi3.gguf")
	if err := os.WriteFile(modelFile, []byte("gguf"), 0o600); err != nil {
		t.Fatalf("write model file: %v", err)
	}

	cfg := openConfig(t, `{
		"api": {"host": "0.0.0.0", "port": 8080},
		"model": [
			{"name": "phi3", "file": "`+modelFile+`", "host": "127.0.0.1", "port": 9091, "auth": "sso-key", "key": "k"},
			{"name": "gpt-4", "host": "api.openai.com", "port": 443, "auth": "api-key", "key": "sk-test"}
		]
	}`)

	if vs := check(cfg); len(vs) != 0 {
		t.Errorf("violations = %+v; want none", vs)
	}
}

func TestCheck_MissingModelFile(t *testing.T) {
	t.Parallel()

	cfg := openConfig(t, `{
		"api": {"host": "0.0.0.0", "port": 8080},
		"model": [{"name": "phi3", "file": "/nonexistent/phi3.gguf", "host": "127.0.0.1", "port": 9091, "auth": "none"}]
	}`)

	if got := codes(check(cfg)); got["NO-FILE"] != 1 {
		t.Errorf("codes = %v; want one NO-FILE", got)
	}
}

func TestCheck_PortClashes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fa := filepath.Join(dir, "a.gguf")
	fb := filepath.Join(dir, "b.gguf")
	for _, f := range []string{fa, fb} {
		if err := os.WriteFile(f, []byte("gguf"), 0o600); err != nil {
			t.Fatalf("write model file: %v", err)
		}
	}

	cfg := openConfig(t, `{
		"api": {"host": "127.0.0.1", "port": 9091},
		"model": [
			{"name": "a", "file": "`+fa+`", "host": "127.0.0.1", "port": 9091, "auth": "none"},
			{"name": "b", "file": "`+fb+`", "host": "127.0.0.1", "port": 9091, "auth": "none"}
		]
	}`)

	got := codes(check(cfg))
	// a clashes with the gateway, b clashes with both a and the gateway.
	if got["PORT-CLASH"] != 3 {
		t.Errorf("PORT-CLASH = %d; want 3: %+v", got["PORT-CLASH"], check(cfg))
	}
}

func TestCheck_AuthRules(t *testing.T) {
	t.Parallel()

	cfg := openConfig(t, `{
		"api": {"host": "0.0.0.0", "port": 8080},
		"model": [
			{"name": "nokey", "host": "h", "port": 1, "auth": "api-key"},
			{"name": "badauth", "host": "h", "port": 2, "auth": "oauth2", "key": "k"}
		]
	}`)

	got := codes(check(cfg))
	if got["NO-KEY"] != 1 {
		t.Errorf("NO-KEY = %d; want 1", got["NO-KEY"])
	}
	if got["BAD-AUTH"] != 1 {
		t.Errorf("BAD-AUTH = %d; want 1", got["BAD-AUTH"])
	}
}
