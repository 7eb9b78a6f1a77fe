package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ssabihuddin/modelgate/internal/infra/config"
)

const testConfig = `{
    "api": {"host": "127.0.0.1", "port": 9090, "model": ""},
    "model": [
        {"name": "phi3", "file": "/models/phi3.gguf", "host": "127.0.0.1", "port": 9091, "auth": "sso-key"},
        {"name": "mistral", "file": "/models/mistral.gguf", "host": "127.0.0.1", "port": 9092, "auth": "sso-key"},
        {"name": "gpt-4", "file": "", "host": "api.openai.com", "port": 443, "auth": "api-key", "key": "sk-test"}
    ]
}`

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelgate.json")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	store, err := config.Open(path)
	if err != nil {
		t.Fatalf("config.Open error = %v", err)
	}
	return New(store), path
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)

	e, err := r.FindByName("phi3")
	if err != nil {
		t.Fatalf("FindByName error = %v", err)
	}
	if !e.Local() {
		t.Error("phi3 should be a local model")
	}

	e, err = r.FindByName("gpt-4")
	if err != nil {
		t.Fatalf("FindByName error = %v", err)
	}
	if e.Local() {
		t.Error("gpt-4 should be remote-only")
	}

	if _, err := r.FindByName("ghost"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("FindByName(ghost) error = %v; want ErrUnknownModel", err)
	}
}

func TestActiveEntry_UnsetBeforeFirstSwitch(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	if _, err := r.ActiveEntry(); !errors.Is(err, ErrNoActiveModel) {
		t.Errorf("ActiveEntry error = %v; want ErrNoActiveModel", err)
	}
}

func TestSetActive_UpdatesPointerAndPersists(t *testing.T) {
	t.Parallel()

	r, path := newTestRegistry(t)

	if err := r.SetActive("mistral"); err != nil {
		t.Fatalf("SetActive error = %v", err)
	}

	e, err := r.ActiveEntry()
	if err != nil {
		t.Fatalf("ActiveEntry error = %v", err)
	}
	if e.Name != "mistral" {
		t.Errorf("active = %q; want %q", e.Name, "mistral")
	}

	// Pointer must survive a reload from disk.
	store, err := config.Open(path)
	if err != nil {
		t.Fatalf("re-Open error = %v", err)
	}
	if got := New(store).ActiveName(); got != "mistral" {
		t.Errorf("persisted active = %q; want %q", got, "mistral")
	}
}

func TestSetActive_UnknownModel_LeavesPointerUnchanged(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	if err := r.SetActive("phi3"); err != nil {
		t.Fatalf("SetActive error = %v", err)
	}

	if err := r.SetActive("ghost"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("SetActive(ghost) error = %v; want ErrUnknownModel", err)
	}
	if got := r.ActiveName(); got != "phi3" {
		t.Errorf("active after failed SetActive = %q; want %q", got, "phi3")
	}
}

// The active pointer must always reference an existing entry, whatever
// sequence of SetActive calls was made.
func TestSetActive_PointerAlwaysValid(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	for _, name := range []string{"phi3", "ghost", "gpt-4", "", "mistral", "nope"} {
		_ = r.SetActive(name)
		active := r.ActiveName()
		if active == "" {
			continue
		}
		if _, err := r.FindByName(active); err != nil {
			t.Fatalf("active pointer %q references no entry", active)
		}
	}
}

func TestSetPID_EnforcesSingleLiveProcess(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)

	if err := r.SetPID("phi3", 1111); err != nil {
		t.Fatalf("SetPID error = %v", err)
	}
	if err := r.SetPID("mistral", 2222); err != nil {
		t.Fatalf("SetPID error = %v", err)
	}

	live := 0
	for _, e := range r.Entries() {
		if e.Local() && e.PID != 0 {
			live++
			if e.Name != "mistral" || e.PID != 2222 {
				t.Errorf("unexpected live entry %+v", e)
			}
		}
	}
	if live != 1 {
		t.Errorf("live local processes = %d; want 1", live)
	}
}

func TestLivePID(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)

	if name, pid := r.LivePID(); name != "" || pid != 0 {
		t.Errorf("LivePID on fresh registry = (%q, %d); want empty", name, pid)
	}

	if err := r.SetPID("phi3", 4321); err != nil {
		t.Fatalf("SetPID error = %v", err)
	}
	if name, pid := r.LivePID(); name != "phi3" || pid != 4321 {
		t.Errorf("LivePID = (%q, %d); want (phi3, 4321)", name, pid)
	}
}

func TestRegistry_ConcurrentSetActive(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	names := []string{"phi3", "mistral", "gpt-4"}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.SetActive(names[i%len(names)])
			_, _ = r.ActiveEntry()
		}(i)
	}
	wg.Wait()

	if _, err := r.FindByName(r.ActiveName()); err != nil {
		t.Fatalf("active pointer invalid after concurrent mutation: %v", err)
	}
}
