// Package registry tracks the configured models and which one is active.
// Every mutation is written through to the config store so the active model
// and subprocess pids survive a restart. The registry is the single owner of
// this state: the supervisor and relay only ever see Entry snapshots.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ssabihuddin/modelgate/internal/infra/config"
)

var (
	// ErrUnknownModel is returned when a name is not present in the registry.
	ErrUnknownModel = errors.New("unknown model")

	// ErrNoActiveModel is returned when no model has been activated yet.
	ErrNoActiveModel = errors.New("no active model")
)

// Entry is a registry snapshot of one configured model.
type Entry struct {
	Name string
	File string // empty ⇒ remote-only model
	Host string
	Port int
	Auth string // none | api-key | sso-key
	Key  string
	PID  int // 0 ⇒ no live process
}

// Local reports whether this entry is backed by a supervised subprocess.
func (e Entry) Local() bool { return e.File != "" }

// Registry is the in-memory model table plus the active-model pointer.
// Reads take the RLock; mutations take the write lock and persist before
// returning.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	active  string
	store   *config.Store
}

// New builds a Registry from the config store's current snapshot.
func New(store *config.Store) *Registry {
	cfg := store.Snapshot()
	entries := make([]Entry, len(cfg.Model))
	for i, m := range cfg.Model {
		entries[i] = Entry{
			Name: m.Name,
			File: m.File,
			Host: m.Host,
			Port: m.Port,
			Auth: m.Auth,
			Key:  m.Key,
			PID:  m.PID,
		}
	}
	return &Registry{entries: entries, active: cfg.API.Model, store: store}
}

// FindByName returns the entry with the given name.
func (r *Registry) FindByName(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// ActiveEntry returns the entry the active pointer designates.
func (r *Registry) ActiveEntry() (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == "" {
		return Entry{}, ErrNoActiveModel
	}
	for _, e := range r.entries {
		if e.Name == r.active {
			return e, nil
		}
	}
	// Unreachable while the SetActive invariant holds; guard anyway.
	return Entry{}, fmt.Errorf("%w: active pointer %q has no entry", ErrNoActiveModel, r.active)
}

// ActiveName returns the active model name, empty before the first switch.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Entries returns a copy of the model table.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// SetActive moves the active pointer to name and persists.
// The pointer only ever references an existing entry.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(name) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	prev := r.active
	r.active = name
	if err := r.persist(); err != nil {
		r.active = prev
		return err
	}
	return nil
}

// SetPID records the subprocess pid for the named entry and persists.
// A non-zero pid clears the pid of every other local entry, preserving the
// at-most-one-live-process invariant.
func (r *Registry) SetPID(name string, pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(name)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}

	prev := make([]Entry, len(r.entries))
	copy(prev, r.entries)

	r.entries[idx].PID = pid
	if pid != 0 {
		for i := range r.entries {
			if i != idx && r.entries[i].Local() {
				r.entries[i].PID = 0
			}
		}
	}

	if err := r.persist(); err != nil {
		r.entries = prev
		return err
	}
	return nil
}

// LivePID returns the name and pid of the local entry with a live process,
// or ("", 0) when none is recorded.
func (r *Registry) LivePID() (string, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Local() && e.PID != 0 {
			return e.Name, e.PID
		}
	}
	return "", 0
}

// indexOf must be called with the lock held.
func (r *Registry) indexOf(name string) int {
	for i, e := range r.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// persist writes the model table and active pointer back to the config store.
// Must be called with the write lock held.
func (r *Registry) persist() error {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	active := r.active

	err := r.store.Update(func(cfg *config.Config) {
		cfg.API.Model = active
		for i := range cfg.Model {
			for _, e := range entries {
				if cfg.Model[i].Name == e.Name {
					cfg.Model[i].PID = e.PID
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("registry: persist: %w", err)
	}
	return nil
}
