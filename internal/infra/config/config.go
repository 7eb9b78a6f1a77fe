// Package config provides the file-backed configuration store for modelgate.
// The file holds the gateway settings and the model table, including each
// model's last known subprocess pid, and is rewritten after every mutation so
// the registry state survives a restart. JSON is the native format; files
// with a .yaml/.yml extension are read and written with yaml.v3 instead.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Auth scheme values for a model entry.
const (
	AuthNone   = "none"
	AuthAPIKey = "api-key"
	AuthSSOKey = "sso-key"
)

// Model is one configured model: either a local gguf file served by a
// supervised subprocess (File non-empty) or a remote endpoint.
type Model struct {
	Name string `json:"name" yaml:"name"`
	File string `json:"file" yaml:"file"` // empty ⇒ remote-only model
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Auth string `json:"auth" yaml:"auth"` // none | api-key | sso-key
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
	PID  int    `json:"pid" yaml:"pid"` // 0 ⇒ no live process
}

// API holds the gateway's own settings.
type API struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Model     string `json:"model" yaml:"model"` // active model name; empty before first switch
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens"`
	DB        string `json:"db" yaml:"db"` // SQLite path for history + audit

	// ServerBin is the local inference server binary launched for models
	// that have a file. Arguments are fixed: -m FILE --host H --port P.
	ServerBin string `json:"server_bin,omitempty" yaml:"server_bin,omitempty"`

	// AdminKeyHash is a bcrypt hash of the admin key. When set, the mutating
	// endpoints require a Bearer token obtained from POST /auth/token.
	AdminKeyHash string `json:"admin_key_hash,omitempty" yaml:"admin_key_hash,omitempty"`
}

// Config is the full on-disk configuration shape.
type Config struct {
	API   API     `json:"api" yaml:"api"`
	Model []Model `json:"model" yaml:"model"`
}

// Defaults applied by Open when fields are missing from the file.
const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 8080
	DefaultMaxTokens = 1024
	DefaultDB        = "modelgate.db"
	DefaultServerBin = "llama-server"
)

// Store owns the configuration file. All reads go through Snapshot and all
// writes through Update, which persists atomically (temp file + rename).
type Store struct {
	mu   sync.Mutex
	path string
	cfg  Config
}

// Open reads the configuration file at path and returns a Store bound to it.
// The format is chosen by extension: .yaml/.yml ⇒ YAML, anything else JSON.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Open: read %q: %w", path, err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config.Open: decode %q: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Open: %w", err)
	}

	return &Store{path: path, cfg: cfg}, nil
}

// Snapshot returns a deep copy of the current configuration.
// Callers may mutate the copy freely.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyConfig(s.cfg)
}

// Update applies fn to a copy of the configuration, persists the result to
// disk, and installs it as the current configuration. If the write fails the
// in-memory configuration is left unchanged.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyConfig(s.cfg)
	fn(&next)

	if err := s.write(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Path returns the file path this store is bound to.
func (s *Store) Path() string { return s.path }

// write persists cfg atomically: encode to a temp file in the same directory,
// then rename over the original.
func (s *Store) write(cfg Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(s.path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".modelgate-config-*")
	if err != nil {
		return fmt.Errorf("config: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyDefaults(cfg *Config) {
	if cfg.API.Host == "" {
		cfg.API.Host = DefaultHost
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultPort
	}
	if cfg.API.MaxTokens == 0 {
		cfg.API.MaxTokens = DefaultMaxTokens
	}
	if cfg.API.DB == "" {
		cfg.API.DB = DefaultDB
	}
	if cfg.API.ServerBin == "" {
		cfg.API.ServerBin = DefaultServerBin
	}
	for i := range cfg.Model {
		if cfg.Model[i].Auth == "" {
			cfg.Model[i].Auth = AuthNone
		}
	}
}

// validate rejects configurations that would break the registry invariants:
// duplicate model names and an active pointer naming a model that is absent.
func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Model))
	for _, m := range cfg.Model {
		if m.Name == "" {
			return fmt.Errorf("model entry with empty name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
	}
	if cfg.API.Model != "" && !seen[cfg.API.Model] {
		return fmt.Errorf("active model %q not present in model table", cfg.API.Model)
	}
	return nil
}

func copyConfig(cfg Config) Config {
	out := cfg
	out.Model = make([]Model, len(cfg.Model))
	copy(out.Model, cfg.Model)
	return out
}
