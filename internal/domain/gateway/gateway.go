// Package gateway orchestrates the query flow: transcript bookkeeping, model
// switching, and the chat-completion call against the active backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ssabihuddin/modelgate/internal/domain/audit"
	"github.com/ssabihuddin/modelgate/internal/domain/history"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/config"
	"github.com/ssabihuddin/modelgate/internal/infra/eventbus"
	"github.com/ssabihuddin/modelgate/internal/infra/relay"
)

var (
	// ErrSwitchInProgress is returned when a model switch is requested while
	// another one is still running. Switches are strictly serialized.
	ErrSwitchInProgress = errors.New("model switch in progress")

	// ErrMalformedResponse is returned when the upstream answered 2xx but the
	// body does not carry choices[0].message.content.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrUpstream is returned when the upstream rejected the completion
	// request with a non-2xx status.
	ErrUpstream = errors.New("upstream rejected the completion request")
)

// Switcher swaps the local inference server process.
type Switcher interface {
	Switch(ctx context.Context, oldPID int, file, host string, port int) (int, error)
	Stop(ctx context.Context, pid int) error
}

// Forwarder relays a request to a model backend.
type Forwarder interface {
	Forward(ctx context.Context, entry registry.Entry, method, pathSuffix string, header http.Header, body io.Reader) (*relay.Response, error)
}

// Transcript persists conversation turns.
type Transcript interface {
	Append(ctx context.Context, model string, maxTokens int, role, content string) error
	LoadAll(ctx context.Context) ([]history.Record, error)
	Clear(ctx context.Context) error
}

// Service is the gateway orchestrator.
type Service struct {
	reg   *registry.Registry
	proc  Switcher
	relay Forwarder
	hist  Transcript
	bus   eventbus.EventBus
	store *config.Store
	log   *slog.Logger

	// switchMu serializes model switches. Taken with TryLock so a concurrent
	// switch is rejected immediately instead of queueing.
	switchMu sync.Mutex

	// histMu guards the in-memory transcript. The DB copy is best-effort;
	// this slice is what gets replayed upstream.
	histMu sync.Mutex
	turns  []history.Turn
}

// NewService wires the gateway. The in-memory transcript is seeded from the
// database so conversation context survives a gateway restart; a load failure
// starts with an empty transcript and is logged, not fatal.
func NewService(reg *registry.Registry, proc Switcher, fwd Forwarder, hist Transcript, bus eventbus.EventBus, store *config.Store, log *slog.Logger) *Service {
	s := &Service{
		reg:   reg,
		proc:  proc,
		relay: fwd,
		hist:  hist,
		bus:   bus,
		store: store,
		log:   log,
	}

	records, err := hist.LoadAll(context.Background())
	if err != nil {
		log.Error("history load failed, starting with empty transcript", "err", err)
		return s
	}
	for _, r := range records {
		s.turns = append(s.turns, history.Turn{Role: r.Role, Content: r.Content})
	}
	return s
}

// Switch makes name the active model. For a local model the inference server
// is restarted on the entry's file; for a remote model only the pointer moves
// and any live local server is shut down. Exactly one switch runs at a time.
func (s *Service) Switch(ctx context.Context, name string) error {
	if !s.switchMu.TryLock() {
		return ErrSwitchInProgress
	}
	defer s.switchMu.Unlock()

	entry, err := s.reg.FindByName(name)
	if err != nil {
		return err
	}

	from := s.reg.ActiveName()
	liveName, livePID := s.reg.LivePID()

	if err := s.reg.SetActive(name); err != nil {
		return err
	}

	var pid int
	if entry.Local() {
		pid, err = s.proc.Switch(ctx, livePID, entry.File, entry.Host, entry.Port)
		if err != nil {
			// The old server is already gone; record that and surface the
			// failure. The active pointer stays on the requested model so
			// a retry switches to the same place.
			if liveName != "" {
				if perr := s.reg.SetPID(liveName, 0); perr != nil {
					s.log.Error("clearing stale pid failed", "model", liveName, "err", perr)
				}
			}
			return err
		}
		if err := s.reg.SetPID(name, pid); err != nil {
			s.log.Error("persisting pid failed", "model", name, "pid", pid, "err", err)
		}
	} else if livePID != 0 {
		// Remote model takes over; the local server has no consumer left.
		if err := s.proc.Stop(ctx, livePID); err != nil {
			s.log.Error("stopping local server failed", "pid", livePID, "err", err)
		}
		if err := s.reg.SetPID(liveName, 0); err != nil {
			s.log.Error("clearing stale pid failed", "model", liveName, "err", err)
		}
	}

	s.log.Info("model switched", "from", from, "to", name, "pid", pid)
	s.bus.Publish(eventbus.TopicModelSwitched, audit.SwitchEvent{From: from, To: name, PID: pid})
	return nil
}

// chatCompletionRequest is the payload sent to v1/chat/completions. The whole
// transcript is replayed so the model sees full context after a switch.
type chatCompletionRequest struct {
	Model     string         `json:"model"`
	Messages  []history.Turn `json:"messages"`
	MaxTokens int            `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Query appends the prompt to the transcript, switches to model if it is not
// already active, runs the chat completion, and appends the answer. The user
// turn is recorded even when the query fails, matching what the model would
// have seen.
func (s *Service) Query(ctx context.Context, model, prompt string) (string, error) {
	maxTokens := s.store.Snapshot().API.MaxTokens

	s.appendTurn(ctx, model, maxTokens, history.RoleUser, prompt)

	if s.reg.ActiveName() != model {
		if err := s.Switch(ctx, model); err != nil {
			return "", err
		}
	}

	entry, err := s.reg.ActiveEntry()
	if err != nil {
		return "", err
	}

	payload := chatCompletionRequest{
		Model:     model,
		Messages:  s.Turns(),
		MaxTokens: maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := s.relay.Forward(ctx, entry, http.MethodPost, "v1/chat/completions", header, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, resp.Body)
	}

	answer, err := extractAnswer(resp.Body)
	if err != nil {
		// No system turn on a malformed reply: the transcript only records
		// answers the caller actually received.
		return "", err
	}

	s.appendTurn(ctx, model, maxTokens, history.RoleSystem, answer)
	s.bus.Publish(eventbus.TopicQueryCompleted, audit.QueryEvent{Model: model, Prompt: prompt, MaxTokens: maxTokens})
	return answer, nil
}

// extractAnswer pulls choices[0].message.content out of an upstream reply.
func extractAnswer(body []byte) (string, error) {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: no choices[0].message.content", ErrMalformedResponse)
	}
	return *parsed.Choices[0].Message.Content, nil
}

// appendTurn records a turn in memory and in the database. A storage failure
// is logged and otherwise ignored; the in-memory transcript stays coherent.
func (s *Service) appendTurn(ctx context.Context, model string, maxTokens int, role, content string) {
	s.histMu.Lock()
	s.turns = append(s.turns, history.Turn{Role: role, Content: content})
	s.histMu.Unlock()

	if err := s.hist.Append(ctx, model, maxTokens, role, content); err != nil {
		s.log.Error("history append failed", "role", role, "err", err)
	}
}

// Turns returns a copy of the transcript.
func (s *Service) Turns() []history.Turn {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	out := make([]history.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// ClearHistory wipes the transcript in memory and in the database.
func (s *Service) ClearHistory(ctx context.Context) error {
	s.histMu.Lock()
	s.turns = nil
	s.histMu.Unlock()
	return s.hist.Clear(ctx)
}

// MaxTokens returns the current completion token cap.
func (s *Service) MaxTokens() int {
	return s.store.Snapshot().API.MaxTokens
}

// SetMaxTokens updates and persists the completion token cap.
func (s *Service) SetMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	return s.store.Update(func(cfg *config.Config) {
		cfg.API.MaxTokens = tokens
	})
}
