// Package process manages the lifecycle of the local inference server
// subprocess. At most one local server runs at a time; the registry tracks
// its pid and the supervisor is the only component that starts or stops it.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	gopsproc "github.com/shirou/gopsutil/v3/process"
)

// ErrStartFailed is returned when the server process could not be launched or
// never became ready within the start timeout.
var ErrStartFailed = errors.New("model server failed to start")

const (
	defaultStartTimeout = 120 * time.Second
	defaultStopGrace    = 10 * time.Second

	// Readiness probe backoff bounds.
	probeInitialDelay = 100 * time.Millisecond
	probeMaxDelay     = 2 * time.Second
)

// CommandFunc builds the exec.Cmd that serves a model file on host:port.
// Replaceable in tests.
type CommandFunc func(bin, file, host string, port int) *exec.Cmd

// Supervisor starts, stops and swaps the local inference server process.
type Supervisor struct {
	bin          string
	log          *slog.Logger
	client       *http.Client
	startTimeout time.Duration
	stopGrace    time.Duration
	command      CommandFunc
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithStartTimeout bounds how long Start waits for the server to become ready.
func WithStartTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.startTimeout = d }
}

// WithStopGrace sets how long Stop waits after SIGTERM before escalating to SIGKILL.
func WithStopGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.stopGrace = d }
}

// WithCommand replaces the launched command. Used by tests.
func WithCommand(fn CommandFunc) Option {
	return func(s *Supervisor) { s.command = fn }
}

// New creates a Supervisor that launches bin to serve local model files.
func New(bin string, log *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		bin:          bin,
		log:          log,
		client:       &http.Client{Timeout: time.Second},
		startTimeout: defaultStartTimeout,
		stopGrace:    defaultStopGrace,
		command:      defaultCommand,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultCommand launches a llama.cpp-style server binary.
func defaultCommand(bin, file, host string, port int) *exec.Cmd {
	return exec.Command(bin,
		"-m", file,
		"--host", host,
		"--port", strconv.Itoa(port),
	)
}

// Start launches the server for file on host:port and polls its model-list
// endpoint with exponential backoff until it answers or the start timeout
// expires. On timeout the half-started process is killed and ErrStartFailed
// is returned — the caller never observes a running-but-untracked server.
func (s *Supervisor) Start(ctx context.Context, file, host string, port int) (int, error) {
	cmd := s.command(s.bin, file, host, port)

	s.log.Info("starting model server", "file", file, "addr", fmt.Sprintf("%s:%d", host, port))
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: launch: %v", ErrStartFailed, err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so it never lingers as a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			s.log.Debug("model server exited", "pid", pid, "err", err)
		}
	}()

	if err := s.waitReady(ctx, host, port); err != nil {
		s.log.Error("model server never became ready, killing it", "pid", pid, "err", err)
		if stopErr := s.Stop(context.WithoutCancel(ctx), pid); stopErr != nil {
			s.log.Error("cleanup of unready server failed", "pid", pid, "err", stopErr)
		}
		return 0, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	s.log.Info("model server ready", "pid", pid)
	return pid, nil
}

// waitReady polls GET http://host:port/v1/models until it returns 200.
func (s *Supervisor) waitReady(ctx context.Context, host string, port int) error {
	url := fmt.Sprintf("http://%s/v1/models", joinHostPort(host, port))
	deadline := time.Now().Add(s.startTimeout)
	delay := probeInitialDelay

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("not ready after %s", s.startTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > probeMaxDelay {
			delay = probeMaxDelay
		}
	}
}

// Stop terminates the process with the given pid: SIGTERM, a bounded wait,
// then SIGKILL. A pid that no longer exists is treated as success, so Stop is
// idempotent and safe to call on stale pids loaded from the config file.
func (s *Supervisor) Stop(ctx context.Context, pid int) error {
	if pid <= 0 {
		return nil
	}

	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		// Already gone.
		s.log.Debug("stop: process not found", "pid", pid)
		return nil
	}

	s.log.Info("stopping model server", "pid", pid)
	if err := p.TerminateWithContext(ctx); err != nil {
		s.log.Debug("terminate failed, process likely exited", "pid", pid, "err", err)
		return nil
	}

	deadline := time.Now().Add(s.stopGrace)
	for time.Now().Before(deadline) {
		running, _ := p.IsRunning()
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	s.log.Warn("model server ignored SIGTERM, escalating to SIGKILL", "pid", pid)
	if err := p.KillWithContext(ctx); err != nil {
		s.log.Debug("kill failed, process likely exited", "pid", pid, "err", err)
	}
	return nil
}

// Switch stops the old process and starts a new one for file on host:port.
// The two steps are not transactional: when Start fails the old process is
// already gone, and the error must surface to the caller.
func (s *Supervisor) Switch(ctx context.Context, oldPID int, file, host string, port int) (int, error) {
	if err := s.Stop(ctx, oldPID); err != nil {
		return 0, err
	}
	return s.Start(ctx, file, host, port)
}

func joinHostPort(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
