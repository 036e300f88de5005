// Package supervisor spawns the engine binary, waits for it to report
// healthy and stops it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"enginectl/internal/common/fsutil"
	"enginectl/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 3929
	defaultHealthInterval = time.Second
	healthTimeout         = 2 * time.Second
	destroyTimeout        = 5 * time.Second
	killWait              = 5 * time.Second
)

// BinaryName returns the engine executable name for goos.
func BinaryName(goos string) string {
	if goos == "windows" {
		return "cortex-cpp.exe"
	}
	return "cortex-cpp"
}

// Config encapsulates the tunables for Supervisor construction.
type Config struct {
	// EnginesDir holds the engine binary; it is also the process cwd.
	EnginesDir string
	Host       string
	Port       int
	// HealthInterval is the poll period after spawn.
	HealthInterval time.Duration
	// StartupTimeout bounds the health poll. Zero polls until healthy, the
	// process exits with an error, or ctx ends.
	StartupTimeout time.Duration
	// Binary overrides BinaryName(runtime.GOOS).
	Binary string
	// OnHealthy persists the effective host and port after a start.
	OnHealthy  func(host string, port int) error
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Supervisor exclusively owns the engine process handle.
type Supervisor struct {
	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	pid    int
	exited chan struct{}

	enginesDir     string
	host           string
	port           int
	healthInterval time.Duration
	startupTimeout time.Duration
	binary         string
	onHealthy      func(string, int) error
	httpClient     *http.Client
	log            zerolog.Logger
}

// New constructs a Supervisor from Config.
func New(cfg Config) *Supervisor {
	s := &Supervisor{
		state:          StateNotRunning,
		enginesDir:     cfg.EnginesDir,
		host:           cfg.Host,
		port:           cfg.Port,
		healthInterval: cfg.HealthInterval,
		startupTimeout: cfg.StartupTimeout,
		binary:         cfg.Binary,
		onHealthy:      cfg.OnHealthy,
		httpClient:     cfg.HTTPClient,
		log:            cfg.Logger,
	}
	if s.host == "" {
		s.host = defaultHost
	}
	if s.port <= 0 {
		s.port = defaultPort
	}
	if s.healthInterval <= 0 {
		s.healthInterval = defaultHealthInterval
	}
	if s.binary == "" {
		s.binary = BinaryName(runtime.GOOS)
	}
	if s.httpClient == nil {
		// All calls carry context deadlines.
		s.httpClient = &http.Client{Timeout: 0}
	}
	return s
}

func (s *Supervisor) baseURL() string {
	return "http://" + s.host + ":" + strconv.Itoa(s.port)
}

// BinaryPath is the absolute location of the engine executable.
func (s *Supervisor) BinaryPath() string { return filepath.Join(s.enginesDir, s.binary) }

// Healthy performs a single health check against the configured endpoint.
func (s *Supervisor) Healthy(ctx context.Context) bool {
	return s.isHealthy(ctx, s.baseURL(), healthTimeout)
}

// State reports the process state with pid, host and port.
func (s *Supervisor) State() types.ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.ProcessStatus{State: string(s.state), Host: s.host, Port: s.port, PID: s.pid}
}

// Start spawns the engine unless a tracked process exists or the endpoint
// already answers healthy, then polls until it is healthy. With attach the
// process shares the caller's stdio; otherwise it is detached.
func (s *Supervisor) Start(ctx context.Context, attach bool) (types.OperationResult, error) {
	s.mu.Lock()
	if s.cmd != nil || s.state == StateStarting {
		s.mu.Unlock()
		return types.OperationResult{Message: msgAlreadyRunning, Status: StatusSuccess}, nil
	}
	s.mu.Unlock()
	if s.Healthy(ctx) {
		s.log.Info().Str("host", s.host).Int("port", s.port).Msg("engine already running")
		return types.OperationResult{Message: msgAlreadyRunning, Status: StatusSuccess}, nil
	}

	bin := s.BinaryPath()
	if !fsutil.PathExists(bin) {
		return types.OperationResult{Status: StatusFailed}, fmt.Errorf("%w: %s", ErrNotInstalled, bin)
	}

	cmd := exec.Command(bin, "1", s.host, strconv.Itoa(s.port))
	cmd.Dir = s.enginesDir
	cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES=0")
	if attach {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	} else {
		detach(cmd)
	}

	s.mu.Lock()
	if s.cmd != nil || s.state == StateStarting {
		s.mu.Unlock()
		return types.OperationResult{Message: msgAlreadyRunning, Status: StatusSuccess}, nil
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return types.OperationResult{Status: StatusFailed}, fmt.Errorf("start engine: %w", err)
	}
	exited := make(chan struct{})
	var waitErr error
	s.cmd, s.pid, s.exited, s.state = cmd, cmd.Process.Pid, exited, StateStarting
	s.mu.Unlock()
	log := s.log.With().Int("pid", cmd.Process.Pid).Str("host", s.host).Int("port", s.port).Logger()
	log.Info().Bool("attach", attach).Msg("engine spawned")

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		waitErr = err
		if s.cmd == cmd {
			s.cmd, s.pid, s.exited = nil, 0, nil
			if s.state != StateStarting {
				s.state = StateNotRunning
			}
		}
		s.mu.Unlock()
		close(exited)
		log.Info().AnErr("exit", err).Msg("engine exited")
	}()

	if err := s.awaitHealthy(ctx, cmd, exited, &waitErr); err != nil {
		log.Error().Err(err).Msg("engine failed to start")
		return types.OperationResult{Status: StatusFailed}, err
	}

	s.mu.Lock()
	s.state = StateHealthy
	s.mu.Unlock()
	log.Info().Msg("engine healthy")
	if s.onHealthy != nil {
		if err := s.onHealthy(s.host, s.port); err != nil {
			log.Warn().Err(err).Msg("persist engine address")
		}
	}
	return types.OperationResult{Message: msgStarted, Status: StatusSuccess}, nil
}

// awaitHealthy polls the health endpoint. A clean exit keeps polling so that
// binaries which fork into the background still start.
func (s *Supervisor) awaitHealthy(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}, waitErr *error) error {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if s.startupTimeout > 0 {
		timer := time.NewTimer(s.startupTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		if s.isHealthy(ctx, s.baseURL(), healthTimeout) {
			return nil
		}
		select {
		case <-exited:
			s.mu.Lock()
			err := *waitErr
			s.mu.Unlock()
			if err != nil {
				s.resetState()
				return fmt.Errorf("%w: %v", ErrExitedEarly, err)
			}
			exited = nil
		case <-ticker.C:
		case <-deadline:
			s.abandon(cmd)
			return ErrStartupTimeout
		case <-ctx.Done():
			s.abandon(cmd)
			return ctx.Err()
		}
	}
}

// abandon kills a process that will not become healthy.
func (s *Supervisor) abandon(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	s.resetState()
}

func (s *Supervisor) resetState() {
	s.mu.Lock()
	s.state = StateNotRunning
	s.mu.Unlock()
}

// Wait blocks until the tracked process exits. It returns at once when no
// process is tracked.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

// Stop asks the engine to shut down, then kills the tracked process. It
// always succeeds.
func (s *Supervisor) Stop(ctx context.Context) types.OperationResult {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.state = StateStopping
	s.mu.Unlock()

	s.requestDestroy(ctx, s.baseURL(), destroyTimeout)
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("kill engine")
		}
		select {
		case <-exited:
		case <-time.After(killWait):
		}
	}

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd, s.pid, s.exited = nil, 0, nil
	}
	s.state = StateNotRunning
	s.mu.Unlock()
	s.log.Info().Str("host", s.host).Int("port", s.port).Msg("engine stopped")
	return types.OperationResult{Message: msgStopped, Status: StatusSuccess}
}
