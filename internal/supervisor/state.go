package supervisor

import "errors"

// State is the lifecycle state of the supervised engine process.
type State string

const (
	StateNotRunning State = "notRunning"
	StateStarting   State = "starting"
	StateHealthy    State = "healthy"
	StateStopping   State = "stopping"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result messages.
const (
	msgAlreadyRunning = "Engine is already running"
	msgStarted        = "Engine started successfully"
	msgStopped        = "Engine stopped successfully"
)

// ErrNotInstalled is returned by Start when the engine binary is missing.
var ErrNotInstalled = errors.New("engine binary not installed")

// ErrExitedEarly is returned by Start when the process exits with an error
// before it reports healthy.
var ErrExitedEarly = errors.New("engine exited before becoming healthy")

// ErrStartupTimeout is returned by Start when a startup deadline is
// configured and passes before the engine is healthy.
var ErrStartupTimeout = errors.New("engine not healthy before startup deadline")

// IsNotInstalled reports whether err is or wraps ErrNotInstalled.
func IsNotInstalled(err error) bool { return errors.Is(err, ErrNotInstalled) }

// IsExitedEarly reports whether err is or wraps ErrExitedEarly.
func IsExitedEarly(err error) bool { return errors.Is(err, ErrExitedEarly) }
