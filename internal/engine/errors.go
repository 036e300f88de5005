package engine

import "errors"

// engineNotFoundError is returned for names outside the known engine set.
type engineNotFoundError struct{ name string }

func (e engineNotFoundError) Error() string { return "engine not found: " + e.name }

// ErrEngineNotFound constructs an engineNotFoundError.
func ErrEngineNotFound(name string) error { return engineNotFoundError{name: name} }

// IsEngineNotFound reports whether err indicates an unknown engine.
func IsEngineNotFound(err error) bool {
	var e engineNotFoundError
	return errors.As(err, &e)
}

// installInProgressError signals that a download for the same asset is
// already active.
type installInProgressError struct{ name string }

func (e installInProgressError) Error() string { return "install already in progress: " + e.name }

// IsInstallInProgress reports whether err indicates a concurrent install.
func IsInstallInProgress(err error) bool {
	var e installInProgressError
	return errors.As(err, &e)
}
