package download

import (
	"errors"
	"fmt"
)

// ErrTransferTimeout is the cancellation cause when a transfer receives no
// data for longer than the inactivity timeout.
var ErrTransferTimeout = errors.New("transfer timed out")

// ErrAborted is the cancellation cause for transfers of an aborted job.
var ErrAborted = errors.New("download aborted")

// TransferError reports a failed transfer of one destination.
type TransferError struct {
	JobID       string
	Destination string
	// HTTP status when the server answered with a non-2xx code.
	Status int
	Err    error
}

func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: %s: http status %d", e.JobID, e.Destination, e.Status)
	}
	return fmt.Sprintf("download %s: %s: %v", e.JobID, e.Destination, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// IsTransferTimeout reports whether err was caused by the inactivity watchdog.
func IsTransferTimeout(err error) bool { return errors.Is(err, ErrTransferTimeout) }

// IsAborted reports whether err was caused by Abort.
func IsAborted(err error) bool { return errors.Is(err, ErrAborted) }

// IsTransferError reports whether err carries a *TransferError.
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}

// invalidRequestError rejects a submission before it is registered.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return "download: " + e.msg }

// IsInvalidRequest reports whether a submission was rejected as malformed.
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}
