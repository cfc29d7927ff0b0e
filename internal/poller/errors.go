package poller

import (
	"errors"
	"fmt"

	"github.com/mavleo96/notary-doublespend/internal/models"
)

// PollTimeoutError is returned when every attempt of the budget saw a non-terminal status
type PollTimeoutError struct {
	Handle   models.OperationHandle
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("flow %s did not complete after %d attempts", e.Handle, e.Attempts)
}

// RemoteOperationFailedError is returned when the remote flow reached the failed state
type RemoteOperationFailedError struct {
	Handle  models.OperationHandle
	Failure *models.ExceptionDigest
}

func (e *RemoteOperationFailedError) Error() string {
	return fmt.Sprintf("flow %s failed: %s", e.Handle, e.Failure)
}

// IsPollTimeout reports whether err wraps a PollTimeoutError
func IsPollTimeout(err error) bool {
	var pe *PollTimeoutError
	return errors.As(err, &pe)
}

// IsRemoteFailure reports whether err wraps a RemoteOperationFailedError
func IsRemoteFailure(err error) bool {
	var re *RemoteOperationFailedError
	return errors.As(err, &re)
}
