package flowclient

import (
	"errors"
	"fmt"
)

// RemoteStartError is returned when the node rejects a start flow request
type RemoteStartError struct {
	FlowName   string
	StatusCode int
	Body       string
}

func (e *RemoteStartError) Error() string {
	return fmt.Sprintf("starting flow %s failed. Cause: %s, error code %d", e.FlowName, e.Body, e.StatusCode)
}

// RemoteQueryError is returned when the node rejects a flow outcome request
type RemoteQueryError struct {
	FlowID     string
	StatusCode int
	Body       string
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("flow %s outcome check failed. Cause: %s, error code %d", e.FlowID, e.Body, e.StatusCode)
}

// IsRemoteStartError reports whether err wraps a RemoteStartError
func IsRemoteStartError(err error) bool {
	var re *RemoteStartError
	return errors.As(err, &re)
}

// IsRemoteQueryError reports whether err wraps a RemoteQueryError
func IsRemoteQueryError(err error) bool {
	var re *RemoteQueryError
	return errors.As(err, &re)
}

// ResponseTooLargeError is returned when a response body exceeds the client's limit
type ResponseTooLargeError struct {
	URL   string
	Limit int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response from %s exceeds %d bytes", e.URL, e.Limit)
}

// IsResponseTooLarge reports whether err wraps a ResponseTooLargeError
func IsResponseTooLarge(err error) bool {
	var re *ResponseTooLargeError
	return errors.As(err, &re)
}
