// Package errs holds the client's error taxonomy.
//
// Connection and remote failures propagate to the immediate caller; configuration
// and sink failures are logged at the boundary where they occur and never abort
// the operation that produced them.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("ztc: not connected")
	ErrBusy            = errors.New("ztc: request already in flight")
	ErrTimeout         = errors.New("ztc: timed out waiting for response")
	ErrReconnectFailed = errors.New("ztc: reconnect attempts exhausted")
)

// ConnectionError reports a transport level failure (connect, disconnect, emit).
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteOperationError is an error the remote side reported for one request.
// It is not a connection fault.
type RemoteOperationError struct {
	Op      string
	Message string
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Op, e.Message)
}

// ConfigurationError reports an invalid channel name or config value.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Key, e.Reason)
}

// SinkError wraps a failure raised by the display sink.
type SinkError struct {
	EventType string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink failed for %s: %v", e.EventType, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// TimeoutError carries the operation that timed out; it matches ErrTimeout.
type TimeoutError struct {
	Op     string
	Target string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, ErrTimeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// IsRemote reports whether err carries a RemoteOperationError.
func IsRemote(err error) bool {
	var remote *RemoteOperationError
	return errors.As(err, &remote)
}
