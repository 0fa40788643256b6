package protocol

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned when an operation needs an open connection.
	ErrNotConnected = errors.New("not connected to the server")

	// ErrAuthenticationFailed is returned when the server answers with
	// packet id -1.
	ErrAuthenticationFailed = errors.New("failed to authenticate with the server")

	// ErrInvalidPacket is returned for frames with a corrupt terminator or
	// an impossible length.
	ErrInvalidPacket = errors.New("received message is not a valid RCON packet")

	// ErrIncompleteMessage is matched by *IncompleteMessageError.
	ErrIncompleteMessage = errors.New("received message does not end with a newline")

	// ErrInvalidMessage is returned by Encode for messages that cannot be framed.
	ErrInvalidMessage = errors.New("message cannot be encoded")

	// ErrCommandFailed is the terminal error of a command loop that ran out
	// of attempts without a result.
	ErrCommandFailed = errors.New("failed to execute command")

	// ErrMalformedPlayerList is returned for player rows without exactly
	// three fields.
	ErrMalformedPlayerList = errors.New("malformed player list")
)

// ConnectionError reports that the channel is not open or closed unexpectedly.
type ConnectionError struct {
	Op  string
	Err error
}

// NewConnectionError wraps err as a connection failure of op.
func NewConnectionError(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection error: %s", e.Op)
	}
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IncompleteMessageError carries the message bytes of a reply that did not
// end with a newline.
type IncompleteMessageError struct {
	Raw []byte
}

func (e *IncompleteMessageError) Error() string {
	return fmt.Sprintf("%s (%d bytes: %q)", ErrIncompleteMessage.Error(), len(e.Raw), e.Raw)
}

// Is reports whether target is ErrIncompleteMessage.
func (e *IncompleteMessageError) Is(target error) bool {
	return target == ErrIncompleteMessage
}

// IsConnectionFailure reports whether err should trigger a reconnect.
// Authentication failures count as connection failures.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthenticationFailed) {
		return true
	}
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsFramingFailure reports whether err is a retryable framing problem.
func IsFramingFailure(err error) bool {
	return errors.Is(err, ErrInvalidPacket) || errors.Is(err, ErrIncompleteMessage)
}

// IsContextError reports whether err came from a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errorf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}
