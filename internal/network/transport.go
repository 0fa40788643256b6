// Package network implements the byte-stream transports that carry RCON
// packets and the connection handle that tracks their state.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// Transport is a duplex byte stream to one server. Failures are reported
// as *protocol.ConnectionError. Close is safe on a closed or never-opened
// transport.
type Transport interface {
	Open(ctx context.Context, host string, port int) error
	WriteAll(ctx context.Context, b []byte) error
	ReadExact(ctx context.Context, n int) ([]byte, error)
	Close() error
}

// Transport kinds accepted by NewTransport.
const (
	KindStream = "stream"
	KindAsync  = "async"
)

// ErrTransportCorrupted is reported after an operation was abandoned midway.
// The stream position is unknown until the transport is closed and reopened.
var ErrTransportCorrupted = errors.New("transport abandoned mid-operation")

// ErrUnknownTransport is returned by NewTransport for unsupported kinds.
var ErrUnknownTransport = errors.New("unknown transport kind")

// NewTransport returns a transport of the given kind. An empty kind selects
// the stream transport.
func NewTransport(kind string) (Transport, error) {
	switch kind {
	case "", KindStream:
		return NewStreamTransport(), nil
	case KindAsync:
		return NewAsyncTransport(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// abandoned builds the error for an operation given up through ctx.
func abandoned(ctx context.Context, op string) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrTransportCorrupted, context.Cause(ctx)))
}

func writeAll(conn net.Conn, b []byte) error {
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func notConnected(op string) error {
	return protocol.NewConnectionError(op, protocol.ErrNotConnected)
}
