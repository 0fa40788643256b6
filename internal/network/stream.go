package network

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// StreamTransport performs blocking I/O on the calling goroutine.
type StreamTransport struct {
	mu        sync.Mutex
	conn      net.Conn
	corrupted bool
	dialer    net.Dialer
}

// NewStreamTransport creates a closed StreamTransport.
func NewStreamTransport() *StreamTransport {
	return &StreamTransport{}
}

// Open dials host:port, replacing any previous connection.
func (t *StreamTransport) Open(ctx context.Context, host string, port int) error {
	_ = t.Close()

	conn, err := t.dialer.DialContext(ctx, "tcp", joinHostPort(host, port))
	if err != nil {
		return protocol.NewConnectionError("open", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.corrupted = false
	t.mu.Unlock()
	return nil
}

// WriteAll writes every byte of b.
func (t *StreamTransport) WriteAll(ctx context.Context, b []byte) error {
	return t.do(ctx, "write", func(conn net.Conn) error {
		return writeAll(conn, b)
	})
}

// ReadExact reads exactly n bytes.
func (t *StreamTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, n)
	err := t.do(ctx, "read", func(conn net.Conn) error {
		_, err := io.ReadFull(conn, buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the connection if one is open.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.corrupted = false
	return err
}

func (t *StreamTransport) current(op string) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, notConnected(op)
	}
	if t.corrupted {
		return nil, protocol.NewConnectionError(op, ErrTransportCorrupted)
	}
	return t.conn, nil
}

// do runs fn against the open connection. Cancelling ctx interrupts the
// blocked call by expiring the socket deadline.
func (t *StreamTransport) do(ctx context.Context, op string, fn func(net.Conn) error) error {
	conn, err := t.current(op)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_ = conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	err = fn(conn)
	interrupted := !stop()

	if err == nil {
		return nil
	}
	if interrupted || ctx.Err() != nil {
		t.mu.Lock()
		t.corrupted = true
		t.mu.Unlock()
		return abandoned(ctx, op)
	}
	return protocol.NewConnectionError(op, err)
}
