package network_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/energizer-project/palrcon/internal/network"
	"github.com/energizer-project/palrcon/internal/protocol"
)

// listen starts a loopback listener that runs handler for every accepted
// connection and returns its host and port.
func listen(t *testing.T, handler func(net.Conn)) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %s", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func echo(conn net.Conn) {
	_, _ = io.Copy(conn, conn)
}

func forEachTransport(t *testing.T, fn func(t *testing.T, tr network.Transport)) {
	for _, kind := range []string{network.KindStream, network.KindAsync} {
		t.Run(kind, func(t *testing.T) {
			tr, err := network.NewTransport(kind)
			if err != nil {
				t.Fatalf("NewTransport(%q) failed: %s", kind, err)
			}
			t.Cleanup(func() { _ = tr.Close() })
			fn(t, tr)
		})
	}
}

func TestTransportRoundTrip(t *testing.T) {
	host, port := listen(t, echo)

	forEachTransport(t, func(t *testing.T, tr network.Transport) {
		ctx := context.Background()
		if err := tr.Open(ctx, host, port); err != nil {
			t.Fatalf("Open failed: %s", err)
		}

		want := []byte("hello rcon")
		if err := tr.WriteAll(ctx, want); err != nil {
			t.Fatalf("WriteAll failed: %s", err)
		}
		got, err := tr.ReadExact(ctx, len(want))
		if err != nil {
			t.Fatalf("ReadExact failed: %s", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Echo mismatch, got: %q, want: %q", got, want)
		}
	})
}

func TestTransportClose(t *testing.T) {
	host, port := listen(t, echo)

	forEachTransport(t, func(t *testing.T, tr network.Transport) {
		ctx := context.Background()

		if err := tr.Close(); err != nil {
			t.Fatalf("Close on a never-opened transport failed: %s", err)
		}
		if err := tr.Open(ctx, host, port); err != nil {
			t.Fatalf("Open failed: %s", err)
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("Close failed: %s", err)
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("Second Close failed: %s", err)
		}

		err := tr.WriteAll(ctx, []byte("x"))
		var connErr *protocol.ConnectionError
		if !errors.As(err, &connErr) || !errors.Is(err, protocol.ErrNotConnected) {
			t.Fatalf("Expected a not-connected ConnectionError, got: %v", err)
		}
		if _, err := tr.ReadExact(ctx, 1); !errors.Is(err, protocol.ErrNotConnected) {
			t.Fatalf("Expected a not-connected error, got: %v", err)
		}
	})
}

func TestTransportOpenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %s", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	_ = ln.Close()

	forEachTransport(t, func(t *testing.T, tr network.Transport) {
		err := tr.Open(context.Background(), host, port)
		if !protocol.IsConnectionFailure(err) {
			t.Fatalf("Expected a connection failure, got: %v", err)
		}
	})
}

func TestTransportPrematureClose(t *testing.T) {
	host, port := listen(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte{1, 2})
	})

	forEachTransport(t, func(t *testing.T, tr network.Transport) {
		ctx := context.Background()
		if err := tr.Open(ctx, host, port); err != nil {
			t.Fatalf("Open failed: %s", err)
		}
		_, err := tr.ReadExact(ctx, 4)
		if !protocol.IsConnectionFailure(err) {
			t.Fatalf("Expected a connection failure, got: %v", err)
		}
	})
}

func TestTransportAbandonedRead(t *testing.T) {
	// The server never answers.
	host, port := listen(t, func(conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	})

	forEachTransport(t, func(t *testing.T, tr network.Transport) {
		if err := tr.Open(context.Background(), host, port); err != nil {
			t.Fatalf("Open failed: %s", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := tr.ReadExact(ctx, 4)
		if !errors.Is(err, network.ErrTransportCorrupted) {
			t.Fatalf("Expected ErrTransportCorrupted, got: %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Expected the context error to be kept, got: %v", err)
		}

		// Later operations fail until the transport is reopened.
		_, err = tr.ReadExact(context.Background(), 1)
		if !protocol.IsConnectionFailure(err) || !errors.Is(err, network.ErrTransportCorrupted) {
			t.Fatalf("Expected a corrupted connection failure, got: %v", err)
		}

		if err := tr.Open(context.Background(), host, port); err != nil {
			t.Fatalf("Reopen failed: %s", err)
		}
		if err := tr.WriteAll(context.Background(), []byte("ok")); err != nil {
			t.Fatalf("WriteAll after reopen failed: %s", err)
		}
	})
}

func TestNewTransportUnknown(t *testing.T) {
	if _, err := network.NewTransport("carrier-pigeon"); !errors.Is(err, network.ErrUnknownTransport) {
		t.Fatalf("Expected ErrUnknownTransport, got: %v", err)
	}
}
