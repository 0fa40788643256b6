package connector

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// reply is what the fake server does with one request.
type reply struct {
	frame []byte // queued for reading
	err   error  // returned from WriteAll instead
}

// fakeTransport is a scripted in-memory server.
type fakeTransport struct {
	mu sync.Mutex

	openErrs []error
	opens    int
	closes   int
	open     bool

	// handle decides the reply for every written packet.
	handle func(p protocol.Packet) reply

	packets  []protocol.Packet
	pending  []byte
	overlaps int
}

func (f *fakeTransport) Open(_ context.Context, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens++
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		if err != nil {
			return err
		}
	}
	f.open = true
	f.pending = nil
	return nil
}

func (f *fakeTransport) WriteAll(_ context.Context, b []byte) error {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return protocol.NewConnectionError("write", protocol.ErrNotConnected)
	}
	if len(f.pending) > 0 {
		f.overlaps++
	}
	p := protocol.Packet{
		ID:      int32(binary.LittleEndian.Uint32(b[4:8])),
		Type:    protocol.PacketType(binary.LittleEndian.Uint32(b[8:12])),
		Message: string(b[12 : len(b)-2]),
	}
	f.packets = append(f.packets, p)
	handle := f.handle
	f.mu.Unlock()

	r := handle(p)

	f.mu.Lock()
	defer f.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	f.pending = append(f.pending, r.frame...)
	return nil
}

func (f *fakeTransport) ReadExact(_ context.Context, n int) ([]byte, error) {
	// Give concurrent callers a chance to interleave.
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil, protocol.NewConnectionError("read", protocol.ErrNotConnected)
	}
	if len(f.pending) < n {
		return nil, protocol.NewConnectionError("read", io.ErrUnexpectedEOF)
	}
	out := append([]byte(nil), f.pending[:n]...)
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		f.closes++
	}
	f.open = false
	return nil
}

// commands returns the messages of every command packet written.
func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.packets {
		if p.Type == protocol.PacketTypeCommand {
			out = append(out, p.Message)
		}
	}
	return out
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// ok answers with msg plus the trailing newline.
func ok(p protocol.Packet, msg string) reply {
	return reply{frame: protocol.BuildResponse(p.ID, 0, msg+"\n")}
}

// acceptAuth answers auth packets and hands commands to next.
func acceptAuth(next func(p protocol.Packet) reply) func(p protocol.Packet) reply {
	return func(p protocol.Packet) reply {
		if p.Type == protocol.PacketTypeAuth {
			return reply{frame: protocol.BuildResponse(p.ID, 2, "")}
		}
		return next(p)
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *sleepRecorder) get() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

const unit = 10 * time.Millisecond

func newTestClient(tr *fakeTransport) (*Client, *sleepRecorder) {
	logger := zerolog.Nop()
	c := NewClient(Options{
		Host:          "127.0.0.1",
		Port:          25575,
		Password:      "secret",
		Transport:     tr,
		RetryInterval: unit,
		Logger:        &logger,
	})
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}
