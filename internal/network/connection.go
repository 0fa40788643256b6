package network

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// State is the lifecycle position of a Connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Connection owns a Transport to one RCON server and tracks its state.
// It is not safe for concurrent I/O; the client serializes calls.
type Connection struct {
	mu        sync.Mutex
	transport Transport
	host      string
	port      int
	state     State
	logger    zerolog.Logger

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time
}

// NewConnection wraps transport for host:port.
func NewConnection(transport Transport, host string, port int, logger zerolog.Logger) *Connection {
	return &Connection{
		transport: transport,
		host:      host,
		port:      port,
		logger:    logger.With().Str("remote", joinHostPort(host, port)).Logger(),
	}
}

// Open closes any previous stream and opens a new one.
func (c *Connection) Open(ctx context.Context) error {
	_ = c.transport.Close()
	c.setState(StateDisconnected)

	if err := c.transport.Open(ctx, c.host, c.port); err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	c.state = StateConnected
	c.connectedAt = now
	c.lastActivity = now
	c.mu.Unlock()

	c.logger.Debug().Msg("connection opened")
	return nil
}

// MarkAuthenticated records a successful login.
func (c *Connection) MarkAuthenticated() {
	c.setState(StateAuthenticated)
}

// WritePacket encodes p and writes it.
func (c *Connection) WritePacket(ctx context.Context, p *protocol.Packet) error {
	if c.State() == StateDisconnected {
		return notConnected("write")
	}

	data, err := p.Encode()
	if err != nil {
		return err
	}

	ev := c.logger.Debug().
		Int32("packet_id", p.ID).
		Stringer("packet_type", p.Type).
		Str("message", p.LogMessage())
	if p.Type != protocol.PacketTypeAuth {
		ev = ev.Str("raw", hex.EncodeToString(data))
	}
	ev.Msg("sending message")

	if err := c.transport.WriteAll(ctx, data); err != nil {
		return err
	}
	c.touch()
	return nil
}

// ReadExact reads exactly n bytes from the transport.
func (c *Connection) ReadExact(ctx context.Context, n int) ([]byte, error) {
	if c.State() == StateDisconnected {
		return nil, notConnected("read")
	}

	data, err := c.transport.ReadExact(ctx, n)
	if err != nil {
		return nil, err
	}
	c.touch()
	return data, nil
}

// Close closes the transport and resets the state.
func (c *Connection) Close() error {
	err := c.transport.Close()
	c.setState(StateDisconnected)
	c.logger.Debug().Msg("connection closed")
	return err
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the stream is open.
func (c *Connection) IsConnected() bool {
	return c.State() != StateDisconnected
}

// Session describes the current or most recent stream.
type Session struct {
	State        State     `json:"state"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Session returns the state and the timestamps of the last read or write.
// The timestamps survive Close.
func (c *Connection) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{State: c.state, ConnectedAt: c.connectedAt, LastActivity: c.lastActivity}
}

// Addr returns host:port.
func (c *Connection) Addr() string {
	return joinHostPort(c.host, c.port)
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}
