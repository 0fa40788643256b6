// Package connector drives RCON sessions: it logs in, runs commands and
// owns the retry and reconnect policy.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/energizer-project/palrcon/internal/network"
	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/util"
)

const (
	DefaultConnectAttempts     = 3
	DefaultCommandAttempts     = 1
	DefaultShowPlayersAttempts = 10
	DefaultRetryInterval       = time.Second
)

// ErrConnectFailed is matched by every *ConnectError.
var ErrConnectFailed = errors.New("failed to connect")

// ConnectError is returned once Connect has used up its attempts. It
// unwraps to ErrConnectFailed and to the last failure.
type ConnectError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnectFailed, e.Err}
}

// Options configures a Client.
type Options struct {
	Host     string
	Port     int
	Password string

	// Transport defaults to a network.StreamTransport.
	Transport network.Transport

	// RetryInterval is the backoff unit between attempts.
	RetryInterval time.Duration

	// Logger defaults to the "rcon" component logger.
	Logger *zerolog.Logger
}

// Client is an RCON session with one server. All operations are serialized:
// a command holds the lock across its write and read so replies can never
// be paired with the wrong request.
type Client struct {
	conn          *network.Connection
	password      string
	retryInterval time.Duration
	lock          *semaphore.Weighted
	logger        zerolog.Logger
	decoder       *protocol.Decoder

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	logger := util.ComponentLogger("rcon")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	transport := opts.Transport
	if transport == nil {
		transport = network.NewStreamTransport()
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	return &Client{
		conn:          network.NewConnection(transport, opts.Host, opts.Port, logger),
		password:      opts.Password,
		retryInterval: interval,
		lock:          semaphore.NewWeighted(1),
		logger:        logger,
		decoder:       protocol.NewDecoder(logger),
		sleep:         sleepContext,
	}
}

// Connect opens the transport and logs in, retrying connection and
// authentication failures with a linear backoff of attempt × RetryInterval.
// maxAttempts below 1 means 1.
func (c *Client) Connect(ctx context.Context, maxAttempts int) error {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.lock.Release(1)

	return c.connect(ctx, maxAttempts)
}

func (c *Client) connect(ctx context.Context, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.openAndAuthenticate(ctx)
		if err == nil {
			return nil
		}
		if protocol.IsContextError(err) || !protocol.IsConnectionFailure(err) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		c.logger.Debug().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Msg("connect retrying")
		if err := c.sleep(ctx, time.Duration(attempt)*c.retryInterval); err != nil {
			return err
		}
	}

	return &ConnectError{Addr: c.conn.Addr(), Attempts: maxAttempts, Err: lastErr}
}

func (c *Client) openAndAuthenticate(ctx context.Context) error {
	if err := c.conn.Open(ctx); err != nil {
		return err
	}
	if err := c.authenticate(ctx); err != nil {
		_ = c.conn.Close()
		return err
	}
	return nil
}

// ExecuteCommand sends command and classifies the reply. A leading slash is
// stripped. maxAttempts bounds retries of framing failures; connection and
// authentication failures get exactly one reconnect.
func (c *Client) ExecuteCommand(ctx context.Context, command string, maxAttempts int) (*protocol.Response, error) {
	resp, _, err := c.execute(ctx, protocol.NormalizeCommand(command), maxAttempts)
	return resp, err
}

// ExecuteArgs joins args with single spaces and runs them as one command.
func (c *Client) ExecuteArgs(ctx context.Context, args []string, maxAttempts int) (*protocol.Response, error) {
	resp, _, err := c.execute(ctx, protocol.JoinCommand(args), maxAttempts)
	return resp, err
}

func (c *Client) execute(ctx context.Context, command string, maxAttempts int) (*protocol.Response, *protocol.PlayerList, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer c.lock.Release(1)

	keyword := protocol.CommandKeyword(command)
	attempt := 1
	reconnected := false

	for attempt <= maxAttempts {
		resp, err := c.roundTrip(ctx, command)

		switch {
		case err == nil:
			return c.classify(resp, keyword)

		case protocol.IsContextError(err):
			return nil, nil, err

		case protocol.IsConnectionFailure(err):
			if reconnected {
				return nil, nil, err
			}
			c.logger.Debug().Err(err).Msg("reconnecting 1/1")
			if err := c.connect(ctx, 1); err != nil {
				return nil, nil, err
			}
			reconnected = true

		case protocol.IsFramingFailure(err):
			if attempt == maxAttempts {
				return nil, nil, err
			}
			c.logger.Debug().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", maxAttempts).
				Msg("retrying command")
			if err := c.sleep(ctx, c.retryInterval); err != nil {
				return nil, nil, err
			}
			attempt++

		default:
			return nil, nil, err
		}
	}

	return nil, nil, protocol.ErrCommandFailed
}

func (c *Client) roundTrip(ctx context.Context, command string) (*protocol.Response, error) {
	p := protocol.NewCommandPacket(command)
	if err := c.conn.WritePacket(ctx, p); err != nil {
		return nil, err
	}
	return c.decoder.Decode(ctx, c.conn, p)
}

func (c *Client) classify(resp *protocol.Response, keyword string) (*protocol.Response, *protocol.PlayerList, error) {
	var list *protocol.PlayerList
	if keyword == protocol.CmdShowPlayers {
		parsed, err := protocol.ParsePlayerList(resp)
		if err != nil {
			return nil, nil, err
		}
		resp.Successful = parsed.Successful
		list = parsed
	} else {
		protocol.Classify(resp, keyword)
	}

	c.logger.Debug().
		Str("command", keyword).
		Bool("successful", resp.Successful).
		Msg("command executed")
	return resp, list, nil
}

// Disconnect closes the session. It fails with a connection error when the
// client is not connected, including on a second call.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.lock.Release(1)

	if !c.conn.IsConnected() {
		return protocol.NewConnectionError("disconnect", protocol.ErrNotConnected)
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("close reported an error")
	}
	c.logger.Debug().Str("addr", c.conn.Addr()).Msg("disconnected")
	return nil
}

// Close disconnects if connected. It is meant for deferred cleanup.
func (c *Client) Close() error {
	err := c.Disconnect(context.Background())
	if errors.Is(err, protocol.ErrNotConnected) {
		return nil
	}
	return err
}

// State returns the connection state.
func (c *Client) State() network.State {
	return c.conn.State()
}

// Session returns the connection state and its timestamps.
func (c *Client) Session() network.Session {
	return c.conn.Session()
}

// Addr returns host:port of the server.
func (c *Client) Addr() string {
	return c.conn.Addr()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
