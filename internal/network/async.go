package network

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/energizer-project/palrcon/internal/protocol"
)

type asyncOpKind int

const (
	opDial asyncOpKind = iota
	opWrite
	opRead
)

type asyncOp struct {
	kind  asyncOpKind
	ctx   context.Context
	addr  string
	data  []byte
	n     int
	reply chan asyncResult
}

type asyncResult struct {
	data []byte
	err  error
}

// AsyncTransport hands every operation to a single I/O goroutine that owns
// the socket. Callers suspend until the goroutine answers or their context
// ends. A call abandoned through its context marks the session corrupted.
type AsyncTransport struct {
	mu     sync.Mutex
	sess   *asyncSession
	dialer net.Dialer
}

// NewAsyncTransport creates a closed AsyncTransport.
func NewAsyncTransport() *AsyncTransport {
	return &AsyncTransport{}
}

// asyncSession lives from Open to Close.
type asyncSession struct {
	ops       chan asyncOp
	quit      chan struct{}
	quitOnce  sync.Once
	corrupted atomic.Bool
	dialer    *net.Dialer

	connMu sync.Mutex
	conn   net.Conn
}

// Open starts a new I/O goroutine and dials host:port on it.
func (t *AsyncTransport) Open(ctx context.Context, host string, port int) error {
	_ = t.Close()

	s := &asyncSession{
		ops:    make(chan asyncOp),
		quit:   make(chan struct{}),
		dialer: &t.dialer,
	}
	go s.run()

	if _, err := s.submit(ctx, asyncOp{kind: opDial, addr: joinHostPort(host, port)}, "open"); err != nil {
		s.stop()
		return err
	}

	t.mu.Lock()
	t.sess = s
	t.mu.Unlock()
	return nil
}

// WriteAll writes every byte of b.
func (t *AsyncTransport) WriteAll(ctx context.Context, b []byte) error {
	s := t.session()
	if s == nil {
		return notConnected("write")
	}
	_, err := s.submit(ctx, asyncOp{kind: opWrite, data: b}, "write")
	return err
}

// ReadExact reads exactly n bytes.
func (t *AsyncTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	s := t.session()
	if s == nil {
		return nil, notConnected("read")
	}
	return s.submit(ctx, asyncOp{kind: opRead, n: n}, "read")
}

// Close stops the I/O goroutine and closes the socket.
func (t *AsyncTransport) Close() error {
	t.mu.Lock()
	s := t.sess
	t.sess = nil
	t.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.stop()
}

func (t *AsyncTransport) session() *asyncSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess
}

// submit queues op and suspends until it completes or ctx ends.
func (s *asyncSession) submit(ctx context.Context, op asyncOp, name string) ([]byte, error) {
	op.ctx = ctx
	op.reply = make(chan asyncResult, 1)

	select {
	case s.ops <- op:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-s.quit:
		return nil, protocol.NewConnectionError(name, net.ErrClosed)
	}

	select {
	case res := <-op.reply:
		if res.err != nil {
			return nil, s.wrap(name, res.err)
		}
		return res.data, nil
	case <-ctx.Done():
		s.corrupted.Store(true)
		s.interrupt()
		return nil, abandoned(ctx, name)
	case <-s.quit:
		return nil, protocol.NewConnectionError(name, net.ErrClosed)
	}
}

func (s *asyncSession) wrap(name string, err error) error {
	if _, ok := err.(*protocol.ConnectionError); ok {
		return err
	}
	return protocol.NewConnectionError(name, err)
}

// run is the I/O goroutine.
func (s *asyncSession) run() {
	for {
		select {
		case op := <-s.ops:
			data, err := s.handle(op)
			op.reply <- asyncResult{data: data, err: err}
		case <-s.quit:
			return
		}
	}
}

func (s *asyncSession) handle(op asyncOp) ([]byte, error) {
	if op.kind == opDial {
		conn, err := s.dialer.DialContext(op.ctx, "tcp", op.addr)
		if err != nil {
			return nil, err
		}
		s.connMu.Lock()
		defer s.connMu.Unlock()
		select {
		case <-s.quit:
			_ = conn.Close()
			return nil, net.ErrClosed
		default:
		}
		s.conn = conn
		return nil, nil
	}

	if s.corrupted.Load() {
		return nil, ErrTransportCorrupted
	}
	conn := s.current()
	if conn == nil {
		return nil, protocol.ErrNotConnected
	}

	switch op.kind {
	case opWrite:
		return nil, writeAll(conn, op.data)
	case opRead:
		buf := make([]byte, op.n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return nil, nil
}

func (s *asyncSession) current() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// interrupt unblocks an in-flight socket call.
func (s *asyncSession) interrupt() {
	if conn := s.current(); conn != nil {
		_ = conn.SetDeadline(time.Unix(1, 0))
	}
}

func (s *asyncSession) stop() error {
	var err error
	s.quitOnce.Do(func() {
		close(s.quit)
		s.connMu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
	})
	return err
}
