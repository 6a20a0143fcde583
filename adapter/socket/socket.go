// Package socket provides an adapter.Adapter over a unix stream socket.
// Frames are length-prefixed with a 4-byte big-endian size.
package socket

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ggoodman/vppcall-go/adapter"
)

// DefaultPath is where the engine listens by default.
const DefaultPath = "/run/vpp/api.sock"

// MaxFrameSize bounds a single frame in either direction.
const MaxFrameSize = 16 << 20

const headerSize = 4

// ErrFrameTooLarge reports a frame above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// Adapter is a unix socket adapter. Use New to dial on Connect, or FromConn
// to wrap an established connection (e.g. one accepted by an engine).
type Adapter struct {
	path        string
	waitTimeout time.Duration
	log         *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	writeMu sync.Mutex
	w       *bufio.Writer
	done    chan struct{}

	started bool
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithWaitTimeout makes Connect wait up to d for the socket file to appear
// before dialing.
func WithWaitTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.waitTimeout = d
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// New returns an adapter that dials path on Connect.
func New(path string, opts ...Option) *Adapter {
	if path == "" {
		path = DefaultPath
	}
	a := &Adapter{path: path, log: slog.Default(), done: make(chan struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// FromConn wraps an established connection.
func FromConn(conn net.Conn, opts ...Option) *Adapter {
	label := conn.LocalAddr().String()
	if label == "" {
		label = conn.RemoteAddr().String()
	}
	a := New(label, opts...)
	a.conn = conn
	a.w = bufio.NewWriter(conn)
	return a
}

// Connect implements adapter.Adapter.Connect.
func (a *Adapter) Connect(ctx context.Context, name string, recv adapter.ReceiveFunc, lost adapter.LostFunc) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return adapter.ErrClosed
	}
	if a.started {
		a.mu.Unlock()
		return nil
	}
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		if a.waitTimeout > 0 {
			wctx, cancel := context.WithTimeout(ctx, a.waitTimeout)
			err := WaitForSocket(wctx, a.path)
			cancel()
			if err != nil {
				return fmt.Errorf("wait for %s: %w", a.path, err)
			}
		}
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", a.path)
		if err != nil {
			return fmt.Errorf("dial %s: %w", a.path, err)
		}
		conn = c
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = conn.Close()
		return adapter.ErrClosed
	}
	a.conn = conn
	if a.w == nil {
		a.w = bufio.NewWriter(conn)
	}
	a.started = true
	a.mu.Unlock()

	a.log.Debug("socket connected", slog.String("session", name), slog.String("path", a.path))
	go a.readLoop(conn, recv, lost)
	return nil
}

func (a *Adapter) readLoop(conn net.Conn, recv adapter.ReceiveFunc, lost adapter.LostFunc) {
	r := bufio.NewReader(conn)
	var hdr [headerSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			a.readFailed(err, lost)
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > MaxFrameSize {
			a.log.Warn("closing socket on oversized frame", slog.Uint64("size", uint64(n)))
			if a.isClosed() {
				return
			}
			_ = a.Close()
			if lost != nil {
				lost(fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n))
			}
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			a.readFailed(err, lost)
			return
		}
		select {
		case <-a.done:
			return
		default:
		}
		recv(frame)
	}
}

func (a *Adapter) readFailed(err error, lost adapter.LostFunc) {
	select {
	case <-a.done:
		return
	default:
	}
	if errors.Is(err, io.EOF) {
		a.log.Debug("socket closed by peer", slog.String("path", a.path))
		err = adapter.ErrPeerClosed
	} else {
		a.log.Warn("socket read failed", slog.String("path", a.path), slog.String("err", err.Error()))
	}
	if lost != nil {
		lost(err)
	}
}

// Send implements adapter.Adapter.Send.
func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	a.mu.Lock()
	closed, started, conn := a.closed, a.started, a.conn
	a.mu.Unlock()
	if closed {
		return adapter.ErrClosed
	}
	if !started {
		return adapter.ErrNotConnected
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}

	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := a.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := a.w.Write(frame); err != nil {
		return err
	}
	if err := a.w.Flush(); err != nil {
		if a.isClosed() {
			return adapter.ErrClosed
		}
		return err
	}
	return nil
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Close implements adapter.Adapter.Close.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.done)
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
