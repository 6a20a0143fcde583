// Package memory provides an in-process adapter.Adapter pair connected by
// buffered channels. It is suitable for tests and for running the engine
// simulator inside the client process.
package memory

import (
	"context"
	"sync"

	"github.com/ggoodman/vppcall-go/adapter"
)

const defaultBuffer = 256

// Endpoint is one side of a Pipe.
type Endpoint struct {
	peer  *Endpoint
	inbox chan []byte

	mu        sync.Mutex
	connected bool
	closed    bool
	done      chan struct{}
	stopped   chan struct{}
}

// Option customizes a Pipe.
type Option func(*pipeConfig)

type pipeConfig struct{ buffer int }

// WithBuffer sets how many frames may be queued towards each side before
// Send blocks.
func WithBuffer(n int) Option {
	return func(c *pipeConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// NewPipe returns two connected endpoints. Frames sent on one are received
// by the other.
func NewPipe(opts ...Option) (client, engine *Endpoint) {
	cfg := pipeConfig{buffer: defaultBuffer}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	client = newEndpoint(cfg.buffer)
	engine = newEndpoint(cfg.buffer)
	client.peer = engine
	engine.peer = client
	return client, engine
}

func newEndpoint(buffer int) *Endpoint {
	return &Endpoint{
		inbox:   make(chan []byte, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Connect implements adapter.Adapter.Connect.
func (e *Endpoint) Connect(ctx context.Context, name string, recv adapter.ReceiveFunc, lost adapter.LostFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return adapter.ErrClosed
	}
	if e.connected {
		return nil
	}
	e.connected = true
	go e.deliver(recv, lost)
	return nil
}

func (e *Endpoint) deliver(recv adapter.ReceiveFunc, lost adapter.LostFunc) {
	defer close(e.stopped)
	for {
		select {
		case frame := <-e.inbox:
			if e.isDone() {
				return
			}
			recv(frame)
		case <-e.done:
			return
		case <-e.peer.done:
			// Frames the peer queued before closing are still delivered.
			for drained := false; !drained; {
				select {
				case frame := <-e.inbox:
					if e.isDone() {
						return
					}
					recv(frame)
				default:
					drained = true
				}
			}
			if lost != nil && !e.isDone() {
				lost(adapter.ErrPeerClosed)
			}
			return
		}
	}
}

func (e *Endpoint) isDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Send implements adapter.Adapter.Send.
func (e *Endpoint) Send(ctx context.Context, frame []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return adapter.ErrClosed
	}

	select {
	case <-e.peer.done:
		return adapter.ErrClosed
	default:
	}

	data := append([]byte(nil), frame...)
	select {
	case e.peer.inbox <- data:
		return nil
	case <-e.peer.done:
		return adapter.ErrClosed
	case <-e.done:
		return adapter.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements adapter.Adapter.Close. Frames still queued towards this
// endpoint are discarded.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)
	return nil
}

// Stopped is closed once the delivery goroutine has exited, after a local
// Close or once the peer has closed. It never closes for an endpoint that was
// not connected.
func (e *Endpoint) Stopped() <-chan struct{} { return e.stopped }

var _ adapter.Adapter = (*Endpoint)(nil)
