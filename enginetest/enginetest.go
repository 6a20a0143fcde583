// Package enginetest provides an in-process engine simulator for tests and
// examples. It speaks the wire envelope over any adapter.Adapter, answers the
// requests of the bundled message sets and emits interface events to
// subscribed clients.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ggoodman/vppcall-go/adapter"
	"github.com/ggoodman/vppcall-go/api"
	"github.com/ggoodman/vppcall-go/binapi/interfaces"
	"github.com/ggoodman/vppcall-go/binapi/vpe"
	"github.com/ggoodman/vppcall-go/internal/wire"
	"github.com/google/uuid"
)

// RetvalInvalidSwIfIndex is returned for requests naming an unknown interface.
const RetvalInvalidSwIfIndex int32 = -2

// Engine is a simulated engine bound to one adapter.
type Engine struct {
	a     adapter.Adapter
	codec api.Codec
	log   *slog.Logger
	id    string
	name  string
	pid   uint32

	mu            sync.Mutex
	started       bool
	eventsEnabled bool
	eventPID      uint32
	ifaces        map[uint32]interfaces.IfStatusFlags
	held          bool
	heldFrames    []*api.Frame
	requests      []api.Message
	signal        chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCodec overrides the wire codec.
func WithCodec(c api.Codec) Option {
	return func(e *Engine) {
		if c != nil {
			e.codec = c
		}
	}
}

// WithSessionName sets the session name the engine connects under. Transports
// that key sessions by name, like Redis Streams, need it to match the
// client's.
func WithSessionName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.name = name
		}
	}
}

// WithInterfaces replaces the set of known interface indices. By default the
// engine knows indices 0 and 1.
func WithInterfaces(indices ...uint32) Option {
	return func(e *Engine) {
		e.ifaces = make(map[uint32]interfaces.IfStatusFlags, len(indices))
		for _, idx := range indices {
			e.ifaces[idx] = 0
		}
	}
}

// New creates an engine on the engine side of a.
func New(a adapter.Adapter, opts ...Option) *Engine {
	e := &Engine{
		a:      a,
		codec:  wire.NewCodec(),
		log:    slog.Default(),
		id:     uuid.NewString(),
		pid:    uint32(os.Getpid()),
		ifaces: map[uint32]interfaces.IfStatusFlags{0: 0, 1: 0},
		signal: make(chan struct{}, 1),
	}
	e.name = "engine-" + e.id
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ID is a process-unique identifier of this simulator instance.
func (e *Engine) ID() string { return e.id }

// Start connects the adapter and begins answering requests.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if err := e.a.Connect(ctx, e.name, e.receive, nil); err != nil {
		return fmt.Errorf("engine connect: %w", err)
	}
	e.log.Debug("engine simulator started", slog.String("engine_id", e.id), slog.String("session", e.name))
	return nil
}

// Run starts the engine and blocks until ctx ends, then closes the adapter.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	_ = e.a.Close()
	return ctx.Err()
}

// Close closes the adapter.
func (e *Engine) Close() error { return e.a.Close() }

func (e *Engine) receive(raw []byte) {
	ctx := context.Background()
	f, err := e.codec.Decode(raw)
	if err != nil {
		code := wire.CodeParseError
		if errors.Is(err, api.ErrUnknownMessage) {
			code = wire.CodeUnsupportedMessage
		}
		e.log.Debug("engine rejected frame", slog.String("err", err.Error()))
		e.emit(ctx, &api.Frame{Kind: api.KindError, Error: &api.TransportError{Code: code, Message: err.Error()}})
		return
	}
	if f.Kind != api.KindRequest {
		e.emit(ctx, &api.Frame{Kind: api.KindError, Context: f.Context, Error: &api.TransportError{
			Code:    wire.CodeInvalidPayload,
			Message: fmt.Sprintf("engine accepts requests only, got %s", f.Kind),
		}})
		return
	}

	e.mu.Lock()
	e.requests = append(e.requests, f.Message)
	e.mu.Unlock()
	select {
	case e.signal <- struct{}{}:
	default:
	}

	for _, out := range e.handle(f) {
		e.emit(ctx, out)
	}
}

func (e *Engine) handle(f *api.Frame) []*api.Frame {
	reply := func(m api.Message) *api.Frame {
		return &api.Frame{Kind: api.KindReply, Context: f.Context, Message: m}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch req := f.Message.(type) {
	case *interfaces.WantInterfaceEvents:
		e.eventsEnabled = req.EnableDisable != 0
		e.eventPID = req.PID
		return []*api.Frame{reply(&interfaces.WantInterfaceEventsReply{})}

	case *interfaces.SwInterfaceSetFlags:
		if _, ok := e.ifaces[req.SwIfIndex]; !ok {
			return []*api.Frame{reply(&interfaces.SwInterfaceSetFlagsReply{Retval: RetvalInvalidSwIfIndex})}
		}
		e.ifaces[req.SwIfIndex] = req.Flags
		out := []*api.Frame{reply(&interfaces.SwInterfaceSetFlagsReply{})}
		if e.eventsEnabled {
			out = append(out, &api.Frame{Kind: api.KindNotification, Message: &interfaces.SwInterfaceEvent{
				PID:       e.eventPID,
				SwIfIndex: req.SwIfIndex,
				Flags:     req.Flags,
			}})
		}
		return out

	case *vpe.ControlPing:
		return []*api.Frame{reply(&vpe.ControlPingReply{VpePID: e.pid})}

	case *vpe.ShowVersion:
		return []*api.Frame{reply(&vpe.ShowVersionReply{
			Program:   "vpp-sim",
			Version:   "24.10-sim",
			BuildDate: time.Unix(0, 0).UTC().Format(time.RFC3339),
		})}

	default:
		return []*api.Frame{{Kind: api.KindError, Context: f.Context, Error: &api.TransportError{
			Code:    wire.CodeUnsupportedMessage,
			Message: fmt.Sprintf("unsupported request %s", f.Name),
		}}}
	}
}

func (e *Engine) emit(ctx context.Context, f *api.Frame) {
	e.mu.Lock()
	if e.held {
		e.heldFrames = append(e.heldFrames, f)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if err := e.SendFrame(ctx, f); err != nil {
		e.log.Debug("engine send failed", slog.String("err", err.Error()))
	}
}

// Hold queues every outbound frame produced in answer to requests until
// Release is called.
func (e *Engine) Hold() {
	e.mu.Lock()
	e.held = true
	e.mu.Unlock()
}

// Release sends the queued frames in order and stops holding.
func (e *Engine) Release(ctx context.Context) error {
	e.mu.Lock()
	frames := e.heldFrames
	e.heldFrames = nil
	e.held = false
	e.mu.Unlock()

	for _, f := range frames {
		if err := e.SendFrame(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// Held returns the frames currently queued by Hold.
func (e *Engine) Held() []*api.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*api.Frame(nil), e.heldFrames...)
}

// Emit sends a notification regardless of subscription state, the way a
// live engine may race a disable request.
func (e *Engine) Emit(ctx context.Context, msg api.Message) error {
	return e.SendFrame(ctx, &api.Frame{Kind: api.KindNotification, Message: msg})
}

// SendFrame encodes and sends an arbitrary frame.
func (e *Engine) SendFrame(ctx context.Context, f *api.Frame) error {
	b, err := e.codec.Encode(f)
	if err != nil {
		return err
	}
	return e.a.Send(ctx, b)
}

// SendRaw sends bytes without encoding them.
func (e *Engine) SendRaw(ctx context.Context, b []byte) error {
	return e.a.Send(ctx, b)
}

// Requests returns every request received so far.
func (e *Engine) Requests() []api.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.Message(nil), e.requests...)
}

// WaitRequests blocks until at least n requests arrived or the timeout
// elapsed, and returns what was received.
func (e *Engine) WaitRequests(n int, timeout time.Duration) []api.Message {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if reqs := e.Requests(); len(reqs) >= n {
			return reqs
		}
		select {
		case <-e.signal:
		case <-deadline.C:
			return e.Requests()
		}
	}
}

// EventsEnabled reports whether a client currently subscribes to interface
// events.
func (e *Engine) EventsEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eventsEnabled
}

// InterfaceFlags returns the flags last set on an interface.
func (e *Engine) InterfaceFlags(idx uint32) (interfaces.IfStatusFlags, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.ifaces[idx]
	return f, ok
}
