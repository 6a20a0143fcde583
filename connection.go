package vppcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/vppcall-go/adapter"
	"github.com/ggoodman/vppcall-go/api"
	"github.com/ggoodman/vppcall-go/internal/dispatch"
	"github.com/ggoodman/vppcall-go/internal/logctx"
	"github.com/ggoodman/vppcall-go/internal/wire"
	"github.com/google/uuid"
)

type state int

const (
	stateUnopened state = iota
	stateOpen
	// stateLost is an open connection whose transport failed. Only Close
	// is accepted.
	stateLost
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateOpen:
		return "open"
	case stateLost:
		return "lost"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection is one logical session with the engine. It is created
// unopened, becomes usable after Open and is finished after Close; it
// cannot be reopened. A connection whose transport fails is lost: its
// pending calls are resolved with api.ErrTransportLost and it must still be
// closed.
type Connection struct {
	id          string
	adapter     adapter.Adapter
	codec       api.Codec
	log         *slog.Logger
	callTimeout time.Duration
	observer    Observer

	// mu guards the lifecycle. It is never held across a transport send or
	// a handler invocation.
	mu    sync.RWMutex
	state state
	name  string
	conn  *logctx.ConnectionData
	caps  capabilities
	d     *dispatch.Dispatcher
}

// New creates an unopened connection over a.
func New(a adapter.Adapter, opts ...Option) *Connection {
	c := &Connection{
		id:      uuid.NewString(),
		adapter: a,
		codec:   wire.NewCodec(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = logctx.Wrap(c.log)
	return c
}

// Open creates a connection over a and opens it.
func Open(ctx context.Context, a adapter.Adapter, name string, handler any, opts ...Option) (*Connection, error) {
	c := New(a, opts...)
	if err := c.Open(ctx, name, handler); err != nil {
		return nil, err
	}
	return c, nil
}

// ID is the process-unique identifier of the connection.
func (c *Connection) ID() string { return c.id }

// Name is the session name given to Open.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Open connects the transport under the session name and binds handler as
// the receiver of every reply, notification and error of this connection.
// A failed Open leaves the connection unopened.
func (c *Connection) Open(ctx context.Context, name string, handler any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateUnopened {
		return fmt.Errorf("%w: open on %s connection", ErrInvalidState, c.state)
	}

	caps := bindCapabilities(handler)
	if caps.empty() {
		return fmt.Errorf("%w: %T", ErrNoCapabilities, handler)
	}

	connData := &logctx.ConnectionData{ID: c.id, Name: name}
	d := dispatch.New(dispatch.Config{
		Codec:       c.codec,
		Send:        c.adapter.Send,
		Sink:        caps.onError,
		CallTimeout: c.callTimeout,
		Logger:      c.log,
		Conn:        connData,
		Observer:    c.observer,
	})
	if caps.onError == nil {
		caps.onError = func(err *api.CallbackError) { c.logError(connData, err) }
	}

	if err := c.adapter.Connect(ctx, name, d.Dispatch, c.transportLost); err != nil {
		return fmt.Errorf("connect %q: %w", name, err)
	}

	c.name = name
	c.conn = connData
	c.caps = caps
	c.d = d
	c.state = stateOpen

	c.log.InfoContext(logctx.WithConnection(ctx, connData), "connection opened",
		slog.Int("reply_capabilities", len(caps.replies)),
		slog.Int("notification_capabilities", len(caps.notifications)),
	)
	return nil
}

// Send dispatches req without waiting for its reply. The returned Call is
// resolved when the reply, an engine error, a timeout or Close reaches the
// handler. Only precondition failures are returned here; transport and
// encoding failures are delivered to the handler's error callback.
func (c *Connection) Send(ctx context.Context, req api.Request) (*Call, error) {
	if req == nil {
		return nil, errors.New("vppcall: nil request")
	}

	call, d, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	// The transport send may block; Close must still be able to run.
	if err := d.Submit(ctx, call); err != nil {
		if errors.Is(err, dispatch.ErrClosed) {
			return nil, fmt.Errorf("%w: send on closed connection", ErrInvalidState)
		}
		return nil, err
	}
	return &Call{c: call}, nil
}

func (c *Connection) prepare(req api.Request) (*dispatch.Call, *dispatch.Dispatcher, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateOpen {
		return nil, nil, fmt.Errorf("%w: send on %s connection", ErrInvalidState, c.state)
	}

	onReply, ok := c.caps.replies[req.ReplyName()]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s reply to %s", ErrMissingCapability, req.ReplyName(), req.MessageName())
	}

	var notify map[string]func(api.Message)
	if sr, ok := req.(api.SubscriptionRequest); ok && sr.Subscribe() {
		notify = make(map[string]func(api.Message), len(sr.Notifications()))
		for _, name := range sr.Notifications() {
			deliver, ok := c.caps.notifications[name]
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s notification enabled by %s", ErrMissingCapability, name, req.MessageName())
			}
			notify[name] = deliver
		}
	}
	return dispatch.NewCall(req, onReply, c.caps.onError, notify), c.d, nil
}

// transportLost is installed as the adapter's lost callback.
func (c *Connection) transportLost(err error) {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return
	}
	c.state = stateLost
	d := c.d
	connData := c.conn
	c.mu.Unlock()

	failed := d.Fail(err)
	c.log.WarnContext(logctx.WithConnection(context.Background(), connData), "transport lost",
		slog.Int("failed_calls", failed),
		slog.String("err", err.Error()),
	)
}

// Close cancels every pending call with api.ErrCancelledByClose, clears all
// subscriptions and closes the transport. The cancellations have been
// delivered when Close returns. Frames arriving after Close has begun are
// dropped; a notification the delivery goroutine had already routed may
// still complete its callback while Close runs.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state != stateOpen && c.state != stateLost {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: close on %s connection", ErrInvalidState, st)
	}
	c.state = stateClosed
	d := c.d
	connData := c.conn
	d.Stop()
	c.mu.Unlock()

	cancelled := d.Close()
	err := c.adapter.Close()

	ctx := logctx.WithConnection(context.Background(), connData)
	c.log.InfoContext(ctx, "connection closed", slog.Int("cancelled_calls", cancelled))
	if err != nil && !errors.Is(err, adapter.ErrClosed) {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Stats is a point-in-time view of a connection's bookkeeping.
type Stats struct {
	State string
	// Pending is the number of calls awaiting resolution.
	Pending int
	// Subscriptions lists the enabled notification names, sorted.
	Subscriptions []string
}

// Stats reports the connection's current bookkeeping.
func (c *Connection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Stats{State: c.state.String()}
	if c.d != nil {
		st.Pending = c.d.Pending()
		st.Subscriptions = c.d.Subscriptions()
	}
	return st
}

func (c *Connection) logError(connData *logctx.ConnectionData, err *api.CallbackError) {
	ctx := logctx.WithConnection(context.Background(), connData)
	c.log.WarnContext(ctx, "unhandled callback error",
		slog.String("method", err.Method),
		slog.Uint64("context", err.Context),
		slog.String("err", err.Error()),
	)
}

// Call is the acknowledgement future of one sent request.
type Call struct {
	c *dispatch.Call
}

// ID is the context id the request was sent with.
func (c *Call) ID() uint64 { return c.c.ID }

// Done is closed once the call has been resolved and the handler has been
// invoked for it.
func (c *Call) Done() <-chan struct{} { return c.c.Done() }

// Err is nil after a successful reply and a *api.CallbackError otherwise.
// It is only meaningful once Done is closed.
func (c *Call) Err() error { return c.c.Err() }
