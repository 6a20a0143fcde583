// Package dispatch is the callback-dispatch registry behind a connection:
// it allocates context ids, tracks pending calls and notification
// subscriptions, and routes every inbound frame to the call, subscriber or
// error sink it belongs to.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ggoodman/vppcall-go/api"
	"github.com/ggoodman/vppcall-go/internal/logctx"
)

// ErrClosed is returned by Submit once Close has begun.
var ErrClosed = errors.New("dispatcher closed")

// SendFunc hands an encoded frame to the transport.
type SendFunc func(ctx context.Context, frame []byte) error

// Config wires a Dispatcher to its collaborators.
type Config struct {
	Codec api.Codec
	Send  SendFunc
	// Sink receives errors with no call identity. When nil they are logged.
	Sink func(*api.CallbackError)
	// CallTimeout bounds the lifetime of each pending call. Zero disables it.
	CallTimeout time.Duration
	Logger      *slog.Logger
	// Conn annotates log records with the owning connection.
	Conn *logctx.ConnectionData
	// Observer is optional.
	Observer Observer
}

// Dispatcher correlates requests with replies and demultiplexes inbound
// frames. It never blocks on handlers beyond invoking them inline on the
// goroutine that delivers frames.
type Dispatcher struct {
	codec   api.Codec
	send    SendFunc
	sink    func(*api.CallbackError)
	timeout time.Duration
	log     *slog.Logger
	conn    *logctx.ConnectionData
	obs     Observer

	alloc   Allocator
	pending *PendingTable
	subs    *Subscriptions

	closed  atomic.Bool
	drained atomic.Bool
}

func New(cfg Config) *Dispatcher {
	conn := cfg.Conn
	if conn == nil {
		conn = &logctx.ConnectionData{}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Dispatcher{
		obs:     obs,
		codec:   cfg.Codec,
		send:    cfg.Send,
		sink:    cfg.Sink,
		timeout: cfg.CallTimeout,
		log:     logctx.Wrap(cfg.Logger),
		conn:    conn,
		pending: NewPendingTable(),
		subs:    NewSubscriptions(),
	}
}

// Submit assigns a context id to c, records it as pending and sends the
// encoded request. Only bookkeeping failures are returned; encode and
// transport failures resolve the call through its error handler on another
// goroutine. Submit may block in the transport and must not be called with
// locks held that Close or Stop need.
func (d *Dispatcher) Submit(ctx context.Context, c *Call) error {
	if d.closed.Load() {
		return ErrClosed
	}

	c.ID = d.alloc.Next()
	if err := d.pending.Insert(c); err != nil {
		d.log.ErrorContext(d.logContext(ctx, c.Request.MessageName(), c.ID, api.KindRequest), "pending call table is inconsistent", slog.String("err", err.Error()))
		return err
	}
	if d.closed.Load() {
		// Close raced the insert. Whoever takes the call resolves it.
		if _, ok := d.pending.Take(c.ID); ok {
			return ErrClosed
		}
		return nil
	}
	d.obs.CallSent(c.Request.MessageName())
	if d.timeout > 0 {
		id := c.ID
		c.armTimer(d.timeout, func() { d.expire(id) })
	}

	data, err := d.codec.Encode(&api.Frame{Kind: api.KindRequest, Context: c.ID, Message: c.Request})
	if err != nil {
		d.failAsync(c.ID, fmt.Errorf("%w: encode: %w", api.ErrSendFailed, err))
		return nil
	}
	if err := d.send(ctx, data); err != nil {
		d.failAsync(c.ID, fmt.Errorf("%w: %w", api.ErrSendFailed, err))
		return nil
	}

	d.log.DebugContext(d.logContext(ctx, c.Request.MessageName(), c.ID, api.KindRequest), "request sent")
	return nil
}

// Dispatch routes one inbound frame. It is meant to be installed as the
// transport's receive callback.
func (d *Dispatcher) Dispatch(data []byte) {
	ctx := logctx.WithConnection(context.Background(), d.conn)
	if d.closed.Load() {
		d.log.DebugContext(ctx, "dropping frame received after close")
		return
	}

	f, err := d.codec.Decode(data)
	if err != nil {
		d.report(ctx, &api.CallbackError{Err: fmt.Errorf("%w: %w", api.ErrProtocol, err)})
		return
	}

	switch f.Kind {
	case api.KindReply:
		d.dispatchReply(ctx, f)
	case api.KindNotification:
		d.dispatchNotification(ctx, f)
	case api.KindError:
		d.dispatchError(ctx, f)
	default:
		d.report(ctx, &api.CallbackError{
			Method:  f.Name,
			Context: f.Context,
			Err:     fmt.Errorf("%w: unexpected %s frame %s", api.ErrProtocol, f.Kind, f.Name),
		})
	}
}

func (d *Dispatcher) dispatchReply(ctx context.Context, f *api.Frame) {
	ctx = d.logContext(ctx, f.Name, f.Context, f.Kind)

	c, ok := d.pending.Take(f.Context)
	if !ok {
		d.report(ctx, &api.CallbackError{Method: f.Name, Context: f.Context, Err: api.ErrUnmatchedReply})
		return
	}

	if want := c.Request.ReplyName(); f.Name != want {
		d.obs.CallResolved(c.Request.MessageName(), OutcomeUnexpectedReply)
		c.fail(0, fmt.Errorf("%w: got %s, want %s", api.ErrUnexpectedReply, f.Name, want))
		return
	}
	if rv, ok := f.Message.(api.RetvalReply); ok && rv.GetRetval() != 0 {
		d.log.DebugContext(ctx, "reply carries error code", slog.Int("retval", int(rv.GetRetval())))
		d.obs.CallResolved(c.Request.MessageName(), OutcomeRetval)
		c.fail(rv.GetRetval(), api.ErrRetval)
		return
	}
	if sr, ok := c.Request.(api.SubscriptionRequest); ok {
		d.applySubscription(ctx, sr, c)
	}

	d.log.DebugContext(ctx, "reply delivered")
	d.obs.CallResolved(c.Request.MessageName(), OutcomeReply)
	c.succeed(f.Message)
}

func (d *Dispatcher) applySubscription(ctx context.Context, sr api.SubscriptionRequest, c *Call) {
	for _, name := range sr.Notifications() {
		if !sr.Subscribe() {
			d.subs.Disable(name)
			d.log.DebugContext(ctx, "notifications disabled", slog.String("notification", name))
			continue
		}
		deliver, ok := c.notify[name]
		if !ok {
			d.log.WarnContext(ctx, "no delivery bound for notification", slog.String("notification", name))
			continue
		}
		if !d.subs.Enable(name, deliver) {
			d.log.DebugContext(ctx, "notifications not enabled after close", slog.String("notification", name))
			continue
		}
		d.log.DebugContext(ctx, "notifications enabled", slog.String("notification", name))
	}
}

func (d *Dispatcher) dispatchNotification(ctx context.Context, f *api.Frame) {
	ctx = d.logContext(ctx, f.Name, f.Context, f.Kind)

	deliver, ok := d.subs.Route(f.Name)
	if !ok {
		// Expected while a disable request is in flight.
		d.log.DebugContext(ctx, "dropping notification without subscriber")
		d.obs.NotificationDropped(f.Name)
		return
	}
	if d.closed.Load() {
		d.log.DebugContext(ctx, "dropping notification during close")
		d.obs.NotificationDropped(f.Name)
		return
	}
	d.obs.NotificationDelivered(f.Name)
	deliver(f.Message)
}

func (d *Dispatcher) dispatchError(ctx context.Context, f *api.Frame) {
	ctx = d.logContext(ctx, f.Name, f.Context, f.Kind)
	if f.Error == nil {
		f.Error = &api.TransportError{Message: "error frame without details"}
	}

	if f.Context == 0 {
		d.report(ctx, &api.CallbackError{Code: f.Error.Code, Err: f.Error})
		return
	}
	c, ok := d.pending.Take(f.Context)
	if !ok {
		d.report(ctx, &api.CallbackError{
			Context: f.Context,
			Code:    f.Error.Code,
			Err:     fmt.Errorf("%w: %w", api.ErrUnmatchedError, f.Error),
		})
		return
	}
	d.obs.CallResolved(c.Request.MessageName(), OutcomeEngineError)
	c.fail(f.Error.Code, f.Error)
}

func (d *Dispatcher) expire(id uint64) {
	c, ok := d.pending.Take(id)
	if !ok {
		return
	}
	ctx := d.logContext(context.Background(), c.Request.MessageName(), id, api.KindRequest)
	d.log.WarnContext(ctx, "call timed out", slog.Duration("timeout", d.timeout))
	d.obs.CallResolved(c.Request.MessageName(), OutcomeTimeout)
	c.fail(0, api.ErrCallTimeout)
}

// failAsync resolves a call that never reached the engine. The handler runs
// on its own goroutine so the caller of Submit never observes a callback.
func (d *Dispatcher) failAsync(id uint64, err error) {
	c, ok := d.pending.Take(id)
	if !ok {
		return
	}
	d.log.WarnContext(d.logContext(context.Background(), c.Request.MessageName(), id, api.KindRequest), "request not sent", slog.String("err", err.Error()))
	d.obs.CallResolved(c.Request.MessageName(), OutcomeSendFailed)
	go c.fail(0, err)
}

func (d *Dispatcher) report(ctx context.Context, err *api.CallbackError) {
	if d.sink == nil {
		d.log.WarnContext(ctx, "unhandled dispatch error", slog.String("err", err.Error()))
		return
	}
	d.log.DebugContext(ctx, "dispatch error", slog.String("err", err.Error()))
	d.sink(err)
}

// Stop refuses new calls, drops inbound frames and clears all subscriptions
// without resolving anything. It never invokes a handler, so it is safe to
// call with the owner's locks held. A notification already past its routing
// check when Stop runs is still delivered.
func (d *Dispatcher) Stop() {
	d.closed.Store(true)
	d.subs.Close()
}

// Close stops the dispatcher and cancels every pending call with
// api.ErrCancelledByClose. It returns the number of calls cancelled. Only the
// first of Close and Fail resolves anything.
func (d *Dispatcher) Close() int {
	n, _ := d.shutdown(api.ErrCancelledByClose, OutcomeCancelled)
	return n
}

// Fail stops the dispatcher after the transport was lost underneath it.
// Every pending call is resolved with an error wrapping api.ErrTransportLost
// and cause, and the sink receives the same error once. It returns the number
// of calls failed.
func (d *Dispatcher) Fail(cause error) int {
	err := fmt.Errorf("%w: %w", api.ErrTransportLost, cause)
	n, ok := d.shutdown(err, OutcomeTransportLost)
	if ok {
		d.report(logctx.WithConnection(context.Background(), d.conn), &api.CallbackError{Err: err})
	}
	return n
}

func (d *Dispatcher) shutdown(cause error, outcome Outcome) (int, bool) {
	d.Stop()
	if !d.drained.CompareAndSwap(false, true) {
		return 0, false
	}
	calls := d.pending.Drain()
	for _, c := range calls {
		d.obs.CallResolved(c.Request.MessageName(), outcome)
		c.fail(0, cause)
	}
	d.log.DebugContext(logctx.WithConnection(context.Background(), d.conn), "dispatcher closed", slog.Int("resolved", len(calls)), slog.String("cause", cause.Error()))
	return len(calls), true
}

// Pending returns the number of outstanding calls.
func (d *Dispatcher) Pending() int { return d.pending.Len() }

// Subscriptions returns the enabled notification names.
func (d *Dispatcher) Subscriptions() []string { return d.subs.Names() }

func (d *Dispatcher) logContext(ctx context.Context, name string, id uint64, kind api.Kind) context.Context {
	ctx = logctx.WithConnection(ctx, d.conn)
	return logctx.WithMessage(ctx, &logctx.MessageData{Name: name, Context: id, Kind: kind.String()})
}
