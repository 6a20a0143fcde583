package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/vppcall-go/api"
	"github.com/ggoodman/vppcall-go/binapi/interfaces"
	"github.com/ggoodman/vppcall-go/binapi/vpe"
	"github.com/ggoodman/vppcall-go/internal/wire"
)

type harness struct {
	t     *testing.T
	d     *Dispatcher
	codec wire.Codec

	mu       sync.Mutex
	sent     []*api.Frame
	sendErr  error
	sinkErrs []*api.CallbackError
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{t: t, codec: wire.NewCodec()}
	h.d = New(Config{
		Codec:       h.codec,
		Send:        h.send,
		Sink:        h.sink,
		CallTimeout: timeout,
	})
	return h
}

func (h *harness) send(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	f, err := h.codec.Decode(b)
	if err != nil {
		h.t.Errorf("sent undecodable frame: %v", err)
		return nil
	}
	h.sent = append(h.sent, f)
	return nil
}

func (h *harness) sink(err *api.CallbackError) {
	h.mu.Lock()
	h.sinkErrs = append(h.sinkErrs, err)
	h.mu.Unlock()
}

func (h *harness) sinkErrors() []*api.CallbackError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*api.CallbackError(nil), h.sinkErrs...)
}

func (h *harness) deliver(f *api.Frame) {
	h.t.Helper()
	b, err := h.codec.Encode(f)
	if err != nil {
		h.t.Fatalf("encode inbound frame: %v", err)
	}
	h.d.Dispatch(b)
}

func (h *harness) reply(id uint64, msg api.Message) {
	h.t.Helper()
	h.deliver(&api.Frame{Kind: msg.MessageKind(), Context: id, Message: msg})
}

type recorder struct {
	mu      sync.Mutex
	replies []api.Message
	errs    []*api.CallbackError
	events  []*interfaces.SwInterfaceEvent
}

func (r *recorder) onReply(m api.Message) {
	r.mu.Lock()
	r.replies = append(r.replies, m)
	r.mu.Unlock()
}

func (r *recorder) onError(err *api.CallbackError) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) onEvent(m api.Message) {
	r.mu.Lock()
	r.events = append(r.events, m.(*interfaces.SwInterfaceEvent))
	r.mu.Unlock()
}

func (r *recorder) counts() (replies, errs, events int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies), len(r.errs), len(r.events)
}

func (r *recorder) call(req api.Request) *Call {
	return NewCall(req, r.onReply, r.onError, map[string]func(api.Message){
		interfaces.SwInterfaceEventName: r.onEvent,
	})
}

func submit(t *testing.T, h *harness, c *Call) {
	t.Helper()
	if err := h.d.Submit(context.Background(), c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func waitDone(t *testing.T, c *Call) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("call %d not resolved", c.ID)
	}
}

func TestDispatcher_ReplyResolvesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	c := r.call(&vpe.ControlPing{})
	submit(t, h, c)

	if len(h.sent) != 1 || h.sent[0].Context != c.ID || h.sent[0].Name != vpe.ControlPingName {
		t.Fatalf("unexpected sent frames: %+v", h.sent)
	}
	if h.d.Pending() != 1 {
		t.Fatalf("expected 1 pending call, got %d", h.d.Pending())
	}

	h.reply(c.ID, &vpe.ControlPingReply{VpePID: 7})
	waitDone(t, c)
	if c.Err() != nil {
		t.Fatalf("expected success, got %v", c.Err())
	}

	// A duplicate reply goes to the generic sink, not to the call.
	h.reply(c.ID, &vpe.ControlPingReply{VpePID: 7})

	replies, errs, _ := r.counts()
	if replies != 1 || errs != 0 {
		t.Fatalf("expected exactly one reply delivery, got replies=%d errs=%d", replies, errs)
	}
	sinkErrs := h.sinkErrors()
	if len(sinkErrs) != 1 || !errors.Is(sinkErrs[0], api.ErrUnmatchedReply) || sinkErrs[0].Context != c.ID {
		t.Fatalf("expected one unmatched reply in sink, got %v", sinkErrs)
	}
	if h.d.Pending() != 0 {
		t.Fatalf("expected empty pending table, got %d", h.d.Pending())
	}
}

func TestDispatcher_UniqueContextIDs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		c := r.call(&vpe.ControlPing{})
		submit(t, h, c)
		if seen[c.ID] {
			t.Fatalf("context id %d reused while outstanding", c.ID)
		}
		seen[c.ID] = true
	}
	if h.d.Pending() != 100 {
		t.Fatalf("expected 100 pending calls, got %d", h.d.Pending())
	}
}

func TestDispatcher_NotificationLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	event := &interfaces.SwInterfaceEvent{SwIfIndex: 1, Flags: interfaces.IfStatusAdminUp}

	// Before any subscription: dropped silently.
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: event})

	enable := r.call(&interfaces.WantInterfaceEvents{EnableDisable: 1})
	submit(t, h, enable)
	h.reply(enable.ID, &interfaces.WantInterfaceEventsReply{})
	waitDone(t, enable)

	const n = 5
	for i := 0; i < n; i++ {
		h.deliver(&api.Frame{Kind: api.KindNotification, Message: event})
	}
	if _, _, events := r.counts(); events != n {
		t.Fatalf("expected %d events, got %d", n, events)
	}

	disable := r.call(&interfaces.WantInterfaceEvents{EnableDisable: 0})
	submit(t, h, disable)
	// In flight: still routed.
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: event})
	h.reply(disable.ID, &interfaces.WantInterfaceEventsReply{})
	waitDone(t, disable)

	for i := 0; i < n; i++ {
		h.deliver(&api.Frame{Kind: api.KindNotification, Message: event})
	}
	if _, _, events := r.counts(); events != n+1 {
		t.Fatalf("expected %d events, got %d", n+1, events)
	}
	if len(h.sinkErrors()) != 0 {
		t.Fatalf("dropped notifications must not reach the sink: %v", h.sinkErrors())
	}
	if subs := h.d.Subscriptions(); len(subs) != 0 {
		t.Fatalf("expected no subscriptions, got %v", subs)
	}
}

func TestDispatcher_RetvalDoesNotSubscribe(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	c := r.call(&interfaces.WantInterfaceEvents{EnableDisable: 1})
	submit(t, h, c)
	h.reply(c.ID, &interfaces.WantInterfaceEventsReply{Retval: -2})
	waitDone(t, c)

	var cbErr *api.CallbackError
	if !errors.As(c.Err(), &cbErr) || cbErr.Code != -2 || !errors.Is(cbErr, api.ErrRetval) {
		t.Fatalf("expected retval error, got %v", c.Err())
	}
	if cbErr.Method != interfaces.WantInterfaceEventsName || cbErr.Context != c.ID {
		t.Fatalf("error lost call identity: %+v", cbErr)
	}
	if subs := h.d.Subscriptions(); len(subs) != 0 {
		t.Fatalf("failed enable must not subscribe, got %v", subs)
	}
	if replies, errs, _ := r.counts(); replies != 0 || errs != 1 {
		t.Fatalf("expected one error delivery, got replies=%d errs=%d", replies, errs)
	}
}

func TestDispatcher_UnexpectedReplyName(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	c := r.call(&vpe.ControlPing{})
	submit(t, h, c)
	h.reply(c.ID, &vpe.ShowVersionReply{})
	waitDone(t, c)

	if !errors.Is(c.Err(), api.ErrUnexpectedReply) {
		t.Fatalf("expected ErrUnexpectedReply, got %v", c.Err())
	}
}

func TestDispatcher_ErrorFrames(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	c := r.call(&vpe.ShowVersion{})
	submit(t, h, c)

	te := &api.TransportError{Code: wire.CodeUnsupportedMessage, Message: "unsupported"}
	h.deliver(&api.Frame{Kind: api.KindError, Context: c.ID, Error: te})
	waitDone(t, c)

	var got *api.TransportError
	if !errors.As(c.Err(), &got) || got.Code != wire.CodeUnsupportedMessage {
		t.Fatalf("expected transport error for call, got %v", c.Err())
	}

	// Same context again: no call left.
	h.deliver(&api.Frame{Kind: api.KindError, Context: c.ID, Error: te})
	// No context at all.
	h.deliver(&api.Frame{Kind: api.KindError, Error: te})

	sinkErrs := h.sinkErrors()
	if len(sinkErrs) != 2 {
		t.Fatalf("expected 2 sink errors, got %v", sinkErrs)
	}
	if !errors.Is(sinkErrs[0], api.ErrUnmatchedError) || sinkErrs[0].Context != c.ID {
		t.Fatalf("expected unmatched error with context, got %v", sinkErrs[0])
	}
	if sinkErrs[1].Context != 0 || sinkErrs[1].Method != "" || !errors.As(sinkErrs[1], &got) {
		t.Fatalf("expected anonymous transport error, got %v", sinkErrs[1])
	}
}

func TestDispatcher_ProtocolErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.d.Dispatch([]byte(`not json`))
	h.d.Dispatch([]byte(`{"msg":"no_such_message","context":1}`))
	// Requests never flow towards the client.
	h.deliver(&api.Frame{Kind: api.KindRequest, Context: 3, Message: &vpe.ControlPing{}})

	sinkErrs := h.sinkErrors()
	if len(sinkErrs) != 3 {
		t.Fatalf("expected 3 protocol errors, got %v", sinkErrs)
	}
	for _, err := range sinkErrs {
		if !errors.Is(err, api.ErrProtocol) {
			t.Fatalf("expected ErrProtocol, got %v", err)
		}
	}
	if !errors.Is(sinkErrs[1], api.ErrUnknownMessage) {
		t.Fatalf("expected unknown message to be identified, got %v", sinkErrs[1])
	}
}

func TestDispatcher_SendFailureIsAsync(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.sendErr = errors.New("pipe closed")
	r := &recorder{}
	c := r.call(&vpe.ControlPing{})
	submit(t, h, c)
	waitDone(t, c)

	if !errors.Is(c.Err(), api.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", c.Err())
	}
	if h.d.Pending() != 0 {
		t.Fatalf("failed send must not leave a pending call")
	}
}

func TestDispatcher_CallTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 20*time.Millisecond)
	r := &recorder{}
	c := r.call(&vpe.ControlPing{})
	submit(t, h, c)
	waitDone(t, c)

	if !errors.Is(c.Err(), api.ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", c.Err())
	}
	// The late reply is unmatched.
	h.reply(c.ID, &vpe.ControlPingReply{})
	if sinkErrs := h.sinkErrors(); len(sinkErrs) != 1 || !errors.Is(sinkErrs[0], api.ErrUnmatchedReply) {
		t.Fatalf("expected late reply in sink, got %v", sinkErrs)
	}
}

func TestDispatcher_CloseCancelsPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}

	enable := r.call(&interfaces.WantInterfaceEvents{EnableDisable: 1})
	submit(t, h, enable)
	h.reply(enable.ID, &interfaces.WantInterfaceEventsReply{})
	waitDone(t, enable)

	const k = 7
	calls := make([]*Call, k)
	for i := range calls {
		calls[i] = r.call(&vpe.ControlPing{})
		submit(t, h, calls[i])
	}

	if got := h.d.Close(); got != k {
		t.Fatalf("expected %d cancelled calls, got %d", k, got)
	}
	for _, c := range calls {
		waitDone(t, c)
		if !errors.Is(c.Err(), api.ErrCancelledByClose) {
			t.Fatalf("expected ErrCancelledByClose, got %v", c.Err())
		}
	}

	// Late traffic after close is dropped.
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: &interfaces.SwInterfaceEvent{}})
	h.reply(calls[0].ID, &vpe.ControlPingReply{})

	if _, errs, events := r.counts(); errs != k || events != 0 {
		t.Fatalf("expected %d errors and no events, got errs=%d events=%d", k, errs, events)
	}
	if len(h.sinkErrors()) != 0 {
		t.Fatalf("expected no sink errors after close, got %v", h.sinkErrors())
	}
	if h.d.Close() != 0 {
		t.Fatalf("second Close must be a no-op")
	}
	if err := h.d.Submit(context.Background(), r.call(&vpe.ControlPing{})); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if h.d.Pending() != 0 || len(h.d.Subscriptions()) != 0 {
		t.Fatalf("expected empty tables after close")
	}
}

// stalledEnable parks the first reply-name lookup, which happens after the
// reply has taken the call but before its subscription is applied.
type stalledEnable struct {
	*interfaces.WantInterfaceEvents
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stalledEnable) ReplyName() string {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.WantInterfaceEvents.ReplyName()
}

func TestDispatcher_CloseDuringEnableReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	req := &stalledEnable{
		WantInterfaceEvents: &interfaces.WantInterfaceEvents{EnableDisable: 1},
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
	c := r.call(req)
	submit(t, h, c)

	b, err := h.codec.Encode(&api.Frame{Kind: api.KindReply, Context: c.ID, Message: &interfaces.WantInterfaceEventsReply{}})
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		h.d.Dispatch(b)
	}()

	<-req.entered
	if got := h.d.Close(); got != 0 {
		t.Fatalf("reply already owns the call, Close cancelled %d", got)
	}
	close(req.release)
	<-dispatched
	waitDone(t, c)

	if subs := h.d.Subscriptions(); len(subs) != 0 {
		t.Fatalf("subscription enabled after close: %v", subs)
	}
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: &interfaces.SwInterfaceEvent{SwIfIndex: 1}})
	if _, _, events := r.counts(); events != 0 {
		t.Fatalf("expected no events after close, got %d", events)
	}
}

func TestDispatcher_StopRefusesWithoutResolving(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}

	enable := r.call(&interfaces.WantInterfaceEvents{EnableDisable: 1})
	submit(t, h, enable)
	h.reply(enable.ID, &interfaces.WantInterfaceEventsReply{})
	waitDone(t, enable)

	c := r.call(&vpe.ControlPing{})
	submit(t, h, c)

	h.d.Stop()
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: &interfaces.SwInterfaceEvent{}})
	if err := h.d.Submit(context.Background(), r.call(&vpe.ControlPing{})); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Stop, got %v", err)
	}
	if _, errs, events := r.counts(); errs != 0 || events != 0 {
		t.Fatalf("Stop must not invoke handlers, got errs=%d events=%d", errs, events)
	}
	if h.d.Pending() != 1 {
		t.Fatalf("Stop must leave pending calls for Close, got %d", h.d.Pending())
	}

	if got := h.d.Close(); got != 1 {
		t.Fatalf("expected 1 cancelled call, got %d", got)
	}
	waitDone(t, c)
	if !errors.Is(c.Err(), api.ErrCancelledByClose) {
		t.Fatalf("expected ErrCancelledByClose, got %v", c.Err())
	}
}

func TestDispatcher_FailResolvesWithTransportLost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}
	calls := make([]*Call, 3)
	for i := range calls {
		calls[i] = r.call(&vpe.ControlPing{})
		submit(t, h, calls[i])
	}

	cause := errors.New("peer went away")
	if got := h.d.Fail(cause); got != len(calls) {
		t.Fatalf("expected %d failed calls, got %d", len(calls), got)
	}
	for _, c := range calls {
		waitDone(t, c)
		if !errors.Is(c.Err(), api.ErrTransportLost) || !errors.Is(c.Err(), cause) {
			t.Fatalf("expected transport lost wrapping the cause, got %v", c.Err())
		}
	}
	sinkErrs := h.sinkErrors()
	if len(sinkErrs) != 1 || !errors.Is(sinkErrs[0], api.ErrTransportLost) || sinkErrs[0].Context != 0 {
		t.Fatalf("expected one anonymous transport lost report, got %v", sinkErrs)
	}

	if h.d.Fail(cause) != 0 || h.d.Close() != 0 {
		t.Fatalf("shutdown must resolve calls only once")
	}
	if len(h.sinkErrors()) != 1 {
		t.Fatalf("repeated shutdown must not report again, got %v", h.sinkErrors())
	}
	if err := h.d.Submit(context.Background(), r.call(&vpe.ControlPing{})); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcher_SubmitRacingClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	r := &recorder{}

	const n = 200
	calls := make([]*Call, n)
	accepted := make([]bool, n)
	var wg sync.WaitGroup
	for i := range calls {
		calls[i] = r.call(&vpe.ControlPing{})
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.d.Submit(context.Background(), calls[i])
			if err != nil && !errors.Is(err, ErrClosed) {
				t.Errorf("Submit: %v", err)
			}
			accepted[i] = err == nil
		}(i)
	}
	h.d.Close()
	wg.Wait()

	// Every accepted call is resolved; no refused call sees a handler.
	for i, c := range calls {
		if !accepted[i] {
			continue
		}
		waitDone(t, c)
	}
	if h.d.Pending() != 0 {
		t.Fatalf("expected empty pending table, got %d", h.d.Pending())
	}
	_, errs, _ := r.counts()
	want := 0
	for _, ok := range accepted {
		if ok {
			want++
		}
	}
	if errs != want {
		t.Fatalf("expected %d resolved calls, got %d", want, errs)
	}
}
