package dispatch

import (
	"sync"
	"testing"

	"github.com/ggoodman/vppcall-go/api"
	"github.com/ggoodman/vppcall-go/binapi/interfaces"
	"github.com/ggoodman/vppcall-go/binapi/vpe"
	"github.com/google/go-cmp/cmp"
)

type countingObserver struct {
	mu        sync.Mutex
	sent      int
	outcomes  map[Outcome]int
	delivered int
	dropped   int
}

func (o *countingObserver) CallSent(string) {
	o.mu.Lock()
	o.sent++
	o.mu.Unlock()
}

func (o *countingObserver) CallResolved(_ string, outcome Outcome) {
	o.mu.Lock()
	if o.outcomes == nil {
		o.outcomes = make(map[Outcome]int)
	}
	o.outcomes[outcome]++
	o.mu.Unlock()
}

func (o *countingObserver) NotificationDelivered(string) {
	o.mu.Lock()
	o.delivered++
	o.mu.Unlock()
}

func (o *countingObserver) NotificationDropped(string) {
	o.mu.Lock()
	o.dropped++
	o.mu.Unlock()
}

func TestDispatcher_Observer(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	h := newHarness(t, 0)
	h.d.obs = obs
	r := &recorder{}

	ping := r.call(&vpe.ControlPing{})
	submit(t, h, ping)
	h.reply(ping.ID, &vpe.ControlPingReply{})

	flags := r.call(&interfaces.SwInterfaceSetFlags{SwIfIndex: 9})
	submit(t, h, flags)
	h.reply(flags.ID, &interfaces.SwInterfaceSetFlagsReply{Retval: -2})

	enable := r.call(&interfaces.WantInterfaceEvents{EnableDisable: 1})
	submit(t, h, enable)
	h.reply(enable.ID, &interfaces.WantInterfaceEventsReply{})
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: &interfaces.SwInterfaceEvent{SwIfIndex: 1}})

	pending := r.call(&vpe.ShowVersion{})
	submit(t, h, pending)
	h.d.Close()
	h.deliver(&api.Frame{Kind: api.KindNotification, Message: &interfaces.SwInterfaceEvent{SwIfIndex: 1}})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.sent != 4 {
		t.Fatalf("expected 4 calls sent, got %d", obs.sent)
	}
	want := map[Outcome]int{OutcomeReply: 2, OutcomeRetval: 1, OutcomeCancelled: 1}
	if diff := cmp.Diff(want, obs.outcomes); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	// Frames after close never reach routing.
	if obs.delivered != 1 || obs.dropped != 0 {
		t.Fatalf("unexpected notification counts: delivered=%d dropped=%d", obs.delivered, obs.dropped)
	}
}
