// Package adaptertest is a conformance suite for adapter.Adapter
// implementations.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/vppcall-go/adapter"
	"github.com/google/uuid"
)

// PairFactory returns two unconnected adapters joined to each other. The
// suite connects both under the same session name.
type PairFactory func(t *testing.T) (client, engine adapter.Adapter)

// RunAdapterTests runs the complete adapter test suite against the factory.
func RunAdapterTests(t *testing.T, factory PairFactory) {
	t.Run("RoundTrip", func(t *testing.T) {
		testRoundTrip(t, factory)
	})
	t.Run("OrderedDelivery", func(t *testing.T) {
		testOrderedDelivery(t, factory)
	})
	t.Run("ConcurrentSend", func(t *testing.T) {
		testConcurrentSend(t, factory)
	})
	t.Run("SendAfterClose", func(t *testing.T) {
		testSendAfterClose(t, factory)
	})
	t.Run("NoDeliveryAfterClose", func(t *testing.T) {
		testNoDeliveryAfterClose(t, factory)
	})
}

// Collector records received frames for assertions.
type Collector struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan struct{}
}

func NewCollector() *Collector {
	return &Collector{notify: make(chan struct{}, 1)}
}

// Receive is an adapter.ReceiveFunc.
func (c *Collector) Receive(frame []byte) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Frames returns a snapshot of received frames.
func (c *Collector) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// Wait blocks until at least n frames arrived or the timeout elapsed, and
// returns what was received.
func (c *Collector) Wait(n int, timeout time.Duration) [][]byte {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if frames := c.Frames(); len(frames) >= n {
			return frames
		}
		select {
		case <-c.notify:
		case <-deadline.C:
			return c.Frames()
		}
	}
}

func connectPair(t *testing.T, factory PairFactory) (client, engine adapter.Adapter, fromEngine, fromClient *Collector) {
	t.Helper()
	client, engine = factory(t)
	fromEngine, fromClient = NewCollector(), NewCollector()
	name := "adaptertest-" + uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Connect(ctx, name, fromClient.Receive, nil); err != nil {
		t.Fatalf("engine connect: %v", err)
	}
	if err := client.Connect(ctx, name, fromEngine.Receive, nil); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = engine.Close()
	})
	return client, engine, fromEngine, fromClient
}

func testRoundTrip(t *testing.T, factory PairFactory) {
	client, engine, fromEngine, fromClient := connectPair(t, factory)
	ctx := context.Background()

	if err := client.Send(ctx, []byte("ping")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	got := fromClient.Wait(1, 5*time.Second)
	if len(got) != 1 || string(got[0]) != "ping" {
		t.Fatalf("engine expected [ping], got %q", got)
	}

	if err := engine.Send(ctx, []byte("pong")); err != nil {
		t.Fatalf("engine send: %v", err)
	}
	got = fromEngine.Wait(1, 5*time.Second)
	if len(got) != 1 || string(got[0]) != "pong" {
		t.Fatalf("client expected [pong], got %q", got)
	}
}

func testOrderedDelivery(t *testing.T, factory PairFactory) {
	_, engine, fromEngine, _ := connectPair(t, factory)
	ctx := context.Background()

	const n = 100
	for i := 0; i < n; i++ {
		if err := engine.Send(ctx, []byte(fmt.Sprintf("frame-%03d", i))); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	got := fromEngine.Wait(n, 10*time.Second)
	if len(got) != n {
		t.Fatalf("expected %d frames, got %d", n, len(got))
	}
	for i, f := range got {
		if want := fmt.Sprintf("frame-%03d", i); string(f) != want {
			t.Fatalf("frame %d out of order: got %q want %q", i, f, want)
		}
	}
}

func testConcurrentSend(t *testing.T, factory PairFactory) {
	client, _, _, fromClient := connectPair(t, factory)
	ctx := context.Background()

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := client.Send(ctx, []byte(fmt.Sprintf("w%d-%d", w, i))); err != nil {
					t.Errorf("send: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	got := fromClient.Wait(workers*perWorker, 10*time.Second)
	if len(got) != workers*perWorker {
		t.Fatalf("expected %d frames, got %d", workers*perWorker, len(got))
	}
	seen := make(map[string]bool, len(got))
	for _, f := range got {
		if seen[string(f)] {
			t.Fatalf("frame %q delivered twice", f)
		}
		seen[string(f)] = true
	}
}

func testSendAfterClose(t *testing.T, factory PairFactory) {
	client, _, _, _ := connectPair(t, factory)
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Send(context.Background(), []byte("late")); !errors.Is(err, adapter.ErrClosed) {
		t.Fatalf("expected adapter.ErrClosed, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func testNoDeliveryAfterClose(t *testing.T, factory PairFactory) {
	client, engine, fromEngine, _ := connectPair(t, factory)
	ctx := context.Background()

	if err := engine.Send(ctx, []byte("before")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := fromEngine.Wait(1, 5*time.Second); len(got) != 1 {
		t.Fatalf("expected first frame, got %q", got)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The peer may or may not notice the close; either way nothing arrives.
	_ = engine.Send(ctx, []byte("after"))
	time.Sleep(200 * time.Millisecond)
	if got := fromEngine.Frames(); len(got) != 1 {
		t.Fatalf("expected no delivery after close, got %q", got)
	}
}
