package dispatch

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateContext indicates an insert for a context id that is already
// pending. A correct allocator never produces it.
var ErrDuplicateContext = errors.New("duplicate context id")

const pendingShards = 32

// PendingTable maps context ids to outstanding calls. Keys are spread over
// independently locked shards so that inserts from callers and removals from
// the delivery path only contend on the same key's shard.
type PendingTable struct {
	shards [pendingShards]pendingShard
}

type pendingShard struct {
	mu    sync.Mutex
	calls map[uint64]*Call
}

func NewPendingTable() *PendingTable {
	t := &PendingTable{}
	for i := range t.shards {
		t.shards[i].calls = make(map[uint64]*Call)
	}
	return t
}

func (t *PendingTable) shard(id uint64) *pendingShard {
	return &t.shards[id%pendingShards]
}

// Insert records c under c.ID.
func (t *PendingTable) Insert(c *Call) error {
	s := t.shard(c.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calls[c.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateContext, c.ID)
	}
	s.calls[c.ID] = c
	return nil
}

// Take removes and returns the call pending under id. Of any number of
// concurrent Take or Drain calls, exactly one observes a given call.
func (t *PendingTable) Take(id uint64) (*Call, bool) {
	s := t.shard(id)
	s.mu.Lock()
	c, ok := s.calls[id]
	if ok {
		delete(s.calls, id)
	}
	s.mu.Unlock()
	return c, ok
}

// Drain removes and returns every pending call, ordered by shard.
func (t *PendingTable) Drain() []*Call {
	var out []*Call
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for id, c := range s.calls {
			delete(s.calls, id)
			out = append(out, c)
		}
		s.mu.Unlock()
	}
	return out
}

// Len returns the number of pending calls.
func (t *PendingTable) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.calls)
		s.mu.Unlock()
	}
	return n
}
