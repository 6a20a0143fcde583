package dispatch

import "sync/atomic"

// Allocator hands out context ids for outbound requests. Ids start at 1 and
// increase monotonically; zero is reserved for "no context". The 64-bit
// space is treated as unbounded.
type Allocator struct {
	next atomic.Uint64
}

// Next returns a context id that has never been returned before by this
// allocator. It is safe for concurrent use.
func (a *Allocator) Next() uint64 {
	return a.next.Add(1)
}
