// Package adapter defines the transport channel between a connection and the
// engine. An Adapter moves opaque frames; it knows nothing about message
// kinds or correlation.
//
// Implementations
//
//	memory      : in-process pipe, used by tests and the engine simulator
//	socket      : unix socket with length-prefixed frames
//	redisstream : Redis Streams, one stream per direction and session
package adapter

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after Close, and by Connect on a closed
// adapter.
var ErrClosed = errors.New("adapter closed")

// ErrNotConnected is returned by Send before Connect.
var ErrNotConnected = errors.New("adapter not connected")

// ErrPeerClosed is reported through a LostFunc when the other side went away
// without a transport error.
var ErrPeerClosed = errors.New("peer closed the channel")

// ReceiveFunc is invoked for every inbound frame. An adapter invokes it from
// a single goroutine, in arrival order. The frame is owned by the callee.
type ReceiveFunc func(frame []byte)

// LostFunc is invoked at most once, on the delivery goroutine after the last
// frame, when the channel fails underneath its user: the peer disconnected,
// a read failed for good or an invalid frame arrived. It is not invoked after
// a local Close.
type LostFunc func(err error)

// Adapter is a bidirectional frame conduit.
type Adapter interface {
	// Connect establishes the channel for the named session and starts
	// delivering inbound frames to recv. lost may be nil. It may be called
	// once.
	Connect(ctx context.Context, name string, recv ReceiveFunc, lost LostFunc) error
	// Send hands one frame to the channel. It does not wait for the peer.
	Send(ctx context.Context, frame []byte) error
	// Close stops delivery and releases the channel. A delivery already in
	// progress may complete; no new one starts.
	Close() error
}
