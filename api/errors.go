package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnmatchedReply is reported when a reply references no pending call.
	ErrUnmatchedReply = errors.New("unmatched reply")
	// ErrUnmatchedError is reported when an error frame references a context
	// with no pending call.
	ErrUnmatchedError = errors.New("unmatched error")
	// ErrCancelledByClose is delivered to every call outstanding at Close.
	ErrCancelledByClose = errors.New("cancelled by close")
	// ErrCallTimeout is delivered when a call exceeds the configured timeout.
	ErrCallTimeout = errors.New("call timed out")
	// ErrProtocol marks undecodable frames and frames of an unexpected kind.
	ErrProtocol = errors.New("protocol error")
	// ErrUnknownMessage marks a wire name absent from the catalog.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrRetval marks a reply carrying a non-zero engine return code.
	ErrRetval = errors.New("engine returned error code")
	// ErrUnexpectedReply marks a reply whose name does not match the request.
	ErrUnexpectedReply = errors.New("unexpected reply")
	// ErrSendFailed marks a request that could not be encoded or handed to
	// the transport.
	ErrSendFailed = errors.New("send failed")
	// ErrTransportLost is delivered to every call outstanding when the
	// transport fails underneath an open connection, and once to the
	// generic error sink.
	ErrTransportLost = errors.New("transport lost")
)

// TransportError is an error frame produced by the engine side of the
// transport channel.
type TransportError struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (e *TransportError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transport error %d", e.Code)
	}
	return fmt.Sprintf("transport error %d: %s", e.Code, e.Message)
}

// CallbackError is what error capabilities receive. Method and Context
// identify the originating call; both are zero when the failure has no call
// identity (stale replies, uncorrelated error frames, protocol errors).
type CallbackError struct {
	Method  string
	Context uint64
	Code    int32
	Err     error
}

func (e *CallbackError) Error() string {
	var b strings.Builder
	b.WriteString("callback error")
	if e.Method != "" {
		fmt.Fprintf(&b, ": call=%s", e.Method)
	}
	if e.Context != 0 {
		fmt.Fprintf(&b, " context=%d", e.Context)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CallbackError) Unwrap() error { return e.Err }

// ErrorCallback is the generic error capability of a handler.
type ErrorCallback interface {
	OnError(err *CallbackError)
}
