package vppcall

import (
	"errors"

	"github.com/ggoodman/vppcall-go/internal/dispatch"
)

var (
	// ErrInvalidState is returned when an operation does not fit the
	// connection's lifecycle: Open twice, Open after Close, Send on a
	// connection that is not open, or Close on one never opened or already
	// closed.
	ErrInvalidState = errors.New("invalid connection state")
	// ErrNoCapabilities is returned by Open for a handler that implements
	// no callback interface at all.
	ErrNoCapabilities = errors.New("handler implements no callback capability")
	// ErrMissingCapability is returned by Send when the handler cannot
	// receive the reply to the request, or a notification it would enable.
	ErrMissingCapability = errors.New("handler lacks callback capability")
	// ErrDuplicateContext reports a context id already in flight.
	ErrDuplicateContext = dispatch.ErrDuplicateContext
)
