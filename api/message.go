package api

import "fmt"

// Kind classifies a message on the wire.
type Kind int

const (
	// KindUnknown is a frame whose name is not present in the catalog.
	KindUnknown Kind = iota
	// KindRequest is sent by the client and answered by exactly one reply.
	KindRequest
	// KindReply answers a request carrying the same context id.
	KindReply
	// KindNotification is emitted by the engine unsolicited, any number of times.
	KindNotification
	// KindError is an engine error frame, optionally bound to a context id.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	case KindNotification:
		return "notification"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is any typed payload exchanged with the engine.
type Message interface {
	MessageName() string
	MessageKind() Kind
}

// Request is an outbound message that expects a single reply.
type Request interface {
	Message
	// ReplyName is the wire name of the reply that resolves this request.
	ReplyName() string
}

// SubscriptionRequest is a request whose successful acknowledgement enables
// or disables delivery of notification streams.
type SubscriptionRequest interface {
	Request
	// Notifications lists the notification names toggled by this request.
	Notifications() []string
	// Subscribe reports whether the request enables (true) or disables
	// (false) the listed notifications.
	Subscribe() bool
}

// RetvalReply is implemented by replies that carry an engine return code.
// A non-zero value means the request failed.
type RetvalReply interface {
	GetRetval() int32
}
