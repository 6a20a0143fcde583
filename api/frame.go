package api

// Frame is a decoded unit of the wire protocol. Context is zero when the
// frame carries no correlation id.
type Frame struct {
	Kind    Kind
	Name    string
	Context uint64
	// Message is set for request, reply and notification frames.
	Message Message
	// Error is set for error frames.
	Error *TransportError
}

// Codec turns frames into bytes and back. Decode must return an error
// wrapping ErrUnknownMessage when the frame names a message that is not in
// the catalog.
type Codec interface {
	Encode(f *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)
}
