package wire

// Error frame codes produced by engines speaking this envelope.
const (
	// CodeParseError indicates the engine could not parse a frame.
	CodeParseError int32 = -32700
	// CodeUnsupportedMessage indicates the engine does not implement a request.
	CodeUnsupportedMessage int32 = -32601
	// CodeInvalidPayload indicates the request payload was rejected.
	CodeInvalidPayload int32 = -32602
	// CodeInternalError indicates an internal engine failure.
	CodeInternalError int32 = -32603
)
