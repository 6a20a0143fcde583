// Package api contains the message model shared by the connection, the
// dispatch core, codecs and engine simulators. It keeps the surface small:
// a Message knows its wire name and kind, a Request additionally names the
// reply it expects, and a SubscriptionRequest toggles one or more
// notification streams once the engine acknowledges it.
//
// # Catalog
//
// Message sets (see the binapi packages) register their types with
// RegisterMessage from init functions. The catalog lets codecs construct a
// typed value from a wire name and lets a connection discover, for a given
// handler value, which callback capabilities it implements.
//
// # Capabilities
//
// A handler is any Go value. For every message a caller may want to receive
// there is a one-method callback interface, e.g.
//
//	type SwInterfaceEventCallback interface {
//		OnSwInterfaceEvent(*SwInterfaceEvent)
//	}
//
// and the message is registered with a Binder built by Bind from that
// method expression. A handler implements any subset; ErrorCallback is the
// generic error sink.
//
// # Errors
//
// Every asynchronous failure reaches the handler as a *CallbackError whose
// Unwrap chain carries one of the sentinel errors declared here or a
// *TransportError decoded from an engine error frame.
package api
