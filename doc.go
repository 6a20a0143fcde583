// Package vppcall is a callback-only client for a packet-processing engine
// that speaks an asynchronous request/reply and notification protocol.
//
// A Connection owns one session with the engine. Requests are sent without
// blocking for their reply; replies, engine errors and subscribed
// notifications are delivered to the handler value given to Open. The
// handler advertises what it can receive by implementing the per-message
// callback interfaces of the binapi packages, for example
// interfaces.SwInterfaceEventCallback, and api.ErrorCallback for failures.
//
//	conn, err := vppcall.Open(ctx, adapter, "my-agent", handler)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	call, err := conn.Send(ctx, &interfaces.WantInterfaceEvents{EnableDisable: 1})
//	if err != nil {
//		return err
//	}
//	<-call.Done()
//
// Every inbound frame is handled on the transport's delivery goroutine, in
// the order the transport produced it. Handlers should return promptly.
package vppcall
