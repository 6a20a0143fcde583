package dispatch

// Outcome names how a call was resolved.
type Outcome string

const (
	OutcomeReply           Outcome = "reply"
	OutcomeRetval          Outcome = "retval"
	OutcomeUnexpectedReply Outcome = "unexpected_reply"
	OutcomeEngineError     Outcome = "engine_error"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeSendFailed      Outcome = "send_failed"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeTransportLost   Outcome = "transport_lost"
)

// Observer is notified of call and notification traffic. Methods are called
// inline on the dispatching goroutine and must not block.
type Observer interface {
	CallSent(request string)
	CallResolved(request string, outcome Outcome)
	NotificationDelivered(name string)
	NotificationDropped(name string)
}

type nopObserver struct{}

func (nopObserver) CallSent(string)              {}
func (nopObserver) CallResolved(string, Outcome) {}
func (nopObserver) NotificationDelivered(string) {}
func (nopObserver) NotificationDropped(string)   {}
