package dispatch

import (
	"sync"
	"time"

	"github.com/ggoodman/vppcall-go/api"
)

// Call is one outstanding request. It is resolved exactly once: the pending
// table hands it to whichever path removes it first.
type Call struct {
	ID      uint64
	Request api.Request

	onReply func(api.Message)
	onError func(*api.CallbackError)
	// notify holds the delivery funcs enabled when a subscription request
	// is acknowledged, keyed by notification name.
	notify map[string]func(api.Message)

	timerMu sync.Mutex
	timer   *time.Timer

	done chan struct{}
	err  error
}

// NewCall prepares a call for req. onReply receives the reply on success,
// onError every failure. notify is only consulted for subscription requests.
func NewCall(req api.Request, onReply func(api.Message), onError func(*api.CallbackError), notify map[string]func(api.Message)) *Call {
	return &Call{
		Request: req,
		onReply: onReply,
		onError: onError,
		notify:  notify,
		done:    make(chan struct{}),
	}
}

// Done is closed once the call has been resolved and its handler invoked.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err reports how the call was resolved. It is only meaningful after Done
// is closed; nil means the reply was delivered.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Call) armTimer(d time.Duration, fire func()) {
	c.timerMu.Lock()
	c.timer = time.AfterFunc(d, fire)
	c.timerMu.Unlock()
}

func (c *Call) stopTimer() {
	c.timerMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerMu.Unlock()
}

func (c *Call) succeed(msg api.Message) {
	c.stopTimer()
	if c.onReply != nil {
		c.onReply(msg)
	}
	close(c.done)
}

func (c *Call) fail(code int32, err error) {
	c.stopTimer()
	cbErr := &api.CallbackError{
		Method:  c.Request.MessageName(),
		Context: c.ID,
		Code:    code,
		Err:     err,
	}
	c.err = cbErr
	if c.onError != nil {
		c.onError(cbErr)
	}
	close(c.done)
}
