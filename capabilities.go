package vppcall

import (
	"github.com/ggoodman/vppcall-go/api"
)

// capabilities is what a handler value can receive, resolved once at Open
// against the message catalog.
type capabilities struct {
	replies       map[string]func(api.Message)
	notifications map[string]func(api.Message)
	// onError is nil when the handler has no api.ErrorCallback.
	onError func(*api.CallbackError)
}

func bindCapabilities(handler any) capabilities {
	caps := capabilities{
		replies:       make(map[string]func(api.Message)),
		notifications: make(map[string]func(api.Message)),
	}
	if handler == nil {
		return caps
	}
	for _, info := range api.RegisteredMessages() {
		if info.Bind == nil {
			continue
		}
		deliver, ok := info.Bind(handler)
		if !ok {
			continue
		}
		switch info.Kind {
		case api.KindReply:
			caps.replies[info.Name] = deliver
		case api.KindNotification:
			caps.notifications[info.Name] = deliver
		}
	}
	if ec, ok := handler.(api.ErrorCallback); ok {
		caps.onError = ec.OnError
	}
	return caps
}

func (c capabilities) empty() bool {
	return len(c.replies) == 0 && len(c.notifications) == 0 && c.onError == nil
}
