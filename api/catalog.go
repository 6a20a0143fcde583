package api

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Binder inspects a handler value and, when the handler implements the
// callback capability for a message, returns the function that delivers
// such a message to it.
type Binder func(handler any) (deliver func(Message), ok bool)

// Bind builds a Binder from a callback method expression, for example
// Bind(SwInterfaceEventCallback.OnSwInterfaceEvent). Capability presence is
// decided by asserting the handler to H.
func Bind[H any, M Message](fn func(H, M)) Binder {
	return func(handler any) (func(Message), bool) {
		h, ok := handler.(H)
		if !ok {
			return nil, false
		}
		return func(m Message) {
			if typed, ok := m.(M); ok {
				fn(h, typed)
			}
		}, true
	}
}

// MessageInfo describes a registered message type.
type MessageInfo struct {
	Name string
	Kind Kind
	// Type is the struct type behind the registered pointer.
	Type reflect.Type
	// Bind is nil for requests, which are never delivered to handlers.
	Bind Binder
}

var catalog = struct {
	mu    sync.RWMutex
	names map[string]MessageInfo
}{names: make(map[string]MessageInfo)}

// RegisterMessage adds a message type to the catalog. msg must be a pointer
// to a struct. It panics on a duplicate name, since that can only be a
// programming error in a message set.
func RegisterMessage(msg Message, bind Binder) {
	t := reflect.TypeOf(msg)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("api: message %T must be a pointer to a struct", msg))
	}
	name := msg.MessageName()
	if name == "" {
		panic(fmt.Sprintf("api: message %T has an empty name", msg))
	}
	kind := msg.MessageKind()
	if (kind == KindReply || kind == KindNotification) && bind == nil {
		panic(fmt.Sprintf("api: %s message %s needs a binder", kind, name))
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if _, dup := catalog.names[name]; dup {
		panic(fmt.Sprintf("api: message %s registered twice", name))
	}
	catalog.names[name] = MessageInfo{Name: name, Kind: kind, Type: t.Elem(), Bind: bind}
}

// LookupMessage returns the catalog entry for a wire name.
func LookupMessage(name string) (MessageInfo, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	info, ok := catalog.names[name]
	return info, ok
}

// NewMessage allocates a zero value of the message registered under name.
func NewMessage(name string) (Message, error) {
	info, ok := LookupMessage(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	return reflect.New(info.Type).Interface().(Message), nil
}

// RegisteredMessages returns every catalog entry, sorted by name.
func RegisteredMessages() []MessageInfo {
	catalog.mu.RLock()
	out := make([]MessageInfo, 0, len(catalog.names))
	for _, info := range catalog.names {
		out = append(out, info)
	}
	catalog.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
