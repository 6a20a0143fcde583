// Package interfaces contains the interface state messages: toggling the
// interface event stream, changing interface flags and the resulting event.
package interfaces

import "github.com/ggoodman/vppcall-go/api"

// IfStatusFlags mirrors the engine's interface status bit field.
type IfStatusFlags uint32

const (
	IfStatusAdminUp IfStatusFlags = 1 << iota
	IfStatusLinkUp
)

// Wire names.
const (
	WantInterfaceEventsName      = "want_interface_events"
	WantInterfaceEventsReplyName = "want_interface_events_reply"
	SwInterfaceSetFlagsName      = "sw_interface_set_flags"
	SwInterfaceSetFlagsReplyName = "sw_interface_set_flags_reply"
	SwInterfaceEventName         = "sw_interface_event"
)

// WantInterfaceEvents enables or disables the SwInterfaceEvent stream for
// the client identified by PID.
type WantInterfaceEvents struct {
	EnableDisable uint32 `json:"enable_disable"`
	PID           uint32 `json:"pid"`
}

func (*WantInterfaceEvents) MessageName() string   { return WantInterfaceEventsName }
func (*WantInterfaceEvents) MessageKind() api.Kind { return api.KindRequest }
func (*WantInterfaceEvents) ReplyName() string     { return WantInterfaceEventsReplyName }
func (*WantInterfaceEvents) Notifications() []string {
	return []string{SwInterfaceEventName}
}
func (m *WantInterfaceEvents) Subscribe() bool { return m.EnableDisable != 0 }

type WantInterfaceEventsReply struct {
	Retval int32 `json:"retval"`
}

func (*WantInterfaceEventsReply) MessageName() string   { return WantInterfaceEventsReplyName }
func (*WantInterfaceEventsReply) MessageKind() api.Kind { return api.KindReply }
func (m *WantInterfaceEventsReply) GetRetval() int32    { return m.Retval }

// SwInterfaceSetFlags sets the admin state of an interface.
type SwInterfaceSetFlags struct {
	SwIfIndex uint32        `json:"sw_if_index"`
	Flags     IfStatusFlags `json:"flags"`
}

func (*SwInterfaceSetFlags) MessageName() string   { return SwInterfaceSetFlagsName }
func (*SwInterfaceSetFlags) MessageKind() api.Kind { return api.KindRequest }
func (*SwInterfaceSetFlags) ReplyName() string     { return SwInterfaceSetFlagsReplyName }

type SwInterfaceSetFlagsReply struct {
	Retval int32 `json:"retval"`
}

func (*SwInterfaceSetFlagsReply) MessageName() string   { return SwInterfaceSetFlagsReplyName }
func (*SwInterfaceSetFlagsReply) MessageKind() api.Kind { return api.KindReply }
func (m *SwInterfaceSetFlagsReply) GetRetval() int32    { return m.Retval }

// SwInterfaceEvent reports an interface state change.
type SwInterfaceEvent struct {
	PID       uint32        `json:"pid"`
	SwIfIndex uint32        `json:"sw_if_index"`
	Flags     IfStatusFlags `json:"flags"`
	Deleted   bool          `json:"deleted"`
}

func (*SwInterfaceEvent) MessageName() string   { return SwInterfaceEventName }
func (*SwInterfaceEvent) MessageKind() api.Kind { return api.KindNotification }

type WantInterfaceEventsReplyCallback interface {
	OnWantInterfaceEventsReply(*WantInterfaceEventsReply)
}

type SwInterfaceSetFlagsReplyCallback interface {
	OnSwInterfaceSetFlagsReply(*SwInterfaceSetFlagsReply)
}

type SwInterfaceEventCallback interface {
	OnSwInterfaceEvent(*SwInterfaceEvent)
}

func init() {
	api.RegisterMessage((*WantInterfaceEvents)(nil), nil)
	api.RegisterMessage((*WantInterfaceEventsReply)(nil), api.Bind(WantInterfaceEventsReplyCallback.OnWantInterfaceEventsReply))
	api.RegisterMessage((*SwInterfaceSetFlags)(nil), nil)
	api.RegisterMessage((*SwInterfaceSetFlagsReply)(nil), api.Bind(SwInterfaceSetFlagsReplyCallback.OnSwInterfaceSetFlagsReply))
	api.RegisterMessage((*SwInterfaceEvent)(nil), api.Bind(SwInterfaceEventCallback.OnSwInterfaceEvent))
}
