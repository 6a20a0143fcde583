// Package vpe contains the engine-level control messages.
package vpe

import "github.com/ggoodman/vppcall-go/api"

const (
	ControlPingName      = "control_ping"
	ControlPingReplyName = "control_ping_reply"
	ShowVersionName      = "show_version"
	ShowVersionReplyName = "show_version_reply"
)

// ControlPing is a no-op request used to check liveness.
type ControlPing struct{}

func (*ControlPing) MessageName() string   { return ControlPingName }
func (*ControlPing) MessageKind() api.Kind { return api.KindRequest }
func (*ControlPing) ReplyName() string     { return ControlPingReplyName }

type ControlPingReply struct {
	Retval      int32  `json:"retval"`
	ClientIndex uint32 `json:"client_index"`
	VpePID      uint32 `json:"vpe_pid"`
}

func (*ControlPingReply) MessageName() string   { return ControlPingReplyName }
func (*ControlPingReply) MessageKind() api.Kind { return api.KindReply }
func (m *ControlPingReply) GetRetval() int32    { return m.Retval }

type ShowVersion struct{}

func (*ShowVersion) MessageName() string   { return ShowVersionName }
func (*ShowVersion) MessageKind() api.Kind { return api.KindRequest }
func (*ShowVersion) ReplyName() string     { return ShowVersionReplyName }

type ShowVersionReply struct {
	Retval    int32  `json:"retval"`
	Program   string `json:"program"`
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
}

func (*ShowVersionReply) MessageName() string   { return ShowVersionReplyName }
func (*ShowVersionReply) MessageKind() api.Kind { return api.KindReply }
func (m *ShowVersionReply) GetRetval() int32    { return m.Retval }

type ControlPingReplyCallback interface {
	OnControlPingReply(*ControlPingReply)
}

type ShowVersionReplyCallback interface {
	OnShowVersionReply(*ShowVersionReply)
}

func init() {
	api.RegisterMessage((*ControlPing)(nil), nil)
	api.RegisterMessage((*ControlPingReply)(nil), api.Bind(ControlPingReplyCallback.OnControlPingReply))
	api.RegisterMessage((*ShowVersion)(nil), nil)
	api.RegisterMessage((*ShowVersionReply)(nil), api.Bind(ShowVersionReplyCallback.OnShowVersionReply))
}
