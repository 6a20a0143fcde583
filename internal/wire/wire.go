// Package wire implements the JSON envelope codec used by the bundled
// adapters and the engine simulator. A frame is a single JSON object:
//
//	{"msg":"sw_interface_set_flags","context":3,"payload":{...}}
//	{"context":3,"error":{"code":-32601,"message":"unsupported"}}
//
// Error frames carry no message name; every other frame names a message
// registered in the api catalog.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/vppcall-go/api"
)

// Envelope is the raw JSON representation of a frame.
type Envelope struct {
	Name    string              `json:"msg,omitempty"`
	Context uint64              `json:"context,omitempty"`
	Payload json.RawMessage     `json:"payload,omitempty"`
	Error   *api.TransportError `json:"error,omitempty"`
}

// UnmarshalJSON enforces that an envelope is either a named message or an
// error frame, never both and never neither.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type rawEnvelope Envelope

	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	hasName := raw.Name != ""
	hasError := raw.Error != nil
	switch {
	case hasName && hasError:
		return errors.New("frame cannot carry both a message and an error")
	case !hasName && !hasError:
		return errors.New("frame must carry either a message or an error")
	case hasError && len(raw.Payload) > 0:
		return errors.New("error frame cannot carry a payload")
	}

	*e = Envelope(raw)
	return nil
}

// Codec is the JSON envelope implementation of api.Codec.
type Codec struct{}

// NewCodec returns the envelope codec.
func NewCodec() Codec { return Codec{} }

// Encode implements api.Codec.
func (Codec) Encode(f *api.Frame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil frame")
	}
	env := Envelope{Context: f.Context}
	if f.Kind == api.KindError || f.Error != nil {
		if f.Error == nil {
			return nil, errors.New("error frame without error")
		}
		env.Error = f.Error
		return json.Marshal(&env)
	}
	if f.Message == nil {
		return nil, errors.New("frame without message")
	}
	if _, ok := api.LookupMessage(f.Message.MessageName()); !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownMessage, f.Message.MessageName())
	}
	payload, err := json.Marshal(f.Message)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", f.Message.MessageName(), err)
	}
	env.Name = f.Message.MessageName()
	env.Payload = payload
	return json.Marshal(&env)
}

// Decode implements api.Codec.
func (Codec) Decode(data []byte) (*api.Frame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Error != nil {
		return &api.Frame{Kind: api.KindError, Context: env.Context, Error: env.Error}, nil
	}

	info, ok := api.LookupMessage(env.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s (context %d)", api.ErrUnknownMessage, env.Name, env.Context)
	}
	msg, err := api.NewMessage(env.Name)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Name, err)
		}
	}
	return &api.Frame{Kind: info.Kind, Name: env.Name, Context: env.Context, Message: msg}, nil
}

var _ api.Codec = Codec{}
