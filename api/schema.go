package api

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema reflects the payload of a registered message into a JSON Schema.
// The schema is inlined (no $defs) and titled with the wire name.
func Schema(name string) (*jsonschema.Schema, error) {
	info, ok := LookupMessage(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.ReflectFromType(info.Type)
	s.Title = name
	s.Description = info.Kind.String() + " message"
	return s, nil
}
