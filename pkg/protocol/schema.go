package protocol

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

var prototypes = map[Kind]interface{}{
	KindConnectionInit:        ConnectionInit{},
	KindConnectionAck:         ConnectionAck{},
	KindConnectionInterrupted: ConnectionInterrupted{},
	KindSessionInit:           SessionSnapshot{},
	KindReconnectRequest:      ReconnectRequest{},
	KindReconnectResponse:     ReconnectResponse{},
	KindTextMessage:           TextMessage{},
	KindTextResponse:          TextResponse{},
	KindConnectionClosed:      ConnectionClosed{},
}

var outboundPrototypes = map[Kind]interface{}{
	KindConnectionInit:   ConnectionInit{},
	KindSessionInit:      SessionInit{},
	KindReconnectRequest: ReconnectRequest{},
	KindTextMessage:      TextMessage{},
	KindConnectionClosed: ConnectionClosed{},
}

// Direction selects which side of the wire a schema describes.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Schema reflects the JSON Schema of the frame of the given kind and direction.
// `sessionInit` exists in both directions with different shapes.
func Schema(direction Direction, kind Kind) (*jsonschema.Schema, error) {
	var proto interface{}
	var ok bool
	switch direction {
	case DirectionOutbound:
		proto, ok = outboundPrototypes[kind]
	case DirectionInbound:
		if _, inbound := inboundCodecs[kind]; inbound {
			proto, ok = prototypes[kind]
		}
	default:
		return nil, errors.Errorf("unknown direction %q", direction)
	}
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "%s %q", direction, kind)
	}

	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := reflector.Reflect(proto)
	s.Version = ""
	s.Type = "object"
	if s.Properties == nil {
		s.Properties = jsonschema.NewProperties()
	}
	s.Properties.Set("type", &jsonschema.Schema{
		Type:        "string",
		Description: string(kind),
	})
	s.Required = append([]string{"type"}, s.Required...)
	return s, nil
}

// Kinds lists the kinds for a direction in a stable order.
func Kinds(direction Direction) []Kind {
	var ret []Kind
	switch direction {
	case DirectionOutbound:
		for k := range outboundPrototypes {
			ret = append(ret, k)
		}
	case DirectionInbound:
		for k := range inboundCodecs {
			ret = append(ret, k)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// SchemaValidator checks inbound frames against the reflected schemas.
type SchemaValidator struct {
	schemas map[Kind]*gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	v := &SchemaValidator{schemas: map[Kind]*gojsonschema.Schema{}}
	for _, kind := range Kinds(DirectionInbound) {
		s, err := Schema(DirectionInbound, kind)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(s)
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode schema for %s", kind)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if err != nil {
			return nil, errors.Wrapf(err, "could not compile schema for %s", kind)
		}
		v.schemas[kind] = compiled
	}
	return v, nil
}

func (v *SchemaValidator) Validate(kind Kind, frame []byte) error {
	s, ok := v.schemas[kind]
	if !ok {
		return errors.Wrapf(ErrUnknownKind, "inbound %q", kind)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(frame))
	if err != nil {
		return errors.Wrapf(err, "could not validate %s", kind)
	}
	if result.Valid() {
		return nil
	}

	var descriptions []string
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, desc.String())
	}
	return errors.Wrapf(ErrSchemaViolation, "%s: %s", kind, strings.Join(descriptions, "; "))
}
