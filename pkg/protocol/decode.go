package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type inboundCodec func([]byte) (Inbound, error)

func decodeAs[T Inbound](b []byte) (Inbound, error) {
	var ev T
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

var inboundCodecs = map[Kind]inboundCodec{
	KindConnectionAck:         decodeAs[ConnectionAck],
	KindConnectionInterrupted: decodeAs[ConnectionInterrupted],
	KindSessionInit:           decodeAs[SessionSnapshot],
	KindReconnectResponse:     decodeAs[ReconnectResponse],
	KindTextResponse:          decodeAs[TextResponse],
}

// Decoder turns raw frames into validated Inbound events. Frames that fail
// decoding or validation never reach the engine.
type Decoder struct {
	validator *SchemaValidator
}

type DecoderOption func(*Decoder)

// WithSchemaValidation enables strict mode: frames are checked against the
// JSON Schema of their kind before decoding.
func WithSchemaValidation(v *SchemaValidator) DecoderOption {
	return func(d *Decoder) {
		d.validator = v
	}
}

func NewDecoder(options ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, option := range options {
		option(d)
	}
	return d
}

func (d *Decoder) Decode(b []byte) (Inbound, error) {
	kind, err := readKind(b)
	if err != nil {
		return nil, err
	}

	codec, ok := inboundCodecs[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "inbound %q", kind)
	}

	if d.validator != nil {
		if err := d.validator.Validate(kind, b); err != nil {
			return nil, err
		}
	}

	ev, err := codec(b)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", kind)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// UnmarshalInbound decodes a server frame without schema validation.
func UnmarshalInbound(b []byte) (Inbound, error) {
	return NewDecoder().Decode(b)
}
