package protocol

import "errors"

var (
	// ErrInvalidMessage is returned when a frame is missing a required field.
	ErrInvalidMessage = errors.New("invalid protocol message")
	// ErrUnknownKind is returned for frames whose `type` is not part of the protocol.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrSchemaViolation is returned by SchemaValidator in strict mode.
	ErrSchemaViolation = errors.New("schema violation")
)
