package protocol

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// Kind is the value of the `type` discriminator carried by every frame.
type Kind string

const (
	KindConnectionInit        Kind = "connectionInit"
	KindConnectionAck         Kind = "connectionAck"
	KindConnectionInterrupted Kind = "connectionInterrupted"
	KindSessionInit           Kind = "sessionInit"
	KindReconnectRequest      Kind = "reconnectRequest"
	KindReconnectResponse     Kind = "reconnectResponse"
	KindTextMessage           Kind = "textMessage"
	KindTextResponse          Kind = "textResponse"
	KindConnectionClosed      Kind = "connectionClosed"
)

// NormalizeKind maps spellings such as "text_response", "TextResponse" or
// "text-response" onto the canonical lowerCamel kind.
func NormalizeKind(s string) Kind {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return Kind(strcase.ToLowerCamel(s))
}
