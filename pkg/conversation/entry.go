package conversation

import "time"

// Direction tells who authored an entry.
type Direction string

const (
	DirectionUser   Direction = "user"
	DirectionRemote Direction = "remote"
)

// Entry is one message in the chat history. A remote entry is built up from
// streamed fragments sharing its ID.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Text      string    `json:"text" yaml:"text"`
	Direction Direction `json:"direction" yaml:"direction"`
	Complete  bool      `json:"complete" yaml:"complete"`
}

func (e Entry) IsUser() bool {
	return e.Direction == DirectionUser
}

// NewUserEntry is a locally sent message, complete on creation.
func NewUserEntry(id, text string, ts time.Time) Entry {
	return Entry{
		ID:        id,
		Timestamp: ts,
		Text:      text,
		Direction: DirectionUser,
		Complete:  true,
	}
}

// NewFragment is one chunk of a streamed remote reply.
func NewFragment(id, text string, complete bool, ts time.Time) Entry {
	return Entry{
		ID:        id,
		Timestamp: ts,
		Text:      text,
		Direction: DirectionRemote,
		Complete:  complete,
	}
}
