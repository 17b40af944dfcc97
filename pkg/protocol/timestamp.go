package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"
)

// Timestamp accepts the timestamp spellings seen on the wire: RFC3339 and
// other date strings, epoch milliseconds as a number or numeric string, and
// null. A value that cannot be parsed decodes as the zero time. It always
// encodes as RFC3339 with nanoseconds.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if b[0] != '"' {
		ms, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			log.Debug().Err(err).Str("timestamp", string(b)).Msg("ignoring unparseable timestamp")
			t.Time = time.Time{}
			return nil
		}
		t.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		log.Debug().Err(err).Str("timestamp", string(b)).Msg("ignoring unparseable timestamp")
		t.Time = time.Time{}
		return nil
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := dateparse.ParseAny(s)
	if err != nil {
		log.Debug().Err(err).Str("timestamp", s).Msg("ignoring unparseable timestamp")
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed.UTC()
	return nil
}

func (Timestamp) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "number"},
			{Type: "null"},
		},
	}
}
