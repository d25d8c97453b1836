package protocol

import (
	"fmt"
	"time"
)

// timestampLayout is the canonical wire format: ISO-8601 with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a wall-clock time serialized as ISO-8601 with millisecond
// precision. Monotonicity is not required by the protocol.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

// At wraps t as a Timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{t}
}

// MarshalJSON renders the canonical ISO-8601 string with milliseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(timestampLayout) + `"`), nil
}

// UnmarshalJSON accepts the canonical layout as well as plain RFC 3339,
// which tolerates peers that omit fractional seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timestamp: %s", s)
	}
	s = s[1 : len(s)-1]
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed
	return nil
}
