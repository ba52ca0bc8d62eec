package secret

import (
	"encoding/json"
	"strings"
)

const mask = "********"

// String holds a credential. Every printable form of it is masked, use Reveal
// where the clear value is actually needed.
type String string

func (s String) Reveal() string {
	return string(s)
}

func (s String) IsZero() bool {
	return len(s) == 0
}

func (s String) String() string {
	if s.IsZero() {
		return ""
	}

	return mask
}

func (s String) GoString() string {
	return `"` + s.String() + `"`
}

func (s String) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Decode is used by envconfig, secrets mounted as files tend to end in a newline
func (s *String) Decode(value string) error {
	*s = String(strings.TrimRight(value, "\r\n"))

	return nil
}
