package sensor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Operating range of the MCP9808
const (
	MinCelsius = -40.0
	MaxCelsius = 125.0
)

var (
	// A zero length payload clears a retained message, it is not a reading
	ErrEmpty      = errors.New("empty payload")
	ErrOutOfRange = errors.New("temperature out of range")
)

type Reading struct {
	Topic   string  `json:"topic,omitempty"`
	Celsius float64 `json:"temperature"`
	Updated int64   `json:"updated"`
}

func NewReading(topic string, celsius float64, at time.Time) Reading {
	return Reading{Topic: topic, Celsius: celsius, Updated: at.UnixMilli()}
}

func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Updated)
}

func (r Reading) Valid() error {
	// NaN compares false against both bounds
	if math.IsNaN(r.Celsius) || r.Celsius < MinCelsius || r.Celsius > MaxCelsius {
		return fmt.Errorf("%w: %.4f°C", ErrOutOfRange, r.Celsius)
	}

	return nil
}

// Marshal encodes the reading the way it is published, the topic is already
// part of the message so it is left out
func (r Reading) Marshal() ([]byte, error) {
	r.Topic = ""
	return json.Marshal(r)
}

// ParsePayload accepts both the JSON encoding and a bare number, which is what
// the firmware publishes. Readings without a timestamp get the receive time.
func ParsePayload(topic string, payload []byte, received time.Time) (Reading, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Reading{}, ErrEmpty
	}

	reading := Reading{Topic: topic}
	if payload[0] == '{' {
		var message struct {
			Celsius *float64 `json:"temperature"`
			Updated int64    `json:"updated"`
		}
		if err := json.Unmarshal(payload, &message); err != nil {
			return Reading{}, fmt.Errorf("decode reading on %s: %w", topic, err)
		}
		if message.Celsius == nil {
			return Reading{}, fmt.Errorf("decode reading on %s: missing temperature", topic)
		}

		reading.Celsius = *message.Celsius
		reading.Updated = message.Updated
	} else {
		celsius, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("decode reading on %s: %w", topic, err)
		}

		reading.Celsius = celsius
	}

	if reading.Updated == 0 {
		reading.Updated = received.UnixMilli()
	}

	return reading, nil
}
