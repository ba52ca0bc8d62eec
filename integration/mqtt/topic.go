package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const maxTopicLength = 65535

var ErrInvalidTopic = errors.New("invalid topic")

// ValidateTopic checks a topic that is used for publishing. Topics are
// hierarchical, every level between the slashes has to be non-empty.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}

	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTopic, maxTopicLength)
	}

	if strings.TrimFunc(topic, unicode.IsSpace) != topic {
		return fmt.Errorf("%w: %q has leading or trailing whitespace", ErrInvalidTopic, topic)
	}

	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}

	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: %q contains a null character", ErrInvalidTopic, topic)
	}

	for i, segment := range Segments(topic) {
		if segment == "" {
			return fmt.Errorf("%w: %q has an empty level at position %d", ErrInvalidTopic, topic, i)
		}
	}

	return nil
}

func Segments(topic string) []string {
	return strings.Split(topic, "/")
}
