package eventbus

import (
	"fmt"
	"strings"

	"github.com/coachverse/recall/pkg/event"
)

const (
	// TopicPrefix is the canonical prefix for published game events.
	TopicPrefix = "recall.v1.event"

	// AnyTopic receives every published event.
	AnyTopic = TopicPrefix + ".>"
)

// TypeTopic returns the topic an event of type t is published on.
func TypeTopic(t event.Type) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, sanitizeSegment(string(t.Category())), sanitizeSegment(string(t)))
}

// CategoryTopic returns a wildcard topic matching every type in category c.
func CategoryTopic(c event.Category) string {
	return fmt.Sprintf("%s.%s.*", TopicPrefix, sanitizeSegment(string(c)))
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, ".", "_")
}

// topicMatches supports exact, "*" segment, and ">" suffix wildcards.
func topicMatches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, ".>") {
		prefix := strings.TrimSuffix(pattern, ".>")
		if prefix == "" {
			return true
		}
		return topic == prefix || strings.HasPrefix(topic, prefix+".")
	}

	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")
	if len(patternParts) != len(topicParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != topicParts[i] {
			return false
		}
	}
	return true
}
