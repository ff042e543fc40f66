package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coachverse/recall/pkg/event"
)

const (
	// SchemaVersionV1 is the initial relay envelope schema.
	SchemaVersionV1 = "v1"
)

// Envelope is the wire form of a relayed event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     event.Type      `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	NodeID        string          `json:"node_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Event         event.GameEvent `json:"event"`
}

// BuildEnvelope wraps ev for relaying from nodeID.
func BuildEnvelope(nodeID string, ev event.GameEvent, at time.Time) (Envelope, error) {
	if nodeID == "" {
		return Envelope{}, fmt.Errorf("eventbus: node id is required")
	}
	if ev.ID == "" {
		return Envelope{}, fmt.Errorf("eventbus: event id is required")
	}
	return Envelope{
		EventID:       ev.ID,
		EventType:     ev.Type,
		SchemaVersion: SchemaVersionV1,
		NodeID:        nodeID,
		EmittedAt:     at.UTC(),
		Event:         ev,
	}, nil
}

// DecodeEnvelope decodes and validates a relayed envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("eventbus: invalid envelope json: %w", err)
	}
	if envelope.EventID == "" || envelope.NodeID == "" || envelope.SchemaVersion == "" {
		return Envelope{}, fmt.Errorf("eventbus: missing required envelope fields")
	}
	if envelope.SchemaVersion != SchemaVersionV1 {
		return Envelope{}, fmt.Errorf("eventbus: unsupported schema version %q", envelope.SchemaVersion)
	}
	if envelope.Event.ID != envelope.EventID || envelope.Event.Type != envelope.EventType {
		return Envelope{}, fmt.Errorf("eventbus: envelope identity does not match event")
	}
	return envelope, nil
}
