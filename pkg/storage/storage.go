// Package storage defines the persistence contracts consumed by the event bus
// and the context builder.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
)

// Adapter is the write side used by the event bus.
type Adapter interface {
	SaveEvent(ctx context.Context, ev *event.GameEvent) error
	SaveMemory(ctx context.Context, m *memory.CharacterMemory) error
}

// MemoryStore is the read side used by the context builder.
type MemoryStore interface {
	GetCharacterMemories(ctx context.Context, characterID string) ([]memory.CharacterMemory, error)
	GetRelationships(ctx context.Context, characterID string, others []string) (memory.RelationshipMap, error)
	GetEmotionalState(ctx context.Context, characterID string) (memory.EmotionalState, error)
}

// EventStore returns events involving a character within a trailing window.
type EventStore interface {
	GetRecentEvents(ctx context.Context, characterID string, window time.Duration) ([]event.GameEvent, error)
}

// RecallRecorder is implemented by stores that track memory recall.
type RecallRecorder interface {
	RecordRecall(ctx context.Context, characterID string, memoryIDs []string, at time.Time) error
}

// Store is a full backend: every contract above plus the writes other game
// subsystems use to maintain relationships and emotional state.
type Store interface {
	Adapter
	MemoryStore
	EventStore
	RecallRecorder
	memory.DecayStore

	GetEvent(ctx context.Context, id string) (*event.GameEvent, error)
	SaveRelationship(ctx context.Context, rel memory.Relationship) error
	SaveEmotionalState(ctx context.Context, state memory.EmotionalState) error

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error
	Close() error
}

// NopAdapter discards every write. It is the event bus default.
type NopAdapter struct{}

func (NopAdapter) SaveEvent(context.Context, *event.GameEvent) error         { return nil }
func (NopAdapter) SaveMemory(context.Context, *memory.CharacterMemory) error { return nil }

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// InvalidReferenceError indicates a write that would break a cross-entity invariant,
// such as a memory whose owner is not part of its event.
type InvalidReferenceError struct {
	EntityType string
	ID         string
	Reason     string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s reference %s: %s", e.EntityType, e.ID, e.Reason)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidateMemoryReference checks a memory against its source event.
func ValidateMemoryReference(m *memory.CharacterMemory, ev *event.GameEvent) error {
	if m.ID == "" {
		return memory.ErrInvalidMemoryID
	}
	if m.CharacterID == "" {
		return memory.ErrInvalidCharacterID
	}
	if ev == nil {
		return &NotFoundError{EntityType: "event", ID: m.EventID}
	}
	if !ev.Involves(m.CharacterID) {
		return &InvalidReferenceError{
			EntityType: "memory",
			ID:         m.ID,
			Reason:     fmt.Sprintf("character %s is not part of event %s", m.CharacterID, ev.ID),
		}
	}
	return nil
}
