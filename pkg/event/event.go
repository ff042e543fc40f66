// Package event defines the gameplay events that characters remember.
package event

import (
	"time"
)

// Severity is the ordinal impact of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Default scores applied by the event bus when a producer omits them.
const (
	DefaultEmotionalWeight   = 50
	DefaultConflictPotential = 25
	DefaultComedyPotential   = 25
	DefaultQuotableScore     = 25
)

// GameEvent is an immutable record of something that happened in the game.
type GameEvent struct {
	// ID is generated at publish time.
	ID string `json:"id"`

	// Type is one of the taxonomy constants.
	Type Type `json:"type"`

	// Description is the free-text account of the event.
	Description string `json:"description"`

	// CharacterIDs lists every character involved.
	CharacterIDs []string `json:"character_ids"`

	Severity Severity `json:"severity"`

	// Scores, each 0-100.
	EmotionalWeight   int `json:"emotional_weight"`
	ConflictPotential int `json:"conflict_potential"`
	ComedyPotential   int `json:"comedy_potential"`
	QuotableScore     int `json:"quotable_score"`

	// Location and Metadata carry producer context. The core stores them but never reads them.
	Location string            `json:"location,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp is set at publish time.
	Timestamp time.Time `json:"timestamp"`
}

// Involves reports whether characterID is listed on the event.
func (e *GameEvent) Involves(characterID string) bool {
	for _, id := range e.CharacterIDs {
		if id == characterID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the event.
func (e *GameEvent) Clone() *GameEvent {
	if e == nil {
		return nil
	}
	clone := *e
	if e.CharacterIDs != nil {
		clone.CharacterIDs = append([]string(nil), e.CharacterIDs...)
	}
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for key, value := range e.Metadata {
			clone.Metadata[key] = value
		}
	}
	return &clone
}

// Input is the publish-time shape of an event. Nil scores are filled with defaults.
type Input struct {
	Type              Type              `json:"type"`
	Description       string            `json:"description"`
	CharacterIDs      []string          `json:"character_ids"`
	Severity          Severity          `json:"severity,omitempty"`
	EmotionalWeight   *int              `json:"emotional_weight,omitempty"`
	ConflictPotential *int              `json:"conflict_potential,omitempty"`
	ComedyPotential   *int              `json:"comedy_potential,omitempty"`
	QuotableScore     *int              `json:"quotable_score,omitempty"`
	Location          string            `json:"location,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Score is a helper for filling optional Input scores.
func Score(v int) *int {
	return &v
}

// Complete fills defaults and returns the event with the given identity.
func (in Input) Complete(id string, at time.Time) GameEvent {
	ev := GameEvent{
		ID:                id,
		Type:              in.Type,
		Description:       in.Description,
		Severity:          in.Severity,
		EmotionalWeight:   valueOr(in.EmotionalWeight, DefaultEmotionalWeight),
		ConflictPotential: valueOr(in.ConflictPotential, DefaultConflictPotential),
		ComedyPotential:   valueOr(in.ComedyPotential, DefaultComedyPotential),
		QuotableScore:     valueOr(in.QuotableScore, DefaultQuotableScore),
		Location:          in.Location,
		Timestamp:         at,
	}
	if ev.Severity == "" {
		ev.Severity = SeverityMedium
	}
	if in.CharacterIDs != nil {
		ev.CharacterIDs = append([]string(nil), in.CharacterIDs...)
	}
	if in.Metadata != nil {
		ev.Metadata = make(map[string]string, len(in.Metadata))
		for key, value := range in.Metadata {
			ev.Metadata[key] = value
		}
	}
	return ev
}

func valueOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
