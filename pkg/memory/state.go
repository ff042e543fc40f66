package memory

import (
	"time"

	"github.com/coachverse/recall/pkg/event"
)

// Relationship is the state between a character and one other character.
type Relationship struct {
	CharacterID string    `json:"character_id"`
	OtherID     string    `json:"other_id"`
	Trust       int       `json:"trust"`
	Respect     int       `json:"respect"`
	Rivalry     int       `json:"rivalry"`
	History     []string  `json:"history,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RelationshipMap is keyed by the other character's ID.
type RelationshipMap map[string]Relationship

// EmotionalState is a character's current stress and active conflicts.
type EmotionalState struct {
	CharacterID string `json:"character_id"`

	// Stress is 0-100.
	Stress int `json:"stress"`

	// ActiveConflicts are lowercase keywords matched against memory trigger keywords.
	ActiveConflicts []string  `json:"active_conflicts,omitempty"`
	Mood            string    `json:"mood,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PromptContext is the bounded context handed to dialogue generation.
type PromptContext struct {
	Character       string            `json:"character"`
	Scene           string            `json:"scene"`
	OtherCharacters []string          `json:"other_characters"`
	RecentEvents    []event.GameEvent `json:"recent_events"`

	// RelevantMemories is ordered by score, highest first.
	RelevantMemories      []CharacterMemory  `json:"relevant_memories"`
	Scores                map[string]float64 `json:"scores"`
	Relationships         RelationshipMap    `json:"relationships"`
	CurrentEmotionalState EmotionalState     `json:"current_emotional_state"`

	FormattedMemories string    `json:"formatted_memories"`
	Contradictions    []string  `json:"contradictions,omitempty"`
	Callbacks         []string  `json:"callbacks,omitempty"`
	BuiltAt           time.Time `json:"built_at"`
}
