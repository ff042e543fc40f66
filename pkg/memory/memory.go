// Package memory holds the per-character memory model: memories derived from
// game events, the relationship and emotional state read alongside them, and
// the prompt context assembled from all of it.
package memory

import (
	"errors"
	"time"
)

// Sentinel errors for the memory model.
var (
	ErrInvalidCharacterID = errors.New("memory: invalid character ID")
	ErrInvalidMemoryID    = errors.New("memory: invalid memory ID")
	ErrNotFound           = errors.New("memory: memory not found")
)

// Valence is the emotional polarity of a memory.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
	ValenceMixed    Valence = "mixed"
)

// MaxScore is the upper bound of every 0-100 score in the model.
const MaxScore = 100

// EmotionalContext is how the owner felt about the event.
type EmotionalContext struct {
	Feeling   string  `json:"feeling"`
	Intensity int     `json:"intensity"`
	Valence   Valence `json:"valence"`
}

// CharacterMemory is one character's subjective record of a game event.
type CharacterMemory struct {
	// ID is the unique identifier for this memory.
	ID string `json:"id"`

	// CharacterID owns the memory and is always one of the source event's characters.
	CharacterID string `json:"character_id"`

	// EventID references the persisted source event.
	EventID string `json:"event_id"`

	Summary         string `json:"summary"`
	DetailedContent string `json:"detailed_content"`

	EmotionalContext EmotionalContext `json:"emotional_context"`

	// Importance is 0-100.
	Importance int `json:"importance"`

	// Decay starts at 0 and never decreases. It is advanced outside the core,
	// see DecayJob.
	Decay float64 `json:"decay"`

	// LastRecalled and RecallCount change whenever the memory is selected into a context.
	LastRecalled time.Time `json:"last_recalled"`
	RecallCount  int       `json:"recall_count"`

	// InvolvedCharacters are the other participants; never includes the owner.
	InvolvedCharacters []string `json:"involved_characters"`

	RelationshipImpact map[string]int `json:"relationship_impact,omitempty"`

	// BestUsedIn lists the scene IDs this memory fits.
	BestUsedIn []string `json:"best_used_in"`

	TriggerKeywords []string `json:"trigger_keywords"`

	// ContradictsWith holds IDs of memories explicitly linked as contradicting this one.
	ContradictsWith []string `json:"contradicts_with,omitempty"`

	ComedyPotential int `json:"comedy_potential"`

	// SceneRelevance is an optional precomputed relevance per scene ID.
	SceneRelevance map[string]float64 `json:"scene_relevance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Involves reports whether any of ids took part in the memory's event.
func (m *CharacterMemory) Involves(ids ...string) bool {
	for _, id := range ids {
		for _, involved := range m.InvolvedCharacters {
			if involved == id {
				return true
			}
		}
	}
	return false
}

// HasKeyword reports whether keyword is one of the trigger keywords.
func (m *CharacterMemory) HasKeyword(keyword string) bool {
	for _, k := range m.TriggerKeywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// FitsScene reports whether sceneID is listed in BestUsedIn.
func (m *CharacterMemory) FitsScene(sceneID string) bool {
	for _, s := range m.BestUsedIn {
		if s == sceneID {
			return true
		}
	}
	return false
}

// Contradicts reports whether other is linked from this memory's ContradictsWith.
func (m *CharacterMemory) Contradicts(otherID string) bool {
	for _, id := range m.ContradictsWith {
		if id == otherID {
			return true
		}
	}
	return false
}

// MarkRecalled records a selection into a context.
func (m *CharacterMemory) MarkRecalled(at time.Time) {
	m.LastRecalled = at
	m.RecallCount++
}
