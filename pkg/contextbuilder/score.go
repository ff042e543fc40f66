package contextbuilder

import (
	"math"
	"sort"
	"time"

	"github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/scene"
)

// Scoring constants.
const (
	sceneRelevanceFactor  = 0.3
	recencyDecayPerHour   = 2.0
	stressThreshold       = 70
	stressFixationBonus   = 30.0
	copresenceBonus       = 40.0
	conflictBonus         = 50.0
	comedyThreshold       = 70
	importanceFactor      = 0.2
	decayPenaltyFactor    = 0.1
	percent               = 0.01
	maxRelevance          = 100.0
	comedySuppressedScene = scene.Therapy
)

// ScoredMemory is a memory with its relevance score.
type ScoredMemory struct {
	Memory memory.CharacterMemory
	Score  float64
}

// ScoreMemoryRelevance scores m for sceneID in [0, 100].
func (b *Builder) ScoreMemoryRelevance(m memory.CharacterMemory, sceneID string, others []string, state memory.EmotionalState, now time.Time) float64 {
	return scoreMemory(m, b.profiles.Lookup(sceneID), sceneID, others, state, now)
}

func scoreMemory(m memory.CharacterMemory, profile scene.Profile, sceneID string, others []string, state memory.EmotionalState, now time.Time) float64 {
	w := profile.Weights
	score := m.SceneRelevance[sceneID] * sceneRelevanceFactor

	recency := math.Max(0, maxRelevance-hoursSince(lastRecalled(m), now)*recencyDecayPerHour)
	score += recency * w.Recency

	if state.Stress > stressThreshold && m.EmotionalContext.Valence == memory.ValenceNegative {
		score += stressFixationBonus * w.Emotional
	}
	score += float64(m.EmotionalContext.Intensity) * w.Emotional * percent

	if m.Involves(others...) {
		score += copresenceBonus
	}

	for _, conflict := range state.ActiveConflicts {
		if m.HasKeyword(conflict) {
			score += conflictBonus * w.Conflict
			break
		}
	}

	if m.ComedyPotential > comedyThreshold && sceneID != comedySuppressedScene {
		score += float64(m.ComedyPotential) * w.Comedy * percent
	}

	score += float64(m.Importance) * importanceFactor
	score -= m.Decay * decayPenaltyFactor

	return math.Max(0, math.Min(maxRelevance, score))
}

func lastRecalled(m memory.CharacterMemory) time.Time {
	if m.LastRecalled.IsZero() {
		return m.CreatedAt
	}
	return m.LastRecalled
}

// hoursSince is never negative. A zero time counts as infinitely old.
func hoursSince(t, now time.Time) float64 {
	if t.IsZero() {
		return math.Inf(1)
	}
	hours := now.Sub(t).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

// SelectMemoriesForScene scores memories, orders them highest first, and keeps
// the scene's budget. Ties keep input order.
func (b *Builder) SelectMemoriesForScene(memories []memory.CharacterMemory, sceneID string, others []string, state memory.EmotionalState, now time.Time) []ScoredMemory {
	profile := b.profiles.Lookup(sceneID)

	scored := make([]ScoredMemory, 0, len(memories))
	for _, m := range memories {
		scored = append(scored, ScoredMemory{
			Memory: m,
			Score:  scoreMemory(m, profile, sceneID, others, state, now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if budget := profile.Budget(); len(scored) > budget {
		scored = scored[:budget]
	}
	return scored
}
