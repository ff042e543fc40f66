// Package scene holds the scene profiles that weight memory relevance for a
// dialogue request, and the table they are looked up from.
package scene

import (
	"github.com/coachverse/recall/pkg/event"
)

// Authored scene ids.
const (
	Kitchen           = "kitchen"
	Therapy           = "therapy"
	Battle            = "battle"
	FinancialAdvisory = "financial_advisory"
	Training          = "training"
	TeamMeeting       = "team_meeting"
	Confessional      = "confessional"
	GroupActivity     = "group_activity"
)

const (
	// DefaultID is the id reported by the fallback profile.
	DefaultID = "default"

	// DefaultMaxMemories is the selection budget when a profile does not set one.
	DefaultMaxMemories = 10

	defaultWeight = 0.25
)

// Weights scale the recency, emotional, conflict, and comedy scoring terms.
// They are non-negative and need not sum to 1.
type Weights struct {
	Recency   float64 `mapstructure:"recency" json:"recency" validate:"gte=0"`
	Emotional float64 `mapstructure:"emotional" json:"emotional" validate:"gte=0"`
	Conflict  float64 `mapstructure:"conflict" json:"conflict" validate:"gte=0"`
	Comedy    float64 `mapstructure:"comedy" json:"comedy" validate:"gte=0"`
}

// Profile configures memory selection for one scene.
type Profile struct {
	ID                 string       `mapstructure:"id" json:"id" validate:"required"`
	Weights            Weights      `mapstructure:"weights" json:"weights"`
	PriorityCategories []event.Type `mapstructure:"priority_categories" json:"priority_categories,omitempty" validate:"dive,event_type"`
	MaxMemories        int          `mapstructure:"max_memories" json:"max_memories" validate:"gte=0"`
}

// Budget returns MaxMemories, or DefaultMaxMemories when unset.
func (p Profile) Budget() int {
	if p.MaxMemories <= 0 {
		return DefaultMaxMemories
	}
	return p.MaxMemories
}

// Prioritizes reports whether t is one of the profile's priority categories.
func (p Profile) Prioritizes(t event.Type) bool {
	for _, c := range p.PriorityCategories {
		if c == t {
			return true
		}
	}
	return false
}

func (p Profile) normalized() Profile {
	p.MaxMemories = p.Budget()
	p.PriorityCategories = append([]event.Type(nil), p.PriorityCategories...)
	return p
}

// Default returns the fallback profile used for scenes without an authored one.
func Default() Profile {
	return Profile{
		ID: DefaultID,
		Weights: Weights{
			Recency:   defaultWeight,
			Emotional: defaultWeight,
			Conflict:  defaultWeight,
			Comedy:    defaultWeight,
		},
		MaxMemories: DefaultMaxMemories,
	}
}

// DefaultProfiles returns the authored profiles.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		Kitchen: {
			ID:      Kitchen,
			Weights: Weights{Recency: 0.4, Emotional: 0.2, Conflict: 0.2, Comedy: 0.6},
			PriorityCategories: []event.Type{
				event.KitchenArgument, event.KitchenConversation, event.MealSharing,
				event.CleaningConflict, event.GossipSession, event.BattleVictory,
			},
			MaxMemories: 8,
		},
		Therapy: {
			ID:      Therapy,
			Weights: Weights{Recency: 0.2, Emotional: 0.8, Conflict: 0.6, Comedy: 0},
			PriorityCategories: []event.Type{
				event.TherapyBreakthrough, event.ConflictRevealed, event.EmotionalRevelation,
				event.BattleDefeat, event.AllianceBroken, event.FinancialTrauma,
			},
			MaxMemories: 12,
		},
		Battle: {
			ID:      Battle,
			Weights: Weights{Recency: 0.6, Emotional: 0.4, Conflict: 0.5, Comedy: 0.2},
			PriorityCategories: []event.Type{
				event.BattleVictory, event.BattleDefeat, event.StrategySuccess,
				event.StrategyFailure, event.TeamCoordination, event.BattleChatConflict,
			},
			MaxMemories: 6,
		},
		FinancialAdvisory: {
			ID:      FinancialAdvisory,
			Weights: Weights{Recency: 0.3, Emotional: 0.5, Conflict: 0.3, Comedy: 0.1},
			PriorityCategories: []event.Type{
				event.FinancialCrisis, event.FinancialDecisionMade, event.InvestmentOutcome,
				event.LuxuryPurchase, event.SpendingSpree, event.TrustLost, event.TrustGained,
			},
			MaxMemories: 10,
		},
		Training: {
			ID:      Training,
			Weights: Weights{Recency: 0.5, Emotional: 0.3, Conflict: 0.2, Comedy: 0.3},
			PriorityCategories: []event.Type{
				event.SkillImprovement, event.TrainingMilestone, event.TrainingInjury,
				event.NewTechniqueLearned, event.MentalExhaustion,
			},
			MaxMemories: 8,
		},
		TeamMeeting: {
			ID:      TeamMeeting,
			Weights: Weights{Recency: 0.5, Emotional: 0.3, Conflict: 0.5, Comedy: 0.3},
			PriorityCategories: []event.Type{
				event.BattleEnd, event.TeamCoordination, event.StrategyFailure,
				event.SocialConflict, event.CleaningConflict,
			},
			MaxMemories: 10,
		},
		Confessional: {
			ID:      Confessional,
			Weights: Weights{Recency: 0.4, Emotional: 0.7, Conflict: 0.6, Comedy: 0.5},
			PriorityCategories: []event.Type{
				event.AllianceBroken, event.GossipSession, event.KitchenArgument,
				event.EmotionalRevelation, event.SpendingSpree,
			},
			MaxMemories: 6,
		},
		GroupActivity: {
			ID:      GroupActivity,
			Weights: Weights{Recency: 0.4, Emotional: 0.3, Conflict: 0.1, Comedy: 0.7},
			PriorityCategories: []event.Type{
				event.GroupActivity, event.MealSharing, event.GroupTherapyInsight,
				event.LateNightConversation,
			},
			MaxMemories: 8,
		},
	}
}
