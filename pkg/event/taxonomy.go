package event

// Type identifies the kind of a GameEvent. The set is closed for the derivation
// tables but producers may send types outside it; those fall back to defaults.
type Type string

// Category groups event types by game domain.
type Category string

const (
	CategoryBattle    Category = "battle"
	CategorySocial    Category = "social"
	CategoryTherapy   Category = "therapy"
	CategoryTraining  Category = "training"
	CategoryFinancial Category = "financial"
	CategoryUnknown   Category = "unknown"
)

// Battle events.
const (
	BattleStart        Type = "battle_start"
	BattleEnd          Type = "battle_end"
	BattleVictory      Type = "battle_victory"
	BattleDefeat       Type = "battle_defeat"
	CriticalHit        Type = "critical_hit"
	StrategySuccess    Type = "strategy_success"
	StrategyFailure    Type = "strategy_failure"
	TeamCoordination   Type = "team_coordination"
	IndividualHeroics  Type = "individual_heroics"
	BattleChatConflict Type = "battle_chat_conflict"
)

// Social and living-quarters events.
const (
	KitchenArgument       Type = "kitchen_argument"
	BathroomConflict      Type = "bathroom_conflict"
	BedroomDispute        Type = "bedroom_dispute"
	MealSharing           Type = "meal_sharing"
	CleaningConflict      Type = "cleaning_conflict"
	NoiseComplaint        Type = "noise_complaint"
	AllianceFormed        Type = "alliance_formed"
	AllianceBroken        Type = "alliance_broken"
	GossipSession         Type = "gossip_session"
	LateNightConversation Type = "late_night_conversation"
	GroupActivity         Type = "group_activity"
	LivingComplaint       Type = "living_complaint"
	SocialConflict        Type = "social_conflict"
	KitchenConversation   Type = "kitchen_conversation"
)

// Therapy events.
const (
	TherapySessionStart   Type = "therapy_session_start"
	TherapyBreakthrough   Type = "therapy_breakthrough"
	TherapyResistance     Type = "therapy_resistance"
	ConflictRevealed      Type = "conflict_revealed"
	ConflictResolved      Type = "conflict_resolved"
	EmotionalRevelation   Type = "emotional_revelation"
	GroupTherapyInsight   Type = "group_therapy_insight"
	TherapistIntervention Type = "therapist_intervention"
)

// Training events.
const (
	TrainingSession     Type = "training_session"
	SkillImprovement    Type = "skill_improvement"
	MentalExhaustion    Type = "mental_exhaustion"
	TrainingInjury      Type = "training_injury"
	NewTechniqueLearned Type = "new_technique_learned"
	TrainingMilestone   Type = "training_milestone"
	SparringSession     Type = "sparring_session"
	MeditationSession   Type = "meditation_session"
)

// Financial events.
const (
	EarningsReceived         Type = "earnings_received"
	FinancialDecisionPending Type = "financial_decision_pending"
	FinancialDecisionMade    Type = "financial_decision_made"
	CoachFinancialAdvice     Type = "coach_financial_advice"
	FinancialStressIncrease  Type = "financial_stress_increase"
	FinancialStressDecrease  Type = "financial_stress_decrease"
	LuxuryPurchase           Type = "luxury_purchase"
	InvestmentMade           Type = "investment_made"
	InvestmentOutcome        Type = "investment_outcome"
	FinancialCrisis          Type = "financial_crisis"
	DebtIncurred             Type = "debt_incurred"
	FinancialBreakthrough    Type = "financial_breakthrough"
	SpendingSpree            Type = "spending_spree"
	FinancialTrauma          Type = "financial_trauma"
	TrustGained              Type = "trust_gained"
	TrustLost                Type = "trust_lost"
)

var categories = map[Category][]Type{
	CategoryBattle: {
		BattleStart, BattleEnd, BattleVictory, BattleDefeat, CriticalHit,
		StrategySuccess, StrategyFailure, TeamCoordination, IndividualHeroics, BattleChatConflict,
	},
	CategorySocial: {
		KitchenArgument, BathroomConflict, BedroomDispute, MealSharing, CleaningConflict,
		NoiseComplaint, AllianceFormed, AllianceBroken, GossipSession, LateNightConversation,
		GroupActivity, LivingComplaint, SocialConflict, KitchenConversation,
	},
	CategoryTherapy: {
		TherapySessionStart, TherapyBreakthrough, TherapyResistance, ConflictRevealed,
		ConflictResolved, EmotionalRevelation, GroupTherapyInsight, TherapistIntervention,
	},
	CategoryTraining: {
		TrainingSession, SkillImprovement, MentalExhaustion, TrainingInjury,
		NewTechniqueLearned, TrainingMilestone, SparringSession, MeditationSession,
	},
	CategoryFinancial: {
		EarningsReceived, FinancialDecisionPending, FinancialDecisionMade, CoachFinancialAdvice,
		FinancialStressIncrease, FinancialStressDecrease, LuxuryPurchase, InvestmentMade,
		InvestmentOutcome, FinancialCrisis, DebtIncurred, FinancialBreakthrough, SpendingSpree,
		FinancialTrauma, TrustGained, TrustLost,
	},
}

var categoryOrder = []Category{CategoryBattle, CategorySocial, CategoryTherapy, CategoryTraining, CategoryFinancial}

var typeCategory = func() map[Type]Category {
	index := make(map[Type]Category)
	for category, types := range categories {
		for _, t := range types {
			index[t] = category
		}
	}
	return index
}()

// All returns every type in the taxonomy, grouped by category.
func All() []Type {
	out := make([]Type, 0, len(typeCategory))
	for _, category := range categoryOrder {
		out = append(out, categories[category]...)
	}
	return out
}

// Known reports whether t is part of the taxonomy.
func (t Type) Known() bool {
	_, ok := typeCategory[t]
	return ok
}

// Category returns the domain t belongs to.
func (t Type) Category() Category {
	if category, ok := typeCategory[t]; ok {
		return category
	}
	return CategoryUnknown
}

func (t Type) String() string {
	return string(t)
}
