package eventbus

import (
	"strings"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
)

const (
	neutralFeeling     = "neutral"
	maxTriggerKeywords = 5
)

var fallbackScenes = []string{"team_meeting"}

// feelings maps event types to the owner's feeling. Unlisted types are neutral.
var feelings = map[event.Type]string{
	event.BattleVictory:         "triumphant",
	event.BattleDefeat:          "defeated",
	event.CriticalHit:           "exhilarated",
	event.StrategyFailure:       "embarrassed",
	event.IndividualHeroics:     "proud",
	event.BattleChatConflict:    "irritated",
	event.KitchenArgument:       "frustrated",
	event.BathroomConflict:      "annoyed",
	event.BedroomDispute:        "resentful",
	event.AllianceFormed:        "hopeful",
	event.AllianceBroken:        "betrayed",
	event.TherapyBreakthrough:   "relieved",
	event.TherapyResistance:     "defensive",
	event.EmotionalRevelation:   "vulnerable",
	event.MentalExhaustion:      "drained",
	event.TrainingInjury:        "hurt",
	event.TrainingMilestone:     "accomplished",
	event.LuxuryPurchase:        "indulgent",
	event.FinancialCrisis:       "anxious",
	event.FinancialBreakthrough: "elated",
	event.FinancialTrauma:       "shaken",
	event.TrustGained:           "grateful",
	event.TrustLost:             "wary",
}

// scenes maps every taxonomy type to the scenes its memories fit.
var scenes = map[event.Type][]string{
	event.BattleStart:        {"battle"},
	event.BattleEnd:          {"battle", "team_meeting"},
	event.BattleVictory:      {"battle", "team_meeting", "kitchen"},
	event.BattleDefeat:       {"battle", "therapy", "team_meeting"},
	event.CriticalHit:        {"battle", "kitchen"},
	event.StrategySuccess:    {"battle", "team_meeting"},
	event.StrategyFailure:    {"battle", "team_meeting", "therapy"},
	event.TeamCoordination:   {"battle", "team_meeting", "training"},
	event.IndividualHeroics:  {"battle", "kitchen", "confessional"},
	event.BattleChatConflict: {"battle", "team_meeting", "therapy"},

	event.KitchenArgument:       {"kitchen", "therapy", "confessional"},
	event.BathroomConflict:      {"kitchen", "therapy", "confessional"},
	event.BedroomDispute:        {"kitchen", "therapy", "confessional"},
	event.MealSharing:           {"kitchen", "group_activity"},
	event.CleaningConflict:      {"kitchen", "team_meeting"},
	event.NoiseComplaint:        {"kitchen", "confessional"},
	event.AllianceFormed:        {"kitchen", "battle", "confessional"},
	event.AllianceBroken:        {"kitchen", "therapy", "confessional", "battle"},
	event.GossipSession:         {"kitchen", "confessional"},
	event.LateNightConversation: {"kitchen", "confessional", "therapy"},
	event.GroupActivity:         {"group_activity", "kitchen"},
	event.LivingComplaint:       {"kitchen", "team_meeting"},
	event.SocialConflict:        {"kitchen", "therapy", "team_meeting"},
	event.KitchenConversation:   {"kitchen"},

	event.TherapySessionStart:   {"therapy"},
	event.TherapyBreakthrough:   {"therapy", "confessional"},
	event.TherapyResistance:     {"therapy"},
	event.ConflictRevealed:      {"therapy", "kitchen", "confessional"},
	event.ConflictResolved:      {"therapy", "kitchen", "team_meeting"},
	event.EmotionalRevelation:   {"therapy", "confessional"},
	event.GroupTherapyInsight:   {"therapy", "group_activity"},
	event.TherapistIntervention: {"therapy"},

	event.TrainingSession:     {"training"},
	event.SkillImprovement:    {"training", "battle"},
	event.MentalExhaustion:    {"training", "therapy"},
	event.TrainingInjury:      {"training", "therapy", "battle"},
	event.NewTechniqueLearned: {"training", "battle"},
	event.TrainingMilestone:   {"training", "team_meeting"},
	event.SparringSession:     {"training", "battle"},
	event.MeditationSession:   {"training", "therapy"},

	event.EarningsReceived:         {"financial_advisory", "kitchen"},
	event.FinancialDecisionPending: {"financial_advisory"},
	event.FinancialDecisionMade:    {"financial_advisory"},
	event.CoachFinancialAdvice:     {"financial_advisory"},
	event.FinancialStressIncrease:  {"financial_advisory", "therapy"},
	event.FinancialStressDecrease:  {"financial_advisory"},
	event.LuxuryPurchase:           {"financial_advisory", "kitchen"},
	event.InvestmentMade:           {"financial_advisory"},
	event.InvestmentOutcome:        {"financial_advisory", "kitchen"},
	event.FinancialCrisis:          {"financial_advisory", "therapy"},
	event.DebtIncurred:             {"financial_advisory", "therapy"},
	event.FinancialBreakthrough:    {"financial_advisory", "kitchen"},
	event.SpendingSpree:            {"financial_advisory", "kitchen", "confessional"},
	event.FinancialTrauma:          {"financial_advisory", "therapy"},
	event.TrustGained:              {"financial_advisory", "therapy"},
	event.TrustLost:                {"financial_advisory", "therapy", "confessional"},
}

// FeelingFor returns the feeling a character has about an event of type t.
func FeelingFor(t event.Type) string {
	if feeling, ok := feelings[t]; ok {
		return feeling
	}
	return neutralFeeling
}

// ScenesFor returns the scenes a memory of an event of type t is best used in.
func ScenesFor(t event.Type) []string {
	if s, ok := scenes[t]; ok {
		return append([]string(nil), s...)
	}
	return append([]string(nil), fallbackScenes...)
}

// ValenceFor derives the memory valence from event severity.
// Only critical events are negative; nothing derives positive.
func ValenceFor(severity event.Severity) memory.Valence {
	if severity == event.SeverityCritical {
		return memory.ValenceNegative
	}
	return memory.ValenceMixed
}

// MemoryID is the deterministic id of the memory characterID derives from eventID.
func MemoryID(eventID, characterID string) string {
	return eventID + "_" + characterID
}

// DeriveMemories creates one memory per entry in ev.CharacterIDs, in order.
func DeriveMemories(ev event.GameEvent) []memory.CharacterMemory {
	memories := make([]memory.CharacterMemory, 0, len(ev.CharacterIDs))
	for _, characterID := range ev.CharacterIDs {
		memories = append(memories, CreateMemoryForCharacter(ev, characterID))
	}
	return memories
}

// CreateMemoryForCharacter derives characterID's memory of ev.
func CreateMemoryForCharacter(ev event.GameEvent, characterID string) memory.CharacterMemory {
	intensity := ev.EmotionalWeight
	if intensity > memory.MaxScore {
		intensity = memory.MaxScore
	}

	return memory.CharacterMemory{
		ID:              MemoryID(ev.ID, characterID),
		CharacterID:     characterID,
		EventID:         ev.ID,
		Summary:         ev.Description,
		DetailedContent: ev.Description,
		EmotionalContext: memory.EmotionalContext{
			Feeling:   FeelingFor(ev.Type),
			Intensity: intensity,
			Valence:   ValenceFor(ev.Severity),
		},
		Importance:         ev.EmotionalWeight,
		LastRecalled:       ev.Timestamp,
		InvolvedCharacters: othersThan(ev.CharacterIDs, characterID),
		BestUsedIn:         ScenesFor(ev.Type),
		TriggerKeywords:    triggerKeywords(ev.Description),
		ComedyPotential:    ev.ComedyPotential,
		CreatedAt:          ev.Timestamp,
	}
}

func othersThan(ids []string, owner string) []string {
	others := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != owner {
			others = append(others, id)
		}
	}
	return others
}

// triggerKeywords returns the first five space-delimited tokens of the lowercased description.
func triggerKeywords(description string) []string {
	tokens := strings.Fields(strings.ToLower(description))
	if len(tokens) > maxTriggerKeywords {
		tokens = tokens[:maxTriggerKeywords]
	}
	return tokens
}
