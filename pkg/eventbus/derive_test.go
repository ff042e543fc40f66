package eventbus

import (
	"testing"
	"time"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
)

func TestScenesFor_CoversTaxonomy(t *testing.T) {
	for _, typ := range event.All() {
		scenes := ScenesFor(typ)
		if len(scenes) == 0 {
			t.Errorf("%s maps to no scenes", typ)
		}
		if _, ok := scenesTable(typ); !ok {
			t.Errorf("%s falls back instead of having authored scenes", typ)
		}
	}
}

func scenesTable(t event.Type) ([]string, bool) {
	s, ok := scenes[t]
	return s, ok
}

func TestScenesFor_ReturnsCopy(t *testing.T) {
	first := ScenesFor(event.BattleVictory)
	first[0] = "mutated"
	if ScenesFor(event.BattleVictory)[0] == "mutated" {
		t.Fatal("ScenesFor leaked the shared table")
	}
}

func TestFeelingFor(t *testing.T) {
	tests := []struct {
		typ  event.Type
		want string
	}{
		{event.BattleVictory, "triumphant"},
		{event.BattleDefeat, "defeated"},
		{event.KitchenArgument, "frustrated"},
		{event.TherapyBreakthrough, "relieved"},
		{event.FinancialCrisis, "anxious"},
		{event.MealSharing, "neutral"},
		{event.Type("unknown_thing"), "neutral"},
	}

	for _, tt := range tests {
		if got := FeelingFor(tt.typ); got != tt.want {
			t.Errorf("FeelingFor(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestValenceFor(t *testing.T) {
	tests := []struct {
		severity event.Severity
		want     memory.Valence
	}{
		{event.SeverityLow, memory.ValenceMixed},
		{event.SeverityMedium, memory.ValenceMixed},
		{event.SeverityHigh, memory.ValenceMixed},
		{event.SeverityCritical, memory.ValenceNegative},
	}

	for _, tt := range tests {
		if got := ValenceFor(tt.severity); got != tt.want {
			t.Errorf("ValenceFor(%s) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestCreateMemoryForCharacter(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := event.GameEvent{
		ID:              "ev-1",
		Type:            event.KitchenArgument,
		Description:     "  Who LEFT the milk   out again tonight  ",
		CharacterIDs:    []string{"a", "b", "c"},
		Severity:        event.SeverityHigh,
		EmotionalWeight: 140,
		ComedyPotential: 80,
		Timestamp:       at,
	}

	m := CreateMemoryForCharacter(ev, "b")

	if m.ID != "ev-1_b" {
		t.Errorf("unexpected id %q", m.ID)
	}
	if m.Importance != 140 {
		t.Errorf("expected importance to equal emotional weight, got %d", m.Importance)
	}
	if m.EmotionalContext.Intensity != 100 {
		t.Errorf("expected intensity clamped to 100, got %d", m.EmotionalContext.Intensity)
	}
	wantKeywords := []string{"who", "left", "the", "milk", "out"}
	if len(m.TriggerKeywords) != len(wantKeywords) {
		t.Fatalf("expected %d keywords, got %v", len(wantKeywords), m.TriggerKeywords)
	}
	for i, k := range wantKeywords {
		if m.TriggerKeywords[i] != k {
			t.Errorf("keyword %d = %q, want %q", i, m.TriggerKeywords[i], k)
		}
	}
	if len(m.InvolvedCharacters) != 2 || m.InvolvedCharacters[0] != "a" || m.InvolvedCharacters[1] != "c" {
		t.Errorf("unexpected involved characters %v", m.InvolvedCharacters)
	}
	if m.ComedyPotential != 80 {
		t.Errorf("expected comedy potential 80, got %d", m.ComedyPotential)
	}
	if !m.CreatedAt.Equal(at) || !m.LastRecalled.Equal(at) {
		t.Errorf("expected timestamps to equal event time")
	}
	if m.Decay != 0 || m.RecallCount != 0 {
		t.Errorf("expected fresh memory, got decay %v recall %d", m.Decay, m.RecallCount)
	}
}

func TestCreateMemoryForCharacter_ShortDescription(t *testing.T) {
	m := CreateMemoryForCharacter(event.GameEvent{ID: "ev", Description: "Victory!"}, "a")
	if len(m.TriggerKeywords) != 1 || m.TriggerKeywords[0] != "victory!" {
		t.Errorf("unexpected keywords %v", m.TriggerKeywords)
	}
}

func TestDeriveMemories_Empty(t *testing.T) {
	if got := DeriveMemories(event.GameEvent{ID: "ev"}); len(got) != 0 {
		t.Errorf("expected no memories, got %d", len(got))
	}
}
