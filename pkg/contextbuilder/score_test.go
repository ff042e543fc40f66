package contextbuilder

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/scene"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	store := newFakeStore()
	b, err := New(store, store, scene.NewTable(nil), opts...)
	require.NoError(t, err)
	return b
}

func baseMemory(id string) memory.CharacterMemory {
	return memory.CharacterMemory{
		ID:          id,
		CharacterID: "achilles",
		EventID:     "ev-" + id,
		Summary:     "summary " + id,
		EmotionalContext: memory.EmotionalContext{
			Feeling:   "frustrated",
			Intensity: 40,
			Valence:   memory.ValenceMixed,
		},
		Importance:   50,
		LastRecalled: now.Add(-10 * time.Hour),
		CreatedAt:    now.Add(-10 * time.Hour),
	}
}

func TestScore_StressedCharacterFixatesOnNegativeMemory(t *testing.T) {
	b := newTestBuilder(t)
	m := baseMemory("m1")
	m.EmotionalContext.Valence = memory.ValenceNegative

	calm := memory.EmotionalState{CharacterID: "achilles", Stress: 50}
	stressed := memory.EmotionalState{CharacterID: "achilles", Stress: 85}

	// "rooftop" has no authored profile, so the 0.25 default weights apply.
	calmScore := b.ScoreMemoryRelevance(m, "rooftop", nil, calm, now)
	stressedScore := b.ScoreMemoryRelevance(m, "rooftop", nil, stressed, now)

	assert.InDelta(t, 30*0.25, stressedScore-calmScore, 1e-9)

	// recency (100-20)*0.25 + intensity 40*0.25*0.01 + importance 50*0.2
	assert.InDelta(t, 20+0.1+10, calmScore, 1e-9)
	assert.InDelta(t, 20+0.1+10+7.5, stressedScore, 1e-9)
}

func TestScore_StressAtThresholdDoesNotFixate(t *testing.T) {
	b := newTestBuilder(t)
	m := baseMemory("m1")
	m.EmotionalContext.Valence = memory.ValenceNegative

	at := b.ScoreMemoryRelevance(m, "rooftop", nil, memory.EmotionalState{Stress: 70}, now)
	below := b.ScoreMemoryRelevance(m, "rooftop", nil, memory.EmotionalState{Stress: 10}, now)
	assert.Equal(t, below, at)
}

func TestScore_Terms(t *testing.T) {
	b := newTestBuilder(t)
	base := baseMemory("m1")
	baseline := b.ScoreMemoryRelevance(base, "rooftop", nil, memory.EmotionalState{}, now)

	tests := []struct {
		name   string
		mutate func(m *memory.CharacterMemory)
		scene  string
		others []string
		state  memory.EmotionalState
		delta  float64
	}{
		{
			name:   "scene relevance",
			mutate: func(m *memory.CharacterMemory) { m.SceneRelevance = map[string]float64{"rooftop": 10} },
			scene:  "rooftop",
			delta:  3,
		},
		{
			name:   "co-present character",
			mutate: func(m *memory.CharacterMemory) { m.InvolvedCharacters = []string{"hector"} },
			scene:  "rooftop",
			others: []string{"paris", "hector"},
			delta:  40,
		},
		{
			name:   "absent character",
			mutate: func(m *memory.CharacterMemory) { m.InvolvedCharacters = []string{"hector"} },
			scene:  "rooftop",
			others: []string{"paris"},
			delta:  0,
		},
		{
			name:   "active conflict keyword",
			mutate: func(m *memory.CharacterMemory) { m.TriggerKeywords = []string{"who", "ate", "money"} },
			scene:  "rooftop",
			state:  memory.EmotionalState{ActiveConflicts: []string{"money", "ate"}},
			delta:  50 * 0.25,
		},
		{
			name:   "comedic memory",
			mutate: func(m *memory.CharacterMemory) { m.ComedyPotential = 80 },
			scene:  "rooftop",
			delta:  80 * 0.25 * 0.01,
		},
		{
			name:   "comedy at threshold",
			mutate: func(m *memory.CharacterMemory) { m.ComedyPotential = 70 },
			scene:  "rooftop",
			delta:  0,
		},
		{
			name:   "decay penalty",
			mutate: func(m *memory.CharacterMemory) { m.Decay = 30 },
			scene:  "rooftop",
			delta:  -3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := baseMemory("m1")
			tt.mutate(&m)
			got := b.ScoreMemoryRelevance(m, tt.scene, tt.others, tt.state, now)
			assert.InDelta(t, baseline+tt.delta, got, 1e-9)
		})
	}
}

func TestScore_ComedySuppressedInTherapy(t *testing.T) {
	b := newTestBuilder(t)
	funny := baseMemory("m1")
	funny.ComedyPotential = 95
	plain := baseMemory("m1")

	table := scene.NewTable(map[string]scene.Profile{
		scene.Therapy: {Weights: scene.Weights{Comedy: 1}},
		scene.Kitchen: {Weights: scene.Weights{Comedy: 1}},
	})
	b.profiles = table

	assert.Equal(t,
		b.ScoreMemoryRelevance(plain, scene.Therapy, nil, memory.EmotionalState{}, now),
		b.ScoreMemoryRelevance(funny, scene.Therapy, nil, memory.EmotionalState{}, now))
	assert.InDelta(t, 0.95,
		b.ScoreMemoryRelevance(funny, scene.Kitchen, nil, memory.EmotionalState{}, now)-
			b.ScoreMemoryRelevance(plain, scene.Kitchen, nil, memory.EmotionalState{}, now), 1e-9)
}

func TestScore_Recency(t *testing.T) {
	b := newTestBuilder(t)
	b.profiles = scene.NewTable(map[string]scene.Profile{"r": {Weights: scene.Weights{Recency: 1}}})

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"just recalled", now, 100},
		{"ten hours", now.Add(-10 * time.Hour), 80},
		{"fifty hours", now.Add(-50 * time.Hour), 0},
		{"long ago", now.Add(-500 * time.Hour), 0},
		{"future", now.Add(time.Hour), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := memory.CharacterMemory{ID: "m", LastRecalled: tt.at}
			assert.InDelta(t, tt.want, b.ScoreMemoryRelevance(m, "r", nil, memory.EmotionalState{}, now), 1e-9)
		})
	}
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	b := newTestBuilder(t)

	extremes := []memory.CharacterMemory{
		{ID: "empty"},
		{ID: "huge", Importance: 1000, ComedyPotential: 1000, InvolvedCharacters: []string{"x"},
			SceneRelevance:   map[string]float64{scene.Kitchen: 1000},
			EmotionalContext: memory.EmotionalContext{Intensity: 1000, Valence: memory.ValenceNegative},
			TriggerKeywords:  []string{"money"}, LastRecalled: now},
		{ID: "decayed", Importance: 0, Decay: 100000},
		{ID: "negative", Importance: -500, SceneRelevance: map[string]float64{scene.Kitchen: -1000}},
	}
	state := memory.EmotionalState{Stress: 100, ActiveConflicts: []string{"money"}}

	for _, sceneID := range append(scene.NewTable(nil).IDs(), "unknown") {
		for _, m := range extremes {
			got := b.ScoreMemoryRelevance(m, sceneID, []string{"x"}, state, now)
			assert.False(t, math.IsNaN(got), "%s/%s is NaN", sceneID, m.ID)
			assert.GreaterOrEqual(t, got, 0.0, "%s/%s", sceneID, m.ID)
			assert.LessOrEqual(t, got, 100.0, "%s/%s", sceneID, m.ID)
		}
	}
}

func manyMemories(n int) []memory.CharacterMemory {
	memories := make([]memory.CharacterMemory, 0, n)
	for i := 0; i < n; i++ {
		m := baseMemory(fmt.Sprintf("m%02d", i))
		m.Importance = (i * 37) % 100
		m.ComedyPotential = (i * 53) % 100
		m.LastRecalled = now.Add(-time.Duration(i%7) * time.Hour)
		if i%3 == 0 {
			m.EmotionalContext.Valence = memory.ValenceNegative
		}
		memories = append(memories, m)
	}
	return memories
}

func TestSelect_RespectsBudget(t *testing.T) {
	b := newTestBuilder(t)
	memories := manyMemories(40)

	for _, sceneID := range append(scene.NewTable(nil).IDs(), "unknown") {
		budget := b.profiles.Lookup(sceneID).MaxMemories
		selected := b.SelectMemoriesForScene(memories, sceneID, nil, memory.EmotionalState{}, now)
		assert.LessOrEqual(t, len(selected), budget, sceneID)
		assert.Len(t, selected, budget, sceneID)
	}

	few := b.SelectMemoriesForScene(memories[:3], "unknown", nil, memory.EmotionalState{}, now)
	assert.Len(t, few, 3)
}

func TestSelect_OrderedAndDeterministic(t *testing.T) {
	b := newTestBuilder(t)
	memories := manyMemories(25)
	state := memory.EmotionalState{Stress: 90, ActiveConflicts: []string{"summary"}}

	first := b.SelectMemoriesForScene(memories, scene.Kitchen, []string{"hector"}, state, now)
	second := b.SelectMemoriesForScene(memories, scene.Kitchen, []string{"hector"}, state, now)
	require.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestSelect_TiesKeepInputOrder(t *testing.T) {
	b := newTestBuilder(t)
	memories := []memory.CharacterMemory{baseMemory("c"), baseMemory("a"), baseMemory("b")}

	selected := b.SelectMemoriesForScene(memories, "unknown", nil, memory.EmotionalState{}, now)
	require.Len(t, selected, 3)
	assert.Equal(t, "c", selected[0].Memory.ID)
	assert.Equal(t, "a", selected[1].Memory.ID)
	assert.Equal(t, "b", selected[2].Memory.ID)
}

func TestSelect_Empty(t *testing.T) {
	b := newTestBuilder(t)
	assert.Empty(t, b.SelectMemoriesForScene(nil, scene.Battle, nil, memory.EmotionalState{}, now))
}
