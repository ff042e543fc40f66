package contextbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachverse/recall/pkg/memory"
)

func contradictingPair(symmetric bool) (memory.CharacterMemory, memory.CharacterMemory) {
	x := memory.CharacterMemory{ID: "x", Summary: "I will never betray the team", ContradictsWith: []string{"y"}}
	y := memory.CharacterMemory{ID: "y", Summary: "Sold the strategy to the rivals"}
	if symmetric {
		y.ContradictsWith = []string{"x"}
	}
	return x, y
}

func TestFindContradictions_Linked(t *testing.T) {
	x, y := contradictingPair(false)

	lines := FindContradictions([]memory.CharacterMemory{x, y})
	require.Len(t, lines, 1)
	assert.Equal(t, `You said "I will never betray the team" but then did "Sold the strategy to the rivals"`, lines[0])
}

func TestFindContradictions_SymmetricLinksSurviveReordering(t *testing.T) {
	x, y := contradictingPair(true)

	forward := FindContradictions([]memory.CharacterMemory{x, y})
	reversed := FindContradictions([]memory.CharacterMemory{y, x})
	require.Len(t, forward, 1)
	require.Len(t, reversed, 1)
	assert.Contains(t, reversed[0], x.Summary)
	assert.Contains(t, reversed[0], y.Summary)
	assert.Empty(t, FindAsymmetricContradictions([]memory.CharacterMemory{x, y}))
}

func TestFindContradictions_AsymmetricLinkIsFlagged(t *testing.T) {
	x, y := contradictingPair(false)

	assert.Len(t, FindContradictions([]memory.CharacterMemory{x, y}), 1)
	assert.Empty(t, FindContradictions([]memory.CharacterMemory{y, x}), "one-sided link depends on order")

	want := []ContradictionLink{{FromID: "x", ToID: "y"}}
	assert.Equal(t, want, FindAsymmetricContradictions([]memory.CharacterMemory{x, y}))
	assert.Equal(t, want, FindAsymmetricContradictions([]memory.CharacterMemory{y, x}))
}

func TestFindContradictions_NoLinks(t *testing.T) {
	assert.Empty(t, FindContradictions(nil))
	assert.Empty(t, FindContradictions([]memory.CharacterMemory{{ID: "a"}, {ID: "b"}}))
}

func TestFindCallbacks(t *testing.T) {
	memories := []memory.CharacterMemory{
		{Summary: "fresh joke", ComedyPotential: 80, BestUsedIn: []string{"kitchen"}, RecallCount: 0},
		{Summary: "used twice", ComedyPotential: 61, BestUsedIn: []string{"kitchen", "battle"}, RecallCount: 2},
		{Summary: "retired", ComedyPotential: 99, BestUsedIn: []string{"kitchen"}, RecallCount: 3},
		{Summary: "worn out", ComedyPotential: 99, BestUsedIn: []string{"kitchen"}, RecallCount: 10},
		{Summary: "not funny", ComedyPotential: 60, BestUsedIn: []string{"kitchen"}},
		{Summary: "wrong scene", ComedyPotential: 90, BestUsedIn: []string{"therapy"}},
	}

	assert.Equal(t, []string{"fresh joke", "used twice"}, FindCallbacks("kitchen", memories))
	assert.Equal(t, []string{"used twice"}, FindCallbacks("battle", memories))
	assert.Empty(t, FindCallbacks("kitchen", nil))
}

func TestFindCallbacks_NeverReturnsRetiredMemories(t *testing.T) {
	var memories []memory.CharacterMemory
	for recalls := 0; recalls < 6; recalls++ {
		memories = append(memories, memory.CharacterMemory{
			Summary:         string(rune('a' + recalls)),
			ComedyPotential: 100,
			BestUsedIn:      []string{"kitchen"},
			RecallCount:     recalls,
		})
	}

	got := FindCallbacks("kitchen", memories)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
