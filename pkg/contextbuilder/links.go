package contextbuilder

import (
	"fmt"

	"github.com/coachverse/recall/pkg/memory"
)

const (
	callbackComedyThreshold = 60
	maxCallbackRecalls      = 3
)

// FindContradictions reports, for each pair i<j, whether memory i is linked as
// contradicting memory j. Links are pre-authored; nothing is inferred.
func FindContradictions(memories []memory.CharacterMemory) []string {
	var lines []string
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			if memories[i].Contradicts(memories[j].ID) {
				lines = append(lines, fmt.Sprintf("You said \"%s\" but then did \"%s\"", memories[i].Summary, memories[j].Summary))
			}
		}
	}
	return lines
}

// ContradictionLink is a contradiction recorded on only one side: From lists
// To in ContradictsWith, but To does not list From.
type ContradictionLink struct {
	FromID string
	ToID   string
}

// FindAsymmetricContradictions returns every one-sided link between memories
// in the list. FindContradictions only sees such a link when From precedes To.
func FindAsymmetricContradictions(memories []memory.CharacterMemory) []ContradictionLink {
	var links []ContradictionLink
	for i := range memories {
		for j := range memories {
			if i == j {
				continue
			}
			if memories[i].Contradicts(memories[j].ID) && !memories[j].Contradicts(memories[i].ID) {
				links = append(links, ContradictionLink{FromID: memories[i].ID, ToID: memories[j].ID})
			}
		}
	}
	return links
}

// FindCallbacks returns summaries of comedic memories that fit sceneID and have
// not yet been recalled three times.
func FindCallbacks(sceneID string, memories []memory.CharacterMemory) []string {
	var callbacks []string
	for _, m := range memories {
		if m.ComedyPotential > callbackComedyThreshold && m.FitsScene(sceneID) && m.RecallCount < maxCallbackRecalls {
			callbacks = append(callbacks, m.Summary)
		}
	}
	return callbacks
}
