package memory

// Clone returns a deep copy of m.
func (m *CharacterMemory) Clone() *CharacterMemory {
	if m == nil {
		return nil
	}
	clone := *m
	clone.InvolvedCharacters = cloneStrings(m.InvolvedCharacters)
	clone.BestUsedIn = cloneStrings(m.BestUsedIn)
	clone.TriggerKeywords = cloneStrings(m.TriggerKeywords)
	clone.ContradictsWith = cloneStrings(m.ContradictsWith)
	if m.RelationshipImpact != nil {
		clone.RelationshipImpact = make(map[string]int, len(m.RelationshipImpact))
		for key, value := range m.RelationshipImpact {
			clone.RelationshipImpact[key] = value
		}
	}
	if m.SceneRelevance != nil {
		clone.SceneRelevance = make(map[string]float64, len(m.SceneRelevance))
		for key, value := range m.SceneRelevance {
			clone.SceneRelevance[key] = value
		}
	}
	return &clone
}

// CloneAll deep copies a slice of memories.
func CloneAll(memories []CharacterMemory) []CharacterMemory {
	if memories == nil {
		return nil
	}
	out := make([]CharacterMemory, len(memories))
	for i := range memories {
		out[i] = *memories[i].Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
