package scene

import (
	"fmt"
	"sort"
	"sync"
)

// Table is a concurrency-safe set of scene profiles with a default fallback.
type Table struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	fallback Profile
}

// NewTable creates a table. A nil map means DefaultProfiles.
func NewTable(profiles map[string]Profile) *Table {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	t := &Table{fallback: Default()}
	t.profiles = normalizeAll(profiles)
	return t
}

func normalizeAll(profiles map[string]Profile) map[string]Profile {
	out := make(map[string]Profile, len(profiles))
	for id, p := range profiles {
		if p.ID == "" {
			p.ID = id
		}
		out[id] = p.normalized()
	}
	return out
}

// Get returns the authored profile for id.
func (t *Table) Get(id string) (Profile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return p.normalized(), true
}

// Lookup returns the profile for id, or the default profile.
func (t *Table) Lookup(id string) Profile {
	if p, ok := t.Get(id); ok {
		return p
	}
	return t.fallback.normalized()
}

// Replace swaps in a new profile set after validating it.
func (t *Table) Replace(profiles map[string]Profile) error {
	normalized := normalizeAll(profiles)
	for id, p := range normalized {
		if err := Validate(p); err != nil {
			return fmt.Errorf("scene %s: %w", id, err)
		}
	}

	t.mu.Lock()
	t.profiles = normalized
	t.mu.Unlock()
	return nil
}

// IDs returns the authored scene ids in sorted order.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.profiles))
	for id := range t.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge returns base with every profile in overlay added or replaced.
func Merge(base, overlay map[string]Profile) map[string]Profile {
	out := make(map[string]Profile, len(base)+len(overlay))
	for id, p := range base {
		out[id] = p
	}
	for id, p := range overlay {
		out[id] = p
	}
	return out
}
