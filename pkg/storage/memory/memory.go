// Package memory provides an in-memory implementation of the storage interfaces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coachverse/recall/pkg/event"
	mem "github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/storage"
)

// MemoryStorage implements storage.Store using in-memory maps.
type MemoryStorage struct {
	mu            sync.RWMutex
	events        map[string]*event.GameEvent
	memories      map[string]*mem.CharacterMemory
	byCharacter   map[string][]string                    // characterID -> memory IDs
	relationships map[string]map[string]mem.Relationship // characterID -> otherID -> Relationship
	states        map[string]mem.EmotionalState
	now           func() time.Time
}

// Option configures a MemoryStorage.
type Option func(*MemoryStorage)

// WithClock overrides the clock used for recent-event windows.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStorage) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage(opts ...Option) *MemoryStorage {
	m := &MemoryStorage{
		events:        make(map[string]*event.GameEvent),
		memories:      make(map[string]*mem.CharacterMemory),
		byCharacter:   make(map[string][]string),
		relationships: make(map[string]map[string]mem.Relationship),
		states:        make(map[string]mem.EmotionalState),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SaveEvent stores a copy of ev.
func (m *MemoryStorage) SaveEvent(ctx context.Context, ev *event.GameEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[ev.ID] = ev.Clone()
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MemoryStorage) GetEvent(ctx context.Context, id string) (*event.GameEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, exists := m.events[id]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "event", ID: id}
	}
	return ev.Clone(), nil
}

// SaveMemory stores a copy of cm after checking it against its event.
func (m *MemoryStorage) SaveMemory(ctx context.Context, cm *mem.CharacterMemory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := m.events[cm.EventID]
	if err := storage.ValidateMemoryReference(cm, ev); err != nil {
		return err
	}

	if _, exists := m.memories[cm.ID]; !exists {
		m.byCharacter[cm.CharacterID] = append(m.byCharacter[cm.CharacterID], cm.ID)
	}
	m.memories[cm.ID] = cm.Clone()
	return nil
}

// RaiseDecay raises a stored memory's Decay to decay if that is higher.
func (m *MemoryStorage) RaiseDecay(ctx context.Context, characterID, memoryID string, decay float64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cm, exists := m.memories[memoryID]
	if !exists || cm.CharacterID != characterID {
		return false, &storage.NotFoundError{EntityType: "memory", ID: memoryID}
	}
	if decay <= cm.Decay {
		return false, nil
	}
	cm.Decay = decay
	return true, nil
}

// GetCharacterMemories returns all memories owned by characterID, oldest first.
func (m *MemoryStorage) GetCharacterMemories(ctx context.Context, characterID string) ([]mem.CharacterMemory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byCharacter[characterID]
	result := make([]mem.CharacterMemory, 0, len(ids))
	for _, id := range ids {
		result = append(result, *m.memories[id].Clone())
	}
	sortMemories(result)
	return result, nil
}

// ListCharacters returns every character that owns at least one memory.
func (m *MemoryStorage) ListCharacters(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.byCharacter))
	for id := range m.byCharacter {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// RecordRecall bumps LastRecalled and RecallCount for each listed memory.
func (m *MemoryStorage) RecordRecall(ctx context.Context, characterID string, memoryIDs []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range memoryIDs {
		cm, exists := m.memories[id]
		if !exists || cm.CharacterID != characterID {
			return &storage.NotFoundError{EntityType: "memory", ID: id}
		}
	}
	for _, id := range memoryIDs {
		m.memories[id].MarkRecalled(at)
	}
	return nil
}

// GetRecentEvents returns events involving characterID within window, newest first.
func (m *MemoryStorage) GetRecentEvents(ctx context.Context, characterID string, window time.Duration) ([]event.GameEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := m.now().Add(-window)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []event.GameEvent
	for _, ev := range m.events {
		if ev.Timestamp.Before(cutoff) || !ev.Involves(characterID) {
			continue
		}
		result = append(result, *ev.Clone())
	}
	sortEvents(result)
	return result, nil
}

// SaveRelationship stores the relationship from rel.CharacterID towards rel.OtherID.
func (m *MemoryStorage) SaveRelationship(ctx context.Context, rel mem.Relationship) error {
	if rel.CharacterID == "" || rel.OtherID == "" {
		return mem.ErrInvalidCharacterID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.relationships[rel.CharacterID] == nil {
		m.relationships[rel.CharacterID] = make(map[string]mem.Relationship)
	}
	rel.History = append([]string(nil), rel.History...)
	m.relationships[rel.CharacterID][rel.OtherID] = rel
	return nil
}

// GetRelationships returns the stored relationships towards others. Unknown pairs are omitted.
func (m *MemoryStorage) GetRelationships(ctx context.Context, characterID string, others []string) (mem.RelationshipMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(mem.RelationshipMap, len(others))
	for _, other := range others {
		rel, exists := m.relationships[characterID][other]
		if !exists {
			continue
		}
		rel.History = append([]string(nil), rel.History...)
		result[other] = rel
	}
	return result, nil
}

// SaveEmotionalState stores a character's current emotional state.
func (m *MemoryStorage) SaveEmotionalState(ctx context.Context, state mem.EmotionalState) error {
	if state.CharacterID == "" {
		return mem.ErrInvalidCharacterID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state.ActiveConflicts = append([]string(nil), state.ActiveConflicts...)
	m.states[state.CharacterID] = state
	return nil
}

// GetEmotionalState returns the stored state, or a calm zero state.
func (m *MemoryStorage) GetEmotionalState(ctx context.Context, characterID string) (mem.EmotionalState, error) {
	if err := ctx.Err(); err != nil {
		return mem.EmotionalState{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[characterID]
	if !exists {
		return mem.EmotionalState{CharacterID: characterID}, nil
	}
	state.ActiveConflicts = append([]string(nil), state.ActiveConflicts...)
	return state, nil
}

// Ping always succeeds unless ctx is done.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close closes the storage (no-op for memory storage).
func (m *MemoryStorage) Close() error {
	return nil
}

func sortMemories(memories []mem.CharacterMemory) {
	sort.SliceStable(memories, func(i, j int) bool {
		if !memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].CreatedAt.Before(memories[j].CreatedAt)
		}
		return memories[i].ID < memories[j].ID
	})
}

func sortEvents(events []event.GameEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
}

var _ storage.Store = (*MemoryStorage)(nil)
