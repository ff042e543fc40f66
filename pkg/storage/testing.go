package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
)

// StorageTestSuite defines a test suite that can be run against any Store implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Store
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("EventRoundTrip", s.TestEventRoundTrip)
	t.Run("EventNotFound", s.TestEventNotFound)
	t.Run("MemoryPersistence", s.TestMemoryPersistence)
	t.Run("MemoryReferenceValidation", s.TestMemoryReferenceValidation)
	t.Run("RaiseDecay", s.TestRaiseDecay)
	t.Run("DecayKeepsConcurrentRecall", s.TestDecayKeepsConcurrentRecall)
	t.Run("CharacterIDsWithSeparators", s.TestCharacterIDsWithSeparators)
	t.Run("ListCharacters", s.TestListCharacters)
	t.Run("RecordRecall", s.TestRecordRecall)
	t.Run("RecentEventsWindow", s.TestRecentEventsWindow)
	t.Run("Relationships", s.TestRelationships)
	t.Run("EmotionalState", s.TestEmotionalState)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("CancelledContext", s.TestCancelledContext)
	t.Run("Ping", s.TestPing)
}

func testEvent(id string, at time.Time, characters ...string) *event.GameEvent {
	return &event.GameEvent{
		ID:              id,
		Type:            event.KitchenArgument,
		Description:     "argument over the last slice of pizza",
		CharacterIDs:    characters,
		Severity:        event.SeverityMedium,
		EmotionalWeight: 60,
		ComedyPotential: 70,
		Metadata:        map[string]string{"room": "kitchen"},
		Timestamp:       at,
	}
}

func testMemory(id, characterID, eventID string, createdAt time.Time) *memory.CharacterMemory {
	return &memory.CharacterMemory{
		ID:          id,
		CharacterID: characterID,
		EventID:     eventID,
		Summary:     "argument over the last slice of pizza",
		EmotionalContext: memory.EmotionalContext{
			Feeling:   "irritated",
			Intensity: 60,
			Valence:   memory.ValenceNegative,
		},
		Importance:      60,
		LastRecalled:    createdAt,
		BestUsedIn:      []string{"kitchen"},
		TriggerKeywords: []string{"kitchen", "argument"},
		CreatedAt:       createdAt,
	}
}

// TestEventRoundTrip tests saving and reading back an event.
func (s *StorageTestSuite) TestEventRoundTrip(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	ev := testEvent("ev-1", now, "alice", "bob")

	if err := store.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	got, err := store.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Type != ev.Type {
		t.Errorf("expected Type %s, got %s", ev.Type, got.Type)
	}
	if len(got.CharacterIDs) != 2 {
		t.Errorf("expected 2 characters, got %d", len(got.CharacterIDs))
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("expected Timestamp %v, got %v", now, got.Timestamp)
	}
	if got.Metadata["room"] != "kitchen" {
		t.Errorf("expected metadata to survive, got %v", got.Metadata)
	}

	// Mutating the returned copy must not affect the stored event.
	got.CharacterIDs[0] = "mallory"
	again, _ := store.GetEvent(ctx, "ev-1")
	if again.CharacterIDs[0] != "alice" {
		t.Errorf("stored event was mutated through a returned copy")
	}
}

// TestEventNotFound tests that unknown events return NotFoundError.
func (s *StorageTestSuite) TestEventNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	_, err := store.GetEvent(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

// TestMemoryPersistence tests that memories are stored per character.
func (s *StorageTestSuite) TestMemoryPersistence(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.SaveEvent(ctx, testEvent("ev-1", now, "alice", "bob")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	first := testMemory("mem-a", "alice", "ev-1", now)
	first.InvolvedCharacters = []string{"bob"}
	second := testMemory("mem-b", "bob", "ev-1", now)
	second.InvolvedCharacters = []string{"alice"}
	third := testMemory("mem-c", "alice", "ev-1", now.Add(time.Second))

	for _, m := range []*memory.CharacterMemory{third, first, second} {
		if err := store.SaveMemory(ctx, m); err != nil {
			t.Fatalf("SaveMemory(%s) failed: %v", m.ID, err)
		}
	}

	alice, err := store.GetCharacterMemories(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("expected 2 memories for alice, got %d", len(alice))
	}
	if alice[0].ID != "mem-a" || alice[1].ID != "mem-c" {
		t.Errorf("expected oldest first [mem-a mem-c], got [%s %s]", alice[0].ID, alice[1].ID)
	}
	if alice[0].InvolvedCharacters[0] != "bob" {
		t.Errorf("expected involved characters to survive, got %v", alice[0].InvolvedCharacters)
	}

	none, err := store.GetCharacterMemories(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no memories, got %d", len(none))
	}
}

// TestMemoryReferenceValidation tests that memories must point at a persisted event
// involving their owner.
func (s *StorageTestSuite) TestMemoryReferenceValidation(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	err := store.SaveMemory(ctx, testMemory("mem-1", "alice", "missing", now))
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError for missing event, got %v", err)
	}

	if err := store.SaveEvent(ctx, testEvent("ev-1", now, "alice")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	err = store.SaveMemory(ctx, testMemory("mem-2", "carol", "ev-1", now))
	var invalid *InvalidReferenceError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidReferenceError for outsider, got %v", err)
	}

	err = store.SaveMemory(ctx, testMemory("", "alice", "ev-1", now))
	if !errors.Is(err, memory.ErrInvalidMemoryID) {
		t.Errorf("expected ErrInvalidMemoryID, got %v", err)
	}
}

// TestRaiseDecay tests that decay only moves up and touches nothing else.
func (s *StorageTestSuite) TestRaiseDecay(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.SaveEvent(ctx, testEvent("ev-1", now, "alice", "bob")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := store.SaveMemory(ctx, testMemory("mem-1", "alice", "ev-1", now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	raised, err := store.RaiseDecay(ctx, "alice", "mem-1", 42.5)
	if err != nil {
		t.Fatalf("RaiseDecay failed: %v", err)
	}
	if !raised {
		t.Errorf("expected first raise to change the memory")
	}

	raised, err = store.RaiseDecay(ctx, "alice", "mem-1", 10)
	if err != nil {
		t.Fatalf("RaiseDecay failed: %v", err)
	}
	if raised {
		t.Errorf("expected a lower decay to be ignored")
	}

	got, err := store.GetCharacterMemories(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if got[0].Decay != 42.5 {
		t.Errorf("expected Decay 42.5, got %v", got[0].Decay)
	}
	if got[0].Importance != 60 || got[0].Summary == "" {
		t.Errorf("expected other fields untouched, got %+v", got[0])
	}

	if _, err := store.RaiseDecay(ctx, "alice", "mem-404", 50); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown memory, got %v", err)
	}
	if _, err := store.RaiseDecay(ctx, "bob", "mem-1", 50); !IsNotFound(err) {
		t.Errorf("expected NotFoundError for another owner, got %v", err)
	}
}

// recallDuringDecay records a recall of every memory right after the decay
// job has read them, before it writes decay back.
type recallDuringDecay struct {
	Store
	at  time.Time
	err error
}

func (r *recallDuringDecay) GetCharacterMemories(ctx context.Context, characterID string) ([]memory.CharacterMemory, error) {
	memories, err := r.Store.GetCharacterMemories(ctx, characterID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(memories))
	for _, m := range memories {
		ids = append(ids, m.ID)
	}
	r.err = r.Store.RecordRecall(ctx, characterID, ids, r.at)
	return memories, nil
}

// TestDecayKeepsConcurrentRecall tests that a decay pass never undoes a recall
// recorded between its read and its write.
func (s *StorageTestSuite) TestDecayKeepsConcurrentRecall(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SaveEvent(ctx, testEvent("ev-1", created, "alice")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := store.SaveMemory(ctx, testMemory("mem-1", "alice", "ev-1", created)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	recalledAt := created.Add(47 * time.Hour)
	wrapped := &recallDuringDecay{Store: store, at: recalledAt}
	job, err := memory.NewDecayJob(wrapped, 72, time.Hour,
		memory.WithDecayClock(func() time.Time { return created.Add(48 * time.Hour) }))
	if err != nil {
		t.Fatalf("NewDecayJob failed: %v", err)
	}

	updated, err := job.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if wrapped.err != nil {
		t.Fatalf("RecordRecall failed: %v", wrapped.err)
	}
	if updated != 1 {
		t.Errorf("expected 1 decayed memory, got %d", updated)
	}

	got, err := store.GetCharacterMemories(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if got[0].RecallCount != 1 {
		t.Errorf("expected RecallCount 1 after decay, got %d", got[0].RecallCount)
	}
	if !got[0].LastRecalled.Equal(recalledAt) {
		t.Errorf("expected LastRecalled %v after decay, got %v", recalledAt, got[0].LastRecalled)
	}
	if got[0].Decay <= 0 {
		t.Errorf("expected decay to accrue, got %v", got[0].Decay)
	}
}

// TestCharacterIDsWithSeparators tests that an id which prefixes another id,
// such as "team" and "team:a", never shares memories, events or relationships.
func (s *StorageTestSuite) TestCharacterIDsWithSeparators(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.SaveEvent(ctx, testEvent("ev-team", now.Add(-time.Minute), "team")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := store.SaveEvent(ctx, testEvent("ev-squad", now, "team:a")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := store.SaveMemory(ctx, testMemory("ev-team_team", "team", "ev-team", now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if err := store.SaveMemory(ctx, testMemory("ev-squad_team:a", "team:a", "ev-squad", now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	team, err := store.GetCharacterMemories(ctx, "team")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if len(team) != 1 || team[0].CharacterID != "team" {
		t.Errorf("expected only team's memory, got %+v", team)
	}

	ids, err := store.ListCharacters(ctx)
	if err != nil {
		t.Fatalf("ListCharacters failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "team" || ids[1] != "team:a" {
		t.Errorf("expected [team team:a], got %q", ids)
	}

	recent, err := store.GetRecentEvents(ctx, "team", time.Hour)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "ev-team" {
		t.Errorf("expected only ev-team, got %v", recent)
	}

	for _, rel := range []memory.Relationship{
		{CharacterID: "a", OtherID: "b:c", Trust: 10},
		{CharacterID: "a:b", OtherID: "c", Trust: 90},
	} {
		if err := store.SaveRelationship(ctx, rel); err != nil {
			t.Fatalf("SaveRelationship failed: %v", err)
		}
	}
	rels, err := store.GetRelationships(ctx, "a", []string{"b:c"})
	if err != nil {
		t.Fatalf("GetRelationships failed: %v", err)
	}
	if rels["b:c"].Trust != 10 {
		t.Errorf("expected Trust 10 for a -> b:c, got %d", rels["b:c"].Trust)
	}
}

// TestListCharacters tests enumerating memory owners.
func (s *StorageTestSuite) TestListCharacters(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	if err := store.SaveEvent(ctx, testEvent("ev-1", now, "bob", "alice")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	for _, id := range []string{"bob", "alice"} {
		if err := store.SaveMemory(ctx, testMemory("mem-"+id, id, "ev-1", now)); err != nil {
			t.Fatalf("SaveMemory failed: %v", err)
		}
	}

	ids, err := store.ListCharacters(ctx)
	if err != nil {
		t.Fatalf("ListCharacters failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Errorf("expected [alice bob], got %v", ids)
	}
}

// TestRecordRecall tests that recall updates LastRecalled and RecallCount.
func (s *StorageTestSuite) TestRecordRecall(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	if err := store.SaveEvent(ctx, testEvent("ev-1", created, "alice")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := store.SaveMemory(ctx, testMemory("mem-1", "alice", "ev-1", created)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	recalled := created.Add(30 * time.Minute)
	for i := 0; i < 2; i++ {
		if err := store.RecordRecall(ctx, "alice", []string{"mem-1"}, recalled); err != nil {
			t.Fatalf("RecordRecall failed: %v", err)
		}
	}

	got, _ := store.GetCharacterMemories(ctx, "alice")
	if got[0].RecallCount != 2 {
		t.Errorf("expected RecallCount 2, got %d", got[0].RecallCount)
	}
	if !got[0].LastRecalled.Equal(recalled) {
		t.Errorf("expected LastRecalled %v, got %v", recalled, got[0].LastRecalled)
	}

	err := store.RecordRecall(ctx, "alice", []string{"mem-404"}, recalled)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

// TestRecentEventsWindow tests the trailing window and newest-first ordering.
func (s *StorageTestSuite) TestRecentEventsWindow(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	events := []*event.GameEvent{
		testEvent("old", now.Add(-10*time.Hour), "alice"),
		testEvent("older-recent", now.Add(-2*time.Hour), "alice", "bob"),
		testEvent("newest", now.Add(-10*time.Minute), "alice"),
		testEvent("other", now.Add(-time.Minute), "bob"),
	}
	for _, ev := range events {
		if err := store.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}

	recent, err := store.GetRecentEvents(ctx, "alice", 6*time.Hour)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent events, got %d", len(recent))
	}
	if recent[0].ID != "newest" || recent[1].ID != "older-recent" {
		t.Errorf("expected [newest older-recent], got [%s %s]", recent[0].ID, recent[1].ID)
	}

	bob, err := store.GetRecentEvents(ctx, "bob", 6*time.Hour)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(bob) != 2 {
		t.Errorf("expected 2 recent events for bob, got %d", len(bob))
	}
}

// TestRelationships tests that only known relationships are returned.
func (s *StorageTestSuite) TestRelationships(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	rel := memory.Relationship{
		CharacterID: "alice",
		OtherID:     "bob",
		Trust:       20,
		Rivalry:     80,
		UpdatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.SaveRelationship(ctx, rel); err != nil {
		t.Fatalf("SaveRelationship failed: %v", err)
	}

	rels, err := store.GetRelationships(ctx, "alice", []string{"bob", "carol"})
	if err != nil {
		t.Fatalf("GetRelationships failed: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if rels["bob"].Rivalry != 80 {
		t.Errorf("expected Rivalry 80, got %d", rels["bob"].Rivalry)
	}
	if _, ok := rels["carol"]; ok {
		t.Errorf("expected unknown relationship to be omitted")
	}

	// Relationships are directional.
	reverse, err := store.GetRelationships(ctx, "bob", []string{"alice"})
	if err != nil {
		t.Fatalf("GetRelationships failed: %v", err)
	}
	if len(reverse) != 0 {
		t.Errorf("expected no reverse relationship, got %v", reverse)
	}

	if err := store.SaveRelationship(ctx, memory.Relationship{CharacterID: "alice"}); err == nil {
		t.Errorf("expected error for relationship without other character")
	}
}

// TestEmotionalState tests saving state and the zero default.
func (s *StorageTestSuite) TestEmotionalState(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	calm, err := store.GetEmotionalState(ctx, "alice")
	if err != nil {
		t.Fatalf("GetEmotionalState failed: %v", err)
	}
	if calm.Stress != 0 || len(calm.ActiveConflicts) != 0 {
		t.Errorf("expected zero state, got %+v", calm)
	}
	if calm.CharacterID != "alice" {
		t.Errorf("expected CharacterID alice, got %q", calm.CharacterID)
	}

	state := memory.EmotionalState{
		CharacterID:     "alice",
		Stress:          85,
		ActiveConflicts: []string{"money"},
		Mood:            "anxious",
	}
	if err := store.SaveEmotionalState(ctx, state); err != nil {
		t.Fatalf("SaveEmotionalState failed: %v", err)
	}

	got, err := store.GetEmotionalState(ctx, "alice")
	if err != nil {
		t.Fatalf("GetEmotionalState failed: %v", err)
	}
	if got.Stress != 85 || len(got.ActiveConflicts) != 1 || got.ActiveConflicts[0] != "money" {
		t.Errorf("unexpected state %+v", got)
	}
}

// TestConcurrentAccess tests concurrent writers and readers.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	if err := store.SaveEvent(ctx, testEvent("ev-shared", now, "alice")); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)

	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m := testMemory(fmt.Sprintf("mem-%d", i), "alice", "ev-shared", now.Add(time.Duration(i)*time.Millisecond))
			if err := store.SaveMemory(ctx, m); err != nil {
				errs <- err
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := store.GetCharacterMemories(ctx, "alice"); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	got, err := store.GetCharacterMemories(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if len(got) != workers {
		t.Errorf("expected %d memories, got %d", workers, len(got))
	}
}

// TestCancelledContext tests that writes observe cancellation.
func (s *StorageTestSuite) TestCancelledContext(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.SaveEvent(ctx, testEvent("ev-1", time.Now(), "alice"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestPing checks the health probe before and after Close.
func (s *StorageTestSuite) TestPing(t *testing.T) {
	store := s.NewStorage(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on open store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Ping with cancelled context = %v, want context.Canceled", err)
	}

	_ = store.Close()
}
