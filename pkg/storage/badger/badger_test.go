package badger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/storage"
)

// TestBadgerStorageSuite runs the full storage test suite against BadgerStorage.
func TestBadgerStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Store {
			tmpDir, err := os.MkdirTemp("", "badger-test-*")
			if err != nil {
				t.Fatalf("Failed to create temp dir: %v", err)
			}

			t.Cleanup(func() {
				os.RemoveAll(tmpDir)
			})

			config := &Config{
				Path:              tmpDir,
				SyncWrites:        false,
				ValueLogFileSize:  1 << 20,
				NumVersionsToKeep: 1,
			}

			db, err := NewBadgerStorage(config)
			if err != nil {
				t.Fatalf("Failed to create BadgerStorage: %v", err)
			}

			return db
		},
	}

	suite.RunAllTests(t)
}

func setupTestDB(t *testing.T) (*BadgerStorage, func()) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config := &Config{
		Path:              tmpDir,
		SyncWrites:        false,   // Faster for tests
		ValueLogFileSize:  1 << 20, // 1MB
		NumVersionsToKeep: 1,
	}

	db, err := NewBadgerStorage(config)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create BadgerStorage: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestBadgerStorage_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewBadgerStorage(&Config{Path: tmpDir, ValueLogFileSize: 1 << 20})
	if err != nil {
		t.Fatalf("Failed to create BadgerStorage: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	ev := &event.GameEvent{
		ID:           "ev-1",
		Type:         event.BattleVictory,
		Description:  "won the championship",
		CharacterIDs: []string{"achilles", "hector"},
		Severity:     event.SeverityHigh,
		Timestamp:    now,
	}
	if err := db.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	m := &memory.CharacterMemory{
		ID:                 "mem-1",
		CharacterID:        "achilles",
		EventID:            "ev-1",
		Summary:            "won the championship",
		Importance:         80,
		InvolvedCharacters: []string{"hector"},
		BestUsedIn:         []string{"battle", "team_meeting"},
		CreatedAt:          now,
		LastRecalled:       now,
	}
	if err := db.SaveMemory(ctx, m); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	// Close and reopen
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBadgerStorage(&Config{Path: tmpDir, ValueLogFileSize: 1 << 20})
	if err != nil {
		t.Fatalf("Failed to reopen BadgerStorage: %v", err)
	}
	defer reopened.Close()

	memories, err := reopened.GetCharacterMemories(ctx, "achilles")
	if err != nil {
		t.Fatalf("GetCharacterMemories failed: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory after reopen, got %d", len(memories))
	}
	if memories[0].Importance != 80 || len(memories[0].BestUsedIn) != 2 {
		t.Errorf("unexpected memory after reopen: %+v", memories[0])
	}

	recent, err := reopened.GetRecentEvents(ctx, "hector", time.Hour)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "ev-1" {
		t.Errorf("expected ev-1 to be indexed for hector, got %v", recent)
	}
}

func TestBadgerStorage_InMemory(t *testing.T) {
	db, err := NewBadgerStorage(&Config{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerStorage failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.SaveEvent(ctx, &event.GameEvent{ID: "ev-1", CharacterIDs: []string{"a"}, Timestamp: time.Now()}); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if _, err := db.GetEvent(ctx, "ev-1"); err != nil {
		t.Errorf("GetEvent failed: %v", err)
	}
}

func TestBadgerStorage_RecordRecallIsAtomic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	if err := db.SaveEvent(ctx, &event.GameEvent{ID: "ev-1", CharacterIDs: []string{"a"}, Timestamp: now}); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := db.SaveMemory(ctx, &memory.CharacterMemory{ID: "mem-1", CharacterID: "a", EventID: "ev-1", CreatedAt: now}); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	err := db.RecordRecall(ctx, "a", []string{"mem-1", "mem-missing"}, now)
	if !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	memories, _ := db.GetCharacterMemories(ctx, "a")
	if memories[0].RecallCount != 0 {
		t.Errorf("expected failed recall to roll back, got RecallCount %d", memories[0].RecallCount)
	}
}

func TestBadgerStorage_OpenFailure(t *testing.T) {
	f, err := os.CreateTemp("", "badger-file-*")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	_, err = NewBadgerStorage(&Config{Path: f.Name()})
	var unavailable *storage.StorageUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("expected StorageUnavailableError, got %v", err)
	}
}

func TestBadgerStorage_PingAfterClose(t *testing.T) {
	db, err := NewBadgerStorage(&Config{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerStorage failed: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on open db: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var unavailable *storage.StorageUnavailableError
	if err := db.Ping(context.Background()); !errors.As(err, &unavailable) {
		t.Errorf("Ping after Close = %v, want StorageUnavailableError", err)
	}
}

func TestBadgerStorage_RejectsKeySeparator(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	err := db.SaveEvent(ctx, &event.GameEvent{ID: "ev-1", CharacterIDs: []string{"a\x00b"}, Timestamp: time.Now()})
	if !errors.Is(err, memory.ErrInvalidCharacterID) {
		t.Errorf("SaveEvent = %v, want ErrInvalidCharacterID", err)
	}
	err = db.SaveRelationship(ctx, memory.Relationship{CharacterID: "a", OtherID: "b\x00c"})
	if !errors.Is(err, memory.ErrInvalidCharacterID) {
		t.Errorf("SaveRelationship = %v, want ErrInvalidCharacterID", err)
	}
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingLogger) Warn(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func TestBadgerStorage_CloseLogsGCFailure(t *testing.T) {
	log := &recordingLogger{}
	db, err := NewBadgerStorage(&Config{Path: t.TempDir(), ValueLogFileSize: 1 << 20, Logger: log})
	if err != nil {
		t.Fatalf("NewBadgerStorage failed: %v", err)
	}
	db.runGC = func(float64) error { return errors.New("disk full") }

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(log.messages) != 1 {
		t.Fatalf("expected 1 warning, got %v", log.messages)
	}
}

func TestBadgerStorage_CloseIgnoresNoRewrite(t *testing.T) {
	log := &recordingLogger{}
	db, err := NewBadgerStorage(&Config{Path: t.TempDir(), ValueLogFileSize: 1 << 20, Logger: log})
	if err != nil {
		t.Fatalf("NewBadgerStorage failed: %v", err)
	}
	db.runGC = func(float64) error { return badger.ErrNoRewrite }

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(log.messages) != 0 {
		t.Errorf("expected no warnings, got %v", log.messages)
	}
}
