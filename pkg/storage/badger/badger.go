// Package badger provides a Badger-based implementation of the storage interfaces.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	InMemory          bool
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int

	// Logger receives maintenance warnings. Optional.
	Logger storeLogger
}

type storeLogger interface {
	Warn(msg string, args ...any)
}

type nopStoreLogger struct{}

func (nopStoreLogger) Warn(msg string, args ...any) {}

// BadgerStorage implements storage.Store using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
	logger storeLogger
	now    func() time.Time
	runGC  func(discardRatio float64) error
}

// NewBadgerStorage opens a Badger database and wraps it.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	var logger storeLogger = nopStoreLogger{}
	if config.Logger != nil {
		logger = config.Logger
	}
	return &BadgerStorage{
		db:     db,
		config: config,
		logger: logger,
		now:    time.Now,
		runGC:  db.RunValueLogGC,
	}, nil
}

// Key layout. Ids inside composite keys are joined with keySep; writes
// reject character ids that contain it.
const (
	eventPrefix        = "event:"
	eventIndexPrefix   = "eventidx:"
	memoryPrefix       = "memory:"
	relationshipPrefix = "relationship:"
	emotionPrefix      = "emotion:"

	keySep = "\x00"
)

func eventKey(id string) []byte {
	return []byte(eventPrefix + id)
}

// eventIndexKey sorts lexically by time within a character.
func eventIndexKey(characterID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d%s%s", eventIndexPrefix, characterID, keySep, at.UnixNano(), keySep, id))
}

func eventIndexCharacterPrefix(characterID string) []byte {
	return []byte(eventIndexPrefix + characterID + keySep)
}

func memoryKey(characterID, memoryID string) []byte {
	return []byte(memoryPrefix + characterID + keySep + memoryID)
}

func memoryCharacterPrefix(characterID string) []byte {
	return []byte(memoryPrefix + characterID + keySep)
}

func relationshipKey(characterID, otherID string) []byte {
	return []byte(relationshipPrefix + characterID + keySep + otherID)
}

func emotionKey(characterID string) []byte {
	return []byte(emotionPrefix + characterID)
}

func checkKeyIDs(ids ...string) error {
	for _, id := range ids {
		if strings.Contains(id, keySep) {
			return memory.ErrInvalidCharacterID
		}
	}
	return nil
}

// Serialization helpers
func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return deserialize(val, v)
	})
}

// SaveEvent saves an event and indexes it under every involved character.
func (b *BadgerStorage) SaveEvent(ctx context.Context, ev *event.GameEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeyIDs(ev.CharacterIDs...); err != nil {
		return err
	}
	data, err := serialize(ev)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(ev.ID), data); err != nil {
			return err
		}
		for _, characterID := range ev.CharacterIDs {
			if err := txn.Set(eventIndexKey(characterID, ev.Timestamp, ev.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEvent retrieves an event by ID.
func (b *BadgerStorage) GetEvent(ctx context.Context, id string) (*event.GameEvent, error) {
	var ev event.GameEvent
	err := b.db.View(func(txn *badger.Txn) error {
		return b.getEventInTxn(txn, id, &ev)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (b *BadgerStorage) getEventInTxn(txn *badger.Txn, id string, ev *event.GameEvent) error {
	err := getJSON(txn, eventKey(id), ev)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &storage.NotFoundError{EntityType: "event", ID: id}
	}
	return err
}

// SaveMemory saves a memory after checking it against its persisted event.
func (b *BadgerStorage) SaveMemory(ctx context.Context, m *memory.CharacterMemory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeyIDs(m.CharacterID); err != nil {
		return err
	}
	data, err := serialize(m)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		var ev event.GameEvent
		if err := b.getEventInTxn(txn, m.EventID, &ev); err != nil {
			return err
		}
		if err := storage.ValidateMemoryReference(m, &ev); err != nil {
			return err
		}
		return txn.Set(memoryKey(m.CharacterID, m.ID), data)
	})
}

// RaiseDecay raises a stored memory's Decay to decay if that is higher. The
// read and write share one transaction, so a conflicting RecordRecall makes
// one of them fail with badger.ErrConflict instead of being overwritten.
func (b *BadgerStorage) RaiseDecay(ctx context.Context, characterID, memoryID string, decay float64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	raised := false
	err := b.db.Update(func(txn *badger.Txn) error {
		key := memoryKey(characterID, memoryID)
		var m memory.CharacterMemory
		if err := getJSON(txn, key, &m); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{EntityType: "memory", ID: memoryID}
			}
			return err
		}
		if decay <= m.Decay {
			return nil
		}
		m.Decay = decay
		data, err := serialize(&m)
		if err != nil {
			return err
		}
		raised = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, err
	}
	return raised, nil
}

// GetCharacterMemories returns all memories owned by characterID, oldest first.
func (b *BadgerStorage) GetCharacterMemories(ctx context.Context, characterID string) ([]memory.CharacterMemory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	memories := make([]memory.CharacterMemory, 0)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = memoryCharacterPrefix(characterID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m memory.CharacterMemory
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &m)
			}); err != nil {
				return err
			}
			if m.CharacterID != characterID {
				continue
			}
			memories = append(memories, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(memories, func(i, j int) bool {
		if !memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].CreatedAt.Before(memories[j].CreatedAt)
		}
		return memories[i].ID < memories[j].ID
	})
	return memories, nil
}

// ListCharacters returns every character that owns at least one memory.
func (b *BadgerStorage) ListCharacters(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(memoryPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			// Key format: memory:{characterID}\x00{memoryID}
			rest := strings.TrimPrefix(string(it.Item().Key()), memoryPrefix)
			if idx := strings.Index(rest, keySep); idx > 0 {
				seen[rest[:idx]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// RecordRecall bumps LastRecalled and RecallCount for each listed memory in one transaction.
func (b *BadgerStorage) RecordRecall(ctx context.Context, characterID string, memoryIDs []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, id := range memoryIDs {
			key := memoryKey(characterID, id)
			var m memory.CharacterMemory
			if err := getJSON(txn, key, &m); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return &storage.NotFoundError{EntityType: "memory", ID: id}
				}
				return err
			}
			m.MarkRecalled(at)
			data, err := serialize(&m)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRecentEvents returns events involving characterID within window, newest first.
func (b *BadgerStorage) GetRecentEvents(ctx context.Context, characterID string, window time.Duration) ([]event.GameEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := b.now().Add(-window).UnixNano()
	prefix := eventIndexCharacterPrefix(characterID)
	var events []event.GameEvent

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		for it.Rewind(); it.Valid(); it.Next() {
			// Key format: eventidx:{characterID}\x00{unixnano}\x00{eventID}
			rest := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			parts := strings.SplitN(rest, keySep, 2)
			if len(parts) != 2 {
				continue
			}
			ts, err := strconv.ParseInt(parts[0], 10, 64)
			if err != nil || ts < cutoff {
				continue
			}
			ids = append(ids, parts[1])
		}

		for i := len(ids) - 1; i >= 0; i-- {
			var ev event.GameEvent
			if err := b.getEventInTxn(txn, ids[i], &ev); err != nil {
				if storage.IsNotFound(err) {
					continue // orphaned index entry
				}
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

// SaveRelationship stores the relationship from rel.CharacterID towards rel.OtherID.
func (b *BadgerStorage) SaveRelationship(ctx context.Context, rel memory.Relationship) error {
	if rel.CharacterID == "" || rel.OtherID == "" {
		return memory.ErrInvalidCharacterID
	}
	if err := checkKeyIDs(rel.CharacterID, rel.OtherID); err != nil {
		return err
	}
	data, err := serialize(rel)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(relationshipKey(rel.CharacterID, rel.OtherID), data)
	})
}

// GetRelationships returns the stored relationships towards others. Unknown pairs are omitted.
func (b *BadgerStorage) GetRelationships(ctx context.Context, characterID string, others []string) (memory.RelationshipMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(memory.RelationshipMap, len(others))

	err := b.db.View(func(txn *badger.Txn) error {
		for _, other := range others {
			var rel memory.Relationship
			err := getJSON(txn, relationshipKey(characterID, other), &rel)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			result[other] = rel
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveEmotionalState stores a character's current emotional state.
func (b *BadgerStorage) SaveEmotionalState(ctx context.Context, state memory.EmotionalState) error {
	if state.CharacterID == "" {
		return memory.ErrInvalidCharacterID
	}
	data, err := serialize(state)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(emotionKey(state.CharacterID), data)
	})
}

// GetEmotionalState returns the stored state, or a calm zero state.
func (b *BadgerStorage) GetEmotionalState(ctx context.Context, characterID string) (memory.EmotionalState, error) {
	if err := ctx.Err(); err != nil {
		return memory.EmotionalState{}, err
	}
	state := memory.EmotionalState{CharacterID: characterID}

	err := b.db.View(func(txn *badger.Txn) error {
		err := getJSON(txn, emotionKey(characterID), &state)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return memory.EmotionalState{}, err
	}
	return state, nil
}

// Ping fails once the database has been closed.
func (b *BadgerStorage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return &storage.StorageUnavailableError{Cause: errors.New("badger: database closed")}
	}
	return nil
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	if !b.config.InMemory {
		if err := b.runGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			b.logger.Warn("value log gc before close failed", "path", b.config.Path, "error", err)
		}
	}

	return b.db.Close()
}

var _ storage.Store = (*BadgerStorage)(nil)
