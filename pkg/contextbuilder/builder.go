// Package contextbuilder assembles the bounded prompt context handed to
// dialogue generation: the memories most relevant to a character in a scene,
// plus the recent events, relationships, and emotional state around them.
package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/scene"
	"github.com/coachverse/recall/pkg/storage"
)

const tracerName = "github.com/coachverse/recall/pkg/contextbuilder"

// DefaultRecentWindow is how far back BuildContext looks for recent events.
const DefaultRecentWindow = 6 * time.Hour

var (
	// ErrNilStore is returned by New when a store is missing.
	ErrNilStore = errors.New("contextbuilder: store cannot be nil")
)

// Recorder receives context build metrics.
type Recorder interface {
	RecordContextBuild(scene string, selected int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordContextBuild(string, int, time.Duration) {}

// builderLogger is the minimal logger interface used by Builder.
type builderLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}

// Builder builds prompt contexts. It is safe for concurrent use.
type Builder struct {
	memories storage.MemoryStore
	events   storage.EventStore
	profiles *scene.Table
	recall   storage.RecallRecorder

	recentWindow time.Duration
	strictRecall bool
	recorder     Recorder
	logger       builderLogger
	now          func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecentWindow overrides DefaultRecentWindow.
func WithRecentWindow(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.recentWindow = d
		}
	}
}

// WithStrictRecall makes BuildContext fail when recall tracking fails.
func WithStrictRecall(strict bool) Option {
	return func(b *Builder) {
		b.strictRecall = strict
	}
}

// WithRecallRecorder sets the recall tracker. By default the memory store is
// used when it implements storage.RecallRecorder.
func WithRecallRecorder(r storage.RecallRecorder) Option {
	return func(b *Builder) {
		b.recall = r
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(l builderLogger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the clock used for scoring and recall timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Builder. A nil profile table means the authored defaults.
func New(memories storage.MemoryStore, events storage.EventStore, profiles *scene.Table, opts ...Option) (*Builder, error) {
	if memories == nil || events == nil {
		return nil, ErrNilStore
	}
	if profiles == nil {
		profiles = scene.NewTable(nil)
	}

	b := &Builder{
		memories:     memories,
		events:       events,
		profiles:     profiles,
		recentWindow: DefaultRecentWindow,
		recorder:     nopRecorder{},
		logger:       nopLogger{},
		now:          time.Now,
	}
	if r, ok := memories.(storage.RecallRecorder); ok {
		b.recall = r
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// BuildContext fetches the character's recent events, memories, relationships
// towards others, and emotional state concurrently, then selects and formats
// the memories that fit sceneID. The first failed fetch cancels the others.
func (b *Builder) BuildContext(ctx context.Context, characterID, sceneID string, others []string) (*memory.PromptContext, error) {
	if characterID == "" {
		return nil, memory.ErrInvalidCharacterID
	}
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "contextbuilder.BuildContext",
		trace.WithAttributes(
			attribute.String("character.id", characterID),
			attribute.String("scene.id", sceneID),
			attribute.Int("others", len(others)),
		))
	defer span.End()

	var (
		recent   []event.GameEvent
		memories []memory.CharacterMemory
		rels     memory.RelationshipMap
		state    memory.EmotionalState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if recent, err = b.events.GetRecentEvents(gctx, characterID, b.recentWindow); err != nil {
			return fmt.Errorf("recent events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if memories, err = b.memories.GetCharacterMemories(gctx, characterID); err != nil {
			return fmt.Errorf("memories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if rels, err = b.memories.GetRelationships(gctx, characterID, others); err != nil {
			return fmt.Errorf("relationships: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if state, err = b.memories.GetEmotionalState(gctx, characterID); err != nil {
			return fmt.Errorf("emotional state: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("contextbuilder: fetch %w", err)
	}

	now := b.now()
	profile := b.profiles.Lookup(sceneID)
	selected := b.SelectMemoriesForScene(memories, sceneID, others, state, now)

	relevant := make([]memory.CharacterMemory, 0, len(selected))
	scores := make(map[string]float64, len(selected))
	ids := make([]string, 0, len(selected))
	for _, s := range selected {
		relevant = append(relevant, s.Memory)
		scores[s.Memory.ID] = s.Score
		ids = append(ids, s.Memory.ID)
	}

	if recent == nil {
		recent = []event.GameEvent{}
	}
	if rels == nil {
		rels = memory.RelationshipMap{}
	}
	if others == nil {
		others = []string{}
	}

	pc := &memory.PromptContext{
		Character:             characterID,
		Scene:                 sceneID,
		OtherCharacters:       append([]string(nil), others...),
		RecentEvents:          recent,
		RelevantMemories:      relevant,
		Scores:                scores,
		Relationships:         rels,
		CurrentEmotionalState: state,
		FormattedMemories:     FormatMemoriesForPrompt(relevant, StyleSummary, now),
		Contradictions:        FindContradictions(relevant),
		Callbacks:             FindCallbacks(sceneID, memories),
		BuiltAt:               now,
	}

	if links := FindAsymmetricContradictions(relevant); len(links) > 0 {
		b.logger.Warn("one-sided contradiction links in context",
			"character", characterID,
			"links", len(links),
		)
	}

	if b.recall != nil && len(ids) > 0 {
		if err := b.recall.RecordRecall(ctx, characterID, ids, now); err != nil {
			b.logger.Warn("failed to record memory recall",
				"character", characterID,
				"memories", len(ids),
				"error", err,
			)
			if b.strictRecall {
				span.RecordError(err)
				span.SetStatus(codes.Error, "recall failed")
				return nil, fmt.Errorf("contextbuilder: record recall: %w", err)
			}
		}
	}

	span.SetAttributes(
		attribute.String("scene.profile", profile.ID),
		attribute.Int("memories.total", len(memories)),
		attribute.Int("memories.selected", len(relevant)),
	)
	b.recorder.RecordContextBuild(profile.ID, len(relevant), time.Since(start))
	b.logger.Debug("context built",
		"character", characterID,
		"scene", sceneID,
		"selected", len(relevant),
		"recent_events", len(recent),
	)
	return pc, nil
}
