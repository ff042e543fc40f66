// Package eventbus turns gameplay events into per-character memories and
// broadcasts the completed events to in-process subscribers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/storage"
)

const tracerName = "github.com/coachverse/recall/pkg/eventbus"

// Handler receives a completed event. Each handler gets its own copy.
type Handler func(ctx context.Context, ev event.GameEvent) error

type subscription struct {
	id      uint64
	pattern string
	fn      Handler
}

// Bus publishes game events, derives memories, and fans events out to subscribers.
// It is safe for concurrent use.
type Bus struct {
	mu         sync.RWMutex
	adapter    storage.Adapter
	configured bool
	subs       []*subscription
	nextSubID  uint64

	logger    busLogger
	telemetry Telemetry
	now       func() time.Time
	newID     func() string
	retry     RetryConfig
}

// Option configures a Bus.
type Option func(*Bus)

// WithAdapter configures the storage adapter at construction time.
func WithAdapter(adapter storage.Adapter) Option {
	return func(b *Bus) {
		if adapter != nil {
			b.adapter = adapter
			b.configured = true
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(l busLogger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTelemetry sets the telemetry recorder.
func WithTelemetry(t Telemetry) Option {
	return func(b *Bus) {
		if t != nil {
			b.telemetry = t
		}
	}
}

// WithClock overrides the clock used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(newID func() string) Option {
	return func(b *Bus) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// WithRetry sets the retry policy for adapter writes.
func WithRetry(cfg RetryConfig) Option {
	return func(b *Bus) {
		b.retry = cfg
	}
}

// New creates a Bus. Without an adapter, persistence is a no-op.
func New(opts ...Option) *Bus {
	b := &Bus{
		adapter:   storage.NopAdapter{},
		logger:    nopLogger{},
		telemetry: nopTelemetry{},
		now:       time.Now,
		newID:     uuid.NewString,
		retry:     DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.retry.Validate(); err != nil {
		b.logger.Warn("invalid retry config, using default", "error", err)
		b.retry = DefaultRetryConfig()
	}
	return b
}

// Configure registers the storage adapter. It may be called once, before publishing.
func (b *Bus) Configure(adapter storage.Adapter) error {
	if adapter == nil {
		return ErrNilAdapter
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.configured {
		return ErrAlreadyConfigured
	}
	b.adapter = adapter
	b.configured = true
	return nil
}

// Configured reports whether a storage adapter has been registered.
func (b *Bus) Configured() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.configured
}

// Publish completes in, persists the event and one memory per character, and
// broadcasts the event. The returned id is valid even when err is non-nil: a
// *PersistError means the event was derived and broadcast but some writes failed.
func (b *Bus) Publish(ctx context.Context, in event.Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("eventbus: publish: %w", err)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "eventbus.Publish",
		trace.WithAttributes(
			attribute.String("event.type", string(in.Type)),
			attribute.Int("event.characters", len(in.CharacterIDs)),
		))
	defer span.End()

	ev := in.Complete(b.newID(), b.now().UTC())
	span.SetAttributes(attribute.String("event.id", ev.ID))

	b.mu.RLock()
	adapter := b.adapter
	b.mu.RUnlock()

	var errs []error
	if err := b.persist(ctx, func(ctx context.Context) error {
		return adapter.SaveEvent(ctx, &ev)
	}); err != nil {
		errs = append(errs, &PersistError{Stage: StageEvent, EventID: ev.ID, Err: err})
		b.telemetry.RecordPersistFailure(StageEvent)
	}

	memories := DeriveMemories(ev)
	for i := range memories {
		m := &memories[i]
		if err := b.persist(ctx, func(ctx context.Context) error {
			return adapter.SaveMemory(ctx, m)
		}); err != nil {
			errs = append(errs, &PersistError{Stage: StageMemory, EventID: ev.ID, CharacterID: m.CharacterID, Err: err})
			b.telemetry.RecordPersistFailure(StageMemory)
		}
	}
	b.telemetry.RecordMemoriesDerived(len(memories))

	b.Dispatch(ctx, ev)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		b.telemetry.RecordPublish(string(ev.Type), "persist_failed")
		b.logger.Warn("event published with persistence failures",
			"event_id", ev.ID,
			"type", ev.Type,
			"failures", len(errs),
			"error", err,
		)
		return ev.ID, err
	}

	b.telemetry.RecordPublish(string(ev.Type), "success")
	b.logger.Debug("event published",
		"event_id", ev.ID,
		"type", ev.Type,
		"memories", len(memories),
	)
	return ev.ID, nil
}

func (b *Bus) persist(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, b.retry, b.telemetry.RecordRetry, fn)
}

// Subscribe registers fn for events whose topic matches pattern. An empty
// pattern subscribes to AnyTopic. The returned func removes the subscription.
func (b *Bus) Subscribe(pattern string, fn Handler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	if pattern == "" {
		pattern = AnyTopic
	}

	b.mu.Lock()
	b.nextSubID++
	sub := &subscription{id: b.nextSubID, pattern: pattern, fn: fn}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub.id) })
	}
}

// SubscribeAny registers fn for every published event.
func (b *Bus) SubscribeAny(fn Handler) (unsubscribe func()) {
	return b.Subscribe(AnyTopic, fn)
}

// SubscribeType registers fn for events of type t.
func (b *Bus) SubscribeType(t event.Type, fn Handler) (unsubscribe func()) {
	return b.Subscribe(TypeTopic(t), fn)
}

// SubscribeCategory registers fn for every event type in category c.
func (b *Bus) SubscribeCategory(c event.Category, fn Handler) (unsubscribe func()) {
	return b.Subscribe(CategoryTopic(c), fn)
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filtered := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.id != id {
			filtered = append(filtered, sub)
		}
	}
	b.subs = filtered
}

// Dispatch delivers ev to matching subscribers without persisting it. AnyTopic
// subscribers run first, then the others, each group in registration order.
// Handler errors and panics are logged and do not stop delivery.
func (b *Bus) Dispatch(ctx context.Context, ev event.GameEvent) {
	topic := TypeTopic(ev.Type)

	b.mu.RLock()
	var anySubs, matched []*subscription
	for _, sub := range b.subs {
		switch {
		case sub.pattern == AnyTopic:
			anySubs = append(anySubs, sub)
		case topicMatches(sub.pattern, topic):
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range append(anySubs, matched...) {
		b.deliver(ctx, sub, *ev.Clone())
	}
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, ev event.GameEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.telemetry.RecordSubscriberFailure(sub.pattern)
			b.logger.Error("subscriber panicked",
				"topic", sub.pattern,
				"event_id", ev.ID,
				"panic", r,
			)
		}
	}()

	if err := sub.fn(ctx, ev); err != nil {
		b.telemetry.RecordSubscriberFailure(sub.pattern)
		b.logger.Warn("subscriber failed",
			"topic", sub.pattern,
			"event_id", ev.ID,
			"error", err,
		)
	}
}
