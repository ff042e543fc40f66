package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/coachverse/recall/pkg/event"
)

// DefaultChannelPrefix prefixes every relay channel.
const DefaultChannelPrefix = "recall:event:"

// RelayConfig configures RedisRelay and RedisListener.
type RelayConfig struct {
	// ChannelPrefix is prepended to the event type to form the channel name.
	ChannelPrefix string

	// NodeID identifies this process; listeners ignore envelopes from their own node.
	NodeID string

	Retry RetryConfig

	// Recorder counts relayed messages. Optional.
	Recorder RelayRecorder
}

// RelayRecorder counts relay traffic. direction is "out" or "in".
type RelayRecorder interface {
	RecordRelay(direction, status string)
}

type nopRelayRecorder struct{}

func (nopRelayRecorder) RecordRelay(direction, status string) {}

type relayedKey struct{}

// withRelayed marks ctx as carrying an event that arrived over the relay, so
// it is not forwarded back out.
func withRelayed(ctx context.Context) context.Context {
	return context.WithValue(ctx, relayedKey{}, true)
}

func isRelayed(ctx context.Context) bool {
	relayed, _ := ctx.Value(relayedKey{}).(bool)
	return relayed
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = DefaultChannelPrefix
	}
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.Retry.Validate() != nil {
		c.Retry = DefaultRetryConfig()
	}
	if c.Recorder == nil {
		c.Recorder = nopRelayRecorder{}
	}
	return c
}

// Channel returns the Redis channel events of type t are relayed on.
func (c RelayConfig) Channel(t event.Type) string {
	return c.ChannelPrefix + string(t)
}

// RedisRelay forwards events published on a local Bus to Redis Pub/Sub.
type RedisRelay struct {
	client redis.UniversalClient
	cfg    RelayConfig
	logger busLogger
	now    func() time.Time

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
}

// NewRedisRelay creates a relay. Call Attach to start forwarding.
func NewRedisRelay(client redis.UniversalClient, cfg RelayConfig, logger busLogger) *RedisRelay {
	if logger == nil {
		logger = nopLogger{}
	}
	return &RedisRelay{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// NodeID returns the node identity stamped on relayed envelopes.
func (r *RedisRelay) NodeID() string {
	return r.cfg.NodeID
}

// Attach subscribes the relay to every event on bus.
func (r *RedisRelay) Attach(bus *Bus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("eventbus: relay is closed")
	}
	if r.unsubscribe != nil {
		return fmt.Errorf("eventbus: relay already attached")
	}
	r.unsubscribe = bus.SubscribeAny(r.Forward)
	return nil
}

// Forward publishes ev to its Redis channel. Events that arrived over the
// relay are not forwarded again.
func (r *RedisRelay) Forward(ctx context.Context, ev event.GameEvent) error {
	if isRelayed(ctx) {
		return nil
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return fmt.Errorf("eventbus: relay is closed")
	}

	envelope, err := BuildEnvelope(r.cfg.NodeID, ev, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	channel := r.cfg.Channel(ev.Type)
	err = withRetry(ctx, r.cfg.Retry, nil, func(ctx context.Context) error {
		return r.client.Publish(ctx, channel, data).Err()
	})
	if err != nil {
		r.cfg.Recorder.RecordRelay("out", "error")
		return fmt.Errorf("eventbus: relay %s: %w", ev.ID, err)
	}
	r.cfg.Recorder.RecordRelay("out", "ok")
	return nil
}

// Close detaches the relay from its bus.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	return nil
}

// Healthy checks if the Redis connection is alive.
func (r *RedisRelay) Healthy(ctx context.Context) bool {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

// RedisListener receives relayed events and dispatches them on a local Bus.
// Dispatched events are not persisted again.
type RedisListener struct {
	client redis.UniversalClient
	cfg    RelayConfig
	bus    *Bus
	logger busLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewRedisListener creates a listener that feeds bus.
func NewRedisListener(client redis.UniversalClient, cfg RelayConfig, bus *Bus, logger busLogger) *RedisListener {
	if logger == nil {
		logger = nopLogger{}
	}
	return &RedisListener{
		client: client,
		cfg:    cfg.withDefaults(),
		bus:    bus,
		logger: logger,
	}
}

// Start subscribes to every relay channel and begins dispatching. It returns
// once the subscription is confirmed by Redis.
func (l *RedisListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("eventbus: listener is closed")
	}
	if l.cancel != nil {
		return fmt.Errorf("eventbus: listener already started")
	}

	pubsub := l.client.PSubscribe(ctx, l.cfg.ChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("eventbus: subscribe relay channels: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.done = make(chan struct{})

	// Background goroutine to forward Redis messages to the bus.
	go l.forwardMessages(subCtx, pubsub)
	return nil
}

func (l *RedisListener) forwardMessages(ctx context.Context, pubsub *redis.PubSub) {
	defer close(l.done)
	defer func() {
		_ = pubsub.Close()
	}()

	redisCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			envelope, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				l.logger.Warn("dropping relayed message", "channel", msg.Channel, "error", err)
				l.cfg.Recorder.RecordRelay("in", "dropped")
				continue
			}
			if envelope.NodeID == l.cfg.NodeID {
				continue
			}
			l.cfg.Recorder.RecordRelay("in", "ok")
			l.bus.Dispatch(withRelayed(ctx), envelope.Event)
		}
	}
}

// Close stops dispatching and waits for the forwarding goroutine to exit.
func (l *RedisListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
