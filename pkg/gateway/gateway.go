// Package gateway accepts publish and context commands over Redis Pub/Sub and
// answers on the reply channel named in each request.
//
// A producer publishes a PublishRequest on <prefix>publish to record an event,
// and a dialogue service publishes a ContextRequest on <prefix>context after
// subscribing to its own reply channel. Replies are Reply documents.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/memory"
)

const (
	// DefaultChannelPrefix prefixes both command channels.
	DefaultChannelPrefix = "recall:cmd:"

	// DefaultWorkers bounds the commands handled at once.
	DefaultWorkers = 8

	// DefaultTimeout bounds a single command.
	DefaultTimeout = 5 * time.Second
)

// Command names, also used as channel suffixes and metric labels.
const (
	CommandPublish = "publish"
	CommandContext = "context"
)

var (
	ErrNilClient        = errors.New("gateway: redis client cannot be nil")
	ErrNilPublisher     = errors.New("gateway: publisher cannot be nil")
	ErrNilBuilder       = errors.New("gateway: context builder cannot be nil")
	ErrMissingType      = errors.New("gateway: event type is required")
	ErrMissingCharacter = errors.New("gateway: character_id is required")
	ErrGatewayClosed    = errors.New("gateway: closed")
	ErrGatewayRunning   = errors.New("gateway: already started")
	errUnknownChannel   = errors.New("gateway: unknown channel")
	errMissingReplyTo   = errors.New("gateway: reply_to is required")
	errMalformedCommand = errors.New("gateway: malformed command")
)

// Publisher records events. *eventbus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, in event.Input) (string, error)
}

// ContextBuilder assembles prompt contexts. *contextbuilder.Builder implements it.
type ContextBuilder interface {
	BuildContext(ctx context.Context, characterID, sceneID string, others []string) (*memory.PromptContext, error)
}

// Recorder counts handled commands. status is ok, error or invalid.
type Recorder interface {
	RecordCommand(command, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(command, status string) {}

type gatewayLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}

// Config configures a Gateway. Zero values take the defaults above.
type Config struct {
	ChannelPrefix string
	Workers       int
	Timeout       time.Duration

	// Recorder counts commands. Optional.
	Recorder Recorder
}

func (c Config) withDefaults() Config {
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = DefaultChannelPrefix
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	return c
}

// Channel returns the channel a command is received on.
func (c Config) Channel(command string) string {
	return c.ChannelPrefix + command
}

// PublishRequest asks the gateway to publish an event. ReplyTo is optional.
type PublishRequest struct {
	RequestID string      `json:"request_id,omitempty"`
	ReplyTo   string      `json:"reply_to,omitempty"`
	Event     event.Input `json:"event"`
}

// ContextRequest asks the gateway to build a prompt context.
type ContextRequest struct {
	RequestID       string   `json:"request_id,omitempty"`
	ReplyTo         string   `json:"reply_to"`
	CharacterID     string   `json:"character_id"`
	SceneID         string   `json:"scene_id"`
	OtherCharacters []string `json:"other_characters,omitempty"`
}

// Reply answers either request. A publish reply may carry both an EventID and
// an Error when the event was broadcast but some writes failed.
type Reply struct {
	RequestID string                `json:"request_id,omitempty"`
	EventID   string                `json:"event_id,omitempty"`
	Context   *memory.PromptContext `json:"context,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Gateway serves publish and context commands from Redis.
type Gateway struct {
	client    redis.UniversalClient
	cfg       Config
	publisher Publisher
	builder   ContextBuilder
	logger    gatewayLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New creates a gateway. Call Start to subscribe.
func New(client redis.UniversalClient, cfg Config, publisher Publisher, builder ContextBuilder, logger gatewayLogger) (*Gateway, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	if builder == nil {
		return nil, ErrNilBuilder
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Gateway{
		client:    client,
		cfg:       cfg.withDefaults(),
		publisher: publisher,
		builder:   builder,
		logger:    logger,
	}, nil
}

// Channels returns the command channels the gateway subscribes to.
func (g *Gateway) Channels() []string {
	return []string{g.cfg.Channel(CommandPublish), g.cfg.Channel(CommandContext)}
}

// Start subscribes to the command channels and begins serving. It returns
// once Redis confirms the subscription.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrGatewayClosed
	}
	if g.cancel != nil {
		return ErrGatewayRunning
	}

	pubsub := g.client.Subscribe(ctx, g.Channels()...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("gateway: subscribe command channels: %w", err)
	}

	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	g.done = make(chan struct{})

	go g.serve(serveCtx, pubsub)
	return nil
}

func (g *Gateway) serve(ctx context.Context, pubsub *redis.PubSub) {
	defer close(g.done)
	defer func() {
		_ = pubsub.Close()
	}()

	var workers errgroup.Group
	workers.SetLimit(g.cfg.Workers)
	defer func() {
		_ = workers.Wait()
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
			workers.Go(func() error {
				g.serveMessage(ctx, msg.Channel, []byte(msg.Payload))
				return nil
			})
		}
	}
}

func (g *Gateway) serveMessage(ctx context.Context, channel string, payload []byte) {
	replyTo, reply, err := g.handle(ctx, channel, payload)
	if err != nil {
		g.logger.Warn("dropping gateway command", "channel", channel, "error", err)
		return
	}
	if replyTo == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		g.logger.Warn("failed to encode gateway reply", "request_id", reply.RequestID, "error", err)
		return
	}
	if err := g.client.Publish(ctx, replyTo, data).Err(); err != nil {
		g.logger.Warn("failed to send gateway reply", "reply_to", replyTo, "request_id", reply.RequestID, "error", err)
	}
}

// handle runs one command. A non-nil error means the message could not be
// answered at all; request-level failures are reported in the Reply.
func (g *Gateway) handle(ctx context.Context, channel string, payload []byte) (string, Reply, error) {
	switch channel {
	case g.cfg.Channel(CommandPublish):
		return g.handlePublish(ctx, payload)
	case g.cfg.Channel(CommandContext):
		return g.handleContext(ctx, payload)
	default:
		return "", Reply{}, fmt.Errorf("%w: %s", errUnknownChannel, channel)
	}
}

func (g *Gateway) handlePublish(ctx context.Context, payload []byte) (string, Reply, error) {
	var req PublishRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		g.cfg.Recorder.RecordCommand(CommandPublish, "invalid")
		return "", Reply{}, fmt.Errorf("%w: %v", errMalformedCommand, err)
	}

	reply := Reply{RequestID: req.RequestID}
	if req.Event.Type == "" {
		g.cfg.Recorder.RecordCommand(CommandPublish, "invalid")
		reply.Error = ErrMissingType.Error()
		return req.ReplyTo, reply, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	id, err := g.publisher.Publish(ctx, req.Event)
	reply.EventID = id
	if err != nil {
		g.cfg.Recorder.RecordCommand(CommandPublish, "error")
		reply.Error = err.Error()
		return req.ReplyTo, reply, nil
	}

	g.cfg.Recorder.RecordCommand(CommandPublish, "ok")
	g.logger.Debug("gateway published event", "request_id", req.RequestID, "event_id", id, "type", req.Event.Type)
	return req.ReplyTo, reply, nil
}

func (g *Gateway) handleContext(ctx context.Context, payload []byte) (string, Reply, error) {
	var req ContextRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		g.cfg.Recorder.RecordCommand(CommandContext, "invalid")
		return "", Reply{}, fmt.Errorf("%w: %v", errMalformedCommand, err)
	}
	if req.ReplyTo == "" {
		g.cfg.Recorder.RecordCommand(CommandContext, "invalid")
		return "", Reply{}, errMissingReplyTo
	}

	reply := Reply{RequestID: req.RequestID}
	if req.CharacterID == "" {
		g.cfg.Recorder.RecordCommand(CommandContext, "invalid")
		reply.Error = ErrMissingCharacter.Error()
		return req.ReplyTo, reply, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	pc, err := g.builder.BuildContext(ctx, req.CharacterID, req.SceneID, req.OtherCharacters)
	if err != nil {
		g.cfg.Recorder.RecordCommand(CommandContext, "error")
		reply.Error = err.Error()
		return req.ReplyTo, reply, nil
	}

	g.cfg.Recorder.RecordCommand(CommandContext, "ok")
	reply.Context = pc
	return req.ReplyTo, reply, nil
}

// Healthy reports whether the gateway is open and Redis answers a ping.
func (g *Gateway) Healthy(ctx context.Context) bool {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return false
	}
	return g.client.Ping(ctx).Err() == nil
}

// Close stops serving and waits for in-flight commands to return.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	cancel, done := g.cancel, g.done
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
