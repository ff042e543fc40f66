package eventbus

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coachverse/recall/pkg/event"
)

func requireRedisClient(tb testing.TB) redis.UniversalClient {
	tb.Helper()

	addr := os.Getenv("RECALL_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		tb.Skipf("redis is not available at %s: %v", addr, err)
	}

	tb.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestRedisRelay_DeliversAcrossBuses(t *testing.T) {
	client := requireRedisClient(t)
	prefix := fmt.Sprintf("recall:test:event:%d:", time.Now().UnixNano())

	source := New()
	relay := NewRedisRelay(client, RelayConfig{ChannelPrefix: prefix, NodeID: "node-a"}, nil)
	if err := relay.Attach(source); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer relay.Close()

	adapter := &recordingAdapter{}
	target := New(WithAdapter(adapter))
	received := make(chan event.GameEvent, 1)
	target.SubscribeType(event.FinancialCrisis, func(ctx context.Context, ev event.GameEvent) error {
		received <- ev
		return nil
	})

	listener := NewRedisListener(client, RelayConfig{ChannelPrefix: prefix, NodeID: "node-b"}, target, nil)
	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("listener start failed: %v", err)
	}
	defer listener.Close()

	id, err := source.Publish(context.Background(), event.Input{
		Type:         event.FinancialCrisis,
		Description:  "the team's savings vanished",
		CharacterIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != id {
			t.Fatalf("expected event %s, got %s", id, got.ID)
		}
		if len(got.CharacterIDs) != 2 {
			t.Fatalf("expected characters to survive the relay, got %v", got.CharacterIDs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for relayed event")
	}

	if len(adapter.events) != 0 || len(adapter.memories) != 0 {
		t.Fatal("relayed events must not be persisted again")
	}
}

func TestRedisListener_IgnoresOwnNode(t *testing.T) {
	client := requireRedisClient(t)
	prefix := fmt.Sprintf("recall:test:self:%d:", time.Now().UnixNano())
	cfg := RelayConfig{ChannelPrefix: prefix, NodeID: "same-node"}

	bus := New()
	relay := NewRedisRelay(client, cfg, nil)
	if err := relay.Attach(bus); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer relay.Close()

	listener := NewRedisListener(client, cfg, bus, nil)
	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("listener start failed: %v", err)
	}
	defer listener.Close()

	delivered := make(chan struct{}, 4)
	bus.SubscribeAny(func(ctx context.Context, ev event.GameEvent) error {
		delivered <- struct{}{}
		return nil
	})

	if _, err := bus.Publish(context.Background(), event.Input{Type: event.BattleStart, CharacterIDs: []string{"a"}}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	<-delivered
	select {
	case <-delivered:
		t.Fatal("event echoed back from own node")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisRelay_Lifecycle(t *testing.T) {
	client := requireRedisClient(t)
	relay := NewRedisRelay(client, RelayConfig{}, nil)

	if relay.NodeID() == "" {
		t.Fatal("expected generated node id")
	}
	if !relay.Healthy(context.Background()) {
		t.Fatal("expected relay to be healthy")
	}

	bus := New()
	if err := relay.Attach(bus); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if err := relay.Attach(bus); err == nil {
		t.Fatal("expected second attach to fail")
	}
	if err := relay.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if relay.Healthy(context.Background()) {
		t.Fatal("expected closed relay to be unhealthy")
	}
	if err := relay.Forward(context.Background(), event.GameEvent{ID: "ev"}); err == nil {
		t.Fatal("expected forward after close to fail")
	}
}

func TestRedisListener_StartTwice(t *testing.T) {
	client := requireRedisClient(t)
	listener := NewRedisListener(client, RelayConfig{ChannelPrefix: fmt.Sprintf("recall:test:twice:%d:", time.Now().UnixNano())}, New(), nil)

	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := listener.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	if err := listener.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := listener.Start(context.Background()); err == nil {
		t.Fatal("expected start after close to fail")
	}
}

type countingRelayRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRelayRecorder) RecordRelay(direction, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[direction+"/"+status]++
}

func (r *countingRelayRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func TestRedisRelay_SkipsRelayedEvents(t *testing.T) {
	relay := NewRedisRelay(nil, RelayConfig{}, nil)
	if err := relay.Forward(withRelayed(context.Background()), event.GameEvent{ID: "ev"}); err != nil {
		t.Fatalf("relayed event should be skipped, got %v", err)
	}
	if isRelayed(context.Background()) {
		t.Fatal("plain context must not be marked relayed")
	}
}

func TestRedisRelay_NoPingPongBetweenNodes(t *testing.T) {
	client := requireRedisClient(t)
	prefix := fmt.Sprintf("recall:test:pingpong:%d:", time.Now().UnixNano())

	type node struct {
		bus      *Bus
		recorder *countingRelayRecorder
	}
	nodes := make([]node, 2)
	for i := range nodes {
		recorder := &countingRelayRecorder{}
		cfg := RelayConfig{ChannelPrefix: prefix, NodeID: fmt.Sprintf("node-%d", i), Recorder: recorder}
		bus := New()

		relay := NewRedisRelay(client, cfg, nil)
		if err := relay.Attach(bus); err != nil {
			t.Fatalf("attach failed: %v", err)
		}
		t.Cleanup(func() { _ = relay.Close() })

		listener := NewRedisListener(client, cfg, bus, nil)
		if err := listener.Start(context.Background()); err != nil {
			t.Fatalf("listener start failed: %v", err)
		}
		t.Cleanup(func() { _ = listener.Close() })

		nodes[i] = node{bus: bus, recorder: recorder}
	}

	received := make(chan struct{}, 8)
	nodes[1].bus.SubscribeAny(func(ctx context.Context, ev event.GameEvent) error {
		received <- struct{}{}
		return nil
	})

	if _, err := nodes[0].bus.Publish(context.Background(), event.Input{Type: event.TrustGained, CharacterIDs: []string{"a"}}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for relayed event")
	}
	time.Sleep(300 * time.Millisecond)

	if got := nodes[0].recorder.get("out/ok"); got != 1 {
		t.Fatalf("node-0 forwarded %d times, want 1", got)
	}
	if got := nodes[1].recorder.get("out/ok"); got != 0 {
		t.Fatalf("node-1 forwarded a relayed event %d times", got)
	}
	if got := nodes[1].recorder.get("in/ok"); got != 1 {
		t.Fatalf("node-1 received %d events, want 1", got)
	}
	if len(received) != 0 {
		t.Fatalf("node-1 saw %d extra deliveries", len(received))
	}
}
