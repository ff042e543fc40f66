package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/coachverse/recall/config"
	"github.com/coachverse/recall/pkg/contextbuilder"
	"github.com/coachverse/recall/pkg/event"
	"github.com/coachverse/recall/pkg/eventbus"
	"github.com/coachverse/recall/pkg/gateway"
	"github.com/coachverse/recall/pkg/logger"
	"github.com/coachverse/recall/pkg/memory"
	"github.com/coachverse/recall/pkg/metrics"
	"github.com/coachverse/recall/pkg/ops"
	"github.com/coachverse/recall/pkg/scene"
	"github.com/coachverse/recall/pkg/storage"
	"github.com/coachverse/recall/pkg/storage/badger"
	storagememory "github.com/coachverse/recall/pkg/storage/memory"
)

// app holds every long-lived component of the daemon.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	nodeID string

	store   storage.Store
	metrics *metrics.Manager
	bus     *eventbus.Bus
	scenes  *scene.Table
	builder *contextbuilder.Builder
	decay   *memory.DecayJob

	redis    redis.UniversalClient
	relay    *eventbus.RedisRelay
	listener *eventbus.RedisListener
	gateway  *gateway.Gateway

	ops *ops.Server
}

// newApp builds the component graph. Nothing is started yet.
func newApp(cfg *config.Config, log logger.Logger, nodeID string) (*app, error) {
	a := &app{cfg: cfg, log: log, nodeID: nodeID}
	built := false
	defer func() {
		if !built {
			_ = a.close()
		}
	}()

	var err error
	if a.store, err = openStorage(cfg.Storage, log); err != nil {
		return nil, err
	}
	log.Info("storage ready", "type", cfg.Storage.Type)

	a.metrics = metrics.NewManager(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Port:    cfg.Metrics.Port,
		Path:    cfg.Metrics.Path,
	})

	a.bus = eventbus.New(
		eventbus.WithAdapter(a.store),
		eventbus.WithLogger(log.With("component", "eventbus")),
		eventbus.WithTelemetry(a.metrics),
		eventbus.WithRetry(retryConfig(cfg.EventBus.Retry)),
	)
	a.bus.SubscribeAny(a.auditEvent)

	if a.scenes, err = loadScenes(cfg.Scenes); err != nil {
		return nil, err
	}

	a.builder, err = contextbuilder.New(a.store, a.store, a.scenes,
		contextbuilder.WithRecentWindow(cfg.Context.RecentWindow),
		contextbuilder.WithStrictRecall(cfg.Context.StrictRecall),
		contextbuilder.WithRecorder(a.metrics),
		contextbuilder.WithLogger(log.With("component", "contextbuilder")),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Decay.Enabled {
		a.decay, err = memory.NewDecayJob(a.store, cfg.Decay.StabilityHours, cfg.Decay.Interval,
			memory.WithDecayLogger(log.With("component", "decay")),
			memory.WithDecayRecorder(a.metrics),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Relay.Enabled {
		a.setupRelay()
	}
	if cfg.Gateway.Enabled {
		if err := a.setupGateway(); err != nil {
			return nil, err
		}
	}

	checks := []ops.Check{ops.PingCheck("storage", a.store)}
	if a.relay != nil {
		checks = append(checks, ops.Check{Name: "relay", Probe: func(ctx context.Context) error {
			if !a.relay.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		}})
	}
	if a.gateway != nil {
		checks = append(checks, ops.Check{Name: "gateway", Probe: func(ctx context.Context) error {
			if !a.gateway.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		}})
	}

	routerOpts := ops.Options{
		Logger: log.With("component", "ops"),
		Health: ops.NewHealthHandler(ops.DefaultCheckTimeout, checks...),
		Scenes: a.scenes,
	}
	if a.metrics.Enabled() {
		routerOpts.Metrics = a.metrics
		if cfg.Metrics.Port == 0 {
			routerOpts.MetricsHandler = a.metrics.Handler()
			routerOpts.MetricsPath = cfg.Metrics.Path
		}
	}
	if cfg.Ops.Enabled {
		a.ops = ops.NewServer(ops.ServerConfig{
			Address:      cfg.Ops.Address(),
			ReadTimeout:  cfg.Ops.ReadTimeout,
			WriteTimeout: cfg.Ops.WriteTimeout,
			IdleTimeout:  cfg.Ops.IdleTimeout,
		}, ops.NewRouter(routerOpts), log)
	}

	built = true
	return a, nil
}

func openStorage(cfg config.StorageConfig, log logger.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "badger":
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			InMemory:          cfg.Badger.InMemory,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
			Logger:            log.With("component", "badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("open badger storage at %s: %w", cfg.Badger.Path, err)
		}
		return store, nil
	case "memory", "":
		return storagememory.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func loadScenes(cfg config.ScenesConfig) (*scene.Table, error) {
	table := scene.NewTable(nil)
	if cfg.File == "" {
		return table, nil
	}
	profiles, err := scene.LoadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("load scene profiles: %w", err)
	}
	if err := table.Replace(scene.Merge(scene.DefaultProfiles(), profiles)); err != nil {
		return nil, fmt.Errorf("load scene profiles: %w", err)
	}
	return table, nil
}

func retryConfig(cfg config.RetryConfig) eventbus.RetryConfig {
	return eventbus.RetryConfig{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		BackoffFactor:  cfg.BackoffFactor,
	}
}

// redisClient returns the shared Redis client, creating it on first use.
func (a *app) redisClient() redis.UniversalClient {
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Relay.Redis.Address,
			Password: a.cfg.Relay.Redis.Password,
			DB:       a.cfg.Relay.Redis.DB,
		})
	}
	return a.redis
}

func (a *app) setupRelay() {
	client := a.redisClient()
	relayCfg := eventbus.RelayConfig{
		ChannelPrefix: a.cfg.Relay.ChannelPrefix,
		NodeID:        a.nodeID,
		Retry:         retryConfig(a.cfg.EventBus.Retry),
		Recorder:      a.metrics,
	}
	relayLog := a.log.With("component", "relay")
	a.relay = eventbus.NewRedisRelay(client, relayCfg, relayLog)
	if a.cfg.Relay.Listen {
		a.listener = eventbus.NewRedisListener(client, relayCfg, a.bus, relayLog)
	}
}

func (a *app) setupGateway() error {
	gw, err := gateway.New(a.redisClient(), gateway.Config{
		ChannelPrefix: a.cfg.Gateway.ChannelPrefix,
		Workers:       a.cfg.Gateway.Workers,
		Timeout:       a.cfg.Gateway.Timeout,
		Recorder:      a.metrics,
	}, a.bus, a.builder, a.log.With("component", "gateway"))
	if err != nil {
		return err
	}
	a.gateway = gw
	return nil
}

func (a *app) auditEvent(ctx context.Context, ev event.GameEvent) error {
	a.log.DebugContext(ctx, "event",
		"event_id", ev.ID,
		"type", ev.Type,
		"characters", len(ev.CharacterIDs),
	)
	return nil
}

// run starts every component and blocks until ctx is done or one of the
// servers fails.
func (a *app) run(ctx context.Context) error {
	if a.relay != nil {
		if err := a.relay.Attach(a.bus); err != nil {
			return err
		}
	}
	if a.listener != nil {
		if err := a.listener.Start(ctx); err != nil {
			return err
		}
	}
	if a.decay != nil {
		if err := a.decay.Start(ctx); err != nil {
			return err
		}
	}
	if a.gateway != nil {
		if err := a.gateway.Start(ctx); err != nil {
			return err
		}
		a.log.Info("gateway listening", "channels", a.gateway.Channels())
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.ops != nil {
		g.Go(a.ops.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
			defer cancel()
			return a.ops.Shutdown(shutdownCtx)
		})
	}

	if a.metrics.Enabled() && a.cfg.Metrics.Port > 0 {
		g.Go(func() error {
			a.log.Info("metrics server listening", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
			return a.metrics.StartServer(gctx, a.cfg.Metrics.Port, a.cfg.Metrics.Path)
		})
	}

	if a.cfg.Scenes.File != "" && a.cfg.Scenes.Watch {
		g.Go(func() error {
			err := scene.Watch(gctx, a.cfg.Scenes.File, a.scenes,
				scene.WithDebounce(a.cfg.Scenes.Debounce),
				scene.WithWatchLogger(a.log.With("component", "scenes")),
			)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	a.log.Info("recall running", "node_id", a.nodeID, "ops", a.cfg.Ops.Address(), "relay", a.relay != nil, "gateway", a.gateway != nil)
	<-gctx.Done()
	return g.Wait()
}

func (a *app) shutdownTimeout() time.Duration {
	if a.cfg.Ops.ShutdownTimeout > 0 {
		return a.cfg.Ops.ShutdownTimeout
	}
	return 10 * time.Second
}

// close releases components in reverse start order. It is safe on a
// partially built app.
func (a *app) close() error {
	var errs []error
	if a.decay != nil {
		a.decay.Stop()
	}
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	}
	if a.listener != nil {
		errs = append(errs, a.listener.Close())
	}
	if a.relay != nil {
		errs = append(errs, a.relay.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
