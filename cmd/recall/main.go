// Command recall runs the character memory daemon: it persists and relays
// gameplay events, maintains memory decay, and serves the ops endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/coachverse/recall/config"
	"github.com/coachverse/recall/pkg/logger"
	"github.com/coachverse/recall/pkg/telemetry/tracing"
	"github.com/coachverse/recall/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "recall: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	printConfig bool
	showVersion bool

	logLevel string
	opsPort  int
	storage  string
	nodeID   string
}

func parseFlags(args []string, out io.Writer) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("recall", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&f.configPath, "config", "", "path to a yaml or json config file")
	fs.BoolVar(&f.printConfig, "print-config", false, "print the merged configuration and exit")
	fs.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	fs.StringVar(&f.logLevel, "log-level", "", "override log.level")
	fs.IntVar(&f.opsPort, "ops-port", 0, "override ops.port")
	fs.StringVar(&f.storage, "storage", "", "override storage.type (memory or badger)")
	fs.StringVar(&f.nodeID, "node-id", "", "override app.node_id")
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: recall [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nEnvironment variables use the %s prefix, e.g. %sLOG_LEVEL=debug or %sSTORAGE_BADGER__PATH=/data.\n",
			config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *flags) overrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if f.logLevel != "" {
		overrides["log.level"] = f.logLevel
	}
	if f.opsPort != 0 {
		overrides["ops.port"] = f.opsPort
	}
	if f.storage != "" {
		overrides["storage.type"] = f.storage
	}
	if f.nodeID != "" {
		overrides["app.node_id"] = f.nodeID
	}
	return overrides
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseFlags(args, stdout)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.Get())
		return nil
	}

	overrides := f.overrides()
	loader := config.NewLoader()
	cfg, err := loader.Load(f.configPath, overrides)
	if err != nil {
		return err
	}
	if f.printConfig {
		fmt.Fprint(stdout, loader.Print())
		return nil
	}

	nodeID := cfg.App.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	log, err := logger.New(&logger.Config{
		Level:     logger.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Output:    cfg.Log.Output,
		AddSource: cfg.Log.AddSource,
		Fields:    []any{"service", cfg.App.Name, "env", cfg.App.Environment, "node_id", nodeID},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Close()
	logger.SetGlobal(log)

	info := version.Get()
	log.Info("starting recall", "version", info.Version, "commit", info.Commit, "config", loader.Path())
	log.Debug("configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:    cfg.Tracing.Enabled,
		Endpoint:   cfg.Tracing.Endpoint,
		Headers:    cfg.Tracing.Headers,
		Insecure:   cfg.Tracing.Insecure,
		Timeout:    cfg.Tracing.Timeout,
		Sampler:    cfg.Tracing.Sampler,
		SampleRate: cfg.Tracing.SampleRate,
	}, tracing.Service{
		Name:       cfg.App.Name,
		Version:    info.Version,
		InstanceID: nodeID,
	}, tracing.WithLogger(log.With("component", "tracing")))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	a, err := newApp(cfg, log, nodeID)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Error("shutdown failed", "error", err)
		}
		log.Info("recall stopped")
	}()

	if path := loader.Path(); path != "" {
		stopWatch, err := watchConfig(ctx, path, overrides, cfg, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	return a.run(ctx)
}

// watchConfig applies log level changes live and warns about sections that
// only take effect after a restart.
func watchConfig(ctx context.Context, path string, overrides map[string]interface{}, current *config.Config, log logger.Logger) (func(), error) {
	w, err := config.NewWatcher(path,
		config.WithOverrides(overrides),
		config.WithWatcherLogger(log.With("component", "config")),
	)
	if err != nil {
		return nil, err
	}

	w.OnChange(func(next *config.Config) {
		hot := config.ExtractHotReloadable(next)
		if level := logger.ParseLevel(hot.LogLevel); level != log.GetLevel() {
			log.SetLevel(level)
			log.Info("log level changed", "level", level.String())
		}
		if sections := config.RestartRequired(current, next); len(sections) > 0 {
			log.Warn("config changes require a restart", "sections", sections)
		}
	})

	go func() {
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("config watcher stopped", "error", err)
		}
	}()
	return func() { _ = w.Stop() }, nil
}
