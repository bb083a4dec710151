// Package main implements semcache, a read-through cache server. It serves
// JSON records from a file or a JetStream KV bucket through a
// cache.Manager, exposes the control surface and Prometheus metrics over
// HTTP, and optionally keeps peers in sync over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/control"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/initializer"
	"github.com/c360/semcache/loader"
	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/natsclient"
	"github.com/c360/semcache/notifier"
	"github.com/c360/semcache/pkg/worker"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semcache"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(flag.CommandLine)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := cache.LoadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "cache", cfg.Name)
		return nil
	}

	slog.Info("Starting semcache",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"cache", cfg.Name)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	a := &app{cli: cliCfg, cfg: cfg, logger: logger, registry: metric.NewMetricsRegistry()}
	if err := a.start(signalCtx); err != nil {
		a.shutdown(cliCfg.ShutdownTimeout)
		return err
	}

	slog.Info("semcache started", "http_addr", a.server.Address(), "size", a.mgr.Size())
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	a.shutdown(cliCfg.ShutdownTimeout)
	slog.Info("semcache shutdown complete")
	return nil
}

// app owns every long-lived piece of the server so shutdown can release
// whatever start managed to create.
type app struct {
	cli      *CLIConfig
	cfg      cache.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	nats        *natsclient.Client
	natsHealthy atomic.Bool
	publisher   *notifier.NATS[*Record]
	events      *notifier.Async[*Record]
	mgr         *cache.Manager[*Record]
	server      *metric.Server
}

func (a *app) start(ctx context.Context) error {
	if a.cli.NATSURL != "" {
		if err := a.connectNATS(ctx); err != nil {
			return err
		}
	}

	source, err := a.buildLoader(ctx)
	if err != nil {
		return err
	}

	notify, err := a.buildNotifier(ctx)
	if err != nil {
		return err
	}

	opts := []cache.Option[*Record]{
		cache.WithLoader(source),
		cache.WithNotifier(notify),
		cache.WithLogger[*Record](a.logger),
		cache.WithMetrics[*Record](a.registry),
	}
	if preload := buildInitializer(a.cli.Preload); preload != nil {
		opts = append(opts, cache.WithInitializer(preload))
	}

	a.mgr, err = cache.NewManager(a.cfg, opts...)
	if err != nil {
		return fmt.Errorf("create cache manager: %w", err)
	}
	if err := a.mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}

	if a.publisher != nil {
		// Sharing the publisher's origin makes the listener skip our own events.
		listener := notifier.NewListener[*Record](a.nats, a.mgr,
			notifier.WithOrigin(a.publisher.Origin()),
			notifier.WithNATSLogger(a.logger))
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("start peer listener: %w", err)
		}
	}

	a.server = metric.NewServer(a.cli.HTTPAddr, "/metrics", a.registry)
	if a.nats != nil {
		a.server.AddHealthCheck("nats", a.checkNATS)
	}
	a.mountHandlers()
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

func (a *app) connectNATS(ctx context.Context) error {
	client, err := natsclient.NewClient(a.cli.NATSURL,
		natsclient.WithName(appName+"-"+a.cfg.Name),
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(a.registry))
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	a.nats = client
	client.OnHealthChange(a.onNATSHealth)

	slog.Info("Connecting to NATS", "url", a.cli.NATSURL)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	a.natsHealthy.Store(true)
	return nil
}

// onNATSHealth tracks the connection that feeds the KV source, the event
// publisher and the peer listener.
func (a *app) onNATSHealth(healthy bool) {
	a.natsHealthy.Store(healthy)
	if healthy {
		a.logger.Info("NATS connection restored")
	} else {
		a.logger.Warn("NATS connection lost")
	}
}

func (a *app) checkNATS() error {
	if !a.natsHealthy.Load() {
		return errors.WrapTransient(errors.ErrNoConnection, "app", "checkNATS", "nats health")
	}
	return nil
}

// buildLoader picks the record source and stacks the retry and rate
// limiting decorators on top of it.
func (a *app) buildLoader(ctx context.Context) (cache.Loader[*Record], error) {
	var source cache.Loader[*Record]
	if a.cli.KVBucket != "" {
		bucket, err := a.nats.GetKeyValueBucket(ctx, a.cli.KVBucket)
		if err != nil {
			return nil, fmt.Errorf("open kv bucket: %w", err)
		}
		source = loader.NewKV(a.nats.NewKVStore(bucket), loader.WithKVLogger[*Record](a.logger))
	} else {
		source = newFileLoader(a.cli.DataPath)
	}
	return decorate(source, a.cli.LoadRate), nil
}

func decorate(source cache.Loader[*Record], loadRate float64) cache.Loader[*Record] {
	if loadRate > 0 {
		source = loader.NewRateLimited(source, rate.Limit(loadRate), max(1, int(loadRate)))
	}
	return loader.NewRetrying(source, errors.DefaultRetryConfig())
}

func (a *app) buildNotifier(ctx context.Context) (cache.Notifier[*Record], error) {
	multi := notifier.Multi[*Record]{notifier.NewLog[*Record](a.logger)}
	if a.nats == nil {
		return multi, nil
	}

	publisher := notifier.NewNATS[*Record](a.nats, notifier.WithNATSLogger(a.logger))
	events, err := notifier.NewAsync[*Record]("events_"+a.cfg.Name, publisher, 2, 1024,
		worker.WithMetricsRegistry[cache.Event[*Record]](a.registry),
		worker.WithLogger[cache.Event[*Record]](a.logger))
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}
	if err := events.Start(ctx); err != nil {
		return nil, fmt.Errorf("start event publisher: %w", err)
	}
	a.events = events
	a.publisher = publisher
	return append(multi, events), nil
}

func buildInitializer(preload string) cache.Initializer[*Record] {
	switch preload {
	case "full":
		return initializer.Full[*Record]{}
	case "groups":
		return initializer.Groups[*Record]{Parallelism: 4}
	default:
		return nil
	}
}

func (a *app) mountHandlers() {
	mux := http.NewServeMux()
	ctl := control.NewHandler(a.logger)
	ctl.Add(control.New(a.mgr))
	ctl.RegisterHTTPHandlers("/cache/", mux)

	records := newRecordsHandler(a.mgr, a.logger)
	mux.Handle("/records/", records)
	mux.Handle("/groups/", records)

	a.server.Handle("/cache/", mux)
	a.server.Handle("/records/", mux)
	a.server.Handle("/groups/", mux)
}

// shutdown stops the pieces in reverse start order. Errors are logged so
// every piece gets its turn.
func (a *app) shutdown(timeout time.Duration) {
	if a.server != nil {
		if err := a.server.Stop(timeout); err != nil {
			slog.Error("Failed to stop http server", "error", err)
		}
	}
	if a.mgr != nil {
		if err := a.mgr.Close(); err != nil {
			slog.Error("Failed to close cache manager", "error", err)
		}
	}
	if a.events != nil {
		if err := a.events.Stop(timeout); err != nil {
			slog.Error("Failed to drain event publisher", "error", err)
		}
	}
	if a.nats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.nats.Close(ctx); err != nil {
			slog.Error("Failed to close NATS client", "error", err)
		}
	}
}
