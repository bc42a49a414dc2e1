// excond is the exercise orchestrator daemon: it serves the control API,
// drives inject delivery over the broker and launches per-team workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rangeops/excon/internal/analytics"
	"github.com/rangeops/excon/internal/api"
	"github.com/rangeops/excon/internal/bus"
	"github.com/rangeops/excon/internal/config"
	"github.com/rangeops/excon/internal/exercise"
	"github.com/rangeops/excon/internal/launch"
	"github.com/rangeops/excon/internal/library"
	xlog "github.com/rangeops/excon/internal/log"
	"github.com/rangeops/excon/internal/scenario"
	"github.com/rangeops/excon/internal/status"
)

var (
	version = "dev"
	commit  = "none"
)

const shutdownGrace = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("excond %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "excond",
		Version: version,
	})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("daemon failed")
		os.Exit(1)
	}
	logger.Info().Msg("daemon stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := xlog.WithComponent("main")

	// Status mirror. A dead redis degrades to in-memory state so exercise
	// control keeps working; dashboards lose the shared mirror only.
	var store status.Store
	redisStore, err := status.NewRedisStore(status.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, xlog.WithComponent("status"))
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory status store")
		store = status.NewMemoryStore()
	} else {
		store = redisStore
	}
	defer func() { _ = store.Close() }()

	mqttBus, err := bus.NewMQTT(cfg.BrokerURL, "excond", xlog.WithComponent("bus"))
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	defer func() { _ = mqttBus.Close() }()

	launcher, err := launch.NewDocker(xlog.WithComponent("launch"))
	if err != nil {
		return fmt.Errorf("docker connect: %w", err)
	}

	loader := scenario.NewLoader(cfg.ScenariosDir, xlog.WithComponent("scenario"))
	index := scenario.NewIndex(loader, xlog.WithComponent("scenario"))

	table := exercise.NewTable(loader, mqttBus, store, launcher, exercise.Options{
		TickInterval:      cfg.TickInterval,
		DashboardImage:    cfg.DashboardImage,
		DashboardBasePort: cfg.DashboardBasePort,
		DashboardHost:     cfg.DashboardHost,
		DockerNetwork:     cfg.DockerNetwork,
		SDRImage:          cfg.SDRImage,
		SDRPort:           cfg.SDRPort,
		BrokerURL:         cfg.BrokerURL,
		ScenariosDir:      cfg.ScenariosDir,
	}, xlog.WithComponent("exercise"))

	media := library.NewMediaLibrary(cfg.MediaDir, xlog.WithComponent("library"))
	iqlib := library.NewIQLibrary(cfg.IQLibraryDir, xlog.WithComponent("library"))
	if err := media.EnsureDirs(); err != nil {
		return fmt.Errorf("media dirs: %w", err)
	}
	if err := iqlib.EnsureDirs(); err != nil {
		return fmt.Errorf("iq library dirs: %w", err)
	}

	usage := analytics.NewStore(cfg.ScenariosDir, xlog.WithComponent("analytics"))

	server := api.NewServer(api.Deps{
		Config:    cfg,
		Table:     table,
		Loader:    loader,
		Index:     index,
		Store:     store,
		Media:     media,
		IQLibrary: iqlib,
		Analytics: usage,
		BusUp:     mqttBus.Connected,
	}, xlog.WithComponent("api"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Watcher failures degrade to per-request rescans, never fatal.
		if err := index.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("scenario watch unavailable, listing rescans on demand")
		}
		return nil
	})
	g.Go(func() error { return server.Serve(ctx) })

	err = g.Wait()

	// Workers outlive nothing: tear down every active exercise on the way
	// out so containers do not leak past the daemon.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	table.StopAll(shutdownCtx)

	return err
}
