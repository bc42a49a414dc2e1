// sdrsim replays an IQ recording over the rtl_tcp protocol, mixing in
// jamming signals commanded over the broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rangeops/excon/internal/bus"
	"github.com/rangeops/excon/internal/config"
	"github.com/rangeops/excon/internal/iq"
	xlog "github.com/rangeops/excon/internal/log"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sdrsim %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadSDR()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "sdrsim",
		Version: version,
	})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("sdr service failed")
		os.Exit(1)
	}
	logger.Info().Msg("sdr service stopped")
}

func run(ctx context.Context, cfg config.SDRConfig) error {
	logger := xlog.WithComponent("main")

	producer, err := iq.NewProducer(cfg.IQFilePath, cfg.SampleRate, cfg.ChunkSize, xlog.WithComponent("producer"))
	if err != nil {
		return fmt.Errorf("load iq file: %w", err)
	}

	mixer := iq.NewMixer(cfg.SampleRate, xlog.WithComponent("mixer"))
	broadcaster := iq.NewBroadcaster(cfg.ListenAddr, xlog.WithComponent("rtltcp"))

	// Control is optional: with no broker the service still replays the
	// recording, it just cannot be commanded mid-exercise.
	controller := iq.NewController(producer, mixer, xlog.WithComponent("control"))
	if mqttBus, err := bus.NewMQTT(cfg.BrokerURL, "sdrsim", xlog.WithComponent("bus")); err != nil {
		logger.Warn().Err(err).Str("broker", cfg.BrokerURL).Msg("broker unavailable, running uncontrolled")
	} else {
		defer func() { _ = mqttBus.Close() }()
		if err := controller.Attach(mqttBus, cfg.ControlTopic); err != nil {
			logger.Warn().Err(err).Str("topic", cfg.ControlTopic).Msg("control subscribe failed")
		}
	}

	// Playback starts immediately; the exercise pauses it via injects.
	producer.Play()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return broadcaster.Serve(ctx) })
	g.Go(func() error { return iq.Stream(ctx, producer, mixer, broadcaster, xlog.WithComponent("stream")) })

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
