// Command ingestor runs the WiFi scan telemetry ingestion pipeline.
//
// # Usage
//
//	ingestor --config /etc/wifiscan/ingestor.yaml
//
// # Configuration
//
// Configuration can be provided via:
// - Command-line flags
// - Environment variables (WIFISCAN_*)
// - Config file (--config)
//
// # Examples
//
// Run with flags:
//
//	ingestor --brokers broker-1:9092,broker-2:9092 \
//	         --topic wifi-scan-events \
//	         --consumer-group wifi-scan-ingestor \
//	         --stream-name wifi-scan-events-stream
//
// Run with config file:
//
//	ingestor --config /etc/wifiscan/ingestor.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilot-net/icmp-mon/internal/api"
	"github.com/pilot-net/icmp-mon/internal/audit"
	"github.com/pilot-net/icmp-mon/internal/bus"
	"github.com/pilot-net/icmp-mon/internal/config"
	"github.com/pilot-net/icmp-mon/internal/control"
	"github.com/pilot-net/icmp-mon/internal/delivery"
	"github.com/pilot-net/icmp-mon/internal/health"
	"github.com/pilot-net/icmp-mon/internal/ingest"
	"github.com/pilot-net/icmp-mon/internal/monitoring"
	"github.com/pilot-net/icmp-mon/internal/transform"
)

// version is set at build time.
var version = "dev"

func main() {
	var (
		configFile    = flag.String("config", "", "Path to config file")
		brokers       = flag.String("brokers", "", "Comma-separated bus broker addresses")
		topic         = flag.String("topic", "", "Bus topic to consume")
		consumerGroup = flag.String("consumer-group", "", "Bus consumer group")
		streamName    = flag.String("stream-name", "", "Downstream delivery stream name")
		region        = flag.String("region", "", "Downstream delivery region")
		httpAddr      = flag.String("http-addr", "", "HTTP API listen address")
		debug         = flag.Bool("debug", false, "Enable debug logging")
		showVersion   = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("wifiscan-ingestor %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg := config.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	cfg.ApplyEnvOverrides()

	if *brokers != "" {
		cfg.Bus.Brokers = splitFlagCSV(*brokers)
	}
	if *topic != "" {
		cfg.Bus.Topic = *topic
	}
	if *consumerGroup != "" {
		cfg.Bus.ConsumerGroup = *consumerGroup
	}
	if *streamName != "" {
		cfg.Delivery.StreamName = *streamName
	}
	if *region != "" {
		cfg.Delivery.Region = *region
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && err != context.Canceled {
		logger.Error("ingestor exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("ingestor shutdown complete")
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	state := monitoring.New(time.Now())

	auditStore := audit.New(nil)
	if cfg.Audit.Enabled {
		store, err := audit.NewFromURL(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting audit store: %w", err)
		}
		auditStore = store
		defer auditStore.Close()
	}

	ctrl, err := control.New(control.Config{
		RedisURL: cfg.Control.RedisURL,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating consumer control: %w", err)
	}
	defer ctrl.Close()
	ctrl.Subscribe(ctx)

	consumer, err := bus.New(bus.Config{
		Brokers:       cfg.Bus.Brokers,
		Topic:         cfg.Bus.Topic,
		ConsumerGroup: cfg.Bus.ConsumerGroup,
		BatchSize:     cfg.Bus.BatchSize,
		PollInterval:  cfg.Bus.PollInterval,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating bus consumer: %w", err)
	}
	consumer.SetPausedFunc(ctrl.IsPaused)
	defer consumer.Close()

	pipeline := transform.New(transform.Config{
		MaxRecordSizeBytes: cfg.Processing.MaxRecordSizeBytes,
	})

	publisher, err := delivery.NewFirehosePublisher(ctx, delivery.FirehoseConfig{
		Region:      cfg.Delivery.Region,
		EndpointURL: cfg.Delivery.EndpointURL,
	})
	if err != nil {
		return fmt.Errorf("creating delivery publisher: %w", err)
	}

	engine := delivery.New(delivery.Config{
		DeliveryStreamName: cfg.Delivery.StreamName,
		MaxBatchSize:       cfg.Processing.MaxBatchSize,
		MaxBatchSizeBytes:  cfg.Processing.MaxBatchSizeBytes,
		MaxRetries:         cfg.Processing.MaxRetries,
		RetryBackoff:       cfg.RetryBackoff(),
		Jitter:             cfg.Processing.RetryJitter,
		Publisher:          publisher,
		Logger:             logger,
	})

	loop := ingest.New(ingest.Config{
		Consumer:           consumer,
		Pipeline:           pipeline,
		Engine:             engine,
		State:              state,
		Audit:              auditStore,
		SlowBatchThreshold: cfg.SlowBatchThreshold(),
		Logger:             logger,
	})

	arbiter := health.New(health.Config{
		Heartbeat:          health.NewHeartbeat(state.LastPoll),
		State:              state,
		ConsumptionTimeout: cfg.ConsumptionTimeout(),
		MinConsumptionRate: cfg.Readiness.MinimumConsumptionRate,
	})

	apiServer := api.NewServer(api.Config{
		State:    state,
		Arbiter:  arbiter,
		Control:  ctrl,
		Pipeline: pipeline,
		Engine:   engine,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: apiServer,
	}

	go watchConnectivity(ctx, consumer, state, logger)

	errCh := make(chan error, 2)

	go func() {
		logger.Info("starting http api", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		logger.Info("starting consumer loop",
			"topic", cfg.Bus.Topic, "consumer_group", cfg.Bus.ConsumerGroup)
		if err := loop.Run(ctx); err != nil {
			errCh <- fmt.Errorf("consumer loop: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
	case <-ctx.Done():
	}

	// Stop accepting new poll callbacks as if paused and drain in-flight HTTP
	// requests. A batch callback already running is not waited for: the
	// deferred Close calls run as soon as the HTTP server has shut down.
	ctrl.Pause(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	return nil
}

// watchConnectivity periodically samples bus connectivity and reflects it
// into monitoring state, which the readiness arbiter reads back.
func watchConnectivity(ctx context.Context, consumer *bus.Consumer, state *monitoring.State, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	check := func() {
		ok := consumer.Connected()
		state.SetConsumerConnected(ok)
		state.SetConsumerGroupActive(ok)
		state.SetTopicsAccessible(ok)
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func splitFlagCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
