package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/api/rest"
	"github.com/Asif90988/banking-dashboard-streaming/internal/api/websocket"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/config"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/events"
	registryclient "github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/registry"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/telemetry"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/generator"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/registry"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/screening"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if cfg.Version == "dev" {
			cfg.Version = Version
		}

		logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := run(ctx, cfg, logger); err != nil {
			logger.Error("application failed", zap.Error(err))
			return err
		}
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           "screening",
		Short:         "Sanctions screening stream pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline and its HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	rootCmd.AddCommand(scoreCmd())

	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting sanctions screening pipeline",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment))

	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  telemetry.DefaultConfig().ExportTimeout,
		BatchTimeout:   telemetry.DefaultConfig().BatchTimeout,
		MetricInterval: telemetry.DefaultConfig().MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to shutdown telemetry", zap.Error(err))
		}
	}()

	clock := clockwork.NewRealClock()

	bus, err := newBus(cfg.Streaming, clock, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("failed to close bus", zap.Error(err))
		}
	}()
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("starting bus: %w", err)
	}

	h := hub.New(hub.Config{HistoryCap: cfg.Hub.HistoryCap}, clock, logger)
	if err := bus.Subscribe(ctx, "hub-relay", hub.RelayTopics(), h.HandleEnvelope); err != nil {
		return fmt.Errorf("subscribing hub relay: %w", err)
	}

	matcher, err := screening.NewMatcher(screening.Config{
		Threshold:         cfg.Matcher.Threshold,
		NearMissThreshold: cfg.Matcher.NearMissThreshold,
		Meter:             provider.Meter("screening"),
	}, bus, h, clock, logger)
	if err != nil {
		return err
	}
	if err := matcher.Start(ctx, bus); err != nil {
		return fmt.Errorf("starting matcher: %w", err)
	}

	fetcher, err := newFetcher(cfg.Registry, clock, logger)
	if err != nil {
		return err
	}
	producer, err := registry.NewProducer(registry.Config{
		Interval: cfg.Registry.Interval,
		Backoff:  cfg.Registry.Backoff,
	}, fetcher, bus, h, clock, logger)
	if err != nil {
		return err
	}
	if err := producer.Start(ctx); err != nil {
		return fmt.Errorf("starting registry producer: %w", err)
	}

	// Shutdown order: generator, producer, HTTP server, bus
	var gen *generator.Generator
	stopProducers := func() {
		if gen != nil {
			gen.Stop()
		}
		producer.Stop()
	}
	defer stopProducers()

	deps := rest.Dependencies{
		Bus:      bus,
		Hub:      h,
		Registry: producer,
		Logger:   logger,
		Version:  cfg.Version,
	}

	if cfg.Generator.Enabled {
		factory := generator.NewFactory(cfg.Generator.Seed, cfg.Generator.WatchlistHitRatio, sanctions.SampleNames(), clock)
		g, err := generator.New(generatorConfig(cfg.Generator), bus, factory, clock, logger)
		if err != nil {
			return err
		}
		if err := g.Start(ctx); err != nil {
			return fmt.Errorf("starting generator: %w", err)
		}
		gen = g
		deps.Generator = g
	}

	handlers, err := rest.NewHandlers(deps)
	if err != nil {
		return err
	}

	wsConfig := websocket.DefaultConfig()
	wsConfig.BufferSize = cfg.Hub.ClientBufferSize
	wsConfig.MaxMessageSize = int64(cfg.Hub.MaxMessageSizeKiB) << 10
	ws := websocket.NewServer(wsConfig, h, logger)

	server := rest.NewServer(rest.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, rest.NewRouter(handlers, ws, logger), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		ws.Close()
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	stopProducers()
	ws.Close()
	return server.Shutdown(context.Background())
}

// newBus builds the bus. Without a redis_url there is no broker and the bus
// runs on the simulated transport.
func newBus(cfg config.StreamingConfig, clock clockwork.Clock, logger *zap.Logger) (*events.Bus, error) {
	simConfig := events.DefaultSimulatedConfig()
	simConfig.Delay = cfg.SimulationDelay
	simConfig.InboxSize = cfg.BufferSize
	sim := events.NewSimulatedTransport(simConfig, clock, logger)

	busConfig := events.BusConfig{
		ConnectTimeout:     cfg.ConnectTimeout,
		HealthInterval:     cfg.HealthInterval,
		SimulationFallback: cfg.SimulationFallback,
		DeadLetterCap:      cfg.DeadLetterCap,
	}

	if cfg.RedisURL == "" {
		return events.NewBus(busConfig, nil, sim, logger, clock)
	}

	opts := &redis.Options{Addr: cfg.RedisURL}
	if strings.Contains(cfg.RedisURL, "://") {
		parsed, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis_url: %w", err)
		}
		opts = parsed
	}
	redisConfig := events.RedisConfig{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		Group:    cfg.ConsumerGroup,
		Consumer: cfg.ConsumerName,
		MaxLen:   cfg.StreamMaxLen,
		Block:    cfg.ReadBlock,
	}
	if cfg.RedisPassword != "" {
		redisConfig.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		redisConfig.DB = cfg.RedisDB
	}
	broker, err := events.NewRedisTransport(redisConfig, clock, logger)
	if err != nil {
		return nil, err
	}
	return events.NewBus(busConfig, broker, sim, logger, clock)
}

// newFetcher returns the HTTP registry client when enabled and the built-in
// sample watchlist otherwise
func newFetcher(cfg config.RegistryConfig, clock clockwork.Clock, logger *zap.Logger) (registry.Fetcher, error) {
	if !cfg.Enabled {
		logger.Info("registry disabled, publishing the built-in sample watchlist")
		return registryclient.NewStaticFetcher(clock), nil
	}
	return registryclient.NewClient(registryclient.Config{
		BaseURL:      cfg.BaseURL,
		Dataset:      cfg.Dataset,
		Query:        cfg.Query,
		Schema:       cfg.Schema,
		Limit:        cfg.Limit,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.FetchTimeout,
		RateLimitRPS: cfg.RateLimitRPS,
	}, nil, logger)
}

// generatorConfig converts the keyed stream map into an ordered list
func generatorConfig(cfg config.GeneratorConfig) generator.Config {
	names := make([]string, 0, len(cfg.Streams))
	for name := range cfg.Streams {
		names = append(names, name)
	}
	sort.Strings(names)

	streams := make([]generator.StreamConfig, 0, len(names))
	for _, name := range names {
		s := cfg.Streams[name]
		priority := generator.Priority(s.Priority)
		if priority == "" {
			priority = generator.PriorityNormal
		}
		streams = append(streams, generator.StreamConfig{
			Name:      name,
			Topic:     stream.Topic(s.Topic),
			Interval:  s.Interval,
			BatchSize: s.BatchSize,
			Priority:  priority,
			Enabled:   s.Enabled,
		})
	}
	return generator.Config{
		Streams:        streams,
		HealthInterval: cfg.HealthReportInterval,
		BurstRPS:       cfg.BurstRPS,
	}
}
