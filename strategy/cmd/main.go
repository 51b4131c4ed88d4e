package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Amber-Finance/amber-strategy-engine/assets"
	"github.com/Amber-Finance/amber-strategy-engine/markets"
	"github.com/Amber-Finance/amber-strategy-engine/skipquery"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/config"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/engine"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/routing"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/rpc"
)

var log zerolog.Logger

func init() {
	// Initialize zerolog with console writer
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "", "TOML config file; AMBER_ env vars are used when empty")
	flag.Parse()

	var cfgPath *string
	if *configPath != "" {
		cfgPath = configPath
	}

	log.Info().Str("config", *configPath).Msg("Starting Amber Strategy Engine")

	cfg, err := config.LoadEngineConfig(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Asset catalog: metadata from the published registry, pairs from the
	// local catalog file.
	if cfg.AssetDir == "" || cfg.PairCatalog == "" {
		log.Fatal().Msg("asset_dir and pair_catalog are required")
	}
	if cfg.DownloadAssets {
		if err := assets.RegistryGitDownload(cfg.AssetDir); err != nil {
			log.Fatal().Err(err).Msg("Failed to download asset registry")
		}
	}
	index, err := assets.LoadIndex(cfg.AssetDir, cfg.PairCatalog)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load asset catalog")
	}
	log.Info().Int("pairs", len(index.Pairs())).Msg("Asset catalog loaded")

	// Skip routing client with failover across configured endpoints.
	var skipClient *skipquery.Client
	if len(cfg.SkipAPIURLs) > 1 {
		skipClient = skipquery.NewClientWithFailover(
			cfg.SkipAPIURLs[0],
			cfg.SkipAPIURLs[1:],
			skipquery.DefaultFailoverConfig(),
		)
	} else {
		skipClient = skipquery.NewClient(cfg.SkipAPIURLs[0])
	}
	defer skipClient.Close()

	oracle := routing.NewSkipOracle(skipClient, cfg.ChainID)

	// Market feed with background refresh.
	feed := markets.NewFeed(cfg.MarketsAPIURL, 10*time.Second)
	refreshInterval := 30 * time.Second
	if cfg.MarketRefreshSeconds > 0 {
		refreshInterval = time.Duration(cfg.MarketRefreshSeconds) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed.Start(ctx, refreshInterval)
	defer feed.Stop()

	planner := engine.NewPlanner(feed, oracle, index, engine.PlannerConfig{
		MinHealthFactor:    cfg.MinHealthFactorDecimal(),
		DefaultSlippageBps: cfg.DefaultSlippageBps,
		LeverageBuffer:     cfg.LeverageBufferDecimal(),
	})

	debounce := engine.DefaultDebounce
	if cfg.DebounceMillis > 0 {
		debounce = time.Duration(cfg.DebounceMillis) * time.Millisecond
	}
	sessions := engine.NewSessions(planner, debounce)
	defer sessions.Stop()

	handlers := rpc.NewHandlers(planner, sessions, feed, "neutron")

	serverConfig := buildServerConfig(cfg)
	server, err := rpc.NewServer(ctx, serverConfig, handlers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildServerConfig converts the loaded EngineConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.EngineConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus, // Enable metrics endpoint if prometheus is enabled
	}

	// Set rate limiting if configured
	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.Burst = &cfg.MaxConcurrentRequests
	}

	// Set OpenTelemetry configuration if any telemetry is enabled
	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "amber-strategy-engine"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			EnableLogs:      cfg.EnableLogs,
			UseOTLPLogs:     cfg.UseOTLPLogs,
			OTLPLogsURL:     cfg.OTLPLogsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
