// Package main provides the HTTP server for snapknow.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/snapknow/internal/config"
	"github.com/raphaelgruber/snapknow/internal/extract"
	"github.com/raphaelgruber/snapknow/internal/llm"
	"github.com/raphaelgruber/snapknow/internal/metrics"
	"github.com/raphaelgruber/snapknow/internal/retry"
	"github.com/raphaelgruber/snapknow/internal/server"
	"github.com/raphaelgruber/snapknow/internal/service"
	"github.com/raphaelgruber/snapknow/internal/source"
	"github.com/raphaelgruber/snapknow/internal/store"
	"github.com/raphaelgruber/snapknow/internal/taxonomy"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	debug := flag.Bool("debug", false, "run the HTTP router in debug mode")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, *wipeDB, *debug, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, wipeDB, debug bool, logger *slog.Logger) error {
	logger.Info("starting snapknow-server", "addr", cfg.ListenAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := store.NewClient(ctx, store.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if wipeDB || os.Getenv("SNAPKNOW_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
	}
	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	taxProvider := taxonomy.NewProvider(dbClient, logger)
	if cfg.TaxonomySeed != "" {
		if err := taxProvider.Seed(ctx, cfg.TaxonomySeed); err != nil {
			return fmt.Errorf("seed taxonomy: %w", err)
		}
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	roster, err := llm.NewRoster(cfg)
	if err != nil {
		return fmt.Errorf("init extractor roster: %w", err)
	}
	logger.Info("extractor roster bound", "extractors", roster.IDs(), "default", roster.DefaultID())
	answerModel, err := llm.NewModel(cfg)
	if err != nil {
		return fmt.Errorf("init answer model: %w", err)
	}

	policy := retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay}
	collector := metrics.NewCollector()
	resolver := source.NewResolver(cfg.FileServiceURL, cfg.MaxDownloadSize, logger)
	extractors := extract.NewRosterSource(roster, logger)

	processor := service.NewProcessor(dbClient, resolver, extractors, embedder,
		taxProvider, policy, collector, logger)
	jobs := service.NewJobManager()
	dispatcher, err := service.NewDispatcher(dbClient, processor, jobs,
		cfg.WorkerPoolSize, collector, logger)
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}
	defer dispatcher.Close()

	retrieval := service.NewRetrieval(dbClient, embedder, answerModel, policy,
		cfg.SearchThreshold, cfg.SearchTopK, collector, logger)

	srv := server.New(server.Options{
		Addr:       cfg.ListenAddr,
		Store:      dbClient,
		Dispatcher: dispatcher,
		Retrieval:  retrieval,
		Jobs:       jobs,
		Sources:    resolver,
		Metrics:    collector,
		Logger:     logger,
		Debug:      debug,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(runCtx)
}

func newEmbedder(cfg config.Config) (service.Embedder, error) {
	if cfg.EmbedProvider == config.ProviderVoyage {
		return llm.NewVoyageEmbedder(cfg.VoyageAPIKey, cfg.EmbedModel, cfg.EmbedDimension)
	}
	return llm.NewEmbedder(cfg)
}
