// Package cli provides the command-line interface for snapknow.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/snapknow/internal/config"
	"github.com/raphaelgruber/snapknow/internal/extract"
	"github.com/raphaelgruber/snapknow/internal/llm"
	"github.com/raphaelgruber/snapknow/internal/retry"
	"github.com/raphaelgruber/snapknow/internal/service"
	"github.com/raphaelgruber/snapknow/internal/source"
	"github.com/raphaelgruber/snapknow/internal/store"
	"github.com/raphaelgruber/snapknow/internal/taxonomy"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and db client
	cfg      config.Config
	dbClient *store.Client

	// Lazy-initialized pipeline components
	embedder   service.Embedder
	dispatcher *service.Dispatcher
	retrieval  *service.Retrieval
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "snapknow",
	Short: "Image-to-knowledge ingestion and retrieval",
	Long: `Snapknow turns images of notes, slides, whiteboards, and documents into
searchable structured knowledge.

Images are transcribed and paraphrased by a vision model, classified into a
growing category > subcategory > topic taxonomy, embedded, and stored in
SurrealDB for semantic search and question answering.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		ctx := context.Background()
		dbCfg := store.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = store.NewClient(ctx, dbCfg, nil)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dispatcher != nil {
			dispatcher.Close()
		}
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

func retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}
}

// newEmbedder picks the embedding backend from config.
func newEmbedder() (service.Embedder, error) {
	if cfg.EmbedProvider == config.ProviderVoyage {
		return llm.NewVoyageEmbedder(cfg.VoyageAPIKey, cfg.EmbedModel, cfg.EmbedDimension)
	}
	return llm.NewEmbedder(cfg)
}

// getDispatcher lazily builds the ingestion pipeline. Commands that queue
// work (ingest, retry) call this; read-only commands stay off the LLM path.
func getDispatcher() (*service.Dispatcher, error) {
	if dispatcher != nil {
		return dispatcher, nil
	}

	var err error
	if embedder == nil {
		embedder, err = newEmbedder()
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}
	roster, err := llm.NewRoster(cfg)
	if err != nil {
		return nil, fmt.Errorf("init extractor roster: %w", err)
	}

	resolver := source.NewResolver(cfg.FileServiceURL, cfg.MaxDownloadSize, nil)
	extractors := extract.NewRosterSource(roster, nil)
	taxProvider := taxonomy.NewProvider(dbClient, nil)

	if cfg.TaxonomySeed != "" {
		if err := taxProvider.Seed(context.Background(), cfg.TaxonomySeed); err != nil {
			return nil, fmt.Errorf("seed taxonomy: %w", err)
		}
	}

	processor := service.NewProcessor(dbClient, resolver, extractors, embedder,
		taxProvider, retryPolicy(), nil, nil)
	dispatcher, err = service.NewDispatcher(dbClient, processor, service.NewJobManager(),
		cfg.WorkerPoolSize, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	return dispatcher, nil
}

// getRetrieval lazily builds the query engine.
func getRetrieval() (*service.Retrieval, error) {
	if retrieval != nil {
		return retrieval, nil
	}

	var err error
	if embedder == nil {
		embedder, err = newEmbedder()
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}
	model, err := llm.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}

	retrieval = service.NewRetrieval(dbClient, embedder, model, retryPolicy(),
		cfg.SearchThreshold, cfg.SearchTopK, nil, nil)
	return retrieval, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(taxonomyCmd)
}
