// Package cli provides the command-line interface for vidrag.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vidrag/internal/config"
	"github.com/raphaelgruber/vidrag/internal/db"
	"github.com/raphaelgruber/vidrag/internal/embedding"
	"github.com/raphaelgruber/vidrag/internal/extract"
	"github.com/raphaelgruber/vidrag/internal/graph"
	"github.com/raphaelgruber/vidrag/internal/llm"
	"github.com/raphaelgruber/vidrag/internal/metrics"
	"github.com/raphaelgruber/vidrag/internal/service"
	"github.com/raphaelgruber/vidrag/internal/source"
	"github.com/raphaelgruber/vidrag/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	format  string

	cfg       config.Config
	closeLogs func() error
	app       *components
)

// components holds the components shared by all commands.
type components struct {
	store    store.Store
	graph    graph.Store
	dbClient *db.Client // nil with the memory backend
	embedder embedding.Embedder
	registry *service.TaskRegistry
	pipeline *service.Pipeline
	search   *service.SearchService
	answers  *service.AnswerService
	sources  *source.Sources
	metrics  *metrics.Collector
}

var rootCmd = &cobra.Command{
	Use:   "vidrag",
	Short: "Temporal search over video transcripts",
	Long: `Vidrag ingests video transcripts, splits them into time segments,
tags each segment with entities and topics, embeds it, and answers
questions like "where in which video is X discussed".

Segments are stored in SurrealDB (or in memory with VIDRAG_STORE=memory)
and searched by meaning, entity, topic and time range.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := validateFormat(format); err != nil {
			return err
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		var logger *slog.Logger
		logger, closeLogs = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		var err error
		app, err = newComponents(cmd.Context(), cfg, logger)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil && app.dbClient != nil {
			if err := app.dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLogs != nil {
			_ = closeLogs()
		}
	},
}

// newComponents wires store, embedder, extractor, registry, pipeline and search.
func newComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (*components, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	emb, err := embedding.New(ctx, embedding.Config{
		Provider:     embedding.ProviderType(cfg.EmbedProvider),
		Model:        cfg.EmbedModel,
		Dimension:    cfg.EmbedDimension,
		OllamaHost:   cfg.OllamaHost,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		VoyageAPIKey: cfg.VoyageAPIKey,
		AWSRegion:    cfg.AWSRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	r := &components{embedder: emb, metrics: metrics.NewCollector()}

	var regOpts []service.RegistryOption
	switch cfg.StoreBackend {
	case config.StoreMemory:
		r.store = store.NewMemory()
		r.graph = graph.NewMemory()
	case config.StoreSurrealDB, "":
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := client.InitSchema(ctx, emb.Dimension()); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		r.store = client
		r.graph = client
		r.dbClient = client
		regOpts = append(regOpts, service.WithRecorder(client))
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}

	model, err := newModel(cfg)
	if err != nil {
		return nil, err
	}

	r.registry = service.NewTaskRegistry(regOpts...)
	r.pipeline = service.NewPipeline(r.registry, r.store, emb, newExtractor(model), service.PipelineConfig{
		SegmentDuration:    cfg.SegmentDuration,
		SegmentConcurrency: cfg.SegmentConcurrency,
		MaxConcurrentRuns:  cfg.MaxConcurrentRuns,
		CallTimeout:        cfg.CallTimeout,
	}, r.metrics).WithGraph(r.graph)
	r.search = service.NewSearchService(r.store, emb, service.SearchConfig{
		DefaultMaxResults: cfg.DefaultMaxResults,
		Oversample:        cfg.SearchOversample,
	}, r.metrics)

	var gen service.Generator
	if model != nil {
		gen = model
	}
	r.answers = service.NewAnswerService(r.search, gen)

	yt, err := source.NewYouTube(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		return nil, fmt.Errorf("init youtube source: %w", err)
	}
	r.sources = source.NewSources().
		Register(source.KindYouTube, yt).
		Register(source.KindFile, source.File{})

	return r, nil
}

// newModel returns nil when no LLM provider is configured.
func newModel(cfg config.Config) (*llm.Model, error) {
	if cfg.LLMProvider == "" {
		return nil, nil
	}
	model, err := llm.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	return model, nil
}

// newExtractor prefers the LLM when there is one and falls back to the heuristic extractor.
func newExtractor(model *llm.Model) extract.Extractor {
	heuristic := extract.NewHeuristic()
	if model == nil {
		return heuristic
	}
	return extract.NewChain(extract.NewLLM(model), heuristic)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "o", formatText, "output format (text, json, yaml)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(topicCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(infoCmd)
}
