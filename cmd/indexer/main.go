package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/branchvisibility"
	"github.com/codelens/indexcore/internal/config"
	"github.com/codelens/indexcore/internal/embedding"
	"github.com/codelens/indexcore/internal/fingerprint"
	"github.com/codelens/indexcore/internal/gittopology"
	"github.com/codelens/indexcore/internal/lock"
	"github.com/codelens/indexcore/internal/orchestrator"
	"github.com/codelens/indexcore/internal/payloadindex"
	"github.com/codelens/indexcore/internal/query"
	"github.com/codelens/indexcore/internal/vectorstoreclient"
	"github.com/codelens/indexcore/pkg/telemetry"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "index":
		runIndex(logger, os.Args[2:])
	case "query":
		runQuery(logger, os.Args[2:])
	case "reconcile":
		runReconcile(logger, os.Args[2:])
	case "status":
		runStatus(logger, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: indexer <index|query|reconcile|status> [flags]")
}

func commonFlags(fs *flag.FlagSet) (repo, cfgPath *string, forceFull *bool) {
	repo = fs.String("repo", ".", "path to the project to index")
	cfgPath = fs.String("config", "", "path to a YAML config file (when set, its project_root is used and -repo is ignored)")
	forceFull = fs.Bool("full", false, "force a full reindex, ignoring progressive and incremental state")
	return
}

func loadConfig(cfgPath, repo string) config.Config {
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	cfg := config.Default()
	cfg.ProjectRoot = repo
	return cfg
}

func buildEmbedder(cfg config.Config, logger zerolog.Logger) embedding.Provider {
	var base embedding.Provider
	var err error

	switch cfg.EmbeddingProvider {
	case "openai":
		base, err = embedding.NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel, logger)
	case "ollama":
		base, err = embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown embedding provider %q\n", cfg.EmbeddingProvider)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "create embedding provider: %v\n", err)
		os.Exit(1)
	}

	retrying := embedding.NewRetryingProvider(base, embedding.DefaultRetryConfig(), logger)
	caching, err := embedding.NewCachingProvider(retrying, cfg.Indexing.EmbedCacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create embedding cache: %v\n", err)
		os.Exit(1)
	}
	return caching
}

func buildOrchestrator(cfg config.Config, logger zerolog.Logger) (*orchestrator.Orchestrator, *vectorstoreclient.Client, string) {
	projectID, err := fingerprint.ProjectID(cfg.ProjectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compute project id: %v\n", err)
		os.Exit(1)
	}

	embedder := buildEmbedder(cfg, logger)
	collection := fingerprint.CollectionName(projectID, embedder.ModelName())

	vsClient, err := vectorstoreclient.New(cfg.QdrantURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to qdrant: %v\n", err)
		os.Exit(1)
	}

	topology, err := gittopology.Open(cfg.ProjectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open git topology: %v\n", err)
		os.Exit(1)
	}

	payloadMgr := payloadindex.New(vsClient, logger)
	branchMgr := branchvisibility.New(vsClient, collection)
	metrics := telemetry.New(nil, logger)

	o := &orchestrator.Orchestrator{
		ProjectRoot:           cfg.ProjectRoot,
		StateDir:              cfg.StateDir,
		Collection:            collection,
		ProjectID:             projectID,
		Client:                vsClient,
		Embedder:              embedder,
		ProviderName:          cfg.EmbeddingProvider,
		Git:                   topology,
		Lock:                  lock.New(cfg.StateDir),
		Payload:               payloadMgr,
		Branches:              branchMgr,
		Metrics:               metrics,
		MaxFileSize:           cfg.Indexing.MaxFileSizeByte,
		Workers:               cfg.Indexing.MaxWorkers,
		TimestampSafetyBuffer: cfg.Indexing.TimestampSafetyBuffer,
		Logger:                logger,
	}
	o.ChunkConfig.ChunkSize = cfg.Indexing.ChunkSize
	o.ChunkConfig.ChunkOverlap = cfg.Indexing.ChunkOverlap

	return o, vsClient, collection
}

func runIndex(logger zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	repo, cfgPath, forceFull := commonFlags(fs)
	fs.Parse(args)

	cfg := loadConfig(*cfgPath, *repo)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	o, vsClient, _ := buildOrchestrator(cfg, logger)
	defer vsClient.Close()

	ctx := context.Background()
	result, err := o.Run(ctx, orchestrator.RunOptions{
		ForceFull: *forceFull,
		Progress: func(done, total int, path string, chunks int, phase string) {
			logger.Info().Int("done", done).Int("total", total).Str("path", path).Int("chunks", chunks).Msg(phase)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("indexing run failed")
	}

	fmt.Printf("\nIndexing %s (%s)\n", result.Outcome, result.Mode)
	fmt.Printf("  files indexed:   %d\n", result.FilesIndexed)
	fmt.Printf("  chunks embedded: %d\n", result.ChunksEmbedded)
	fmt.Printf("  errors:          %d\n", result.Errors)
}

func runQuery(logger zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	repo, cfgPath, _ := commonFlags(fs)
	text := fs.String("q", "", "query text")
	branch := fs.String("branch", "", "restrict results to this branch (default: the current git branch)")
	language := fs.String("language", "", "restrict results to this language")
	minScore := fs.Float64("min-score", 0, "minimum similarity score")
	limit := fs.Int("limit", 10, "maximum number of results")
	fs.Parse(args)

	if *text == "" {
		fmt.Fprintln(os.Stderr, "-q is required")
		os.Exit(1)
	}

	cfg := loadConfig(*cfgPath, *repo)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	projectID, err := fingerprint.ProjectID(cfg.ProjectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compute project id: %v\n", err)
		os.Exit(1)
	}

	embedder := buildEmbedder(cfg, logger)
	collection := fingerprint.CollectionName(projectID, embedder.ModelName())

	vsClient, err := vectorstoreclient.New(cfg.QdrantURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to qdrant: %v\n", err)
		os.Exit(1)
	}
	defer vsClient.Close()

	topology, err := gittopology.Open(cfg.ProjectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open git topology: %v\n", err)
		os.Exit(1)
	}

	queryBranch := *branch
	if queryBranch == "" {
		if b, err := topology.CurrentBranch(); err == nil {
			queryBranch = b
		}
	}

	svc := query.New(vsClient, embedder, collection, projectID, topology)
	hits, err := svc.Search(context.Background(), *text, query.Filters{
		Branch:   queryBranch,
		Language: *language,
		MinScore: float32(*minScore),
		Limit:    *limit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("query failed")
	}

	for i, h := range hits {
		fmt.Printf("%d. %s:%d-%d (score %.3f)\n", i+1, h.Path, h.LineStart, h.LineEnd, h.Score)
	}
}

func runReconcile(logger zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	repo, cfgPath, _ := commonFlags(fs)
	fs.Parse(args)

	cfg := loadConfig(*cfgPath, *repo)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	o, vsClient, _ := buildOrchestrator(cfg, logger)
	defer vsClient.Close()

	result, err := o.Run(context.Background(), orchestrator.RunOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("reconcile failed")
	}
	fmt.Printf("reconcile %s\n", result.Outcome)
}

func runStatus(logger zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	repo, cfgPath, _ := commonFlags(fs)
	fs.Parse(args)

	cfg := loadConfig(*cfgPath, *repo)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	projectID, err := fingerprint.ProjectID(cfg.ProjectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compute project id: %v\n", err)
		os.Exit(1)
	}

	embedder := buildEmbedder(cfg, logger)
	collection := fingerprint.CollectionName(projectID, embedder.ModelName())

	vsClient, err := vectorstoreclient.New(cfg.QdrantURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to qdrant: %v\n", err)
		os.Exit(1)
	}
	defer vsClient.Close()

	payloadMgr := payloadindex.New(vsClient, logger)
	statuses, err := payloadMgr.Status(context.Background(), collection)
	if err != nil {
		logger.Fatal().Err(err).Msg("status check failed")
	}

	fmt.Printf("project id:  %s\n", projectID)
	fmt.Printf("collection:  %s\n", collection)
	for field, present := range statuses {
		fmt.Printf("  index %-20s present=%v\n", field, present)
	}
}
