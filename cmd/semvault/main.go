package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/config"
	"github.com/semvault/semvault/internal/embed"
	"github.com/semvault/semvault/internal/index"
	"github.com/semvault/semvault/internal/prune"
	"github.com/semvault/semvault/internal/search"
	"github.com/semvault/semvault/internal/version"
	"github.com/semvault/semvault/internal/web"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "semvault",
	Short:   "Local semantic search over a notes vault",
	Version: version.Full(),
	Long: `semvault is a local semantic search engine for plain-text note
vaults. It embeds paragraphs with a static pre-trained word-vector table,
answers top-K queries by cosine similarity, and can prune a large
embedding table down to the vocabulary your vault actually uses.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize semvault in the current directory",
	Long: `Initialize a new semvault project in the current directory.
This creates a .semvault directory with the default configuration.`,
	RunE: runInit,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the semantic index from the vault",
	Long: `Build the semantic index from scratch: chunk every document into
paragraphs, embed each paragraph under the configured strategy, and
replace the persisted index atomically.`,
	RunE: runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the vault semantically",
	Long: `Search the indexed vault with a natural-language query. Results
are ranked by cosine similarity between the query vector and each
paragraph vector.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and table statistics",
	RunE:  runStatus,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune a full embedding table to the vault vocabulary",
	Long: `Reduce a large embedding table to the vault's vocabulary plus
each word's nearest neighbors in the full table.

Without --vocab the target vocabulary is scanned from the configured
vault. With --checkpoint the job is resumable: progress is saved
periodically and a later invocation picks up where it left off.`,
	RunE: runPrune,
}

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a large embedding table into chunk files",
	RunE:  runSplit,
}

var deriveCmd = &cobra.Command{
	Use:   "derive <word> <context words...>",
	Short: "Derive a custom vector for an out-of-vocabulary word",
	Long: `Derive a vector for a word missing from the embedding table by
averaging the vectors of the given context words, and persist it to the
custom vectors file. The vector is merged into the table on future loads
as long as the base model and dimension still match.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDerive,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	Long: `Start an HTTP server exposing search, status, and rebuild as a
JSON API for host applications.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("semvault %s\n", version.Version)
		fmt.Printf("  commit:  %s\n", version.Commit)
		fmt.Printf("  built:   %s\n", version.Date)
	},
}

var (
	flagDebug bool

	flagSearchTopK   int
	flagSearchFormat string

	flagPruneInput      string
	flagPruneVocab      string
	flagPruneOutput     string
	flagPruneThreshold  float64
	flagPruneCap        int
	flagPruneNeighbors  int
	flagPruneWorkers    int
	flagPruneCheckpoint bool

	flagSplitInput string
	flagSplitLines int
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	searchCmd.Flags().IntVarP(&flagSearchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVarP(&flagSearchFormat, "format", "f", "default", "output format: default, json, compact")

	pruneCmd.Flags().StringVar(&flagPruneInput, "input", "", "path to the full embedding table (required)")
	pruneCmd.Flags().StringVar(&flagPruneVocab, "vocab", "", "target vocabulary file, one word per line (default: scan the vault)")
	pruneCmd.Flags().StringVar(&flagPruneOutput, "output", "pruned_vectors.txt", "path for the pruned output file")
	pruneCmd.Flags().Float64Var(&flagPruneThreshold, "threshold", 0.0, "similarity threshold for including neighbors (0 to 1)")
	pruneCmd.Flags().IntVar(&flagPruneCap, "cap", 100000, "hard vocabulary cap for the final file")
	pruneCmd.Flags().IntVar(&flagPruneNeighbors, "neighbors", 5, "number of closest neighbors to consider")
	pruneCmd.Flags().IntVar(&flagPruneWorkers, "workers", 0, "worker pool size (0 = number of CPUs)")
	pruneCmd.Flags().BoolVar(&flagPruneCheckpoint, "checkpoint", false, "enable the resumable variant with periodic checkpoints")

	splitCmd.Flags().StringVar(&flagSplitInput, "input", "", "path to the large embedding table to split (required)")
	splitCmd.Flags().IntVar(&flagSplitLines, "lines", 100000, "number of lines per output chunk file")

	rootCmd.AddCommand(initCmd, indexCmd, searchCmd, statusCmd, pruneCmd, splitCmd, deriveCmd, serveCmd, versionCmd)
}

// newLogger builds the CLI logger; development config when --debug is set.
func newLogger() (*zap.Logger, error) {
	if flagDebug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadProject finds the project root and loads its configuration.
func loadProject() (*config.Config, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}

// loadTable loads the configured embedding table and overlays custom
// vectors whose base model and dimension match.
func loadTable(cfg *config.Config, logger *zap.Logger) (*embed.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loader := embed.NewLoader(embed.WithLogger(logger))
	table, err := loader.Load(cfg.Embedding.Sources...)
	if err != nil {
		return nil, err
	}
	customs, err := embed.LoadCustomVectors(cfg.Embedding.CustomVectorsPath)
	if err != nil {
		logger.Warn("could not load custom vectors", zap.Error(err))
	} else if len(customs) > 0 {
		merged := loader.MergeCustom(table, customs, cfg.Embedding.BaseModel)
		logger.Debug("merged custom vectors", zap.Int("merged", merged), zap.Int("total", len(customs)))
	}
	return table, nil
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg := config.DefaultConfig()
	cfg.DataDir = config.DefaultDataDir
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := cfg.WriteDefaultConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Initialized semvault project in %s\n", cwd)
	fmt.Println("Set embedding.sources in .semvault/config.yaml before indexing.")
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadProject()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg, logger)
	if err != nil {
		return err
	}
	strategy, err := index.ParseStrategy(cfg.Indexing.Strategy)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	docs, err := index.LoadDocuments(cfg.Indexing.VaultDir, cfg.Indexing.ExcludedPatterns, logger)
	if err != nil {
		return err
	}

	builder := index.NewBuilder(index.BuilderConfig{
		Strategy:         strategy,
		ExcludedPatterns: cfg.Indexing.ExcludedPatterns,
	}, index.WithBuildLogger(logger))

	idx, err := builder.Build(ctx, docs, table)
	if err != nil {
		return err
	}
	if err := index.NewStore(cfg.DataDir).Save(idx); err != nil {
		return err
	}
	fmt.Printf("Indexed %d chunks from %d documents (%s strategy)\n",
		len(idx.Items), len(docs), idx.Strategy)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadProject()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg, logger)
	if err != nil {
		return err
	}
	idx, err := index.NewStore(cfg.DataDir).Load()
	if err != nil {
		return err
	}
	if idx == nil {
		return fmt.Errorf("no index found; run 'semvault index' first")
	}

	opts := search.Options{
		TopK:               cfg.Search.TopK,
		HighlightThreshold: cfg.Search.HighlightThreshold,
	}
	if flagSearchTopK > 0 {
		opts.TopK = flagSearchTopK
	}

	query := strings.Join(args, " ")
	searcher := search.NewSearcher(table, search.WithLogger(logger))
	results, err := searcher.Search(query, idx, opts)
	if err != nil {
		return err
	}
	fmt.Print(search.FormatResults(results, search.OutputFormat(flagSearchFormat)))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadProject()
	if err != nil {
		return err
	}

	fmt.Printf("Vault:     %s\n", cfg.Indexing.VaultDir)
	fmt.Printf("Strategy:  %s\n", cfg.Indexing.Strategy)

	if table, err := loadTable(cfg, logger); err == nil {
		fmt.Printf("Table:     %d words, dimension %d\n", table.Len(), table.Dim())
	} else {
		fmt.Printf("Table:     unavailable (%v)\n", err)
	}

	idx, err := index.NewStore(cfg.DataDir).Load()
	if err != nil {
		return err
	}
	if idx == nil {
		fmt.Println("Index:     not built")
		return nil
	}
	fmt.Printf("Index:     %d chunks, built %s (%s strategy)\n",
		len(idx.Items), idx.BuiltAt.Format("2006-01-02 15:04:05"), idx.Strategy)
	if idx.Principal != nil {
		fmt.Println("SIF:       principal component stored")
	}
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	if flagPruneInput == "" {
		return fmt.Errorf("--input is required")
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	var targets map[string]bool
	var checkpointPath string
	if flagPruneVocab != "" {
		targets, err = prune.LoadVocabulary(flagPruneVocab)
		if err != nil {
			return err
		}
	} else {
		cfg, err := loadProject()
		if err != nil {
			return fmt.Errorf("no --vocab given and %w", err)
		}
		targets, err = prune.ScanVault(cfg.Indexing.VaultDir, cfg.Indexing.ExcludedPatterns, logger)
		if err != nil {
			return err
		}
		if flagPruneCheckpoint {
			if err := cfg.EnsureDataDir(); err != nil {
				return err
			}
			checkpointPath = cfg.CheckpointPath()
		}
	}
	if flagPruneCheckpoint && checkpointPath == "" {
		checkpointPath = flagPruneOutput + ".checkpoint.json"
	}

	engine := prune.NewEngine(prune.Config{
		Input:          flagPruneInput,
		Output:         flagPruneOutput,
		Threshold:      flagPruneThreshold,
		Cap:            flagPruneCap,
		Neighbors:      flagPruneNeighbors,
		Workers:        flagPruneWorkers,
		CheckpointPath: checkpointPath,
	}, prune.WithLogger(logger))

	res, err := engine.Run(ctx, targets)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d-word table to %d words (%d targets, %d neighbors, %d evicted)\n",
		res.TableWords, res.FinalVocab, res.TargetWords, res.NeighborsFound, res.Evicted)
	return nil
}

func runSplit(cmd *cobra.Command, args []string) error {
	if flagSplitInput == "" {
		return fmt.Errorf("--input is required")
	}
	parts, err := prune.SplitFile(flagSplitInput, flagSplitLines)
	if err != nil {
		return err
	}
	for _, p := range parts {
		fmt.Println(p)
	}
	fmt.Printf("Split into %d chunk files\n", len(parts))
	return nil
}

func runDerive(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadProject()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg, logger)
	if err != nil {
		return err
	}

	word, contextWords := args[0], args[1:]
	cv, err := embed.DeriveCustomVector(word, contextWords, table, cfg.Embedding.BaseModel)
	if err != nil {
		return err
	}

	customs, err := embed.LoadCustomVectors(cfg.Embedding.CustomVectorsPath)
	if err != nil {
		return err
	}
	// Replace an existing derivation for the same word.
	kept := customs[:0]
	for _, c := range customs {
		if c.Word != cv.Word {
			kept = append(kept, c)
		}
	}
	customs = append(kept, cv)
	if err := embed.SaveCustomVectors(cfg.Embedding.CustomVectorsPath, customs); err != nil {
		return err
	}
	fmt.Printf("Derived vector for %q from %d context words\n", cv.Word, len(contextWords))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadProject()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	strategy, err := index.ParseStrategy(cfg.Indexing.Strategy)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Tables are cached for the process lifetime; the watcher drops the
	// cached copy when an embedding source is rewritten on disk.
	cache := embed.NewTableCache()
	tableProvider := func() (*embed.Table, error) {
		if t, ok := cache.Get(cfg.Embedding.Sources); ok {
			return t, nil
		}
		t, err := loadTable(cfg, logger)
		if err != nil {
			return nil, err
		}
		cache.Put(cfg.Embedding.Sources, t)
		return t, nil
	}
	if _, err := tableProvider(); err != nil {
		return err
	}

	watcher, err := embed.NewWatcher(cache, cfg.Embedding.Sources, embed.DefaultWatcherConfig(), logger)
	if err != nil {
		logger.Warn("embedding watcher unavailable", zap.Error(err))
	} else {
		go watcher.Run(ctx)
	}

	store := index.NewStore(cfg.DataDir)
	idx, err := store.Load()
	if err != nil {
		logger.Warn("stored index unusable, starting without it", zap.Error(err))
	}

	builder := index.NewBuilder(index.BuilderConfig{
		Strategy:         strategy,
		ExcludedPatterns: cfg.Indexing.ExcludedPatterns,
	}, index.WithBuildLogger(logger))

	server := web.NewServer(web.ServerConfig{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Store:   store,
		Builder: builder,
		SearchOpts: search.Options{
			TopK:               cfg.Search.TopK,
			HighlightThreshold: cfg.Search.HighlightThreshold,
		},
		TableProvider: tableProvider,
		LoadDocuments: func(ctx context.Context) ([]index.Document, error) {
			return index.LoadDocuments(cfg.Indexing.VaultDir, cfg.Indexing.ExcludedPatterns, logger)
		},
		Logger: logger,
	}, idx)

	fmt.Printf("Serving on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	return server.ListenAndServe(ctx)
}
