package index

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/embed"
	"github.com/semvault/semvault/internal/vector"
)

// ErrBuildInProgress is returned when a build is requested while another
// build is still running against the same Builder.
var ErrBuildInProgress = errors.New("index build already in progress")

// Document is a source text to be indexed, identified by its path.
type Document struct {
	Path string
	Text string
}

// Item is one indexed chunk: source file, chunk text, and its embedding.
type Item struct {
	File      string    `json:"file"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
}

// Index is the complete output of one build: the item collection, the SIF
// principal component (nil for other strategies), and build metadata. The
// whole value is replaced atomically on rebuild; there is no incremental
// update path.
type Index struct {
	Items     []Item
	Principal vector.Vector
	Strategy  Strategy
	Dimension int
	BuiltAt   time.Time
}

// BuilderConfig holds configuration for the index builder.
type BuilderConfig struct {
	// Strategy selects the aggregation strategy.
	Strategy Strategy
	// ExcludedPatterns are gitignore-style patterns; documents whose path
	// matches are left out of the index.
	ExcludedPatterns []string
}

// Builder drives chunking and aggregation over a corpus to produce an
// Index. A single latch rejects concurrent builds; the search path itself
// is synchronous CPU work and needs no internal parallelism.
type Builder struct {
	config   BuilderConfig
	matcher  *gitignore.GitIgnore
	logger   *zap.Logger
	building atomic.Bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuildLogger sets the logger for build progress and warnings.
func WithBuildLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig, opts ...BuilderOption) *Builder {
	b := &Builder{
		config:  cfg,
		matcher: gitignore.CompileIgnoreLines(cfg.ExcludedPatterns...),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs a full, from-scratch index build over the documents.
// Idempotent given identical inputs. Returns ErrBuildInProgress if another
// build is running on this Builder.
func (b *Builder) Build(ctx context.Context, docs []Document, table *embed.Table) (*Index, error) {
	if !b.building.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer b.building.Store(false)

	start := time.Now()

	// Chunk and tokenize everything first; the weighted strategies need
	// corpus statistics over all chunks before any chunk is aggregated.
	type chunkRef struct {
		file   string
		text   string
		tokens []string
	}
	var chunks []chunkRef
	var docTokens [][][]string
	excluded := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.matcher.MatchesPath(doc.Path) {
			excluded++
			continue
		}
		var perDoc [][]string
		for _, text := range SplitChunks(doc.Text) {
			tokens := Tokenize(text)
			chunks = append(chunks, chunkRef{
				file:   doc.Path,
				text:   text,
				tokens: tokens,
			})
			perDoc = append(perDoc, tokens)
		}
		if len(perDoc) > 0 {
			docTokens = append(docTokens, perDoc)
		}
	}

	var stats *CorpusStats
	if b.config.Strategy == StrategyTFIDF || b.config.Strategy == StrategySIF {
		stats = ComputeCorpusStats(docTokens)
	}

	agg := NewAggregator(table, b.config.Strategy, stats)

	items := make([]Item, 0, len(chunks))
	vecs := make([]vector.Vector, 0, len(chunks))
	dropped := 0
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok := agg.Aggregate(c.tokens)
		if !ok {
			dropped++
			continue
		}
		items = append(items, Item{File: c.file, Text: c.text, Embedding: v})
		vecs = append(vecs, v)
	}

	var principal vector.Vector
	if b.config.Strategy == StrategySIF {
		principal = PrincipalComponent(vecs)
		if principal != nil {
			for i := range items {
				corrected := RemoveComponent(items[i].Embedding, principal)
				items[i].Embedding = corrected
			}
		}
	}

	b.logger.Info("index build complete",
		zap.Int("documents", len(docs)),
		zap.Int("excluded", excluded),
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", len(items)),
		zap.Int("dropped", dropped),
		zap.String("strategy", string(b.config.Strategy)),
		zap.Duration("duration", time.Since(start)))

	return &Index{
		Items:     items,
		Principal: principal,
		Strategy:  b.config.Strategy,
		Dimension: table.Dim(),
		BuiltAt:   start.UTC(),
	}, nil
}
