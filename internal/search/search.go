// Package search provides top-K semantic search over a built index.
package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/embed"
	"github.com/semvault/semvault/internal/index"
	"github.com/semvault/semvault/internal/vector"
)

// Result is one ranked search hit.
type Result struct {
	File          string  `json:"file"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	HighlightWord string  `json:"highlight_word,omitempty"`
}

// Options configures search behavior.
type Options struct {
	// TopK is the maximum number of results to return.
	TopK int
	// HighlightThreshold is the minimum token-to-query cosine similarity
	// for a chunk token to qualify as the highlight word. An empirical
	// tuning constant, not a law; keep it configurable.
	HighlightThreshold float64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:               10,
		HighlightThreshold: 0.5,
	}
}

// Searcher ranks indexed chunks against queries by cosine similarity.
type Searcher struct {
	table  *embed.Table
	logger *zap.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithLogger sets the logger for query diagnostics.
func WithLogger(l *zap.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher creates a Searcher backed by the given vector table.
func NewSearcher(table *embed.Table, opts ...SearcherOption) *Searcher {
	s := &Searcher{table: table, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search aggregates the query under the index's own strategy, applies the
// stored principal component for SIF builds, and returns the top-K items
// by cosine similarity. An empty index or a query with no resolvable
// tokens yields an empty result list, not an error. A dimension mismatch
// between the query table and the index is a contract violation and fails.
func (s *Searcher) Search(query string, idx *index.Index, opts Options) ([]Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if idx == nil || len(idx.Items) == 0 {
		return nil, nil
	}
	if s.table.Dim() != idx.Dimension {
		return nil, fmt.Errorf("table dimension %d does not match index dimension %d", s.table.Dim(), idx.Dimension)
	}

	queryTokens := index.Tokenize(query)
	queryVec, ok := s.queryVector(queryTokens, idx)
	if !ok {
		s.logger.Debug("query produced no vector", zap.String("query", query))
		return nil, nil
	}

	type scored struct {
		item  index.Item
		score float64
	}
	ranked := make([]scored, len(idx.Items))
	for i, item := range idx.Items {
		ranked[i] = scored{
			item:  item,
			score: vector.Cosine(queryVec, item.Embedding),
		}
	}
	// Stable sort: ties keep original index order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	k := opts.TopK
	if k > len(ranked) {
		k = len(ranked)
	}
	results := make([]Result, 0, k)
	for _, r := range ranked[:k] {
		results = append(results, Result{
			File:          r.item.File,
			Text:          r.item.Text,
			Score:         r.score,
			HighlightWord: s.highlightWord(r.item.Text, queryTokens, opts.HighlightThreshold),
		})
	}
	return results, nil
}

// queryVector aggregates the query exactly as the index's chunks were
// aggregated. Corpus statistics are not available at query time; the
// weighted strategies degrade to the unweighted mean for the query, which
// matches the behavior of a query treated as its own single-chunk corpus
// (uniform tf-idf, uniform SIF weights). The stored principal component is
// applied unchanged.
func (s *Searcher) queryVector(tokens []string, idx *index.Index) (vector.Vector, bool) {
	agg := index.NewAggregator(s.table, index.StrategyAverage, nil)
	v, ok := agg.Aggregate(tokens)
	if !ok {
		return nil, false
	}
	if idx.Strategy == index.StrategySIF && idx.Principal != nil {
		v = index.RemoveComponent(v, idx.Principal)
	}
	return v, true
}

// highlightWord returns the chunk token whose vector is most similar to
// any query token's vector, if that best similarity exceeds the threshold.
func (s *Searcher) highlightWord(chunkText string, queryTokens []string, threshold float64) string {
	var queryVecs []vector.Vector
	for _, qt := range queryTokens {
		if v, ok := s.table.Lookup(qt); ok {
			queryVecs = append(queryVecs, v)
		}
	}
	if len(queryVecs) == 0 {
		return ""
	}

	best := ""
	bestScore := threshold
	seen := make(map[string]bool)
	for _, tok := range index.Tokenize(chunkText) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		tv, ok := s.table.Lookup(tok)
		if !ok {
			continue
		}
		for _, qv := range queryVecs {
			if sim := vector.Cosine(tv, qv); sim > bestScore {
				bestScore = sim
				best = tok
			}
		}
	}
	return best
}

// OutputFormat specifies the output format for search results.
type OutputFormat string

const (
	FormatDefault OutputFormat = "default"
	FormatJSON    OutputFormat = "json"
	FormatCompact OutputFormat = "compact"
)

// FormatResults formats search results according to the specified format.
func FormatResults(results []Result, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(results)
	case FormatCompact:
		return formatCompact(results)
	default:
		return formatDefault(results)
	}
}

func formatDefault(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("=== Result %d (score: %.3f) ===\n", i+1, r.Score))
		sb.WriteString(fmt.Sprintf("File: %s\n", r.File))
		if r.HighlightWord != "" {
			sb.WriteString(fmt.Sprintf("Match: %s\n", r.HighlightWord))
		}
		sb.WriteString("\n")
		for _, line := range strings.Split(r.Text, "\n") {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatJSON(results []Result) string {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

func formatCompact(results []Result) string {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("%s\t%.3f", r.File, r.Score))
		if r.HighlightWord != "" {
			sb.WriteString("\t" + r.HighlightWord)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
