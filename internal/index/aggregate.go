package index

import (
	"fmt"
	"math"

	"github.com/semvault/semvault/internal/embed"
	"github.com/semvault/semvault/internal/vector"
)

// Strategy selects how a bag of word vectors is combined into one vector.
type Strategy string

const (
	// StrategyAverage is the unweighted arithmetic mean of token vectors.
	StrategyAverage Strategy = "average"
	// StrategyTFIDF weights each token by term frequency times inverse
	// document frequency over the indexed corpus.
	StrategyTFIDF Strategy = "tfidf"
	// StrategySIF weights each token by a/(a+p(word)) and removes the
	// corpus principal component after aggregation.
	StrategySIF Strategy = "sif"
)

// sifSmoothing is the SIF smoothing constant a in w = a/(a+p).
const sifSmoothing = 1e-3

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAverage, StrategyTFIDF, StrategySIF:
		return Strategy(s), nil
	case "":
		return StrategyAverage, nil
	default:
		return "", fmt.Errorf("unknown aggregation strategy %q", s)
	}
}

// CorpusStats holds the frequency statistics the weighted strategies need,
// computed in one pass over all chunks before any chunk is aggregated.
// Document frequency is counted per source document, not per chunk: a word
// filling every paragraph of one note still has df 1.
type CorpusStats struct {
	// TotalDocuments is the number of documents contributing chunks.
	TotalDocuments int
	// DocumentsContaining maps word to the number of documents containing it.
	DocumentsContaining map[string]int
	// WordCount maps word to its total occurrence count.
	WordCount map[string]int
	// TotalWords is the total token count over the corpus.
	TotalWords int
}

// ComputeCorpusStats builds CorpusStats from token lists grouped by
// document: docTokens[d][c] is the token list of document d's chunk c.
func ComputeCorpusStats(docTokens [][][]string) *CorpusStats {
	stats := &CorpusStats{
		DocumentsContaining: make(map[string]int),
		WordCount:           make(map[string]int),
	}
	for _, chunks := range docTokens {
		stats.TotalDocuments++
		seen := make(map[string]bool)
		for _, tokens := range chunks {
			for _, tok := range tokens {
				stats.WordCount[tok]++
				stats.TotalWords++
				if !seen[tok] {
					seen[tok] = true
					stats.DocumentsContaining[tok]++
				}
			}
		}
	}
	return stats
}

// IDF returns ln(totalDocuments / documentsContaining(word)), or 0 for
// words absent from the corpus.
func (s *CorpusStats) IDF(word string) float64 {
	n := s.DocumentsContaining[word]
	if n == 0 || s.TotalDocuments == 0 {
		return 0
	}
	return math.Log(float64(s.TotalDocuments) / float64(n))
}

// Probability returns the global unigram probability p(word).
func (s *CorpusStats) Probability(word string) float64 {
	if s.TotalWords == 0 {
		return 0
	}
	return float64(s.WordCount[word]) / float64(s.TotalWords)
}

// Aggregator combines token lists into chunk vectors under one strategy.
// Deterministic given identical inputs; data sparsity (unknown tokens,
// empty lists, zero total weight) yields (nil, false), never an error.
type Aggregator struct {
	table    *embed.Table
	strategy Strategy
	stats    *CorpusStats
}

// NewAggregator creates an Aggregator. stats may be nil for
// StrategyAverage; the weighted strategies require it.
func NewAggregator(table *embed.Table, strategy Strategy, stats *CorpusStats) *Aggregator {
	return &Aggregator{table: table, strategy: strategy, stats: stats}
}

// Strategy returns the aggregation strategy in use.
func (a *Aggregator) Strategy() Strategy { return a.strategy }

// Aggregate combines tokens into a single vector. Tokens without a table
// entry are dropped. Returns (nil, false) when no vector can be produced.
func (a *Aggregator) Aggregate(tokens []string) (vector.Vector, bool) {
	switch a.strategy {
	case StrategyTFIDF:
		return a.aggregateTFIDF(tokens)
	case StrategySIF:
		return a.aggregateSIF(tokens)
	default:
		return a.aggregateAverage(tokens)
	}
}

func (a *Aggregator) aggregateAverage(tokens []string) (vector.Vector, bool) {
	var found []vector.Vector
	for _, tok := range tokens {
		if v, ok := a.table.Lookup(tok); ok {
			found = append(found, v)
		}
	}
	return vector.Mean(found)
}

func (a *Aggregator) aggregateTFIDF(tokens []string) (vector.Vector, bool) {
	if a.stats == nil || len(tokens) == 0 {
		return nil, false
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	var vecs []vector.Vector
	var weights []float64
	for _, tok := range tokens {
		v, ok := a.table.Lookup(tok)
		if !ok {
			continue
		}
		tf := float64(counts[tok]) / float64(len(tokens))
		vecs = append(vecs, v)
		weights = append(weights, tf*a.stats.IDF(tok))
	}
	return vector.WeightedMean(vecs, weights)
}

func (a *Aggregator) aggregateSIF(tokens []string) (vector.Vector, bool) {
	if a.stats == nil {
		return nil, false
	}
	var vecs []vector.Vector
	var weights []float64
	for _, tok := range tokens {
		v, ok := a.table.Lookup(tok)
		if !ok {
			continue
		}
		vecs = append(vecs, v)
		weights = append(weights, sifSmoothing/(sifSmoothing+a.stats.Probability(tok)))
	}
	return vector.WeightedMean(vecs, weights)
}
