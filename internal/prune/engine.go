// Package prune reduces a large embedding table to a target vocabulary
// plus each target word's nearest neighbors, with checkpointed resumption
// for long runs.
package prune

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/semvault/semvault/internal/embed"
	"github.com/semvault/semvault/internal/vector"
)

// Phase identifies a stage of the pruning job.
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseLoading   Phase = "loading"
	PhaseSearching Phase = "searching"
	PhaseCapping   Phase = "capping"
	PhaseWriting   Phase = "writing"
	PhaseDone      Phase = "done"
)

// PhaseError reports which phase of the job failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("prune %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Config holds settings for one pruning job.
type Config struct {
	// Input is the full embedding table file.
	Input string
	// Output is the reduced table file to produce.
	Output string
	// Threshold is the minimum cosine similarity for a neighbor to qualify.
	Threshold float64
	// Neighbors is the number of nearest neighbors kept per target word.
	Neighbors int
	// Cap is the maximum final vocabulary size; neighbor-only words are
	// evicted at random to meet it. Zero means no cap.
	Cap int
	// Workers sizes the nearest-neighbor worker pool. Zero means NumCPU.
	Workers int
	// CheckpointPath enables resumable runs when non-empty. The CLI prune
	// subcommand leaves it empty (non-resumable variant).
	CheckpointPath string
	// CheckpointEvery is the save cadence in processed words, bounding
	// lost work on interruption. Zero means 1000.
	CheckpointEvery int
}

// Similarity is one (word, score) pair from a nearest-neighbor scan.
type Similarity struct {
	Word  string
	Score float64
}

// Result summarizes a completed pruning job.
type Result struct {
	TargetWords    int
	TableWords     int
	NeighborsFound int
	FinalVocab     int
	Evicted        int
	Resumed        int
}

// Engine runs the pruning state machine:
// Scanning -> Loading -> Searching -> Capping -> Writing -> Done.
// Target-vocabulary collection (Scanning) happens before Run, via Vocab.
type Engine struct {
	config Config
	logger *zap.Logger
	loader *embed.Loader
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 1000
	}
	e := &Engine{config: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.loader = embed.NewLoader(embed.WithLogger(e.logger))
	return e
}

// Run executes the job for the given target vocabulary. The job can be
// interrupted via ctx; with a checkpoint path configured, a later Run
// resumes from the last save and produces the same final vocabulary
// (modulo eviction randomness in the capping phase).
func (e *Engine) Run(ctx context.Context, targets map[string]bool) (*Result, error) {
	if len(targets) == 0 {
		return nil, &PhaseError{PhaseScanning, fmt.Errorf("target vocabulary is empty")}
	}

	res := &Result{TargetWords: len(targets)}

	e.logger.Info("loading full embedding table", zap.String("input", e.config.Input))
	table, err := e.loader.Load(e.config.Input)
	if err != nil {
		return nil, &PhaseError{PhaseLoading, err}
	}
	res.TableWords = table.Len()
	e.logger.Info("table loaded", zap.Int("words", table.Len()), zap.Int("dimension", table.Dim()))

	// Candidate vocabulary always contains every target word; neighbors
	// join it as they are discovered.
	finalVocab := make(map[string]bool, len(targets))
	for w := range targets {
		finalVocab[w] = true
	}
	processed := make(map[string]bool)

	if e.config.CheckpointPath != "" {
		cp, err := LoadCheckpoint(e.config.CheckpointPath)
		if err != nil {
			// A corrupt checkpoint restarts the job rather than failing it.
			e.logger.Warn("ignoring unreadable checkpoint", zap.Error(err))
		} else if cp != nil {
			for _, w := range cp.ProcessedWords {
				processed[w] = true
			}
			for _, w := range cp.FinalVocab {
				finalVocab[w] = true
			}
			res.Resumed = len(processed)
			e.logger.Info("resuming from checkpoint",
				zap.Int("processed", len(processed)),
				zap.Int("vocab", len(finalVocab)))
		}
	}

	if err := e.searchNeighbors(ctx, table, targets, processed, finalVocab, res); err != nil {
		return nil, &PhaseError{PhaseSearching, err}
	}

	res.Evicted = e.capVocabulary(targets, finalVocab)
	res.FinalVocab = len(finalVocab)

	e.logger.Info("writing pruned table",
		zap.String("output", e.config.Output),
		zap.Int("vocab", len(finalVocab)))
	if err := e.writePruned(finalVocab); err != nil {
		return nil, &PhaseError{PhaseWriting, err}
	}

	if e.config.CheckpointPath != "" {
		if err := os.Remove(e.config.CheckpointPath); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("could not remove checkpoint", zap.Error(err))
		}
	}
	return res, nil
}

// wordResult is one target word's neighbor set, handed from a worker to
// the coordinator.
type wordResult struct {
	word      string
	neighbors []string
}

// searchNeighbors distributes per-word nearest-neighbor scans over a fixed
// worker pool. The table is shared read-only; each worker owns its scratch
// similarity slice; results merge into the shared sets only in the
// coordinating loop below, which is also the only place checkpoints are
// written.
func (e *Engine) searchNeighbors(ctx context.Context, table *embed.Table, targets, processed, finalVocab map[string]bool, res *Result) error {
	var pending []string
	for w := range targets {
		if !processed[w] {
			pending = append(pending, w)
		}
	}
	sort.Strings(pending)
	if len(pending) == 0 {
		return nil
	}
	e.logger.Info("searching nearest neighbors",
		zap.Int("pending", len(pending)),
		zap.Int("workers", e.config.Workers))

	// Incremental output: vector lines for newly-qualifying words are
	// appended as they are found, bounding rework on interruption. The
	// writing phase later replaces this with a clean full rewrite.
	written := make(map[string]bool)
	out, err := os.OpenFile(e.config.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	outw := bufio.NewWriter(out)
	defer func() {
		outw.Flush()
		out.Close()
	}()

	jobs := make(chan string)
	results := make(chan wordResult)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, w := range pending {
			select {
			case jobs <- w:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			scratch := make([]Similarity, 0, table.Len())
			for w := range jobs {
				neighbors := e.nearestNeighbors(table, w, scratch)
				select {
				case results <- wordResult{word: w, neighbors: neighbors}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	sinceCheckpoint := 0
	var mergeErr error
	for r := range results {
		processed[r.word] = true
		for _, n := range r.neighbors {
			if !finalVocab[n] {
				finalVocab[n] = true
				res.NeighborsFound++
			}
			if !written[n] {
				written[n] = true
				if v, ok := table.Lookup(n); ok {
					writeVectorLine(outw, n, v)
				}
			}
		}
		sinceCheckpoint++
		if sinceCheckpoint >= e.config.CheckpointEvery {
			sinceCheckpoint = 0
			outw.Flush()
			e.checkpoint(processed, finalVocab)
		}
	}
	if err := g.Wait(); err != nil {
		mergeErr = err
	}

	outw.Flush()
	e.checkpoint(processed, finalVocab)
	return mergeErr
}

// nearestNeighbors scans the whole table for the top-N words most similar
// to word, above the similarity threshold, skipping the word itself.
// Returns nil when the word has no vector; the caller still marks it
// processed so it is never rescanned.
func (e *Engine) nearestNeighbors(table *embed.Table, word string, scratch []Similarity) []string {
	wv, ok := table.Lookup(word)
	if !ok {
		return nil
	}
	sims := scratch[:0]
	table.Words(func(other string, ov vector.Vector) {
		if other == word {
			return
		}
		if score := vector.Cosine(wv, ov); score >= e.config.Threshold {
			sims = append(sims, Similarity{Word: other, Score: score})
		}
	})
	sort.Slice(sims, func(i, j int) bool { return sims[i].Score > sims[j].Score })

	n := e.config.Neighbors
	if n > len(sims) {
		n = len(sims)
	}
	neighbors := make([]string, n)
	for i := 0; i < n; i++ {
		neighbors[i] = sims[i].Word
	}
	return neighbors
}

// checkpoint persists progress when a checkpoint path is configured.
// Failures are logged and retried at the next cadence, never fatal.
func (e *Engine) checkpoint(processed, finalVocab map[string]bool) {
	if e.config.CheckpointPath == "" {
		return
	}
	if err := saveCheckpoint(e.config.CheckpointPath, processed, finalVocab); err != nil {
		e.logger.Warn("checkpoint save failed", zap.Error(err))
		return
	}
	e.logger.Debug("checkpoint saved",
		zap.Int("processed", len(processed)),
		zap.Int("vocab", len(finalVocab)))
}

// capVocabulary enforces the configured cap by evicting neighbor-only
// words uniformly at random. Target words are never evicted. Returns the
// number of evictions.
func (e *Engine) capVocabulary(targets, finalVocab map[string]bool) int {
	if e.config.Cap <= 0 || len(finalVocab) <= e.config.Cap {
		return 0
	}

	var neighborsOnly []string
	for w := range finalVocab {
		if !targets[w] {
			neighborsOnly = append(neighborsOnly, w)
		}
	}
	sort.Strings(neighborsOnly)

	keep := e.config.Cap - (len(finalVocab) - len(neighborsOnly))
	if keep < 0 {
		keep = 0
	}

	rand.Shuffle(len(neighborsOnly), func(i, j int) {
		neighborsOnly[i], neighborsOnly[j] = neighborsOnly[j], neighborsOnly[i]
	})
	evicted := 0
	for _, w := range neighborsOnly[keep:] {
		delete(finalVocab, w)
		evicted++
	}
	e.logger.Info("capped vocabulary",
		zap.Int("cap", e.config.Cap),
		zap.Int("evicted", evicted))
	return evicted
}

// writePruned streams the input table once and emits only the lines whose
// word is in the final vocabulary. The rewrite goes through a temp file so
// the incremental partial output is replaced, never corrupted.
func (e *Engine) writePruned(finalVocab map[string]bool) error {
	in, err := os.Open(e.config.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	tmp := e.config.Output + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w := bufio.NewWriter(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	kept := 0
	for scanner.Scan() {
		line := scanner.Text()
		word, _, _ := strings.Cut(line, " ")
		if finalVocab[strings.ToLower(word)] {
			w.WriteString(line)
			w.WriteByte('\n')
			kept++
		}
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("scan input: %w", err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush output: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp, e.config.Output); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	e.logger.Info("pruned table written", zap.Int("lines", kept))
	return nil
}

// writeVectorLine emits one `word f1 ... fD` line.
func writeVectorLine(w *bufio.Writer, word string, vec vector.Vector) {
	w.WriteString(word)
	for _, f := range vec {
		w.WriteByte(' ')
		w.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	w.WriteByte('\n')
}
