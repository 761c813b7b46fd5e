// Package embed provides loading and caching of static word-embedding tables.
package embed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/vector"
)

// Common errors for table loading.
var (
	ErrNoSources  = errors.New("no embedding source paths configured")
	ErrEmptyTable = errors.New("embedding table contains no usable entries")
)

// Table is an in-memory mapping from lowercase word to its embedding vector.
// All vectors in one table share the same dimension.
type Table struct {
	vectors map[string]vector.Vector
	dim     int
}

// NewTable creates an empty table. The dimension is fixed by the first
// vector added.
func NewTable() *Table {
	return &Table{vectors: make(map[string]vector.Vector)}
}

// Dim returns the vector dimension of the table, or 0 if empty.
func (t *Table) Dim() int { return t.dim }

// Len returns the number of words in the table.
func (t *Table) Len() int { return len(t.vectors) }

// Lookup returns the vector for word (case-folded) and whether it exists.
func (t *Table) Lookup(word string) (vector.Vector, bool) {
	v, ok := t.vectors[strings.ToLower(word)]
	return v, ok
}

// Has reports whether word is present in the table.
func (t *Table) Has(word string) bool {
	_, ok := t.vectors[strings.ToLower(word)]
	return ok
}

// Words calls fn for every (word, vector) pair. Iteration order is
// unspecified. The table must not be mutated during iteration.
func (t *Table) Words(fn func(word string, vec vector.Vector)) {
	for w, v := range t.vectors {
		fn(w, v)
	}
}

// Add adds or replaces an entry, case-folding the word. The first entry
// fixes the table dimension; entries with a different dimension are
// rejected and false is returned.
func (t *Table) Add(word string, vec vector.Vector) bool {
	return t.set(word, vec)
}

// set adds or replaces an entry. The first entry fixes the dimension;
// later entries with a different dimension are rejected.
func (t *Table) set(word string, vec vector.Vector) bool {
	if t.dim == 0 {
		t.dim = len(vec)
	} else if len(vec) != t.dim {
		return false
	}
	t.vectors[strings.ToLower(word)] = vec
	return true
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used to report skipped lines and merge
// mismatches.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// Loader reads embedding table files into a Table.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	ld := &Loader{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load reads one or more embedding files into a single table.
// Each line is `word f1 f2 ... fD`, whitespace separated; the dimension D
// is inferred from the first valid line. Malformed lines (fewer than two
// fields, unparsable floats, dimension mismatches) are skipped with a
// warning, never fatal. Files ending in .gz are decompressed transparently.
func (ld *Loader) Load(paths ...string) (*Table, error) {
	if len(paths) == 0 {
		return nil, ErrNoSources
	}

	table := NewTable()
	for _, path := range paths {
		if err := ld.loadFile(table, path); err != nil {
			return nil, fmt.Errorf("load embedding file %s: %w", path, err)
		}
	}
	if table.Len() == 0 {
		return nil, ErrEmptyTable
	}
	return table, nil
}

func (ld *Loader) loadFile(table *Table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	// Embedding lines for large dimensions exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		word, vec, ok := parseLine(scanner.Text())
		if !ok {
			skipped++
			continue
		}
		if !table.set(word, vec) {
			ld.logger.Warn("skipping entry with mismatched dimension",
				zap.String("file", path),
				zap.Int("line", lineNo),
				zap.String("word", word),
				zap.Int("got", len(vec)),
				zap.Int("want", table.Dim()))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if skipped > 0 {
		ld.logger.Warn("skipped malformed embedding lines",
			zap.String("file", path), zap.Int("count", skipped))
	}
	return nil
}

// parseLine parses `word f1 ... fD`. Lines with one or fewer fields after
// the word, or with unparsable floats, are rejected.
func parseLine(line string) (string, vector.Vector, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", nil, false
	}
	vec := make(vector.Vector, len(parts)-1)
	for i, p := range parts[1:] {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return "", nil, false
		}
		vec[i] = f
	}
	return parts[0], vec, true
}

// MergeCustom overlays user-defined custom vectors onto the table.
// Entries whose base model or dimension does not match the active table are
// skipped with a warning. Returns the number of vectors merged.
func (ld *Loader) MergeCustom(table *Table, customs []CustomVector, baseModel string) int {
	merged := 0
	for _, cv := range customs {
		if cv.BaseModel != baseModel || cv.Dimension != table.Dim() || len(cv.Vector) != table.Dim() {
			ld.logger.Warn("skipping custom vector incompatible with active table",
				zap.String("word", cv.Word),
				zap.String("base_model", cv.BaseModel),
				zap.Int("dimension", cv.Dimension))
			continue
		}
		table.set(cv.Word, vector.Vector(cv.Vector).Clone())
		merged++
	}
	return merged
}
