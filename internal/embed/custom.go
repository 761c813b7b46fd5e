package embed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semvault/semvault/internal/vector"
)

// ErrNoContext is returned by DeriveCustomVector when no context token
// resolves to a vector.
var ErrNoContext = errors.New("no context token has a vector")

// CustomVector is a user-defined embedding for a word missing from the
// base table, derived from surrounding context. It is only merged into a
// table whose base model and dimension match.
type CustomVector struct {
	Word      string    `json:"word"`
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"createdAt"`
	BaseModel string    `json:"baseModel"`
	Dimension int       `json:"dimension"`
}

// LoadCustomVectors reads the custom vectors side file (a JSON array).
// A missing file is not an error and yields an empty list.
func LoadCustomVectors(path string) ([]CustomVector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read custom vectors: %w", err)
	}
	var customs []CustomVector
	if err := json.Unmarshal(data, &customs); err != nil {
		return nil, fmt.Errorf("parse custom vectors: %w", err)
	}
	return customs, nil
}

// SaveCustomVectors writes the custom vectors side file atomically.
func SaveCustomVectors(path string, customs []CustomVector) error {
	data, err := json.MarshalIndent(customs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal custom vectors: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write custom vectors: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace custom vectors: %w", err)
	}
	return nil
}

// DeriveCustomVector derives a vector for an out-of-vocabulary word by
// averaging the vectors of its context tokens. Tokens without a vector are
// dropped; if none resolve, ErrNoContext is returned.
func DeriveCustomVector(word string, context []string, table *Table, baseModel string) (CustomVector, error) {
	var found []vector.Vector
	for _, tok := range context {
		if v, ok := table.Lookup(tok); ok {
			found = append(found, v)
		}
	}
	mean, ok := vector.Mean(found)
	if !ok {
		return CustomVector{}, ErrNoContext
	}
	return CustomVector{
		Word:      strings.ToLower(word),
		Vector:    mean,
		CreatedAt: time.Now().UTC(),
		BaseModel: baseModel,
		Dimension: table.Dim(),
	}, nil
}
