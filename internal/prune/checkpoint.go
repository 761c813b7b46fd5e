package prune

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// checkpointVersion is bumped on incompatible checkpoint format changes;
// older checkpoints fail closed and the job restarts from scratch.
const checkpointVersion = 1

// Checkpoint is the persisted partial progress of a pruning job. Every
// word in FinalVocab that has been scored for neighbors is also in
// ProcessedWords, so resuming never reprocesses a word nor loses neighbors
// already found for it.
type Checkpoint struct {
	Version        int      `json:"version"`
	ProcessedWords []string `json:"processedVaultWords"`
	FinalVocab     []string `json:"finalVocab"`
}

// LoadCheckpoint reads a checkpoint file. A missing file yields (nil, nil).
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	// Version 0 means a pre-versioning file; reject anything newer than
	// what this build writes.
	if cp.Version > checkpointVersion {
		return nil, fmt.Errorf("checkpoint version %d is not supported (want <= %d)", cp.Version, checkpointVersion)
	}
	return &cp, nil
}

// saveCheckpoint writes the checkpoint atomically. Word sets are sorted so
// repeated saves of the same state are byte-identical.
func saveCheckpoint(path string, processed, finalVocab map[string]bool) error {
	cp := Checkpoint{
		Version:        checkpointVersion,
		ProcessedWords: sortedKeys(processed),
		FinalVocab:     sortedKeys(finalVocab),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
