package prune

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
)

const testTableContent = "cat 1 0\ndog 0.9 0.1\ncar 0 1\n"

func writeTestTable(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vectors.txt")
	if err := os.WriteFile(path, []byte(testTableContent), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readWords(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word, _, _ := strings.Cut(scanner.Text(), " ")
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}

func TestEngine_NearestNeighbor(t *testing.T) {
	dir := t.TempDir()
	input := writeTestTable(t, dir)
	output := filepath.Join(dir, "pruned.txt")

	engine := NewEngine(Config{
		Input:     input,
		Output:    output,
		Neighbors: 1,
		Threshold: 0,
	})
	res, err := engine.Run(context.Background(), map[string]bool{"cat": true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FinalVocab != 2 {
		t.Errorf("Expected final vocabulary of 2, got %d", res.FinalVocab)
	}
	// dog is cat's nearest neighbor by cosine similarity.
	words := readWords(t, output)
	if !reflect.DeepEqual(words, []string{"cat", "dog"}) {
		t.Errorf("Expected [cat dog] in output, got %v", words)
	}
}

func TestEngine_TargetWordWithoutVector(t *testing.T) {
	dir := t.TempDir()
	input := writeTestTable(t, dir)
	output := filepath.Join(dir, "pruned.txt")

	engine := NewEngine(Config{Input: input, Output: output, Neighbors: 1})
	res, err := engine.Run(context.Background(), map[string]bool{"zebra": true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// zebra has no vector: it contributes no neighbors but stays in the
	// final vocabulary; the output contains no lines.
	if res.NeighborsFound != 0 {
		t.Errorf("Expected no neighbors, got %d", res.NeighborsFound)
	}
	if words := readWords(t, output); len(words) != 0 {
		t.Errorf("Expected empty output, got %v", words)
	}
}

func TestEngine_EmptyTargets(t *testing.T) {
	engine := NewEngine(Config{Input: "in", Output: "out"})
	_, err := engine.Run(context.Background(), nil)
	var perr *PhaseError
	if !errors.As(err, &perr) || perr.Phase != PhaseScanning {
		t.Errorf("Expected scanning phase error, got %v", err)
	}
}

func TestEngine_LoadFailureIsPhaseError(t *testing.T) {
	engine := NewEngine(Config{
		Input:  filepath.Join(t.TempDir(), "absent.txt"),
		Output: filepath.Join(t.TempDir(), "out.txt"),
	})
	_, err := engine.Run(context.Background(), map[string]bool{"cat": true})
	var perr *PhaseError
	if !errors.As(err, &perr) || perr.Phase != PhaseLoading {
		t.Errorf("Expected loading phase error, got %v", err)
	}
}

func TestEngine_CapEnforcement(t *testing.T) {
	// 10 target words plus 5 neighbor-only words, cap 12: all targets
	// survive and exactly 2 neighbors do.
	dir := t.TempDir()
	var sb strings.Builder
	targets := make(map[string]bool)
	for i := 0; i < 10; i++ {
		word := string(rune('a' + i))
		targets[word] = true
		sb.WriteString(word)
		sb.WriteString(" 1 0.1\n")
	}
	for i := 0; i < 5; i++ {
		sb.WriteString("n")
		sb.WriteString(string(rune('0' + i)))
		sb.WriteString(" 1 0.2\n")
	}
	input := filepath.Join(dir, "vectors.txt")
	if err := os.WriteFile(input, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "pruned.txt")

	engine := NewEngine(Config{
		Input:     input,
		Output:    output,
		Neighbors: 14,
		Threshold: 0,
		Cap:       12,
	})
	res, err := engine.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.FinalVocab != 12 {
		t.Errorf("Expected final vocabulary of 12, got %d", res.FinalVocab)
	}
	if res.Evicted != 3 {
		t.Errorf("Expected 3 evictions, got %d", res.Evicted)
	}
	words := readWords(t, output)
	if len(words) != 12 {
		t.Fatalf("Expected 12 output lines, got %d", len(words))
	}
	for target := range targets {
		found := false
		for _, w := range words {
			if w == target {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Target word %q evicted by capping", target)
		}
	}
}

func TestEngine_ResumeFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	input := writeTestTable(t, dir)
	output := filepath.Join(dir, "pruned.txt")
	checkpoint := filepath.Join(dir, "checkpoint.json")

	// A checkpoint that already processed cat and found dog: the resumed
	// run must not rescan cat, and must keep dog.
	if err := saveCheckpoint(checkpoint,
		map[string]bool{"cat": true},
		map[string]bool{"cat": true, "dog": true}); err != nil {
		t.Fatal(err)
	}

	engine := NewEngine(Config{
		Input:          input,
		Output:         output,
		Neighbors:      1,
		CheckpointPath: checkpoint,
	})
	res, err := engine.Run(context.Background(), map[string]bool{"cat": true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Resumed != 1 {
		t.Errorf("Expected 1 resumed word, got %d", res.Resumed)
	}
	words := readWords(t, output)
	if !reflect.DeepEqual(words, []string{"cat", "dog"}) {
		t.Errorf("Expected resumed run to keep checkpointed vocabulary, got %v", words)
	}
	// Done removes the checkpoint.
	if _, err := os.Stat(checkpoint); !os.IsNotExist(err) {
		t.Error("Expected checkpoint removed after completion")
	}
}

func TestEngine_ResumeMatchesUninterrupted(t *testing.T) {
	dir := t.TempDir()
	input := writeTestTable(t, dir)

	// Uninterrupted run.
	outA := filepath.Join(dir, "a.txt")
	engineA := NewEngine(Config{Input: input, Output: outA, Neighbors: 1, Threshold: 0})
	if _, err := engineA.Run(context.Background(), map[string]bool{"cat": true, "car": true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Same job resumed after half the words were processed.
	outB := filepath.Join(dir, "b.txt")
	checkpoint := filepath.Join(dir, "cp.json")
	if err := saveCheckpoint(checkpoint,
		map[string]bool{"cat": true},
		map[string]bool{"cat": true, "car": true, "dog": true}); err != nil {
		t.Fatal(err)
	}
	engineB := NewEngine(Config{
		Input: input, Output: outB, Neighbors: 1, Threshold: 0,
		CheckpointPath: checkpoint,
	})
	if _, err := engineB.Run(context.Background(), map[string]bool{"cat": true, "car": true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if a, b := readWords(t, outA), readWords(t, outB); !reflect.DeepEqual(a, b) {
		t.Errorf("Expected identical vocabularies, got %v and %v", a, b)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	if err := saveCheckpoint(path,
		map[string]bool{"b": true, "a": true},
		map[string]bool{"c": true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cp.ProcessedWords, []string{"a", "b"}) {
		t.Errorf("Expected sorted processed words, got %v", cp.ProcessedWords)
	}
	if !reflect.DeepEqual(cp.FinalVocab, []string{"c"}) {
		t.Errorf("Unexpected vocabulary: %v", cp.FinalVocab)
	}
}

func TestLoadCheckpoint_Missing(t *testing.T) {
	cp, err := LoadCheckpoint(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || cp != nil {
		t.Errorf("Expected (nil, nil) for missing checkpoint, got %v, %v", cp, err)
	}
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("Cat\n\n  dog \ncar\n"), 0644); err != nil {
		t.Fatal(err)
	}
	vocab, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := map[string]bool{"cat": true, "dog": true, "car": true}
	if !reflect.DeepEqual(vocab, want) {
		t.Errorf("Expected %v, got %v", want, vocab)
	}
}

func TestScanVault(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.md"), []byte("The cat sat.\n\nA dog barked."), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "templates", "t.md"), []byte("zebra"), 0644); err != nil {
		t.Fatal(err)
	}

	vocab, err := ScanVault(dir, []string{"templates/**"}, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	for _, w := range []string{"cat", "sat", "dog", "barked"} {
		if !vocab[w] {
			t.Errorf("Expected %q in vocabulary", w)
		}
	}
	if vocab["zebra"] {
		t.Error("Expected excluded directory to be skipped")
	}
	if vocab["the"] || vocab["a"] {
		t.Error("Expected stopwords to be excluded")
	}
}

func TestSplitFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(input, []byte("l1\nl2\nl3\nl4\nl5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	parts, err := SplitFile(input, 2)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("Expected 3 chunk files, got %d", len(parts))
	}
	if filepath.Base(parts[0]) != "big_part_1.txt" {
		t.Errorf("Unexpected chunk name: %s", parts[0])
	}
	data, err := os.ReadFile(parts[2])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "l5\n" {
		t.Errorf("Expected last chunk to hold the remainder, got %q", data)
	}
}

func TestSplitFile_BadLines(t *testing.T) {
	if _, err := SplitFile("whatever", 0); err == nil {
		t.Error("Expected error for non-positive chunk size")
	}
}
