package embed

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/semvault/semvault/internal/vector"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func vecAlmostEqual(a, b vector.Vector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestLoad(t *testing.T) {
	path := writeTempFile(t, "vectors.txt", "cat 1 0\ndog 0.9 0.1\ncar 0 1\n")
	table, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Expected 3 words, got %d", table.Len())
	}
	if table.Dim() != 2 {
		t.Errorf("Expected dimension 2, got %d", table.Dim())
	}
	v, ok := table.Lookup("dog")
	if !ok {
		t.Fatal("Expected dog in table")
	}
	if !vecAlmostEqual(v, vector.Vector{0.9, 0.1}) {
		t.Errorf("Unexpected vector: %v", v)
	}
}

func TestLoad_CaseFoldedLookup(t *testing.T) {
	path := writeTempFile(t, "vectors.txt", "cat 1 0\n")
	table, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := table.Lookup("CAT"); !ok {
		t.Error("Expected case-folded lookup to succeed")
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	content := "cat 1 0\nlonelyword\ndog 0.9 0.1\nbad 1 notanumber\nshort 1 0 0\n"
	path := writeTempFile(t, "vectors.txt", content)
	table, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// lonelyword has no floats, bad has an unparsable float, and short has
	// the wrong dimension; only cat and dog survive.
	if table.Len() != 2 {
		t.Errorf("Expected 2 words, got %d", table.Len())
	}
	if table.Has("short") {
		t.Error("Expected dimension-mismatched entry to be skipped")
	}
}

func TestLoad_MultipleFiles(t *testing.T) {
	a := writeTempFile(t, "a.txt", "cat 1 0\n")
	b := writeTempFile(t, "b.txt", "dog 0.9 0.1\n")
	table, err := NewLoader().Load(a, b)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !table.Has("cat") || !table.Has("dog") {
		t.Error("Expected words from both files")
	}
}

func TestLoad_NoSources(t *testing.T) {
	if _, err := NewLoader().Load(); err != ErrNoSources {
		t.Errorf("Expected ErrNoSources, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := NewLoader().Load(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoad_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.txt.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte("cat 1 0\ndog 0.9 0.1\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	table, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Expected 2 words, got %d", table.Len())
	}
}

func TestMergeCustom(t *testing.T) {
	path := writeTempFile(t, "vectors.txt", "cat 1 0\n")
	loader := NewLoader()
	table, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	customs := []CustomVector{
		{Word: "obsidian", Vector: []float64{0.5, 0.5}, BaseModel: "glove-test", Dimension: 2},
		{Word: "wrongmodel", Vector: []float64{1, 1}, BaseModel: "other", Dimension: 2},
		{Word: "wrongdim", Vector: []float64{1, 1, 1}, BaseModel: "glove-test", Dimension: 3},
	}
	merged := loader.MergeCustom(table, customs, "glove-test")
	if merged != 1 {
		t.Errorf("Expected 1 merged vector, got %d", merged)
	}
	if !table.Has("obsidian") {
		t.Error("Expected matching custom vector to be merged")
	}
	if table.Has("wrongmodel") || table.Has("wrongdim") {
		t.Error("Expected mismatched custom vectors to be skipped")
	}
}

func TestCustomVectors_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	customs := []CustomVector{
		{Word: "zettel", Vector: []float64{1, 2}, CreatedAt: time.Now().UTC(), BaseModel: "glove-test", Dimension: 2},
	}
	if err := SaveCustomVectors(path, customs); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadCustomVectors(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Word != "zettel" {
		t.Errorf("Unexpected round trip result: %+v", loaded)
	}
}

func TestLoadCustomVectors_Missing(t *testing.T) {
	loaded, err := LoadCustomVectors(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Expected missing file to be tolerated, got %v", err)
	}
	if loaded != nil {
		t.Errorf("Expected no vectors, got %v", loaded)
	}
}

func TestDeriveCustomVector(t *testing.T) {
	table := NewTable()
	table.Add("cat", vector.Vector{1, 0})
	table.Add("dog", vector.Vector{0, 1})

	cv, err := DeriveCustomVector("Nyancat", []string{"cat", "dog", "unknown"}, table, "glove-test")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if cv.Word != "nyancat" {
		t.Errorf("Expected case-folded word, got %q", cv.Word)
	}
	if !vecAlmostEqual(cv.Vector, vector.Vector{0.5, 0.5}) {
		t.Errorf("Expected mean of context vectors, got %v", cv.Vector)
	}
	if cv.Dimension != 2 || cv.BaseModel != "glove-test" {
		t.Errorf("Unexpected metadata: %+v", cv)
	}
}

func TestDeriveCustomVector_NoContext(t *testing.T) {
	table := NewTable()
	table.Add("cat", vector.Vector{1, 0})
	if _, err := DeriveCustomVector("x", []string{"unknown"}, table, "m"); err != ErrNoContext {
		t.Errorf("Expected ErrNoContext, got %v", err)
	}
}

func TestTableCache(t *testing.T) {
	cache := NewTableCache()
	paths := []string{"/a.txt", "/b.txt"}

	if _, ok := cache.Get(paths); ok {
		t.Error("Expected miss on empty cache")
	}

	table := NewTable()
	table.Add("cat", vector.Vector{1, 0})
	cache.Put(paths, table)

	got, ok := cache.Get([]string{"/b.txt", "/a.txt"})
	if !ok {
		t.Fatal("Expected hit regardless of path order")
	}
	if got != table {
		t.Error("Expected the same table back")
	}

	cache.Invalidate(paths)
	if _, ok := cache.Get(paths); ok {
		t.Error("Expected miss after invalidation")
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Expected 1 hit and 2 misses, got %d and %d", hits, misses)
	}
}
