package index

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/semvault/semvault/internal/vector"
)

func TestBuild_Average(t *testing.T) {
	b := NewBuilder(BuilderConfig{Strategy: StrategyAverage})
	docs := []Document{
		{Path: "notes/a.md", Text: "cat dog\n\ncar"},
		{Path: "notes/b.md", Text: "zebra llama"},
	}
	idx, err := b.Build(context.Background(), docs, testTable(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	// The zebra/llama chunk resolves no vectors and is dropped.
	if len(idx.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(idx.Items))
	}
	if idx.Items[0].File != "notes/a.md" || idx.Items[0].Text != "cat dog" {
		t.Errorf("Unexpected first item: %+v", idx.Items[0])
	}
	if !vecAlmostEqual(idx.Items[0].Embedding, vector.Vector{0.95, 0.05}) {
		t.Errorf("Expected mean of cat and dog, got %v", idx.Items[0].Embedding)
	}
	if idx.Principal != nil {
		t.Error("Expected no principal component for average strategy")
	}
	if idx.Dimension != 2 {
		t.Errorf("Expected dimension 2, got %d", idx.Dimension)
	}
}

func TestBuild_ExcludedPaths(t *testing.T) {
	b := NewBuilder(BuilderConfig{
		Strategy:         StrategyAverage,
		ExcludedPatterns: []string{"templates/**"},
	})
	docs := []Document{
		{Path: "notes/a.md", Text: "cat"},
		{Path: "templates/daily.md", Text: "dog"},
	}
	idx, err := b.Build(context.Background(), docs, testTable(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(idx.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(idx.Items))
	}
	if idx.Items[0].File != "notes/a.md" {
		t.Errorf("Expected excluded document to be skipped, got %s", idx.Items[0].File)
	}
}

func TestBuild_SIFStoresPrincipal(t *testing.T) {
	b := NewBuilder(BuilderConfig{Strategy: StrategySIF})
	docs := []Document{
		{Path: "a.md", Text: "cat dog\n\ncar cat\n\ndog car"},
	}
	idx, err := b.Build(context.Background(), docs, testTable(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if idx.Principal == nil {
		t.Fatal("Expected a principal component for SIF with >= 2 vectors")
	}
	for i, item := range idx.Items {
		if dot := vector.Dot(item.Embedding, idx.Principal); math.Abs(dot) > 1e-6 {
			t.Errorf("Item %d: expected embedding orthogonal to component, dot = %v", i, dot)
		}
	}
}

func TestBuild_SIFSingleVectorSkipsCorrection(t *testing.T) {
	b := NewBuilder(BuilderConfig{Strategy: StrategySIF})
	docs := []Document{{Path: "a.md", Text: "cat dog"}}
	idx, err := b.Build(context.Background(), docs, testTable(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(idx.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(idx.Items))
	}
	if idx.Principal != nil {
		t.Error("Expected no principal component with fewer than 2 vectors")
	}
}

func TestBuild_Idempotent(t *testing.T) {
	b := NewBuilder(BuilderConfig{Strategy: StrategyTFIDF})
	docs := []Document{
		{Path: "a.md", Text: "cat dog\n\ncar"},
		{Path: "b.md", Text: "dog car"},
	}
	table := testTable(t)
	first, err := b.Build(context.Background(), docs, table)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(context.Background(), docs, table)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(first.Items) != len(second.Items) {
		t.Fatalf("Expected identical item counts, got %d and %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if !vecAlmostEqual(first.Items[i].Embedding, second.Items[i].Embedding) {
			t.Errorf("Item %d differs between identical builds", i)
		}
	}
}

func TestBuild_RejectsConcurrentBuild(t *testing.T) {
	b := NewBuilder(BuilderConfig{Strategy: StrategyAverage})
	b.building.Store(true)
	_, err := b.Build(context.Background(), nil, testTable(t))
	if !errors.Is(err, ErrBuildInProgress) {
		t.Errorf("Expected ErrBuildInProgress, got %v", err)
	}
	b.building.Store(false)
	if _, err := b.Build(context.Background(), nil, testTable(t)); err != nil {
		t.Errorf("Expected build to succeed after latch release, got %v", err)
	}
}

func TestBuild_CanceledContext(t *testing.T) {
	b := NewBuilder(BuilderConfig{Strategy: StrategyAverage})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, []Document{{Path: "a.md", Text: "cat"}}, testTable(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}