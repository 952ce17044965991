package search

import (
	"context"
	"testing"

	"github.com/kittclouds/memori/internal/store"
)

func seedMemory(t *testing.T, s *store.Store, id, namespace, content, category string) {
	t.Helper()
	m := &store.Memory{
		ID: id, Namespace: namespace, SearchableContent: content, Summary: content,
		Classification: store.ClassConversation, Importance: store.ImportanceMedium,
		ImportanceScore: 0.5, ConfidenceScore: 0.5, RetentionType: store.RetentionShortTerm,
		ExtractionTimestamp: 1000, CreatedAt: 1000, CategoryPrimary: category,
	}
	if err := s.Insert(context.Background(), m); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestMergeDeduplicatesKeepingHighestScore(t *testing.T) {
	results := []Result{
		{ID: "a", Score: 0.4, Strategy: "fts"},
		{ID: "b", Score: 0.9, Strategy: "category"},
		{ID: "a", Score: 0.7, Strategy: "category"},
	}
	merged := Merge(results)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged results, got %d", len(merged))
	}
	if merged[0].ID != "b" || merged[1].ID != "a" {
		t.Fatalf("expected results sorted by descending score, got %+v", merged)
	}
	if merged[1].Score != 0.7 {
		t.Errorf("expected merged score 0.7 (highest for id a), got %v", merged[1].Score)
	}
}

func TestDispatcherOnlyRunsHandlingStrategies(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	seedMemory(t, s, "m1", "ns", "typescript is great", "lang")
	seedMemory(t, s, "m2", "ns", "unrelated content", "other")

	d := NewDispatcher()
	d.Register("category", &CategoryStrategy{Store: s})
	d.Register("fts", &FTSStrategy{Store: s})

	results, err := d.Search(context.Background(), Query{Namespace: "ns", CategoryFilter: "lang"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m1" {
		t.Fatalf("expected only the category-matching result, got %+v", results)
	}
}
