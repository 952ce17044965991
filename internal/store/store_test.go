package store

import (
	"context"
	"testing"
)

func newTestMemory(id, namespace, content string) *Memory {
	return &Memory{
		ID:                  id,
		Namespace:           namespace,
		SearchableContent:   content,
		Summary:             content,
		Classification:      ClassConversation,
		Importance:          ImportanceMedium,
		ImportanceScore:     0.5,
		ConfidenceScore:     0.5,
		RetentionType:       RetentionShortTerm,
		ExtractionTimestamp: 1000,
		CreatedAt:           1000,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := newTestMemory("m1", "ns1", "hello world")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.GetByID(ctx, "m1", "ns1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory, got nil")
	}
	if got.SearchableContent != "hello world" {
		t.Errorf("expected content 'hello world', got %q", got.SearchableContent)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := newTestMemory("m1", "a", "scoped content")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.GetByID(ctx, "m1", "b")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil across namespaces, got %+v", got)
	}
}

func TestUpdateManyAtomicAcrossNamespace(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m1 := newTestMemory("m1", "ns1", "one")
	m2 := newTestMemory("m2", "ns1", "two")
	if err := s.Insert(ctx, m1); err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if err := s.Insert(ctx, m2); err != nil {
		t.Fatalf("insert m2: %v", err)
	}

	newSummary := "updated"
	err = s.UpdateMany(ctx, []string{"m1", "missing-id"}, "ns1", Patch{Summary: &newSummary})
	if err == nil {
		t.Fatal("expected error for id outside namespace")
	}

	// m1 must NOT have been updated since the batch failed atomically.
	got, err := s.GetByID(ctx, "m1", "ns1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Summary == newSummary {
		t.Error("expected update to roll back entirely on partial failure")
	}
}

func TestDeleteMany(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := newTestMemory("m1", "ns1", "to delete")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.DeleteMany(ctx, []string{"m1"}, "ns1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, err := s.GetByID(ctx, "m1", "ns1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Error("expected memory to be deleted")
	}
}

func TestRawFtsQuery(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Insert(ctx, newTestMemory("m1", "ns1", "TypeScript provides type safety")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.Insert(ctx, newTestMemory("m2", "ns1", "JavaScript is for the web")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	results, err := s.RawFtsQuery(ctx, "TypeScript", "ns1", 10)
	if err != nil {
		t.Fatalf("fts query failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one match")
	}
	if results[0].ID != "m1" {
		t.Errorf("expected m1 to rank first, got %s", results[0].ID)
	}
}

func TestSanitizationRejectsOversizedID(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	oversized := make([]byte, maxIDLength+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	m := newTestMemory(string(oversized), "ns1", "content")
	if err := s.Insert(context.Background(), m); err == nil {
		t.Error("expected validation error for oversized id")
	}
}
