package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/kittclouds/memori/internal/store"
)

func newTestMemory(id, namespace, content string) *store.Memory {
	return &store.Memory{
		ID:                  id,
		Namespace:           namespace,
		SearchableContent:   content,
		Summary:             content,
		Classification:      store.ClassConversation,
		Importance:          store.ImportanceMedium,
		ImportanceScore:     0.5,
		ConfidenceScore:     0.5,
		RetentionType:       store.RetentionShortTerm,
		ExtractionTimestamp: 1000,
		CreatedAt:           1000,
	}
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewService(NewRepo(s)), s
}

// Basic duplicate detection over three seeded memories.
func TestDetectDuplicateMemories(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	for _, m := range []*store.Memory{
		newTestMemory("m1", "t", "TypeScript provides type safety"),
		newTestMemory("m2", "t", "JavaScript is for the web"),
		newTestMemory("m3", "t", "React is a UI framework"),
	} {
		if err := s.Insert(ctx, m); err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}

	results, err := svc.DetectDuplicateMemories(ctx, "TypeScript and JavaScript power the web", 0.5, "t")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected at least 2 candidates, got %d", len(results))
	}

	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Memory.ID] = true
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("confidence out of [0,1]: %v", r.Confidence)
		}
		switch r.ConsolidationRecommendation {
		case RecommendMerge, RecommendReplace, RecommendIgnore:
		default:
			t.Errorf("unexpected recommendation %q", r.ConsolidationRecommendation)
		}
	}
	if !seen["m1"] || !seen["m2"] {
		t.Errorf("expected m1 and m2 among candidates, got %+v", results)
	}
}

// Consolidate then rollback restores the pre-consolidation state.
func TestConsolidateThenRollback(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	m1 := newTestMemory("m1", "ns", "primary memory")
	m2 := newTestMemory("m2", "ns", "duplicate one")
	m3 := newTestMemory("m3", "ns", "duplicate two")
	for _, m := range []*store.Memory{m1, m2, m3} {
		if err := s.Insert(ctx, m); err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}

	snapshot, err := svc.repo.Backup(ctx, []string{"m1", "m2", "m3"}, "ns")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	now := time.UnixMilli(5_000_000)
	result := svc.ConsolidateMemories(ctx, "m1", []string{"m2", "m3"}, "ns", now)
	if !result.Success {
		t.Fatalf("consolidate failed: %+v", result.Errors)
	}
	if result.ConsolidatedCount != 2 {
		t.Errorf("expected consolidatedCount=2, got %d", result.ConsolidatedCount)
	}

	gotM2, _ := s.GetByID(ctx, "m2", "ns")
	gotM3, _ := s.GetByID(ctx, "m3", "ns")
	gotM1, _ := s.GetByID(ctx, "m1", "ns")
	if gotM2.DuplicateOf != "m1" || gotM3.DuplicateOf != "m1" {
		t.Fatalf("expected m2/m3 duplicateOf=m1, got %q/%q", gotM2.DuplicateOf, gotM3.DuplicateOf)
	}
	if len(gotM1.RelatedMemories) != 2 {
		t.Fatalf("expected primary relatedMemoriesJson of length 2, got %v", gotM1.RelatedMemories)
	}

	rollback := svc.RollbackConsolidation(ctx, "m1", result.DataIntegrityHash, "ns", snapshot)
	if !rollback.Success {
		t.Fatalf("rollback failed: %+v", rollback.Errors)
	}

	gotM2, _ = s.GetByID(ctx, "m2", "ns")
	gotM1, _ = s.GetByID(ctx, "m1", "ns")
	if gotM2.DuplicateOf != "" {
		t.Errorf("expected m2.duplicateOf cleared after rollback, got %q", gotM2.DuplicateOf)
	}
	if len(gotM1.RelatedMemories) != 0 {
		t.Errorf("expected m1.relatedMemoriesJson cleared after rollback, got %v", gotM1.RelatedMemories)
	}
}

// Applying the same rollback snapshot twice yields the same state as once.
func TestRollbackIdempotent(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	m1 := newTestMemory("m1", "ns", "primary memory")
	m2 := newTestMemory("m2", "ns", "duplicate one")
	for _, m := range []*store.Memory{m1, m2} {
		if err := s.Insert(ctx, m); err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}
	snapshot, err := svc.repo.Backup(ctx, []string{"m1", "m2"}, "ns")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	if err := svc.repo.Rollback(ctx, snapshot, "ns"); err != nil {
		t.Fatalf("first rollback: %v", err)
	}
	first, _ := s.GetByID(ctx, "m1", "ns")

	if err := svc.repo.Rollback(ctx, snapshot, "ns"); err != nil {
		t.Fatalf("second rollback: %v", err)
	}
	second, _ := s.GetByID(ctx, "m1", "ns")

	if first.DuplicateOf != second.DuplicateOf || len(first.RelatedMemories) != len(second.RelatedMemories) {
		t.Errorf("rollback is not idempotent: %+v vs %+v", first, second)
	}
}

// Reads and consolidation never cross namespaces.
func TestConsolidateCrossNamespaceFails(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	m := newTestMemory("m1", "a", "namespace a memory")
	if err := s.Insert(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetByID(ctx, "m1", "b")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil across namespaces, got %+v", got)
	}

	result := svc.ConsolidateMemories(ctx, "m1", nil, "b", time.UnixMilli(1))
	if result.Success {
		t.Fatal("expected consolidation_failed for cross-namespace primary")
	}
	found := false
	for _, e := range result.Errors {
		if containsSubstring(e, "m1") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error mentioning the primary id, got %v", result.Errors)
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// Equal descriptors hash identically; duplicate order matters.
func TestHashDeterminism(t *testing.T) {
	ts := time.UnixMilli(42_000)
	a := GenerateDataIntegrityHash("p1", []string{"d1", "d2"}, ts)
	b := GenerateDataIntegrityHash("p1", []string{"d1", "d2"}, ts)
	if a != b {
		t.Errorf("expected identical hashes for identical input, got %q vs %q", a, b)
	}
	c := GenerateDataIntegrityHash("p1", []string{"d2", "d1"}, ts)
	if a == c {
		t.Errorf("expected different hashes for different duplicate order")
	}
}
