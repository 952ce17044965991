package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/kittclouds/memori/internal/errs"
	"github.com/kittclouds/memori/internal/store"
)

// stubSimilarityScore is a flat placeholder for every token match. The
// Service layer refines it with a length-aware confidence; real ranking
// lives in Store.RawFtsQuery's bm25() usage, not here.
const stubSimilarityScore = 0.8

// Candidate is one duplicate candidate returned by FindDuplicateCandidates.
type Candidate struct {
	Memory *store.Memory
	Score  float64
}

// Repo provides transactional duplicate/merge operations on the Store.
type Repo struct {
	store *store.Store
}

// NewRepo builds a Repo over s.
func NewRepo(s *store.Store) *Repo {
	return &Repo{store: s}
}

// FindDuplicateCandidates tokenizes content, scans every memory in
// namespace for any token match via a single Aho-Corasick pass, and keeps
// rows scoring at or above threshold.
func (r *Repo) FindDuplicateCandidates(ctx context.Context, content string, threshold float64, namespace string) ([]Candidate, error) {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return nil, nil
	}
	ac, err := buildMatcher(tokens)
	if err != nil {
		return nil, errs.Consolidation("build duplicate-candidate matcher", err)
	}

	rows, err := r.store.FindMany(ctx, namespace, "1=1", nil)
	if err != nil {
		return nil, errs.Consolidation("find duplicate candidates", err)
	}

	var out []Candidate
	for _, m := range rows {
		if m.DuplicateOf != "" {
			continue // already absorbed; never itself a candidate primary/duplicate
		}
		if !matchesAny(ac, m.SearchableContent) {
			continue
		}
		if stubSimilarityScore >= threshold {
			out = append(out, Candidate{Memory: m, Score: stubSimilarityScore})
		}
	}
	return out, nil
}

// MarkAsDuplicate sets dup.duplicateOf = primary within a single Store
// transaction, validating existence of both in namespace.
func (r *Repo) MarkAsDuplicate(ctx context.Context, dupID, primaryID, reason, namespace string) error {
	err := r.store.Txn(ctx, namespace, func(tx *store.Tx) error {
		return tx.MarkDuplicate(ctx, dupID, primaryID, reason)
	})
	if err != nil {
		return errs.Consolidation(fmt.Sprintf("mark %s as duplicate of %s", dupID, primaryID), err)
	}
	return nil
}

// Consolidate marks every id in duplicateIDs as a duplicate of primary,
// records relatedMemoriesJson on primary, and returns the resulting
// dataIntegrityHash.
func (r *Repo) Consolidate(ctx context.Context, primaryID string, duplicateIDs []string, namespace string, now time.Time) (string, error) {
	ts := now.UnixMilli()
	err := r.store.Txn(ctx, namespace, func(tx *store.Tx) error {
		return tx.Consolidate(ctx, primaryID, duplicateIDs, ts)
	})
	if err != nil {
		return "", errs.Consolidation(fmt.Sprintf("consolidate %s", primaryID), err)
	}
	return GenerateDataIntegrityHash(primaryID, duplicateIDs, now), nil
}

// Statistics is the Repo's bookkeeping surface.
type Statistics struct {
	TotalMemories             int
	DuplicateCount            int
	ConsolidatedMemories      int
	LastConsolidationActivity int64
}

// GetStatistics returns consolidation counters for namespace.
func (r *Repo) GetStatistics(ctx context.Context, namespace string) (Statistics, error) {
	s, err := r.store.GetStats(ctx, namespace)
	if err != nil {
		return Statistics{}, errs.Consolidation("get statistics", err)
	}
	return Statistics{
		TotalMemories:             s.TotalMemories,
		DuplicateCount:            s.DuplicateCount,
		ConsolidatedMemories:      s.ConsolidatedMemories,
		LastConsolidationActivity: s.LastConsolidationActivity,
	}, nil
}

// Cleanup deletes consolidation primaries (non-empty relatedMemoriesJson)
// older than olderThanDays. A dry run returns the count without deleting.
func (r *Repo) Cleanup(ctx context.Context, olderThanDays int, dryRun bool, namespace string, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -olderThanDays).UnixMilli()
	n, err := r.store.DeleteConsolidated(ctx, namespace, cutoff, dryRun)
	if err != nil {
		return 0, errs.Consolidation("cleanup", err)
	}
	return n, nil
}

// Backup captures full rows before a risky consolidation op.
func (r *Repo) Backup(ctx context.Context, ids []string, namespace string) (map[string]*store.Memory, error) {
	snap, err := r.store.Snapshot(ctx, ids, namespace)
	if err != nil {
		return nil, errs.Consolidation("backup", err)
	}
	return snap, nil
}

// Rollback restores duplicateOf/relatedMemoriesJson/classificationReason
// atomically from snapshot.
func (r *Repo) Rollback(ctx context.Context, snapshot map[string]*store.Memory, namespace string) error {
	err := r.store.Txn(ctx, namespace, func(tx *store.Tx) error {
		return tx.RestoreConsolidationState(ctx, snapshot)
	})
	if err != nil {
		return errs.Consolidation("rollback", err)
	}
	return nil
}

// ValidationResult is the pre-consolidation validation outcome; problems
// are reported as values, never as a returned error.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ValidateConsolidation checks that primary and every duplicate exist in
// namespace and that the duplicate set excludes the primary id itself.
func (r *Repo) ValidateConsolidation(ctx context.Context, primaryID string, duplicateIDs []string, namespace string) (ValidationResult, error) {
	var problems []string

	primary, err := r.store.GetByID(ctx, primaryID, namespace)
	if err != nil {
		return ValidationResult{}, err
	}
	if primary == nil {
		problems = append(problems, fmt.Sprintf("primary memory %q not found in namespace %q", primaryID, namespace))
	}

	for _, id := range duplicateIDs {
		if id == primaryID {
			problems = append(problems, "duplicate set may not contain the primary id")
			continue
		}
		dup, err := r.store.GetByID(ctx, id, namespace)
		if err != nil {
			return ValidationResult{}, err
		}
		if dup == nil {
			problems = append(problems, fmt.Sprintf("duplicate memory %q not found in namespace %q", id, namespace))
		}
	}

	return ValidationResult{IsValid: len(problems) == 0, Errors: problems}, nil
}
