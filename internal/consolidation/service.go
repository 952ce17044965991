package consolidation

import (
	"context"
	"time"

	"github.com/kittclouds/memori/internal/store"
)

// Recommendation is the consolidation action a detected duplicate suggests.
type Recommendation string

const (
	RecommendMerge   Recommendation = "merge"
	RecommendReplace Recommendation = "replace"
	RecommendIgnore  Recommendation = "ignore"
)

// A confidence at or above mergeThreshold merges outright; at or above
// replaceThreshold it only replaces (the caller still reviews it); anything
// below is left alone.
const (
	mergeThreshold   = 0.85
	replaceThreshold = 0.6
)

// shortContentLength is the cutoff below which lengthFactor decreases.
const shortContentLength = 50

// DetectionResult is one duplicate candidate with Service-level policy
// applied on top of the Repo's raw similarity score.
type DetectionResult struct {
	Memory                      *store.Memory
	Similarity                  float64
	Confidence                  float64
	ConsolidationRecommendation Recommendation
}

// Service adds business policy over Repo.
type Service struct {
	repo *Repo
}

// NewService builds a Service over repo.
func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

// DetectDuplicateMemories finds duplicate candidates for content and
// layers a length-aware confidence plus a merge/replace/ignore
// recommendation over each.
func (s *Service) DetectDuplicateMemories(ctx context.Context, content string, threshold float64, namespace string) ([]DetectionResult, error) {
	candidates, err := s.repo.FindDuplicateCandidates(ctx, content, threshold, namespace)
	if err != nil {
		return nil, err
	}
	factor := lengthFactor(content)

	out := make([]DetectionResult, 0, len(candidates))
	for _, c := range candidates {
		confidence := c.Score * factor
		if confidence > 1 {
			confidence = 1
		}
		out = append(out, DetectionResult{
			Memory:                      c.Memory,
			Similarity:                  c.Score,
			Confidence:                  confidence,
			ConsolidationRecommendation: recommendationFor(confidence),
		})
	}
	return out, nil
}

func lengthFactor(content string) float64 {
	if len(content) >= shortContentLength {
		return 1.0
	}
	return float64(len(content)) / shortContentLength
}

func recommendationFor(confidence float64) Recommendation {
	switch {
	case confidence >= mergeThreshold:
		return RecommendMerge
	case confidence >= replaceThreshold:
		return RecommendReplace
	default:
		return RecommendIgnore
	}
}

// ValidateConsolidationEligibility wraps Repo.ValidateConsolidation: both
// sides must exist in the same namespace and the duplicate set may not
// contain the primary id.
func (s *Service) ValidateConsolidationEligibility(ctx context.Context, primaryID string, duplicateIDs []string, namespace string) (ValidationResult, error) {
	return s.repo.ValidateConsolidation(ctx, primaryID, duplicateIDs, namespace)
}

// PreviewDiff is the dry-run result of PreviewConsolidation: what would
// change, without writing anything.
type PreviewDiff struct {
	Primary          *store.Memory
	Duplicates       []*store.Memory
	WouldSetRelated  []string
	AlreadyDuplicate []string
	Validation       ValidationResult
}

// PreviewConsolidation computes PreviewDiff without mutating the Store.
func (s *Service) PreviewConsolidation(ctx context.Context, primaryID string, duplicateIDs []string, namespace string) (PreviewDiff, error) {
	validation, err := s.repo.ValidateConsolidation(ctx, primaryID, duplicateIDs, namespace)
	if err != nil {
		return PreviewDiff{}, err
	}

	primary, err := s.repo.store.GetByID(ctx, primaryID, namespace)
	if err != nil {
		return PreviewDiff{}, err
	}

	diff := PreviewDiff{Primary: primary, Validation: validation}
	for _, id := range duplicateIDs {
		dup, err := s.repo.store.GetByID(ctx, id, namespace)
		if err != nil {
			return PreviewDiff{}, err
		}
		if dup == nil {
			continue
		}
		diff.Duplicates = append(diff.Duplicates, dup)
		if dup.DuplicateOf != "" {
			diff.AlreadyDuplicate = append(diff.AlreadyDuplicate, id)
			continue
		}
		diff.WouldSetRelated = append(diff.WouldSetRelated, id)
	}
	return diff, nil
}

// Result is the outcome of ConsolidateMemories/RollbackConsolidation.
// Failures come back as values, never as a returned error.
type Result struct {
	Success           bool
	ConsolidatedCount int
	DataIntegrityHash string
	Errors            []string
}

// ConsolidateMemories validates eligibility, then calls the Repo. On any
// failure it returns {success:false, consolidatedCount:0} rather than
// propagating an error.
func (s *Service) ConsolidateMemories(ctx context.Context, primaryID string, duplicateIDs []string, namespace string, now time.Time) Result {
	validation, err := s.repo.ValidateConsolidation(ctx, primaryID, duplicateIDs, namespace)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	if !validation.IsValid {
		return Result{Errors: validation.Errors}
	}

	hash, err := s.repo.Consolidate(ctx, primaryID, duplicateIDs, namespace, now)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	return Result{Success: true, ConsolidatedCount: len(duplicateIDs), DataIntegrityHash: hash}
}

// RollbackConsolidation restores primary/duplicates to the state captured
// in snapshot, but only if rollbackToken matches the hash recomputed from
// the primary's own recorded consolidation timestamp.
func (s *Service) RollbackConsolidation(ctx context.Context, primaryID, rollbackToken string, namespace string, snapshot map[string]*store.Memory) Result {
	primary, err := s.repo.store.GetByID(ctx, primaryID, namespace)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	if primary == nil {
		return Result{Errors: []string{"primary not found: " + primaryID}}
	}

	expected := GenerateDataIntegrityHash(primary.ID, primary.RelatedMemories,
		time.UnixMilli(primary.ConsolidationTimestamp))
	if expected != rollbackToken {
		return Result{Errors: []string{"rollback token does not match recorded consolidation state"}}
	}

	if err := s.repo.Rollback(ctx, snapshot, namespace); err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	return Result{Success: true, ConsolidatedCount: len(primary.RelatedMemories)}
}

// Analytics summarizes consolidation health for a namespace.
type Analytics struct {
	Statistics     Statistics
	DuplicateRatio float64
}

// GetConsolidationAnalytics reports raw statistics plus the derived
// duplicate ratio used by GetOptimizationRecommendations.
func (s *Service) GetConsolidationAnalytics(ctx context.Context, namespace string) (Analytics, error) {
	stats, err := s.repo.GetStatistics(ctx, namespace)
	if err != nil {
		return Analytics{}, err
	}
	ratio := 0.0
	if stats.TotalMemories > 0 {
		ratio = float64(stats.DuplicateCount) / float64(stats.TotalMemories)
	}
	return Analytics{Statistics: stats, DuplicateRatio: ratio}, nil
}

// HealthRating classifies a namespace's consolidation backlog.
type HealthRating string

const (
	HealthHealthy        HealthRating = "healthy"
	HealthModerate       HealthRating = "moderate"
	HealthNeedsAttention HealthRating = "needs_attention"
)

// Recommendations is GetOptimizationRecommendations' output: a health
// rating plus a next-maintenance instant based on the ratio
// duplicateCount / totalMemories.
type Recommendations struct {
	Health          HealthRating
	DuplicateRatio  float64
	NextMaintenance time.Time
}

// GetOptimizationRecommendations rates namespace's health from its
// duplicate ratio and schedules the next maintenance pass accordingly:
// the worse the ratio, the sooner cleanup should run.
func (s *Service) GetOptimizationRecommendations(ctx context.Context, namespace string, now time.Time) (Recommendations, error) {
	analytics, err := s.GetConsolidationAnalytics(ctx, namespace)
	if err != nil {
		return Recommendations{}, err
	}

	var health HealthRating
	var nextIn time.Duration
	switch {
	case analytics.DuplicateRatio < 0.05:
		health, nextIn = HealthHealthy, 30*24*time.Hour
	case analytics.DuplicateRatio < 0.15:
		health, nextIn = HealthModerate, 7*24*time.Hour
	default:
		health, nextIn = HealthNeedsAttention, 24*time.Hour
	}

	return Recommendations{
		Health:          health,
		DuplicateRatio:  analytics.DuplicateRatio,
		NextMaintenance: now.Add(nextIn),
	}, nil
}
