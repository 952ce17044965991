package search

import (
	"context"
	"time"

	"github.com/kittclouds/memori/internal/errs"
	"github.com/kittclouds/memori/internal/metadata"
	"github.com/kittclouds/memori/internal/store"
)

func resultMetadata(m *store.Memory) map[string]any {
	return map[string]any{
		"summary":         m.Summary,
		"category":        m.CategoryPrimary,
		"importanceScore": m.ImportanceScore,
		"memoryType":      string(m.Classification),
		"createdAt":       m.CreatedAt,
	}
}

// FTSStrategy runs full-text search over the Store's FTS mirror.
type FTSStrategy struct {
	Store *store.Store
}

func (s *FTSStrategy) CanHandle(q Query) bool { return q.Text != "" }

func (s *FTSStrategy) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Store.RawFtsQuery(ctx, q.Text, q.Namespace, limit)
	if err != nil {
		return nil, errs.Search("fts", "query failed", err)
	}

	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		m, err := s.Store.GetByID(ctx, r.ID, q.Namespace)
		if err != nil {
			return nil, errs.Search("fts", "hydrate result failed", err)
		}
		if m == nil {
			continue
		}
		out = append(out, Result{
			ID: m.ID, Content: m.SearchableContent, Score: r.Score,
			Strategy: "fts", Timestamp: m.CreatedAt, Metadata: resultMetadata(m),
		})
	}
	return out, nil
}

// MetadataStrategy adapts internal/metadata.Strategy to the search.Strategy
// interface.
type MetadataStrategy struct {
	Inner *metadata.Strategy
}

func (s *MetadataStrategy) CanHandle(q Query) bool {
	return s.Inner.CanHandle(metadataQuery(q))
}

func (s *MetadataStrategy) Search(ctx context.Context, q Query) ([]Result, error) {
	return s.Inner.Search(ctx, metadataQuery(q))
}

func metadataQuery(q Query) metadata.MetadataFilterQuery {
	mq := q.Metadata
	if mq.Namespace == "" {
		mq.Namespace = q.Namespace
	}
	if mq.Text == "" {
		mq.Text = q.Text
	}
	if mq.Limit == 0 {
		mq.Limit = q.Limit
	}
	mq.Offset = q.Offset
	return mq
}

// CategoryStrategy filters memories by exact categoryPrimary match.
type CategoryStrategy struct {
	Store *store.Store
}

func (s *CategoryStrategy) CanHandle(q Query) bool { return q.CategoryFilter != "" }

func (s *CategoryStrategy) Search(ctx context.Context, q Query) ([]Result, error) {
	rows, err := s.Store.FindMany(ctx, q.Namespace, "category_primary = ?", []any{q.CategoryFilter})
	if err != nil {
		return nil, errs.Search("category", "query failed", err)
	}
	out := make([]Result, 0, len(rows))
	for _, m := range rows {
		out = append(out, Result{
			ID: m.ID, Content: m.SearchableContent, Score: 1.0,
			Strategy: "category", Timestamp: m.CreatedAt, Metadata: resultMetadata(m),
		})
	}
	return applyLimit(out, q), nil
}

// TemporalStrategy filters memories created within the last TemporalDays
// days, scoring more recent memories higher.
type TemporalStrategy struct {
	Store *store.Store
	Now   func() time.Time
}

func (s *TemporalStrategy) CanHandle(q Query) bool { return q.TemporalDays > 0 }

func (s *TemporalStrategy) Search(ctx context.Context, q Query) ([]Result, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().AddDate(0, 0, -q.TemporalDays).UnixMilli()
	rows, err := s.Store.FindMany(ctx, q.Namespace, "created_at >= ?", []any{cutoff})
	if err != nil {
		return nil, errs.Search("temporal", "query failed", err)
	}

	span := float64(now().UnixMilli() - cutoff)
	out := make([]Result, 0, len(rows))
	for _, m := range rows {
		score := 1.0
		if span > 0 {
			score = float64(m.CreatedAt-cutoff) / span
			if score < 0 {
				score = 0
			} else if score > 1 {
				score = 1
			}
		}
		out = append(out, Result{
			ID: m.ID, Content: m.SearchableContent, Score: score,
			Strategy: "temporal", Timestamp: m.CreatedAt, Metadata: resultMetadata(m),
		})
	}
	return applyLimit(out, q), nil
}

func applyLimit(results []Result, q Query) []Result {
	if q.Limit <= 0 || len(results) <= q.Limit {
		return results
	}
	return results[:q.Limit]
}
