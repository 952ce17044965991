// Package search dispatches queries across multiple named search
// strategies, each exposing CanHandle + Search, and merges their results
// into one ranked set. Strategies live in a map[string]Strategy registry
// rather than a type hierarchy.
package search

import (
	"context"
	"sort"

	"github.com/kittclouds/memori/internal/metadata"
)

// Result is the uniform search result shape every strategy returns:
// {id, content, score, strategy, timestamp, metadata}.
type Result = metadata.SearchResult

// Query is the input every registered Strategy receives.
type Query struct {
	Text      string
	Namespace string
	Limit     int
	Offset    int
	// CategoryFilter, when non-empty, restricts the category strategy.
	CategoryFilter string
	// Metadata carries the full metadata-filter query for the metadata
	// strategy; other strategies ignore it.
	Metadata metadata.MetadataFilterQuery
	// TemporalDays bounds the temporal strategy to memories created
	// within the last N days; zero disables the strategy.
	TemporalDays int
}

// Strategy is a named search algorithm.
type Strategy interface {
	CanHandle(q Query) bool
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Dispatcher holds the process-wide strategy registry and merges results
// across whichever strategies CanHandle a given Query.
type Dispatcher struct {
	names      []string
	strategies map[string]Strategy
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{strategies: make(map[string]Strategy)}
}

// Register adds a named strategy. Registration order is preserved as the
// fan-out order, so earlier strategies' scores win ties in the merge.
func (d *Dispatcher) Register(name string, s Strategy) {
	if _, exists := d.strategies[name]; !exists {
		d.names = append(d.names, name)
	}
	d.strategies[name] = s
}

// Search runs every registered strategy that CanHandle q, concatenates
// their results, and merges duplicates by id.
func (d *Dispatcher) Search(ctx context.Context, q Query) ([]Result, error) {
	var all []Result
	for _, name := range d.names {
		st := d.strategies[name]
		if !st.CanHandle(q) {
			continue
		}
		res, err := st.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, res...)
	}
	return Merge(all), nil
}

// Merge deduplicates results by id, keeping the highest-scoring instance,
// and returns them sorted by descending score.
func Merge(results []Result) []Result {
	best := make(map[string]Result, len(results))
	var order []string
	for _, r := range results {
		existing, seen := best[r.ID]
		if !seen {
			order = append(order, r.ID)
			best[r.ID] = r
			continue
		}
		if r.Score > existing.Score {
			best[r.ID] = r
		}
	}
	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
