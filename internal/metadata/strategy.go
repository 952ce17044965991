package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kittclouds/memori/internal/errs"
	"github.com/kittclouds/memori/internal/store"
	"github.com/kittclouds/memori/pkg/pool"
)

// fieldPathPattern whitelists field names before they are interpolated into
// a json_extract(...) expression. Predicates whose field fails the whitelist
// are dropped rather than embedded.
var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Operator is the fixed per-field predicate operator set.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGe       Operator = "ge"
	OpLt       Operator = "lt"
	OpLe       Operator = "le"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpExists   Operator = "exists"
	OpType     Operator = "type"
)

// FieldPredicate is one metadata-field filter.
type FieldPredicate struct {
	Field    string
	Operator Operator
	Value    any
	Required bool   // enforced by strict validation (step 5)
	Type     string // JSON type name; read only by the "type" operator's predicate (its Value)
}

// AggregationOptions controls step 6.
type AggregationOptions struct {
	Enable         bool
	GroupBy        []string
	MaxGroupFields int
}

// ValidationOptions controls step 5.
type ValidationOptions struct {
	Strict                bool
	FailOnInvalidMetadata bool
}

// FieldOptions controls step 1 field resolution and nested-path handling.
type FieldOptions struct {
	EnableNestedAccess   bool
	MaxDepth             int
	EnableTypeValidation bool
	EnableFieldDiscovery bool
}

// PerformanceOptions controls caching and execution limits.
type PerformanceOptions struct {
	EnableQueryOptimization bool
	EnableResultCaching     bool
	MaxExecutionTimeMillis  int
	BatchSize               int
	CacheSize               int
}

// Config bundles every option group the Metadata Strategy recognizes.
type Config struct {
	Fields      FieldOptions
	Aggregation AggregationOptions
	Validation  ValidationOptions
	Performance PerformanceOptions
}

// MetadataFilterQuery is a search query extended with per-field metadata
// predicates and option groups.
type MetadataFilterQuery struct {
	Text      string
	Namespace string
	Limit     int
	Offset    int
	SortBy    string
	Fields    []FieldPredicate
	Options   Config
}

// SearchResult is the fixed result shape every search strategy returns:
// {id, content, score, strategy, timestamp, metadata}.
type SearchResult struct {
	ID        string
	Content   string
	Score     float64
	Strategy  string
	Timestamp int64
	Metadata  map[string]any
	// Group-aggregate fields, populated only for synthetic aggregate rows.
	GroupKey      string
	Count         int
	Avg, Min, Max float64
}

var fieldDiscoveryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:metadata|meta)\.([A-Za-z0-9_]+)=([^\s]+)`),
	regexp.MustCompile(`(?i)(?:field|property):([A-Za-z0-9_]+)=([^\s]+)`),
}

// Strategy filters memories on their JSON metadata column.
type Strategy struct {
	store *store.Store
	cfg   Config
	cache *cache
}

// New builds a Metadata Strategy over s, with caching sized/timed per cfg.
// cfg supplies the defaults for every query; a query's own Options override
// them group by group.
func New(s *store.Store, cfg Config) *Strategy {
	size := cfg.Performance.CacheSize
	return &Strategy{store: s, cfg: cfg, cache: newCache(size, 5*time.Minute)}
}

// options merges a query's explicitly-set option groups over the strategy's
// configured defaults. A zero-value group on the query means "use defaults".
func (st *Strategy) options(q MetadataFilterQuery) Config {
	cfg := st.cfg
	if q.Options.Fields != (FieldOptions{}) {
		cfg.Fields = q.Options.Fields
	}
	if q.Options.Validation != (ValidationOptions{}) {
		cfg.Validation = q.Options.Validation
	}
	if q.Options.Aggregation.Enable || len(q.Options.Aggregation.GroupBy) > 0 {
		cfg.Aggregation = q.Options.Aggregation
	}
	if q.Options.Performance != (PerformanceOptions{}) {
		cfg.Performance = q.Options.Performance
	}
	return cfg
}

// CanHandle reports whether this strategy applies to q: it handles any
// query carrying at least one metadata field predicate.
func (st *Strategy) CanHandle(q MetadataFilterQuery) bool {
	return len(q.Fields) > 0 || len(discoverFields(q.Text)) > 0
}

// Search runs the full pipeline: resolve fields, build SQL, execute,
// score, validate, aggregate, cache.
func (st *Strategy) Search(ctx context.Context, q MetadataFilterQuery) ([]SearchResult, error) {
	opts := st.options(q)
	fields := resolveFields(q, opts)

	cacheKey := cacheKeyFor(q, fields)
	if opts.Performance.EnableResultCaching {
		if cached, ok := st.cache.get(cacheKey); ok {
			return cached, nil
		}
	}

	sqlText, args := buildSQL(q, fields, opts)

	rows, err := st.store.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, errs.Search("metadata", "query execution failed", err)
	}
	defer rows.Close()

	results := pool.GetSlice()
	defer func() { pool.PutSlice(results) }()

	for rows.Next() {
		var id, content, summary, category string
		var importanceScore float64
		var createdAt int64
		var processedJSON string
		var relevance float64
		if err := rows.Scan(&id, &content, &summary, &category, &importanceScore, &createdAt, &processedJSON, &relevance); err != nil {
			return nil, errs.Search("metadata", "row scan failed", err)
		}
		// The result metadata map outlives this call, so only the per-row
		// decode buffer is pooled; its entries are copied out before it is
		// returned to the pool.
		meta := make(map[string]any, 8)
		if processedJSON != "" {
			scratch := pool.GetMap()
			if err := json.Unmarshal([]byte(processedJSON), &scratch); err == nil {
				for k, v := range scratch {
					meta[k] = v
				}
			}
			pool.PutMap(scratch)
		}
		meta["summary"] = summary
		meta["category"] = category
		meta["importanceScore"] = importanceScore
		meta["memoryType"] = "memory"
		meta["createdAt"] = createdAt

		score := scoreRow(q.Text, content, meta, fields)
		results = append(results, any(SearchResult{
			ID: id, Content: content, Score: score, Strategy: "metadata",
			Timestamp: createdAt, Metadata: meta,
		}))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Search("metadata", "row iteration failed", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.(SearchResult))
	}

	if opts.Validation.Strict {
		out = validateResults(out, fields, opts.Validation.FailOnInvalidMetadata)
	}

	if opts.Aggregation.Enable && len(opts.Aggregation.GroupBy) > 0 {
		out = aggregate(out, opts.Aggregation.GroupBy)
	}

	if opts.Performance.EnableResultCaching {
		st.cache.put(cacheKey, out)
	}
	return out, nil
}

// resolveFields concatenates explicit fields with ones discovered from
// free text, when field discovery is enabled.
func resolveFields(q MetadataFilterQuery, opts Config) []FieldPredicate {
	fields := append([]FieldPredicate(nil), q.Fields...)
	if opts.Fields.EnableFieldDiscovery {
		fields = append(fields, discoverFields(q.Text)...)
	}
	return fields
}

func discoverFields(text string) []FieldPredicate {
	var out []FieldPredicate
	for _, re := range fieldDiscoveryPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, FieldPredicate{Field: m[1], Operator: OpEq, Value: m[2]})
		}
	}
	return out
}

// buildSQL assembles the UNION-of-both-tables query with JSON-extract
// predicates, a LIKE disjunction over searchable_content/summary, ordered
// by relevance then caller sort, with LIMIT/OFFSET.
// Positional-parameter accumulation follows the same queryBuilder shape
// as internal/filter's SQL pushdown. Dotted (nested) field paths are only
// honored when nested access is enabled and the path fits within MaxDepth;
// otherwise the predicate is dropped rather than embedded.
func buildSQL(q MetadataFilterQuery, fields []FieldPredicate, opts Config) (string, []any) {
	var args []any
	add := func(v any) string {
		args = append(args, v)
		return "?"
	}

	var predicateParts []string
	for _, f := range fields {
		if !allowedFieldPath(f.Field, opts) {
			continue
		}
		predicateParts = append(predicateParts, fieldPredicateSQL(f, add))
	}

	var likeParts []string
	for _, term := range strings.Fields(q.Text) {
		likeParts = append(likeParts,
			fmt.Sprintf("(searchable_content LIKE %s OR summary LIKE %s)", add("%"+term+"%"), add("%"+term+"%")))
	}

	where := "namespace = " + add(q.Namespace)
	if len(predicateParts) > 0 {
		where += " AND " + strings.Join(predicateParts, " AND ")
	}
	if len(likeParts) > 0 {
		where += " AND (" + strings.Join(likeParts, " OR ") + ")"
	}

	relevance := relevanceScoreSQL(fields, opts)

	order := relevance + " DESC"
	// SortBy names a column, never a value, so it goes through the same
	// whitelist as every other interpolated name or it is dropped.
	if q.SortBy != "" && allowedFieldPath(q.SortBy, opts) {
		order += ", " + q.SortBy
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	unionSQL := fmt.Sprintf(`
SELECT id, searchable_content, summary, category_primary, importance_score, created_at, processed_data, %s AS metadata_relevance_score
FROM short_term_memory WHERE %s
UNION ALL
SELECT id, searchable_content, summary, category_primary, importance_score, created_at, processed_data, %s AS metadata_relevance_score
FROM long_term_memory WHERE %s
ORDER BY %s
LIMIT %d OFFSET %d`, relevance, where, relevance, where, order, limit, q.Offset)

	// args are used twice (once per UNION branch): duplicate them in order.
	fullArgs := append(append([]any{}, args...), args...)
	return unionSQL, fullArgs
}

// allowedFieldPath gates a predicate's field name before it is ever
// interpolated: it must match the whitelist pattern, and a dotted path is
// only allowed when nested access is enabled and within the depth bound.
func allowedFieldPath(field string, opts Config) bool {
	if !fieldPathPattern.MatchString(field) {
		return false
	}
	depth := strings.Count(field, ".") + 1
	if depth > 1 && !opts.Fields.EnableNestedAccess {
		return false
	}
	if opts.Fields.MaxDepth > 0 && depth > opts.Fields.MaxDepth {
		return false
	}
	return true
}

func relevanceScoreSQL(fields []FieldPredicate, opts Config) string {
	if len(fields) == 0 {
		return "0"
	}
	var parts []string
	for _, f := range fields {
		if !allowedFieldPath(f.Field, opts) {
			continue
		}
		parts = append(parts, fmt.Sprintf("(CASE WHEN json_extract(processed_data,'$.%s') IS NOT NULL THEN 1 ELSE 0 END)", f.Field))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " + ")
}

func fieldPredicateSQL(f FieldPredicate, add func(any) string) string {
	col := fmt.Sprintf("json_extract(processed_data,'$.%s')", f.Field)
	switch f.Operator {
	case OpEq:
		return fmt.Sprintf("%s = %s", col, add(f.Value))
	case OpNe:
		return fmt.Sprintf("%s != %s", col, add(f.Value))
	case OpGt:
		return fmt.Sprintf("CAST(%s AS REAL) > %s", col, add(f.Value))
	case OpGe:
		return fmt.Sprintf("CAST(%s AS REAL) >= %s", col, add(f.Value))
	case OpLt:
		return fmt.Sprintf("CAST(%s AS REAL) < %s", col, add(f.Value))
	case OpLe:
		return fmt.Sprintf("CAST(%s AS REAL) <= %s", col, add(f.Value))
	case OpContains:
		return fmt.Sprintf("%s LIKE %s", col, add("%"+fmt.Sprint(f.Value)+"%"))
	case OpIn:
		arr, _ := f.Value.([]any)
		placeholders := make([]string, len(arr))
		for i, v := range arr {
			placeholders[i] = add(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", "))
	case OpExists:
		return fmt.Sprintf("%s IS NOT NULL", col)
	case OpType:
		return fmt.Sprintf("json_type(processed_data,'$.%s') = %s", f.Field, add(f.Value))
	default:
		return "1=1"
	}
}

// scoreRow implements step 4: base 0.3, +0.2 per matched metadata field,
// +0.2 if query text appears in content; clamp to [0,1].
func scoreRow(queryText, content string, meta map[string]any, fields []FieldPredicate) float64 {
	score := 0.3
	for _, f := range fields {
		if v, ok := meta[f.Field]; ok && v != nil {
			score += 0.2
		}
	}
	if queryText != "" && strings.Contains(strings.ToLower(content), strings.ToLower(queryText)) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// validateResults drops rows missing a Required field when failOnInvalid is
// set, otherwise keeps them. A predicate's declared Type is not checked
// here. The warn policy is the caller's responsibility; this strategy has
// no logger of its own.
func validateResults(results []SearchResult, fields []FieldPredicate, failOnInvalid bool) []SearchResult {
	if !failOnInvalid {
		return results
	}
	out := results[:0]
	for _, r := range results {
		ok := true
		for _, f := range fields {
			if !f.Required {
				continue
			}
			if _, present := r.Metadata[f.Field]; !present {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// aggregate implements step 6: group rows by groupBy fields, producing one
// synthetic SearchResult per group with count/avg/min/max of score.
func aggregate(results []SearchResult, groupBy []string) []SearchResult {
	type bucket struct {
		scores []float64
		sample SearchResult
	}
	groups := make(map[string]*bucket)
	var order []string

	for _, r := range results {
		key := groupKeyFor(r, groupBy)
		b, ok := groups[key]
		if !ok {
			b = &bucket{sample: r}
			groups[key] = b
			order = append(order, key)
		}
		b.scores = append(b.scores, r.Score)
	}

	out := make([]SearchResult, 0, len(order))
	for _, key := range order {
		b := groups[key]
		min, max, sum := b.scores[0], b.scores[0], 0.0
		for _, s := range b.scores {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
			sum += s
		}
		out = append(out, SearchResult{
			ID: b.sample.ID, Content: b.sample.Content, Strategy: "metadata",
			Timestamp: b.sample.Timestamp, Metadata: b.sample.Metadata,
			GroupKey: key, Count: len(b.scores), Avg: sum / float64(len(b.scores)), Min: min, Max: max,
			Score: sum / float64(len(b.scores)),
		})
	}
	return out
}

func groupKeyFor(r SearchResult, groupBy []string) string {
	parts := make([]string, len(groupBy))
	for i, field := range groupBy {
		if v, ok := r.Metadata[field]; ok {
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, "\x1f")
}

// cacheKeyFor produces a stable serialization of (text, metadataFilters,
// sort, limit, offset) for the cache layer.
func cacheKeyFor(q MetadataFilterQuery, fields []FieldPredicate) string {
	sorted := append([]FieldPredicate(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })

	var sb strings.Builder
	sb.WriteString(q.Namespace)
	sb.WriteString("|")
	sb.WriteString(q.Text)
	sb.WriteString("|")
	for _, f := range sorted {
		sb.WriteString(f.Field)
		sb.WriteString(string(f.Operator))
		sb.WriteString(fmt.Sprint(f.Value))
		sb.WriteString(";")
	}
	sb.WriteString(q.SortBy)
	sb.WriteString("|")
	sb.WriteString(strconv.Itoa(q.Limit))
	sb.WriteString("|")
	sb.WriteString(strconv.Itoa(q.Offset))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
