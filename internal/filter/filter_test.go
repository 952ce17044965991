package filter

import (
	"strings"
	"testing"
)

func TestParserRoundTrip(t *testing.T) {
	src := `category = "important" AND priority >= 8`
	ast, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rendered := ToString(ast)
	reparsed, err := Parse(rendered)
	if err != nil {
		t.Fatalf("reparse rendered form %q: %v", rendered, err)
	}
	if !ast.Equivalent(reparsed) {
		t.Fatalf("round trip not equivalent: %q -> %q", src, rendered)
	}
}

func TestParserRejectsUnbalancedParens(t *testing.T) {
	if _, err := Parse(`(category = "x"`); err == nil {
		t.Fatal("expected error for unbalanced parens")
	}
}

func TestValidatorRedundantFiltersExactlyOnce(t *testing.T) {
	ast := &Node{
		Type:     TypeLogical,
		Operator: OpAnd,
		Children: []*Node{
			{Type: TypeComparison, Field: "x", Operator: OpEq, Value: float64(1)},
			{Type: TypeComparison, Field: "x", Operator: OpEq, Value: float64(1)},
		},
	}
	result := Validate(ast)
	count := 0
	for _, w := range result.Warnings {
		if w.Code == "redundant_filters" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 redundant_filters warning, got %d", count)
	}
}

func TestValidatorRejectsSpatialOperators(t *testing.T) {
	ast := &Node{Type: TypeSpatial, Field: "location", Operator: OpNear, Value: float64(10)}
	result := Validate(ast)
	if result.IsValid {
		t.Fatal("expected spatial operator to be invalid")
	}
	found := false
	for _, e := range result.Errors {
		if e.Code == "unsupported_operator" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected unsupported_operator error for spatial node")
	}
}

func TestValidatorWarnsExcessiveNesting(t *testing.T) {
	var n *Node = &Node{Type: TypeComparison, Field: "x", Operator: OpEq, Value: float64(1)}
	for i := 0; i < 12; i++ {
		n = &Node{Type: TypeLogical, Operator: OpAnd, Children: []*Node{n, {Type: TypeComparison, Field: "y", Operator: OpEq, Value: float64(1)}}}
	}
	result := Validate(n)
	found := false
	for _, w := range result.Warnings {
		if w.Code == "excessive_nesting" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected excessive_nesting warning")
	}
}

func TestExecuteFiltersRows(t *testing.T) {
	ast, err := Parse(`category = "important" AND priority >= 8`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := []map[string]any{
		{"category": "important", "priority": float64(9)},
		{"category": "important", "priority": float64(3)},
		{"category": "trivial", "priority": float64(9)},
	}
	out := Execute(ast, rows)
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 matching row, got %d", len(out))
	}
	if out[0]["priority"] != float64(9) {
		t.Fatalf("unexpected matched row: %+v", out[0])
	}
}

func TestExecuteBetweenAndIn(t *testing.T) {
	between := &Node{Type: TypeComparison, Field: "score", Operator: OpBetween, Value: []any{float64(1), float64(5)}}
	rows := []map[string]any{{"score": float64(3)}, {"score": float64(9)}}
	out := Execute(between, rows)
	if len(out) != 1 {
		t.Fatalf("expected 1 row in range, got %d", len(out))
	}

	in := &Node{Type: TypeComparison, Field: "tag", Operator: OpIn, Value: []any{"a", "b"}}
	rows = []map[string]any{{"tag": "a"}, {"tag": "z"}}
	out = Execute(in, rows)
	if len(out) != 1 || out[0]["tag"] != "a" {
		t.Fatalf("expected in-membership filter to keep only %q, got %+v", "a", out)
	}
}

func TestExecuteLikePattern(t *testing.T) {
	like := &Node{Type: TypeComparison, Field: "name", Operator: OpLike, Value: "fo%"}
	rows := []map[string]any{{"name": "foobar"}, {"name": "barfoo"}}
	out := Execute(like, rows)
	if len(out) != 1 || out[0]["name"] != "foobar" {
		t.Fatalf("expected like pattern to match only %q, got %+v", "foobar", out)
	}
}

func TestToSqlPushesDownMetadataEquality(t *testing.T) {
	ast, err := Parse(`category = "work"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	result := ToSql(ast, "SELECT * FROM long_term_memory")
	if !strings.Contains(result.SQL, "json_extract(processed_data, '$.category') = ?") {
		t.Fatalf("expected json_extract pushdown, got %q", result.SQL)
	}
	if len(result.Parameters) != 1 || result.Parameters[0] != "work" {
		t.Fatalf("expected single bound parameter \"work\", got %+v", result.Parameters)
	}
	if !result.CanUseIndex {
		t.Fatal("expected eq pushdown to report CanUseIndex")
	}
}

func TestToSqlFallsBackForUnsupportedOperator(t *testing.T) {
	n := &Node{Type: TypeComparison, Field: "name", Operator: OpLike, Value: "fo%"}
	result := ToSql(n, "SELECT * FROM long_term_memory")
	if !strings.Contains(result.SQL, "1=1") {
		t.Fatalf("expected always-true fallback for unsupported operator, got %q", result.SQL)
	}
	if len(result.Parameters) != 0 {
		t.Fatalf("expected no bound parameters for fallback, got %+v", result.Parameters)
	}
}

func TestOptimizeDeduplicatesAndOrdersBySelectivity(t *testing.T) {
	siblings := []*Node{
		{Type: TypeComparison, Field: "x", Operator: OpRegex, Value: ".*"},
		{Type: TypeComparison, Field: "y", Operator: OpEq, Value: float64(1)},
		{Type: TypeComparison, Field: "y", Operator: OpEq, Value: float64(1)},
	}
	chain := Optimize(siblings, ChainContext{Strategy: StrategyCascade})
	if len(chain.ExecutionOrder) != 2 {
		t.Fatalf("expected duplicate sibling removed, got %d entries", len(chain.ExecutionOrder))
	}
	if chain.ExecutionOrder[0].Operator != OpEq {
		t.Fatalf("expected eq (higher selectivity) ordered first, got %q", chain.ExecutionOrder[0].Operator)
	}
}

func TestEstimateCostMonotonic(t *testing.T) {
	a := &Node{Type: TypeComparison, Field: "x", Operator: OpEq, Value: float64(1)}
	b := &Node{Type: TypeComparison, Field: "y", Operator: OpGt, Value: float64(2)}
	and := &Node{Type: TypeLogical, Operator: OpAnd, Children: []*Node{a, b}}
	if EstimateCost(and) < EstimateCost(a)+EstimateCost(b) {
		t.Fatalf("expected estimateCost(and(a,b)) >= cost(a)+cost(b): got %d < %d+%d",
			EstimateCost(and), EstimateCost(a), EstimateCost(b))
	}
}
