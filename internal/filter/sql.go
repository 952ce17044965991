package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// fieldPathPattern whitelists field paths before they are interpolated
// into a json_extract(...) expression. Values are always bound as
// parameters; only the path itself is ever interpolated, and only once
// validated.
var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// SQLPushdown is the result of translating a filter AST to SQL.
type SQLPushdown struct {
	SQL           string
	Parameters    []any
	EstimatedCost int
	CanUseIndex   bool
}

// queryBuilder accumulates positional "?" placeholders and their bound
// arguments while a Node tree is walked.
type queryBuilder struct {
	args        []any
	usedIndexed bool
}

func (b *queryBuilder) addArg(v any) string {
	b.args = append(b.args, v)
	return "?"
}

// ToSql translates ast into a WHERE-clause fragment over baseQuery's
// underlying table, pushing down only eq, gt, lt, ge, le, between, in,
// contains, and, or on non-nested fields. Anything else (nested paths,
// temporal/spatial/semantic nodes, like/regex, not) falls back to an
// always-true predicate at that node, so pushdown may over-select but
// never under-selects.
func ToSql(ast *Node, baseQuery string) SQLPushdown {
	b := &queryBuilder{}
	where := renderNode(ast, b)
	sql := baseQuery
	if strings.TrimSpace(where) != "" {
		sql = fmt.Sprintf("%s WHERE %s", baseQuery, where)
	}
	return SQLPushdown{
		SQL:           sql,
		Parameters:    b.args,
		EstimatedCost: EstimateCost(ast),
		CanUseIndex:   b.usedIndexed,
	}
}

func renderNode(n *Node, b *queryBuilder) string {
	if n == nil {
		return "1=1"
	}

	if n.Type == TypeLogical {
		switch n.Operator {
		case OpAnd, OpOr:
			parts := make([]string, 0, len(n.Children))
			for _, c := range n.Children {
				parts = append(parts, "("+renderNode(c, b)+")")
			}
			sep := " AND "
			if n.Operator == OpOr {
				sep = " OR "
			}
			return strings.Join(parts, sep)
		default:
			// "not" and anything unrecognized is not pushed down.
			return "1=1"
		}
	}

	if n.Type != TypeComparison || strings.Contains(n.Field, ".") {
		// Nested/dotted fields and non-comparison node types are not
		// pushed down; they fall back to always-true here and are
		// re-checked by Execute over the rows SQL returns.
		return "1=1"
	}
	if !fieldPathPattern.MatchString(n.Field) {
		// A field path that fails the whitelist never reaches SQL text.
		return "1=1"
	}

	column := jsonExtract(n.Field)

	switch n.Operator {
	case OpEq:
		b.usedIndexed = true
		return fmt.Sprintf("%s = %s", column, b.addArg(n.Value))
	case OpGt:
		return fmt.Sprintf("%s > %s", column, b.addArg(n.Value))
	case OpLt:
		return fmt.Sprintf("%s < %s", column, b.addArg(n.Value))
	case OpGe:
		return fmt.Sprintf("%s >= %s", column, b.addArg(n.Value))
	case OpLe:
		return fmt.Sprintf("%s <= %s", column, b.addArg(n.Value))
	case OpBetween:
		arr, ok := n.Value.([]any)
		if !ok || len(arr) != 2 {
			return "1=1"
		}
		lo := b.addArg(arr[0])
		hi := b.addArg(arr[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", column, lo, hi)
	case OpIn:
		arr, ok := n.Value.([]any)
		if !ok || len(arr) == 0 {
			return "1=1"
		}
		placeholders := make([]string, len(arr))
		for i, v := range arr {
			placeholders[i] = b.addArg(v)
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
	case OpContains:
		s, ok := n.Value.(string)
		if !ok {
			return "1=1"
		}
		return fmt.Sprintf("%s LIKE %s", column, b.addArg("%"+escapeLike(s)+"%"))
	default:
		return "1=1"
	}
}

// jsonExtract renders a metadata field reference as a SQLite json_extract
// expression over the row's processed_data column, e.g. category →
// json_extract(processed_data, '$.category').
func jsonExtract(field string) string {
	return fmt.Sprintf("json_extract(processed_data, '$.%s')", field)
}

func escapeLike(s string) string {
	r := strings.NewReplacer("%", "\\%", "_", "\\_")
	return r.Replace(s)
}
