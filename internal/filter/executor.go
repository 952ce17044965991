package filter

import (
	"regexp"
	"strings"
	"time"
)

// Execute evaluates ast against each row in memory, returning the rows
// that satisfy it, preserving order. O(|rows| · |ast|).
func Execute(ast *Node, rows []map[string]any) []map[string]any {
	if ast == nil {
		return rows
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if evalNode(ast, FromAny(row)) {
			out = append(out, row)
		}
	}
	return out
}

func evalNode(n *Node, row Value) bool {
	if n == nil {
		return true
	}
	switch n.Type {
	case TypeLogical:
		return evalLogical(n, row)
	case TypeTemporal:
		return evalTemporal(n, row)
	case TypeSpatial:
		// Rejected at validation time; if one reaches execution anyway,
		// it is inert rather than silently true.
		return false
	case TypeSemantic:
		return evalSemantic(n, row)
	default:
		return evalComparison(n, row)
	}
}

func evalLogical(n *Node, row Value) bool {
	switch n.Operator {
	case OpAnd:
		for _, c := range n.Children {
			if !evalNode(c, row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range n.Children {
			if evalNode(c, row) {
				return true
			}
		}
		return false
	case OpNot:
		if len(n.Children) != 1 {
			return false
		}
		return !evalNode(n.Children[0], row)
	default:
		return false
	}
}

func fieldValue(n *Node, row Value) (Value, bool) {
	return Walk(row, FieldPath(n.Field))
}

func evalComparison(n *Node, row Value) bool {
	actual, ok := fieldValue(n, row)
	target := FromAny(n.Value)

	switch n.Operator {
	case OpEq:
		if !ok {
			return target.Kind == KindNull
		}
		return actual.Equal(target)
	case OpNe:
		if !ok {
			return target.Kind != KindNull
		}
		return !actual.Equal(target)
	case OpGt, OpLt, OpGe, OpLe:
		if !ok {
			return false
		}
		av, aok := actual.AsNumber()
		tv, tok := target.AsNumber()
		if !aok || !tok {
			return false
		}
		switch n.Operator {
		case OpGt:
			return av > tv
		case OpLt:
			return av < tv
		case OpGe:
			return av >= tv
		default:
			return av <= tv
		}
	case OpContains, OpStartsWith, OpEndsWith:
		if !ok {
			return false
		}
		as, aok := actual.AsString()
		ts, tok := target.AsString()
		if !aok || !tok {
			return false
		}
		switch n.Operator {
		case OpContains:
			return strings.Contains(as, ts)
		case OpStartsWith:
			return strings.HasPrefix(as, ts)
		default:
			return strings.HasSuffix(as, ts)
		}
	case OpLike:
		if !ok {
			return false
		}
		as, aok := actual.AsString()
		ts, tok := target.AsString()
		if !aok || !tok {
			return false
		}
		re, err := likeToRegexp(ts)
		if err != nil {
			return false
		}
		return re.MatchString(as)
	case OpRegex:
		if !ok {
			return false
		}
		as, aok := actual.AsString()
		ts, tok := target.AsString()
		if !aok || !tok {
			return false
		}
		re, err := regexp.Compile("^(?:" + ts + ")$")
		if err != nil {
			return false
		}
		return re.MatchString(as)
	case OpIn, OpNotIn:
		arr, isArr := n.Value.([]any)
		if !isArr {
			return false
		}
		member := false
		if ok {
			for _, v := range arr {
				if actual.Equal(FromAny(v)) {
					member = true
					break
				}
			}
		}
		if n.Operator == OpIn {
			return member
		}
		return !member
	case OpBetween:
		arr, isArr := n.Value.([]any)
		if !isArr || len(arr) != 2 || !ok {
			return false
		}
		av, aok := actual.AsNumber()
		lo, lok := FromAny(arr[0]).AsNumber()
		hi, hok := FromAny(arr[1]).AsNumber()
		if !aok || !lok || !hok {
			return false
		}
		return av >= lo && av <= hi
	default:
		return false
	}
}

// likeToRegexp converts a SQL LIKE pattern to an anchored, case-insensitive
// regexp ("%" becomes ".*", "_" becomes ".").
func likeToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func evalTemporal(n *Node, row Value) bool {
	actual, ok := fieldValue(n, row)
	if !ok {
		return false
	}
	switch n.Operator {
	case OpBefore, OpAfter:
		at, aok := coerceInstant(actual)
		tt, tok := coerceInstant(FromAny(n.Value))
		if !aok || !tok {
			return false
		}
		if n.Operator == OpBefore {
			return at.Before(tt)
		}
		return at.After(tt)
	case OpWithin:
		// value is a duration in days from now; field must be within that window.
		at, aok := coerceInstant(actual)
		days, dok := FromAny(n.Value).AsNumber()
		if !aok || !dok {
			return false
		}
		diff := time.Since(at).Hours() / 24
		return diff >= 0 && diff <= days
	case OpAgeLt, OpAgeGt:
		at, aok := coerceInstant(actual)
		target, tok := FromAny(n.Value).AsNumber()
		if !aok || !tok {
			return false
		}
		ageDays := time.Since(at).Hours() / 24
		if n.Operator == OpAgeLt {
			return ageDays < target
		}
		return ageDays > target
	default:
		return false
	}
}

func coerceInstant(v Value) (time.Time, bool) {
	switch v.Kind {
	case KindNumber:
		return time.UnixMilli(int64(v.Number)), true
	case KindString:
		if t, err := time.Parse(time.RFC3339, v.Str); err == nil {
			return t, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// evalSemantic handles similar_to/related_to. There is no vector index in
// this engine, so these fall back to a lexical containment check between
// the field value and the comparison value rather than an embedding
// similarity lookup.
func evalSemantic(n *Node, row Value) bool {
	actual, ok := fieldValue(n, row)
	if !ok {
		return false
	}
	as, aok := actual.AsString()
	ts, tok := FromAny(n.Value).AsString()
	if !aok || !tok {
		return false
	}
	return strings.Contains(strings.ToLower(as), strings.ToLower(ts))
}
