package filter

import (
	"fmt"
	"regexp"
)

// ValidationIssue is one entry in a ValidationResult's errors or warnings.
type ValidationIssue struct {
	Code    string
	Message string
	Field   string
}

// ValidationResult is Validate's output. Warnings never block execution.
type ValidationResult struct {
	IsValid  bool
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

var comparisonOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpLt: true, OpGe: true, OpLe: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true, OpIn: true,
	OpNotIn: true, OpBetween: true, OpLike: true, OpRegex: true,
}

var numericOperators = map[Operator]bool{
	OpGt: true, OpLt: true, OpGe: true, OpLe: true, OpBetween: true,
}

// Validate walks the AST and emits shape, operator, and value errors plus
// advisory warnings.
func Validate(root *Node) ValidationResult {
	v := &validatorState{}
	v.walk(root, 0, nil)
	return ValidationResult{
		IsValid:  len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

type validatorState struct {
	errors   []ValidationIssue
	warnings []ValidationIssue
	seen     []siblingKey
}

type siblingKey struct {
	field string
	op    Operator
	value string
}

func (v *validatorState) addError(code, field, msg string) {
	v.errors = append(v.errors, ValidationIssue{Code: code, Field: field, Message: msg})
}

func (v *validatorState) addWarning(code, field, msg string) {
	v.warnings = append(v.warnings, ValidationIssue{Code: code, Field: field, Message: msg})
}

func (v *validatorState) walk(n *Node, depth int, siblings []*Node) {
	if n == nil {
		return
	}
	if depth > 10 {
		v.addWarning("excessive_nesting", n.Field, "filter tree exceeds depth 10")
	}

	switch n.Type {
	case TypeLogical:
		v.validateLogical(n)
		v.checkRedundantSiblings(n.Children)
		for _, c := range n.Children {
			v.walk(c, depth+1, n.Children)
		}
		return
	default:
		v.validateLeaf(n)
	}
}

// checkRedundantSiblings emits exactly one redundant_filters warning per
// duplicated (field, operator, value) group among siblings.
func (v *validatorState) checkRedundantSiblings(siblings []*Node) {
	keys := make([]siblingKey, 0, len(siblings))
	for _, s := range siblings {
		if s.Type == TypeLogical {
			continue
		}
		keys = append(keys, siblingKey{field: s.Field, op: s.Operator, value: renderValue(s.Value)})
	}
	for _, dup := range dedupFirstOnly(keys) {
		v.addWarning("redundant_filters", dup.field,
			fmt.Sprintf("duplicate filter (%s, %s, %s) among siblings", dup.field, dup.op, dup.value))
	}
}

// dedupFirstOnly returns only keys that appear more than once, used purely
// to detect redundancy without re-emitting it once per duplicate node.
func dedupFirstOnly(keys []siblingKey) []siblingKey {
	counts := make(map[siblingKey]int, len(keys))
	for _, k := range keys {
		counts[k]++
	}
	var out []siblingKey
	for k, c := range counts {
		if c > 1 {
			out = append(out, k)
		}
	}
	return out
}

func (v *validatorState) validateLogical(n *Node) {
	switch n.Operator {
	case OpAnd, OpOr:
		if len(n.Children) < 2 {
			v.addError("invalid_children", "", fmt.Sprintf("%s requires at least 2 children", n.Operator))
		}
	case OpNot:
		if len(n.Children) != 1 {
			v.addError("invalid_children", "", "not requires exactly 1 child")
		}
	default:
		v.addError("invalid_operator", "", fmt.Sprintf("unknown logical operator %q", n.Operator))
	}
}

func (v *validatorState) validateLeaf(n *Node) {
	group, known := GroupOf(n.Operator)
	if !known {
		v.addError("invalid_operator", n.Field, fmt.Sprintf("unknown operator %q", n.Operator))
		return
	}
	if group != n.Type {
		v.addError("invalid_operator", n.Field,
			fmt.Sprintf("operator %q is not valid for node type %q", n.Operator, n.Type))
		return
	}

	if n.Type == TypeComparison && n.Field == "" {
		v.addError("missing_field", "", "comparison nodes must have a non-empty field")
	}

	// Spatial operators are rejected here rather than stubbed to
	// always-true at execution.
	if n.Type == TypeSpatial {
		v.addError("unsupported_operator", n.Field,
			fmt.Sprintf("spatial operator %q is not supported", n.Operator))
		return
	}

	switch n.Operator {
	case OpIn, OpNotIn:
		if _, ok := n.Value.([]any); !ok {
			v.addError("type_mismatch", n.Field, fmt.Sprintf("%s requires an array value", n.Operator))
		}
	case OpBetween:
		arr, ok := n.Value.([]any)
		if !ok || len(arr) != 2 {
			v.addError("type_mismatch", n.Field, "between requires an array of exactly 2 values")
		}
	case OpRegex:
		s, ok := n.Value.(string)
		if !ok {
			v.addError("type_mismatch", n.Field, "regex requires a string pattern")
			break
		}
		if _, err := regexp.Compile(s); err != nil {
			v.addError("invalid_regex", n.Field, fmt.Sprintf("invalid regex pattern: %v", err))
			break
		}
		if len(s) > 0 && (s[0] == '^' && len(s) > 1 && (s[1] == '.' || s[1] == '*')) {
			v.addWarning("inefficient_regex", n.Field, "leading wildcard regex is inefficient")
		} else if len(s) > 1 && s[0] == '.' && s[1] == '*' {
			v.addWarning("inefficient_regex", n.Field, "leading wildcard regex is inefficient")
		}
	}

	if numericOperators[n.Operator] && n.Operator != OpBetween {
		if _, ok := FromAny(n.Value).AsNumber(); !ok {
			v.addWarning("type_mismatch", n.Field, fmt.Sprintf("operator %q expects a numeric literal", n.Operator))
		}
	}
}
