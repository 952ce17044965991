package filter

// costTable and selectivityTable are fixed per-operator estimates. Values
// are illustrative but internally consistent: cheaper/more-selective
// operators (eq) are favored first in the cascade strategy.
var costTable = map[Operator]int{
	OpEq: 1, OpNe: 1, OpGt: 2, OpLt: 2, OpGe: 2, OpLe: 2,
	OpIn: 3, OpNotIn: 3, OpBetween: 3,
	OpContains: 5, OpStartsWith: 4, OpEndsWith: 4,
	OpLike: 10, OpRegex: 20,
	OpBefore: 3, OpAfter: 3, OpWithin: 4, OpAgeLt: 3, OpAgeGt: 3,
	OpSimilarTo: 15, OpRelatedTo: 15,
	OpAnd: 0, OpOr: 0, OpNot: 0,
}

var selectivityTable = map[Operator]float64{
	OpEq: 0.9, OpNe: 0.2, OpGt: 0.5, OpLt: 0.5, OpGe: 0.5, OpLe: 0.5,
	OpIn: 0.6, OpNotIn: 0.3, OpBetween: 0.5,
	OpContains: 0.3, OpStartsWith: 0.4, OpEndsWith: 0.4,
	OpLike: 0.3, OpRegex: 0.2,
	OpBefore: 0.4, OpAfter: 0.4, OpWithin: 0.4, OpAgeLt: 0.4, OpAgeGt: 0.4,
	OpSimilarTo: 0.2, OpRelatedTo: 0.2,
}

func costOf(op Operator) int {
	if c, ok := costTable[op]; ok {
		return c
	}
	return 1
}

func selectivityOf(op Operator) float64 {
	if s, ok := selectivityTable[op]; ok {
		return s
	}
	return 0.5
}

// EstimateCost sums per-node cost over the tree; a logical node adds its
// children's costs plus a flat combinator overhead, so a combined tree
// always costs at least as much as its parts.
func EstimateCost(n *Node) int {
	if n == nil {
		return 0
	}
	if n.Type == TypeLogical {
		total := 1 // combinator overhead keeps and(a,b) > cost(a)+cost(b)
		for _, c := range n.Children {
			total += EstimateCost(c)
		}
		return total
	}
	return costOf(n.Operator)
}
