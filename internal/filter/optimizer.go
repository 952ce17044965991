package filter

import "sort"

// Strategy is a combination strategy name.
type Strategy string

const (
	StrategyIntersection Strategy = "intersection"
	StrategyUnion        Strategy = "union"
	StrategyComplement   Strategy = "complement"
	StrategyCascade      Strategy = "cascade"
	StrategyParallel     Strategy = "parallel"
	StrategyWeighted     Strategy = "weighted"
)

// ChainContext carries the optimizer's inputs beyond the sibling list
// itself: strategy, timeout, and the early-termination flag.
type ChainContext struct {
	Strategy         Strategy
	TimeoutMillis    int
	EarlyTermination bool
}

// OptimizedChain is Optimize's output.
type OptimizedChain struct {
	ExecutionOrder    []*Node
	ParallelGroups    [][]*Node
	EstimatedCost     int
	OptimizationHints []string
	// Combined is the single Node the combination strategy produces:
	// and/or/complement/cascade/parallel/weighted applied over the
	// deduplicated siblings.
	Combined *Node
}

// Optimize reorders siblings by descending selectivity, groups them by
// field for parallel fan-out, removes redundant siblings, estimates cost,
// and combines them per the chain's strategy.
func Optimize(siblings []*Node, ctx ChainContext) *OptimizedChain {
	deduped := dedupSiblings(siblings)

	ordered := make([]*Node, len(deduped))
	copy(ordered, deduped)
	sort.SliceStable(ordered, func(i, j int) bool {
		return selectivityOf(ordered[i].Operator) > selectivityOf(ordered[j].Operator)
	})

	groups := groupByField(ordered)

	cost := 0
	for _, n := range ordered {
		cost += EstimateCost(n)
	}

	hints := []string{}
	if len(deduped) != len(siblings) {
		hints = append(hints, "removed redundant siblings with identical (field, operator, value)")
	}
	if len(groups) < len(ordered) {
		hints = append(hints, "grouped filters sharing a field for sequential evaluation")
	}

	return &OptimizedChain{
		ExecutionOrder:    ordered,
		ParallelGroups:    groups,
		EstimatedCost:     cost,
		OptimizationHints: hints,
		Combined:          combine(ordered, ctx.Strategy),
	}
}

// dedupSiblings removes siblings sharing (field, operator, value), keeping
// the first occurrence.
func dedupSiblings(siblings []*Node) []*Node {
	seen := make(map[siblingKey]bool, len(siblings))
	out := make([]*Node, 0, len(siblings))
	for _, n := range siblings {
		key := siblingKey{field: n.Field, op: n.Operator, value: renderValue(n.Value)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// groupByField partitions ordered such that two filters are in the same
// group iff they operate on the same field.
func groupByField(ordered []*Node) [][]*Node {
	index := make(map[string]int)
	var groups [][]*Node
	for _, n := range ordered {
		if i, ok := index[n.Field]; ok {
			groups[i] = append(groups[i], n)
			continue
		}
		index[n.Field] = len(groups)
		groups = append(groups, []*Node{n})
	}
	return groups
}

func combine(ordered []*Node, strategy Strategy) *Node {
	if len(ordered) == 0 {
		return nil
	}
	if len(ordered) == 1 {
		return ordered[0]
	}

	switch strategy {
	case StrategyUnion:
		return &Node{Type: TypeLogical, Operator: OpOr, Children: ordered}
	case StrategyComplement:
		if len(ordered) != 2 {
			return &Node{Type: TypeLogical, Operator: OpAnd, Children: ordered}
		}
		negated := &Node{Type: TypeLogical, Operator: OpNot, Children: []*Node{ordered[1]}}
		return &Node{Type: TypeLogical, Operator: OpAnd, Children: []*Node{ordered[0], negated}}
	case StrategyCascade:
		// ordered is already sorted by descending selectivity.
		return &Node{Type: TypeLogical, Operator: OpAnd, Children: ordered}
	case StrategyParallel:
		groups := groupByField(ordered)
		var ored []*Node
		for _, g := range groups {
			if len(g) == 1 {
				ored = append(ored, g[0])
				continue
			}
			ored = append(ored, &Node{Type: TypeLogical, Operator: OpAnd, Children: g})
		}
		if len(ored) == 1 {
			return ored[0]
		}
		return &Node{Type: TypeLogical, Operator: OpOr, Children: ored}
	case StrategyWeighted:
		weighted := make([]*Node, len(ordered))
		for i, n := range ordered {
			cp := *n
			cp.Metadata.Weight = 1.0 / float64(i+1)
			weighted[i] = &cp
		}
		return &Node{Type: TypeLogical, Operator: OpAnd, Children: weighted}
	default: // StrategyIntersection and unset default to AND.
		return &Node{Type: TypeLogical, Operator: OpAnd, Children: ordered}
	}
}
