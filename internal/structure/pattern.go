package structure

// rewrite is a matched pattern instance. apply performs the graph surgery
// and returns the new region; header and members name the anchor and the
// nodes the region absorbs.
type rewrite struct {
	header  Node
	members []Node
	apply   func() Node
}

// Pattern recognizes one structured idiom anchored at a node.
type Pattern struct {
	kind  Kind
	match func(g *Graph, n Node) *rewrite
}

// Kind returns the node kind the pattern produces.
func (p Pattern) Kind() Kind { return p.kind }

func (p Pattern) String() string { return p.kind.String() }

// IsCandidate reports whether the pattern applies at n. It does not modify g.
func (p Pattern) IsCandidate(g *Graph, n Node) bool {
	return g.Has(n) && p.match(g, n) != nil
}

// TryApply rewrites g at n if the pattern applies and returns the new
// region.
func (p Pattern) TryApply(g *Graph, n Node) (Node, bool) {
	if !g.Has(n) {
		return nil, false
	}
	r := p.match(g, n)
	if r == nil {
		return nil, false
	}
	return p.commit(g, r), true
}

func (p Pattern) commit(g *Graph, r *rewrite) Node {
	out := r.apply()
	if g.checked {
		g.mustValidate(p.kind.String())
	}
	return out
}

func (p Pattern) mustApply(g *Graph, n Node, op string) Node {
	invariant(g.Has(n), op, "%s is not in the graph", n.Name())
	r := p.match(g, n)
	invariant(r != nil, op, "%s does not anchor a %s", n.Name(), p.kind)
	return p.commit(g, r)
}

// Patterns in the order the driver tries them. Loop shapes come first so a
// loop is recognized before its body is absorbed into a sequence.
var (
	WhileTruePattern         = Pattern{KindWhileTrue, matchWhileTrue}
	DoWhilePattern           = Pattern{KindDoWhile, matchDoWhile}
	WhilePattern             = Pattern{KindWhile, matchWhile}
	AndPattern               = Pattern{KindAnd, matchAnd}
	DisjunctiveIfElsePattern = Pattern{KindDisjunctiveIfElse, matchDisjunctiveIfElse}
	DisjunctiveIfPattern     = Pattern{KindDisjunctiveIf, matchDisjunctiveIf}
	IfElsePattern            = Pattern{KindIfElse, matchIfElse}
	IfPattern                = Pattern{KindIf, matchIf}
	SequencePattern          = Pattern{KindSequence, matchSequence}
)

// DefaultPatterns returns the standard pattern priority list.
func DefaultPatterns() []Pattern {
	return []Pattern{
		WhileTruePattern,
		DoWhilePattern,
		WhilePattern,
		AndPattern,
		DisjunctiveIfElsePattern,
		DisjunctiveIfPattern,
		IfElsePattern,
		IfPattern,
		SequencePattern,
	}
}

// PatternByName looks a pattern up by its kind name, e.g. "while".
func PatternByName(name string) (Pattern, bool) {
	for _, p := range DefaultPatterns() {
		if p.kind.String() == name {
			return p, true
		}
	}
	return Pattern{}, false
}

// condLegs returns the targets of n's True and False legs if n is a
// two-way condition.
func condLegs(g *Graph, n Node) (t, f Node, ok bool) {
	outs := g.Outs(n)
	if len(outs) != 2 || outs[0].Kind != TrueEdge || outs[1].Kind != FalseEdge {
		return nil, nil, false
	}
	return outs[0].To, outs[1].To, true
}

// singleAlways returns the target of n's only out-edge if it is Always.
func singleAlways(g *Graph, n Node) (Node, bool) {
	outs := g.Outs(n)
	if len(outs) != 1 || outs[0].Kind != AlwaysEdge {
		return nil, false
	}
	return outs[0].To, true
}

func inDegree(g *Graph, n Node) int {
	var d int
	for _, e := range g.edges {
		if e.To == n {
			d++
		}
	}
	return d
}
