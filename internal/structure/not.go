package structure

// Not is a condition with its legs swapped.
type Not struct {
	nodeHeader
	Inner Node
}

// NewNot wraps inner, which must be a two-way condition in g, and flips the
// kind of each of its out-edges.
func NewNot(g *Graph, inner Node) *Not {
	_, isNot := inner.(*Not)
	invariant(!isNot, "NewNot", "%s is already negated", inner.Name())
	invariant(g.Has(inner), "NewNot", "%s is not in the graph", inner.Name())
	outs := g.Outs(inner)
	invariant(len(outs) >= 2, "NewNot", "%s has %d outs, want a condition", inner.Name(), len(outs))
	for _, e := range outs {
		invariant(e.Kind.IsBoolean(), "NewNot", "%s has non-boolean out %s", inner.Name(), e)
	}
	n := &Not{Inner: inner}
	g.ReplaceNode(inner, n)
	flipOuts(g, n)
	return n
}

// unwrapNot restores the negated node in place of n.
func unwrapNot(g *Graph, n *Not) Node {
	inner := n.Inner
	g.ReplaceNode(n, inner)
	flipOuts(g, inner)
	return inner
}

func flipOuts(g *Graph, n Node) {
	outs := g.Outs(n)
	for _, e := range outs {
		g.RemoveEdge(e)
	}
	for _, e := range outs {
		g.AddEdge(Edge{From: e.From, To: e.To, Kind: e.Kind.Flip()})
	}
}

func (n *Not) Kind() Kind                    { return KindNot }
func (n *Not) Name() string                  { return "not_" + n.Inner.Name() }
func (n *Not) Start() uint64                 { return n.Inner.Start() }
func (n *Not) Instructions() Listing         { return n.Inner.Instructions() }
func (n *Not) ContainsAddress(a uint64) bool { return n.Inner.ContainsAddress(a) }

func (n *Not) Dump(p *Printer) {
	p.Linef("!{")
	p.Nested(n.Inner)
	p.Linef("}")
}

// MakeUniformBooleanEdges gives merge points reached only by condition legs
// a single leg color. The preferred color is True when a True leg already
// comes from a Not, else False; the other color is tried second. All
// dissenting sources of a merge flip together: plain conditions are wrapped
// in Not and existing Nots are unwrapped. A move is taken only when it
// lowers the number of mixed merges, so the pass reaches a fixed point and
// an immediate second call rewrites nothing. It returns the number of
// sources rewritten.
func MakeUniformBooleanEdges(g *Graph) int {
	rewritten := 0
	for {
		srcs := nextUniformMove(g)
		if srcs == nil {
			return rewritten
		}
		for _, src := range srcs {
			if not, ok := src.(*Not); ok {
				unwrapNot(g, not)
			} else {
				NewNot(g, src)
			}
		}
		rewritten += len(srcs)
	}
}

// nextUniformMove returns the sources to flip for the first merge, in
// reverse postorder, that can be made uniform with a net gain.
func nextUniformMove(g *Graph) []Node {
	for _, n := range g.ReversePostorder() {
		if !mixedMerge(g, n, nil) {
			continue
		}
		ins := g.Ins(n)
		if sourceReachesTwice(ins) {
			continue
		}
		pref := FalseEdge
		for _, e := range ins {
			if _, ok := e.From.(*Not); ok && e.Kind == TrueEdge {
				pref = TrueEdge
				break
			}
		}
		for _, target := range []EdgeKind{pref, pref.Flip()} {
			flip := make(map[Node]bool)
			var srcs []Node
			for _, e := range ins {
				if e.Kind != target && !flip[e.From] {
					flip[e.From] = true
					srcs = append(srcs, e.From)
				}
			}
			if mixedGain(g, srcs, flip) > 0 {
				return srcs
			}
		}
	}
	return nil
}

// mixedGain is how many fewer merges are mixed once every source in flip
// has its legs swapped.
func mixedGain(g *Graph, srcs []Node, flip map[Node]bool) int {
	seen := make(map[Node]bool)
	gain := 0
	for _, src := range srcs {
		for _, e := range g.Outs(src) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			if mixedMerge(g, e.To, nil) {
				gain++
			}
			if mixedMerge(g, e.To, flip) {
				gain--
			}
		}
	}
	return gain
}

// mixedMerge reports whether n has two or more in-edges, all of them
// condition legs, in both colors. Legs from sources in flip count as
// swapped.
func mixedMerge(g *Graph, n Node, flip map[Node]bool) bool {
	ins := g.Ins(n)
	if len(ins) < 2 {
		return false
	}
	var nTrue, nFalse int
	for _, e := range ins {
		if !e.Kind.IsBoolean() {
			return false
		}
		k := e.Kind
		if flip[e.From] {
			k = k.Flip()
		}
		if k == TrueEdge {
			nTrue++
		} else {
			nFalse++
		}
	}
	return nTrue > 0 && nFalse > 0
}

// sourceReachesTwice reports whether one source sends both of its legs
// along ins. Such a merge can never be uniform.
func sourceReachesTwice(ins []Edge) bool {
	seen := make(map[Node]bool)
	for _, e := range ins {
		if e.Kind.IsBoolean() && seen[e.From] {
			return true
		}
		seen[e.From] = true
	}
	return false
}
