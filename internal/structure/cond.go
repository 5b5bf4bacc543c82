package structure

func matchIf(g *Graph, c Node) *rewrite {
	t, f, ok := condLegs(g, c)
	if !ok || t == f {
		return nil
	}
	try := func(body, common Node, inverted bool) *rewrite {
		if body == c || common == c || isSentinel(body) || inDegree(g, body) != 1 {
			return nil
		}
		if next, ok := singleAlways(g, body); !ok || next != common {
			return nil
		}
		return &rewrite{
			header:  c,
			members: []Node{body},
			apply: func() Node {
				n := &If{Cond: c, Body: body, Inverted: inverted}
				g.ReplaceNode(c, n)
				leg := FalseEdge
				if inverted {
					leg = TrueEdge
				}
				g.RemoveEdge(Edge{From: n, To: common, Kind: leg})
				g.RemoveNode(body)
				g.AddEdge(Edge{From: n, To: common, Kind: AlwaysEdge})
				return n
			},
		}
	}
	if r := try(t, f, false); r != nil {
		return r
	}
	return try(f, t, true)
}

// NewIf collapses the condition c and its one-sided body.
func NewIf(g *Graph, c Node) *If {
	return IfPattern.mustApply(g, c, "NewIf").(*If)
}

func matchIfElse(g *Graph, c Node) *rewrite {
	t, f, ok := condLegs(g, c)
	if !ok || t == f || t == c || f == c || isSentinel(t) || isSentinel(f) {
		return nil
	}
	if inDegree(g, t) != 1 || inDegree(g, f) != 1 {
		return nil
	}
	mt, ok := singleAlways(g, t)
	if !ok {
		return nil
	}
	if mf, ok := singleAlways(g, f); !ok || mf != mt {
		return nil
	}
	return &rewrite{
		header:  c,
		members: []Node{t, f},
		apply: func() Node {
			n := &IfElse{Cond: c, Then: t, Else: f}
			g.ReplaceNode(c, n)
			join := mt
			if join == c {
				join = n
			}
			g.RemoveNode(t)
			g.RemoveNode(f)
			g.AddEdge(Edge{From: n, To: join, Kind: AlwaysEdge})
			return n
		},
	}
}

// NewIfElse collapses the condition c and both of its arms.
func NewIfElse(g *Graph, c Node) *IfElse {
	return IfElsePattern.mustApply(g, c, "NewIfElse").(*IfElse)
}

func matchAnd(g *Graph, c0 Node) *rewrite {
	c1, sF, ok := condLegs(g, c0)
	if !ok || c1 == c0 || isSentinel(c1) || inDegree(g, c1) != 1 {
		return nil
	}
	sT, sF1, ok := condLegs(g, c1)
	if !ok || sF1 != sF {
		return nil
	}
	if sT == sF || sT == c0 || sT == c1 || sF == c1 {
		return nil
	}
	return &rewrite{
		header:  c0,
		members: []Node{c1},
		apply: func() Node {
			n := &And{Terms: append(flattenAnd(c0), flattenAnd(c1)...)}
			g.ReplaceNode(c0, n)
			g.RemoveNode(c1)
			g.AddEdge(Edge{From: n, To: sT, Kind: TrueEdge})
			return n
		},
	}
}

func flattenAnd(n Node) []Node {
	if a, ok := n.(*And); ok {
		return append([]Node(nil), a.Terms...)
	}
	return []Node{n}
}

// NewAnd merges the condition c0 with the condition on its True leg.
func NewAnd(g *Graph, c0 Node) *And {
	return AndPattern.mustApply(g, c0, "NewAnd").(*And)
}

// disjunction is a chain of conditions that all branch to one body on a hit
// and fall through to the next condition on a miss.
type disjunction struct {
	terms  []Term
	body   Node
	miss   Node // target of the last term's miss leg
	common Node // body's successor
}

// matchDisjunction returns every viable disjunction anchored at c0, longest
// chain first.
func matchDisjunction(g *Graph, c0 Node) []disjunction {
	t, f, ok := condLegs(g, c0)
	if !ok || t == f {
		return nil
	}
	var out []disjunction
	for _, head := range []Term{{Cond: c0}, {Cond: c0, Negated: true}} {
		body, miss := t, f
		if head.Negated {
			body, miss = f, t
		}
		if body == c0 || isSentinel(body) {
			continue
		}
		common, ok := singleAlways(g, body)
		if !ok || common == body {
			continue
		}
		terms := []Term{head}
		misses := []Node{miss}
		inChain := map[Node]bool{c0: true}
		for cur := miss; ; {
			if inChain[cur] || cur == body || isSentinel(cur) || inDegree(g, cur) != 1 {
				break
			}
			ct, cf, ok := condLegs(g, cur)
			if !ok || ct == cf {
				break
			}
			var next Node
			var neg bool
			switch body {
			case ct:
				next = cf
			case cf:
				next, neg = ct, true
			default:
			}
			if next == nil {
				break
			}
			terms = append(terms, Term{Cond: cur, Negated: neg})
			misses = append(misses, next)
			inChain[cur] = true
			cur = next
		}
		for k := len(terms); k >= 2; k-- {
			if inDegree(g, body) != k {
				continue
			}
			chain := make(map[Node]bool, k)
			for _, tm := range terms[:k] {
				chain[tm.Cond] = true
			}
			if chain[common] {
				continue
			}
			out = append(out, disjunction{
				terms:  append([]Term(nil), terms[:k]...),
				body:   body,
				miss:   misses[k-1],
				common: common,
			})
		}
	}
	return out
}

func (d disjunction) members(extra ...Node) []Node {
	var out []Node
	for _, t := range d.terms[1:] {
		out = append(out, t.Cond)
	}
	out = append(out, d.body)
	return append(out, extra...)
}

func (d disjunction) collapse(g *Graph, n Node, extra ...Node) {
	g.ReplaceNode(d.terms[0].Cond, n)
	for _, m := range d.members(extra...) {
		g.RemoveNode(m)
	}
	for _, e := range g.Outs(n) {
		g.RemoveEdge(e)
	}
	g.AddEdge(Edge{From: n, To: d.common, Kind: AlwaysEdge})
}

func matchDisjunctiveIf(g *Graph, c0 Node) *rewrite {
	for _, d := range matchDisjunction(g, c0) {
		if d.miss != d.common {
			continue
		}
		return &rewrite{
			header:  c0,
			members: d.members(),
			apply: func() Node {
				n := &DisjunctiveIf{Terms: d.terms, Body: d.body}
				d.collapse(g, n)
				return n
			},
		}
	}
	return nil
}

// NewDisjunctiveIf collapses the chain of conditions headed by c0 that share
// one body.
func NewDisjunctiveIf(g *Graph, c0 Node) *DisjunctiveIf {
	return DisjunctiveIfPattern.mustApply(g, c0, "NewDisjunctiveIf").(*DisjunctiveIf)
}

func matchDisjunctiveIfElse(g *Graph, c0 Node) *rewrite {
	for _, d := range matchDisjunction(g, c0) {
		fb := d.miss
		if fb == d.body || fb == d.common || isSentinel(fb) || inDegree(g, fb) != 1 {
			continue
		}
		if next, ok := singleAlways(g, fb); !ok || next != d.common {
			continue
		}
		return &rewrite{
			header:  c0,
			members: d.members(fb),
			apply: func() Node {
				n := &DisjunctiveIfElse{Terms: d.terms, Body: d.body, FalseBody: fb}
				d.collapse(g, n, fb)
				return n
			},
		}
	}
	return nil
}

// NewDisjunctiveIfElse collapses the chain of conditions headed by c0 with
// its shared body and the fall-through arm.
func NewDisjunctiveIfElse(g *Graph, c0 Node) *DisjunctiveIfElse {
	return DisjunctiveIfElsePattern.mustApply(g, c0, "NewDisjunctiveIfElse").(*DisjunctiveIfElse)
}
