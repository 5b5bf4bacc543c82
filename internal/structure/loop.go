package structure

func matchWhile(g *Graph, c Node) *rewrite {
	t, f, ok := condLegs(g, c)
	if !ok || t == f {
		return nil
	}
	try := func(loop, exit Node, inverted bool) *rewrite {
		if exit == c {
			return nil
		}
		var body Node
		if loop != c {
			if isSentinel(loop) || inDegree(g, loop) != 1 {
				return nil
			}
			if back, ok := singleAlways(g, loop); !ok || back != c {
				return nil
			}
			body = loop
		}
		r := &rewrite{
			header: c,
			apply: func() Node {
				n := &While{Cond: c, Body: body, Inverted: inverted}
				g.ReplaceNode(c, n)
				for _, e := range g.Outs(n) {
					g.RemoveEdge(e)
				}
				if body != nil {
					g.RemoveNode(body)
				}
				g.AddEdge(Edge{From: n, To: exit, Kind: AlwaysEdge})
				return n
			},
		}
		if body != nil {
			r.members = []Node{body}
		}
		return r
	}
	if r := try(t, f, false); r != nil {
		return r
	}
	return try(f, t, true)
}

// NewWhile collapses the pre-test loop headed by condition c.
func NewWhile(g *Graph, c Node) *While {
	return WhilePattern.mustApply(g, c, "NewWhile").(*While)
}

func matchDoWhile(g *Graph, b Node) *rewrite {
	if isSentinel(b) {
		return nil
	}
	c, ok := singleAlways(g, b)
	if !ok || c == b || isSentinel(c) || inDegree(g, c) != 1 {
		return nil
	}
	t, f, ok := condLegs(g, c)
	if !ok || t == f {
		return nil
	}
	var exit Node
	var inverted bool
	switch b {
	case t:
		exit = f
	case f:
		exit, inverted = t, true
	default:
		return nil
	}
	if exit == c {
		return nil
	}
	return &rewrite{
		header:  b,
		members: []Node{c},
		apply: func() Node {
			n := &DoWhile{Body: b, Cond: c, Inverted: inverted}
			g.ReplaceNode(b, n)
			g.RemoveNode(c)
			g.AddEdge(Edge{From: n, To: exit, Kind: AlwaysEdge})
			return n
		},
	}
}

// NewDoWhile collapses body b and the condition that loops back to it.
func NewDoWhile(g *Graph, b Node) *DoWhile {
	return DoWhilePattern.mustApply(g, b, "NewDoWhile").(*DoWhile)
}

func matchWhileTrue(g *Graph, n Node) *rewrite {
	if isSentinel(n) {
		return nil
	}
	next, ok := singleAlways(g, n)
	if !ok {
		return nil
	}
	if next == n {
		return &rewrite{
			header: n,
			apply: func() Node {
				wt := &WhileTrue{Body: n}
				g.ReplaceNode(n, wt)
				g.RemoveEdge(Edge{From: wt, To: wt, Kind: AlwaysEdge})
				return wt
			},
		}
	}
	// Two blocks jumping to each other.
	if isSentinel(next) || inDegree(g, next) != 1 {
		return nil
	}
	if back, ok := singleAlways(g, next); !ok || back != n {
		return nil
	}
	return &rewrite{
		header:  n,
		members: []Node{next},
		apply: func() Node {
			body := &Sequence{Children: append(flattenSequence(n), flattenSequence(next)...)}
			wt := &WhileTrue{Body: body}
			g.ReplaceNode(n, wt)
			g.RemoveNode(next)
			return wt
		},
	}
}

// NewWhileTrue wraps the unconditional cycle at n.
func NewWhileTrue(g *Graph, n Node) *WhileTrue {
	return WhileTruePattern.mustApply(g, n, "NewWhileTrue").(*WhileTrue)
}
