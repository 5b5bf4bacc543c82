package structure

func matchSequence(g *Graph, a Node) *rewrite {
	if isSentinel(a) {
		return nil
	}
	b, ok := singleAlways(g, a)
	if !ok || b == a || isSentinel(b) || inDegree(g, b) != 1 {
		return nil
	}
	for _, e := range g.Outs(b) {
		if e.To == a {
			return nil
		}
	}
	return &rewrite{
		header:  a,
		members: []Node{b},
		apply: func() Node {
			seq := &Sequence{Children: append(flattenSequence(a), flattenSequence(b)...)}
			bOuts := g.Outs(b)
			g.ReplaceNode(a, seq)
			g.RemoveNode(b)
			for _, e := range bOuts {
				g.AddEdge(e.CloneTyped(seq, e.To))
			}
			return seq
		},
	}
}

func flattenSequence(n Node) []Node {
	if s, ok := n.(*Sequence); ok {
		return append([]Node(nil), s.Children...)
	}
	return []Node{n}
}

// NewSequence merges a and its sole successor.
func NewSequence(g *Graph, a Node) *Sequence {
	return SequencePattern.mustApply(g, a, "NewSequence").(*Sequence)
}
