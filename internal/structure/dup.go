package structure

// Duplicated stands for a second copy of Inner in the graph. It has its own
// NodeID; every other query is answered by Inner.
type Duplicated struct {
	nodeHeader
	Inner Node
}

// NewDuplicated returns a detached copy marker for inner.
func NewDuplicated(inner Node) *Duplicated {
	return &Duplicated{Inner: inner}
}

func (n *Duplicated) Kind() Kind                    { return KindDuplicated }
func (n *Duplicated) Name() string                  { return "dup_" + n.Inner.Name() }
func (n *Duplicated) Start() uint64                 { return n.Inner.Start() }
func (n *Duplicated) Instructions() Listing         { return n.Inner.Instructions() }
func (n *Duplicated) ContainsAddress(a uint64) bool { return n.Inner.ContainsAddress(a) }
func (n *Duplicated) Dump(p *Printer)               { n.Inner.Dump(p) }

// DuplicateTail gives the predecessor of e a private copy of e.To. The copy
// inherits the out-edges of the original and e is moved onto it.
func DuplicateTail(g *Graph, e Edge) *Duplicated {
	invariant(g.HasEdge(e), "DuplicateTail", "edge %s is not in the graph", e)
	tail := e.To
	invariant(!isSentinel(tail), "DuplicateTail", "cannot duplicate %s", tail.Name())
	dup := NewDuplicated(tail)
	g.AddNode(dup)
	for _, out := range g.Outs(tail) {
		g.AddEdge(out.CloneTyped(dup, out.To))
	}
	g.RemoveEdge(e)
	g.AddEdge(e.CloneTyped(e.From, dup))
	if g.checked {
		g.mustValidate("DuplicateTail")
	}
	return dup
}
