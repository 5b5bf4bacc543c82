// Package structure recovers structured control flow from a basic-block CFG.
//
// A Graph holds nodes and typed edges. Pattern rewrites repeatedly collapse
// recognized idioms (sequences, conditionals, loops, short-circuit logic) into
// composite nodes until no pattern applies. Node identity is the NodeID the
// owning graph assigns on insertion; Start addresses are only descriptive.
package structure

import (
	"fmt"
	"sort"
)

// EdgeKind classifies a control transfer between two nodes.
type EdgeKind uint8

const (
	AlwaysEdge EdgeKind = iota // unconditional: fallthrough, jump, or construct exit
	TrueEdge                   // taken leg of a two-way conditional
	FalseEdge                  // not-taken leg of a two-way conditional
)

func (k EdgeKind) String() string {
	switch k {
	case AlwaysEdge:
		return "always"
	case TrueEdge:
		return "true"
	case FalseEdge:
		return "false"
	default:
		return fmt.Sprintf("EdgeKind(%d)", k)
	}
}

// IsBoolean reports whether k is one leg of a conditional.
func (k EdgeKind) IsBoolean() bool { return k == TrueEdge || k == FalseEdge }

// Flip swaps True and False. Always is returned unchanged.
func (k EdgeKind) Flip() EdgeKind {
	switch k {
	case TrueEdge:
		return FalseEdge
	case FalseEdge:
		return TrueEdge
	}
	return k
}

// visitRank orders out-edges for traversal: True, then False, then the rest.
func (k EdgeKind) visitRank() int {
	switch k {
	case TrueEdge:
		return 0
	case FalseEdge:
		return 1
	}
	return 2
}

// Edge is a directed, typed arc. Edges compare equal on (From, To, Kind).
type Edge struct {
	From Node
	To   Node
	Kind EdgeKind
}

// CloneTyped returns an edge of the same kind between new endpoints.
func (e Edge) CloneTyped(from, to Node) Edge {
	return Edge{From: from, To: to, Kind: e.Kind}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.From.Name(), e.Kind, e.To.Name())
}

// Graph owns a set of nodes and the edges between them.
// A Graph must not be used from more than one goroutine at a time.
type Graph struct {
	nodes   map[NodeID]Node
	edges   []Edge
	nextID  NodeID
	entry   *Entry
	exit    *Exit
	checked bool
}

// New returns a graph holding only the Entry and Exit sentinels.
func New() *Graph {
	g := &Graph{nodes: make(map[NodeID]Node)}
	g.entry = &Entry{}
	g.exit = &Exit{}
	g.AddNode(g.entry)
	g.AddNode(g.exit)
	return g
}

// Entry returns the entry sentinel.
func (g *Graph) Entry() *Entry { return g.entry }

// Exit returns the exit sentinel.
func (g *Graph) Exit() *Exit { return g.exit }

// SetChecked enables re-validation after every ReplaceNode and rewrite.
func (g *Graph) SetChecked(on bool) { g.checked = on }

// Checked reports whether validation after rewrites is enabled.
func (g *Graph) Checked() bool { return g.checked }

// Len returns the number of nodes, sentinels included.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Has reports whether n is a live member of g.
func (g *Graph) Has(n Node) bool {
	if n == nil {
		return false
	}
	h := n.header()
	if h.id == 0 || h.g != g {
		return false
	}
	return g.nodes[h.id] == n
}

// Node returns the member with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all members ordered by Start, then NodeID.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start() != out[j].Start() {
			return out[i].Start() < out[j].Start()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Edges returns a copy of the edge set.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// AddNode inserts n and assigns its NodeID.
func (g *Graph) AddNode(n Node) {
	h := n.header()
	invariant(h.g == nil, "AddNode", "%s already belongs to a graph", n.Name())
	g.nextID++
	h.id = g.nextID
	h.g = g
	g.nodes[h.id] = n
}

// RemoveNode deletes n and every edge touching it. n becomes detached.
func (g *Graph) RemoveNode(n Node) {
	invariant(g.Has(n), "RemoveNode", "%s is not in the graph", n.Name())
	invariant(n != Node(g.entry), "RemoveNode", "entry sentinel cannot be removed")
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.From != n && e.To != n {
			kept = append(kept, e)
		}
	}
	clearTail(g.edges, len(kept))
	g.edges = kept
	h := n.header()
	delete(g.nodes, h.id)
	h.id = 0
	h.g = nil
}

// ReplaceNode rewires every edge incident to old onto replacement, keeping
// edge kinds, then discards old. It is a no-op when old is not a member.
func (g *Graph) ReplaceNode(old, replacement Node) {
	if !g.Has(old) {
		return
	}
	invariant(old != Node(g.entry), "ReplaceNode", "entry sentinel cannot be replaced")
	g.AddNode(replacement)
	for i, e := range g.edges {
		if e.From == old {
			e.From = replacement
		}
		if e.To == old {
			e.To = replacement
		}
		g.edges[i] = e
	}
	g.RemoveNode(old)
	if g.checked {
		g.mustValidate("ReplaceNode")
	}
}

// AddEdge inserts e. Adding an edge that already exists is a no-op.
func (g *Graph) AddEdge(e Edge) {
	invariant(g.Has(e.From), "AddEdge", "source %s is not in the graph", e.From.Name())
	invariant(g.Has(e.To), "AddEdge", "target %s is not in the graph", e.To.Name())
	if g.HasEdge(e) {
		return
	}
	g.edges = append(g.edges, e)
}

// RemoveEdge deletes e, which must be present.
func (g *Graph) RemoveEdge(e Edge) {
	for i, have := range g.edges {
		if have == e {
			last := len(g.edges) - 1
			copy(g.edges[i:], g.edges[i+1:])
			g.edges[last] = Edge{}
			g.edges = g.edges[:last]
			return
		}
	}
	panic(&InvariantError{Op: "RemoveEdge", Msg: fmt.Sprintf("edge %s is not in the graph", e)})
}

// HasEdge reports whether e is in the edge set.
func (g *Graph) HasEdge(e Edge) bool {
	for _, have := range g.edges {
		if have == e {
			return true
		}
	}
	return false
}

// Ins returns the edges ending at n.
func (g *Graph) Ins(n Node) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == n {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return edgeLess(out[i].From, out[j].From, out[i].Kind, out[j].Kind)
	})
	return out
}

// Outs returns the edges leaving n: True first, then False, then the rest,
// ties broken by target Start.
func (g *Graph) Outs(n Node) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == n {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Kind.visitRank(), out[j].Kind.visitRank()
		if ri != rj {
			return ri < rj
		}
		return edgeLess(out[i].To, out[j].To, out[i].Kind, out[j].Kind)
	})
	return out
}

func edgeLess(a, b Node, ka, kb EdgeKind) bool {
	if a.Start() != b.Start() {
		return a.Start() < b.Start()
	}
	if a.ID() != b.ID() {
		return a.ID() < b.ID()
	}
	return ka < kb
}

// Validate checks the structural invariants of g.
func (g *Graph) Validate() error {
	touched := make(map[NodeID]bool, len(g.nodes))
	for _, e := range g.edges {
		if !g.Has(e.From) {
			return fmt.Errorf("structure: edge %s: source not in graph", e)
		}
		if !g.Has(e.To) {
			return fmt.Errorf("structure: edge %s: target not in graph", e)
		}
		if _, ok := e.To.(*Entry); ok {
			return fmt.Errorf("structure: edge %s enters the entry sentinel", e)
		}
		if _, ok := e.From.(*Exit); ok {
			return fmt.Errorf("structure: edge %s leaves the exit sentinel", e)
		}
		touched[e.From.ID()] = true
		touched[e.To.ID()] = true
	}
	for _, n := range g.Nodes() {
		if isSentinel(n) {
			continue
		}
		if !touched[n.ID()] {
			return fmt.Errorf("structure: node %s touches no edge", n.Name())
		}
		outs := g.Outs(n)
		var always, t, f int
		for _, e := range outs {
			switch e.Kind {
			case AlwaysEdge:
				always++
			case TrueEdge:
				t++
			case FalseEdge:
				f++
			}
		}
		switch {
		case t == 0 && f == 0 && always <= 1:
		case t == 1 && f == 1 && always == 0:
		default:
			return fmt.Errorf("structure: node %s has malformed outs (always=%d true=%d false=%d)",
				n.Name(), always, t, f)
		}
	}
	return nil
}

func (g *Graph) mustValidate(op string) {
	if err := g.Validate(); err != nil {
		panic(&InvariantError{Op: op, Msg: err.Error()})
	}
}

// ReversePostorder returns the nodes reachable from Entry so that every node
// precedes its successors except along back edges. Outs are visited True
// first, then False, then Always.
func (g *Graph) ReversePostorder() []Node {
	seen := make(map[NodeID]bool, len(g.nodes))
	post := make([]Node, 0, len(g.nodes))
	var visit func(n Node)
	visit = func(n Node) {
		seen[n.ID()] = true
		for _, e := range g.Outs(n) {
			if !seen[e.To.ID()] {
				visit(e.To)
			}
		}
		post = append(post, n)
	}
	visit(g.entry)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

func clearTail(s []Edge, from int) {
	for i := from; i < len(s); i++ {
		s[i] = Edge{}
	}
}
