package structure

// Dominator tree construction follows Lengauer & Tarjan, "A fast algorithm
// for finding dominators in a flowgraph" (1979), with simple path
// compression. Vertices are numbered in DFS preorder from Entry; all working
// arrays are indexed by that number.

// DomTree is the dominator tree of the nodes reachable from Entry.
type DomTree struct {
	index    map[NodeID]int
	vertex   []Node
	idom     []int
	depth    []int
	children [][]int
	pre      []int
	post     []int
}

type ltState struct {
	parent   []int
	semi     []int
	ancestor []int
	label    []int
}

func (lt *ltState) compress(v int) {
	a := lt.ancestor[v]
	if lt.ancestor[a] < 0 {
		return
	}
	lt.compress(a)
	if lt.semi[lt.label[a]] < lt.semi[lt.label[v]] {
		lt.label[v] = lt.label[a]
	}
	lt.ancestor[v] = lt.ancestor[a]
}

func (lt *ltState) eval(v int) int {
	if lt.ancestor[v] < 0 {
		return v
	}
	lt.compress(v)
	return lt.label[v]
}

// Dominators computes the dominator tree of g rooted at Entry.
func Dominators(g *Graph) *DomTree {
	t := &DomTree{index: make(map[NodeID]int)}
	var parent []int

	// Step 1: DFS preorder numbering, successors in Outs order.
	var dfs func(n Node, p int)
	dfs = func(n Node, p int) {
		t.index[n.ID()] = len(t.vertex)
		t.vertex = append(t.vertex, n)
		parent = append(parent, p)
		me := len(t.vertex) - 1
		for _, e := range g.Outs(n) {
			if _, seen := t.index[e.To.ID()]; !seen {
				dfs(e.To, me)
			}
		}
	}
	dfs(g.Entry(), -1)

	n := len(t.vertex)
	lt := &ltState{
		parent:   parent,
		semi:     make([]int, n),
		ancestor: make([]int, n),
		label:    make([]int, n),
	}
	t.idom = make([]int, n)
	bucket := make([][]int, n)
	for i := range n {
		lt.semi[i] = i
		lt.ancestor[i] = -1
		lt.label[i] = i
		t.idom[i] = -1
	}

	for w := n - 1; w > 0; w-- {
		// Step 2: semidominators.
		for _, e := range g.Ins(t.vertex[w]) {
			v, ok := t.index[e.From.ID()]
			if !ok {
				continue
			}
			if u := lt.eval(v); lt.semi[u] < lt.semi[w] {
				lt.semi[w] = lt.semi[u]
			}
		}
		bucket[lt.semi[w]] = append(bucket[lt.semi[w]], w)
		p := lt.parent[w]
		lt.ancestor[w] = p

		// Step 3: implicit immediate dominators.
		for _, v := range bucket[p] {
			if u := lt.eval(v); lt.semi[u] < lt.semi[v] {
				t.idom[v] = u
			} else {
				t.idom[v] = p
			}
		}
		bucket[p] = nil
	}

	// Step 4: explicit immediate dominators, in preorder.
	t.depth = make([]int, n)
	t.children = make([][]int, n)
	for w := 1; w < n; w++ {
		if t.idom[w] != lt.semi[w] {
			t.idom[w] = t.idom[t.idom[w]]
		}
		t.depth[w] = t.depth[t.idom[w]] + 1
		t.children[t.idom[w]] = append(t.children[t.idom[w]], w)
	}

	t.pre = make([]int, n)
	t.post = make([]int, n)
	if n > 0 {
		var pre, post int
		t.number(0, &pre, &post)
	}
	return t
}

func (t *DomTree) number(v int, pre, post *int) {
	t.pre[v] = *pre
	*pre++
	for _, c := range t.children[v] {
		t.number(c, pre, post)
	}
	t.post[v] = *post
	*post++
}

func (t *DomTree) lookup(n Node) (int, bool) {
	if n == nil {
		return 0, false
	}
	i, ok := t.index[n.ID()]
	if !ok || t.vertex[i] != n {
		return 0, false
	}
	return i, true
}

// Reachable reports whether n was reachable from Entry.
func (t *DomTree) Reachable(n Node) bool {
	_, ok := t.lookup(n)
	return ok
}

// Idom returns the immediate dominator of n, or nil for Entry and
// unreachable nodes.
func (t *DomTree) Idom(n Node) Node {
	i, ok := t.lookup(n)
	if !ok || t.idom[i] < 0 {
		return nil
	}
	return t.vertex[t.idom[i]]
}

// Dominates reports whether a dominates b. Every node dominates itself.
func (t *DomTree) Dominates(a, b Node) bool {
	i, ok := t.lookup(a)
	if !ok {
		return false
	}
	j, ok := t.lookup(b)
	if !ok {
		return false
	}
	return t.pre[i] <= t.pre[j] && t.post[j] <= t.post[i]
}

// Depth returns the distance from Entry in the dominator tree, or -1.
func (t *DomTree) Depth(n Node) int {
	i, ok := t.lookup(n)
	if !ok {
		return -1
	}
	return t.depth[i]
}

// Children returns the nodes n immediately dominates.
func (t *DomTree) Children(n Node) []Node {
	i, ok := t.lookup(n)
	if !ok {
		return nil
	}
	out := make([]Node, len(t.children[i]))
	for k, c := range t.children[i] {
		out[k] = t.vertex[c]
	}
	return out
}

// Len returns the number of reachable nodes.
func (t *DomTree) Len() int { return len(t.vertex) }
