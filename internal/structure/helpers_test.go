package structure

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// op is a test instruction printed as its mnemonic.
type op string

func (o op) String() string { return string(o) }

// fixture is a graph built from arc strings. Blocks get one instruction
// each, at 0x1000, 0x1010, ... in order of first mention.
type fixture struct {
	g     *Graph
	nodes map[string]Node
	next  uint64
}

// build parses arcs of the form "a -> b", "a T-> b" and "a F-> b". The
// names "entry" and "exit" refer to the sentinels.
func build(t *testing.T, arcs ...string) *fixture {
	t.Helper()
	f := &fixture{g: New(), nodes: map[string]Node{}, next: 0x1000}
	f.nodes["entry"] = f.g.Entry()
	f.nodes["exit"] = f.g.Exit()
	for _, arc := range arcs {
		parts := strings.Fields(arc)
		require.Len(t, parts, 3, "arc %q", arc)
		var kind EdgeKind
		switch parts[1] {
		case "->":
			kind = AlwaysEdge
		case "T->":
			kind = TrueEdge
		case "F->":
			kind = FalseEdge
		default:
			t.Fatalf("bad arrow in %q", arc)
		}
		from, to := f.node(parts[0]), f.node(parts[2])
		f.g.AddEdge(Edge{From: from, To: to, Kind: kind})
	}
	return f
}

// node returns the block named name, creating it on first use.
func (f *fixture) node(name string) Node {
	if n, ok := f.nodes[name]; ok {
		return n
	}
	b := NewBlock(Listing{{Addr: f.next, Inst: op(name)}}, f.next+4)
	f.next += 0x10
	f.g.AddNode(b)
	f.nodes[name] = b
	return b
}

// n returns an existing node by name.
func (f *fixture) n(name string) Node {
	n, ok := f.nodes[name]
	if !ok {
		panic(fmt.Sprintf("fixture has no node %q", name))
	}
	return n
}

// arcs renders the edge set of g sorted, for comparisons.
func arcs(g *Graph) []string {
	var out []string
	for _, n := range g.Nodes() {
		for _, e := range g.Outs(n) {
			out = append(out, e.String())
		}
	}
	return out
}

// requireInvariant runs fn and checks that it panics with an
// InvariantError raised by op.
func requireInvariant(t *testing.T, op string, fn func()) {
	t.Helper()
	var r any
	func() {
		defer func() { r = recover() }()
		fn()
	}()
	require.NotNil(t, r, "expected %s to panic", op)
	ie, ok := r.(*InvariantError)
	require.True(t, ok, "panic value %T: %v", r, r)
	require.Equal(t, op, ie.Op, ie.Error())
}

func diamond(t *testing.T) *fixture {
	return build(t,
		"entry -> c",
		"c T-> t",
		"c F-> f",
		"t -> m",
		"f -> m",
		"m -> exit",
	)
}
