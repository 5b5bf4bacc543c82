package structure

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencePattern(t *testing.T) {
	f := build(t, "entry -> a", "a -> b", "b -> c", "c -> exit")
	f.g.SetChecked(true)

	s := NewSequence(f.g, f.n("a"))
	assert.Equal(t, []Node{f.n("a"), f.n("b")}, s.Children)
	assert.Equal(t, []string{
		"entry -always-> seq_bb_1000",
		"seq_bb_1000 -always-> bb_1020",
		"bb_1020 -always-> exit",
	}, arcs(f.g))

	s2 := NewSequence(f.g, s)
	require.Len(t, s2.Children, 3, "nested sequences are flattened")
	assert.Equal(t, []uint64{0x1000, 0x1010, 0x1020}, s2.Instructions().Addrs())
	assert.False(t, f.g.Has(s))
}

func TestSequenceRejects(t *testing.T) {
	tests := []struct {
		name string
		arcs []string
	}{
		{"shared successor", []string{"entry -> a", "a -> b", "c -> b", "b -> exit"}},
		{"successor loops back", []string{"entry -> a", "a -> b", "b T-> a", "b F-> exit"}},
		{"self loop", []string{"entry -> a", "a -> a"}},
		{"into exit", []string{"entry -> a", "a -> exit"}},
		{"conditional", []string{"entry -> a", "a T-> b", "a F-> exit", "b -> exit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := build(t, tt.arcs...)
			assert.False(t, SequencePattern.IsCandidate(f.g, f.n("a")))
			_, ok := SequencePattern.TryApply(f.g, f.n("a"))
			assert.False(t, ok)
		})
	}
}

func TestSequenceAssociative(t *testing.T) {
	chain := []string{"entry -> a", "a -> b", "b -> c", "c -> exit"}

	left := build(t, chain...)
	ab := NewSequence(left.g, left.n("a"))
	abc := NewSequence(left.g, ab)

	right := build(t, chain...)
	bc := NewSequence(right.g, right.n("b"))
	abc2 := NewSequence(right.g, right.n("a"))
	require.False(t, right.g.Has(bc))
	require.Len(t, abc2.Children, 3)

	assert.Empty(t, cmp.Diff(abc.Instructions().Addrs(), abc2.Instructions().Addrs()))
	assert.Equal(t, Sprint(abc), Sprint(abc2))
}

func TestNewSequencePanicsOnMismatch(t *testing.T) {
	f := diamond(t)
	requireInvariant(t, "NewSequence", func() { NewSequence(f.g, f.n("c")) })
	requireInvariant(t, "NewSequence", func() {
		NewSequence(f.g, NewBlock(Listing{{Addr: 0x9000, Inst: op("x")}}, 0x9004))
	})
}

func TestIfPattern(t *testing.T) {
	f := build(t, "entry -> c", "c T-> b", "c F-> j", "b -> j", "j -> exit")
	n := NewIf(f.g, f.n("c"))
	assert.False(t, n.Inverted)
	assert.Same(t, f.n("b"), n.Body)
	assert.Equal(t, []Edge{{From: n, To: f.n("j"), Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.NoError(t, f.g.Validate())
	assert.Equal(t, "if{\n  0x00001000  c\n} {\n  0x00001010  b\n}\n", Sprint(n))
}

func TestIfPatternInverted(t *testing.T) {
	f := build(t, "entry -> c", "c T-> j", "c F-> b", "b -> j", "j -> exit")
	n := NewIf(f.g, f.n("c"))
	assert.True(t, n.Inverted)
	assert.Same(t, f.n("b"), n.Body)
	assert.Equal(t, []Edge{{From: n, To: f.n("j"), Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.Equal(t, "if{\n  !{\n    0x00001000  c\n  }\n} {\n  0x00001020  b\n}\n", Sprint(n))
}

func TestIfRejectsSharedBody(t *testing.T) {
	f := build(t, "entry -> c", "c T-> b", "c F-> j", "b -> j", "j -> exit", "x -> b")
	assert.False(t, IfPattern.IsCandidate(f.g, f.n("c")))
}

func TestIfElsePattern(t *testing.T) {
	f := diamond(t)
	f.g.SetChecked(true)
	n := NewIfElse(f.g, f.n("c"))
	assert.Same(t, f.n("c"), n.Cond)
	assert.Same(t, f.n("t"), n.Then)
	assert.Same(t, f.n("f"), n.Else)
	assert.Equal(t, []Edge{{From: n, To: f.n("m"), Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.Equal(t, []uint64{0x1000, 0x1010, 0x1020}, n.Instructions().Addrs())
	assert.True(t, n.ContainsAddress(0x1010))
	assert.False(t, n.ContainsAddress(0x1030))
}

func TestIfElseJoinAtCondition(t *testing.T) {
	f := build(t, "entry -> c", "c T-> t", "c F-> e", "t -> c", "e -> c")
	n := NewIfElse(f.g, f.n("c"))
	assert.Equal(t, []Edge{{From: n, To: n, Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.NoError(t, f.g.Validate())
}

func TestIfElseRejectsDifferentJoins(t *testing.T) {
	f := build(t, "entry -> c", "c T-> t", "c F-> e", "t -> exit", "e -> j", "j -> exit")
	assert.False(t, IfElsePattern.IsCandidate(f.g, f.n("c")))
	requireInvariant(t, "NewIfElse", func() { NewIfElse(f.g, f.n("c")) })
}

// Pre-test loop: C --True--> Body --Always--> C, C --False--> Done.
func TestWhilePattern(t *testing.T) {
	f := build(t, "entry -> c", "c T-> body", "c F-> done", "body -> c", "done -> exit")
	f.g.SetChecked(true)
	require.True(t, WhilePattern.IsCandidate(f.g, f.n("c")))
	assert.False(t, DoWhilePattern.IsCandidate(f.g, f.n("c")))

	n := NewWhile(f.g, f.n("c"))
	assert.False(t, n.Inverted)
	assert.Same(t, f.n("c"), n.Cond)
	assert.Same(t, f.n("body"), n.Body)
	assert.Equal(t, []Edge{{From: n, To: f.n("done"), Kind: AlwaysEdge}}, f.g.Outs(n))
}

// Self loop on the False leg: A --True--> Exit, A --False--> A.
func TestWhileInvertedSelfLoop(t *testing.T) {
	f := build(t, "entry -> a", "a T-> exit", "a F-> a")
	n := NewWhile(f.g, f.n("a"))
	assert.True(t, n.Inverted)
	assert.Nil(t, n.Body)
	assert.Equal(t, []Edge{{From: n, To: f.g.Exit(), Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.Equal(t, "while_not{\n  0x00001000  a\n}{\n}\n", Sprint(n))
}

func TestDoWhilePattern(t *testing.T) {
	f := build(t, "entry -> b", "b -> c", "c T-> b", "c F-> x", "x -> exit")
	f.g.SetChecked(true)
	require.True(t, DoWhilePattern.IsCandidate(f.g, f.n("b")))
	assert.False(t, WhilePattern.IsCandidate(f.g, f.n("b")))
	assert.False(t, WhilePattern.IsCandidate(f.g, f.n("c")))
	assert.False(t, DoWhilePattern.IsCandidate(f.g, f.n("c")))

	n := NewDoWhile(f.g, f.n("b"))
	assert.False(t, n.Inverted)
	assert.Same(t, f.n("c"), n.Cond)
	assert.Equal(t, []Edge{{From: n, To: f.n("x"), Kind: AlwaysEdge}}, f.g.Outs(n))
}

func TestDoWhileInverted(t *testing.T) {
	f := build(t, "entry -> b", "b -> c", "c T-> x", "c F-> b", "x -> exit")
	n := NewDoWhile(f.g, f.n("b"))
	assert.True(t, n.Inverted)
	assert.Equal(t, "do {\n  0x00001000  b\n} while_not{\n  0x00001010  c\n}\n", Sprint(n))
}

func TestWhileAndDoWhileExclusive(t *testing.T) {
	shapes := [][]string{
		{"entry -> c", "c T-> body", "c F-> done", "body -> c", "done -> exit"},
		{"entry -> body", "body -> c", "c T-> body", "c F-> done", "done -> exit"},
		{"entry -> c", "c T-> exit", "c F-> c"},
		{"entry -> c", "c T-> c", "c F-> done", "done -> exit"},
	}
	for _, shape := range shapes {
		f := build(t, shape...)
		for _, n := range f.g.Nodes() {
			w := WhilePattern.IsCandidate(f.g, n)
			d := DoWhilePattern.IsCandidate(f.g, n)
			assert.False(t, w && d, "%v: both loop shapes match at %s", shape, n.Name())
		}
	}
}

func TestWhileTrueSelfLoop(t *testing.T) {
	f := build(t, "entry -> a", "a -> a")
	n := NewWhileTrue(f.g, f.n("a"))
	assert.Empty(t, f.g.Outs(n))
	assert.Equal(t, "while(true) {\n  0x00001000  a\n}\n", Sprint(n))
}

func TestWhileTrueTwoBlockCycle(t *testing.T) {
	f := build(t, "entry -> a", "a -> b", "b -> a")
	require.False(t, SequencePattern.IsCandidate(f.g, f.n("a")))
	n := NewWhileTrue(f.g, f.n("a"))
	body, ok := n.Body.(*Sequence)
	require.True(t, ok)
	assert.Equal(t, []Node{f.n("a"), f.n("b")}, body.Children)
	assert.Empty(t, f.g.Outs(n))
	assert.NoError(t, f.g.Validate())
}

// Short-circuit AND: c0 --True--> c1, c0 --False--> X, c1 --True--> Y,
// c1 --False--> X.
func TestAndPattern(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> c1",
		"c0 F-> x",
		"c1 T-> y",
		"c1 F-> x",
		"x -> exit",
		"y -> exit",
	)
	f.g.SetChecked(true)
	n := NewAnd(f.g, f.n("c0"))
	assert.Equal(t, []Node{f.n("c0"), f.n("c1")}, n.Terms)
	assert.Equal(t, []Edge{
		{From: n, To: f.n("y"), Kind: TrueEdge},
		{From: n, To: f.n("x"), Kind: FalseEdge},
	}, f.g.Outs(n))
	assert.Equal(t, "0x00001000  c0\n&&\n0x00001010  c1\n", Sprint(n))
}

func TestAndFlattens(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> c1",
		"c0 F-> x",
		"c1 T-> c2",
		"c1 F-> x",
		"c2 T-> y",
		"c2 F-> x",
		"x -> exit",
		"y -> exit",
	)
	// c1 && c2 first, then c0 && (c1 && c2).
	inner := NewAnd(f.g, f.n("c1"))
	outer := NewAnd(f.g, f.n("c0"))
	assert.Len(t, outer.Terms, 3)
	assert.False(t, f.g.Has(inner))
	assert.Equal(t, "and_bb_1000", outer.Name())
}

// The shared False target may be c0 itself: the conjunction then loops on
// failure.
func TestAndFalseLegBackToFirstTerm(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> c1",
		"c0 F-> c0",
		"c1 T-> out",
		"c1 F-> c0",
		"out -> exit",
	)
	f.g.SetChecked(true)
	require.True(t, AndPattern.IsCandidate(f.g, f.n("c0")))
	n := NewAnd(f.g, f.n("c0"))
	assert.Equal(t, []Node{f.n("c0"), f.n("c1")}, n.Terms)
	assert.Equal(t, []Edge{
		{From: n, To: f.n("out"), Kind: TrueEdge},
		{From: n, To: n, Kind: FalseEdge},
	}, f.g.Outs(n))
	assert.NoError(t, f.g.Validate())
}

func TestAndRejectsDifferentFalseTargets(t *testing.T) {
	f := build(t, "entry -> c0", "c0 T-> c1", "c0 F-> x", "c1 T-> y", "c1 F-> z",
		"x -> exit", "y -> exit", "z -> exit")
	assert.False(t, AndPattern.IsCandidate(f.g, f.n("c0")))
}

// c0 || c1 -> body, both fall through to j.
func TestDisjunctiveIf(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> body",
		"c0 F-> c1",
		"c1 T-> body",
		"c1 F-> j",
		"body -> j",
		"j -> exit",
	)
	f.g.SetChecked(true)
	n := NewDisjunctiveIf(f.g, f.n("c0"))
	assert.Equal(t, []Term{{Cond: f.n("c0")}, {Cond: f.n("c1")}}, n.Terms)
	assert.Same(t, f.n("body"), n.Body)
	assert.Equal(t, []Edge{{From: n, To: f.n("j"), Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.Equal(t, 3, len(n.Instructions()))
}

func TestDisjunctiveIfNegatedTerm(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> body",
		"c0 F-> c1",
		"c1 T-> j",
		"c1 F-> body",
		"body -> j",
		"j -> exit",
	)
	n := NewDisjunctiveIf(f.g, f.n("c0"))
	assert.Equal(t, []Term{{Cond: f.n("c0")}, {Cond: f.n("c1"), Negated: true}}, n.Terms)
	want := "if{\n" +
		"  0x00001000  c0\n" +
		"  ||\n" +
		"  !{\n" +
		"    0x00001020  c1\n" +
		"  }\n" +
		"} {\n" +
		"  0x00001010  body\n" +
		"}\n"
	assert.Equal(t, want, Sprint(n))
}

func TestDisjunctiveIfThreeTerms(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> body",
		"c0 F-> c1",
		"c1 T-> body",
		"c1 F-> c2",
		"c2 T-> body",
		"c2 F-> j",
		"body -> j",
		"j -> exit",
	)
	n := NewDisjunctiveIf(f.g, f.n("c0"))
	assert.Len(t, n.Terms, 3)
	assert.NoError(t, f.g.Validate())
}

func TestDisjunctiveIfElse(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> body",
		"c0 F-> c1",
		"c1 T-> body",
		"c1 F-> other",
		"body -> j",
		"other -> j",
		"j -> exit",
	)
	f.g.SetChecked(true)
	assert.False(t, DisjunctiveIfPattern.IsCandidate(f.g, f.n("c0")))
	n := NewDisjunctiveIfElse(f.g, f.n("c0"))
	assert.Same(t, f.n("body"), n.Body)
	assert.Same(t, f.n("other"), n.FalseBody)
	assert.Equal(t, []Edge{{From: n, To: f.n("j"), Kind: AlwaysEdge}}, f.g.Outs(n))
	assert.Equal(t, []uint64{0x1000, 0x1010, 0x1020, 0x1030}, n.Instructions().Addrs())
}

func TestDisjunctionRejectsExtraEntry(t *testing.T) {
	f := build(t,
		"entry -> c0",
		"c0 T-> body",
		"c0 F-> c1",
		"c1 T-> body",
		"c1 F-> j",
		"body -> j",
		"j -> exit",
		"x -> body",
	)
	assert.False(t, DisjunctiveIfPattern.IsCandidate(f.g, f.n("c0")))
	assert.False(t, DisjunctiveIfElsePattern.IsCandidate(f.g, f.n("c0")))
}

func TestPatternByName(t *testing.T) {
	for _, p := range DefaultPatterns() {
		got, ok := PatternByName(p.String())
		require.True(t, ok, p.String())
		assert.Equal(t, p.Kind(), got.Kind())
	}
	_, ok := PatternByName("switch")
	assert.False(t, ok)
}

func TestTryApplyDetachedNode(t *testing.T) {
	f := diamond(t)
	stray := NewBlock(Listing{{Addr: 0x9000, Inst: op("x")}}, 0x9004)
	for _, p := range DefaultPatterns() {
		_, ok := p.TryApply(f.g, stray)
		assert.False(t, ok, p.String())
	}
}
