package structure

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceDiamond(t *testing.T) {
	f := diamond(t)
	res := Reduce(f.g, Options{Checked: true})
	require.True(t, res.Structured)

	seq, ok := res.Root.(*Sequence)
	require.True(t, ok, "root is %s", res.Root.Name())
	require.Len(t, seq.Children, 2)
	ie, ok := seq.Children[0].(*IfElse)
	require.True(t, ok)
	assert.Same(t, f.n("c"), ie.Cond)
	assert.Same(t, f.n("t"), ie.Then)
	assert.Same(t, f.n("f"), ie.Else)
	assert.Equal(t, []uint64{0x1000, 0x1010, 0x1020}, ie.Instructions().Addrs())
	assert.Same(t, f.n("m"), seq.Children[1])

	assert.Equal(t, 1, res.Applied[KindIfElse])
	assert.Equal(t, 1, res.Applied[KindSequence])
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, []Node{res.Root}, res.Residual)
	assert.Equal(t, []string{
		"entry -always-> seq_ifelse_bb_1000",
		"seq_ifelse_bb_1000 -always-> exit",
	}, arcs(f.g))
}

func TestReduceChain(t *testing.T) {
	f := build(t, "entry -> a", "a -> b", "b -> exit")
	res := Reduce(f.g, Options{})
	require.True(t, res.Structured)
	seq, ok := res.Root.(*Sequence)
	require.True(t, ok)
	assert.Equal(t, []Node{f.n("a"), f.n("b")}, seq.Children)
}

func TestReducePreTestLoop(t *testing.T) {
	f := build(t, "entry -> c", "c T-> body", "c F-> done", "body -> c", "done -> exit")
	res := Reduce(f.g, Options{Checked: true})
	require.True(t, res.Structured)
	seq := res.Root.(*Sequence)
	w, ok := seq.Children[0].(*While)
	require.True(t, ok)
	assert.False(t, w.Inverted)
	assert.Same(t, f.n("body"), w.Body)
	assert.Same(t, f.n("done"), seq.Children[1])
}

func TestReduceInvertedSelfLoop(t *testing.T) {
	f := build(t, "entry -> a", "a T-> exit", "a F-> a")
	res := Reduce(f.g, Options{Checked: true})
	require.True(t, res.Structured)
	w, ok := res.Root.(*While)
	require.True(t, ok)
	assert.True(t, w.Inverted)
}

func TestReduceNormalizesToAnd(t *testing.T) {
	f := build(t,
		"entry -> a",
		"a T-> b",
		"a F-> x",
		"b T-> x",
		"b F-> y",
		"x -> exit",
		"y -> exit",
	)
	res := Reduce(f.g, Options{Checked: true})
	require.True(t, res.Structured)
	assert.Equal(t, 1, res.Normalized)

	ie, ok := res.Root.(*IfElse)
	require.True(t, ok, "root is %s", res.Root.Name())
	and, ok := ie.Cond.(*And)
	require.True(t, ok)
	require.Len(t, and.Terms, 2)
	assert.Same(t, f.n("a"), and.Terms[0])
	not, ok := and.Terms[1].(*Not)
	require.True(t, ok)
	assert.Same(t, f.n("b"), not.Inner)
	assert.Same(t, f.n("y"), ie.Then)
	assert.Same(t, f.n("x"), ie.Else)
}

// A return tail reached from both arms of an if and from the join of a
// nested conditional. Nothing matches until the tail is copied.
func tailFixture(t *testing.T) *fixture {
	return build(t,
		"entry -> c0",
		"c0 T-> a",
		"c0 F-> b",
		"a T-> r",
		"a F-> m",
		"b -> m",
		"m -> r",
		"r -> exit",
	)
}

func TestReduceStuckWithoutDuplication(t *testing.T) {
	f := tailFixture(t)
	res := Reduce(f.g, Options{})
	assert.False(t, res.Structured)
	assert.Nil(t, res.Root)
	assert.Zero(t, res.Steps)
	assert.Len(t, res.Residual, 5)
}

func TestReduceDuplicatesReturnTails(t *testing.T) {
	f := tailFixture(t)
	res := Reduce(f.g, Options{MaxTailDuplications: 4, Checked: true})
	require.True(t, res.Structured)
	assert.Equal(t, 2, res.Duplicated)
	assert.Equal(t, []uint64{0x1000, 0x1010, 0x1020, 0x1030, 0x1040}, res.Root.Instructions().Addrs())
	_, ok := res.Root.(*IfElse)
	assert.True(t, ok)
}

func TestReduceTailSizeLimit(t *testing.T) {
	f := tailFixture(t)
	r := f.n("r")
	big := NewBlock(Listing{
		{Addr: 0x1030, Inst: op("r0")},
		{Addr: 0x1034, Inst: op("r1")},
		{Addr: 0x1038, Inst: op("r2")},
	}, 0x103c)
	f.g.ReplaceNode(r, big)
	res := Reduce(f.g, Options{MaxTailDuplications: 4, MaxTailSize: 2})
	assert.False(t, res.Structured)
	assert.Zero(t, res.Duplicated)
}

func TestReduceIrreducible(t *testing.T) {
	f := build(t, "entry -> c", "c T-> a", "c F-> b", "a -> b", "b -> a")
	res := Reduce(f.g, Options{Checked: true, MaxTailDuplications: 4})
	assert.False(t, res.Structured)
	assert.Len(t, res.Residual, 3)

	var buf bytes.Buffer
	require.NoError(t, DumpGraph(&buf, f.g))
	want := "L_1000:\n" +
		"  0x00001000  c\n" +
		"  if true goto L_1010\n" +
		"  if false goto L_1020\n" +
		"L_1010:\n" +
		"  0x00001010  a\n" +
		"  goto L_1020\n" +
		"L_1020:\n" +
		"  0x00001020  b\n" +
		"  goto L_1010\n"
	assert.Equal(t, want, buf.String())
}

func TestDumpGraphLabelsDuplicatedTails(t *testing.T) {
	f := build(t,
		"entry -> c",
		"c T-> a",
		"c F-> b",
		"a T-> b",
		"a F-> r",
		"b T-> a",
		"b F-> r",
		"r -> exit",
	)
	res := Reduce(f.g, Options{MaxTailDuplications: 4, Checked: true})
	require.False(t, res.Structured)
	require.Equal(t, 1, res.Duplicated)

	var buf bytes.Buffer
	require.NoError(t, DumpGraph(&buf, f.g))
	labels := map[string]bool{}
	var targets []string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "L_"):
			label := strings.TrimSuffix(line, ":")
			assert.False(t, labels[label], "label %s emitted twice", label)
			labels[label] = true
		case strings.Contains(line, "goto "):
			targets = append(targets, line[strings.LastIndex(line, " ")+1:])
		}
	}
	var tails int
	for label := range labels {
		if strings.HasPrefix(label, "L_1030_") {
			tails++
		}
	}
	assert.Equal(t, 2, tails, "original and copy of r:\n%s", buf.String())
	assert.True(t, labels["L_1000"])
	for _, target := range targets {
		assert.True(t, target == "exit" || labels[target], "goto %s has no label", target)
	}
}

func TestReduceStepLimit(t *testing.T) {
	f := diamond(t)
	res := Reduce(f.g, Options{MaxSteps: 1})
	assert.True(t, res.Exhausted)
	assert.Equal(t, 1, res.Steps)
	assert.False(t, res.Structured)
}

func TestReduceOrders(t *testing.T) {
	shapes := map[string][]string{
		"diamond":  {"entry -> c", "c T-> t", "c F-> f", "t -> m", "f -> m", "m -> exit"},
		"do while": {"entry -> p", "p -> b", "b -> c", "c T-> b", "c F-> x", "x -> exit"},
		"loop with if": {
			"entry -> c0", "c0 T-> done", "c0 F-> c1", "c1 T-> skip", "c1 F-> mv",
			"mv -> skip", "skip -> c0", "done -> exit",
		},
		"nested loops": {
			"entry -> h1", "h1 T-> h2", "h1 F-> out", "h2 T-> b", "h2 F-> l",
			"b -> h2", "l -> h1", "out -> exit",
		},
		"or": {
			"entry -> c0", "c0 T-> body", "c0 F-> c1", "c1 T-> body", "c1 F-> j",
			"body -> j", "j -> exit",
		},
		"spin": {"entry -> a", "a -> b", "b -> a"},
	}
	for name, shape := range shapes {
		for _, order := range []Order{OrderRPO, OrderDomDepth} {
			t.Run(name+"/"+order.String(), func(t *testing.T) {
				f := build(t, shape...)
				var applied int
				res := Reduce(f.g, Options{
					Order:   order,
					Checked: true,
					OnApply: func(Kind, Node) { applied++ },
				})
				require.True(t, res.Structured, "residual: %v", res.Residual)
				assert.Equal(t, res.Steps, applied)
				assert.Equal(t, f.next-0x1000, uint64(len(res.Root.Instructions()))*0x10)
			})
		}
	}
}

func TestReduceLogsSteps(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := diamond(t)
	Reduce(f.g, Options{Logger: log})
	out := buf.String()
	assert.Contains(t, out, "pattern=ifelse")
	assert.Contains(t, out, "pattern=seq")
	assert.Equal(t, 1, strings.Count(out, "msg=reduced"))
}

func TestReduceCustomPatterns(t *testing.T) {
	f := diamond(t)
	res := Reduce(f.g, Options{Patterns: []Pattern{SequencePattern}})
	assert.False(t, res.Structured)
	assert.Zero(t, res.Steps)
}

func TestParseOrder(t *testing.T) {
	for _, o := range []Order{OrderRPO, OrderDomDepth} {
		got, ok := ParseOrder(o.String())
		require.True(t, ok)
		assert.Equal(t, o, got)
	}
	got, ok := ParseOrder("")
	assert.True(t, ok)
	assert.Equal(t, OrderRPO, got)
	_, ok = ParseOrder("random")
	assert.False(t, ok)
}
