package structure

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes indented pseudo-code. The first write error is kept and
// later writes are dropped.
type Printer struct {
	w      io.Writer
	depth  int
	indent string
	err    error
}

// NewPrinter returns a printer writing to w with a two-space indent.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: "  "}
}

// Err returns the first write error, if any.
func (p *Printer) Err() error { return p.err }

// Linef writes one indented line.
func (p *Printer) Linef(format string, args ...any) {
	if p.err != nil {
		return
	}
	line := strings.Repeat(p.indent, p.depth) + fmt.Sprintf(format, args...) + "\n"
	_, p.err = io.WriteString(p.w, line)
}

// Nested writes n one level deeper. A nil node writes nothing.
func (p *Printer) Nested(n Node) {
	if n == nil {
		return
	}
	p.depth++
	n.Dump(p)
	p.depth--
}

// Sprint renders n as pseudo-code.
func Sprint(n Node) string {
	var b strings.Builder
	n.Dump(NewPrinter(&b))
	return b.String()
}

// DumpGraph writes g: the root alone when g has been reduced to a single
// region, otherwise every node as a labelled region followed by its jumps.
// Labels are L_<start>; a node whose start is shared with another node, such
// as a duplicated tail, gets its NodeID appended.
func DumpGraph(w io.Writer, g *Graph) error {
	p := NewPrinter(w)
	if root, ok := structuredRoot(g); ok {
		root.Dump(p)
		return p.Err()
	}
	label := residualLabels(g)
	for _, n := range g.Nodes() {
		if isSentinel(n) {
			continue
		}
		p.Linef("%s:", label(n))
		p.Nested(n)
		p.depth++
		for _, e := range g.Outs(n) {
			switch e.Kind {
			case TrueEdge:
				p.Linef("if true goto %s", label(e.To))
			case FalseEdge:
				p.Linef("if false goto %s", label(e.To))
			default:
				p.Linef("goto %s", label(e.To))
			}
		}
		p.depth--
	}
	return p.Err()
}

func residualLabels(g *Graph) func(Node) string {
	starts := make(map[uint64]int)
	for _, n := range g.Nodes() {
		if !isSentinel(n) {
			starts[n.Start()]++
		}
	}
	return func(n Node) string {
		if _, ok := n.(*Exit); ok {
			return "exit"
		}
		if starts[n.Start()] > 1 {
			return fmt.Sprintf("L_%x_%d", n.Start(), n.ID())
		}
		return fmt.Sprintf("L_%x", n.Start())
	}
}

func dumpTerms(p *Printer, terms []Term, sep string) {
	for i, t := range terms {
		if i > 0 {
			p.Linef("%s", sep)
		}
		if t.Negated {
			p.Linef("!{")
			p.Nested(t.Cond)
			p.Linef("}")
			continue
		}
		t.Cond.Dump(p)
	}
}
