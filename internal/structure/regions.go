package structure

import "math"

// Sequence runs its children in order.
type Sequence struct {
	nodeHeader
	Children []Node
}

// If runs Body when Cond holds, or when it fails if Inverted.
type If struct {
	nodeHeader
	Cond     Node
	Body     Node
	Inverted bool
}

// IfElse runs Then when Cond holds and Else otherwise.
type IfElse struct {
	nodeHeader
	Cond Node
	Then Node
	Else Node
}

// While is a pre-test loop. Body is nil when the condition loops to itself.
// Inverted means the loop continues while Cond fails.
type While struct {
	nodeHeader
	Cond     Node
	Body     Node
	Inverted bool
}

// DoWhile is a post-test loop.
type DoWhile struct {
	nodeHeader
	Body     Node
	Cond     Node
	Inverted bool
}

// WhileTrue is a loop without a condition.
type WhileTrue struct {
	nodeHeader
	Body Node
}

// And is a short-circuit conjunction of conditions, itself a condition.
type And struct {
	nodeHeader
	Terms []Node
}

// Term is one operand of a disjunction.
type Term struct {
	Cond    Node
	Negated bool
}

// DisjunctiveIf runs Body when any term holds.
type DisjunctiveIf struct {
	nodeHeader
	Terms []Term
	Body  Node
}

// DisjunctiveIfElse runs Body when any term holds and FalseBody otherwise.
type DisjunctiveIfElse struct {
	nodeHeader
	Terms     []Term
	Body      Node
	FalseBody Node
}

// Children returns the nodes directly enclosed by n, in evaluation order.
// Leaves and sentinels have none.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *Sequence:
		add(n.Children...)
	case *If:
		add(n.Cond, n.Body)
	case *IfElse:
		add(n.Cond, n.Then, n.Else)
	case *While:
		add(n.Cond, n.Body)
	case *DoWhile:
		add(n.Body, n.Cond)
	case *WhileTrue:
		add(n.Body)
	case *And:
		add(n.Terms...)
	case *DisjunctiveIf:
		for _, t := range n.Terms {
			add(t.Cond)
		}
		add(n.Body)
	case *DisjunctiveIfElse:
		for _, t := range n.Terms {
			add(t.Cond)
		}
		add(n.Body, n.FalseBody)
	case *Not:
		add(n.Inner)
	case *Duplicated:
		add(n.Inner)
	}
	return out
}

func lowestStart(parts []Node) uint64 {
	lo := uint64(math.MaxUint64)
	for _, p := range parts {
		if s := p.Start(); s < lo {
			lo = s
		}
	}
	return lo
}

func mergedListing(parts []Node) Listing {
	ls := make([]Listing, len(parts))
	for i, p := range parts {
		ls[i] = p.Instructions()
	}
	return mergeListings(ls...)
}

func anyContains(parts []Node, addr uint64) bool {
	for _, p := range parts {
		if p.ContainsAddress(addr) {
			return true
		}
	}
	return false
}

func (n *Sequence) Kind() Kind                    { return KindSequence }
func (n *Sequence) Name() string                  { return "seq_" + n.Children[0].Name() }
func (n *Sequence) Start() uint64                 { return lowestStart(Children(n)) }
func (n *Sequence) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *Sequence) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

func (n *Sequence) Dump(p *Printer) {
	for _, c := range n.Children {
		c.Dump(p)
	}
}

func (n *If) Kind() Kind                    { return KindIf }
func (n *If) Name() string                  { return "if_" + n.Cond.Name() }
func (n *If) Start() uint64                 { return lowestStart(Children(n)) }
func (n *If) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *If) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

// Dump prints an inverted If with its condition wrapped in !{ }.
func (n *If) Dump(p *Printer) {
	p.Linef("if{")
	if n.Inverted {
		p.depth++
		p.Linef("!{")
		p.Nested(n.Cond)
		p.Linef("}")
		p.depth--
	} else {
		p.Nested(n.Cond)
	}
	p.Linef("} {")
	p.Nested(n.Body)
	p.Linef("}")
}

func (n *IfElse) Kind() Kind                    { return KindIfElse }
func (n *IfElse) Name() string                  { return "ifelse_" + n.Cond.Name() }
func (n *IfElse) Start() uint64                 { return lowestStart(Children(n)) }
func (n *IfElse) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *IfElse) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

func (n *IfElse) Dump(p *Printer) {
	p.Linef("if{")
	p.Nested(n.Cond)
	p.Linef("} {")
	p.Nested(n.Then)
	p.Linef("} else {")
	p.Nested(n.Else)
	p.Linef("}")
}

func (n *While) Kind() Kind                    { return KindWhile }
func (n *While) Name() string                  { return "while_" + n.Cond.Name() }
func (n *While) Start() uint64                 { return lowestStart(Children(n)) }
func (n *While) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *While) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

func (n *While) Dump(p *Printer) {
	if n.Inverted {
		p.Linef("while_not{")
	} else {
		p.Linef("while{")
	}
	p.Nested(n.Cond)
	p.Linef("}{")
	p.Nested(n.Body)
	p.Linef("}")
}

func (n *DoWhile) Kind() Kind                    { return KindDoWhile }
func (n *DoWhile) Name() string                  { return "dowhile_" + n.Body.Name() }
func (n *DoWhile) Start() uint64                 { return lowestStart(Children(n)) }
func (n *DoWhile) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *DoWhile) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

func (n *DoWhile) Dump(p *Printer) {
	p.Linef("do {")
	p.Nested(n.Body)
	if n.Inverted {
		p.Linef("} while_not{")
	} else {
		p.Linef("} while{")
	}
	p.Nested(n.Cond)
	p.Linef("}")
}

func (n *WhileTrue) Kind() Kind                    { return KindWhileTrue }
func (n *WhileTrue) Name() string                  { return "whiletrue_" + n.Body.Name() }
func (n *WhileTrue) Start() uint64                 { return n.Body.Start() }
func (n *WhileTrue) Instructions() Listing         { return n.Body.Instructions() }
func (n *WhileTrue) ContainsAddress(a uint64) bool { return n.Body.ContainsAddress(a) }

func (n *WhileTrue) Dump(p *Printer) {
	p.Linef("while(true) {")
	p.Nested(n.Body)
	p.Linef("}")
}

func (n *And) Kind() Kind                    { return KindAnd }
func (n *And) Name() string                  { return "and_" + n.Terms[0].Name() }
func (n *And) Start() uint64                 { return lowestStart(n.Terms) }
func (n *And) Instructions() Listing         { return mergedListing(n.Terms) }
func (n *And) ContainsAddress(a uint64) bool { return anyContains(n.Terms, a) }

func (n *And) Dump(p *Printer) {
	for i, t := range n.Terms {
		if i > 0 {
			p.Linef("&&")
		}
		t.Dump(p)
	}
}

func (n *DisjunctiveIf) Kind() Kind                    { return KindDisjunctiveIf }
func (n *DisjunctiveIf) Name() string                  { return "disjif_" + n.Terms[0].Cond.Name() }
func (n *DisjunctiveIf) Start() uint64                 { return lowestStart(Children(n)) }
func (n *DisjunctiveIf) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *DisjunctiveIf) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

func (n *DisjunctiveIf) Dump(p *Printer) {
	p.Linef("if{")
	p.depth++
	dumpTerms(p, n.Terms, "||")
	p.depth--
	p.Linef("} {")
	p.Nested(n.Body)
	p.Linef("}")
}

func (n *DisjunctiveIfElse) Kind() Kind { return KindDisjunctiveIfElse }
func (n *DisjunctiveIfElse) Name() string {
	return "disjifelse_" + n.Terms[0].Cond.Name()
}
func (n *DisjunctiveIfElse) Start() uint64                 { return lowestStart(Children(n)) }
func (n *DisjunctiveIfElse) Instructions() Listing         { return mergedListing(Children(n)) }
func (n *DisjunctiveIfElse) ContainsAddress(a uint64) bool { return anyContains(Children(n), a) }

func (n *DisjunctiveIfElse) Dump(p *Printer) {
	p.Linef("if{")
	p.depth++
	dumpTerms(p, n.Terms, "||")
	p.depth--
	p.Linef("} {")
	p.Nested(n.Body)
	p.Linef("} else {")
	p.Nested(n.FalseBody)
	p.Linef("}")
}
