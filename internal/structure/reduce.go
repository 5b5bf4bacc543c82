package structure

import (
	"log/slog"
	"sort"
)

// Order selects how the driver walks the graph on each pass.
type Order uint8

const (
	// OrderRPO visits nodes in reverse postorder from Entry.
	OrderRPO Order = iota
	// OrderDomDepth visits the deepest nodes of the dominator tree first.
	OrderDomDepth
)

func (o Order) String() string {
	switch o {
	case OrderRPO:
		return "rpo"
	case OrderDomDepth:
		return "dom-depth"
	}
	return "unknown"
}

// ParseOrder maps "rpo" and "dom-depth" to an Order.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "", "rpo":
		return OrderRPO, true
	case "dom-depth":
		return OrderDomDepth, true
	}
	return 0, false
}

const (
	DefaultMaxSteps    = 1 << 20
	DefaultMaxTailSize = 8
)

// Options configures Reduce.
type Options struct {
	Patterns []Pattern // nil means DefaultPatterns
	Order    Order

	// MaxTailDuplications bounds how many return tails may be copied when
	// no pattern applies. Zero disables duplication.
	MaxTailDuplications int
	MaxTailSize         int // instructions; 0 means DefaultMaxTailSize
	MaxSteps            int // pattern applications; 0 means DefaultMaxSteps

	// Checked validates g after every rewrite and asserts that each
	// rewrite's anchor dominates the nodes it absorbs.
	Checked bool

	Logger  *slog.Logger
	OnApply func(kind Kind, n Node)
}

func (o Options) withDefaults() Options {
	if o.Patterns == nil {
		o.Patterns = DefaultPatterns()
	}
	if o.MaxTailSize <= 0 {
		o.MaxTailSize = DefaultMaxTailSize
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Result describes the outcome of Reduce.
type Result struct {
	// Structured is set when g reduced to Entry -> Root [-> Exit].
	Structured bool
	Root       Node
	// Residual lists the non-sentinel nodes left in g, by Start.
	Residual []Node

	Applied    map[Kind]int
	Steps      int
	Duplicated int
	Normalized int
	// Exhausted is set when MaxSteps stopped the reduction.
	Exhausted bool
}

// Reduce applies patterns to g until none matches. g is modified in place.
func Reduce(g *Graph, opts Options) Result {
	opts = opts.withDefaults()
	if opts.Checked {
		g.SetChecked(true)
		g.mustValidate("Reduce")
	}
	res := Result{Applied: make(map[Kind]int)}
	log := opts.Logger

	for {
		if res.Steps >= opts.MaxSteps {
			res.Exhausted = true
			log.Warn("step limit reached", "steps", res.Steps)
			break
		}
		res.Normalized += MakeUniformBooleanEdges(g)
		if p, n, ok := reduceOnce(g, opts); ok {
			res.Steps++
			res.Applied[p.kind]++
			log.Debug("apply", "pattern", p.kind.String(), "node", n.Name(), "step", res.Steps)
			if opts.OnApply != nil {
				opts.OnApply(p.kind, n)
			}
			continue
		}
		if res.Duplicated < opts.MaxTailDuplications {
			if dup := duplicateReturnTail(g, opts.MaxTailSize); dup != nil {
				res.Duplicated++
				log.Debug("duplicate tail", "node", dup.Name())
				continue
			}
		}
		break
	}

	res.Root, res.Structured = structuredRoot(g)
	for _, n := range g.Nodes() {
		if !isSentinel(n) {
			res.Residual = append(res.Residual, n)
		}
	}
	log.Debug("reduced", "structured", res.Structured, "steps", res.Steps, "residual", len(res.Residual))
	return res
}

// reduceOnce applies the first matching pattern at the first node that has
// one, in traversal order.
func reduceOnce(g *Graph, opts Options) (Pattern, Node, bool) {
	for _, n := range traversal(g, opts.Order) {
		if !g.Has(n) {
			continue
		}
		for _, p := range opts.Patterns {
			r := p.match(g, n)
			if r == nil {
				continue
			}
			if opts.Checked {
				assertDominance(g, p, r)
			}
			return p, p.commit(g, r), true
		}
	}
	return Pattern{}, nil, false
}

func traversal(g *Graph, order Order) []Node {
	rpo := g.ReversePostorder()
	if order != OrderDomDepth {
		return rpo
	}
	dom := Dominators(g)
	sort.SliceStable(rpo, func(i, j int) bool {
		return dom.Depth(rpo[i]) > dom.Depth(rpo[j])
	})
	return rpo
}

func assertDominance(g *Graph, p Pattern, r *rewrite) {
	dom := Dominators(g)
	if !dom.Reachable(r.header) {
		return
	}
	for _, m := range r.members {
		invariant(dom.Dominates(r.header, m), p.kind.String(),
			"header %s does not dominate %s", r.header.Name(), m.Name())
	}
}

// duplicateReturnTail copies one small tail that several predecessors reach
// and that only leaves the function. The copy goes to its last predecessor.
func duplicateReturnTail(g *Graph, maxSize int) *Duplicated {
	for _, n := range g.ReversePostorder() {
		if isSentinel(n) {
			continue
		}
		ins := g.Ins(n)
		if len(ins) < 2 || len(n.Instructions()) > maxSize {
			continue
		}
		outs := g.Outs(n)
		if len(outs) > 1 {
			continue
		}
		if len(outs) == 1 && (outs[0].Kind != AlwaysEdge || outs[0].To != Node(g.exit)) {
			continue
		}
		return DuplicateTail(g, ins[len(ins)-1])
	}
	return nil
}

// structuredRoot reports the single region left in g, if g is reduced.
func structuredRoot(g *Graph) (Node, bool) {
	if g.Len() != 3 {
		return nil, false
	}
	root, ok := singleAlways(g, g.entry)
	if !ok || isSentinel(root) {
		return nil, false
	}
	outs := g.Outs(root)
	switch {
	case len(outs) == 0:
	case len(outs) == 1 && outs[0].Kind == AlwaysEdge && outs[0].To == Node(g.exit):
	default:
		return nil, false
	}
	return root, true
}
