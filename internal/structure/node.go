package structure

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrEmptyFunction is returned when ingesting a CFG without blocks.
var ErrEmptyFunction = errors.New("structure: function has no blocks")

// NodeID is the graph-assigned membership key of a node. Zero means detached.
type NodeID int

// Kind tags the concrete type of a Node.
type Kind uint8

const (
	KindEntry Kind = iota
	KindExit
	KindBlock
	KindNot
	KindDuplicated
	KindSequence
	KindIf
	KindIfElse
	KindWhile
	KindDoWhile
	KindWhileTrue
	KindAnd
	KindDisjunctiveIf
	KindDisjunctiveIfElse
)

var kindNames = [...]string{
	KindEntry:             "entry",
	KindExit:              "exit",
	KindBlock:             "bb",
	KindNot:               "not",
	KindDuplicated:        "dup",
	KindSequence:          "seq",
	KindIf:                "if",
	KindIfElse:            "ifelse",
	KindWhile:             "while",
	KindDoWhile:           "dowhile",
	KindWhileTrue:         "whiletrue",
	KindAnd:               "and",
	KindDisjunctiveIf:     "disjif",
	KindDisjunctiveIfElse: "disjifelse",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Node is a single-entry region of code. The set of implementations is closed
// to this package.
type Node interface {
	// ID is the membership key in the owning graph; 0 when detached.
	ID() NodeID
	Kind() Kind
	// Name is a readable identifier derived from the node's contents.
	Name() string
	// Start is the lowest instruction address represented.
	Start() uint64
	// Instructions lists every enclosed instruction in address order.
	Instructions() Listing
	ContainsAddress(addr uint64) bool
	// Dump writes the node as indented pseudo-code.
	Dump(p *Printer)

	header() *nodeHeader
}

type nodeHeader struct {
	id NodeID
	g  *Graph
}

func (h *nodeHeader) ID() NodeID          { return h.id }
func (h *nodeHeader) header() *nodeHeader { return h }

// Instruction is an opaque decoded instruction.
type Instruction interface {
	String() string
}

// Line is one instruction keyed by its address.
type Line struct {
	Addr uint64
	Inst Instruction
}

// Listing is an address-ordered instruction sequence.
type Listing []Line

// Addrs returns the addresses of l in order.
func (l Listing) Addrs() []uint64 {
	out := make([]uint64, len(l))
	for i, ln := range l {
		out[i] = ln.Addr
	}
	return out
}

// mergeListings combines listings into one ordered by address. An address
// seen more than once (a duplicated tail) is kept once.
func mergeListings(parts ...Listing) Listing {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make(Listing, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	dedup := out[:0]
	for i, ln := range out {
		if i > 0 && ln.Addr == out[i-1].Addr {
			continue
		}
		dedup = append(dedup, ln)
	}
	return dedup
}

// InvariantError reports a violated structural precondition. It is raised
// with panic: it signals a bug in the CFG builder or the driver.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("structure: %s: %s", e.Op, e.Msg)
}

func invariant(ok bool, op, format string, args ...any) {
	if !ok {
		panic(&InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)})
	}
}

func isSentinel(n Node) bool {
	switch n.(type) {
	case *Entry, *Exit:
		return true
	}
	return false
}

// Entry is the function entry sentinel.
type Entry struct{ nodeHeader }

func (*Entry) Kind() Kind                  { return KindEntry }
func (*Entry) Name() string                { return "entry" }
func (*Entry) Start() uint64               { return 0 }
func (*Entry) Instructions() Listing       { return nil }
func (*Entry) ContainsAddress(uint64) bool { return false }
func (*Entry) Dump(p *Printer)             { p.Linef("entry") }

// Exit is the function exit sentinel.
type Exit struct{ nodeHeader }

func (*Exit) Kind() Kind                  { return KindExit }
func (*Exit) Name() string                { return "exit" }
func (*Exit) Start() uint64               { return math.MaxUint64 }
func (*Exit) Instructions() Listing       { return nil }
func (*Exit) ContainsAddress(uint64) bool { return false }
func (*Exit) Dump(p *Printer)             { p.Linef("exit") }

// Block is a basic block: a straight-line instruction sequence.
type Block struct {
	nodeHeader
	lines Listing
	end   uint64
}

// NewBlock returns a block over lines, which must be non-empty and address
// ordered. end is the address just past the last instruction.
func NewBlock(lines Listing, end uint64) *Block {
	invariant(len(lines) > 0, "NewBlock", "empty instruction sequence")
	for i := 1; i < len(lines); i++ {
		invariant(lines[i-1].Addr < lines[i].Addr, "NewBlock",
			"addresses out of order at 0x%x", lines[i].Addr)
	}
	invariant(end > lines[len(lines)-1].Addr, "NewBlock",
		"end 0x%x not past last instruction 0x%x", end, lines[len(lines)-1].Addr)
	return &Block{lines: lines, end: end}
}

func (b *Block) Kind() Kind            { return KindBlock }
func (b *Block) Name() string          { return fmt.Sprintf("bb_%x", b.Start()) }
func (b *Block) Start() uint64         { return b.lines[0].Addr }
func (b *Block) End() uint64           { return b.end }
func (b *Block) Instructions() Listing { return b.lines }

// ContainsAddress reports whether addr lies in [Start, End).
func (b *Block) ContainsAddress(addr uint64) bool {
	return addr >= b.Start() && addr < b.end
}

func (b *Block) Dump(p *Printer) {
	for _, ln := range b.lines {
		p.Linef("0x%08x  %s", ln.Addr, ln.Inst)
	}
}
