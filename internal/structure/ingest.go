package structure

import (
	"fmt"

	"restruct/internal/diag"
	"restruct/internal/disasm"
)

// FromCFG builds a graph with one Block per basic block of cfg reachable
// from its entry block. Call edges are dropped; blocks that leave the
// function (RET, BR, tail calls) get an Always edge to Exit, as does a
// conditional leg whose target lies outside the function.
func FromCFG(cfg disasm.FuncCFG, d *diag.Diags) (*Graph, error) {
	entry := cfg.Entry()
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFunction, cfg.Name)
	}

	reach := make([]bool, len(cfg.Blocks))
	stack := []int{entry.ID}
	reach[entry.ID] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range cfg.Blocks[id].Flow() {
			if s.BlockID >= 0 && s.BlockID < len(cfg.Blocks) && !reach[s.BlockID] {
				reach[s.BlockID] = true
				stack = append(stack, s.BlockID)
			}
		}
	}

	g := New()
	nodes := make([]Node, len(cfg.Blocks))
	for i, blk := range cfg.Blocks {
		if blk.End <= blk.Start || blk.End > len(cfg.Insts) {
			return nil, fmt.Errorf("structure: %s: block %d has bad range [%d,%d)", cfg.Name, blk.ID, blk.Start, blk.End)
		}
		insts := cfg.Insts[blk.Start:blk.End]
		if !reach[i] {
			d.Addf(insts[0].Addr, diag.KindUnreachable, "%s: block %d unreachable from entry", cfg.Name, blk.ID)
			continue
		}
		lines := make(Listing, len(insts))
		for j, inst := range insts {
			lines[j] = Line{Addr: inst.Addr, Inst: inst}
		}
		last := insts[len(insts)-1]
		size := uint64(last.Size)
		if size == 0 {
			size = 4
		}
		b := NewBlock(lines, last.Addr+size)
		g.AddNode(b)
		nodes[i] = b
	}

	target := func(s disasm.Succ) Node {
		if s.BlockID < 0 || s.BlockID >= len(nodes) || nodes[s.BlockID] == nil {
			return g.Exit()
		}
		return nodes[s.BlockID]
	}

	for i, blk := range cfg.Blocks {
		from := nodes[i]
		if from == nil {
			continue
		}
		if blk.IsIndirect {
			d.Addf(cfg.Insts[blk.End-1].Addr, diag.KindIndirect, "%s: indirect branch leaves block %d", cfg.Name, blk.ID)
		}

		var taken, fall Node
		var jumps []Node
		for _, s := range blk.Flow() {
			switch s.Kind {
			case disasm.SuccJumpCond:
				if s.BlockID < 0 {
					d.Addf(s.PC, diag.KindExternal, "%s: conditional branch to 0x%x outside function", cfg.Name, s.Target)
				}
				if s.Cond == "F" {
					fall = target(s)
				} else {
					taken = target(s)
				}
			default:
				jumps = append(jumps, target(s))
			}
		}

		switch {
		case taken != nil || fall != nil:
			if len(jumps) > 0 {
				return nil, fmt.Errorf("structure: %s: block %d mixes conditional and unconditional successors", cfg.Name, blk.ID)
			}
			if taken == nil {
				taken = g.Exit()
			}
			if fall == nil {
				fall = g.Exit()
			}
			if taken == fall {
				g.AddEdge(Edge{From: from, To: taken, Kind: AlwaysEdge})
				continue
			}
			g.AddEdge(Edge{From: from, To: taken, Kind: TrueEdge})
			g.AddEdge(Edge{From: from, To: fall, Kind: FalseEdge})
		case len(jumps) > 1:
			return nil, fmt.Errorf("structure: %s: block %d has %d unconditional successors", cfg.Name, blk.ID, len(jumps))
		case len(jumps) == 1:
			g.AddEdge(Edge{From: from, To: jumps[0], Kind: AlwaysEdge})
		default:
			g.AddEdge(Edge{From: from, To: g.Exit(), Kind: AlwaysEdge})
		}
	}

	g.AddEdge(Edge{From: g.Entry(), To: nodes[entry.ID], Kind: AlwaysEdge})
	return g, nil
}
