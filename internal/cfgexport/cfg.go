// Package cfgexport maps per-function control flow into lattice's CFG model,
// both as disassembled and as left over after structuring.
package cfgexport

import (
	"strings"

	"github.com/zboralski/lattice"

	"restruct/internal/disasm"
	"restruct/internal/structure"
)

// FuncInfo holds the data needed to build a CFG for one function.
type FuncInfo struct {
	Name      string
	Insts     []disasm.Inst
	CallEdges []disasm.CallEdge
}

// BuildCFG constructs a lattice.CFGGraph from disassembled functions.
// Each FuncInfo is converted to a lattice.FuncCFG via disasm.BuildCFG then
// mapped to lattice types.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		dcfg := disasm.BuildCFG(f.Name, f.Insts)
		cg.Funcs = append(cg.Funcs, FromDisasm(&dcfg, f.CallEdges))
	}
	return cg
}

// FromDisasm maps a disasm.FuncCFG to a lattice.FuncCFG.
// Only intra-procedural successors become lattice successors; branches that
// leave the function are dropped and the block is marked terminal. Call edges
// are mapped into blocks by matching instruction PCs.
func FromDisasm(dcfg *disasm.FuncCFG, edges []disasm.CallEdge) *lattice.FuncCFG {
	edgeByPC := make(map[uint64]disasm.CallEdge, len(edges))
	for _, e := range edges {
		edgeByPC[e.FromPC] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}

		for _, ds := range db.Flow() {
			if ds.BlockID < 0 {
				lb.Term = true
				continue
			}
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}

		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			if e, ok := edgeByPC[dcfg.Insts[idx].Addr]; ok {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: e.Callee(),
				})
			}
		}

		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}

// Residual maps the nodes left in a structuring graph to a lattice.FuncCFG.
// Every non-sentinel node becomes one block, numbered in address order, whose
// Start/End are instruction counts into the node's listing order. Edges into
// Exit mark the block terminal. The outline of each region is carried as
// call-site labels so the lattice renderer shows it inside the box.
func Residual(name string, g *structure.Graph) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: name}
	ids := make(map[structure.NodeID]int)
	var nodes []structure.Node
	for _, n := range g.Nodes() {
		switch n.Kind() {
		case structure.KindEntry, structure.KindExit:
			continue
		}
		ids[n.ID()] = len(nodes)
		nodes = append(nodes, n)
	}

	pos := 0
	for i, n := range nodes {
		size := len(n.Instructions())
		lb := &lattice.BasicBlock{ID: i, Start: pos, End: pos + size}
		pos += size

		for _, e := range g.Outs(n) {
			if e.To == g.Exit() {
				lb.Term = true
				continue
			}
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ids[e.To.ID()],
				Cond:    condTag(e.Kind),
			})
		}

		if n.Kind() != structure.KindBlock {
			for j, line := range Outline(n) {
				lb.Calls = append(lb.Calls, lattice.CallSite{Offset: lb.Start + j, Callee: line})
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}

// Outline returns the region's pseudo-code with instruction lines removed,
// leaving only its control structure.
func Outline(n structure.Node) []string {
	var out []string
	for _, l := range strings.Split(structure.Sprint(n), "\n") {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "0x") {
			continue
		}
		out = append(out, l)
	}
	return out
}

func condTag(k structure.EdgeKind) string {
	switch k {
	case structure.TrueEdge:
		return "T"
	case structure.FalseEdge:
		return "F"
	}
	return ""
}
