package disasm

import "sort"

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID         int
	Start      int    // index into FuncCFG.Insts (inclusive)
	End        int    // index into FuncCFG.Insts (exclusive)
	Succs      []Succ // successor edges, calls included
	IsEntry    bool
	IsTerm     bool // ends with RET, BR, or a branch out of the function
	IsIndirect bool // ends with BR Xn
}

// SuccKind classifies a successor edge.
type SuccKind uint8

const (
	SuccControl  SuccKind = iota // fallthrough into the next block
	SuccJump                     // unconditional branch
	SuccJumpCond                 // one leg of a conditional branch
	SuccCall                     // BL/BLR; control returns to the next instruction
	SuccCallCond                 // conditional call; not produced for ARM64
)

func (k SuccKind) String() string {
	switch k {
	case SuccControl:
		return "control"
	case SuccJump:
		return "jump"
	case SuccJumpCond:
		return "jump_cond"
	case SuccCall:
		return "call"
	case SuccCallCond:
		return "call_cond"
	}
	return "unknown"
}

// IsCall reports whether k describes a call rather than intra-procedural flow.
func (k SuccKind) IsCall() bool { return k == SuccCall || k == SuccCallCond }

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int    // -1 when the target lies outside the function
	Target  uint64 // target address; 0 for indirect calls
	Kind    SuccKind
	Cond    string // "" = unconditional, "T" = taken/true, "F" = fallthrough/false
	PC      uint64 // address of the instruction that produced the edge
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// Entry returns the entry block, or nil for an empty function.
func (f *FuncCFG) Entry() *BasicBlock {
	for i := range f.Blocks {
		if f.Blocks[i].IsEntry {
			return &f.Blocks[i]
		}
	}
	if len(f.Blocks) > 0 {
		return &f.Blocks[0]
	}
	return nil
}

// Flow returns the intra-procedural successors of b, calls excluded.
func (b *BasicBlock) Flow() []Succ {
	var out []Succ
	for _, s := range b.Succs {
		if !s.Kind.IsCall() {
			out = append(out, s)
		}
	}
	return out
}

// BuildCFG constructs a control flow graph from a function's instruction stream.
// The algorithm:
//  1. Find block leaders: index 0, branch targets, instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction, and call
//     edges from every BL/BLR inside the block.
func BuildCFG(name string, insts []Inst) FuncCFG {
	if len(insts) == 0 {
		return FuncCFG{Name: name, Insts: insts}
	}

	funcStart := insts[0].Addr
	funcEnd := insts[len(insts)-1].Addr + 4

	// Map address → instruction index for branch target resolution.
	addrToIdx := make(map[uint64]int, len(insts))
	for i, inst := range insts {
		addrToIdx[inst.Addr] = i
	}
	inFunc := func(addr uint64) bool { return addr >= funcStart && addr < funcEnd }

	// Pass 1: Identify block leaders.
	leaders := make(map[int]bool)
	leaders[0] = true // entry point is always a leader

	for i, inst := range insts {
		bi := DecodeBranch(inst.Raw, inst.Addr)
		if bi == nil {
			continue
		}
		// Instruction after a terminator is a leader (if it exists).
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		// Branch target within this function is a leader.
		if !bi.IsRet && !bi.IsIndirect && inFunc(bi.Target) {
			if idx, ok := addrToIdx[bi.Target]; ok {
				leaders[idx] = true
			}
		}
	}

	// Sort leaders for partitioning.
	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts) // last block extends to end
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{
			ID:      i,
			Start:   start,
			End:     end,
			IsEntry: start == 0,
		}
		leaderToBlock[start] = i
	}

	blockAt := func(addr uint64) int {
		if !inFunc(addr) {
			return -1
		}
		if idx, ok := addrToIdx[addr]; ok {
			if bid, ok := leaderToBlock[idx]; ok {
				return bid
			}
		}
		return -1
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		if blk.End <= blk.Start {
			continue
		}

		for _, inst := range insts[blk.Start:blk.End] {
			if target, ok := isBL(inst.Raw, inst.Addr); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: blockAt(target), Target: target, Kind: SuccCall, PC: inst.Addr})
			} else if _, ok := isBLR(inst.Raw); ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: -1, Kind: SuccCall, PC: inst.Addr})
			}
		}

		lastInst := insts[blk.End-1]
		bi := DecodeBranch(lastInst.Raw, lastInst.Addr)
		nextBlk, hasNext := leaderToBlock[blk.End]
		var nextAddr uint64
		if hasNext {
			nextAddr = insts[blk.End].Addr
		}

		if bi == nil {
			// Not a branch: fall through to the next block.
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: nextBlk, Target: nextAddr, Kind: SuccControl, PC: lastInst.Addr})
			}
			continue
		}

		if bi.IsRet {
			blk.IsTerm = true
			continue
		}
		if bi.IsIndirect {
			blk.IsTerm = true
			blk.IsIndirect = true
			continue
		}

		targetBlockID := blockAt(bi.Target)

		if bi.Cond {
			// Conditional: taken (T) goes to target, fallthrough (F) goes to next.
			blk.Succs = append(blk.Succs, Succ{BlockID: targetBlockID, Target: bi.Target, Kind: SuccJumpCond, Cond: "T", PC: lastInst.Addr})
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: nextBlk, Target: nextAddr, Kind: SuccJumpCond, Cond: "F", PC: lastInst.Addr})
			}
			continue
		}

		// Unconditional branch.
		blk.Succs = append(blk.Succs, Succ{BlockID: targetBlockID, Target: bi.Target, Kind: SuccJump, PC: lastInst.Addr})
		if targetBlockID < 0 {
			// Branch outside the function is a tail call.
			blk.IsTerm = true
		}
	}

	return FuncCFG{
		Name:   name,
		Blocks: blocks,
		Insts:  insts,
	}
}
