package disasm

import "fmt"

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation. Receives the full Inst for access
// to both raw encoding and address.
type Annotator func(inst Inst) string

// TargetAnnotator annotates direct branches and calls with their target.
// Targets known to symbols are shown by name.
func TargetAnnotator(symbols SymbolLookup) Annotator {
	name := func(addr uint64) string {
		if symbols != nil {
			if s, ok := symbols(addr); ok {
				return s
			}
		}
		return fmt.Sprintf("0x%x", addr)
	}
	return func(inst Inst) string {
		if target, ok := isBL(inst.Raw, inst.Addr); ok {
			return "call " + name(target)
		}
		bi := DecodeBranch(inst.Raw, inst.Addr)
		switch {
		case bi == nil, bi.IsRet:
			return ""
		case bi.IsIndirect:
			return "indirect"
		}
		return "-> " + name(bi.Target)
	}
}

// AddressAnnotator pre-computes annotations for addresses materialized with
// ADR, ADRP and ADD #imm in an instruction stream, and for BLR calls whose
// register holds a tracked address.
func AddressAnnotator(insts []Inst, symbols SymbolLookup, w int) Annotator {
	anns := make(map[uint64]string)
	rt := NewRegTracker(w)
	for _, inst := range insts {
		if rn, ok := isBLR(inst.Raw); ok {
			if via := rt.Lookup(rn); via != "" {
				anns[inst.Addr] = "call " + via
			}
			rt.Tick()
			continue
		}
		if rd := rt.Step(inst, symbols); rd >= 0 {
			anns[inst.Addr] = fmt.Sprintf("X%d = %s", rd, rt.Lookup(rd))
		}
	}
	return func(inst Inst) string {
		return anns[inst.Addr]
	}
}
