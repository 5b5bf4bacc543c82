package disasm

import "fmt"

// CallEdge represents a call site extracted from disassembly.
type CallEdge struct {
	FromPC     uint64 `json:"from_pc" msgpack:"from_pc"`
	Kind       string `json:"kind" msgpack:"kind"`                               // "bl" or "blr"
	TargetPC   uint64 `json:"target_pc,omitempty" msgpack:"target_pc,omitempty"` // resolved VA
	TargetName string `json:"target_name,omitempty" msgpack:"target_name,omitempty"`
	Reg        string `json:"reg,omitempty" msgpack:"reg,omitempty"` // register for blr (e.g. "X16")
	Via        string `json:"via,omitempty" msgpack:"via,omitempty"` // provenance of the register value
}

// Callee returns the best available name for the call target.
func (e CallEdge) Callee() string {
	switch {
	case e.TargetName != "":
		return e.TargetName
	case e.TargetPC != 0:
		return fmt.Sprintf("sub_%x", e.TargetPC)
	case e.Via != "":
		return e.Via
	}
	return "?" + e.Reg
}

// RegDef records the last materialized address in a register.
type RegDef struct {
	Addr       uint64
	Annotation string // symbol name or "0x..." of Addr
	Age        int    // instructions since definition
}

// RegTracker tracks address materialization (ADR, ADRP, ADD #imm) for GP
// registers X0-X30. Definitions older than the window are expired.
type RegTracker struct {
	defs [31]RegDef
	w    int
}

// NewRegTracker creates a tracker with the given window size.
func NewRegTracker(w int) *RegTracker {
	return &RegTracker{w: w}
}

// Reset clears all tracked definitions. Call between functions.
func (rt *RegTracker) Reset() {
	for i := range rt.defs {
		rt.defs[i] = RegDef{}
	}
}

// Tick ages all definitions by 1 and expires those beyond the window.
func (rt *RegTracker) Tick() {
	for i := range rt.defs {
		if rt.defs[i].Annotation != "" {
			rt.defs[i].Age++
			if rt.defs[i].Age > rt.w {
				rt.defs[i] = RegDef{}
			}
		}
	}
}

// Define records that register rd holds addr.
func (rt *RegTracker) Define(rd int, addr uint64, annotation string) {
	if rd < 0 || rd > 30 {
		return
	}
	if annotation == "" {
		annotation = fmt.Sprintf("0x%x", addr)
	}
	rt.defs[rd] = RegDef{Addr: addr, Annotation: annotation}
}

// Lookup returns the annotation for register rd, or "" if expired/unknown.
func (rt *RegTracker) Lookup(rd int) string {
	if rd < 0 || rd > 30 {
		return ""
	}
	return rt.defs[rd].Annotation
}

// Value returns the address held in rd, if known.
func (rt *RegTracker) Value(rd int) (uint64, bool) {
	if rd < 0 || rd > 30 || rt.defs[rd].Annotation == "" {
		return 0, false
	}
	return rt.defs[rd].Addr, true
}

// Kill clears the definition for a register (e.g. when overwritten by an
// untracked instruction).
func (rt *RegTracker) Kill(rd int) {
	if rd < 0 || rd > 30 {
		return
	}
	rt.defs[rd] = RegDef{}
}

// Step updates the tracker for one instruction. It returns the register the
// instruction defined with a known address, or -1.
func (rt *RegTracker) Step(inst Inst, symbols SymbolLookup) int {
	rt.Tick()
	name := func(addr uint64) string {
		if symbols != nil {
			if s, ok := symbols(addr); ok {
				return s
			}
		}
		return ""
	}
	if rd, addr, ok := isADR(inst.Raw, inst.Addr); ok {
		rt.Define(rd, addr, name(addr))
		return rd
	}
	if rd, rn, imm, ok := isADD64Immediate(inst.Raw); ok {
		if base, known := rt.Value(rn); known {
			addr := base + uint64(imm)
			rt.Define(rd, addr, name(addr))
			return rd
		}
		rt.Kill(rd)
		return -1
	}
	if rd := dstRegOfInst(inst.Raw); rd >= 0 {
		rt.Kill(rd)
	}
	return -1
}

// isADR detects ADR and ADRP and returns the destination register and the
// computed address.
// Encoding: op | immlo | 10000 | immhi | Rd
func isADR(raw uint32, pc uint64) (rd int, addr uint64, ok bool) {
	if raw&0x1F000000 != 0x10000000 {
		return 0, 0, false
	}
	rd = int(raw & 0x1F)
	immlo := (raw >> 29) & 0x3
	immhi := (raw >> 5) & 0x7FFFF
	imm := int64(signExtend(immhi<<2|immlo, 21))
	if raw&0x80000000 != 0 { // ADRP
		return rd, uint64(int64(pc&^0xFFF) + imm<<12), true
	}
	return rd, uint64(int64(pc) + imm), true
}

// isADD64Immediate returns true if the raw instruction is ADD Xd, Xn, #imm
// (64-bit). Returns dest reg, source reg, and the effective immediate value
// (with shift applied).
//
// Encoding: sf=1 | op=0 | S=0 | 100010 | sh | imm12 | Rn | Rd
func isADD64Immediate(raw uint32) (rd, rn int, immValue int, ok bool) {
	if raw&0xFF800000 != 0x91000000 {
		return 0, 0, 0, false
	}
	rd = int(raw & 0x1F)
	rn = int((raw >> 5) & 0x1F)
	imm12 := int((raw >> 10) & 0xFFF)
	if (raw>>22)&0x1 == 1 {
		immValue = imm12 << 12
	} else {
		immValue = imm12
	}
	return rd, rn, immValue, true
}

// dstRegOfInst returns the destination register of a data-processing or load
// instruction, or -1 if not detected.
func dstRegOfInst(raw uint32) int {
	switch {
	case raw&0xFFC00000 == 0xF9400000, // LDR X64 unsigned offset
		raw&0xFFC00000 == 0xB9400000, // LDR W32 unsigned offset
		raw&0xFFE00C00 == 0xF8400000, // LDUR X64
		raw&0xFFE00C00 == 0xB8400000, // LDUR W32
		raw&0xFFE00C00 == 0xF8600800, // LDR X64 register offset
		raw&0xFF000000 == 0xD1000000, // SUB X64 immediate
		raw&0xFF800000 == 0xD2800000, // MOVZ X
		raw&0xFF800000 == 0xF2800000, // MOVK X
		raw&0xFF800000 == 0x92800000, // MOVN X
		raw&0xFFE0FFE0 == 0xAA0003E0, // MOV X (ORR Xd, XZR, Xm)
		raw&0xFF800000 == 0xD3000000: // UBFM
		return int(raw & 0x1F)
	}
	return -1
}

// ExtractCallEdges scans instructions for BL and BLR call sites.
// Uses register tracking with window w to resolve BLR targets materialized
// with ADR/ADRP/ADD. symbols resolves target addresses to names.
func ExtractCallEdges(insts []Inst, symbols SymbolLookup, w int) []CallEdge {
	rt := NewRegTracker(w)
	var edges []CallEdge

	for _, inst := range insts {
		if target, ok := isBL(inst.Raw, inst.Addr); ok {
			e := CallEdge{
				FromPC:   inst.Addr,
				Kind:     "bl",
				TargetPC: target,
			}
			if symbols != nil {
				if name, found := symbols(target); found {
					e.TargetName = name
				}
			}
			edges = append(edges, e)
			rt.Tick()
			continue
		}

		if rn, ok := isBLR(inst.Raw); ok {
			e := CallEdge{
				FromPC: inst.Addr,
				Kind:   "blr",
				Reg:    fmt.Sprintf("X%d", rn),
				Via:    rt.Lookup(rn),
			}
			if addr, known := rt.Value(rn); known {
				e.TargetPC = addr
				if symbols != nil {
					if name, found := symbols(addr); found {
						e.TargetName = name
					}
				}
			}
			edges = append(edges, e)
			rt.Tick()
			continue
		}

		rt.Step(inst, symbols)
	}

	return edges
}
