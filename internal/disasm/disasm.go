// Package disasm provides ARM64 disassembly and per-function control flow
// graphs for machine-code regions.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"restruct/internal/diag"
)

// Inst is a decoded ARM64 instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Raw      uint32
	Size     int // always 4 for ARM64
	Mnemonic string
	Operands string
	Text     string // full disassembly line
}

// String returns the disassembly text.
func (i Inst) String() string { return i.Text }

// Valid reports whether the word decoded to a real instruction.
func (i Inst) Valid() bool { return i.Mnemonic != ".word" }

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64       // VA of the first byte in Data
	MaxSteps int          // maximum instructions to decode; 0 = 10M
	Symbols  SymbolLookup // optional symbol resolver
	Diags    *diag.Diags  // optional; receives undecodable words and truncation
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// decode turns one little-endian word into an Inst. Words arm64asm rejects
// become ".word" pseudo-instructions so the listing keeps its addresses.
func decode(word []byte, addr uint64) (Inst, bool) {
	raw := binary.LittleEndian.Uint32(word)
	inst := Inst{Addr: addr, Raw: raw, Size: 4}
	dec, err := arm64asm.Decode(word)
	if err != nil {
		inst.Mnemonic = ".word"
		inst.Operands = fmt.Sprintf("0x%08x", raw)
		inst.Text = ".word " + inst.Operands
		return inst, false
	}
	inst.Text = dec.String()
	inst.Mnemonic, inst.Operands, _ = strings.Cut(inst.Text, " ")
	return inst, true
}

// Disassemble decodes ARM64 instructions from a byte region.
// Decoding stops at MaxSteps or at the last whole word. Both cut-offs and
// every undecodable word are reported to opts.Diags when it is set.
func Disassemble(data []byte, opts Options) []Inst {
	n := len(data) / 4
	if tail := len(data) % 4; tail != 0 && opts.Diags != nil {
		opts.Diags.Addf(opts.BaseAddr+uint64(n*4), diag.KindTruncated, "%d trailing bytes ignored", tail)
	}
	if limit := opts.effectiveMax(); n > limit {
		if opts.Diags != nil {
			opts.Diags.Addf(opts.BaseAddr+uint64(limit*4), diag.KindTruncated, "stopped after %d instructions", limit)
		}
		n = limit
	}

	result := make([]Inst, 0, n)
	for i := range n {
		addr := opts.BaseAddr + uint64(i*4)
		inst, ok := decode(data[i*4:i*4+4], addr)
		if !ok && opts.Diags != nil {
			opts.Diags.Add(addr, diag.KindInvalid, inst.Text)
		}
		result = append(result, inst)
	}
	return result
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <comments>
// A symbol at the address wins; otherwise the first annotator with
// something to say supplies the comment.
func Format(insts []Inst, lookup SymbolLookup, annotators ...Annotator) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  %02x %02x %02x %02x  %s",
			inst.Addr,
			byte(inst.Raw), byte(inst.Raw>>8), byte(inst.Raw>>16), byte(inst.Raw>>24),
			inst.Text)
		if comment := commentFor(inst, lookup, annotators); comment != "" {
			b.WriteString("  ; ")
			b.WriteString(comment)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func commentFor(inst Inst, lookup SymbolLookup, annotators []Annotator) string {
	if lookup != nil {
		if name, ok := lookup(inst.Addr); ok {
			return "<" + name + ">"
		}
	}
	for _, ann := range annotators {
		if s := ann(inst); s != "" {
			return s
		}
	}
	return ""
}

// DisasmOne decodes a single ARM64 instruction from its raw encoding.
// Returns the disassembly text, or "" if decoding fails.
func DisasmOne(raw uint32, addr uint64) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], raw)
	inst, ok := decode(buf[:], addr)
	if !ok {
		return ""
	}
	return inst.Text
}

// MapLookup resolves addresses from a fixed address-to-name table.
func MapLookup(names map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		name, ok := names[addr]
		return name, ok
	}
}
