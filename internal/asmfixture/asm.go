// Package asmfixture assembles small ARM64 programs for tests and wraps
// them in minimal ELF images.
//
// Programs are built with golang-asm, which uses Go assembler notation:
// MOVD $c, Rn loads a constant, CMP $c, Rn compares, and JMP is B.
package asmfixture

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
)

// X returns the golang-asm register constant for Xn.
func X(n int) int16 { return arm64.REG_R0 + int16(n) }

// Condition codes usable with BranchIf.
const (
	EQ = arm64.ABEQ
	NE = arm64.ABNE
	LT = arm64.ABLT
	GE = arm64.ABGE
	GT = arm64.ABGT
	LE = arm64.ABLE
)

// Program accumulates instructions and named labels.
type Program struct {
	builder *asm.Builder
	labels  map[string]*obj.Prog
	pending map[string][]*obj.Prog
	// next holds labels waiting for the next emitted instruction.
	next []string
}

// New returns an empty program.
func New() (*Program, error) {
	b, err := asm.NewBuilder("arm64", 1024)
	if err != nil {
		return nil, fmt.Errorf("asmfixture: new builder: %w", err)
	}
	return &Program{
		builder: b,
		labels:  make(map[string]*obj.Prog),
		pending: make(map[string][]*obj.Prog),
	}, nil
}

func (p *Program) newProg() *obj.Prog {
	inst := p.builder.NewProg()
	for _, name := range p.next {
		p.labels[name] = inst
		for _, br := range p.pending[name] {
			br.To.SetTarget(inst)
		}
		delete(p.pending, name)
	}
	p.next = nil
	return inst
}

// Label names the next instruction.
func (p *Program) Label(name string) *Program {
	p.next = append(p.next, name)
	return p
}

func (p *Program) target(br *obj.Prog, label string) {
	if inst, ok := p.labels[label]; ok {
		br.To.SetTarget(inst)
		return
	}
	p.pending[label] = append(p.pending[label], br)
}

// Nop emits NOP.
func (p *Program) Nop() *Program {
	inst := p.newProg()
	inst.As = arm64.ANOOP
	p.builder.AddInstruction(inst)
	return p
}

// MovConst emits MOVD $v, reg.
func (p *Program) MovConst(reg int16, v int64) *Program {
	inst := p.newProg()
	inst.As = arm64.AMOVD
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = v
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = reg
	p.builder.AddInstruction(inst)
	return p
}

// AddConst emits ADD $v, reg.
func (p *Program) AddConst(reg int16, v int64) *Program {
	inst := p.newProg()
	inst.As = arm64.AADD
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = v
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = reg
	p.builder.AddInstruction(inst)
	return p
}

// CmpConst emits CMP $v, reg.
func (p *Program) CmpConst(reg int16, v int64) *Program {
	inst := p.newProg()
	inst.As = arm64.ACMP
	inst.To.Type = obj.TYPE_NONE
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = v
	inst.Reg = reg
	p.builder.AddInstruction(inst)
	return p
}

// BranchIf emits a conditional branch (B.cond) to label.
func (p *Program) BranchIf(cond obj.As, label string) *Program {
	br := p.newProg()
	br.As = cond
	br.To.Type = obj.TYPE_BRANCH
	p.builder.AddInstruction(br)
	p.target(br, label)
	return p
}

// Jump emits an unconditional branch to label.
func (p *Program) Jump(label string) *Program {
	br := p.newProg()
	br.As = obj.AJMP
	br.To.Type = obj.TYPE_BRANCH
	p.builder.AddInstruction(br)
	p.target(br, label)
	return p
}

// Ret emits RET.
func (p *Program) Ret() *Program {
	inst := p.newProg()
	inst.As = obj.ARET
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = arm64.REG_R30
	p.builder.AddInstruction(inst)
	return p
}

// Assemble resolves labels and returns the machine code.
func (p *Program) Assemble() ([]byte, error) {
	if len(p.next) > 0 {
		return nil, fmt.Errorf("asmfixture: label %q has no instruction", p.next[0])
	}
	for name := range p.pending {
		return nil, fmt.Errorf("asmfixture: undefined label %q", name)
	}
	return p.builder.Assemble(), nil
}
