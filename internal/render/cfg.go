package render

import (
	"fmt"
	"strings"

	"restruct/internal/disasm"
)

const maxBlockLines = 5

// CFGDOT renders a per-function basic-block CFG as DOT.
// Each basic block is a node; edges represent control flow.
// Entry block is highlighted. Conditional edges use T/F colors.
// Calls are listed under the block that makes them; branches that leave
// the function point at a shared external node.
func CFGDOT(cfg disasm.FuncCFG, t Theme) string {
	if len(cfg.Blocks) == 0 {
		return ""
	}

	var b strings.Builder
	header(&b, "cfg", cfg.Name, t)

	external := false
	for _, blk := range cfg.Blocks {
		id := fmt.Sprintf("bb%d", blk.ID)

		var lines []string
		end := min(blk.End, len(cfg.Insts))
		for i := blk.Start; i < end; i++ {
			inst := cfg.Insts[i]
			lines = append(lines, dotEscape(fmt.Sprintf("0x%x: %s", inst.Addr, inst.Text)))
		}
		lines = clipLines(lines, maxBlockLines)
		for _, s := range blk.Succs {
			if s.Kind.IsCall() {
				lines = append(lines, fmt.Sprintf("<font color=\"%s\">call 0x%x</font>", t.EdgeCall, s.Target))
			}
		}

		attrs := ""
		if blk.IsEntry {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.EntryBorder)
		}
		if blk.IsTerm {
			attrs += fmt.Sprintf(", fillcolor=%q", t.TermFill)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", id, joinLabel(lines), attrs)
	}

	var edges strings.Builder
	for _, blk := range cfg.Blocks {
		from := fmt.Sprintf("bb%d", blk.ID)
		for _, s := range blk.Flow() {
			to := fmt.Sprintf("bb%d", s.BlockID)
			if s.BlockID < 0 {
				to = "external"
				external = true
			}
			fmt.Fprintf(&edges, "  %s -> %s [%s];\n", from, to, edgeAttrs(s.Cond, t))
		}
	}
	if external {
		fmt.Fprintf(&b, "  external [shape=plaintext, style=\"\", fontcolor=%q, label=\"external\"];\n", t.ExternalText)
	}
	b.WriteByte('\n')
	b.WriteString(edges.String())
	b.WriteString("}\n")
	return b.String()
}
