package render

import (
	"fmt"
	"strings"

	"restruct/internal/structure"
)

const maxRegionLines = 8

// RegionDOT renders a structuring graph as DOT. Every node left in the graph
// becomes one box: plain blocks list their instructions, reduced regions
// show their pseudo-code outline. A fully structured function renders as
// entry, one region and exit.
func RegionDOT(name string, g *structure.Graph, t Theme) string {
	var b strings.Builder
	header(&b, "regions", name, t)

	for _, n := range g.Nodes() {
		id := nodeID(n)
		switch n.Kind() {
		case structure.KindEntry, structure.KindExit:
			fmt.Fprintf(&b, "  %s [shape=circle, width=0.25, fixedsize=true, label=\"\", fillcolor=%q];\n",
				id, t.NodeBorder)
			continue
		}

		var lines []string
		for _, l := range strings.Split(strings.TrimRight(structure.Sprint(n), "\n"), "\n") {
			lines = append(lines, dotEscape(truncLabel(l, 72)))
		}
		lines = clipLines(lines, maxRegionLines)

		attrs := ""
		if n.Kind() != structure.KindBlock {
			attrs = fmt.Sprintf(", fillcolor=%q, xlabel=<<font point-size=\"7\">%s</font>>", t.RegionFill, n.Kind())
		}
		if g.HasEdge(structure.Edge{From: g.Entry(), To: n, Kind: structure.AlwaysEdge}) {
			attrs += fmt.Sprintf(", penwidth=1.5, color=%q", t.EntryBorder)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", id, joinLabel(lines), attrs)
	}
	b.WriteByte('\n')

	for _, n := range g.Nodes() {
		for _, e := range g.Outs(n) {
			cond := ""
			switch e.Kind {
			case structure.TrueEdge:
				cond = "T"
			case structure.FalseEdge:
				cond = "F"
			}
			fmt.Fprintf(&b, "  %s -> %s [%s];\n", nodeID(e.From), nodeID(e.To), edgeAttrs(cond, t))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// nodeID names n by its graph identity; tail copies share a display name
// with the node they were copied from.
func nodeID(n structure.Node) string {
	return fmt.Sprintf("n%d", n.ID())
}
