// Package render produces Graphviz DOT for per-function control flow graphs
// and for the regions left after structuring.
package render

import (
	"fmt"
	"strings"
)

// dotEscape escapes a string for use in DOT HTML labels.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// truncLabel shortens a label to maxLen, appending "..." if truncated.
func truncLabel(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// clipLines keeps the first and last keep lines of a long label.
func clipLines(lines []string, keep int) []string {
	if len(lines) <= 2*keep+2 {
		return lines
	}
	out := append([]string(nil), lines[:keep]...)
	out = append(out, fmt.Sprintf("... (%d more)", len(lines)-2*keep))
	return append(out, lines[len(lines)-keep:]...)
}

// header writes the graph preamble shared by all renderers.
func header(b *strings.Builder, name, title string, t Theme) {
	fmt.Fprintf(b, "digraph %s {\n", name)
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.4;\n")
	fmt.Fprintf(b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q, margin=\"0.08,0.04\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	b.WriteString("  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee];\n")
	b.WriteString("  labelloc=t;\n  labeljust=l;\n")
	fmt.Fprintf(b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
		t.TextColor, dotEscape(title))
	b.WriteByte('\n')
}

// edgeAttrs returns the DOT attributes of an edge with the given condition
// tag: "T", "F" or "" for unconditional.
func edgeAttrs(cond string, t Theme) string {
	switch cond {
	case "T":
		return fmt.Sprintf("color=%q, label=<<font point-size=\"7\" color=\"%s\">T</font>>", t.EdgeTrue, t.EdgeTrue)
	case "F":
		return fmt.Sprintf("color=%q, label=<<font point-size=\"7\" color=\"%s\">F</font>>", t.EdgeFalse, t.EdgeFalse)
	}
	return fmt.Sprintf("color=%q", t.EdgeAlways)
}

func joinLabel(lines []string) string {
	return strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"
}
