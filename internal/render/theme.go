package render

// Theme holds colors for CFG and region rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by kind.
	EdgeTrue   string // taken leg of a conditional
	EdgeFalse  string // fall-through leg of a conditional
	EdgeAlways string // fallthrough, jump, construct exit
	EdgeCall   string // BL/BLR call sites

	// Node accents.
	EntryBorder  string // entry block outline
	TermFill     string // blocks that leave the function
	RegionFill   string // structured regions after reduction
	ExternalText string // targets outside the function
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeTrue:   "#0B3D91", // NASA blue
	EdgeFalse:  "#FC3D21", // NASA red
	EdgeAlways: "#424242", // dark gray
	EdgeCall:   "#00695C", // teal

	EntryBorder:  "#0B3D91",
	TermFill:     "#ECEFF1", // blue-gray 50
	RegionFill:   "#FFF8E1", // amber 50
	ExternalText: "#9E9E9E",
}
