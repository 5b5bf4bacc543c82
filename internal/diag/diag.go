// Package diag provides diagnostics shared by the decoding and structuring
// stages.
package diag

import "fmt"

// Kind classifies a diagnostic message.
type Kind string

const (
	KindTruncated   Kind = "truncated"
	KindInvalid     Kind = "invalid"
	KindUnreachable Kind = "unreachable"
	KindIndirect    Kind = "indirect_branch"
	KindExternal    Kind = "external_target"
	KindIrreducible Kind = "irreducible"
	KindInvariant   Kind = "invariant"
	KindStepLimit   Kind = "step_limit"
)

// Diag records a non-fatal issue. Offset is an instruction address.
type Diag struct {
	Offset uint64 `json:"offset" msgpack:"offset"`
	Kind   Kind   `json:"kind" msgpack:"kind"`
	Msg    string `json:"msg" msgpack:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics. A nil *Diags discards everything.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind Kind, msg string) {
	if d == nil {
		return
	}
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind Kind, format string, args ...any) {
	if d == nil {
		return
	}
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag {
	if d == nil {
		return nil
	}
	return d.items
}

func (d *Diags) Len() int {
	if d == nil {
		return 0
	}
	return len(d.items)
}

// Count returns the number of diagnostics of the given kind.
func (d *Diags) Count(kind Kind) int {
	var n int
	for _, it := range d.Items() {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Mode controls error handling behavior.
type Mode int

const (
	ModeStrict     Mode = iota // first invariant violation aborts the run
	ModeBestEffort             // record the failure and continue with the next function
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "best-effort"
}

// ParseMode maps "strict" and "best-effort" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "strict":
		return ModeStrict, nil
	case "best-effort", "":
		return ModeBestEffort, nil
	}
	return 0, fmt.Errorf("diag: unknown mode %q", s)
}
