// Package instrument surrounds every recorded indirect control transfer with
// a guard that hands the divergence site index to the runtime handlers
// linked in from the support object.
//
// A flagged line such as "jne jump_diverge" becomes
//
//	pushfd
//	push <index>
//	jne jump_diverge
//	add esp, 4
//	popfd
//
// The original text is emitted untouched between the guard instructions.
package instrument

import (
	"strings"

	"github.com/colorfulnotion/exslice/asm"
	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/log"
	"github.com/colorfulnotion/exslice/partition"
	"github.com/colorfulnotion/exslice/trace"
)

// Runtime handlers provided by the support object.
const (
	JumpHandler  = "handle_jump_diverge"
	IndexHandler = "handle_index_diverge"
)

// GuardLines is the number of records a guarded line occupies.
const GuardLines = 5

// Site is one instrumented line.
type Site struct {
	Index   int
	Kind    trace.Kind
	Line    int // source line number
	Section int
}

// Instrumenter owns the divergence index counter of a single conversion.
// It must not be shared between traces.
type Instrumenter struct {
	enabled    bool
	jumpLabel  string
	indexLabel string
	next       int
	sites      []Site
}

func New(cfg config.Config) *Instrumenter {
	return &Instrumenter{
		enabled:    cfg.InstrumentJumps,
		jumpLabel:  strings.TrimSpace(cfg.Markers.IndirectJump),
		indexLabel: strings.TrimSpace(cfg.Markers.IndexDispatch),
	}
}

// Guards reports whether l will be surrounded by a guard.
func (in *Instrumenter) Guards(l trace.Line) bool {
	return in.enabled && l.Flagged()
}

// Emit appends l to p, guarded when it is a flagged line. section is only
// recorded on the site for reporting.
func (in *Instrumenter) Emit(p *asm.Program, l trace.Line, section int) {
	if !in.Guards(l) {
		p.Append(asm.Insn(l.Text))
		return
	}
	site := Site{Index: in.next, Kind: l.Kind, Line: l.Num, Section: section}
	in.next++
	in.sites = append(in.sites, site)

	p.Append(
		asm.Guardf("pushfd"),
		asm.Guardf("push %d", site.Index),
		asm.Insn(l.Text),
		asm.Guardf("add esp, 4"),
		asm.Guardf("popfd"),
	)
	log.Trace(log.InstrumentModule, "divergence site", "index", site.Index, "kind", site.Kind, "line", site.Line, "section", section)
}

// Sites returns the sites assigned so far, in index order.
func (in *Instrumenter) Sites() []Site {
	out := make([]Site, len(in.sites))
	copy(out, in.sites)
	return out
}

// Count is the number of indices consumed.
func (in *Instrumenter) Count() int { return in.next }

// HandlerBlock appends the shared jump/index divergence stubs. It is emitted
// once per executable, after the final section returns. The labels are global
// but hidden, so guards compiled in other units bind to them inside the
// shared object.
func (in *Instrumenter) HandlerBlock(p *asm.Program) {
	for _, h := range []struct{ label, handler string }{
		{in.jumpLabel, JumpHandler},
		{in.indexLabel, IndexHandler},
	} {
		p.Append(
			asm.Dir(".globl %s", h.label),
			asm.Dir(".hidden %s", h.label),
			asm.Lbl(h.label),
			asm.Stubf("push eax"),
			asm.Stubf("push ecx"),
			asm.Stubf("push edx"),
			asm.CallTo(h.handler),
			asm.Stubf("pop edx"),
			asm.Stubf("pop ecx"),
			asm.Stubf("pop eax"),
			asm.Ret(),
		)
	}
}

// Labels returns the jump and index handler labels.
func (in *Instrumenter) Labels() (jump, index string) {
	return in.jumpLabel, in.indexLabel
}

// Instrument emits the body of every section of plan, in section order, and
// returns one program per section. Indices continue across sections.
func (in *Instrumenter) Instrument(plan *partition.Plan) []*asm.Program {
	out := make([]*asm.Program, 0, len(plan.Sections))
	for _, s := range plan.Sections {
		p := new(asm.Program)
		for _, l := range s.Lines {
			in.Emit(p, l, s.Ordinal)
		}
		out = append(out, p)
	}
	log.Info(log.InstrumentModule, "instrumented", "trace", plan.Name, "sites", in.Count(), "sections", len(out))
	return out
}
