// Package partition splits the body of a slice into sections small enough to
// compile as separate translation units.
package partition

import (
	"fmt"

	"github.com/colorfulnotion/exslice/exerrors"
	"github.com/colorfulnotion/exslice/log"
	"github.com/colorfulnotion/exslice/trace"
)

// SectionLabel is the externally visible entry symbol of section n.
func SectionLabel(n int) string {
	return fmt.Sprintf("_section%d", n)
}

type Section struct {
	Ordinal int
	Lines   []trace.Line
	Cost    int
}

func (s *Section) Label() string { return SectionLabel(s.Ordinal) }

// Plan is the partitioned slice. Prologue and Epilogue are carried through to
// the main unit and never count against the threshold.
type Plan struct {
	Name      string
	Prologue  []trace.Line
	Sections  []*Section
	Epilogue  []trace.Line
	Threshold int
}

// Cost returns the summed cost of every section.
func (p *Plan) Cost() int {
	total := 0
	for _, s := range p.Sections {
		total += s.Cost
	}
	return total
}

// Options drive one partitioning pass.
type Options struct {
	Threshold int
	// Cost returns the weight of a line once emitted.
	Cost func(trace.Line) int
	// Strict turns an oversized final section into a MalformedTrace error
	// instead of accepting it.
	Strict bool
}

// WeightedCost charges guardCost for lines guard reports true for, 1 otherwise.
func WeightedCost(guard func(trace.Line) bool, guardCost int) func(trace.Line) int {
	return func(l trace.Line) int {
		if guard(l) {
			return guardCost
		}
		return 1
	}
}

// State is the running accumulator of a partitioning pass.
type State struct {
	Cost    int // cost of the current section so far
	Current *Section
	Closed  []*Section
}

// Step feeds one body line. A new section opens at l when the current section
// has already run past threshold and l is split-safe; l then becomes the first
// line of the new section.
func (st *State) Step(l trace.Line, opts Options) {
	if st.Current == nil {
		st.Current = &Section{Ordinal: 1}
	}
	if st.Cost > opts.Threshold && l.SplitSafe && len(st.Current.Lines) > 0 {
		st.Current.Cost = st.Cost
		st.Closed = append(st.Closed, st.Current)
		log.Debug(log.PartitionModule, "section closed", "ordinal", st.Current.Ordinal, "lines", len(st.Current.Lines), "cost", st.Cost, "at", l.Num)
		st.Current = &Section{Ordinal: st.Current.Ordinal + 1}
		st.Cost = 0
	}
	st.Current.Lines = append(st.Current.Lines, l)
	st.Cost += opts.Cost(l)
}

// Finish closes the open section and returns every section in order.
func (st *State) Finish() []*Section {
	if st.Current == nil {
		st.Current = &Section{Ordinal: 1}
	}
	st.Current.Cost = st.Cost
	out := append(st.Closed, st.Current)
	st.Current, st.Closed, st.Cost = nil, nil, 0
	return out
}

// Partition splits doc.Body. Without a split-safe line past the threshold the
// whole body stays in one section, however large.
func Partition(doc *trace.Document, opts Options) (*Plan, error) {
	if opts.Cost == nil {
		opts.Cost = func(trace.Line) int { return 1 }
	}
	var st State
	for _, l := range doc.Body {
		st.Step(l, opts)
	}
	plan := &Plan{
		Name:      doc.Name,
		Prologue:  doc.Prologue,
		Sections:  st.Finish(),
		Epilogue:  doc.Epilogue,
		Threshold: opts.Threshold,
	}

	last := plan.Sections[len(plan.Sections)-1]
	if last.Cost > opts.Threshold {
		if opts.Strict {
			return nil, exerrors.MalformedTrace("%s: section %d costs %d past threshold %d with no split-safe line left",
				doc.Name, last.Ordinal, last.Cost, opts.Threshold)
		}
		log.Warn(log.PartitionModule, "oversized section accepted", "trace", doc.Name, "ordinal", last.Ordinal, "cost", last.Cost, "threshold", opts.Threshold)
	}
	log.Info(log.PartitionModule, "partitioned", "trace", doc.Name, "sections", len(plan.Sections), "cost", plan.Cost())
	return plan, nil
}
