// Package glue wraps instrumented sections into compilation units and chains
// them with explicit calls:
//
//	main:       prologue, call _section1, epilogue
//	_section1:  body, call _section2, ret
//	...
//	_sectionN:  body, ret, divergence handler stubs
//
// Each unit is compiled on its own, yet the units execute as one straight
// line program.
package glue

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/exslice/asm"
	"github.com/colorfulnotion/exslice/exerrors"
	"github.com/colorfulnotion/exslice/instrument"
	"github.com/colorfulnotion/exslice/log"
	"github.com/colorfulnotion/exslice/partition"
)

const sectionPrefix = "_section"

// MainName is the name of the header/tail unit.
const MainName = "main"

// Unit is one emitted translation unit. Ordinal is 0 for the main unit.
type Unit struct {
	Name    string
	Ordinal int
	Program *asm.Program
	Source  string // set once written
	Object  string // set once compiled
}

func (u *Unit) IsMain() bool { return u.Ordinal == 0 }

func isSectionCall(r asm.Record) bool {
	return r.Tag == asm.Call && strings.HasPrefix(r.Payload, sectionPrefix)
}

// Link builds the main unit followed by one unit per section. bodies are the
// instrumented section bodies, in section order.
func Link(plan *partition.Plan, bodies []*asm.Program, in *instrument.Instrumenter) ([]*Unit, error) {
	if len(bodies) != len(plan.Sections) {
		return nil, exerrors.ChainBroken("%s: %d section bodies for %d sections", plan.Name, len(bodies), len(plan.Sections))
	}
	if len(plan.Sections) == 0 {
		return nil, exerrors.ChainBroken("%s: no sections", plan.Name)
	}

	main := &Unit{Name: MainName, Program: new(asm.Program)}
	for _, l := range plan.Prologue {
		main.Program.Append(asm.Insn(l.Text))
	}
	main.Program.Append(asm.CallTo(plan.Sections[0].Label()))
	for _, l := range plan.Epilogue {
		main.Program.Append(asm.Insn(l.Text))
	}

	units := []*Unit{main}
	last := len(plan.Sections) - 1
	for i, s := range plan.Sections {
		u := &Unit{Name: fmt.Sprintf("section%d", s.Ordinal), Ordinal: s.Ordinal, Program: new(asm.Program)}
		u.Program.Append(
			asm.Dir(".section\t.text"),
			asm.Dir(".globl %s", s.Label()),
			asm.Lbl(s.Label()),
		)
		u.Program.Append(bodies[i].Records()...)
		if i < last {
			u.Program.Append(asm.CallTo(plan.Sections[i+1].Label()), asm.Ret())
		} else {
			u.Program.Append(asm.Ret())
			in.HandlerBlock(u.Program)
		}
		units = append(units, u)
		log.Debug(log.GlueModule, "unit emitted", "trace", plan.Name, "unit", u.Name, "records", u.Program.Len())
	}

	if err := VerifyChain(units); err != nil {
		return nil, err
	}
	return units, nil
}

func sectionCalls(p *asm.Program) []string {
	var out []string
	for _, r := range p.Records() {
		if isSectionCall(r) {
			out = append(out, r.Payload)
		}
	}
	return out
}

func definesLabel(p *asm.Program, name string) bool {
	for _, r := range p.Records() {
		if r.Tag == asm.Label && r.Payload == name {
			return true
		}
	}
	return false
}

// VerifyChain checks that units form main → 1 → … → N with contiguous,
// unique ordinals and that every unit calls exactly its successor.
func VerifyChain(units []*Unit) error {
	if len(units) < 2 || !units[0].IsMain() {
		return exerrors.ChainBroken("chain must start with the main unit followed by at least one section")
	}
	seen := make(map[int]bool, len(units))
	for i, u := range units[1:] {
		want := i + 1
		if u.IsMain() {
			return exerrors.ChainBroken("second main unit at position %d", i+1)
		}
		if seen[u.Ordinal] {
			return exerrors.ChainBroken("duplicated section ordinal %d", u.Ordinal)
		}
		seen[u.Ordinal] = true
		if u.Ordinal != want {
			return exerrors.ChainBroken("section ordinal %d at position %d, expected %d", u.Ordinal, i+1, want)
		}
		if !definesLabel(u.Program, partition.SectionLabel(u.Ordinal)) {
			return exerrors.ChainBroken("section %d does not define %s", u.Ordinal, partition.SectionLabel(u.Ordinal))
		}
	}

	n := len(units) - 1
	for _, u := range units {
		calls := sectionCalls(u.Program)
		switch {
		case u.Ordinal < n:
			next := partition.SectionLabel(u.Ordinal + 1)
			if len(calls) != 1 || calls[0] != next {
				return exerrors.ChainBroken("unit %s calls %v, expected [%s]", u.Name, calls, next)
			}
		default:
			if len(calls) != 0 {
				return exerrors.ChainBroken("final unit %s calls %v", u.Name, calls)
			}
		}
	}
	return nil
}

// Flatten follows the call chain from the main unit and returns the original
// trace text in execution order, leaving out everything instrumentation and
// glue inserted.
func Flatten(units []*Unit) ([]string, error) {
	byLabel := make(map[string]*Unit, len(units))
	for _, u := range units[1:] {
		byLabel[partition.SectionLabel(u.Ordinal)] = u
	}
	visited := make(map[string]bool)
	var out []string
	var walk func(u *Unit) error
	walk = func(u *Unit) error {
		for _, r := range u.Program.Records() {
			switch {
			case r.Tag == asm.Instruction:
				out = append(out, r.Payload)
			case isSectionCall(r):
				next, ok := byLabel[r.Payload]
				if !ok {
					return exerrors.ChainBroken("unit %s calls unknown %s", u.Name, r.Payload)
				}
				if visited[r.Payload] {
					return exerrors.ChainBroken("%s entered twice", r.Payload)
				}
				visited[r.Payload] = true
				if err := walk(next); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if len(units) == 0 || !units[0].IsMain() {
		return nil, exerrors.ChainBroken("no main unit")
	}
	if err := walk(units[0]); err != nil {
		return nil, err
	}
	return out, nil
}
