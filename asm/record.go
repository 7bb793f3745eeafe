// Package asm models emitted assembly as typed line records and renders them
// into C translation units made of a single top-level asm() block, which is
// what gcc -masm=intel compiles for every section.
package asm

import "fmt"

type Tag uint8

const (
	Directive   Tag = iota // assembler directive, e.g. .globl
	Label                  // symbol definition, rendered with a trailing colon
	Instruction            // original trace text, never modified
	Guard                  // instruction inserted around a divergence site
	Call                   // explicit call into another unit
	Stub                   // divergence handler body shared by every site
	Return
)

func (t Tag) String() string {
	switch t {
	case Directive:
		return "directive"
	case Label:
		return "label"
	case Instruction:
		return "instruction"
	case Guard:
		return "guard"
	case Call:
		return "call"
	case Return:
		return "return"
	case Stub:
		return "stub"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Record is one emitted line. For Label and Call, Payload is the symbol name.
type Record struct {
	Tag     Tag
	Payload string
}

func Dir(format string, args ...interface{}) Record {
	return Record{Tag: Directive, Payload: fmt.Sprintf(format, args...)}
}

func Guardf(format string, args ...interface{}) Record {
	return Record{Tag: Guard, Payload: fmt.Sprintf(format, args...)}
}

func Stubf(format string, args ...interface{}) Record {
	return Record{Tag: Stub, Payload: fmt.Sprintf(format, args...)}
}

func Lbl(name string) Record    { return Record{Tag: Label, Payload: name} }
func Insn(text string) Record   { return Record{Tag: Instruction, Payload: text} }
func CallTo(name string) Record { return Record{Tag: Call, Payload: name} }
func Ret() Record               { return Record{Tag: Return} }

// Text is the assembly text of the record.
func (r Record) Text() string {
	switch r.Tag {
	case Label:
		return r.Payload + ":"
	case Call:
		return "call " + r.Payload
	case Return:
		return "ret"
	default:
		return r.Payload
	}
}

// Program is an append-only record sequence.
type Program struct {
	records []Record
}

func (p *Program) Append(rs ...Record) {
	p.records = append(p.records, rs...)
}

func (p *Program) Len() int { return len(p.records) }

// Records returns a copy of the records in emission order.
func (p *Program) Records() []Record {
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Calls returns the call targets in emission order.
func (p *Program) Calls() []string {
	var out []string
	for _, r := range p.records {
		if r.Tag == Call {
			out = append(out, r.Payload)
		}
	}
	return out
}

// Count returns how many records carry tag t.
func (p *Program) Count(t Tag) int {
	n := 0
	for _, r := range p.records {
		if r.Tag == t {
			n++
		}
	}
	return n
}
