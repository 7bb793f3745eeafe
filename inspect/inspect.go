// Package inspect looks inside a linked artifact: it checks the symbol
// contract the resumption tool relies on and disassembles section code for
// postmortem work.
package inspect

import (
	"debug/elf"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/colorfulnotion/exslice/exerrors"
	"github.com/colorfulnotion/exslice/instrument"
	"github.com/colorfulnotion/exslice/log"
	"github.com/colorfulnotion/exslice/partition"
)

type SymbolTable struct {
	Defined   map[string]elf.Symbol
	Undefined map[string]bool
	Mode      int // 32 or 64
}

func NewSymbolTable(mode int) *SymbolTable {
	return &SymbolTable{
		Defined:   make(map[string]elf.Symbol),
		Undefined: make(map[string]bool),
		Mode:      mode,
	}
}

func (t *SymbolTable) add(s elf.Symbol) {
	if s.Name == "" {
		return
	}
	if s.Section == elf.SHN_UNDEF {
		if _, ok := t.Defined[s.Name]; !ok {
			t.Undefined[s.Name] = true
		}
		return
	}
	t.Defined[s.Name] = s
	delete(t.Undefined, s.Name)
}

// Symbols reads both the static and the dynamic symbol tables of path.
func Symbols(path string) (*SymbolTable, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open artifact %s", path)
	}
	defer f.Close()
	return symbolsOf(f)
}

func symbolsOf(f *elf.File) (*SymbolTable, error) {
	mode := 64
	if f.Class == elf.ELFCLASS32 {
		mode = 32
	}
	t := NewSymbolTable(mode)
	static, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrap(err, "read symtab")
	}
	dynamic, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.Wrap(err, "read dynsym")
	}
	for _, s := range static {
		t.add(s)
	}
	for _, s := range dynamic {
		t.add(s)
	}
	return t, nil
}

// CheckArtifact verifies that every section entry and both divergence stubs
// are defined in the artifact, and that both runtime handlers are at least
// referenced.
func CheckArtifact(t *SymbolTable, sections int, jumpLabel, indexLabel string) error {
	want := make([]string, 0, sections+2)
	for i := 1; i <= sections; i++ {
		want = append(want, partition.SectionLabel(i))
	}
	want = append(want, jumpLabel, indexLabel)

	var missing []string
	for _, name := range want {
		if _, ok := t.Defined[name]; !ok {
			missing = append(missing, name)
		}
	}
	for _, name := range []string{instrument.JumpHandler, instrument.IndexHandler} {
		if _, ok := t.Defined[name]; !ok && !t.Undefined[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return exerrors.ArtifactContract("missing symbols %v", missing)
	}
	log.Debug(log.InspectModule, "artifact symbols ok", "sections", sections)
	return nil
}

// Decode disassembles up to limit instructions of code in Intel syntax. pc is
// the address of code[0].
func Decode(code []byte, mode int, pc uint64, limit int) []string {
	var out []string
	for off := 0; off < len(code) && len(out) < limit; {
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil {
			out = append(out, fmt.Sprintf("%08x: .byte %#02x", pc+uint64(off), code[off]))
			off++
			continue
		}
		out = append(out, fmt.Sprintf("%08x: %s", pc+uint64(off), x86asm.IntelSyntax(inst, pc+uint64(off), nil)))
		off += inst.Len
	}
	return out
}

// Disassemble decodes up to limit instructions starting at symbol.
func Disassemble(path, symbol string, limit int) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open artifact %s", path)
	}
	defer f.Close()

	t, err := symbolsOf(f)
	if err != nil {
		return nil, err
	}
	sym, ok := t.Defined[symbol]
	if !ok {
		return nil, errors.Newf("symbol %s not defined in %s", symbol, path)
	}
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_EXECINSTR == 0 || sym.Value < s.Addr || sym.Value >= s.Addr+s.Size {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", s.Name)
		}
		start := sym.Value - s.Addr
		end := uint64(len(data))
		// asm labels carry no size; decode to the section end, bounded by limit
		if sym.Size > 0 && start+sym.Size < end {
			end = start + sym.Size
		}
		return Decode(data[start:end], t.Mode, sym.Value, limit), nil
	}
	return nil, errors.Newf("symbol %s at %#x is outside any executable section", symbol, sym.Value)
}
