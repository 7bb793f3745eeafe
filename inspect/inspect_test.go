package inspect

import (
	"debug/elf"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/exslice/exerrors"
)

func table(defined ...string) *SymbolTable {
	t := NewSymbolTable(32)
	for _, name := range defined {
		t.add(elf.Symbol{Name: name, Section: elf.SectionIndex(1), Value: 0x1000})
	}
	return t
}

func TestCheckArtifact(t *testing.T) {
	full := table("_section1", "_section2", "jump_diverge", "index_diverge", "handle_jump_diverge", "handle_index_diverge")
	assert.NoError(t, CheckArtifact(full, 2, "jump_diverge", "index_diverge"))

	partial := table("_section1", "jump_diverge", "index_diverge")
	partial.add(elf.Symbol{Name: "handle_jump_diverge", Section: elf.SHN_UNDEF})
	err := CheckArtifact(partial, 2, "jump_diverge", "index_diverge")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrArtifactContract))
	assert.Contains(t, err.Error(), "_section2")
	assert.Contains(t, err.Error(), "handle_index_diverge")
	assert.NotContains(t, err.Error(), "handle_jump_diverge", "a reference is enough for a handler")
	assert.True(t, partial.Undefined["handle_jump_diverge"])

	stubless := table("_section1", "handle_jump_diverge", "handle_index_diverge")
	err = CheckArtifact(stubless, 1, "jump_diverge", "index_diverge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[index_diverge jump_diverge]")
}

func TestDefinitionWinsOverReference(t *testing.T) {
	tab := NewSymbolTable(32)
	tab.add(elf.Symbol{Name: "handle_jump_diverge", Section: elf.SHN_UNDEF})
	tab.add(elf.Symbol{Name: "handle_jump_diverge", Section: elf.SectionIndex(9)})
	tab.add(elf.Symbol{Name: "handle_jump_diverge", Section: elf.SHN_UNDEF})
	_, ok := tab.Defined["handle_jump_diverge"]
	assert.True(t, ok)
	assert.False(t, tab.Undefined["handle_jump_diverge"])
}

func TestDecodeGuardSequence(t *testing.T) {
	code := []byte{
		0x9c,       // pushfd
		0x6a, 0x03, // push 3
		0x83, 0xc4, 0x04, // add esp, 4
		0x9d, // popfd
		0xc3, // ret
	}
	out := Decode(code, 32, 0x1000, 16)
	require.Len(t, out, 5)
	assert.True(t, strings.HasPrefix(out[0], "00001000: "))
	assert.True(t, strings.HasPrefix(out[1], "00001001: "))
	assert.True(t, strings.HasPrefix(out[2], "00001003: "))
	assert.Contains(t, out[2], "add esp")
	assert.Contains(t, out[4], "ret")

	assert.Len(t, Decode(code, 32, 0, 2), 2, "bounded by limit")
}

func TestSymbolsMissingFile(t *testing.T) {
	_, err := Symbols(filepath.Join(t.TempDir(), "exslice.7.so"))
	assert.Error(t, err)
}
