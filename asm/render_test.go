package asm

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var p Program
	p.Append(
		Dir(".section\t.text"),
		Dir(".globl %s", "_section1"),
		Lbl("_section1"),
		Guardf("push %d", 7),
		Insn(`mov eax, dword ptr [0x804a010] /* "q" \ */`),
		CallTo("_section2"),
		Ret(),
	)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, &p))

	want := "asm (\n" +
		"\".section\t.text\\n\"\n" +
		"\".globl _section1\\n\"\n" +
		"\"_section1:\\n\"\n" +
		"\"push 7\\n\"\n" +
		"\"mov eax, dword ptr [0x804a010] /* \\\"q\\\" \\\\ */\\n\"\n" +
		"\"call _section2\\n\"\n" +
		"\"ret\\n\"\n" +
		");\n"
	assert.Equal(t, want, buf.String())
}

func TestProgramQueries(t *testing.T) {
	var p Program
	p.Append(Insn("nop"), CallTo("_section1"), Insn("nop"), Ret())

	assert.Equal(t, 4, p.Len())
	assert.Equal(t, []string{"_section1"}, p.Calls())
	assert.Equal(t, 2, p.Count(Instruction))

	recs := p.Records()
	recs[0].Payload = "changed"
	assert.Equal(t, "nop", p.Records()[0].Payload, "Records returns a copy")
}

func TestWriteFile(t *testing.T) {
	var p Program
	p.Append(Ret())
	path := filepath.Join(t.TempDir(), "exslice.1.c")
	require.NoError(t, WriteFile(path, &p))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "asm (\n\"ret\\n\"\n);\n", string(data))
}
