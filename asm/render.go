package asm

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

var cEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Render writes p as
//
//	asm (
//	"<line>\n"
//	...
//	);
//
// Each record becomes one C string literal; backslashes and quotes in trace
// text are escaped so the literal survives the C front end unchanged.
func Render(w io.Writer, p *Program) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	bw.WriteString("asm (\n")
	for _, r := range p.records {
		bw.WriteByte('"')
		bw.WriteString(cEscaper.Replace(r.Text()))
		bw.WriteString("\\n\"\n")
	}
	bw.WriteString(");\n")
	return bw.Flush()
}

// WriteFile renders p into path, replacing any previous content.
func WriteFile(path string, p *Program) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create unit %s", path)
	}
	if err := Render(f, p); err != nil {
		f.Close()
		return errors.Wrapf(err, "write unit %s", path)
	}
	return errors.Wrapf(f.Close(), "close unit %s", path)
}
