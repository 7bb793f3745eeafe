// Package trace reads the assembly slices produced by the slice
// post-processor and classifies every line.
//
// A slice file has three regions:
//
//	prologue        environment restore up to the point recording began
//	/*slice begins*/
//	body            the recorded instructions, one per line
//	/* restoring address and registers */
//	epilogue        register and address restoration
//
// Lines are opaque text; classification only looks for marker substrings.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/exerrors"
)

const maxLineSize = 16 * 1024 * 1024

type Kind uint8

const (
	Ordinary Kind = iota
	IndirectJump
	IndexDispatch
	SliceStart
	Epilogue
)

func (k Kind) String() string {
	switch k {
	case Ordinary:
		return "ordinary"
	case IndirectJump:
		return "indirect-jump"
	case IndexDispatch:
		return "index-dispatch"
	case SliceStart:
		return "slice-start"
	case Epilogue:
		return "epilogue"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Line is one classified trace record. Num is the 1-based line number in the
// source file. SplitSafe is the section-boundary marker; it rides on
// instruction lines so it is kept apart from Kind.
type Line struct {
	Num       int
	Text      string
	Kind      Kind
	SplitSafe bool
}

// Flagged reports whether the line is an indirect control transfer that gets
// a divergence guard.
func (l Line) Flagged() bool {
	return l.Kind == IndirectJump || l.Kind == IndexDispatch
}

type Classifier struct {
	markers config.Markers
}

func NewClassifier(m config.Markers) *Classifier {
	return &Classifier{markers: m}
}

// Classify tags a trimmed line. Region markers match the whole line, flavor
// and split markers match as substrings.
func (c *Classifier) Classify(num int, text string) Line {
	l := Line{Num: num, Text: text}
	switch {
	case text == c.markers.Epilogue:
		l.Kind = Epilogue
	case text == c.markers.SliceStart:
		l.Kind = SliceStart
	case strings.Contains(text, c.markers.IndirectJump):
		l.Kind = IndirectJump
	case strings.Contains(text, c.markers.IndexDispatch):
		l.Kind = IndexDispatch
	}
	l.SplitSafe = strings.Contains(text, c.markers.SplitSafe)
	return l
}

type Document struct {
	Name     string
	Prologue []Line
	Body     []Line
	Epilogue []Line
}

// Flagged returns the number of body lines that carry a divergence marker.
func (d *Document) Flagged() int {
	n := 0
	for _, l := range d.Body {
		if l.Flagged() {
			n++
		}
	}
	return n
}

// Read splits r into its three regions. A missing slice-start or epilogue
// marker means the capture is malformed.
func Read(name string, r io.Reader, m config.Markers) (*Document, error) {
	c := NewClassifier(m)
	doc := &Document{Name: name}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	region := SliceStart // the region whose opening marker we are waiting for
	num := 0
	for sc.Scan() {
		num++
		l := c.Classify(num, strings.TrimSpace(sc.Text()))
		switch region {
		case SliceStart:
			if l.Kind == SliceStart {
				region = Epilogue
				continue
			}
			doc.Prologue = append(doc.Prologue, l)
		case Epilogue:
			if l.Kind == Epilogue {
				region = Ordinary
				continue
			}
			doc.Body = append(doc.Body, l)
		default:
			doc.Epilogue = append(doc.Epilogue, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s at line %d", name, num)
	}

	switch region {
	case SliceStart:
		return nil, exerrors.MalformedTrace("%s: slice start marker %q not found", name, m.SliceStart)
	case Epilogue:
		return nil, exerrors.MalformedTrace("%s: epilogue marker %q not found after %d lines", name, m.Epilogue, num)
	}
	return doc, nil
}

func ReadFile(path string, m config.Markers) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open trace %s", path)
	}
	defer f.Close()
	return Read(path, f, m)
}
