package trace

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/exerrors"
)

const sample = `.intel_syntax noprefix
mov esp, 0xbfffe000
/*slice begins*/
mov eax, dword ptr [0x804a010] /* [ORIGINAL_SLICE] 0x8048400 */
  add eax, 4
cmp eax, 0x8048500
jne jump_diverge
cmp ecx, 3 /* [ORIGINAL_SLICE] */
jne index_diverge
/* restoring address and registers */
mov dword ptr [0x804a010], eax
mov esp, 0xbfffe000
`

func TestReadRegions(t *testing.T) {
	doc, err := Read("exslice.42.asm", strings.NewReader(sample), config.Default().Markers)
	require.NoError(t, err)

	require.Len(t, doc.Prologue, 2)
	require.Len(t, doc.Body, 6)
	require.Len(t, doc.Epilogue, 2)

	assert.Equal(t, "add eax, 4", doc.Body[1].Text, "lines are trimmed")
	assert.Equal(t, 5, doc.Body[1].Num)
	assert.Equal(t, 2, doc.Flagged())

	kinds := make([]Kind, 0, len(doc.Body))
	for _, l := range doc.Body {
		kinds = append(kinds, l.Kind)
	}
	assert.Equal(t, []Kind{Ordinary, Ordinary, Ordinary, IndirectJump, Ordinary, IndexDispatch}, kinds)
	assert.True(t, doc.Body[0].SplitSafe)
	assert.True(t, doc.Body[4].SplitSafe)
	assert.False(t, doc.Body[3].SplitSafe)
}

func TestReadMissingEpilogue(t *testing.T) {
	in := strings.Replace(sample, "/* restoring address and registers */\n", "", 1)
	_, err := Read("exslice.42.asm", strings.NewReader(in), config.Default().Markers)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrMalformedTrace))
	assert.Contains(t, err.Error(), "epilogue marker")
}

func TestReadMissingSliceStart(t *testing.T) {
	in := strings.Replace(sample, "/*slice begins*/\n", "", 1)
	_, err := Read("exslice.42.asm", strings.NewReader(in), config.Default().Markers)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrMalformedTrace))
}

func TestClassifyJumpLabelIsNotFlagged(t *testing.T) {
	c := NewClassifier(config.Default().Markers)
	// the handler label itself has no leading space before the marker
	assert.Equal(t, Ordinary, c.Classify(1, "jump_diverge:").Kind)
	assert.Equal(t, IndirectJump, c.Classify(2, "jmp jump_diverge").Kind)
	assert.Equal(t, "index-dispatch", IndexDispatch.String())
}
