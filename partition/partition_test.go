package partition

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/exslice/exerrors"
	"github.com/colorfulnotion/exslice/trace"
)

// body builds n ordinary lines; split marks which (0-based) carry the
// split-safe marker and flagged which are indirect jumps.
func body(n int, split []int, flagged []int) *trace.Document {
	doc := &trace.Document{Name: "exslice.7.asm"}
	for i := 0; i < n; i++ {
		doc.Body = append(doc.Body, trace.Line{Num: i + 1, Text: fmt.Sprintf("mov eax, %d", i)})
	}
	for _, i := range split {
		doc.Body[i].SplitSafe = true
	}
	for _, i := range flagged {
		doc.Body[i].Kind = trace.IndirectJump
		doc.Body[i].Text = "jne jump_diverge"
	}
	return doc
}

func unitCost(trace.Line) int { return 1 }

func ordinals(p *Plan) []int {
	out := make([]int, 0, len(p.Sections))
	for _, s := range p.Sections {
		out = append(out, s.Ordinal)
	}
	return out
}

func TestUnderThresholdNeverSplits(t *testing.T) {
	doc := body(50, []int{10, 20, 30, 40}, nil)
	plan, err := Partition(doc, Options{Threshold: 100, Cost: unitCost})
	require.NoError(t, err)
	require.Len(t, plan.Sections, 1)
	assert.Len(t, plan.Sections[0].Lines, 50)
	assert.Equal(t, 50, plan.Sections[0].Cost)
}

func TestNoMarkerEmitsSingleOversizedSection(t *testing.T) {
	doc := body(500, nil, nil)
	plan, err := Partition(doc, Options{Threshold: 10, Cost: unitCost})
	require.NoError(t, err)
	require.Len(t, plan.Sections, 1)
	assert.Equal(t, 500, plan.Sections[0].Cost)
}

func TestStrictRejectsOversizedSection(t *testing.T) {
	doc := body(500, nil, nil)
	_, err := Partition(doc, Options{Threshold: 10, Cost: unitCost, Strict: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrMalformedTrace))
}

func TestSplitsAtMarkersPastThreshold(t *testing.T) {
	// threshold 9: cost reaches 10 after line index 9, so markers at 10, 25, 40
	// are each past threshold; the marker at 12 is not (cost 2 in section 2).
	doc := body(50, []int{10, 12, 25, 40}, nil)
	plan, err := Partition(doc, Options{Threshold: 9, Cost: unitCost})
	require.NoError(t, err)

	require.Equal(t, []int{1, 2, 3, 4}, ordinals(plan))
	assert.Equal(t, 10, plan.Sections[0].Cost)
	assert.Equal(t, 15, plan.Sections[1].Cost)
	assert.Equal(t, 15, plan.Sections[2].Cost)
	assert.Equal(t, 10, plan.Sections[3].Cost)

	// the marker line opens the new section
	assert.Equal(t, 11, plan.Sections[1].Lines[0].Num)
	assert.True(t, plan.Sections[1].Lines[0].SplitSafe)
	assert.Equal(t, "_section3", plan.Sections[2].Label())
}

func TestEveryLineExactlyOnceInOrder(t *testing.T) {
	doc := body(1000, []int{100, 150, 333, 600, 601, 602, 999}, []int{5, 101, 600})
	plan, err := Partition(doc, Options{Threshold: 120, Cost: WeightedCost(trace.Line.Flagged, 5)})
	require.NoError(t, err)

	var seen []int
	for _, s := range plan.Sections {
		for _, l := range s.Lines {
			seen = append(seen, l.Num)
		}
	}
	require.Len(t, seen, 1000)
	for i, n := range seen {
		assert.Equal(t, i+1, n)
	}
	assert.Equal(t, 1000+3*4, plan.Cost(), "guarded lines weigh 5")
}

func TestWeightedCostMovesSplitPoint(t *testing.T) {
	split := []int{6}
	plain, err := Partition(body(10, split, nil), Options{Threshold: 7, Cost: WeightedCost(trace.Line.Flagged, 5)})
	require.NoError(t, err)
	assert.Len(t, plain.Sections, 1, "cost 6 at the marker, below threshold")

	heavy, err := Partition(body(10, split, []int{0}), Options{Threshold: 7, Cost: WeightedCost(trace.Line.Flagged, 5)})
	require.NoError(t, err)
	assert.Len(t, heavy.Sections, 2, "the guarded first line pushes cost to 10")
}

func TestIdempotent(t *testing.T) {
	doc := body(300, []int{50, 90, 140, 200, 260}, []int{3, 60, 270})
	opts := Options{Threshold: 40, Cost: WeightedCost(trace.Line.Flagged, 5)}

	a, err := Partition(doc, opts)
	require.NoError(t, err)
	b, err := Partition(doc, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptyBody(t *testing.T) {
	plan, err := Partition(&trace.Document{Name: "empty"}, Options{Threshold: 10})
	require.NoError(t, err)
	require.Len(t, plan.Sections, 1)
	assert.Empty(t, plan.Sections[0].Lines)
}
