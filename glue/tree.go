package glue

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/colorfulnotion/exslice/asm"
)

// ChainTree renders the call chain as a nested tree, one level per call.
func ChainTree(name string, units []*Unit) treeprint.Tree {
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (%s)", MainName, name))
	if len(units) == 0 {
		return tree
	}
	tree.AddNode(fmt.Sprintf("prologue+epilogue: %d lines", units[0].Program.Count(asm.Instruction)))

	branch := tree
	for _, u := range units[1:] {
		p := u.Program
		branch = branch.AddBranch(fmt.Sprintf("_section%d: %d lines, %d guard records", u.Ordinal, p.Count(asm.Instruction), p.Count(asm.Guard)))
	}
	branch.AddNode("divergence handlers")
	return tree
}
