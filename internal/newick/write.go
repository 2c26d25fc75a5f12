package newick

import (
	"fmt"
	"strings"

	"github.com/evoplace/placer/internal/domain"
)

// WriteNumbered renders t in the "numbered Newick" form jplace output
// embeds: every branch length is followed by {N} where N is that branch's
// PMatrixIndex, letting a jplace placement record reference a branch by
// number instead of by topological path. The tree is unrooted, so the
// output is anchored at an arbitrary inner node and written as a
// trifurcation with no length on the outermost parens.
func WriteNumbered(t *domain.Tree) (string, error) {
	branches, err := t.Branches()
	if err != nil {
		return "", err
	}
	edgeNum := make(map[domain.NodeIndex]int, len(branches)*2)
	for i, b := range branches {
		edgeNum[b] = i
		edgeNum[t.Nodes[b].Back] = i
	}

	anchor := domain.NodeIndex(-1)
	for i := range t.Nodes {
		if !t.Nodes[i].IsTip() {
			anchor = domain.NodeIndex(i)
			break
		}
	}
	if anchor < 0 {
		return "", &domain.ConsistencyError{Msg: "newick: tree has no internal node to anchor the write at"}
	}

	a := anchor
	b := t.Nodes[a].Next
	c := t.Nodes[b].Next

	var sb strings.Builder
	sb.WriteString("(")
	for i, m := range [3]domain.NodeIndex{a, b, c} {
		if i > 0 {
			sb.WriteString(",")
		}
		writeChild(&sb, t, t.Nodes[m].Back, edgeNum)
	}
	sb.WriteString(");")
	return sb.String(), nil
}

// writeChild writes the subtree entered via childHalf, the half-edge that
// points back toward the branch we arrived on, including its own trailing
// :length{edgeNumber}.
func writeChild(sb *strings.Builder, t *domain.Tree, childHalf domain.NodeIndex, edgeNum map[domain.NodeIndex]int) {
	n := t.Nodes[childHalf]
	if n.IsTip() {
		sb.WriteString(n.Label)
		fmt.Fprintf(sb, ":%g{%d}", n.Length, edgeNum[childHalf])
		return
	}

	a, b := t.RingNeighbors(childHalf)
	sb.WriteString("(")
	writeChild(sb, t, t.Nodes[a].Back, edgeNum)
	sb.WriteString(",")
	writeChild(sb, t, t.Nodes[b].Back, edgeNum)
	sb.WriteString(")")
	fmt.Fprintf(sb, ":%g{%d}", n.Length, edgeNum[childHalf])
}
