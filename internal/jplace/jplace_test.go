package jplace_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/jplace"
	"github.com/evoplace/placer/internal/newick"
	"github.com/evoplace/placer/internal/sample"
	"github.com/evoplace/placer/internal/tinytree"
)

func treeFixture(t *testing.T) *domain.Tree {
	t.Helper()
	tree, err := newick.Parse("((A:0.1,B:0.2):0.3,(C:0.4,D:0.5):0.6);")
	require.NoError(t, err)
	return tree
}

func TestBuildSortsByDescendingLWR(t *testing.T) {
	tree := treeFixture(t)
	s := sample.New()
	s.AddPlacement(0, "query-1", tinytree.Placement{BranchID: 1, LogL: -10, Pendant: 0.01, Distal: 0.02})
	s.AddPlacement(0, "query-1", tinytree.Placement{BranchID: 2, LogL: -2, Pendant: 0.01, Distal: 0.02})
	sample.ComputeAndSetLWR(s)

	doc, err := jplace.Build(tree, s, "placer --thorough")
	require.NoError(t, err)

	require.Len(t, doc.Placements, 1)
	rows := doc.Placements[0].P
	require.Len(t, rows, 2)
	assert.GreaterOrEqual(t, rows[0][3], rows[1][3], "rows must be sorted by descending lwr")
}

func TestBuildFieldOrderMatchesRowLayout(t *testing.T) {
	tree := treeFixture(t)
	s := sample.New()
	s.AddPlacement(0, "query-1", tinytree.Placement{BranchID: 7, LogL: -3, Pendant: 0.05, Distal: 0.11})
	sample.ComputeAndSetLWR(s)

	doc, err := jplace.Build(tree, s, "")
	require.NoError(t, err)

	assert.Equal(t, jplace.FieldOrder, doc.Fields)
	row := doc.Placements[0].P[0]
	require.Len(t, row, len(jplace.FieldOrder))
	assert.Equal(t, float64(7), row[1], "branch_id column")
	assert.Equal(t, -3.0, row[2], "likelihood column")
	assert.Equal(t, 0.11, row[4], "distal_length column")
	assert.Equal(t, 0.05, row[5], "pendant_length column")
}

func TestBuildIncludesNumberedTree(t *testing.T) {
	tree := treeFixture(t)
	doc, err := jplace.Build(tree, sample.New(), "")
	require.NoError(t, err)
	assert.Contains(t, doc.Tree, "{0}")
	assert.Contains(t, doc.Tree, "A")
}

func TestMarshalProducesValidJSON(t *testing.T) {
	tree := treeFixture(t)
	s := sample.New()
	s.AddPlacement(0, "query-1", tinytree.Placement{BranchID: 1, LogL: -1})
	sample.ComputeAndSetLWR(s)

	doc, err := jplace.Build(tree, s, "placer")
	require.NoError(t, err)

	raw, err := jplace.Marshal(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(3), decoded["version"])
}
