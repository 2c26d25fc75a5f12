package newick_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/internal/newick"
)

func TestParseBifurcatingRoot(t *testing.T) {
	tree, err := newick.Parse("((A:0.1,B:0.2):0.3,(C:0.4,D:0.5):0.6);")
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Tips)
	branches, err := tree.Branches()
	require.NoError(t, err)
	assert.Len(t, branches, 2*tree.Tips-3, "branch enumeration must produce exactly 2*tips-3 branches")
}

func TestParseTrifurcatingRoot(t *testing.T) {
	tree, err := newick.Parse("(A:0.1,B:0.2,(C:0.3,D:0.4):0.5);")
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Tips)
	branches, err := tree.Branches()
	require.NoError(t, err)
	assert.Len(t, branches, 2*tree.Tips-3)
}

func TestParseRejectsTooFewTips(t *testing.T) {
	_, err := newick.Parse("(A:0.1,B:0.2);")
	var pe *newick.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseRejectsMissingSemicolon(t *testing.T) {
	_, err := newick.Parse("((A:0.1,B:0.2),(C:0.3,D:0.4))")
	var pe *newick.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseRejectsNonBifurcatingInner(t *testing.T) {
	_, err := newick.Parse("((A:0.1,B:0.2,C:0.3):0.4,(D:0.5,E:0.6):0.7);")
	var pe *newick.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestWriteNumberedRoundTrip(t *testing.T) {
	tree, err := newick.Parse("((A:0.1,B:0.2):0.3,(C:0.4,D:0.5):0.6);")
	require.NoError(t, err)

	out, err := newick.WriteNumbered(tree)
	require.NoError(t, err)

	for _, tip := range []string{"A", "B", "C", "D"} {
		assert.Contains(t, out, tip)
	}

	edgeNumPattern := regexp.MustCompile(`\{(\d+)\}`)
	matches := edgeNumPattern.FindAllStringSubmatch(out, -1)
	branches, err := tree.Branches()
	require.NoError(t, err)
	assert.Len(t, matches, len(branches), "one edge-number tag per branch")

	seen := make(map[string]bool)
	for _, m := range matches {
		seen[m[1]] = true
	}
	assert.Len(t, seen, len(branches), "edge numbers must be distinct")

	reparsed, err := newick.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, tree.Tips, reparsed.Tips, "round-tripped tree keeps the same tip count")
}
