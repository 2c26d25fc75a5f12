package placement_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/placement"
)

// writeFixture writes a 4-tip reference tree and a matching reference
// alignment to t.TempDir, returning both paths.
func writeFixture(t *testing.T) (treePath, msaPath string) {
	t.Helper()
	dir := t.TempDir()

	tree := "((A:0.1,B:0.1):0.2,(C:0.1,D:0.1):0.2);"
	msa := ">A\nACGTACGTACGT\n>B\nACGTACGTACGA\n>C\nTTGTACGTACGT\n>D\nTTGTACGTACGA\n"

	treePath = filepath.Join(dir, "ref.nwk")
	msaPath = filepath.Join(dir, "ref.fasta")
	require.NoError(t, os.WriteFile(treePath, []byte(tree), 0o644))
	require.NoError(t, os.WriteFile(msaPath, []byte(msa), 0o644))
	return treePath, msaPath
}

func TestBuilderBuildProducesEngine(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.NoError(t, err)
	require.NotNil(t, eng)
	require.NoError(t, eng.Close())
}

func TestBuilderRejectsEmptyTree(t *testing.T) {
	dir := t.TempDir()
	treePath := filepath.Join(dir, "empty.nwk")
	msaPath := filepath.Join(dir, "ref.fasta")
	require.NoError(t, os.WriteFile(treePath, []byte("A:0.1;"), 0o644))
	require.NoError(t, os.WriteFile(msaPath, []byte(">A\nACGT\n"), 0o644))

	_, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.ErrorIs(t, err, placement.ErrEmptyReferenceTree)
}

func TestBuilderRejectsOptBranchesDisabled(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	_, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).
		WithOptBranches(false).
		Build()
	require.Error(t, err)
	var cfgErr *placement.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuilderRejectsOptModelEnabled(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	_, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).
		WithOptModel(true).
		Build()
	require.Error(t, err)
	var cfgErr *placement.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuilderRejectsMissingTipSequence(t *testing.T) {
	dir := t.TempDir()
	treePath := filepath.Join(dir, "ref.nwk")
	msaPath := filepath.Join(dir, "ref.fasta")
	require.NoError(t, os.WriteFile(treePath, []byte("((A:0.1,B:0.1):0.2,(C:0.1,D:0.1):0.2);"), 0o644))
	require.NoError(t, os.WriteFile(msaPath, []byte(">A\nACGT\n>B\nACGT\n>C\nACGT\n"), 0o644))

	_, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.Error(t, err)
}

func TestEnginePlaceProducesDocument(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).
		WithChunkSize(2).
		Build()
	require.NoError(t, err)
	defer eng.Close()

	queries := ">q1\nACGTACGTACGT\n>q2\nTTGTACGTACGT\n"
	doc, err := eng.Place(context.Background(), strings.NewReader(queries), "test-run")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Placements, 2)

	assert.Equal(t, []string{"sequence_id", "branch_id", "likelihood", "lwr", "distal_length", "pendant_length"}, doc.Fields)

	for _, qp := range doc.Placements {
		require.NotEmpty(t, qp.P)
		var lwrSum float64
		for _, row := range qp.P {
			require.Len(t, row, len(doc.Fields))
			branchID, logl, lwr, distal, pendant := row[1], row[2], row[3], row[4], row[5]
			assert.GreaterOrEqual(t, branchID, 0.0)
			assert.Less(t, logl, 0.0, "log-likelihood of a real DNA alignment should be negative")
			assert.GreaterOrEqual(t, lwr, 0.0)
			assert.LessOrEqual(t, lwr, 1.0)
			assert.GreaterOrEqual(t, distal, 0.0)
			assert.GreaterOrEqual(t, pendant, 0.0)
			lwrSum += lwr
		}
		assert.InDelta(t, 1.0, lwrSum, 1e-6, "LWRs for one query must sum to 1")
	}
}

func TestEnginePlaceQueryIdenticalToATipPlacesOnItsPendantEdge(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.NoError(t, err)
	defer eng.Close()

	doc, err := eng.Place(context.Background(), strings.NewReader(">q\nACGTACGTACGT\n"), "test-run")
	require.NoError(t, err)
	require.Len(t, doc.Placements, 1)

	best := doc.Placements[0].P[0]
	for _, row := range doc.Placements[0].P {
		if row[3] > best[3] {
			best = row
		}
	}
	assert.Less(t, best[5], 0.05, "a query identical to tip A should attach with a short pendant length")
}

func TestEnginePlaceSameQueryTwiceIsDeterministic(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.NoError(t, err)
	defer eng.Close()

	first, err := eng.Place(context.Background(), strings.NewReader(">q\nACGTACGTACGT\n"), "run-1")
	require.NoError(t, err)
	second, err := eng.Place(context.Background(), strings.NewReader(">q\nACGTACGTACGT\n"), "run-2")
	require.NoError(t, err)

	require.Len(t, first.Placements, 1)
	require.Len(t, second.Placements, 1)
	assert.Equal(t, first.Placements[0].P, second.Placements[0].P)
}

func TestEnginePlaceThreadCountInvariance(t *testing.T) {
	treePath, msaPath := writeFixture(t)
	queries := ">q1\nACGTACGTACGT\n>q2\nTTGTACGTACGT\n"

	single, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).WithThreads(1).Build()
	require.NoError(t, err)
	defer single.Close()
	singleDoc, err := single.Place(context.Background(), strings.NewReader(queries), "run")
	require.NoError(t, err)

	multi, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).WithThreads(4).Build()
	require.NoError(t, err)
	defer multi.Close()
	multiDoc, err := multi.Place(context.Background(), strings.NewReader(queries), "run")
	require.NoError(t, err)

	require.Equal(t, len(singleDoc.Placements), len(multiDoc.Placements))
	byName := make(map[string][][]float64)
	for _, qp := range multiDoc.Placements {
		byName[qp.Name] = qp.P
	}
	for _, qp := range singleDoc.Placements {
		other, ok := byName[qp.Name]
		require.True(t, ok)
		require.Equal(t, len(qp.P), len(other))
		for i := range qp.P {
			assert.InDelta(t, qp.P[i][2], other[i][2], 1e-6, "log-likelihood must not depend on thread count")
		}
	}
}

func TestEnginePlaceHandlesAmbiguousCharacters(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.NoError(t, err)
	defer eng.Close()

	doc, err := eng.Place(context.Background(), strings.NewReader(">q\nNNNNACGTACGT\n"), "run")
	require.NoError(t, err)
	require.Len(t, doc.Placements, 1)
	require.NotEmpty(t, doc.Placements[0].P)
}

func TestEnginePlaceChunkingProducesSameQueryCountAsSingleChunk(t *testing.T) {
	treePath, msaPath := writeFixture(t)
	queries := ">q1\nACGTACGTACGT\n>q2\nTTGTACGTACGT\n>q3\nACGTACGTACGA\n>q4\nTTGTACGTACGA\n"

	chunked, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).WithChunkSize(1).Build()
	require.NoError(t, err)
	defer chunked.Close()
	chunkedDoc, err := chunked.Place(context.Background(), strings.NewReader(queries), "run")
	require.NoError(t, err)

	whole, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).WithChunkSize(100).Build()
	require.NoError(t, err)
	defer whole.Close()
	wholeDoc, err := whole.Place(context.Background(), strings.NewReader(queries), "run")
	require.NoError(t, err)

	assert.Equal(t, len(wholeDoc.Placements), len(chunkedDoc.Placements))
}

func TestEnginePlaceWithPrescoring(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).
		WithPrescoring(true).
		WithPrescoringThreshold(0.01).
		Build()
	require.NoError(t, err)
	defer eng.Close()

	queries := ">q1\nACGTACGTACGT\n"
	doc, err := eng.Place(context.Background(), strings.NewReader(queries), "test-run")
	require.NoError(t, err)
	require.NotNil(t, doc)
}

func TestEnginePlaceAfterCloseFails(t *testing.T) {
	treePath, msaPath := writeFixture(t)

	eng, err := placement.New(treePath, msaPath, placement.JC69(1.0, 1)).Build()
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	_, err = eng.Place(context.Background(), strings.NewReader(">q1\nACGT\n"), "test-run")
	require.ErrorIs(t, err, placement.ErrEngineClosed)
}
