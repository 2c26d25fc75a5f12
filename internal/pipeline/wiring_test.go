package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/pipeline"
	"github.com/evoplace/placer/internal/residentset"
	"github.com/evoplace/placer/internal/sample"
	"github.com/evoplace/placer/internal/tinytree"
	"github.com/evoplace/placer/internal/work"
)

type wiringGeometry struct{}

func (wiringGeometry) BranchInfo(branchID domain.BranchID) (float64, int, int) { return 0.3, 0, 1 }

func buildWiringContext(t *testing.T) *pipeline.PlacementContext {
	t.Helper()
	p := kernel.NewPartition(kernel.NewJC69(1.0, 1), 6, 4, 0, 0)
	proximal, err := p.TipCLV("ACGTAC", alphabet.DNA())
	require.NoError(t, err)
	distal, err := p.TipCLV("AGTCAG", alphabet.DNA())
	require.NoError(t, err)
	resident := residentset.New(p, 4, nil, func(ctx context.Context, clvIndex int) ([]float64, error) {
		if clvIndex == 0 {
			return proximal, nil
		}
		return distal, nil
	})
	return &pipeline.PlacementContext{
		Partition: p,
		Resident:  resident,
		Alpha:     alphabet.DNA(),
		Geometry:  wiringGeometry{},
		Threads:   1,
	}
}

func singleCycleChunk() *domain.Chunk {
	return &domain.Chunk{
		Records: []domain.Record{
			{Header: "q0", Sequence: "ACGTAC"},
			{Header: "q1", Sequence: "AGTCAG"},
		},
		IsLast: true,
	}
}

func TestBuildDirectScoresAndStopsAfterOneCycle(t *testing.T) {
	pc := buildWiringContext(t)
	chunk := singleCycleChunk()
	w := work.FromPairs([]work.Pair{{BranchID: 0, SequenceID: 0}, {BranchID: 0, SequenceID: 1}}, true)

	ingest := func(ctx context.Context, in any) (any, error) {
		return &pipeline.Cycle{Work: w, Chunk: chunk}, nil
	}
	var written *pipeline.CycleResult
	write := func(ctx context.Context, in any) (any, error) {
		written = in.(*pipeline.CycleResult)
		return nil, nil
	}

	p := pipeline.BuildDirect(ingest, write, pc)
	require.NoError(t, p.Run(context.Background()))

	require.NotNil(t, written)
	assert.Equal(t, 2, len(written.Sample.Entries(0))+len(written.Sample.Entries(1)))
}

func TestBuildPrescoringNarrowsWorkBetweenPreplaceAndThorough(t *testing.T) {
	pc := buildWiringContext(t)
	lookups := lookupstore.New(1, 6, alphabet.DNA())
	require.NoError(t, lookups.InitBranch(0, make([]float64, 6*4)))
	pc.Lookups = lookups
	chunk := singleCycleChunk()
	w := work.FromPairs([]work.Pair{{BranchID: 0, SequenceID: 0}, {BranchID: 0, SequenceID: 1}}, true)

	ingest := func(ctx context.Context, in any) (any, error) {
		return &pipeline.Cycle{Work: w, Chunk: chunk}, nil
	}
	var written *pipeline.CycleResult
	write := func(ctx context.Context, in any) (any, error) {
		written = in.(*pipeline.CycleResult)
		return nil, nil
	}

	filter := pipeline.FilterConfig{Threshold: 0, MinK: 1, MaxK: 1}
	p := pipeline.BuildPrescoring(ingest, write, pc, filter)
	require.NoError(t, p.Run(context.Background()))

	require.NotNil(t, written)
	for _, seqID := range written.Sample.SequenceIDs() {
		assert.LessOrEqual(t, len(written.Sample.Entries(seqID)), 1, "candidate_select with MaxK=1 must narrow each query to one candidate before thorough scoring")
	}
}

func TestCandidateSelectStageRebuildsWorkFromSurvivors(t *testing.T) {
	chunk := singleCycleChunk()
	result := &pipeline.CycleResult{Chunk: chunk, Sample: sample.New()}
	result.Sample.AddPlacement(0, "q0", tinytree.Placement{BranchID: 1, LogL: -10})
	result.Sample.AddPlacement(0, "q0", tinytree.Placement{BranchID: 2, LogL: -1})

	stage := pipeline.CandidateSelectStage(pipeline.FilterConfig{MinK: 1, MaxK: 1})
	out, err := stage(context.Background(), result)
	require.NoError(t, err)

	cycle := out.(*pipeline.Cycle)
	assert.Equal(t, 1, cycle.Work.Len())
	assert.True(t, cycle.Work.IsLast, "candidate_select must propagate the chunk's IsLast flag to the narrowed work set")
}
