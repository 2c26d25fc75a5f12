package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/internal/pipeline"
)

type countingMarker struct {
	cycle int
	total int
}

func (m countingMarker) IsLastCycle() bool { return m.cycle >= m.total }

func TestRunExecutesUntilIsLastCycle(t *testing.T) {
	var cycles int
	s0 := func(ctx context.Context, in any) (any, error) {
		cycles++
		return countingMarker{cycle: cycles, total: 3}, nil
	}
	var sunk []int
	s1 := func(ctx context.Context, in any) (any, error) {
		sunk = append(sunk, in.(countingMarker).cycle)
		return nil, nil
	}

	p := pipeline.New([]pipeline.Stage{s0, s1})
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 3, cycles)
	assert.Equal(t, []int{1, 2, 3}, sunk)
}

func TestRunInvokesInitPrehookAndFinalizeInOrder(t *testing.T) {
	var order []string
	init := func(ctx context.Context) error { order = append(order, "init"); return nil }
	finalize := func(ctx context.Context) error { order = append(order, "finalize"); return nil }
	prehook := func(ctx context.Context) error { order = append(order, "prehook"); return nil }

	s0 := func(ctx context.Context, in any) (any, error) {
		order = append(order, "s0")
		return countingMarker{cycle: 1, total: 1}, nil
	}

	p := pipeline.New([]pipeline.Stage{s0}, pipeline.WithInit(init), pipeline.WithFinalize(finalize), pipeline.WithPrehook(prehook))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"init", "prehook", "s0", "finalize"}, order)
}

func TestRunPropagatesStageError(t *testing.T) {
	boom := errors.New("stage failed")
	s0 := func(ctx context.Context, in any) (any, error) { return nil, boom }

	p := pipeline.New([]pipeline.Stage{s0})
	err := p.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunPassesEachStageOutputToTheNext(t *testing.T) {
	s0 := func(ctx context.Context, in any) (any, error) {
		return countingMarker{cycle: 1, total: 1}, nil
	}
	s1 := func(ctx context.Context, in any) (any, error) {
		m := in.(countingMarker)
		return m.cycle * 10, nil
	}
	var final int
	s2 := func(ctx context.Context, in any) (any, error) {
		final = in.(int)
		return nil, nil
	}

	p := pipeline.New([]pipeline.Stage{s0, s1, s2})
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 10, final)
}
