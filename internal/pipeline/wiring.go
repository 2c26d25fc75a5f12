package pipeline

import (
	"context"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/driver"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/residentset"
	"github.com/evoplace/placer/internal/sample"
	"github.com/evoplace/placer/internal/work"
)

// Cycle bundles one pipeline cycle's work set and the MSA chunk it scores
// against — the value type threaded between S0 and the driver-backed
// stages.
type Cycle struct {
	Work  *work.Set
	Chunk *domain.Chunk
}

// IsLastCycle implements IsLast so *Cycle can be S0's output type.
func (c *Cycle) IsLastCycle() bool { return c.Work.IsLast }

// CycleResult is a driver stage's output: the accumulated sample plus the
// chunk it was scored from, so a downstream stage can still reach the
// query sequences (e.g. candidate_select re-deriving a narrower work set).
type CycleResult struct {
	Chunk  *domain.Chunk
	Sample *sample.Sample
}

// PlacementContext bundles everything the driver-backed stages need that
// stays constant across cycles.
type PlacementContext struct {
	Partition *kernel.Partition
	Resident  *residentset.Set
	Lookups   *lookupstore.Store
	Alpha     *alphabet.Alphabet
	Geometry  driver.BranchGeometry
	Threads   int

	// Offset is the current cycle's global sequence-id base, set by the
	// ingest stage before each cycle so placements from different chunks
	// land in disjoint sequence-id space in the merged output sample. A
	// single-threaded pipeline never runs two cycles concurrently, so
	// mutating this between cycles is safe without its own lock.
	Offset domain.SequenceID

	// DefaultPendant overrides tinytree's seed pendant length; <=0 keeps
	// tinytree.DefaultBranchLength.
	DefaultPendant float64
}

func (pc *PlacementContext) runDriver(ctx context.Context, w *work.Set, chunk *domain.Chunk, thorough bool) (*sample.Sample, error) {
	out := sample.New()
	err := driver.Run(ctx, w, chunk, pc.Geometry, out, pc.Partition, pc.Resident, pc.Lookups, pc.Alpha, driver.Options{
		Threads:        pc.Threads,
		Thorough:       thorough,
		SeqIDOffset:    pc.Offset,
		DefaultPendant: pc.DefaultPendant,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PreplaceStage runs the driver in prescoring mode (thorough=false).
func PreplaceStage(pc *PlacementContext) Stage {
	return func(ctx context.Context, in any) (any, error) {
		cycle := in.(*Cycle)
		s, err := pc.runDriver(ctx, cycle.Work, cycle.Chunk, false)
		if err != nil {
			return nil, err
		}
		return &CycleResult{Chunk: cycle.Chunk, Sample: s}, nil
	}
}

// ThoroughStage runs the driver in full mode (thorough=true).
func ThoroughStage(pc *PlacementContext) Stage {
	return func(ctx context.Context, in any) (any, error) {
		cycle := in.(*Cycle)
		s, err := pc.runDriver(ctx, cycle.Work, cycle.Chunk, true)
		if err != nil {
			return nil, err
		}
		return &CycleResult{Chunk: cycle.Chunk, Sample: s}, nil
	}
}

// FilterConfig selects which discard filter candidate_select applies
// before handing the narrowed work set to the thorough stage.
type FilterConfig struct {
	ByPercentage bool // true: discard_bottom_x_percent; false: threshold-based
	Threshold    float64
	Percent      float64
	Accumulated  bool // among threshold-based filters: accumulated vs. support
	MinK, MaxK   int
}

// CandidateSelectStage computes LWR, applies the configured discard
// filter, and rebuilds a work set from the surviving pairs for the
// thorough stage.
func CandidateSelectStage(cfg FilterConfig) Stage {
	return func(ctx context.Context, in any) (any, error) {
		result := in.(*CycleResult)
		sample.ComputeAndSetLWR(result.Sample)
		switch {
		case cfg.ByPercentage:
			sample.DiscardBottomXPercent(result.Sample, cfg.Percent)
		case cfg.Accumulated:
			sample.DiscardByAccumulatedThreshold(result.Sample, cfg.Threshold, cfg.MinK, cfg.MaxK)
		default:
			sample.DiscardBySupportThreshold(result.Sample, cfg.Threshold, cfg.MinK, cfg.MaxK)
		}
		narrowed := sample.Work(result.Sample)
		narrowed.IsLast = result.Chunk.IsLast
		return &Cycle{Work: narrowed, Chunk: result.Chunk}, nil
	}
}

// BuildPrescoring wires ingest -> preplace -> candidate_select -> thorough
// -> write.
func BuildPrescoring(ingest, write Stage, pc *PlacementContext, filter FilterConfig, opts ...Option) *Pipeline {
	stages := []Stage{
		ingest,
		PreplaceStage(pc),
		CandidateSelectStage(filter),
		ThoroughStage(pc),
		write,
	}
	return New(stages, opts...)
}

// BuildDirect wires ingest -> thorough -> write.
func BuildDirect(ingest, write Stage, pc *PlacementContext, opts ...Option) *Pipeline {
	stages := []Stage{
		ingest,
		ThoroughStage(pc),
		write,
	}
	return New(stages, opts...)
}
