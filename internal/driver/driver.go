// Package driver fans a work set out across goroutines, scoring each
// (branch, sequence) pair with a reused or freshly built tiny tree and
// merging the per-goroutine results back into one output sample.
package driver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/residentset"
	"github.com/evoplace/placer/internal/sample"
	"github.com/evoplace/placer/internal/tinytree"
	"github.com/evoplace/placer/internal/work"
)

// DefaultMultiplicity is the shard-count multiplier over thread count used
// when running multithreaded, to help the dynamic scheduler load-balance
// shards of uneven cost.
const DefaultMultiplicity = 8

// BranchGeometry resolves a branch ID to the data a tiny tree needs:
// its current length and the resident-set CLV indices of its two
// endpoints.
type BranchGeometry interface {
	BranchInfo(branchID domain.BranchID) (originalLen float64, proximalCLVIdx, distalCLVIdx int)
}

// Options configures one driver invocation.
type Options struct {
	Threads        int // thread count T; <=0 means GOMAXPROCS-equivalent caller default of 1
	Multiplicity   int // shard multiplier; <=0 uses DefaultMultiplicity when Threads > 1
	Thorough       bool
	SeqIDOffset    domain.SequenceID
	DefaultPendant float64 // <=0 uses tinytree.DefaultBranchLength
}

// Run scores every pair in w against chunk, merging results into out.
// Both the query sequence and its header come from chunk.At(sequenceID);
// results are recorded in out under sequenceID + opts.SeqIDOffset, since
// the MSA chunk and sample's sequence-ID space may be offset by Δ.
func Run(ctx context.Context, w *work.Set, chunk *domain.Chunk, geometry BranchGeometry, out *sample.Sample, partition *kernel.Partition, resident *residentset.Set, lookups *lookupstore.Store, alpha *alphabet.Alphabet, opts Options) error {
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}
	multiplicity := opts.Multiplicity
	if multiplicity < 1 {
		multiplicity = 1
		if threads > 1 {
			multiplicity = DefaultMultiplicity
		}
	}

	shardCount := threads * multiplicity
	shards := work.Split(w, shardCount)

	localSamples := make([]*sample.Sample, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			local := sample.New()
			localSamples[i] = local
			return runShard(gctx, shard, chunk, geometry, local, partition, resident, lookups, alpha, opts.Thorough, opts.SeqIDOffset, opts.DefaultPendant)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, local := range localSamples {
		sample.Merge(out, local)
	}
	sample.Collapse(out)
	return nil
}

func runShard(ctx context.Context, shard *work.Set, chunk *domain.Chunk, geometry BranchGeometry, local *sample.Sample, partition *kernel.Partition, resident *residentset.Set, lookups *lookupstore.Store, alpha *alphabet.Alphabet, thorough bool, offset domain.SequenceID, defaultPendant float64) error {
	var (
		haveTree bool
		prevID   domain.BranchID
		tree     *tinytree.Tree
	)

	for pair := range shard.Pairs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !haveTree || pair.BranchID != prevID {
			originalLen, proximalIdx, distalIdx := geometry.BranchInfo(pair.BranchID)
			tree = tinytree.NewWithDefaultPendant(pair.BranchID, originalLen, proximalIdx, distalIdx, thorough, partition, resident, lookups, alpha, defaultPendant)
			prevID = pair.BranchID
			haveTree = true
		}

		record := chunk.At(pair.SequenceID)
		placement, err := tree.Place(ctx, record.Sequence)
		if err != nil {
			return err
		}
		local.AddPlacement(pair.SequenceID+offset, record.Header, placement)
	}
	return nil
}
