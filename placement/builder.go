package placement

import (
	"context"
	"log/slog"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/backingstore"
	"github.com/evoplace/placer/internal/residentset"
	"github.com/evoplace/placer/internal/tinytree"
)

// Builder assembles an Engine from a reference tree, a reference
// alignment, and a substitution model, via an immutable fluent chain: each
// With* method returns a new Builder value rather than mutating the
// receiver, so a partially configured Builder can be safely reused as a
// base for several variants.
type Builder struct {
	referenceTreePath string
	referenceMSAPath  string
	model             ModelDescriptor
	opts              []Option
}

// New starts a Builder for a reference tree at referenceTreePath (Newick)
// and a reference alignment at msaPath (aligned FASTA, one record per tip
// label in the tree), scored under model.
func New(referenceTreePath, msaPath string, model ModelDescriptor) Builder {
	return Builder{referenceTreePath: referenceTreePath, referenceMSAPath: msaPath, model: model}
}

func (b Builder) with(opt Option) Builder {
	next := b
	next.opts = append(append([]Option(nil), b.opts...), opt)
	return next
}

// WithChunkSize sets the query-stream chunk size. See WithChunkSize.
func (b Builder) WithChunkSize(n int) Builder { return b.with(WithChunkSize(n)) }

// WithThreads sets the driver's worker count. See WithThreads.
func (b Builder) WithThreads(n int) Builder { return b.with(WithThreads(n)) }

// WithPrescoring enables or disables the two-stage prescoring pipeline.
// See WithPrescoring.
func (b Builder) WithPrescoring(enabled bool) Builder { return b.with(WithPrescoring(enabled)) }

// WithPrescoringThreshold sets the prescoring discard filter's threshold.
// See WithPrescoringThreshold.
func (b Builder) WithPrescoringThreshold(threshold float64) Builder {
	return b.with(WithPrescoringThreshold(threshold))
}

// WithPrescoringByPercentage switches the prescoring filter to
// discard-the-lowest-LWR-fraction mode. See WithPrescoringByPercentage.
func (b Builder) WithPrescoringByPercentage(enabled bool) Builder {
	return b.with(WithPrescoringByPercentage(enabled))
}

// WithSupportThreshold sets the final-output LWR threshold. See
// WithSupportThreshold.
func (b Builder) WithSupportThreshold(threshold float64) Builder {
	return b.with(WithSupportThreshold(threshold))
}

// WithAccumulatedThreshold switches the final-output filter to an
// accumulated-LWR threshold. See WithAccumulatedThreshold.
func (b Builder) WithAccumulatedThreshold(threshold float64) Builder {
	return b.with(WithAccumulatedThreshold(threshold))
}

// WithFilterBounds floors and caps placements kept per query. See
// WithFilterBounds.
func (b Builder) WithFilterBounds(minK, maxK int) Builder {
	return b.with(WithFilterBounds(minK, maxK))
}

// WithOptBranches toggles branch-length optimisation. See WithOptBranches.
func (b Builder) WithOptBranches(enabled bool) Builder { return b.with(WithOptBranches(enabled)) }

// WithOptModel toggles model-parameter refinement. See WithOptModel.
func (b Builder) WithOptModel(enabled bool) Builder { return b.with(WithOptModel(enabled)) }

// WithRepeats toggles site-repeat compression. See WithRepeats.
func (b Builder) WithRepeats(enabled bool) Builder { return b.with(WithRepeats(enabled)) }

// WithDefaultPendantLength overrides the seed pendant length. See
// WithDefaultPendantLength.
func (b Builder) WithDefaultPendantLength(length float64) Builder {
	return b.with(WithDefaultPendantLength(length))
}

// WithBackingStore enables out-of-core CLV fault-in. See WithBackingStore.
func (b Builder) WithBackingStore(store *backingstore.Store, capacity int) Builder {
	return b.with(WithBackingStore(store, capacity))
}

// WithManifestDir enables a manifest checkpoint next to a backing store.
// See WithManifestDir.
func (b Builder) WithManifestDir(dir string) Builder { return b.with(WithManifestDir(dir)) }

// WithMetricsCollector configures a metrics collector. See
// WithMetricsCollector.
func (b Builder) WithMetricsCollector(mc MetricsCollector) Builder {
	return b.with(WithMetricsCollector(mc))
}

// WithLogger configures structured logging. See WithLogger.
func (b Builder) WithLogger(logger *Logger) Builder { return b.with(WithLogger(logger)) }

// WithLogLevel sets a text logger at the given level. See WithLogLevel.
func (b Builder) WithLogLevel(level slog.Level) Builder { return b.with(WithLogLevel(level)) }

// Build parses the reference tree and alignment, computes every reference
// CLV and per-branch pmatrix, precomputes the prescoring lookup tables, and
// returns a ready-to-use Engine. All work here is static per reference
// dataset — Engine.Place is what runs per query stream.
func (b Builder) Build() (*Engine, error) {
	o := applyOptions(b.opts)

	if !o.optBranches {
		return nil, &ConfigurationError{Msg: "opt_branches=false is not supported: thorough placement always optimises branch length"}
	}
	if o.optModel {
		return nil, &ConfigurationError{Msg: "opt_model=true is not supported: no model-parameter refinement routine is implemented"}
	}

	model, err := b.model.build()
	if err != nil {
		return nil, err
	}

	tree, err := loadReferenceTree(b.referenceTreePath)
	if err != nil {
		return nil, err
	}
	if tree.Tips < 2 {
		return nil, ErrEmptyReferenceTree
	}

	ref, err := loadReferenceAlignment(b.referenceMSAPath)
	if err != nil {
		return nil, err
	}

	alpha := alphabet.DNA()
	branches, err := tree.Branches()
	if err != nil {
		return nil, translateError(err)
	}

	partition, clvs, err := buildPartition(tree, branches, ref, model, alpha)
	if err != nil {
		return nil, err
	}

	if o.defaultPendant <= 0 {
		o.defaultPendant = tinytree.DefaultBranchLength
	}

	lookups, err := buildLookups(tree, branches, partition, clvs, alpha, o.defaultPendant)
	if err != nil {
		return nil, err
	}

	capacity := o.residentCapacity
	if capacity <= 0 {
		capacity = len(tree.Nodes)
	}

	var resident *residentset.Set
	if o.store != nil {
		ctx := context.Background()
		if err := o.store.SaveTopology(ctx, tree); err != nil {
			return nil, &InputError{Msg: "persisting reference topology: " + err.Error(), cause: err}
		}
		for idx, clv := range clvs {
			if err := o.store.SaveCLV(ctx, idx, clv); err != nil {
				return nil, &InputError{Msg: "persisting reference CLVs: " + err.Error(), cause: err}
			}
		}
		if o.manifestDir != "" {
			if err := o.store.WithManifest(o.manifestDir).Checkpoint(ctx, tree.Tips, len(clvs), 0, len(branches)); err != nil {
				return nil, &InputError{Msg: "checkpointing manifest: " + err.Error(), cause: err}
			}
		}
		resident = residentset.New(partition, capacity, nil, o.store.LoadCLV)
	} else {
		resident = residentset.New(partition, capacity, nil, func(context.Context, int) ([]float64, error) {
			return nil, &ConsistencyError{Msg: "resident-set miss with no backing store configured"}
		})
	}
	for idx, clv := range clvs {
		resident.Put(idx, clv)
	}

	geometry := &branchGeometry{tree: tree, branches: branches}

	return &Engine{
		tree:      tree,
		partition: partition,
		resident:  resident,
		lookups:   lookups,
		alpha:     alpha,
		geometry:  geometry,
		opts:      o,
	}, nil
}
