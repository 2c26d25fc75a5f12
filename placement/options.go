package placement

import (
	"log/slog"

	"github.com/evoplace/placer/internal/backingstore"
)

// DefaultChunkSize is the query-stream chunk size used when WithChunkSize
// is not given.
const DefaultChunkSize = 1000

type options struct {
	chunkSize              int
	threads                int
	prescoring             bool
	prescoringThreshold    float64
	prescoringByPercentage bool
	supportThreshold       float64
	accThreshold           bool
	filterMin, filterMax   int
	optBranches            bool
	optModel               bool
	repeats                bool
	defaultPendant         float64
	store                  *backingstore.Store
	residentCapacity       int
	manifestDir            string
	metricsCollector       MetricsCollector
	logger                 *Logger
}

// Option configures Builder construction.
//
// Today options primarily exist to avoid exploding the constructor's
// positional-argument surface.
type Option func(*options)

// WithChunkSize sets the number of query records read per pipeline cycle.
// Larger chunks amortize per-cycle overhead at the cost of more memory held
// live at once; smaller chunks bound memory but cycle more often.
//
// If chunkSize <= 0, a package default is used.
func WithChunkSize(chunkSize int) Option {
	return func(o *options) { o.chunkSize = chunkSize }
}

// WithThreads configures the worker count the driver fans a cycle's work
// set out across.
//
// Recommended values:
//   - threads=1: single-threaded, no scheduling overhead (default)
//   - threads=N: up to GOMAXPROCS for CPU-bound thorough placement
//
// If threads <= 0, single-threaded execution is used.
func WithThreads(threads int) Option {
	return func(o *options) { o.threads = threads }
}

// WithPrescoring enables the two-stage prescoring pipeline: every branch is
// first scored cheaply against the lookup store, the discard filter
// narrows the candidate set, and only the survivors go through full
// branch-length optimisation. Disabled, every branch goes straight to
// thorough placement.
func WithPrescoring(enabled bool) Option {
	return func(o *options) { o.prescoring = enabled }
}

// WithPrescoringThreshold sets the value the prescoring discard filter
// compares candidate branches against. Its meaning depends on
// WithPrescoringByPercentage: a plain threshold by default, or, when
// by-percentage mode is enabled, the fraction (0 to 1) of each query's
// lowest-LWR candidate branches to discard.
func WithPrescoringThreshold(threshold float64) Option {
	return func(o *options) { o.prescoringThreshold = threshold }
}

// WithPrescoringByPercentage switches the prescoring discard filter from
// threshold-based to discarding the lowest-LWR fraction of each query's
// candidates.
func WithPrescoringByPercentage(enabled bool) Option {
	return func(o *options) { o.prescoringByPercentage = enabled }
}

// WithSupportThreshold sets the final-output likelihood-weight-ratio
// threshold below which a placement is discarded from the emitted jplace
// document, applied once after all cycles are merged.
func WithSupportThreshold(threshold float64) Option {
	return func(o *options) { o.supportThreshold = threshold }
}

// WithAccumulatedThreshold switches the final-output discard filter from a
// per-placement support threshold to an accumulated-likelihood-weight-ratio
// threshold: placements are kept in descending LWR order until the running
// sum exceeds threshold.
func WithAccumulatedThreshold(threshold float64) Option {
	return func(o *options) {
		o.accThreshold = true
		o.supportThreshold = threshold
	}
}

// WithFilterBounds floors and caps the number of placements kept per query
// by the final-output discard filter, regardless of threshold. minK <= 0
// or maxK <= 0 leaves that bound unset.
func WithFilterBounds(minK, maxK int) Option {
	return func(o *options) { o.filterMin, o.filterMax = minK, maxK }
}

// WithOptBranches toggles branch-length optimisation during thorough
// placement. The numerical kernel always optimises; passing false causes
// Build to fail with a *ConfigurationError.
func WithOptBranches(enabled bool) Option {
	return func(o *options) { o.optBranches = enabled }
}

// WithOptModel toggles model-parameter refinement during a run. No
// refinement routine exists yet; passing true causes Build to fail with a
// *ConfigurationError.
func WithOptModel(enabled bool) Option {
	return func(o *options) { o.optModel = enabled }
}

// WithRepeats toggles site-repeat compression. Accepted for compatibility
// but currently a no-op: pattern weights are always 1, so repeats change
// neither output nor correctness, only a potential future speedup.
func WithRepeats(enabled bool) Option {
	return func(o *options) { o.repeats = enabled }
}

// WithDefaultPendantLength overrides the pendant-edge length a tiny tree
// seeds its optimisation from, and the value prescoring reports for a
// branch it never optimises.
//
// If length <= 0, tinytree.DefaultBranchLength is used.
func WithDefaultPendantLength(length float64) Option {
	return func(o *options) { o.defaultPendant = length }
}

// WithBackingStore enables out-of-core fault-in: CLV buffers computed
// during Build are persisted to store as well as kept resident, and the
// resident set's Loader reloads an evicted buffer from store on a miss
// instead of refusing the lookup. capacity bounds how many CLV buffers
// stay resident at once; <=0 sizes it to the whole reference tree (no
// eviction ever needed).
//
// Without this option the engine keeps every CLV resident for the life of
// the run and never touches a backing store.
func WithBackingStore(store *backingstore.Store, capacity int) Option {
	return func(o *options) {
		o.store = store
		o.residentCapacity = capacity
	}
}

// WithManifestDir enables a manifest checkpoint alongside a configured
// WithBackingStore: once Build finishes persisting the topology and every
// CLV, it records a MANIFEST/CURRENT pair under dir describing what was
// saved, so a later process opening the same backing store can validate
// it without re-scanning every blob. Ignored if WithBackingStore is not
// also set.
func WithManifestDir(dir string) Option {
	return func(o *options) { o.manifestDir = dir }
}

// WithMetricsCollector stores a metrics collector in the engine's options.
// Neither Build nor Place calls its methods, so the collector records
// nothing on its own.
//
// Example with BasicMetricsCollector:
//
//	metrics := &placement.BasicMetricsCollector{}
//	eng, _ := placement.New(tree, msa, model, placement.WithMetricsCollector(metrics)).Build()
//	// ... run placements ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) { o.metricsCollector = mc }
}

// WithLogger configures structured logging for engine operations. Pass nil
// to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) { o.logger = NewTextLogger(level) }
}

func applyOptions(optFns []Option) options {
	o := options{
		chunkSize:        DefaultChunkSize,
		threads:          1,
		optBranches:      true,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
