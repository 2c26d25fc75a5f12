// Package tinytree scores one query sequence against one candidate
// reference branch: either a cheap lookup-store sum (prescoring) or a full
// 3-leaf branch-length optimisation (thorough placement). One instance is
// built per (reference branch, thorough?) pair and reused across queries
// that land on the same branch consecutively. Building it fetches
// nothing; each thorough Place call fetches the branch's endpoint CLVs
// from the resident set.
package tinytree

import (
	"context"
	"math"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/residentset"
)

// DefaultBranchLength seeds a new pendant edge before optimisation begins.
const DefaultBranchLength = 0.1

// MinBranchLength bounds the Brent split search away from a degenerate
// zero-length proximal or distal segment.
const MinBranchLength = 1e-6

// TolBranchLen is the convergence tolerance on log-likelihood improvement
// between (Brent, Newton) smoothing rounds.
const TolBranchLen = 1e-6

// MaxSmoothings bounds the number of (Brent, Newton) iteration rounds.
const MaxSmoothings = 32

// MaxNewtonIterations bounds each pendant-length Newton refinement.
const MaxNewtonIterations = 10

// Placement is the result of scoring one query against one branch.
type Placement struct {
	BranchID domain.BranchID
	LogL     float64
	Pendant  float64
	Distal   float64
}

// Tree is a tiny-tree scorer bound to one reference branch.
type Tree struct {
	branchID       domain.BranchID
	originalLen    float64
	thorough       bool
	defaultPendant float64

	partition *kernel.Partition
	resident  *residentset.Set
	lookups   *lookupstore.Store
	alpha     *alphabet.Alphabet

	proximalCLVIdx int
	distalCLVIdx   int
}

// New builds a tiny-tree bound to branchID. proximalCLVIdx/distalCLVIdx are
// the resident-set CLV indices of the branch's two endpoints; originalLen
// is the reference branch's current length. thorough selects between the
// prescoring lookup-sum path and full branch-length optimisation. The
// pendant edge is seeded at DefaultBranchLength; use NewWithDefaultPendant
// to override it.
func New(branchID domain.BranchID, originalLen float64, proximalCLVIdx, distalCLVIdx int, thorough bool, partition *kernel.Partition, resident *residentset.Set, lookups *lookupstore.Store, alpha *alphabet.Alphabet) *Tree {
	return NewWithDefaultPendant(branchID, originalLen, proximalCLVIdx, distalCLVIdx, thorough, partition, resident, lookups, alpha, DefaultBranchLength)
}

// NewWithDefaultPendant is like New but seeds both the prescoring path's
// reported pendant length and the thorough path's optimisation starting
// point from defaultPendant instead of DefaultBranchLength. A
// non-positive defaultPendant falls back to DefaultBranchLength.
func NewWithDefaultPendant(branchID domain.BranchID, originalLen float64, proximalCLVIdx, distalCLVIdx int, thorough bool, partition *kernel.Partition, resident *residentset.Set, lookups *lookupstore.Store, alpha *alphabet.Alphabet, defaultPendant float64) *Tree {
	if defaultPendant <= 0 {
		defaultPendant = DefaultBranchLength
	}
	return &Tree{
		branchID:       branchID,
		originalLen:    originalLen,
		thorough:       thorough,
		defaultPendant: defaultPendant,
		partition:      partition,
		resident:       resident,
		lookups:        lookups,
		alpha:          alpha,
		proximalCLVIdx: proximalCLVIdx,
		distalCLVIdx:   distalCLVIdx,
	}
}

// Place scores query against this tiny tree's branch.
func (t *Tree) Place(ctx context.Context, query string) (Placement, error) {
	if !t.thorough {
		logl, err := t.lookups.SumPrecomputedSiteLK(int(t.branchID), query)
		if err != nil {
			return Placement{}, err
		}
		return Placement{
			BranchID: t.branchID,
			LogL:     logl,
			Pendant:  t.defaultPendant,
			Distal:   t.originalLen / 2,
		}, nil
	}

	proximal, err := t.resident.Get(ctx, t.proximalCLVIdx)
	if err != nil {
		return Placement{}, err
	}
	distal, err := t.resident.Get(ctx, t.distalCLVIdx)
	if err != nil {
		return Placement{}, err
	}
	queryCLV, err := t.partition.TipCLV(query, t.alpha)
	if err != nil {
		return Placement{}, err
	}

	return t.optimise(proximal, distal, queryCLV)
}

// optimise alternates a Brent split search with a Newton pendant-length
// refinement: on each Brent trial the two probability matrices and the
// inner partial are recomputed from scratch; Newton then refines the
// pendant length holding the split fixed. The loop breaks on convergence or
// a non-improving step, in which case the previous (x, pendant) pair is
// restored.
func (t *Tree) optimise(proximal, distal, queryCLV []float64) (Placement, error) {
	x := t.originalLen / 2
	pendant := t.defaultPendant
	bestLogl := math.Inf(-1)

	scoreAt := func(split, pend float64) (float64, error) {
		inner := kernel.ComputePartialRaw(t.partition, proximal, distal, split, t.originalLen-split)
		return kernel.EdgeLogLikelihoodRaw(t.partition, inner, queryCLV, pend)
	}

	for round := 0; round < MaxSmoothings; round++ {
		prevX, prevPendant, prevLogl := x, pendant, bestLogl

		newX, err := kernel.OptimiseBrent(MinBranchLength, x, t.originalLen-MinBranchLength, TolBranchLen, func(split float64) (float64, error) {
			return scoreAt(split, pendant)
		})
		if err != nil {
			return Placement{}, err
		}

		// The split is fixed for the Newton refinement below, so the inner
		// CLV depends only on newX, not on the trial pendant length: build it
		// and its sumtable once, then let Newton's analytic derivative walk
		// the sumtable instead of re-deriving the inner CLV on every trial.
		inner := kernel.ComputePartialRaw(t.partition, proximal, distal, newX, t.originalLen-newX)
		sumtable := make([]float64, t.partition.Sites*t.partition.RateCategories*t.partition.States*t.partition.States)
		if err := kernel.UpdateSumtableRaw(t.partition, inner, queryCLV, sumtable); err != nil {
			return Placement{}, err
		}

		newPendant, err := kernel.OptimiseNewton(MinBranchLength, pendant, 10.0, TolBranchLen, MaxNewtonIterations, func(p float64) (f, df float64, err error) {
			return kernel.EdgeDerivativeRaw(t.partition, sumtable, p)
		})
		if err != nil {
			return Placement{}, err
		}

		newLogl, err := scoreAt(newX, newPendant)
		if err != nil {
			return Placement{}, err
		}

		if round > 0 && isWorse(newLogl, prevLogl) {
			x, pendant, bestLogl = prevX, prevPendant, prevLogl
			break
		}

		improvement := math.Abs(newLogl - prevLogl)
		x, pendant, bestLogl = newX, newPendant, newLogl
		if improvement < TolBranchLen {
			break
		}
	}

	return Placement{
		BranchID: t.branchID,
		LogL:     bestLogl,
		Pendant:  pendant,
		Distal:   t.originalLen - x,
	}, nil
}

// isWorse reports whether new is a worse (lower) log-likelihood than old.
// Both values are ordinary (non-negated) log-likelihoods, so "worse" means
// strictly smaller.
func isWorse(newLogl, oldLogl float64) bool {
	return newLogl < oldLogl
}
