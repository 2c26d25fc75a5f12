// Package sample aggregates per-query placements into per-sequence result
// sets, computes likelihood weight ratios, and applies the discard filters
// that shrink a thorough-placement sample down to the handful of
// candidate branches worth reporting.
package sample

import (
	"math"
	"sort"

	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/tinytree"
	"github.com/evoplace/placer/internal/work"
)

// Entry is one (query, branch) placement with its likelihood weight ratio
// filled in once ComputeAndSetLWR has run (zero until then).
type Entry struct {
	SequenceID domain.SequenceID
	Header     string
	Placement  tinytree.Placement
	LWR        float64
}

// Sample accumulates placements across many queries, keyed by sequence ID
// so per-query operations (LWR, collapse, filtering) can group entries for
// the same query together.
type Sample struct {
	headers map[domain.SequenceID]string
	byQuery map[domain.SequenceID][]Entry
	order   []domain.SequenceID // first-seen order, for stable output
}

// New builds an empty sample.
func New() *Sample {
	return &Sample{
		headers: make(map[domain.SequenceID]string),
		byQuery: make(map[domain.SequenceID][]Entry),
	}
}

// AddPlacement appends one placement for sequenceID.
func (s *Sample) AddPlacement(sequenceID domain.SequenceID, header string, placement tinytree.Placement) {
	if _, seen := s.byQuery[sequenceID]; !seen {
		s.order = append(s.order, sequenceID)
		s.headers[sequenceID] = header
	}
	s.byQuery[sequenceID] = append(s.byQuery[sequenceID], Entry{
		SequenceID: sequenceID,
		Header:     header,
		Placement:  placement,
	})
}

// Entries returns every entry for sequenceID, in insertion order.
func (s *Sample) Entries(sequenceID domain.SequenceID) []Entry {
	return s.byQuery[sequenceID]
}

// SequenceIDs returns every sequence ID present, in first-seen order.
func (s *Sample) SequenceIDs() []domain.SequenceID {
	return s.order
}

// ComputeAndSetLWR fills in each entry's LWR: for a query's placements,
// LWR[i] = exp(logl[i] - max_logl) / sum_k exp(logl[k] - max_logl).
func ComputeAndSetLWR(s *Sample) {
	for _, seqID := range s.order {
		entries := s.byQuery[seqID]
		if len(entries) == 0 {
			continue
		}
		maxLogl := math.Inf(-1)
		for _, e := range entries {
			if e.Placement.LogL > maxLogl {
				maxLogl = e.Placement.LogL
			}
		}
		var denom float64
		weights := make([]float64, len(entries))
		for i, e := range entries {
			w := math.Exp(e.Placement.LogL - maxLogl)
			weights[i] = w
			denom += w
		}
		for i := range entries {
			entries[i].LWR = weights[i] / denom
		}
		s.byQuery[seqID] = entries
	}
}

// Collapse merges, for each sequence ID, entries whose branch ID matches,
// keeping the best-logl copy; relative order of the surviving entries is
// otherwise stable.
func Collapse(s *Sample) {
	for _, seqID := range s.order {
		entries := s.byQuery[seqID]
		best := make(map[domain.BranchID]int) // branch -> index into kept
		kept := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if idx, ok := best[e.Placement.BranchID]; ok {
				if e.Placement.LogL > kept[idx].Placement.LogL {
					kept[idx] = e
				}
				continue
			}
			best[e.Placement.BranchID] = len(kept)
			kept = append(kept, e)
		}
		s.byQuery[seqID] = kept
	}
}

func sortByDescendingLWR(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LWR > entries[j].LWR
	})
}

// DiscardBySupportThreshold keeps, per query, placements with LWR >= tau,
// but always at least minK and at most maxK, ranked by descending LWR.
func DiscardBySupportThreshold(s *Sample, tau float64, minK, maxK int) {
	for _, seqID := range s.order {
		entries := append([]Entry(nil), s.byQuery[seqID]...)
		sortByDescendingLWR(entries)

		keep := 0
		for keep < len(entries) && entries[keep].LWR >= tau {
			keep++
		}
		if keep < minK && minK <= len(entries) {
			keep = minK
		} else if keep < minK {
			keep = len(entries)
		}
		if maxK > 0 && keep > maxK {
			keep = maxK
		}
		if keep > len(entries) {
			keep = len(entries)
		}
		s.byQuery[seqID] = entries[:keep]
	}
}

// DiscardByAccumulatedThreshold sorts by descending LWR and keeps the
// prefix whose cumulative LWR first reaches tau, respecting min/max.
func DiscardByAccumulatedThreshold(s *Sample, tau float64, minK, maxK int) {
	for _, seqID := range s.order {
		entries := append([]Entry(nil), s.byQuery[seqID]...)
		sortByDescendingLWR(entries)

		cum := 0.0
		keep := 0
		for keep < len(entries) {
			cum += entries[keep].LWR
			keep++
			if cum >= tau {
				break
			}
		}
		if keep < minK && minK <= len(entries) {
			keep = minK
		} else if keep < minK {
			keep = len(entries)
		}
		if maxK > 0 && keep > maxK {
			keep = maxK
		}
		if keep > len(entries) {
			keep = len(entries)
		}
		s.byQuery[seqID] = entries[:keep]
	}
}

// DiscardBottomXPercent removes the lowest p fraction of placements by LWR,
// per query.
func DiscardBottomXPercent(s *Sample, p float64) {
	if p <= 0 {
		return
	}
	if p > 1 {
		p = 1
	}
	for _, seqID := range s.order {
		entries := append([]Entry(nil), s.byQuery[seqID]...)
		sortByDescendingLWR(entries)

		cut := len(entries) - int(math.Floor(float64(len(entries))*p))
		if cut < 0 {
			cut = 0
		}
		if cut > len(entries) {
			cut = len(entries)
		}
		s.byQuery[seqID] = entries[:cut]
	}
}

// Merge transfers every sequence's entries from in into out, appending new
// sequence IDs to out's order and concatenating entries for IDs out already
// holds. in is left with empty entry lists but its own Sample value is
// otherwise unaffected (callers typically discard in after Merge).
func Merge(out, in *Sample) {
	for _, seqID := range in.order {
		if _, seen := out.byQuery[seqID]; !seen {
			out.order = append(out.order, seqID)
			out.headers[seqID] = in.headers[seqID]
		}
		out.byQuery[seqID] = append(out.byQuery[seqID], in.byQuery[seqID]...)
		in.byQuery[seqID] = nil
	}
}

// Work constructs a work set from the surviving (sequence, branch) pairs
// in s, for the thorough phase to rescore at full resolution.
func Work(s *Sample) *work.Set {
	var pairs []work.Pair
	for _, seqID := range s.order {
		for _, e := range s.byQuery[seqID] {
			pairs = append(pairs, work.Pair{BranchID: e.Placement.BranchID, SequenceID: seqID})
		}
	}
	return work.FromPairs(pairs, true)
}
