// Package lookupstore holds the per-reference-branch precomputed
// site-likelihood tables that back prescoring. Each branch gets a
// (sites x alphabet) table of per-character log-likelihoods, built once
// under that branch's own mutex and thereafter read-only; the hot summation
// loop never takes a lock.
package lookupstore

import (
	"fmt"
	"sync"

	"github.com/evoplace/placer/internal/alphabet"
)

// InvalidCharacterError indicates a query sequence contains a symbol absent
// from the store's alphabet.
type InvalidCharacterError struct {
	Char byte
	Site int
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("lookupstore: invalid character %q at site %d", e.Char, e.Site)
}

// BranchAlreadyInitError indicates init_branch was called twice for the
// same branch — a caller bug, since each branch's table is meant to be
// built exactly once.
type BranchAlreadyInitError struct {
	BranchID int
}

func (e *BranchAlreadyInitError) Error() string {
	return fmt.Sprintf("lookupstore: branch %d already initialised", e.BranchID)
}

type branchSlot struct {
	mu        sync.Mutex
	populated bool
	table     []float64 // sites * numStates, row-major by site
}

// Store is the process-wide, per-branch site-likelihood cache. It is safe
// for concurrent use: each branch's slot carries its own mutex, so
// initialising branch A never blocks a reader of branch B.
type Store struct {
	alpha    *alphabet.Alphabet
	sites    int
	numBases int // alphabet.States(), the inner table dimension
	slots    []branchSlot
}

// New builds a lookup store sized for branchCount reference branches and
// sites columns per branch, using alpha to map query characters to table
// columns.
func New(branchCount, sites int, alpha *alphabet.Alphabet) *Store {
	return &Store{
		alpha:    alpha,
		sites:    sites,
		numBases: alpha.States(),
		slots:    make([]branchSlot, branchCount),
	}
}

// HasBranch reports whether branchID's table has already been built. Cheap,
// does not block on the branch's mutex beyond a single lock/unlock.
func (s *Store) HasBranch(branchID int) bool {
	slot := &s.slots[branchID]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.populated
}

// InitBranch populates branchID's (sites x alphabet) table from
// perSitePerCharTable, a flat row-major slice of length sites*numStates
// giving, for each site, the per-character-state log-likelihood. It is
// callable exactly once per branch; a second call returns
// *BranchAlreadyInitError without modifying the existing table.
func (s *Store) InitBranch(branchID int, perSitePerCharTable []float64) error {
	slot := &s.slots[branchID]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.populated {
		return &BranchAlreadyInitError{BranchID: branchID}
	}
	want := s.sites * s.numBases
	if len(perSitePerCharTable) != want {
		return fmt.Errorf("lookupstore: branch %d table has %d entries, want %d", branchID, len(perSitePerCharTable), want)
	}
	slot.table = perSitePerCharTable
	slot.populated = true
	return nil
}

// SumPrecomputedSiteLK sums table[site, map[query[site]]] over all sites
// for branchID. This is the innermost hot loop of prescoring: it never
// takes the branch's mutex, relying on the populated flag being set exactly
// once by a happens-before InitBranch call before any concurrent reader
// observes it (callers must not call SumPrecomputedSiteLK for a branch that
// might still be mid-InitBranch on another goroutine — ensure HasBranch or a
// single-writer barrier first).
func (s *Store) SumPrecomputedSiteLK(branchID int, query string) (float64, error) {
	slot := &s.slots[branchID]
	if !slot.populated {
		return 0, fmt.Errorf("lookupstore: branch %d not yet initialised", branchID)
	}
	if len(query) != s.sites {
		return 0, fmt.Errorf("lookupstore: query length %d does not match %d sites", len(query), s.sites)
	}
	table := slot.table
	numBases := s.numBases
	sum := 0.0
	for site := 0; site < s.sites; site++ {
		mask, ok := s.alpha.Lookup(query[site])
		if !ok {
			return 0, &InvalidCharacterError{Char: query[site], Site: site}
		}
		base := site * numBases
		// Ambiguous characters average over every consistent state's
		// precomputed likelihood rather than picking one arbitrarily.
		var siteSum float64
		var count int
		for k := 0; k < numBases; k++ {
			if mask&(1<<uint(k)) != 0 {
				siteSum += table[base+k]
				count++
			}
		}
		if count == 0 {
			return 0, &InvalidCharacterError{Char: query[site], Site: site}
		}
		sum += siteSum / float64(count)
	}
	return sum, nil
}

// BranchCount returns the number of branch slots the store was sized for.
func (s *Store) BranchCount() int { return len(s.slots) }
