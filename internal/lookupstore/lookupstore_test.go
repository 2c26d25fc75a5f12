package lookupstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/lookupstore"
)

func TestInitBranchThenSum(t *testing.T) {
	s := lookupstore.New(2, 3, alphabet.DNA())
	assert.False(t, s.HasBranch(0))

	// sites * numStates == 3*4, per-character log-likelihoods.
	table := []float64{
		-1.0, -2.0, -3.0, -4.0, // site 0
		-0.5, -1.5, -2.5, -3.5, // site 1
		-2.0, -2.0, -2.0, -2.0, // site 2
	}
	require.NoError(t, s.InitBranch(0, table))
	assert.True(t, s.HasBranch(0))

	sum, err := s.SumPrecomputedSiteLK(0, "ACG")
	require.NoError(t, err)
	assert.InDelta(t, table[0]+table[5]+table[10], sum, 1e-9)
}

func TestInitBranchTwiceErrors(t *testing.T) {
	s := lookupstore.New(1, 1, alphabet.DNA())
	table := []float64{-1, -2, -3, -4}
	require.NoError(t, s.InitBranch(0, table))

	err := s.InitBranch(0, table)
	var already *lookupstore.BranchAlreadyInitError
	require.ErrorAs(t, err, &already)
}

func TestSumPrecomputedSiteLKAveragesOverAmbiguousStates(t *testing.T) {
	s := lookupstore.New(1, 1, alphabet.DNA())
	// Site 0: A=-1, C=-3, G=-5, T=-7.
	require.NoError(t, s.InitBranch(0, []float64{-1, -3, -5, -7}))

	// R is ambiguous for {A, G}: average of -1 and -5.
	sum, err := s.SumPrecomputedSiteLK(0, "R")
	require.NoError(t, err)
	assert.InDelta(t, -3.0, sum, 1e-9)
}

func TestSumPrecomputedSiteLKEquivalentToDirectRecomputationForUnambiguousQuery(t *testing.T) {
	s := lookupstore.New(1, 4, alphabet.DNA())
	table := []float64{
		-0.1, -0.2, -0.3, -0.4,
		-1.1, -1.2, -1.3, -1.4,
		-2.1, -2.2, -2.3, -2.4,
		-3.1, -3.2, -3.3, -3.4,
	}
	require.NoError(t, s.InitBranch(0, table))

	query := "ACGT"
	sum, err := s.SumPrecomputedSiteLK(0, query)
	require.NoError(t, err)

	// Direct recomputation: for an unambiguous query, the sum is just the
	// per-site table entry at the query's own character column.
	cols := map[byte]int{'A': 0, 'C': 1, 'G': 2, 'T': 3}
	var direct float64
	for site := 0; site < len(query); site++ {
		direct += table[site*4+cols[query[site]]]
	}
	assert.InDelta(t, direct, sum, 1e-9)
}

func TestSumPrecomputedSiteLKRejectsUninitialisedBranch(t *testing.T) {
	s := lookupstore.New(1, 4, alphabet.DNA())
	_, err := s.SumPrecomputedSiteLK(0, "ACGT")
	assert.Error(t, err)
}

func TestSumPrecomputedSiteLKRejectsInvalidCharacter(t *testing.T) {
	s := lookupstore.New(1, 1, alphabet.DNA())
	require.NoError(t, s.InitBranch(0, []float64{-1, -2, -3, -4}))
	_, err := s.SumPrecomputedSiteLK(0, "Z")
	var ice *lookupstore.InvalidCharacterError
	require.ErrorAs(t, err, &ice)
}

func TestSumPrecomputedSiteLKRejectsLengthMismatch(t *testing.T) {
	s := lookupstore.New(1, 4, alphabet.DNA())
	require.NoError(t, s.InitBranch(0, make([]float64, 16)))
	_, err := s.SumPrecomputedSiteLK(0, "AC")
	assert.Error(t, err)
}

func TestBranchCount(t *testing.T) {
	s := lookupstore.New(7, 10, alphabet.DNA())
	assert.Equal(t, 7, s.BranchCount())
}
