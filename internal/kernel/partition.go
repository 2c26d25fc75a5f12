package kernel

import "github.com/evoplace/placer/internal/alphabet"

// Partition bundles everything the numerical kernel needs to evaluate
// likelihoods: CLV buffers, probability matrices, the substitution model,
// and dimension metadata. It is the one "opaque handle" type of §4.1 — every
// façade operation takes a *Partition and a set of dense indices into it.
type Partition struct {
	Sites          int
	States         int
	RateCategories int
	Model          Model
	RateWeights    []float64 // per-category mixture weight, sums to 1
	PatternWeights []float64 // per-site weight; all 1 unless Repeats compression is enabled

	CLVs      [][]float64 // [clvIndex] -> Sites*RateCategories*States
	Scalers   [][]uint32  // [scalerIndex] -> Sites; nil entry means unscaled
	PMatrices [][]float64 // [pmatrixIndex] -> RateCategories*States*States
}

// NewPartition allocates a partition with numCLVs CLV slots and
// numPMatrices pmatrix slots, all initially empty (nil) — callers populate
// them lazily via the resident set / UpdateProbMatrices.
func NewPartition(model Model, sites, numCLVs, numScalers, numPMatrices int) *Partition {
	rates := model.RateCategories()
	weights := make([]float64, len(rates))
	for i := range weights {
		weights[i] = 1.0 / float64(len(rates))
	}
	patternWeights := make([]float64, sites)
	for i := range patternWeights {
		patternWeights[i] = 1
	}
	return &Partition{
		Sites:          sites,
		States:         model.States(),
		RateCategories: len(rates),
		Model:          model,
		RateWeights:    weights,
		PatternWeights: patternWeights,
		CLVs:           make([][]float64, numCLVs),
		Scalers:        make([][]uint32, numScalers),
		PMatrices:      make([][]float64, numPMatrices),
	}
}

// CLVSize returns the number of float64 entries in one CLV buffer.
func (p *Partition) CLVSize() int { return p.Sites * p.RateCategories * p.States }

// NewCLV allocates a zeroed CLV buffer of the partition's dimensions.
func (p *Partition) NewCLV() []float64 { return make([]float64, p.CLVSize()) }

// TipCLV builds a CLV for a tip sequence by expanding each site's character
// into a (possibly ambiguous) one-hot distribution over states, replicated
// across rate categories. alphabet maps ASCII codes to state bitmasks; a bit
// set at position k means state k is consistent with the observed character
// (ambiguity codes set more than one bit).
func (p *Partition) TipCLV(sequence string, alpha *alphabet.Alphabet) ([]float64, error) {
	if len(sequence) != p.Sites {
		return nil, &KernelError{Op: "TipCLV", Msg: "sequence length does not match partition site count"}
	}
	clv := p.NewCLV()
	for site := 0; site < p.Sites; site++ {
		mask, ok := alpha.Lookup(sequence[site])
		if !ok {
			return nil, &InvalidCharacterError{Char: sequence[site], Site: site}
		}
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * p.States
			for s := 0; s < p.States; s++ {
				if mask&(1<<uint(s)) != 0 {
					clv[base+s] = 1
				}
			}
		}
	}
	return clv, nil
}

// InvalidCharacterError indicates a query sequence contains a symbol absent
// from the alphabet map. It is fatal; the caller is expected to sanitise
// input.
type InvalidCharacterError struct {
	Char byte
	Site int
}

func (e *InvalidCharacterError) Error() string {
	return "invalid character '" + string(e.Char) + "' at site index"
}
