package kernel

import "math"

// Model is a substitution model: it knows how to turn a branch length (in
// expected substitutions per site, already rate-scaled by the caller) into a
// transition-probability matrix and its time-derivative. Models are pure
// with respect to caller-visible state — the same (t, rateCat) always
// produces the same matrix.
type Model interface {
	States() int
	Frequencies() []float64
	// PMatrix returns the row-major States x States transition matrix for
	// branch length t under rate category rateCat.
	PMatrix(t float64, rateCat int) []float64
	// DPMatrix returns d/dt of PMatrix(t, rateCat).
	DPMatrix(t float64, rateCat int) []float64
	// RateCategories returns the discrete rate multipliers (mean 1).
	RateCategories() []float64
}

// JC69 is the Jukes-Cantor (1969) DNA substitution model: equal base
// frequencies, equal substitution rates. It admits a closed-form P(t), so no
// matrix exponential or eigendecomposition machinery is needed — the
// substitution-model math is the only concrete backend this module ships;
// everything else in the numerical kernel is a pass-through over Partition
// state.
type JC69 struct {
	rates []float64 // discrete gamma rate multipliers, mean 1
}

// NewJC69 builds a JC69 model with ncat discrete gamma rate categories
// (shape alpha). ncat=1 disables rate heterogeneity (all sites rate 1).
func NewJC69(alpha float64, ncat int) *JC69 {
	return &JC69{rates: DiscreteGamma(alpha, ncat)}
}

func (m *JC69) States() int { return 4 }

func (m *JC69) Frequencies() []float64 { return []float64{0.25, 0.25, 0.25, 0.25} }

func (m *JC69) RateCategories() []float64 { return m.rates }

func (m *JC69) PMatrix(t float64, rateCat int) []float64 {
	rt := t * m.rates[rateCat]
	pDiag := 0.25 + 0.75*math.Exp(-4.0/3.0*rt)
	pOff := 0.25 - 0.25*math.Exp(-4.0/3.0*rt)
	out := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				out[i*4+j] = pDiag
			} else {
				out[i*4+j] = pOff
			}
		}
	}
	return out
}

func (m *JC69) DPMatrix(t float64, rateCat int) []float64 {
	r := m.rates[rateCat]
	rt := t * r
	dDiag := -r * math.Exp(-4.0/3.0*rt)
	dOff := r / 3.0 * math.Exp(-4.0/3.0*rt)
	out := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				out[i*4+j] = dDiag
			} else {
				out[i*4+j] = dOff
			}
		}
	}
	return out
}
