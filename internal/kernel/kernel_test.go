package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/kernel"
)

func jc69Partition(sites int) *kernel.Partition {
	model := kernel.NewJC69(1.0, 1)
	return kernel.NewPartition(model, sites, 4, 0, 2)
}

func TestTipCLVUnambiguous(t *testing.T) {
	p := jc69Partition(4)
	clv, err := p.TipCLV("ACGT", alphabet.DNA())
	require.NoError(t, err)
	require.Len(t, clv, p.CLVSize())

	assert.Equal(t, []float64{1, 0, 0, 0}, clv[0:4])
	assert.Equal(t, []float64{0, 0, 0, 1}, clv[12:16])
}

func TestTipCLVRejectsWrongLength(t *testing.T) {
	p := jc69Partition(4)
	_, err := p.TipCLV("ACG", alphabet.DNA())
	var ke *kernel.KernelError
	require.ErrorAs(t, err, &ke)
}

func TestTipCLVRejectsInvalidCharacter(t *testing.T) {
	p := jc69Partition(2)
	_, err := p.TipCLV("AZ", alphabet.DNA())
	var ice *kernel.InvalidCharacterError
	require.ErrorAs(t, err, &ice)
}

func TestUpdateProbMatricesAndUpdatePartials(t *testing.T) {
	p := jc69Partition(2)
	a, err := p.TipCLV("AC", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AG", alphabet.DNA())
	require.NoError(t, err)
	p.CLVs[0] = a
	p.CLVs[1] = b

	require.NoError(t, kernel.UpdateProbMatrices(p, []int{0, 1}, []float64{0.1, 0.2}))

	ops := []kernel.Operation{{ParentCLV: 2, Child1CLV: 0, Child2CLV: 1, PMatrix1: 0, PMatrix2: 1}}
	require.NoError(t, kernel.UpdatePartials(p, ops))
	require.NotNil(t, p.CLVs[2])

	for _, v := range p.CLVs[2] {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestEdgeLogLikelihoodMatchesRawOnIdenticalInputs(t *testing.T) {
	p := jc69Partition(3)
	a, err := p.TipCLV("ACG", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AGT", alphabet.DNA())
	require.NoError(t, err)
	p.CLVs[0] = a
	p.CLVs[1] = b
	require.NoError(t, kernel.UpdateProbMatrices(p, []int{0}, []float64{0.3}))

	indexed, err := kernel.EdgeLogLikelihood(p, 0, -1, 1, -1, 0)
	require.NoError(t, err)

	raw, err := kernel.EdgeLogLikelihoodRaw(p, a, b, 0.3)
	require.NoError(t, err)

	assert.InDelta(t, indexed, raw, 1e-9)
}

func TestEdgeLogLikelihoodOutOfBounds(t *testing.T) {
	p := jc69Partition(2)
	_, err := kernel.EdgeLogLikelihood(p, 99, -1, 0, -1, 0)
	var oob *kernel.OutOfBoundsError
	require.ErrorAs(t, err, &oob)
}

func TestComputePartialRawMatchesUpdatePartials(t *testing.T) {
	p := jc69Partition(2)
	a, err := p.TipCLV("AC", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AG", alphabet.DNA())
	require.NoError(t, err)
	p.CLVs[0] = a
	p.CLVs[1] = b
	require.NoError(t, kernel.UpdateProbMatrices(p, []int{0, 1}, []float64{0.15, 0.25}))
	require.NoError(t, kernel.UpdatePartials(p, []kernel.Operation{{ParentCLV: 2, Child1CLV: 0, Child2CLV: 1, PMatrix1: 0, PMatrix2: 1}}))

	raw := kernel.ComputePartialRaw(p, a, b, 0.15, 0.25)
	assert.InDeltaSlice(t, p.CLVs[2], raw, 1e-9)
}

func TestEdgeSiteLogLikelihoodsSumMatchesEdgeLogLikelihoodRaw(t *testing.T) {
	p := jc69Partition(3)
	a, err := p.TipCLV("ACG", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AGT", alphabet.DNA())
	require.NoError(t, err)

	perSite, err := kernel.EdgeSiteLogLikelihoods(p, a, b, 0.4)
	require.NoError(t, err)
	require.Len(t, perSite, 3)

	var total float64
	for _, v := range perSite {
		total += v
	}
	whole, err := kernel.EdgeLogLikelihoodRaw(p, a, b, 0.4)
	require.NoError(t, err)
	assert.InDelta(t, whole, total, 1e-9)
}

func TestUpdateSumtableMatchesRawCounterpart(t *testing.T) {
	p := jc69Partition(3)
	a, err := p.TipCLV("ACG", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AGT", alphabet.DNA())
	require.NoError(t, err)
	p.CLVs[0] = a
	p.CLVs[1] = b

	need := p.Sites * p.RateCategories * p.States * p.States
	indexed := make([]float64, need)
	raw := make([]float64, need)

	require.NoError(t, kernel.UpdateSumtable(p, 0, 1, indexed))
	require.NoError(t, kernel.UpdateSumtableRaw(p, a, b, raw))

	assert.Equal(t, indexed, raw)
}

func TestEdgeDerivativeMatchesRawCounterpart(t *testing.T) {
	p := jc69Partition(3)
	a, err := p.TipCLV("ACG", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AGT", alphabet.DNA())
	require.NoError(t, err)
	p.CLVs[0] = a
	p.CLVs[1] = b

	need := p.Sites * p.RateCategories * p.States * p.States
	sumtable := make([]float64, need)
	require.NoError(t, kernel.UpdateSumtable(p, 0, 1, sumtable))

	fIdx, dfIdx, err := kernel.EdgeDerivative(p, sumtable, 0.2, -1, -1)
	require.NoError(t, err)

	fRaw, dfRaw, err := kernel.EdgeDerivativeRaw(p, sumtable, 0.2)
	require.NoError(t, err)

	assert.InDelta(t, fIdx, fRaw, 1e-9)
	assert.InDelta(t, dfIdx, dfRaw, 1e-9)
}

func TestEdgeDerivativeMatchesNumericDerivativeOfEdgeLogLikelihoodRaw(t *testing.T) {
	p := jc69Partition(4)
	a, err := p.TipCLV("ACGT", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AGTC", alphabet.DNA())
	require.NoError(t, err)

	sumtable := make([]float64, p.Sites*p.RateCategories*p.States*p.States)
	require.NoError(t, kernel.UpdateSumtableRaw(p, a, b, sumtable))

	const t0, h = 0.3, 1e-6
	_, analytic, err := kernel.EdgeDerivativeRaw(p, sumtable, t0)
	require.NoError(t, err)

	fPlus, err := kernel.EdgeLogLikelihoodRaw(p, a, b, t0+h)
	require.NoError(t, err)
	fMinus, err := kernel.EdgeLogLikelihoodRaw(p, a, b, t0-h)
	require.NoError(t, err)
	numeric := (fPlus - fMinus) / (2 * h)

	assert.InDelta(t, numeric, analytic, 1e-4)
}

func TestOptimiseBrentFindsKnownMaximum(t *testing.T) {
	target := func(x float64) (float64, error) {
		return -(x - 0.3) * (x - 0.3), nil
	}
	x, err := kernel.OptimiseBrent(0, 0.5, 1, 1e-8, target)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, x, 1e-4)
}

func TestOptimiseBrentPropagatesTargetError(t *testing.T) {
	boom := &kernel.KernelError{Op: "test", Msg: "boom"}
	_, err := kernel.OptimiseBrent(0, 0.5, 1, 1e-8, func(x float64) (float64, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestOptimiseNewtonFindsRootOfLinearDerivative(t *testing.T) {
	deriv := func(x float64) (f, df float64, err error) {
		return -(x - 0.4) * (x - 0.4), -2 * (x - 0.4), nil
	}
	x, err := kernel.OptimiseNewton(0, 0.1, 1, 1e-8, 50, deriv)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, x, 1e-3)
}

func TestOptimiseNewtonOnTinyTreeLikePendantMaximizesLogLikelihood(t *testing.T) {
	p := jc69Partition(5)
	a, err := p.TipCLV("ACGTA", alphabet.DNA())
	require.NoError(t, err)
	b, err := p.TipCLV("AGTCA", alphabet.DNA())
	require.NoError(t, err)

	sumtable := make([]float64, p.Sites*p.RateCategories*p.States*p.States)
	require.NoError(t, kernel.UpdateSumtableRaw(p, a, b, sumtable))

	pendant, err := kernel.OptimiseNewton(1e-6, 0.1, 10.0, 1e-6, 10, func(x float64) (f, df float64, err error) {
		return kernel.EdgeDerivativeRaw(p, sumtable, x)
	})
	require.NoError(t, err)

	best, err := kernel.EdgeLogLikelihoodRaw(p, a, b, pendant)
	require.NoError(t, err)

	for _, perturb := range []float64{-0.02, 0.02} {
		other := pendant + perturb
		if other <= 0 {
			continue
		}
		l, err := kernel.EdgeLogLikelihoodRaw(p, a, b, other)
		require.NoError(t, err)
		assert.LessOrEqual(t, l, best+1e-6, "Newton-refined pendant should sit at (or very near) the local maximum")
	}
}

func TestEdgeLogLikelihoodRawRejectsNonPositiveSiteLikelihood(t *testing.T) {
	p := jc69Partition(1)
	zero := make([]float64, p.CLVSize())
	_, err := kernel.EdgeLogLikelihoodRaw(p, zero, zero, 0.1)
	var ke *kernel.KernelError
	require.ErrorAs(t, err, &ke)
}

func TestDiscreteGammaRatesAverageToOne(t *testing.T) {
	model := kernel.NewJC69(0.5, 4)
	rates := model.RateCategories()
	require.Len(t, rates, 4)
	var sum float64
	for _, r := range rates {
		sum += r
	}
	assert.InDelta(t, 1.0, sum/float64(len(rates)), 1e-6)
}

func TestJC69PMatrixRowsSumToOne(t *testing.T) {
	model := kernel.NewJC69(1.0, 1)
	m := model.PMatrix(0.5, 0)
	for s := 0; s < 4; s++ {
		var rowSum float64
		for k := 0; k < 4; k++ {
			rowSum += m[s*4+k]
		}
		assert.InDelta(t, 1.0, rowSum, 1e-9)
	}
}

func TestJC69PMatrixAtZeroIsIdentity(t *testing.T) {
	model := kernel.NewJC69(1.0, 1)
	m := model.PMatrix(0, 0)
	for s := 0; s < 4; s++ {
		for k := 0; k < 4; k++ {
			if s == k {
				assert.InDelta(t, 1.0, m[s*4+k], 1e-9)
			} else {
				assert.InDelta(t, 0.0, m[s*4+k], 1e-9)
			}
		}
	}
}

func TestJC69DPMatrixMatchesNumericDerivative(t *testing.T) {
	model := kernel.NewJC69(1.0, 1)
	const t0, h = 0.3, 1e-6
	plus := model.PMatrix(t0+h, 0)
	minus := model.PMatrix(t0-h, 0)
	analytic := model.DPMatrix(t0, 0)
	for i := range analytic {
		numeric := (plus[i] - minus[i]) / (2 * h)
		assert.InDelta(t, numeric, analytic[i], 1e-4)
	}
}

func TestOutOfBoundsErrorMessage(t *testing.T) {
	err := &kernel.OutOfBoundsError{Kind: "clv", Index: 5, Size: 3}
	assert.Contains(t, err.Error(), "clv")
}
