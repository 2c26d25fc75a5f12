package kernel

import "math"

// Operation is one postorder (parent, child1, child2, pmatrix1, pmatrix2)
// step used by UpdatePartials to refresh an inner CLV from its children.
type Operation struct {
	ParentCLV int
	Child1CLV int
	Child2CLV int
	PMatrix1  int
	PMatrix2  int
}

func checkIndex(kind string, idx, size int) error {
	if idx < 0 || idx >= size {
		return &OutOfBoundsError{Kind: kind, Index: idx, Size: size}
	}
	return nil
}

// UpdateProbMatrices recomputes the rate-category probability matrices for
// the given pmatrix slots in place from branch lengths.
func UpdateProbMatrices(p *Partition, matrixIndices []int, branchLengths []float64) error {
	if len(matrixIndices) != len(branchLengths) {
		return &KernelError{Op: "UpdateProbMatrices", Msg: "index/length count mismatch"}
	}
	for i, idx := range matrixIndices {
		if err := checkIndex("pmatrix", idx, len(p.PMatrices)); err != nil {
			return err
		}
		t := branchLengths[i]
		flat := make([]float64, p.RateCategories*p.States*p.States)
		for cat := 0; cat < p.RateCategories; cat++ {
			m := p.Model.PMatrix(t, cat)
			copy(flat[cat*p.States*p.States:], m)
		}
		p.PMatrices[idx] = flat
	}
	return nil
}

// UpdatePartials executes a postorder list of operations, refreshing inner
// CLVs from their two children and the matching probability matrices.
func UpdatePartials(p *Partition, ops []Operation) error {
	for _, op := range ops {
		if err := checkIndex("clv", op.ParentCLV, len(p.CLVs)); err != nil {
			return err
		}
		c1 := p.CLVs[op.Child1CLV]
		c2 := p.CLVs[op.Child2CLV]
		m1 := p.PMatrices[op.PMatrix1]
		m2 := p.PMatrices[op.PMatrix2]
		if c1 == nil || c2 == nil || m1 == nil || m2 == nil {
			return &KernelError{Op: "UpdatePartials", Msg: "missing operand buffer"}
		}
		out := p.CLVs[op.ParentCLV]
		if out == nil {
			out = p.NewCLV()
		}
		states := p.States
		for site := 0; site < p.Sites; site++ {
			for cat := 0; cat < p.RateCategories; cat++ {
				base := (site*p.RateCategories + cat) * states
				mbase := cat * states * states
				for s := 0; s < states; s++ {
					var sum1, sum2 float64
					for k := 0; k < states; k++ {
						sum1 += m1[mbase+s*states+k] * c1[base+k]
						sum2 += m2[mbase+s*states+k] * c2[base+k]
					}
					out[base+s] = sum1 * sum2
				}
			}
		}
		p.CLVs[op.ParentCLV] = out
	}
	return nil
}

// EdgeLogLikelihood returns sum over sites of log P(query site | both
// endpoint CLVs, the pmatrix joining them), scaled by the partition's rate
// mixture weights and any per-node scaler exponents.
func EdgeLogLikelihood(p *Partition, clvA, scalerA, clvB, scalerB, pmatrixIdx int) (float64, error) {
	if err := checkIndex("clv", clvA, len(p.CLVs)); err != nil {
		return 0, err
	}
	if err := checkIndex("clv", clvB, len(p.CLVs)); err != nil {
		return 0, err
	}
	if err := checkIndex("pmatrix", pmatrixIdx, len(p.PMatrices)); err != nil {
		return 0, err
	}
	a := p.CLVs[clvA]
	b := p.CLVs[clvB]
	m := p.PMatrices[pmatrixIdx]
	if a == nil || b == nil || m == nil {
		return 0, &KernelError{Op: "EdgeLogLikelihood", Msg: "uninitialised operand buffer"}
	}
	states := p.States
	logl := 0.0
	for site := 0; site < p.Sites; site++ {
		siteSum := 0.0
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * states
			mbase := cat * states * states
			catSum := 0.0
			for s := 0; s < states; s++ {
				inner := 0.0
				for k := 0; k < states; k++ {
					inner += m[mbase+s*states+k] * b[base+k]
				}
				catSum += a[base+s] * inner
			}
			siteSum += p.RateWeights[cat] * catSum
		}
		scaleExp := scalerExponent(p, scalerA, site) + scalerExponent(p, scalerB, site)
		if siteSum <= 0 {
			return 0, &KernelError{Op: "EdgeLogLikelihood", Msg: "non-positive site likelihood"}
		}
		v := math.Log(siteSum) + float64(scaleExp)*math.Log(2)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &KernelError{Op: "EdgeLogLikelihood", Msg: "non-finite site log-likelihood"}
		}
		logl += p.PatternWeights[site] * v
	}
	return logl, nil
}

// ComputePartialRaw computes the inner-node CLV resulting from joining two
// child CLVs over branch lengths tA, tB, without touching a Partition's
// index-addressed CLV/pmatrix slots. Used by tinytree's transient 3-node
// evaluation, where the inner node and its incident pmatrices exist only
// for the duration of one Place call and are not resident-set managed.
func ComputePartialRaw(p *Partition, childA, childB []float64, tA, tB float64) []float64 {
	states := p.States
	out := make([]float64, p.CLVSize())
	for site := 0; site < p.Sites; site++ {
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * states
			mA := p.Model.PMatrix(tA, cat)
			mB := p.Model.PMatrix(tB, cat)
			for s := 0; s < states; s++ {
				var sumA, sumB float64
				for k := 0; k < states; k++ {
					sumA += mA[s*states+k] * childA[base+k]
					sumB += mB[s*states+k] * childB[base+k]
				}
				out[base+s] = sumA * sumB
			}
		}
	}
	return out
}

// EdgeLogLikelihoodRaw is EdgeLogLikelihood's raw-buffer counterpart: it
// scores two CLV buffers joined by branch length t without requiring either
// side to be registered in a Partition's CLVs slice.
func EdgeLogLikelihoodRaw(p *Partition, a, b []float64, t float64) (float64, error) {
	states := p.States
	logl := 0.0
	for site := 0; site < p.Sites; site++ {
		siteSum := 0.0
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * states
			m := p.Model.PMatrix(t, cat)
			catSum := 0.0
			for s := 0; s < states; s++ {
				inner := 0.0
				for k := 0; k < states; k++ {
					inner += m[s*states+k] * b[base+k]
				}
				catSum += a[base+s] * inner
			}
			siteSum += p.RateWeights[cat] * catSum
		}
		if siteSum <= 0 {
			return 0, &KernelError{Op: "EdgeLogLikelihoodRaw", Msg: "non-positive site likelihood"}
		}
		v := math.Log(siteSum)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &KernelError{Op: "EdgeLogLikelihoodRaw", Msg: "non-finite site log-likelihood"}
		}
		logl += p.PatternWeights[site] * v
	}
	return logl, nil
}

// EdgeSiteLogLikelihoods is EdgeLogLikelihoodRaw's per-site counterpart: it
// returns one log-likelihood per site instead of the pattern-weighted sum,
// the shape the lookup store needs to precompute per-character tables
// rather than a single scalar.
func EdgeSiteLogLikelihoods(p *Partition, a, b []float64, t float64) ([]float64, error) {
	states := p.States
	out := make([]float64, p.Sites)
	for site := 0; site < p.Sites; site++ {
		siteSum := 0.0
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * states
			m := p.Model.PMatrix(t, cat)
			catSum := 0.0
			for s := 0; s < states; s++ {
				inner := 0.0
				for k := 0; k < states; k++ {
					inner += m[s*states+k] * b[base+k]
				}
				catSum += a[base+s] * inner
			}
			siteSum += p.RateWeights[cat] * catSum
		}
		if siteSum <= 0 {
			return nil, &KernelError{Op: "EdgeSiteLogLikelihoods", Msg: "non-positive site likelihood"}
		}
		v := math.Log(siteSum)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &KernelError{Op: "EdgeSiteLogLikelihoods", Msg: "non-finite site log-likelihood"}
		}
		out[site] = v
	}
	return out, nil
}

func scalerExponent(p *Partition, scalerIdx, site int) uint32 {
	if scalerIdx < 0 || scalerIdx >= len(p.Scalers) {
		return 0
	}
	s := p.Scalers[scalerIdx]
	if s == nil {
		return 0
	}
	return s[site]
}

// UpdateSumtable populates a site-level cache (sumtable) used by
// OptimiseNewton: for each site and rate category, the derivative-ready
// product of the child CLV against the model's instantaneous-rate
// sensitivity is precomputed so Newton iterations avoid re-walking both
// CLVs on every call.
func UpdateSumtable(p *Partition, clvA, clvB int, sumtable []float64) error {
	if err := checkIndex("clv", clvA, len(p.CLVs)); err != nil {
		return err
	}
	if err := checkIndex("clv", clvB, len(p.CLVs)); err != nil {
		return err
	}
	a := p.CLVs[clvA]
	b := p.CLVs[clvB]
	if a == nil || b == nil {
		return &KernelError{Op: "UpdateSumtable", Msg: "uninitialised operand buffer"}
	}
	states := p.States
	need := p.Sites * p.RateCategories * states * states
	if cap(sumtable) < need {
		return &KernelError{Op: "UpdateSumtable", Msg: "sumtable buffer too small"}
	}
	idx := 0
	for site := 0; site < p.Sites; site++ {
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * states
			for s := 0; s < states; s++ {
				for k := 0; k < states; k++ {
					sumtable[idx] = a[base+s] * b[base+k]
					idx++
				}
			}
		}
	}
	return nil
}

// UpdateSumtableRaw is UpdateSumtable's raw-buffer counterpart: it
// precomputes the same site/rate-category products directly from two CLV
// buffers, without either being registered in a Partition's CLVs slice.
// Used by tinytree's transient 3-node evaluation alongside
// ComputePartialRaw/EdgeLogLikelihoodRaw.
func UpdateSumtableRaw(p *Partition, a, b []float64, sumtable []float64) error {
	if a == nil || b == nil {
		return &KernelError{Op: "UpdateSumtableRaw", Msg: "uninitialised operand buffer"}
	}
	states := p.States
	need := p.Sites * p.RateCategories * states * states
	if cap(sumtable) < need {
		return &KernelError{Op: "UpdateSumtableRaw", Msg: "sumtable buffer too small"}
	}
	idx := 0
	for site := 0; site < p.Sites; site++ {
		for cat := 0; cat < p.RateCategories; cat++ {
			base := (site*p.RateCategories + cat) * states
			for s := 0; s < states; s++ {
				for k := 0; k < states; k++ {
					sumtable[idx] = a[base+s] * b[base+k]
					idx++
				}
			}
		}
	}
	return nil
}

// EdgeDerivativeRaw is EdgeDerivative's raw-buffer counterpart: it scores a
// sumtable built by UpdateSumtableRaw at pendant length t without either
// side being registered in a Partition's CLVs slice, and without scaler
// exponents (tinytree's transient evaluation carries no scalers).
func EdgeDerivativeRaw(p *Partition, sumtable []float64, t float64) (f, df float64, err error) {
	states := p.States
	for site := 0; site < p.Sites; site++ {
		siteSum, siteDeriv := 0.0, 0.0
		for cat := 0; cat < p.RateCategories; cat++ {
			m := p.Model.PMatrix(t, cat)
			dm := p.Model.DPMatrix(t, cat)
			base := (site*p.RateCategories + cat) * states * states
			catSum, catDeriv := 0.0, 0.0
			for s := 0; s < states; s++ {
				for k := 0; k < states; k++ {
					prod := sumtable[base+s*states+k]
					catSum += prod * m[s*states+k]
					catDeriv += prod * dm[s*states+k]
				}
			}
			siteSum += p.RateWeights[cat] * catSum
			siteDeriv += p.RateWeights[cat] * catDeriv
		}
		if siteSum <= 0 {
			return 0, 0, &KernelError{Op: "EdgeDerivativeRaw", Msg: "non-positive site likelihood"}
		}
		v := math.Log(siteSum)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, &KernelError{Op: "EdgeDerivativeRaw", Msg: "non-finite log-likelihood"}
		}
		f += p.PatternWeights[site] * v
		df += p.PatternWeights[site] * (siteDeriv / siteSum)
	}
	return f, df, nil
}

// OptimiseBrent finds the x in [lo, hi] maximising targetFn (a unimodal
// log-likelihood curve), using Brent's golden-section/parabolic-interpolation
// method. guess seeds the first parabolic trial. Returns a *KernelError if
// targetFn ever returns a non-finite value.
func OptimiseBrent(lo, guess, hi, tol float64, targetFn func(x float64) (float64, error)) (float64, error) {
	const gold = 0.3819660112501051 // 1 - 1/phi
	if guess < lo || guess > hi {
		guess = (lo + hi) / 2
	}
	a, b := lo, hi
	x, w, v := guess, guess, guess
	fx, err := targetFn(x)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(fx) || math.IsInf(fx, 0) {
		return 0, &KernelError{Op: "OptimiseBrent", Msg: "non-finite objective value"}
	}
	fw, fv := fx, fx
	d, e := 0.0, 0.0

	for iter := 0; iter < 100; iter++ {
		mid := (a + b) / 2
		tol1 := tol*math.Abs(x) + 1e-12
		tol2 := 2 * tol1
		if math.Abs(x-mid) <= tol2-(b-a)/2 {
			return x, nil
		}
		useGolden := true
		if math.Abs(e) > tol1 {
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - w)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etemp := e
			e = d
			if math.Abs(p) < math.Abs(0.5*q*etemp) && p > q*(a-x) && p < q*(b-x) {
				d = p / q
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = tol1
					if mid < x {
						d = -tol1
					}
				}
				useGolden = false
			}
		}
		if useGolden {
			if x < mid {
				e = b - x
			} else {
				e = a - x
			}
			d = gold * e
		}
		var u float64
		if math.Abs(d) >= tol1 {
			u = x + d
		} else if d > 0 {
			u = x + tol1
		} else {
			u = x - tol1
		}
		fu, err := targetFn(u)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(fu) || math.IsInf(fu, 0) {
			return 0, &KernelError{Op: "OptimiseBrent", Msg: "non-finite objective value"}
		}
		if fu >= fx {
			if u < x {
				a = u
			} else {
				b = u
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
		} else {
			if u < x {
				a = x
			} else {
				b = x
			}
			if fu >= fw || w == x {
				v, w = w, u
				fv, fw = fw, fu
			} else if fu >= fv || v == x || v == w {
				v = u
				fv = fu
			}
		}
	}
	return x, nil
}

// OptimiseNewton finds the root of derivFn (the score derivative) in
// [lo, hi] starting from guess, falling back to bisection whenever a Newton
// step would leave the bracket — the textbook safeguarded Newton-Raphson
// hybrid. Returns a *KernelError if the iteration does not converge within
// maxIter or derivFn returns a non-finite value.
func OptimiseNewton(lo, guess, hi, tol float64, maxIter int, derivFn func(x float64) (f, df float64, err error)) (float64, error) {
	a, b := lo, hi
	x := guess
	if x < a || x > b {
		x = (a + b) / 2
	}
	_, dfLo, err := derivFn(a)
	if err != nil {
		return 0, err
	}
	_, dfHi, err := derivFn(b)
	if err != nil {
		return 0, err
	}
	if dfLo == 0 {
		return a, nil
	}
	if dfHi == 0 {
		return b, nil
	}
	if (dfLo > 0) == (dfHi > 0) {
		// Derivative does not change sign in the bracket: the maximum sits
		// at whichever endpoint has the larger function value.
		fa, _, err := derivFn(a)
		if err != nil {
			return 0, err
		}
		fb, _, err := derivFn(b)
		if err != nil {
			return 0, err
		}
		if fa >= fb {
			return a, nil
		}
		return b, nil
	}

	for iter := 0; iter < maxIter; iter++ {
		_, df, err := derivFn(x)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(df) || math.IsInf(df, 0) {
			return 0, &KernelError{Op: "OptimiseNewton", Msg: "non-finite derivative"}
		}
		if df > 0 {
			a = x
		} else {
			b = x
		}
		_, ddf, err := secondDerivativeApprox(derivFn, x)
		if err != nil {
			return 0, err
		}
		step := math.Inf(1)
		if ddf != 0 {
			step = df / ddf
		}
		next := x - step
		if math.IsNaN(next) || next <= a || next >= b {
			next = (a + b) / 2
		}
		if math.Abs(next-x) < tol {
			return next, nil
		}
		x = next
	}
	return x, &KernelError{Op: "OptimiseNewton", Msg: "did not converge within maxIter"}
}

// secondDerivativeApprox estimates d²f/dx² at x via a central finite
// difference of derivFn's first-derivative output, avoiding a second
// analytic derivative in the Model interface.
func secondDerivativeApprox(derivFn func(x float64) (f, df float64, err error), x float64) (float64, float64, error) {
	const h = 1e-6
	_, dfPlus, err := derivFn(x + h)
	if err != nil {
		return 0, 0, err
	}
	_, dfMinus, err := derivFn(x - h)
	if err != nil {
		return 0, 0, err
	}
	return 0, (dfPlus - dfMinus) / (2 * h), nil
}

// EdgeDerivative evaluates the edge log-likelihood and its first derivative
// with respect to the pendant branch length t, using a precomputed sumtable
// and the model's PMatrix/DPMatrix. It is the deriv_fn callback Newton needs.
func EdgeDerivative(p *Partition, sumtable []float64, t float64, scalerA, scalerB int) (f, df float64, err error) {
	states := p.States
	for site := 0; site < p.Sites; site++ {
		siteSum, siteDeriv := 0.0, 0.0
		for cat := 0; cat < p.RateCategories; cat++ {
			m := p.Model.PMatrix(t, cat)
			dm := p.Model.DPMatrix(t, cat)
			base := (site*p.RateCategories + cat) * states * states
			catSum, catDeriv := 0.0, 0.0
			for s := 0; s < states; s++ {
				for k := 0; k < states; k++ {
					prod := sumtable[base+s*states+k]
					catSum += prod * m[s*states+k]
					catDeriv += prod * dm[s*states+k]
				}
			}
			siteSum += p.RateWeights[cat] * catSum
			siteDeriv += p.RateWeights[cat] * catDeriv
		}
		if siteSum <= 0 {
			return 0, 0, &KernelError{Op: "EdgeDerivative", Msg: "non-positive site likelihood"}
		}
		scaleExp := scalerExponent(p, scalerA, site) + scalerExponent(p, scalerB, site)
		f += p.PatternWeights[site] * (math.Log(siteSum) + float64(scaleExp)*math.Log(2))
		df += p.PatternWeights[site] * (siteDeriv / siteSum)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, 0, &KernelError{Op: "EdgeDerivative", Msg: "non-finite log-likelihood"}
	}
	return f, df, nil
}
