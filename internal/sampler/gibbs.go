package sampler

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"hydrocast/domain/model"
	"hydrocast/domain/series"
)

// carryEps is the threshold below which a regression slope contributes no
// usable information about its regressor and the term is skipped.
const carryEps = 1e-12

// chain owns the mutable sampler state for one Markov chain: the current
// latent path, parameter values and imputed rainfall. Nothing here is
// shared; every chain gets its own copies and its own random source.
type chain struct {
	id   int
	seed uint64
	spec model.Spec

	n    int
	y    []float64 // log response, NaN where unobserved
	rain []float64 // working copy; missing entries hold the current imputed value
	sin  []float64
	cos  []float64
	miss []int // indices into rain that are imputed

	x []float64
	p model.Params

	src *rand.PCG
	rng *rand.Rand
}

func newChain(id int, seed uint64, spec model.Spec, ds *series.Dataset) *chain {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &chain{
		id:   id,
		seed: seed,
		spec: spec,
		n:    ds.N(),
		y:    ds.LogResponse(),
		rain: ds.Rain(),
		sin:  ds.SeasonSin(),
		cos:  ds.SeasonCos(),
		miss: ds.MissingRain(),
		x:    make([]float64, ds.N()),
		src:  src,
		rng:  rand.New(src),
	}
}

// normal draws from Normal(mu, sigma).
func (c *chain) normal(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: c.src}.Rand()
}

// gamma draws from Gamma(shape, rate).
func (c *chain) gamma(shape, rate float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: rate, Src: c.src}.Rand()
}

// truncNormal draws from Normal(mu, sigma) restricted to [lo, hi] by
// inverting the CDF over the truncated probability mass.
func (c *chain) truncNormal(mu, sigma, lo, hi float64) float64 {
	nd := distuv.Normal{Mu: mu, Sigma: sigma}
	pLo, pHi := nd.CDF(lo), nd.CDF(hi)
	if pHi-pLo < carryEps {
		// All mass effectively outside the bounds; clamp to the nearer edge.
		if mu < lo {
			return lo
		}
		return hi
	}
	u := pLo + c.rng.Float64()*(pHi-pLo)
	v := nd.Quantile(u)
	return math.Min(hi, math.Max(lo, v))
}

// init sets starting values near the data so early iterations stay
// numerically tame; chain-to-chain spread comes from the seeded jitter.
func (c *chain) init() {
	// Latent path: observed response where present, carried forward into
	// gaps, plus jitter.
	last := math.NaN()
	for t := 0; t < c.n; t++ {
		if !series.Missing(c.y[t]) {
			last = c.y[t]
			break
		}
	}
	for t := 0; t < c.n; t++ {
		if !series.Missing(c.y[t]) {
			last = c.y[t]
		}
		c.x[t] = last + c.rng.NormFloat64()*0.5
	}

	// Imputed rainfall starts at the observed-rain mean.
	rainMean, rainN := 0.0, 0
	for _, v := range c.rain {
		if series.Missing(v) {
			continue
		}
		rainMean += v
		rainN++
	}
	if rainN > 0 {
		rainMean /= float64(rainN)
	}
	for _, idx := range c.miss {
		c.rain[idx] = rainMean + c.rng.NormFloat64()*0.5
	}

	xMean := 0.0
	for _, v := range c.x {
		xMean += v
	}
	xMean /= float64(c.n)

	c.p = model.Params{
		TauObs:  math.Exp(c.rng.NormFloat64() * 0.5),
		TauAdd:  math.Exp(c.rng.NormFloat64() * 0.5),
		TauRain: math.Exp(c.rng.NormFloat64() * 0.5),
		MuRain:  rainMean + c.rng.NormFloat64()*0.5,
		Mu0:     xMean + c.rng.NormFloat64()*0.5,
	}
	if c.spec.Terms.Decay {
		c.p.BetaDecay = c.spec.Priors.DecayMin +
			c.rng.Float64()*(c.spec.Priors.DecayMax-c.spec.Priors.DecayMin)
	}
	if c.spec.Terms.Rain {
		c.p.BetaRain = c.rng.NormFloat64() * 0.5
	}
	if c.spec.Terms.Season {
		c.p.BetaSeasonSin = c.rng.NormFloat64() * 0.5
		c.p.BetaSeasonCos = c.rng.NormFloat64() * 0.5
	}
}

// mu evaluates the process mean for index t (t >= 1) under the current
// state.
func (c *chain) mu(t int) float64 {
	return c.spec.Mean(c.x[t-1], c.p, c.rain[t], c.sin[t], c.cos[t])
}

// covar is the covariate-only contribution to mu[t]: everything except the
// carried previous state and baseline.
func (c *chain) covar(t int) float64 {
	v := 0.0
	if c.spec.Terms.Rain {
		v += c.p.BetaRain * c.rain[t]
	}
	if c.spec.Terms.Season {
		v += c.p.BetaSeasonSin*c.sin[t] + c.p.BetaSeasonCos*c.cos[t]
	}
	return v
}

// step performs one full Gibbs sweep, returning the name of the first
// non-finite variable if the sweep degenerated.
func (c *chain) step() string {
	c.updateLatent()
	c.updateMissingRain()
	c.updateCoefficients()
	c.updateRainModel()
	c.updatePrecisions()
	return c.firstNonFinite()
}

// updateLatent resamples each x[t] from its normal full conditional: the
// observation at t (if any), the process term that generates x[t], and the
// process term that x[t] feeds into.
func (c *chain) updateLatent() {
	for t := 0; t < c.n; t++ {
		var prec, num float64

		if !series.Missing(c.y[t]) {
			prec += c.p.TauObs
			num += c.p.TauObs * c.y[t]
		}

		if t == 0 {
			m, ic := c.spec.InitialCondition(c.p)
			prec += ic
			num += ic * m
		} else {
			m := c.mu(t)
			prec += c.p.TauAdd
			num += c.p.TauAdd * m
		}

		if t < c.n-1 {
			carry := c.spec.Carry(c.p)
			if math.Abs(carry) > carryEps {
				// mu[t+1] is linear in x[t] with slope carry; isolate the
				// intercept and fold the neighbor in as a normal likelihood.
				muNext := c.spec.Mean(c.x[t], c.p, c.rain[t+1], c.sin[t+1], c.cos[t+1])
				intercept := muNext - carry*c.x[t]
				prec += carry * carry * c.p.TauAdd
				num += carry * c.p.TauAdd * (c.x[t+1] - intercept)
			}
		}

		c.x[t] = c.normal(num/prec, 1/math.Sqrt(prec))
	}
}

// updateMissingRain resamples each imputed rainfall value from its rain
// model conditional combined with its role in the process mean at t.
// Missing covariates are latent variables here, never pre-substituted.
func (c *chain) updateMissingRain() {
	if !c.spec.Terms.ImputeRain {
		return
	}
	for _, t := range c.miss {
		prec := c.p.TauRain
		num := c.p.TauRain * c.p.MuRain

		if c.spec.Terms.Rain && t >= 1 && math.Abs(c.p.BetaRain) > carryEps {
			withoutRain := c.mu(t) - c.p.BetaRain*c.rain[t]
			prec += c.p.BetaRain * c.p.BetaRain * c.p.TauAdd
			num += c.p.BetaRain * c.p.TauAdd * (c.x[t] - withoutRain)
		}

		c.rain[t] = c.normal(num/prec, 1/math.Sqrt(prec))
	}
}

// updateCoefficients resamples the regression coefficients from their
// conjugate normal conditionals against the current latent path. Each
// update sees the others' freshly drawn values.
func (c *chain) updateCoefficients() {
	if c.spec.Terms.Decay {
		c.updateMu0()
		c.updateDecay()
	}
	if c.spec.Terms.Rain {
		c.p.BetaRain = c.linearCoefficient(c.spec.Priors.BetaRain, func(t int) float64 { return c.rain[t] },
			func(t int) float64 { return c.p.BetaRain * c.rain[t] })
	}
	if c.spec.Terms.Season {
		c.p.BetaSeasonSin = c.linearCoefficient(c.spec.Priors.BetaSeasonSin, func(t int) float64 { return c.sin[t] },
			func(t int) float64 { return c.p.BetaSeasonSin * c.sin[t] })
		c.p.BetaSeasonCos = c.linearCoefficient(c.spec.Priors.BetaSeasonCos, func(t int) float64 { return c.cos[t] },
			func(t int) float64 { return c.p.BetaSeasonCos * c.cos[t] })
	}
}

// linearCoefficient draws a coefficient whose regressor at t is z(t) and
// whose current contribution to mu[t] is own(t).
func (c *chain) linearCoefficient(prior model.NormalPrior, z, own func(t int) float64) float64 {
	prec := prior.Precision()
	num := prior.Precision() * prior.Mean
	for t := 1; t < c.n; t++ {
		zt := z(t)
		resid := c.x[t] - (c.mu(t) - own(t))
		prec += c.p.TauAdd * zt * zt
		num += c.p.TauAdd * zt * resid
	}
	return c.normal(num/prec, 1/math.Sqrt(prec))
}

// updateMu0 draws the baseline level. Under the decay variant mu0 enters
// every process mean with weight (1 - beta_decay) and anchors the initial
// condition.
func (c *chain) updateMu0() {
	prior := c.spec.Priors.Mu0
	phi := c.p.BetaDecay
	w := 1 - phi

	prec := prior.Precision()
	num := prior.Precision() * prior.Mean

	// x[1] ~ Normal(mu0, 1/tau_ic) in this variant.
	prec += c.spec.InitialPrecision
	num += c.spec.InitialPrecision * c.x[0]

	for t := 1; t < c.n; t++ {
		resid := c.x[t] - phi*c.x[t-1] - c.covar(t)
		prec += c.p.TauAdd * w * w
		num += c.p.TauAdd * w * resid
	}
	c.p.Mu0 = c.normal(num/prec, 1/math.Sqrt(prec))
}

// updateDecay draws beta_decay from its conditional truncated to the
// configured bounds; the Uniform prior contributes nothing inside them.
func (c *chain) updateDecay() {
	lo, hi := c.spec.Priors.DecayMin, c.spec.Priors.DecayMax

	var prec, num float64
	for t := 1; t < c.n; t++ {
		z := c.x[t-1] - c.p.Mu0
		resid := c.x[t] - c.p.Mu0 - c.covar(t)
		prec += c.p.TauAdd * z * z
		num += c.p.TauAdd * z * resid
	}
	if prec < carryEps {
		// Flat conditional: fall back to the prior.
		c.p.BetaDecay = lo + c.rng.Float64()*(hi-lo)
		return
	}
	c.p.BetaDecay = c.truncNormal(num/prec, 1/math.Sqrt(prec), lo, hi)
}

// updateRainModel draws the rainfall-imputation mean and precision against
// every rainfall value, observed and imputed alike.
func (c *chain) updateRainModel() {
	if !c.spec.Terms.ImputeRain {
		return
	}
	prior := c.spec.Priors.MuRain
	g := c.spec.Priors.TauRain

	sum := 0.0
	for _, v := range c.rain {
		sum += v
	}
	nR := float64(len(c.rain))

	prec := prior.Precision() + c.p.TauRain*nR
	num := prior.Precision()*prior.Mean + c.p.TauRain*sum
	c.p.MuRain = c.normal(num/prec, 1/math.Sqrt(prec))

	sse := 0.0
	for _, v := range c.rain {
		d := v - c.p.MuRain
		sse += d * d
	}
	c.p.TauRain = c.gamma(g.Shape+nR/2, g.Rate+sse/2)
}

// updatePrecisions draws the observation and process precisions from their
// conjugate Gamma conditionals over the current residuals.
func (c *chain) updatePrecisions() {
	gObs := c.spec.Priors.TauObs
	nObs, sseObs := 0, 0.0
	for t := 0; t < c.n; t++ {
		if series.Missing(c.y[t]) {
			continue
		}
		d := c.y[t] - c.x[t]
		sseObs += d * d
		nObs++
	}
	c.p.TauObs = c.gamma(gObs.Shape+float64(nObs)/2, gObs.Rate+sseObs/2)

	gAdd := c.spec.Priors.TauAdd
	if c.n > 1 {
		sseAdd := 0.0
		for t := 1; t < c.n; t++ {
			d := c.x[t] - c.mu(t)
			sseAdd += d * d
		}
		c.p.TauAdd = c.gamma(gAdd.Shape+float64(c.n-1)/2, gAdd.Rate+sseAdd/2)
	} else {
		// A length-1 series has no process term; the precision stays a
		// prior draw.
		c.p.TauAdd = c.gamma(gAdd.Shape, gAdd.Rate)
	}
}

// firstNonFinite names the first degenerate value in the current state, or
// returns "" when the sweep is clean.
func (c *chain) firstNonFinite() string {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	for _, v := range c.x {
		if !finite(v) {
			return "x"
		}
	}
	for _, idx := range c.miss {
		if !finite(c.rain[idx]) {
			return "rain"
		}
	}
	type check struct {
		name string
		v    float64
	}
	checks := []check{
		{"tau_obs", c.p.TauObs},
		{"tau_add", c.p.TauAdd},
		{"mu0", c.p.Mu0},
		{"beta_decay", c.p.BetaDecay},
		{"beta_rain", c.p.BetaRain},
		{"beta_season_sin", c.p.BetaSeasonSin},
		{"beta_season_cos", c.p.BetaSeasonCos},
	}
	if c.spec.Terms.ImputeRain {
		checks = append(checks, check{"tau_rain", c.p.TauRain}, check{"mu_rain", c.p.MuRain})
	}
	for _, ch := range checks {
		if !finite(ch.v) {
			return ch.name
		}
	}
	return ""
}

// snapshot copies the current joint state into a draw.
func (c *chain) snapshot() Draw {
	d := Draw{
		X:      append([]float64(nil), c.x...),
		Params: c.p,
	}
	if len(c.miss) > 0 {
		d.Rain = make([]float64, len(c.miss))
		for i, idx := range c.miss {
			d.Rain[i] = c.rain[idx]
		}
	}
	return d
}
