package model

import (
	"fmt"
	"math"
)

// Terms selects which parts of the process model are active. The zero
// value is a plain random walk.
type Terms struct {
	Rain       bool `json:"rain"`        // lagged rainfall effect on the process mean
	Season     bool `json:"season"`      // annual sin/cos effect on the process mean
	Decay      bool `json:"decay"`       // AR decay toward a baseline level mu0
	ImputeRain bool `json:"impute_rain"` // treat missing rainfall as a latent variable
}

// GammaPrior parameterizes a precision prior by shape and rate.
type GammaPrior struct {
	Shape float64 `json:"shape"`
	Rate  float64 `json:"rate"`
}

// NormalPrior parameterizes a coefficient prior by mean and variance.
type NormalPrior struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Precision returns the prior precision (inverse variance).
func (p NormalPrior) Precision() float64 { return 1 / p.Variance }

// Priors holds every prior hyperparameter of the joint model. Inactive
// terms' priors are ignored.
type Priors struct {
	TauObs  GammaPrior `json:"tau_obs"`
	TauAdd  GammaPrior `json:"tau_add"`
	TauRain GammaPrior `json:"tau_rain"`

	BetaRain      NormalPrior `json:"beta_rain"`
	BetaSeasonSin NormalPrior `json:"beta_season_sin"`
	BetaSeasonCos NormalPrior `json:"beta_season_cos"`
	Mu0           NormalPrior `json:"mu0"`
	MuRain        NormalPrior `json:"mu_rain"`

	// Decay coefficient bounds. Must lie within [0,1] for AR stability.
	DecayMin float64 `json:"decay_min"`
	DecayMax float64 `json:"decay_max"`
}

// Spec fully determines the joint probability model: active terms, prior
// hyperparameters, and the initial-condition prior for x[1].
//
// The initial condition is variant-dependent and deliberately not unified:
// random-walk variants use the fixed InitialMean, while the decay variant
// centers x[1] on mu0. InitialPrecision applies to both.
type Spec struct {
	Terms  Terms  `json:"terms"`
	Priors Priors `json:"priors"`

	InitialMean      float64 `json:"initial_mean"`
	InitialPrecision float64 `json:"initial_precision"`
}

// Params is one full assignment to the scalar parameters. Inactive terms
// keep their coefficients at zero so Mean can ignore them uniformly.
type Params struct {
	TauObs  float64 `json:"tau_obs"`
	TauAdd  float64 `json:"tau_add"`
	TauRain float64 `json:"tau_rain"`

	Mu0           float64 `json:"mu0"`
	BetaDecay     float64 `json:"beta_decay"`
	BetaRain      float64 `json:"beta_rain"`
	BetaSeasonSin float64 `json:"beta_season_sin"`
	BetaSeasonCos float64 `json:"beta_season_cos"`
	MuRain        float64 `json:"mu_rain"`
}

// Default returns the reference specification: vague Gamma(0.1, 0.1)
// precision priors, wide zero-mean coefficient priors, Uniform(0,1) decay,
// and a diffuse fixed initial condition.
func Default() Spec {
	return Spec{
		Terms: Terms{},
		Priors: Priors{
			TauObs:        GammaPrior{Shape: 0.1, Rate: 0.1},
			TauAdd:        GammaPrior{Shape: 0.1, Rate: 0.1},
			TauRain:       GammaPrior{Shape: 0.1, Rate: 0.1},
			BetaRain:      NormalPrior{Mean: 0, Variance: 1000},
			BetaSeasonSin: NormalPrior{Mean: 0, Variance: 1000},
			BetaSeasonCos: NormalPrior{Mean: 0, Variance: 1000},
			Mu0:           NormalPrior{Mean: 0, Variance: 1000},
			MuRain:        NormalPrior{Mean: 0, Variance: 1000},
			DecayMin:      0,
			DecayMax:      1,
		},
		InitialMean:      0,
		InitialPrecision: 0.01,
	}
}

// Validate rejects structurally invalid specifications before any sampling
// work is done.
func (s Spec) Validate() error {
	checkGamma := func(name string, g GammaPrior) error {
		if g.Shape <= 0 || g.Rate <= 0 {
			return fmt.Errorf("%s prior requires positive shape and rate, got shape=%g rate=%g", name, g.Shape, g.Rate)
		}
		return nil
	}
	checkNormal := func(name string, n NormalPrior) error {
		if n.Variance <= 0 {
			return fmt.Errorf("%s prior requires positive variance, got %g", name, n.Variance)
		}
		if math.IsNaN(n.Mean) || math.IsInf(n.Mean, 0) {
			return fmt.Errorf("%s prior mean is non-finite", name)
		}
		return nil
	}

	if err := checkGamma("tau_obs", s.Priors.TauObs); err != nil {
		return err
	}
	if err := checkGamma("tau_add", s.Priors.TauAdd); err != nil {
		return err
	}
	if s.Terms.ImputeRain {
		if err := checkGamma("tau_rain", s.Priors.TauRain); err != nil {
			return err
		}
		if err := checkNormal("mu_rain", s.Priors.MuRain); err != nil {
			return err
		}
	}
	if s.Terms.Rain {
		if err := checkNormal("beta_rain", s.Priors.BetaRain); err != nil {
			return err
		}
	}
	if s.Terms.Season {
		if err := checkNormal("beta_season_sin", s.Priors.BetaSeasonSin); err != nil {
			return err
		}
		if err := checkNormal("beta_season_cos", s.Priors.BetaSeasonCos); err != nil {
			return err
		}
	}
	if s.Terms.Decay {
		if err := checkNormal("mu0", s.Priors.Mu0); err != nil {
			return err
		}
		if s.Priors.DecayMin < 0 || s.Priors.DecayMax > 1 || s.Priors.DecayMin >= s.Priors.DecayMax {
			return fmt.Errorf("decay bounds [%g, %g] must satisfy 0 <= min < max <= 1",
				s.Priors.DecayMin, s.Priors.DecayMax)
		}
	}
	if s.InitialPrecision <= 0 {
		return fmt.Errorf("initial-condition precision must be positive, got %g", s.InitialPrecision)
	}
	if math.IsNaN(s.InitialMean) || math.IsInf(s.InitialMean, 0) {
		return fmt.Errorf("initial-condition mean is non-finite")
	}
	return nil
}

// InitialCondition returns the prior mean and precision for x[1] under the
// active variant: mu0-centered for the decay model, fixed otherwise.
func (s Spec) InitialCondition(p Params) (mean, precision float64) {
	if s.Terms.Decay {
		return p.Mu0, s.InitialPrecision
	}
	return s.InitialMean, s.InitialPrecision
}

// Mean evaluates the process mean mu[t] given the previous latent state
// and the covariates at t. Inactive terms contribute nothing.
func (s Spec) Mean(prev float64, p Params, rain, seasonSin, seasonCos float64) float64 {
	var m float64
	if s.Terms.Decay {
		m = p.Mu0 + p.BetaDecay*(prev-p.Mu0)
	} else {
		m = prev
	}
	if s.Terms.Rain {
		m += p.BetaRain * rain
	}
	if s.Terms.Season {
		m += p.BetaSeasonSin*seasonSin + p.BetaSeasonCos*seasonCos
	}
	return m
}

// Carry returns the coefficient on the previous latent state inside the
// process mean: beta_decay for the decay variant, 1 for a random walk.
func (s Spec) Carry(p Params) float64 {
	if s.Terms.Decay {
		return p.BetaDecay
	}
	return 1
}
