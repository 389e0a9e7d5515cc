package sampler

import (
	"fmt"

	"hydrocast/domain/model"
)

// Draw is one full assignment to the joint state: the latent path, every
// scalar parameter, and the imputed rainfall values.
type Draw struct {
	X      []float64    `json:"x"`
	Rain   []float64    `json:"rain,omitempty"` // aligned with SampleSet.MissingRain
	Params model.Params `json:"params"`
}

// Param extracts a monitored scalar from the draw by name.
func (d Draw) Param(name string) (float64, bool) {
	switch name {
	case "tau_obs":
		return d.Params.TauObs, true
	case "tau_add":
		return d.Params.TauAdd, true
	case "tau_rain":
		return d.Params.TauRain, true
	case "mu0":
		return d.Params.Mu0, true
	case "beta_decay":
		return d.Params.BetaDecay, true
	case "beta_rain":
		return d.Params.BetaRain, true
	case "beta_season_sin":
		return d.Params.BetaSeasonSin, true
	case "beta_season_cos":
		return d.Params.BetaSeasonCos, true
	case "mu_rain":
		return d.Params.MuRain, true
	}
	return 0, false
}

// ChainError reports a numerical failure inside one chain. It names the
// iteration and the variable that first went non-finite; the other chains
// are unaffected.
type ChainError struct {
	Chain     int
	Iteration int
	Variable  string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain %d: non-finite %s at iteration %d", e.Chain, e.Variable, e.Iteration)
}

// ChainTrace is the ordered sequence of draws from one chain. A failed
// chain keeps the draws recorded before the failure and carries Err.
type ChainTrace struct {
	Chain int
	Seed  uint64
	Draws []Draw
	Err   *ChainError
}

// Failed reports whether the chain aborted before completing its budget.
func (t *ChainTrace) Failed() bool { return t.Err != nil }

// SampleSet is the raw multi-chain output of the inference engine. No
// burn-in has been removed; that is the diagnostics stage's call.
type SampleSet struct {
	Iterations  int
	MissingRain []int // rainfall indices that were imputed, aligned with Draw.Rain
	Chains      []ChainTrace
}

// Surviving returns the chains that completed their full iteration budget.
func (s *SampleSet) Surviving() []*ChainTrace {
	var out []*ChainTrace
	for i := range s.Chains {
		if !s.Chains[i].Failed() {
			out = append(out, &s.Chains[i])
		}
	}
	return out
}

// ParamTraces extracts the per-chain trace of a monitored scalar across
// surviving chains.
func (s *SampleSet) ParamTraces(name string) ([][]float64, error) {
	chains := s.Surviving()
	if len(chains) == 0 {
		return nil, fmt.Errorf("no surviving chains")
	}
	out := make([][]float64, len(chains))
	for i, ch := range chains {
		trace := make([]float64, len(ch.Draws))
		for j, d := range ch.Draws {
			v, ok := d.Param(name)
			if !ok {
				return nil, fmt.Errorf("unknown monitored parameter %q", name)
			}
			trace[j] = v
		}
		out[i] = trace
	}
	return out, nil
}
