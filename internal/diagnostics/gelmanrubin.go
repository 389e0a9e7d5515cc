package diagnostics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"hydrocast/internal/sampler"
)

// DefaultThreshold is the potential scale reduction below which chains are
// judged converged.
const DefaultThreshold = 1.1

// DefaultFixedBurnIn is the iteration count discarded under the fixed
// policy.
const DefaultFixedBurnIn = 1000

// BurnInPolicy selects how the burn-in length is determined.
type BurnInPolicy string

const (
	// BurnInFixed discards a configured number of leading iterations.
	BurnInFixed BurnInPolicy = "fixed"
	// BurnInAdaptive discards the smallest prefix after which every
	// monitored ratio stays below the threshold.
	BurnInAdaptive BurnInPolicy = "adaptive"
)

// Config controls the convergence check.
type Config struct {
	Threshold  float64      `json:"threshold"`
	Policy     BurnInPolicy `json:"policy"`
	FixedCount int          `json:"fixed_count"`
	Monitored  []string     `json:"monitored"` // scalar parameters to check
}

// DefaultConfig monitors the two precisions under the fixed policy.
func DefaultConfig() Config {
	return Config{
		Threshold:  DefaultThreshold,
		Policy:     BurnInFixed,
		FixedCount: DefaultFixedBurnIn,
		Monitored:  []string{"tau_obs", "tau_add"},
	}
}

// Verdict is the diagnostics outcome: whether to trust the chains, the
// burn-in to apply, and the per-parameter ratios behind the call.
// Rejection is advisory; the caller decides whether to extend sampling or
// proceed with a caveat.
type Verdict struct {
	Converged bool               `json:"converged"`
	BurnIn    int                `json:"burn_in"`
	Ratios    map[string]float64 `json:"ratios"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// Diagnose judges whether the surviving chains have mixed and determines
// the burn-in length to apply.
func Diagnose(set *sampler.SampleSet, cfg Config) (Verdict, error) {
	if len(cfg.Monitored) == 0 {
		return Verdict{}, fmt.Errorf("no monitored parameters configured")
	}
	if cfg.Threshold <= 1 {
		return Verdict{}, fmt.Errorf("threshold must exceed 1, got %g", cfg.Threshold)
	}
	surviving := set.Surviving()
	if len(surviving) < 2 {
		return Verdict{}, fmt.Errorf("convergence requires at least 2 surviving chains, have %d", len(surviving))
	}

	traces := make(map[string][][]float64, len(cfg.Monitored))
	for _, name := range cfg.Monitored {
		tr, err := set.ParamTraces(name)
		if err != nil {
			return Verdict{}, err
		}
		traces[name] = tr
	}

	switch cfg.Policy {
	case BurnInAdaptive:
		return diagnoseAdaptive(traces, cfg, set.Iterations)
	case BurnInFixed, "":
		return diagnoseFixed(traces, cfg)
	default:
		return Verdict{}, fmt.Errorf("unknown burn-in policy %q", cfg.Policy)
	}
}

func diagnoseFixed(traces map[string][][]float64, cfg Config) (Verdict, error) {
	v := Verdict{BurnIn: cfg.FixedCount, Ratios: make(map[string]float64)}

	length := traceLength(traces)
	burn := cfg.FixedCount
	if burn >= length {
		// Not enough iterations to discard the configured burn-in; judge
		// on the second half instead and say so.
		burn = length / 2
		v.BurnIn = burn
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("configured burn-in %d exceeds chain length %d; using %d", cfg.FixedCount, length, burn))
	}

	v.Converged = true
	for name, chains := range traces {
		r := PotentialScaleReduction(slicePrefix(chains, burn))
		v.Ratios[name] = r
		if !(r < cfg.Threshold) {
			v.Converged = false
		}
	}
	return v, nil
}

func diagnoseAdaptive(traces map[string][][]float64, cfg Config, iterations int) (Verdict, error) {
	length := traceLength(traces)

	// Candidate prefixes at 5% steps, never past half the run.
	step := length / 20
	if step < 1 {
		step = 1
	}
	for burn := 0; burn <= length/2; burn += step {
		ok := true
		ratios := make(map[string]float64)
		for name, chains := range traces {
			r := PotentialScaleReduction(slicePrefix(chains, burn))
			ratios[name] = r
			if !(r < cfg.Threshold) {
				ok = false
			}
		}
		if ok {
			return Verdict{Converged: true, BurnIn: burn, Ratios: ratios}, nil
		}
	}

	// Nothing stabilized: report the half-split ratios and reject.
	v := Verdict{BurnIn: length / 2, Ratios: make(map[string]float64)}
	for name, chains := range traces {
		v.Ratios[name] = PotentialScaleReduction(slicePrefix(chains, length/2))
	}
	v.Warnings = append(v.Warnings, "no burn-in prefix stabilized the scale reduction below threshold")
	return v, nil
}

// PotentialScaleReduction computes the Gelman-Rubin ratio across chains:
// sqrt of the pooled-variance estimate over the mean within-chain
// variance. Values near 1 indicate mixing; large values indicate the
// chains disagree.
func PotentialScaleReduction(chains [][]float64) float64 {
	m := len(chains)
	if m < 2 {
		return math.NaN()
	}
	length := len(chains[0])
	for _, ch := range chains {
		if len(ch) < length {
			length = len(ch)
		}
	}
	if length < 2 {
		return math.NaN()
	}

	means := make([]float64, m)
	within := 0.0
	for i, ch := range chains {
		mean, _ := stats.Mean(ch[:length])
		variance, _ := stats.SampleVariance(ch[:length])
		means[i] = mean
		within += variance
	}
	within /= float64(m)

	grand, _ := stats.Mean(means)
	between := 0.0
	for _, mu := range means {
		d := mu - grand
		between += d * d
	}
	between *= float64(length) / float64(m-1)

	if within <= 0 {
		if between <= 0 {
			return 1
		}
		return math.Inf(1)
	}

	n := float64(length)
	pooled := (n-1)/n*within + between/n
	return math.Sqrt(pooled / within)
}

func traceLength(traces map[string][][]float64) int {
	length := math.MaxInt
	for _, chains := range traces {
		for _, ch := range chains {
			if len(ch) < length {
				length = len(ch)
			}
		}
	}
	if length == math.MaxInt {
		return 0
	}
	return length
}

func slicePrefix(chains [][]float64, burn int) [][]float64 {
	out := make([][]float64, len(chains))
	for i, ch := range chains {
		if burn >= len(ch) {
			out[i] = nil
			continue
		}
		out[i] = ch[burn:]
	}
	return out
}
