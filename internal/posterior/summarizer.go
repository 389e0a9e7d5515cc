package posterior

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"hydrocast/internal/sampler"
)

// Band is the credible envelope at one time index: the 2.5th, 50th and
// 97.5th percentiles of the posterior draws.
type Band struct {
	T      int       `json:"t"`
	Date   time.Time `json:"date,omitempty"`
	Lower  float64   `json:"lower"`
	Median float64   `json:"median"`
	Upper  float64   `json:"upper"`
}

// Forecast is the decision-ready reduction of the posterior: the median
// point forecast and 95% envelope per time step, on the natural scale and
// (when requested) the log scale.
type Forecast struct {
	Natural []Band `json:"natural"`
	Log     []Band `json:"log,omitempty"`
}

// Options controls the summarization.
type Options struct {
	IncludeLog bool
	Dates      []time.Time // optional calendar labels, one per time index
}

// Summarize pools post-burn-in draws across surviving chains and reduces
// them per time index. Each draw is back-transformed with exp first and
// the percentiles are taken over the exponentiated values; the order
// matters for the interval shape and is fixed here.
func Summarize(set *sampler.SampleSet, burnIn int, opts Options) (*Forecast, error) {
	chains := set.Surviving()
	if len(chains) == 0 {
		return nil, fmt.Errorf("no surviving chains to summarize")
	}
	if burnIn < 0 {
		return nil, fmt.Errorf("burn-in must be non-negative, got %d", burnIn)
	}

	var pooled []sampler.Draw
	for _, ch := range chains {
		if burnIn >= len(ch.Draws) {
			continue
		}
		pooled = append(pooled, ch.Draws[burnIn:]...)
	}
	if len(pooled) == 0 {
		return nil, fmt.Errorf("burn-in %d leaves no draws to summarize", burnIn)
	}

	n := len(pooled[0].X)
	if opts.Dates != nil && len(opts.Dates) != n {
		return nil, fmt.Errorf("date labels length %d does not match series length %d", len(opts.Dates), n)
	}

	fc := &Forecast{Natural: make([]Band, n)}
	if opts.IncludeLog {
		fc.Log = make([]Band, n)
	}

	values := make([]float64, len(pooled))
	for t := 0; t < n; t++ {
		for i, d := range pooled {
			values[i] = math.Exp(d.X[t])
		}
		lower, err := stats.Percentile(values, 2.5)
		if err != nil {
			return nil, fmt.Errorf("percentile at index %d: %w", t, err)
		}
		median, err := stats.Percentile(values, 50)
		if err != nil {
			return nil, fmt.Errorf("percentile at index %d: %w", t, err)
		}
		upper, err := stats.Percentile(values, 97.5)
		if err != nil {
			return nil, fmt.Errorf("percentile at index %d: %w", t, err)
		}

		band := Band{T: t, Lower: lower, Median: median, Upper: upper}
		if opts.Dates != nil {
			band.Date = opts.Dates[t]
		}
		fc.Natural[t] = band

		if opts.IncludeLog {
			// log is monotonic, so the log-scale envelope is the log of
			// the natural-scale one.
			fc.Log[t] = Band{
				T:      t,
				Date:   band.Date,
				Lower:  math.Log(lower),
				Median: math.Log(median),
				Upper:  math.Log(upper),
			}
		}
	}
	return fc, nil
}

// Width returns the envelope width at index t on the natural scale.
func (f *Forecast) Width(t int) float64 {
	b := f.Natural[t]
	return b.Upper - b.Lower
}
