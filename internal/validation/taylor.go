package validation

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Agreement is a Taylor-diagram-style comparison of predicted against
// observed dispersion: three scalars, not a distributional fit.
type Agreement struct {
	Correlation float64 `json:"correlation"`
	SDRatio     float64 `json:"sd_ratio"` // predicted over observed
	CenteredRMS float64 `json:"centered_rms"`
}

// agreement computes the triple; ok is false when the comparison is
// degenerate (fewer than two points or zero observed spread).
func agreement(obs, pred []float64) (Agreement, bool) {
	if len(obs) < 2 {
		return Agreement{}, false
	}

	sdObs, err := stats.StandardDeviation(obs)
	if err != nil || sdObs == 0 {
		return Agreement{}, false
	}
	sdPred, err := stats.StandardDeviation(pred)
	if err != nil {
		return Agreement{}, false
	}

	corr := stat.Correlation(obs, pred, nil)
	if math.IsNaN(corr) {
		return Agreement{}, false
	}

	meanObs, _ := stats.Mean(obs)
	meanPred, _ := stats.Mean(pred)
	sse := 0.0
	for i := range obs {
		d := (pred[i] - meanPred) - (obs[i] - meanObs)
		sse += d * d
	}

	return Agreement{
		Correlation: corr,
		SDRatio:     sdPred / sdObs,
		CenteredRMS: math.Sqrt(sse / float64(len(obs))),
	}, true
}
