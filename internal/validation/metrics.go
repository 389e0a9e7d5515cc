package validation

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"hydrocast/domain/series"
	"hydrocast/internal/posterior"
)

// Score is a skill summary for one scoring scale. R2 is only meaningful
// when Defined is true; with fewer than two scored points (or a degenerate
// variance) it is reported as undefined, never defaulted.
type Score struct {
	N         int     `json:"n"`
	RMSE      float64 `json:"rmse"`
	R2        float64 `json:"r2"`
	R2Defined bool    `json:"r2_defined"`
}

// Metrics carries the validation output on both scales. The two are not
// comparable and are never mixed.
type Metrics struct {
	Natural Score `json:"natural"`
	Log     Score `json:"log"`

	// Agreement summarizes predicted-vs-observed dispersion on the
	// natural scale; nil when undefined.
	Agreement *Agreement `json:"agreement,omitempty"`
}

// MetricRow is one entry of the externally consumable metric table.
type MetricRow struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// Evaluate scores the forecast medians against the ground truth retained
// at held-out positions. The fitting step never saw these values.
func Evaluate(fc *posterior.Forecast, ds *series.Dataset) (*Metrics, error) {
	heldOut := ds.HeldOut()
	truth := ds.Truth()
	if len(fc.Natural) != len(heldOut) {
		return nil, fmt.Errorf("forecast length %d does not match dataset length %d", len(fc.Natural), len(heldOut))
	}

	var obs, pred []float64
	for t, withheld := range heldOut {
		if !withheld || series.Missing(truth[t]) {
			continue
		}
		obs = append(obs, truth[t])
		pred = append(pred, fc.Natural[t].Median)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no held-out observations to score")
	}

	m := &Metrics{
		Natural: score(obs, pred),
	}

	logObs := make([]float64, len(obs))
	logPred := make([]float64, len(pred))
	for i := range obs {
		lo, err := series.LogFlow(obs[i])
		if err != nil {
			return nil, fmt.Errorf("held-out truth at position %d: %w", i, err)
		}
		lp, err := series.LogFlow(pred[i])
		if err != nil {
			return nil, fmt.Errorf("forecast median at position %d: %w", i, err)
		}
		logObs[i] = lo
		logPred[i] = lp
	}
	m.Log = score(logObs, logPred)

	if ag, ok := agreement(obs, pred); ok {
		m.Agreement = &ag
	}
	return m, nil
}

// score computes RMSE and squared Pearson correlation for one scale.
func score(obs, pred []float64) Score {
	s := Score{N: len(obs)}

	sse := 0.0
	for i := range obs {
		d := obs[i] - pred[i]
		sse += d * d
	}
	s.RMSE = math.Sqrt(sse / float64(len(obs)))

	if len(obs) >= 2 {
		if r, err := stats.Pearson(obs, pred); err == nil && !math.IsNaN(r) {
			s.R2 = r * r
			s.R2Defined = true
		}
	}
	return s
}

// Table flattens the metrics into the {name, value, defined} rows of the
// output contract.
func (m *Metrics) Table() []MetricRow {
	rows := []MetricRow{
		{Name: "rmse_natural", Value: m.Natural.RMSE, Defined: true},
		{Name: "r2_natural", Value: m.Natural.R2, Defined: m.Natural.R2Defined},
		{Name: "rmse_log", Value: m.Log.RMSE, Defined: true},
		{Name: "r2_log", Value: m.Log.R2, Defined: m.Log.R2Defined},
		{Name: "n_scored", Value: float64(m.Natural.N), Defined: true},
	}
	if m.Agreement != nil {
		rows = append(rows,
			MetricRow{Name: "agreement_correlation", Value: m.Agreement.Correlation, Defined: true},
			MetricRow{Name: "agreement_sd_ratio", Value: m.Agreement.SDRatio, Defined: true},
			MetricRow{Name: "agreement_centered_rms", Value: m.Agreement.CenteredRMS, Defined: true},
		)
	}
	return rows
}
