package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrocast/domain/series"
	"hydrocast/internal/posterior"
)

// heldOutFixture builds a four-day dataset with the last three days
// withheld, plus a forecast whose medians miss the truth by exactly 0.1.
func heldOutFixture(t *testing.T) (*posterior.Forecast, *series.Dataset) {
	t.Helper()
	start := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), start.AddDate(0, 0, 3)}
	flow := []float64{5.0, 1.2, 1.5, 0.9}
	rain := []float64{0, 0, 0, 0}

	ds, err := series.NewDaily(dates, flow, rain)
	require.NoError(t, err)
	ds, err = ds.WithHoldoutMask([]bool{false, true, true, true})
	require.NoError(t, err)

	fc := &posterior.Forecast{Natural: []posterior.Band{
		{T: 0, Lower: 4.0, Median: 5.0, Upper: 6.0},
		{T: 1, Lower: 1.0, Median: 1.3, Upper: 1.6},
		{T: 2, Lower: 1.1, Median: 1.4, Upper: 1.7},
		{T: 3, Lower: 0.7, Median: 1.0, Upper: 1.3},
	}}
	return fc, ds
}

func TestEvaluateRMSE(t *testing.T) {
	fc, ds := heldOutFixture(t)

	m, err := Evaluate(fc, ds)
	require.NoError(t, err)

	// Residuals are [0.1, -0.1, 0.1]: root mean square error 0.1.
	assert.Equal(t, 3, m.Natural.N)
	assert.InDelta(t, 0.1, m.Natural.RMSE, 1e-9)

	require.True(t, m.Natural.R2Defined)
	assert.Greater(t, m.Natural.R2, 0.0)
	assert.LessOrEqual(t, m.Natural.R2, 1.0)

	// Log scale is scored separately on log-transformed pairs.
	assert.Equal(t, 3, m.Log.N)
	assert.Greater(t, m.Log.RMSE, 0.0)
	assert.True(t, m.Log.R2Defined)
}

func TestEvaluatePerfectForecast(t *testing.T) {
	fc, ds := heldOutFixture(t)
	truth := ds.Truth()
	for i, b := range fc.Natural {
		if !series.Missing(truth[i]) {
			b.Median = truth[i]
			fc.Natural[i] = b
		}
	}

	m, err := Evaluate(fc, ds)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m.Natural.RMSE, 1e-9)
	require.True(t, m.Natural.R2Defined)
	assert.InDelta(t, 1.0, m.Natural.R2, 1e-9)
}

func TestEvaluateSinglePointLeavesR2Undefined(t *testing.T) {
	start := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{start, start.AddDate(0, 0, 1)}
	ds, err := series.NewDaily(dates, []float64{5.0, 1.2}, []float64{0, 0})
	require.NoError(t, err)
	ds, err = ds.WithHoldoutMask([]bool{false, true})
	require.NoError(t, err)

	fc := &posterior.Forecast{Natural: []posterior.Band{
		{T: 0, Median: 5.0},
		{T: 1, Median: 1.4},
	}}

	m, err := Evaluate(fc, ds)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Natural.N)
	assert.InDelta(t, 0.2, m.Natural.RMSE, 1e-9)
	assert.False(t, m.Natural.R2Defined, "one scored point cannot define a correlation")
	assert.Nil(t, m.Agreement)

	// The undefined metric is reported as undefined, never defaulted.
	for _, row := range m.Table() {
		if row.Name == "r2_natural" || row.Name == "r2_log" {
			assert.False(t, row.Defined)
		}
	}
}

func TestEvaluateLengthMismatch(t *testing.T) {
	_, ds := heldOutFixture(t)
	short := &posterior.Forecast{Natural: []posterior.Band{{T: 0, Median: 1}}}
	_, err := Evaluate(short, ds)
	assert.Error(t, err)
}

func TestEvaluateNoHoldout(t *testing.T) {
	start := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{start, start.AddDate(0, 0, 1)}
	ds, err := series.NewDaily(dates, []float64{5.0, 1.2}, []float64{0, 0})
	require.NoError(t, err)

	fc := &posterior.Forecast{Natural: []posterior.Band{{T: 0}, {T: 1}}}
	_, err = Evaluate(fc, ds)
	assert.Error(t, err)
}

func TestMetricTable(t *testing.T) {
	fc, ds := heldOutFixture(t)
	m, err := Evaluate(fc, ds)
	require.NoError(t, err)

	rows := m.Table()
	names := make(map[string]MetricRow, len(rows))
	for _, row := range rows {
		names[row.Name] = row
	}

	for _, want := range []string{"rmse_natural", "r2_natural", "rmse_log", "r2_log", "n_scored"} {
		_, ok := names[want]
		assert.True(t, ok, "missing metric row %s", want)
	}
	assert.Equal(t, 3.0, names["n_scored"].Value)

	require.NotNil(t, m.Agreement)
	assert.False(t, math.IsNaN(m.Agreement.Correlation))
	assert.Greater(t, m.Agreement.SDRatio, 0.0)
	assert.GreaterOrEqual(t, m.Agreement.CenteredRMS, 0.0)
	_, ok := names["agreement_correlation"]
	assert.True(t, ok)
}

func TestAgreementDegenerateCases(t *testing.T) {
	_, ok := agreement([]float64{1.0}, []float64{1.1})
	assert.False(t, ok)

	// Zero observed spread cannot anchor a ratio.
	_, ok = agreement([]float64{2.0, 2.0, 2.0}, []float64{1.9, 2.0, 2.1})
	assert.False(t, ok)

	ag, ok := agreement([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.True(t, ok)
	assert.InDelta(t, 1.0, ag.Correlation, 1e-12)
	assert.InDelta(t, 1.0, ag.SDRatio, 1e-12)
	assert.InDelta(t, 0.0, ag.CenteredRMS, 1e-12)
}
