package posterior

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrocast/internal/sampler"
)

// rampSet builds one surviving chain whose latent draws at index 0 cover
// the natural-scale values 1..n exactly once.
func rampSet(n int) *sampler.SampleSet {
	draws := make([]sampler.Draw, n)
	for i := 0; i < n; i++ {
		draws[i] = sampler.Draw{X: []float64{math.Log(float64(i + 1))}}
	}
	return &sampler.SampleSet{
		Iterations: n,
		Chains:     []sampler.ChainTrace{{Chain: 0, Draws: draws}},
	}
}

func TestSummarizeKnownPercentiles(t *testing.T) {
	// 80 draws covering 1..80: the 2.5/50/97.5 percentiles fall on whole
	// ranks 2, 40 and 78.
	set := rampSet(80)

	fc, err := Summarize(set, 0, Options{IncludeLog: true})
	require.NoError(t, err)
	require.Len(t, fc.Natural, 1)

	band := fc.Natural[0]
	assert.InDelta(t, 2.0, band.Lower, 1e-9)
	assert.InDelta(t, 40.0, band.Median, 1e-9)
	assert.InDelta(t, 78.0, band.Upper, 1e-9)
	assert.InDelta(t, 76.0, fc.Width(0), 1e-9)

	// The log table is the log of the natural one, not a separate
	// percentile pass.
	require.Len(t, fc.Log, 1)
	assert.InDelta(t, math.Log(band.Lower), fc.Log[0].Lower, 1e-12)
	assert.InDelta(t, math.Log(band.Median), fc.Log[0].Median, 1e-12)
	assert.InDelta(t, math.Log(band.Upper), fc.Log[0].Upper, 1e-12)

	// Summarization is a pure reduction: a second pass over the same
	// draws produces the same tables.
	again, err := Summarize(set, 0, Options{IncludeLog: true})
	require.NoError(t, err)
	assert.Equal(t, fc, again)
}

func TestSummarizeBandOrdering(t *testing.T) {
	set := rampSet(120)
	fc, err := Summarize(set, 0, Options{})
	require.NoError(t, err)

	for _, b := range fc.Natural {
		assert.LessOrEqual(t, b.Lower, b.Median)
		assert.LessOrEqual(t, b.Median, b.Upper)
	}
	assert.Nil(t, fc.Log, "log table only on request")
}

func TestSummarizeBurnInDiscard(t *testing.T) {
	// Burn-in removes the leading small values, shifting every band up.
	set := rampSet(120)

	full, err := Summarize(set, 0, Options{})
	require.NoError(t, err)
	trimmed, err := Summarize(set, 40, Options{})
	require.NoError(t, err)

	assert.Greater(t, trimmed.Natural[0].Lower, full.Natural[0].Lower)
	assert.Greater(t, trimmed.Natural[0].Median, full.Natural[0].Median)
}

func TestSummarizeExcludesFailedChains(t *testing.T) {
	set := rampSet(80)

	// A failed chain full of huge values must not leak into the bands.
	bad := make([]sampler.Draw, 80)
	for i := range bad {
		bad[i] = sampler.Draw{X: []float64{math.Log(1e9)}}
	}
	set.Chains = append(set.Chains, sampler.ChainTrace{
		Chain: 1,
		Draws: bad,
		Err:   &sampler.ChainError{Chain: 1, Iteration: 80, Variable: "tau_add"},
	})

	fc, err := Summarize(set, 0, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 78.0, fc.Natural[0].Upper, 1e-9)
}

func TestSummarizeRejections(t *testing.T) {
	set := rampSet(80)

	_, err := Summarize(set, -1, Options{})
	assert.Error(t, err)

	_, err = Summarize(set, 80, Options{})
	assert.Error(t, err, "burn-in swallowing every draw cannot be summarized")

	_, err = Summarize(set, 0, Options{Dates: []time.Time{{}, {}}})
	assert.Error(t, err, "date labels must match the series length")

	empty := &sampler.SampleSet{Chains: []sampler.ChainTrace{{
		Err: &sampler.ChainError{Chain: 0, Iteration: 0, Variable: "x"},
	}}}
	_, err = Summarize(empty, 0, Options{})
	assert.Error(t, err)
}

func TestSummarizeDateLabels(t *testing.T) {
	set := rampSet(80)
	day := time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC)

	fc, err := Summarize(set, 0, Options{Dates: []time.Time{day}})
	require.NoError(t, err)
	assert.Equal(t, day, fc.Natural[0].Date)
}
