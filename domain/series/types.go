package series

import (
	"fmt"
	"math"
	"time"

	"hydrocast/domain/core"
)

// ValueShift is the fixed additive constant applied to non-positive raw
// values before the log transforms, so exactly-zero streamflow and zero
// rainfall stay finite on the log scale.
const ValueShift = 1e-6

// Missing is the sentinel check for absent values. Missing entries are
// carried as NaN, never as zero.
func Missing(v float64) bool {
	return math.IsNaN(v)
}

// MissingValue returns the sentinel used for absent values.
func MissingValue() float64 {
	return math.NaN()
}

// Dataset is an immutable container of aligned daily series: the
// log-streamflow response, the lagged log1p-rainfall covariate, the
// deterministic seasonal covariates, and the hold-out mask. Dates must be
// strictly ascending; calendar gaps are tolerated because the seasonal
// covariates are computed from the actual dates, not from the index.
//
// Construction is the only mutation point. Accessors return copies so a
// fitted run can never write back into its input.
type Dataset struct {
	dates     []time.Time
	logFlow   []float64 // log(flow), NaN where missing or withheld
	rain      []float64 // log1p(rain) lagged one day, NaN where missing
	seasonSin []float64
	seasonCos []float64
	heldOut   []bool
	truth     []float64 // natural-scale ground truth at held-out indices, NaN elsewhere
}

// NewDaily builds a dataset from natural-scale daily series. flow and rain
// use NaN for missing entries. The rainfall covariate is lagged by one day
// relative to the response: index t carries the previous day's rainfall,
// so index 0 is always missing and is imputed during sampling.
func NewDaily(dates []time.Time, flow, rain []float64) (*Dataset, error) {
	n := len(dates)
	if n == 0 {
		return nil, fmt.Errorf("dataset cannot be empty")
	}
	if len(flow) != n || len(rain) != n {
		return nil, fmt.Errorf("misaligned series: %d dates, %d flow, %d rain", n, len(flow), len(rain))
	}
	for i := 1; i < n; i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("dates must be strictly ascending: index %d (%s) does not follow %s",
				i, dates[i].Format("2006-01-02"), dates[i-1].Format("2006-01-02"))
		}
	}

	ds := &Dataset{
		dates:     append([]time.Time(nil), dates...),
		logFlow:   make([]float64, n),
		rain:      make([]float64, n),
		seasonSin: make([]float64, n),
		seasonCos: make([]float64, n),
		heldOut:   make([]bool, n),
		truth:     make([]float64, n),
	}

	observed := 0
	for i := 0; i < n; i++ {
		lv, err := LogFlow(flow[i])
		if err != nil {
			return nil, fmt.Errorf("flow at %s: %w", dates[i].Format("2006-01-02"), err)
		}
		ds.logFlow[i] = lv
		if !Missing(lv) {
			observed++
		}

		// One-day lag: the covariate for day i is day i-1's rainfall.
		if i == 0 {
			ds.rain[0] = MissingValue()
		} else {
			rv, err := LogRain(rain[i-1])
			if err != nil {
				return nil, fmt.Errorf("rain at %s: %w", dates[i-1].Format("2006-01-02"), err)
			}
			ds.rain[i] = rv
		}

		ds.seasonSin[i], ds.seasonCos[i] = core.SeasonTerms(dates[i])
		ds.truth[i] = MissingValue()
	}
	if observed == 0 {
		return nil, fmt.Errorf("response series is entirely missing")
	}

	return ds, nil
}

// LogFlow transforms a natural-scale streamflow value to the log scale,
// pre-shifting non-positive values by ValueShift.
func LogFlow(v float64) (float64, error) {
	if Missing(v) {
		return MissingValue(), nil
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite streamflow value")
	}
	if v <= 0 {
		v += ValueShift
	}
	if v <= 0 {
		return 0, fmt.Errorf("streamflow %g remains non-positive after shift", v-ValueShift)
	}
	return math.Log(v), nil
}

// LogRain transforms a natural-scale rainfall value with log1p,
// pre-shifting non-positive values by ValueShift.
func LogRain(v float64) (float64, error) {
	if Missing(v) {
		return MissingValue(), nil
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite rainfall value")
	}
	if v <= 0 {
		v += ValueShift
	}
	if v <= -1 {
		return 0, fmt.Errorf("rainfall %g remains below -1 after shift", v-ValueShift)
	}
	return math.Log1p(v), nil
}

// WithHoldoutAfter returns a copy in which every observed response on or
// after cutoff is withheld: masked out of the fitting input with the
// natural-scale truth retained for scoring.
func (d *Dataset) WithHoldoutAfter(cutoff core.CutoffAt) (*Dataset, error) {
	mask := make([]bool, len(d.dates))
	for i, date := range d.dates {
		mask[i] = !date.Before(cutoff.Time())
	}
	return d.WithHoldoutMask(mask)
}

// WithHoldoutMask returns a copy with the given positions withheld. Masked
// positions where the response was already missing stay plain-missing (no
// truth exists to score against).
func (d *Dataset) WithHoldoutMask(mask []bool) (*Dataset, error) {
	if len(mask) != len(d.dates) {
		return nil, fmt.Errorf("hold-out mask length %d does not match series length %d", len(mask), len(d.dates))
	}

	out := d.clone()
	remaining := 0
	for i, withhold := range mask {
		if !withhold {
			if !Missing(out.logFlow[i]) {
				remaining++
			}
			continue
		}
		if Missing(out.logFlow[i]) {
			continue
		}
		out.heldOut[i] = true
		out.truth[i] = math.Exp(out.logFlow[i])
		out.logFlow[i] = MissingValue()
	}
	if remaining == 0 {
		return nil, fmt.Errorf("hold-out mask withholds every observed response")
	}
	return out, nil
}

func (d *Dataset) clone() *Dataset {
	return &Dataset{
		dates:     append([]time.Time(nil), d.dates...),
		logFlow:   append([]float64(nil), d.logFlow...),
		rain:      append([]float64(nil), d.rain...),
		seasonSin: append([]float64(nil), d.seasonSin...),
		seasonCos: append([]float64(nil), d.seasonCos...),
		heldOut:   append([]bool(nil), d.heldOut...),
		truth:     append([]float64(nil), d.truth...),
	}
}

// N returns the series length.
func (d *Dataset) N() int { return len(d.dates) }

// Dates returns a copy of the calendar index.
func (d *Dataset) Dates() []time.Time { return append([]time.Time(nil), d.dates...) }

// LogResponse returns a copy of the log-scale response with NaN at missing
// and withheld positions.
func (d *Dataset) LogResponse() []float64 { return append([]float64(nil), d.logFlow...) }

// Rain returns a copy of the lagged log1p-rainfall covariate, NaN where
// missing.
func (d *Dataset) Rain() []float64 { return append([]float64(nil), d.rain...) }

// SeasonSin returns a copy of the seasonal sine covariate.
func (d *Dataset) SeasonSin() []float64 { return append([]float64(nil), d.seasonSin...) }

// SeasonCos returns a copy of the seasonal cosine covariate.
func (d *Dataset) SeasonCos() []float64 { return append([]float64(nil), d.seasonCos...) }

// HeldOut returns a copy of the hold-out mask.
func (d *Dataset) HeldOut() []bool { return append([]bool(nil), d.heldOut...) }

// Truth returns a copy of the natural-scale ground truth, defined only at
// held-out positions (NaN elsewhere). It is never visible to fitting.
func (d *Dataset) Truth() []float64 { return append([]float64(nil), d.truth...) }

// MissingRain returns the indices whose rainfall covariate is missing.
func (d *Dataset) MissingRain() []int {
	var idx []int
	for i, v := range d.rain {
		if Missing(v) {
			idx = append(idx, i)
		}
	}
	return idx
}

// HeldOutCount returns the number of withheld observations.
func (d *Dataset) HeldOutCount() int {
	n := 0
	for _, h := range d.heldOut {
		if h {
			n++
		}
	}
	return n
}
