package series

import (
	"math"
	"testing"
	"time"

	"hydrocast/domain/core"
)

func dayRange(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

// TestNewDailyValidation tests constructor rejections
func TestNewDailyValidation(t *testing.T) {
	start := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := NewDaily(nil, nil, nil); err == nil {
		t.Error("Expected error for empty dataset")
	}

	dates := dayRange(start, 3)
	if _, err := NewDaily(dates, []float64{1, 2}, []float64{0, 0, 0}); err == nil {
		t.Error("Expected error for misaligned series")
	}

	// Duplicate date
	dup := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 1)}
	if _, err := NewDaily(dup, []float64{1, 2, 3}, []float64{0, 0, 0}); err == nil {
		t.Error("Expected error for non-ascending dates")
	}

	// Entirely missing response
	nan := MissingValue()
	if _, err := NewDaily(dates, []float64{nan, nan, nan}, []float64{0, 0, 0}); err == nil {
		t.Error("Expected error for entirely missing response")
	}
}

// TestNewDailyLogTransform tests the response log transform and the
// zero-flow shift
func TestNewDailyLogTransform(t *testing.T) {
	dates := dayRange(time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), 3)
	ds, err := NewDaily(dates, []float64{2.0, 0.0, MissingValue()}, []float64{0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("Unexpected constructor error: %v", err)
	}

	y := ds.LogResponse()
	if math.Abs(y[0]-math.Log(2.0)) > 1e-12 {
		t.Errorf("Expected log(2), got %g", y[0])
	}
	// Zero flow is shifted before the log, not rejected and not -Inf.
	if math.Abs(y[1]-math.Log(ValueShift)) > 1e-12 {
		t.Errorf("Expected log(shift) for zero flow, got %g", y[1])
	}
	if !Missing(y[2]) {
		t.Errorf("Expected missing response to stay missing, got %g", y[2])
	}
}

// TestNewDailyRainLag tests the one-day lag of the rainfall covariate
func TestNewDailyRainLag(t *testing.T) {
	dates := dayRange(time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), 4)
	ds, err := NewDaily(dates, []float64{1, 1, 1, 1}, []float64{3.0, 0.0, MissingValue(), 7.0})
	if err != nil {
		t.Fatalf("Unexpected constructor error: %v", err)
	}

	rain := ds.Rain()
	if !Missing(rain[0]) {
		t.Errorf("Expected index 0 rain to be missing (no previous day), got %g", rain[0])
	}
	if math.Abs(rain[1]-math.Log1p(3.0)) > 1e-12 {
		t.Errorf("Expected log1p of day 0's rain at index 1, got %g", rain[1])
	}
	if math.Abs(rain[2]-math.Log1p(ValueShift)) > 1e-12 {
		t.Errorf("Expected shifted log1p of zero rain at index 2, got %g", rain[2])
	}
	if !Missing(rain[3]) {
		t.Errorf("Expected missing rain to lag forward to index 3, got %g", rain[3])
	}

	missing := ds.MissingRain()
	if len(missing) != 2 || missing[0] != 0 || missing[1] != 3 {
		t.Errorf("Expected missing rain indices [0 3], got %v", missing)
	}
}

// TestWithHoldoutAfter tests the cutoff-based hold-out split
func TestWithHoldoutAfter(t *testing.T) {
	start := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	dates := dayRange(start, 5)
	flow := []float64{1.0, 2.0, MissingValue(), 3.0, 4.0}
	rain := []float64{0, 0, 0, 0, 0}

	ds, err := NewDaily(dates, flow, rain)
	if err != nil {
		t.Fatalf("Unexpected constructor error: %v", err)
	}

	held, err := ds.WithHoldoutAfter(core.NewCutoffAt(start.AddDate(0, 0, 2)))
	if err != nil {
		t.Fatalf("Unexpected hold-out error: %v", err)
	}

	if held.HeldOutCount() != 2 {
		t.Errorf("Expected 2 held-out observations (missing stays plain-missing), got %d", held.HeldOutCount())
	}

	y := held.LogResponse()
	truth := held.Truth()
	for i := 2; i < 5; i++ {
		if !Missing(y[i]) {
			t.Errorf("Expected response at index %d to be withheld, got %g", i, y[i])
		}
	}
	// The already-missing day has no truth to score against.
	if !Missing(truth[2]) {
		t.Errorf("Expected no truth at originally missing index, got %g", truth[2])
	}
	if math.Abs(truth[3]-3.0) > 1e-9 || math.Abs(truth[4]-4.0) > 1e-9 {
		t.Errorf("Expected natural-scale truth [3,4], got [%g %g]", truth[3], truth[4])
	}

	// The original dataset is untouched.
	if ds.HeldOutCount() != 0 {
		t.Error("Hold-out must not mutate the source dataset")
	}
	if Missing(ds.LogResponse()[3]) {
		t.Error("Source response was withheld in place")
	}
}

// TestWithHoldoutMaskRejectsTotalWithholding tests that a mask cannot
// withhold every observed response
func TestWithHoldoutMaskRejectsTotalWithholding(t *testing.T) {
	dates := dayRange(time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), 3)
	ds, err := NewDaily(dates, []float64{1, 2, 3}, []float64{0, 0, 0})
	if err != nil {
		t.Fatalf("Unexpected constructor error: %v", err)
	}

	if _, err := ds.WithHoldoutMask([]bool{true, true, true}); err == nil {
		t.Error("Expected error when the mask withholds every observed response")
	}
	if _, err := ds.WithHoldoutMask([]bool{true}); err == nil {
		t.Error("Expected error for mask length mismatch")
	}
}

// TestAccessorsReturnCopies tests the immutability contract
func TestAccessorsReturnCopies(t *testing.T) {
	dates := dayRange(time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), 3)
	ds, err := NewDaily(dates, []float64{1, 2, 3}, []float64{0, 0, 0})
	if err != nil {
		t.Fatalf("Unexpected constructor error: %v", err)
	}

	y := ds.LogResponse()
	y[0] = 999
	if ds.LogResponse()[0] == 999 {
		t.Error("LogResponse returned a live reference to internal state")
	}
}
