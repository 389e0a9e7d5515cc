package core

import (
	"math"
	"testing"
	"time"
)

// TestSeasonTermsUnitCircle tests that the seasonal covariates stay on the
// unit circle for any date
func TestSeasonTermsUnitCircle(t *testing.T) {
	dates := []time.Time{
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 7, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range dates {
		sin, cos := SeasonTerms(d)
		norm := sin*sin + cos*cos
		if math.Abs(norm-1) > 1e-12 {
			t.Errorf("SeasonTerms(%s) off the unit circle: sin²+cos² = %g", d.Format("2006-01-02"), norm)
		}
	}
}

// TestSeasonTermsAnnualPeriod tests that the same day of year maps to the
// same phase across non-leap years
func TestSeasonTermsAnnualPeriod(t *testing.T) {
	a := time.Date(2021, 4, 15, 0, 0, 0, 0, time.UTC)
	b := time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC)

	sinA, cosA := SeasonTerms(a)
	sinB, cosB := SeasonTerms(b)
	if sinA != sinB || cosA != cosB {
		t.Errorf("Expected identical phase for the same day of year, got (%g,%g) vs (%g,%g)",
			sinA, cosA, sinB, cosB)
	}
}

// TestCutoffAtString tests the cutoff date formatting
func TestCutoffAtString(t *testing.T) {
	c := NewCutoffAt(time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC))
	if c.String() != "2022-06-01" {
		t.Errorf("Expected '2022-06-01', got '%s'", c.String())
	}
}
