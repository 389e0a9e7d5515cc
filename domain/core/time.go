package core

import (
	"math"
	"time"
)

// Timestamp represents a point in time with timezone awareness
type Timestamp time.Time

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t)
}

// Now returns the current timestamp
func Now() Timestamp {
	return Timestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before returns true if t is before u
func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// After returns true if t is after u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// JSON marshaling for Timestamp
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm)
	return nil
}

// CutoffAt marks the first day of a validation hold-out window
type CutoffAt Timestamp

// NewCutoffAt creates a cutoff marker
func NewCutoffAt(t time.Time) CutoffAt { return CutoffAt(NewTimestamp(t)) }

// Time returns the underlying time.Time
func (t CutoffAt) Time() time.Time { return Timestamp(t).Time() }

func (t CutoffAt) String() string { return t.Time().Format("2006-01-02") }

// SeasonTerms computes the annual-cycle covariates for a calendar date.
// The phase uses day-of-year over a fixed 365-day year; leap years are not
// special-cased, so February 29 onward drifts by one day in leap years.
func SeasonTerms(t time.Time) (sin, cos float64) {
	angle := 2 * math.Pi * float64(t.YearDay()) / 365.0
	return math.Sin(angle), math.Cos(angle)
}
