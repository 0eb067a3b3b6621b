package aggregate

import "time"

// HourWindow is a half-open [Start, End) range of hours of day.
type HourWindow struct {
	Start int
	End   int
}

// Contains reports whether hour falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

// Validate checks the window bounds.
func (w HourWindow) Validate() error {
	if w.Start < 0 || w.End > 24 || w.Start >= w.End {
		return ErrInvalidPeakWindow
	}
	return nil
}

// Policy carries the tariff inputs of a daily aggregation.
type Policy struct {
	PeakWindow  HourWindow
	PeakRate    float64
	OffPeakRate float64
	Location    *time.Location
}

// DefaultPolicy returns the evening peak window 18:00-22:59 at 0.20, otherwise 0.10, in UTC.
func DefaultPolicy() Policy {
	return Policy{
		PeakWindow:  HourWindow{Start: 18, End: 23},
		PeakRate:    0.20,
		OffPeakRate: 0.10,
		Location:    time.UTC,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// SafeRatio divides peak by off-peak, treating a zero off-peak as 1.
func SafeRatio(peak, offPeak float64) float64 {
	if offPeak == 0 {
		return peak
	}
	return peak / offPeak
}
