package stats

import (
	"fmt"
	"time"

	aggregate "energyiq/internal/analytics/domain/aggregate"
)

// HourlyTotal is the summed energy of one device over one clock hour.
type HourlyTotal struct {
	DeviceID   string
	DeviceName string
	HourStart  time.Time
	EnergyKWh  float64
}

// Classifier decides peak membership and chart buckets for a period.
type Classifier struct {
	Period     Period
	PeakWindow aggregate.HourWindow
	Location   *time.Location
}

func (c Classifier) local(t time.Time) time.Time {
	if c.Location == nil {
		return t.UTC()
	}
	return t.In(c.Location)
}

// IsPeak reports whether the hour starting at t is peak. Hourly windows use
// the daytime hour window; monthly windows treat weekdays as peak.
func (c Classifier) IsPeak(t time.Time) bool {
	local := c.local(t)
	if c.Period == PeriodMonthly {
		wd := local.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	}
	return c.PeakWindow.Contains(local.Hour())
}

// Bucket returns the hour of day (hourly) or day of month (monthly) of t.
func (c Classifier) Bucket(t time.Time) int {
	local := c.local(t)
	if c.Period == PeriodMonthly {
		return local.Day()
	}
	return local.Hour()
}

// Label renders the chart label of the bucket containing t.
func (c Classifier) Label(t time.Time) string {
	local := c.local(t)
	if c.Period == PeriodMonthly {
		return local.Format("2-Jan")
	}
	return HourLabel(local.Hour())
}

// HourLabel renders hour 0..23 as "12 AM".."11 PM".
func HourLabel(hour int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d %s", h, suffix)
}

// Split sums totals into peak and off-peak energy.
func (c Classifier) Split(totals []HourlyTotal) (peak, offPeak float64) {
	for _, t := range totals {
		if c.IsPeak(t.HourStart) {
			peak += t.EnergyKWh
		} else {
			offPeak += t.EnergyKWh
		}
	}
	return peak, offPeak
}

// PeakBucket returns the bucket with the largest summed energy, the earliest
// on ties, or nil when totals is empty.
func (c Classifier) PeakBucket(totals []HourlyTotal) *int {
	if len(totals) == 0 {
		return nil
	}
	sums := make(map[int]float64)
	for _, t := range totals {
		sums[c.Bucket(t.HourStart)] += t.EnergyKWh
	}
	best := -1
	bestValue := 0.0
	for bucket, value := range sums {
		if best == -1 || value > bestValue || (value == bestValue && bucket < best) {
			best = bucket
			bestValue = value
		}
	}
	return &best
}

// Sum returns the total energy of totals.
func Sum(totals []HourlyTotal) float64 {
	var total float64
	for _, t := range totals {
		total += t.EnergyKWh
	}
	return total
}
