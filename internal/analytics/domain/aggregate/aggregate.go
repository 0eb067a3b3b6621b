package aggregate

import (
	"strings"
	"time"
)

// Reading is a raw energy fact as seen by the aggregator.
type Reading struct {
	ID        int64
	DeviceID  string
	Timestamp time.Time
	EnergyKWh float64
	Processed bool
}

// DeviceDay identifies one device on one civil day.
type DeviceDay struct {
	DeviceID string
	Day      time.Time
}

// DailyAggregate is the rollup of one device-day.
type DailyAggregate struct {
	DeviceID           string
	DeviceName         string
	Date               time.Time
	WeekStart          time.Time
	MonthStart         time.Time
	TotalEnergyKWh     float64
	TotalCost          float64
	PeakEnergyKWh      float64
	OffPeakEnergyKWh   float64
	PeakToOffPeakRatio float64
	PeakHour           int
	// Finalized is stored but not acted upon.
	Finalized bool
}

// ComputeDailyAggregate rolls the readings of a device-day up under policy.
// The peak hour is the hour of day with the largest summed energy, earliest on ties.
func ComputeDailyAggregate(deviceID string, day time.Time, readings []Reading, policy Policy) (DailyAggregate, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return DailyAggregate{}, ErrEmptyDeviceID
	}
	if day.IsZero() {
		return DailyAggregate{}, ErrInvalidDay
	}
	if err := policy.PeakWindow.Validate(); err != nil {
		return DailyAggregate{}, err
	}
	loc := policy.location()
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var (
		hourly      [24]float64
		total       float64
		peak        float64
		peakCost    float64
		offPeakCost float64
	)
	for _, reading := range readings {
		if reading.EnergyKWh < 0 {
			return DailyAggregate{}, ErrNegativeEnergy
		}
		if reading.DeviceID != deviceID || !CivilDay(reading.Timestamp, loc).Equal(day) {
			return DailyAggregate{}, ErrReadingOutsideDay
		}
		hour := reading.Timestamp.In(loc).Hour()
		hourly[hour] += reading.EnergyKWh
		total += reading.EnergyKWh
		if policy.PeakWindow.Contains(hour) {
			peak += reading.EnergyKWh
			peakCost += reading.EnergyKWh * policy.PeakRate
		} else {
			offPeakCost += reading.EnergyKWh * policy.OffPeakRate
		}
	}

	offPeak := total - peak
	return DailyAggregate{
		DeviceID:           deviceID,
		Date:               day,
		WeekStart:          WeekStart(day),
		MonthStart:         MonthStart(day),
		TotalEnergyKWh:     total,
		TotalCost:          peakCost + offPeakCost,
		PeakEnergyKWh:      peak,
		OffPeakEnergyKWh:   offPeak,
		PeakToOffPeakRatio: SafeRatio(peak, offPeak),
		PeakHour:           maxIndex(hourly[:]),
		Finalized:          false,
	}, nil
}

// maxIndex returns the index of the largest value, the lowest index on ties.
func maxIndex(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
