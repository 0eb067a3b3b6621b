package application

import (
	"time"

	stats "energyiq/internal/stats/domain"
)

// DeviceStats are one device's figures over a window.
type DeviceStats struct {
	DeviceID           string      `json:"device_id"`
	DeviceName         string      `json:"device_name"`
	EnergyKWh          float64     `json:"energy_kwh"`
	Cost               float64     `json:"cost"`
	PeakKWh            float64     `json:"peak_kwh"`
	OffPeakKWh         float64     `json:"off_peak_kwh"`
	PeakToOffPeakRatio float64     `json:"peak_to_off_peak_ratio"`
	PeakBucket         *int        `json:"peak_bucket"`
	PreviousPeakBucket *int        `json:"previous_peak_bucket"`
	PreviousEnergyKWh  float64     `json:"previous_energy_kwh"`
	PreviousCost       float64     `json:"previous_cost"`
	PreviousRatio      float64     `json:"previous_ratio"`
	EnergyChange       float64     `json:"energy_change"`
	CostChange         float64     `json:"cost_change"`
	PeakChange         float64     `json:"peak_change"`
	OffPeakChange      float64     `json:"off_peak_change"`
	RatioChange        float64     `json:"ratio_change"`
	Trend              stats.Trend `json:"trend"`
}

// PeriodStats are the per-device figures of a window.
type PeriodStats struct {
	Period         string        `json:"period"`
	Date           time.Time     `json:"date"`
	TotalEnergyKWh float64       `json:"total_energy_kwh"`
	TotalCost      float64       `json:"total_cost"`
	Devices        []DeviceStats `json:"devices"`
}

// RatioResult is the peak/off-peak split of a window.
type RatioResult struct {
	PeakKWh       float64     `json:"peak_kwh"`
	OffPeakKWh    float64     `json:"off_peak_kwh"`
	Ratio         float64     `json:"ratio"`
	PreviousRatio float64     `json:"previous_ratio"`
	Change        float64     `json:"change"`
	Trend         stats.Trend `json:"trend"`
}

// Comparison is a value against its previous-window value.
type Comparison struct {
	Current  float64     `json:"current"`
	Previous float64     `json:"previous"`
	Change   float64     `json:"change"`
	Trend    stats.Trend `json:"trend"`
}

// PeakResult is the busiest hour or day of a window and of the previous one.
type PeakResult struct {
	Period            string  `json:"period"`
	Bucket            *int    `json:"peak"`
	Label             string  `json:"label,omitempty"`
	EnergyKWh         float64 `json:"energy_kwh"`
	PreviousBucket    *int    `json:"previous_peak"`
	PreviousLabel     string  `json:"previous_label,omitempty"`
	PreviousEnergyKWh float64 `json:"previous_energy_kwh"`
}

// Chart is a labelled series.
type Chart struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ChartComparison is the consumption series of a window and of the previous one.
type ChartComparison struct {
	Current  Chart `json:"data"`
	Previous Chart `json:"previous_data"`
}

// DeviceBreakdown is a per-device series with percent changes.
type DeviceBreakdown struct {
	Labels  []string  `json:"labels"`
	Values  []float64 `json:"values"`
	Changes []float64 `json:"changes"`
}

// ProjectionResult is a rounded month-end projection.
type ProjectionResult struct {
	DeviceID         string    `json:"device_id,omitempty"`
	Month            time.Time `json:"month"`
	ElapsedDays      int       `json:"elapsed_days"`
	DaysInMonth      int       `json:"days_in_month"`
	TotalEnergyKWh   float64   `json:"total_energy_kwh"`
	TotalCost        float64   `json:"total_cost"`
	ProjectedKWh     float64   `json:"projected_kwh"`
	AverageDailyKWh  float64   `json:"average_daily_kwh"`
	ProjectedCost    float64   `json:"projected_cost"`
	AverageDailyCost float64   `json:"average_daily_cost"`
}
