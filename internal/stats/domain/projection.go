package stats

import (
	"time"

	aggregate "energyiq/internal/analytics/domain/aggregate"
)

// Projection is a month-end extrapolation of energy and cost.
type Projection struct {
	Month            time.Time
	ElapsedDays      int
	DaysInMonth      int
	TotalEnergyKWh   float64
	RunRateKWh       float64
	ProjectedKWh     float64
	AverageDailyKWh  float64
	ProjectedCost    float64
	AverageDailyCost float64
}

// Project extrapolates the month of ref from the aggregates recorded so far.
// Only aggregates of ref's month dated on or before ref count; the elapsed
// period runs to the end of the last aggregated day.
func Project(aggs []aggregate.DailyAggregate, ref time.Time, unitPrice float64) Projection {
	month := aggregate.MonthStart(ref)
	days := aggregate.DaysInMonth(ref)
	p := Projection{Month: month, DaysInMonth: days}

	var last time.Time
	for _, agg := range aggs {
		if aggregate.MonthStart(agg.Date) != month || agg.Date.After(ref) {
			continue
		}
		p.TotalEnergyKWh += agg.TotalEnergyKWh
		if agg.Date.After(last) {
			last = agg.Date
		}
	}
	if !last.IsZero() {
		p.ElapsedDays = last.Day()
	}

	if p.ElapsedDays <= 0 {
		p.ProjectedKWh = p.TotalEnergyKWh
	} else {
		p.RunRateKWh = p.TotalEnergyKWh / float64(p.ElapsedDays)
		p.ProjectedKWh = p.TotalEnergyKWh + p.RunRateKWh*float64(days-p.ElapsedDays)
	}
	p.AverageDailyKWh = p.ProjectedKWh / float64(days)
	p.ProjectedCost = p.ProjectedKWh * unitPrice
	p.AverageDailyCost = p.ProjectedCost / float64(days)
	return p
}
