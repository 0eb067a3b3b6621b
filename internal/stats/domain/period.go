package stats

import (
	"errors"
	"strings"
	"time"

	aggregate "energyiq/internal/analytics/domain/aggregate"
)

var (
	// ErrInvalidPeriod is returned for a period other than hourly or monthly.
	ErrInvalidPeriod = errors.New("stats: invalid period, must be hourly or monthly")
	// ErrInvalidDate is returned when a reference date cannot be parsed.
	ErrInvalidDate = errors.New("stats: invalid date")
)

// Period selects the window a query is evaluated over.
type Period string

const (
	// PeriodHourly covers one civil day bucketed by hour.
	PeriodHourly Period = "hourly"
	// PeriodMonthly covers one calendar month bucketed by day.
	PeriodMonthly Period = "monthly"
)

// ParsePeriod parses a period name. A missing period is invalid.
func ParsePeriod(raw string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case PeriodHourly:
		return PeriodHourly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// ParseDate parses a reference date given as YYYY-MM-DD or RFC3339 and
// returns its civil day in loc. Empty input resolves to now.
func ParseDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return aggregate.CivilDay(now, loc), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return aggregate.CivilDay(t, loc), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return aggregate.CivilDay(t, loc), nil
	}
	return time.Time{}, ErrInvalidDate
}

// Window is a half-open [Start, End) range of instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// Windows returns the current window containing day and the window before it.
func Windows(period Period, day time.Time, loc *time.Location) (Window, Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch period {
	case PeriodHourly:
		curStart, curEnd := aggregate.DayBounds(day, loc)
		prevStart, _ := aggregate.DayBounds(day.AddDate(0, 0, -1), loc)
		return Window{Start: curStart, End: curEnd}, Window{Start: prevStart, End: curStart}, nil
	case PeriodMonthly:
		curStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		curEnd := time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, loc)
		prevStart := time.Date(day.Year(), day.Month()-1, 1, 0, 0, 0, 0, loc)
		return Window{Start: curStart, End: curEnd}, Window{Start: prevStart, End: curStart}, nil
	default:
		return Window{}, Window{}, ErrInvalidPeriod
	}
}
