package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aggregate "energyiq/internal/analytics/domain/aggregate"
)

func TestParsePeriod(t *testing.T) {
	_, err := ParsePeriod("")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	p, err := ParsePeriod("hourly")
	require.NoError(t, err)
	assert.Equal(t, PeriodHourly, p)

	p, err = ParsePeriod(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonthly, p)

	_, err = ParsePeriod("weekly")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 12, 4, 23, 30, 0, 0, time.UTC)

	day, err := ParseDate("", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 4, 0, 0, 0, 0, time.UTC), day)

	day, err = ParseDate("2024-11-03", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC), day)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	day, err = ParseDate("2024-12-04T20:00:00Z", now, tokyo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseDate("04/12/2024", now, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestWindows(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cur, prev, err := Windows(PeriodHourly, day, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day, cur.Start)
	assert.Equal(t, day.AddDate(0, 0, 1), cur.End)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), prev.Start)
	assert.Equal(t, cur.Start, prev.End)

	cur, prev, err = Windows(PeriodMonthly, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cur.Start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), cur.End)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), prev.Start)

	_, _, err = Windows(Period("yearly"), day, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 0.0, PercentChange(0, 0))
	assert.Equal(t, 100.0, PercentChange(7, 0))
	assert.Equal(t, 50.0, PercentChange(15, 10))
	assert.Equal(t, -33.33, PercentChange(2, 3))
	assert.Equal(t, 66.67, PercentChange(5, 3))

	assert.Equal(t, TrendUp, TrendOf(1, 1))
	assert.Equal(t, TrendDown, TrendOf(0.5, 1))
}

func TestHourLabel(t *testing.T) {
	assert.Equal(t, "12 AM", HourLabel(0))
	assert.Equal(t, "1 AM", HourLabel(1))
	assert.Equal(t, "12 PM", HourLabel(12))
	assert.Equal(t, "1 PM", HourLabel(13))
	assert.Equal(t, "11 PM", HourLabel(23))
}

func TestClassifier_Hourly(t *testing.T) {
	c := Classifier{Period: PeriodHourly, PeakWindow: aggregate.HourWindow{Start: 7, End: 19}, Location: time.UTC}
	day := time.Date(2024, 12, 4, 0, 0, 0, 0, time.UTC)
	totals := []HourlyTotal{
		{DeviceID: "a", HourStart: day.Add(6 * time.Hour), EnergyKWh: 1},
		{DeviceID: "a", HourStart: day.Add(7 * time.Hour), EnergyKWh: 4},
		{DeviceID: "b", HourStart: day.Add(18 * time.Hour), EnergyKWh: 2},
		{DeviceID: "b", HourStart: day.Add(19 * time.Hour), EnergyKWh: 3},
		{DeviceID: "b", HourStart: day.Add(6 * time.Hour), EnergyKWh: 3},
	}

	peak, off := c.Split(totals)
	assert.InDelta(t, 6, peak, 1e-9)
	assert.InDelta(t, 7, off, 1e-9)
	assert.InDelta(t, Sum(totals), peak+off, 1e-9)

	hour := c.PeakBucket(totals)
	require.NotNil(t, hour)
	assert.Equal(t, 6, *hour)

	assert.Equal(t, "7 AM", c.Label(totals[1].HourStart))
	assert.Nil(t, c.PeakBucket(nil))
}

func TestClassifier_MonthlyWeekdaysArePeak(t *testing.T) {
	c := Classifier{Period: PeriodMonthly, Location: time.UTC}
	friday := time.Date(2024, 12, 6, 10, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 12, 7, 10, 0, 0, 0, time.UTC)

	assert.True(t, c.IsPeak(friday))
	assert.False(t, c.IsPeak(saturday))
	assert.Equal(t, 7, c.Bucket(saturday))
	assert.Equal(t, "7-Dec", c.Label(saturday))
}

func TestProject_ScenarioTenOfThirtyDays(t *testing.T) {
	var aggs []aggregate.DailyAggregate
	for d := 1; d <= 10; d++ {
		aggs = append(aggs, aggregate.DailyAggregate{
			DeviceID:       "a",
			Date:           time.Date(2024, 11, d, 0, 0, 0, 0, time.UTC),
			TotalEnergyKWh: 30,
		})
	}
	// outside the reference month or after the reference date
	aggs = append(aggs,
		aggregate.DailyAggregate{DeviceID: "a", Date: time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC), TotalEnergyKWh: 99},
		aggregate.DailyAggregate{DeviceID: "a", Date: time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC), TotalEnergyKWh: 99},
	)

	p := Project(aggs, time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC), 0.5)

	assert.Equal(t, 10, p.ElapsedDays)
	assert.Equal(t, 30, p.DaysInMonth)
	assert.InDelta(t, 300, p.TotalEnergyKWh, 1e-9)
	assert.InDelta(t, 30, p.RunRateKWh, 1e-9)
	assert.InDelta(t, 900, p.ProjectedKWh, 1e-9)
	assert.InDelta(t, 30, p.AverageDailyKWh, 1e-9)
	assert.InDelta(t, 450, p.ProjectedCost, 1e-9)
	assert.InDelta(t, 15, p.AverageDailyCost, 1e-9)
}

func TestProject_NoData(t *testing.T) {
	p := Project(nil, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 0.3)
	assert.Equal(t, 0, p.ElapsedDays)
	assert.Equal(t, 29, p.DaysInMonth)
	assert.Zero(t, p.ProjectedKWh)
	assert.Zero(t, p.RunRateKWh)
	assert.Zero(t, p.ProjectedCost)
}
