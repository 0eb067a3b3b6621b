package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analytics "energyiq/internal/analytics/domain/aggregate"
	analyticsmem "energyiq/internal/analytics/infrastructure/memory"
	insights "energyiq/internal/insights/domain"
	insightsmem "energyiq/internal/insights/infrastructure/memory"
	masterdata "energyiq/internal/masterdata/domain"
	mastermem "energyiq/internal/masterdata/infrastructure/memory"
	stats "energyiq/internal/stats/domain"
	statsmem "energyiq/internal/stats/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	readings   *statsmem.ReadingQuery
	aggregates *analyticsmem.Store
	insights   *insightsmem.Repository
	devices    *mastermem.DeviceRepository
	service    *Service
}

func newFixture(t *testing.T) fixture {
	return newFixtureIn(t, time.UTC)
}

func newFixtureIn(t *testing.T, loc *time.Location) fixture {
	t.Helper()
	f := fixture{
		readings:   statsmem.NewReadingQuery(statsmem.WithLocation(loc)),
		aggregates: analyticsmem.NewStore(),
		insights:   insightsmem.NewRepository(),
		devices:    mastermem.NewDeviceRepository(),
	}
	pool := pond.NewPool(2)
	t.Cleanup(pool.StopAndWait)

	svc, err := NewService(f.readings, f.aggregates, f.insights, f.devices, Settings{
		UnitPrice:  0.5,
		PeakWindow: analytics.HourWindow{Start: 7, End: 19},
		Location:   loc,
	}, WithPool(pool), WithClock(fixedClock{now: time.Date(2024, 12, 4, 15, 0, 0, 0, time.UTC)}))
	require.NoError(t, err)
	f.service = svc
	return f
}

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestService_ConsumptionChartHourlyLabels(t *testing.T) {
	f := newFixture(t)
	f.readings.Add("fridge", day(2024, 12, 4, 0), 2)
	f.readings.Add("fridge", day(2024, 12, 4, 13).Add(15*time.Minute), 1.25)
	f.readings.Add("oven", day(2024, 12, 4, 13), 1.75)
	f.readings.Add("oven", day(2024, 12, 5, 1), 9)
	f.readings.Add("fridge", day(2024, 12, 3, 5), 9)
	f.readings.Add("oven", day(2024, 12, 3, 22), 1)

	chart, err := f.service.ConsumptionChart(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, []string{"12 AM", "1 PM"}, chart.Current.Labels)
	assert.Equal(t, []float64{2, 3}, chart.Current.Values)
	assert.Equal(t, []string{"5 AM", "10 PM"}, chart.Previous.Labels)
	assert.Equal(t, []float64{9, 1}, chart.Previous.Values)
}

func TestService_ConsumptionChartEmptyPreviousWindow(t *testing.T) {
	f := newFixture(t)
	f.readings.Add("fridge", day(2024, 12, 4, 13), 3)

	chart, err := f.service.ConsumptionChart(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1 PM"}, chart.Current.Labels)
	assert.Empty(t, chart.Previous.Labels)
	assert.NotNil(t, chart.Previous.Values)
}

func TestService_ConsumptionChartMonthlyLabels(t *testing.T) {
	f := newFixture(t)
	f.readings.Add("fridge", day(2024, 12, 2, 4), 1)
	f.readings.Add("fridge", day(2024, 12, 2, 20), 2)
	f.readings.Add("fridge", day(2024, 12, 9, 10), 4)
	f.readings.Add("fridge", day(2024, 11, 30, 23), 6)

	chart, err := f.service.ConsumptionChart(context.Background(), Query{Period: "monthly", Date: "2024-12-15"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2-Dec", "9-Dec"}, chart.Current.Labels)
	assert.Equal(t, []float64{3, 4}, chart.Current.Values)
	assert.Equal(t, []string{"30-Nov"}, chart.Previous.Labels)
	assert.Equal(t, []float64{6}, chart.Previous.Values)
}

func TestService_HalfHourOffsetZoneBucketsOnLocalHours(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	f := newFixtureIn(t, kolkata)
	f.readings.Add("fridge", time.Date(2024, 12, 4, 16, 15, 0, 0, kolkata), 2)
	f.readings.Add("fridge", time.Date(2024, 12, 4, 16, 50, 0, 0, kolkata), 1)
	f.readings.Add("fridge", time.Date(2024, 12, 5, 0, 10, 0, 0, kolkata), 5)

	chart, err := f.service.ConsumptionChart(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, []string{"4 PM"}, chart.Current.Labels)
	assert.Equal(t, []float64{3}, chart.Current.Values)

	peak, err := f.service.PeakHour(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	require.NotNil(t, peak.Bucket)
	assert.Equal(t, 16, *peak.Bucket)

	monthly, err := f.service.ConsumptionChart(context.Background(), Query{Period: "monthly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, []string{"4-Dec", "5-Dec"}, monthly.Current.Labels)
	assert.Equal(t, []float64{3, 5}, monthly.Current.Values)
}

func TestService_TotalsAndChanges(t *testing.T) {
	f := newFixture(t)
	f.readings.Add("fridge", day(2024, 12, 3, 9), 10)
	f.readings.Add("fridge", day(2024, 12, 4, 9), 15)

	usage, err := f.service.TotalEnergyUsage(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.InDelta(t, 15, usage.Current, 1e-9)
	assert.InDelta(t, 10, usage.Previous, 1e-9)
	assert.Equal(t, 50.0, usage.Change)
	assert.Equal(t, stats.TrendUp, usage.Trend)

	cost, err := f.service.TotalCost(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, cost.Current, 1e-9)
	assert.Equal(t, 50.0, cost.Change)

	// nothing recorded the day before
	usage, err = f.service.TotalEnergyUsage(context.Background(), Query{Period: "hourly", Date: "2024-12-03"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, usage.Change)

	usage, err = f.service.TotalEnergyUsage(context.Background(), Query{Period: "hourly", Date: "2024-12-01"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, usage.Change)
}

func TestService_EmptyDateUsesClock(t *testing.T) {
	f := newFixture(t)
	f.readings.Add("fridge", day(2024, 12, 4, 9), 4)

	usage, err := f.service.TotalEnergyUsage(context.Background(), Query{Period: "hourly"})
	require.NoError(t, err)
	assert.InDelta(t, 4, usage.Current, 1e-9)
}

func TestService_PeakOffPeakRatio(t *testing.T) {
	f := newFixture(t)
	f.readings.Add("fridge", day(2024, 12, 4, 6), 2)
	f.readings.Add("fridge", day(2024, 12, 4, 7), 6)
	f.readings.Add("fridge", day(2024, 12, 4, 19), 1)

	ratio, err := f.service.PeakOffPeakRatio(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.InDelta(t, 6, ratio.PeakKWh, 1e-9)
	assert.InDelta(t, 3, ratio.OffPeakKWh, 1e-9)
	assert.InDelta(t, 2, ratio.Ratio, 1e-9)

	// weekend only: no peak energy, no division by zero
	f.readings.Add("fridge", day(2024, 11, 30, 12), 5)
	ratio, err = f.service.PeakOffPeakRatio(context.Background(), Query{Period: "monthly", Date: "2024-11-30"})
	require.NoError(t, err)
	assert.Zero(t, ratio.PeakKWh)
	assert.InDelta(t, 5, ratio.OffPeakKWh, 1e-9)
	assert.Zero(t, ratio.Ratio)

	f.readings.Add("oven", day(2024, 10, 7, 12), 4)
	ratio, err = f.service.PeakOffPeakRatio(context.Background(), Query{Period: "monthly", Date: "2024-10-07"})
	require.NoError(t, err)
	assert.InDelta(t, 4, ratio.Ratio, 1e-9)
}

func TestService_PeakHour(t *testing.T) {
	f := newFixture(t)

	peak, err := f.service.PeakHour(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Nil(t, peak.Bucket)
	assert.Nil(t, peak.PreviousBucket)

	f.readings.Add("fridge", day(2024, 12, 4, 15), 3)
	f.readings.Add("oven", day(2024, 12, 4, 9), 1)
	f.readings.Add("lights", day(2024, 12, 4, 9), 2)

	peak, err = f.service.PeakHour(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	require.NotNil(t, peak.Bucket)
	assert.Equal(t, 9, *peak.Bucket)
	assert.Equal(t, "9 AM", peak.Label)
	assert.InDelta(t, 3, peak.EnergyKWh, 1e-9)
	assert.Nil(t, peak.PreviousBucket)

	f.readings.Add("fridge", day(2024, 12, 3, 20), 4)
	f.readings.Add("oven", day(2024, 12, 3, 6), 4)
	peak, err = f.service.PeakHour(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	require.NotNil(t, peak.PreviousBucket)
	assert.Equal(t, 6, *peak.PreviousBucket)
	assert.Equal(t, "6 AM", peak.PreviousLabel)
	assert.InDelta(t, 4, peak.PreviousEnergyKWh, 1e-9)
	assert.Equal(t, 9, *peak.Bucket)

	peak, err = f.service.PeakHour(context.Background(), Query{Period: "monthly", Date: "2024-12-04"})
	require.NoError(t, err)
	require.NotNil(t, peak.Bucket)
	assert.Equal(t, 3, *peak.Bucket)
	assert.Equal(t, "3-Dec", peak.Label)
	assert.Nil(t, peak.PreviousBucket)
}

func TestService_PeriodStats(t *testing.T) {
	f := newFixture(t)
	f.readings.SetDeviceName("fridge", "Fridge")
	f.readings.Add("fridge", day(2024, 12, 3, 8), 4)
	f.readings.Add("fridge", day(2024, 12, 4, 8), 6)
	f.readings.Add("fridge", day(2024, 12, 4, 22), 2)

	out, err := f.service.PeriodStats(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	require.Len(t, out.Devices, 1)

	dev := out.Devices[0]
	assert.Equal(t, "Fridge", dev.DeviceName)
	assert.InDelta(t, 8, dev.EnergyKWh, 1e-9)
	assert.InDelta(t, 4, dev.Cost, 1e-9)
	assert.InDelta(t, 6, dev.PeakKWh, 1e-9)
	assert.InDelta(t, 2, dev.OffPeakKWh, 1e-9)
	assert.InDelta(t, 3, dev.PeakToOffPeakRatio, 1e-9)
	require.NotNil(t, dev.PeakBucket)
	assert.Equal(t, 8, *dev.PeakBucket)
	require.NotNil(t, dev.PreviousPeakBucket)
	assert.Equal(t, 8, *dev.PreviousPeakBucket)
	assert.Equal(t, 100.0, dev.EnergyChange)
	assert.Equal(t, 100.0, dev.OffPeakChange)
	assert.Equal(t, 50.0, dev.PeakChange)
	assert.Equal(t, stats.TrendUp, dev.Trend)
	assert.InDelta(t, 8, out.TotalEnergyKWh, 1e-9)
}

func TestService_DeviceBreakdownsOrderedByName(t *testing.T) {
	f := newFixture(t)
	f.readings.SetDeviceName("d1", "Oven")
	f.readings.SetDeviceName("d2", "EV Charger")
	f.readings.Add("d1", day(2024, 12, 4, 1), 2)
	f.readings.Add("d2", day(2024, 12, 4, 2), 8)
	f.readings.Add("d2", day(2024, 12, 3, 2), 4)

	costs, err := f.service.CostBreakdownByDevice(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EV Charger", "Oven"}, costs.Labels)
	assert.Equal(t, []float64{4, 1}, costs.Values)

	usage, err := f.service.EnergyUsageByDevice(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EV Charger", "Oven"}, usage.Labels)
	assert.Equal(t, []float64{8, 2}, usage.Values)
	assert.Equal(t, []float64{100, 100}, usage.Changes)
}

func TestService_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.TotalEnergyUsage(context.Background(), Query{Period: "weekly"})
	assert.ErrorIs(t, err, stats.ErrInvalidPeriod)

	_, err = f.service.TotalEnergyUsage(context.Background(), Query{Date: "2024-12-04"})
	assert.ErrorIs(t, err, stats.ErrInvalidPeriod)

	_, err = f.service.ConsumptionChart(context.Background(), Query{Period: "hourly", Date: "yesterday"})
	assert.ErrorIs(t, err, stats.ErrInvalidDate)

	_, err = f.service.ProjectedEnergy(context.Background(), "12/04/2024", "")
	assert.ErrorIs(t, err, stats.ErrInvalidDate)
}

func TestService_StoreErrorPropagates(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.readings.Err = boom

	_, err := f.service.PeriodStats(context.Background(), Query{Period: "hourly", Date: "2024-12-04"})
	assert.ErrorIs(t, err, boom)
}

func TestService_ProjectionScenario(t *testing.T) {
	f := newFixture(t)
	for d := 1; d <= 10; d++ {
		f.aggregates.PutAggregate(analytics.DailyAggregate{
			DeviceID:       "fridge",
			Date:           time.Date(2024, 11, d, 0, 0, 0, 0, time.UTC),
			TotalEnergyKWh: 30,
		})
	}
	f.aggregates.PutAggregate(analytics.DailyAggregate{
		DeviceID:       "oven",
		Date:           time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC),
		TotalEnergyKWh: 7,
	})

	energy, err := f.service.ProjectedEnergy(context.Background(), "2024-11-15", "fridge")
	require.NoError(t, err)
	assert.Equal(t, 10, energy.ElapsedDays)
	assert.Equal(t, 900.0, energy.ProjectedKWh)
	assert.Equal(t, 30.0, energy.AverageDailyKWh)
	assert.Equal(t, 300.0, energy.TotalEnergyKWh)
	assert.Equal(t, 150.0, energy.TotalCost)

	cost, err := f.service.ProjectedCost(context.Background(), "2024-11-15", "fridge")
	require.NoError(t, err)
	assert.Equal(t, 450.0, cost.ProjectedCost)
	assert.Equal(t, 150.0, cost.TotalCost)
	assert.Equal(t, 15.0, cost.AverageDailyCost)

	all, err := f.service.ProjectedEnergy(context.Background(), "2024-11-15", "")
	require.NoError(t, err)
	assert.Equal(t, 921.0, all.ProjectedKWh)

	empty, err := f.service.ProjectedEnergy(context.Background(), "2024-09-15", "")
	require.NoError(t, err)
	assert.Zero(t, empty.ProjectedKWh)
}

func TestService_InsightsAndDevices(t *testing.T) {
	f := newFixture(t)

	list, err := f.service.Insights(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	ranked := []insights.Candidate{
		{DeviceID: "a", Text: "a", Relevancy: 4},
		{DeviceID: "b", Text: "b", Relevancy: 3},
		{DeviceID: "c", Text: "c", Relevancy: 2},
		{DeviceID: "d", Text: "d", Relevancy: 1},
	}
	batchID := uuid.New()
	require.NoError(t, f.insights.ReplaceActive(context.Background(), batchID, insights.NewBatch(batchID, ranked, time.Now())))

	list, err = f.service.Insights(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1, list[0].Rank)

	list, err = f.service.Insights(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	require.NoError(t, f.devices.EnsureDevices(context.Background(), []masterdata.Device{{Name: "Oven"}, {Name: "Fridge"}}))
	devices, err := f.service.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "Fridge", devices[0].Name)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, analyticsmem.NewStore(), insightsmem.NewRepository(), mastermem.NewDeviceRepository(), Settings{PeakWindow: analytics.HourWindow{Start: 7, End: 19}})
	assert.Error(t, err)

	_, err = NewService(statsmem.NewReadingQuery(), analyticsmem.NewStore(), insightsmem.NewRepository(), mastermem.NewDeviceRepository(), Settings{PeakWindow: analytics.HourWindow{Start: 9, End: 9}})
	assert.ErrorIs(t, err, analytics.ErrInvalidPeakWindow)
}
