package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	analytics "energyiq/internal/analytics/domain/aggregate"
	"energyiq/internal/analytics/infrastructure/memory"
	stats "energyiq/internal/stats/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func seededService(t *testing.T) *Service {
	t.Helper()
	store := memory.NewStore()
	store.SetDeviceName("fridge", "Fridge")
	for d := 2; d <= 10; d++ {
		store.PutAggregate(analytics.DailyAggregate{
			DeviceID:         "fridge",
			Date:             time.Date(2024, 12, d, 0, 0, 0, 0, time.UTC),
			TotalEnergyKWh:   10,
			PeakEnergyKWh:    4,
			OffPeakEnergyKWh: 6,
			TotalCost:        1.4,
			PeakHour:         19,
		})
	}
	store.PutAggregate(analytics.DailyAggregate{
		DeviceID:       "oven",
		Date:           time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC),
		TotalEnergyKWh: 5,
	})
	svc, err := NewService(store, time.UTC, "USD", fixedClock{now: time.Date(2024, 12, 11, 0, 0, 0, 0, time.UTC)}, nil)
	require.NoError(t, err)
	return svc
}

func TestBuild_WeeklyAndMonthly(t *testing.T) {
	svc := seededService(t)

	week, err := svc.Build(context.Background(), KindWeekly, time.Date(2024, 12, 4, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC), week.PeriodStart)
	assert.Equal(t, time.Date(2024, 12, 8, 0, 0, 0, 0, time.UTC), week.PeriodEnd)
	assert.Len(t, week.Rows, 7)
	assert.InDelta(t, 70, week.TotalEnergyKWh, 1e-9)
	assert.InDelta(t, week.TotalEnergyKWh, week.PeakEnergyKWh+week.OffPeakKWh, 1e-9)

	month, err := svc.Build(context.Background(), KindMonthly, time.Date(2024, 12, 4, 0, 0, 0, 0, time.UTC), "fridge")
	require.NoError(t, err)
	assert.Len(t, month.Rows, 9)
	assert.Equal(t, "Fridge", month.Rows[0].DeviceName)

	prev, err := svc.Build(context.Background(), KindMonthly, time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Len(t, prev.Rows, 1)
}

func TestExport_XLSX(t *testing.T) {
	svc := seededService(t)

	file, err := svc.Export(context.Background(), Request{Format: "xlsx", Kind: "weekly", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, "aggregates-weekly-2024-12-02.xlsx", file.Name)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Body))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("days")
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, "Day", rows[0][0])
	assert.Equal(t, "2024-12-02", rows[1][0])
}

func TestExport_PDF(t *testing.T) {
	svc := seededService(t)

	file, err := svc.Export(context.Background(), Request{Format: "pdf", Date: "2024-12-04"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
}

func TestExport_Validation(t *testing.T) {
	svc := seededService(t)

	_, err := svc.Export(context.Background(), Request{Format: "csv"})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = svc.Export(context.Background(), Request{Format: "pdf", Kind: "daily"})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = svc.Export(context.Background(), Request{Format: "pdf", Date: "tomorrow"})
	assert.ErrorIs(t, err, stats.ErrInvalidDate)
}
