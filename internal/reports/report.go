package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	analytics "energyiq/internal/analytics/domain/aggregate"
	"energyiq/internal/observability/metrics"
	stats "energyiq/internal/stats/domain"
)

var (
	// ErrInvalidKind is returned for a report kind other than weekly or monthly.
	ErrInvalidKind = errors.New("reports: invalid kind, must be weekly or monthly")
	// ErrInvalidFormat is returned for an export format other than xlsx or pdf.
	ErrInvalidFormat = errors.New("reports: invalid format, must be xlsx or pdf")
)

// Kind selects the aggregate period of a report.
type Kind string

const (
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseKind parses a report kind. Empty defaults to monthly.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindMonthly:
		return KindMonthly, nil
	case KindWeekly:
		return KindWeekly, nil
	default:
		return "", ErrInvalidKind
	}
}

// ParseFormat parses an export format.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrInvalidFormat
	}
}

// Report is a period's daily aggregates with totals.
type Report struct {
	Kind           Kind
	PeriodStart    time.Time
	PeriodEnd      time.Time
	DeviceID       string
	Currency       string
	GeneratedAt    time.Time
	Rows           []analytics.DailyAggregate
	TotalEnergyKWh float64
	TotalCost      float64
	PeakEnergyKWh  float64
	OffPeakKWh     float64
}

// Request selects the report to export.
type Request struct {
	Format   string
	Kind     string
	Date     string
	DeviceID string
}

// File is a rendered report.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Service builds and renders aggregate reports.
type Service struct {
	aggregates analytics.Reader
	location   *time.Location
	currency   string
	clock      analytics.Clock
	logger     *zap.Logger
}

// NewService constructs a report service.
func NewService(aggregates analytics.Reader, location *time.Location, currency string, clock analytics.Clock, logger *zap.Logger) (*Service, error) {
	if aggregates == nil {
		return nil, errors.New("reports: nil aggregate reader")
	}
	if location == nil {
		location = time.UTC
	}
	if currency == "" {
		currency = "USD"
	}
	if clock == nil {
		clock = analytics.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{aggregates: aggregates, location: location, currency: currency, clock: clock, logger: logger}, nil
}

// Build loads the week or month containing date.
func (s *Service) Build(ctx context.Context, kind Kind, date time.Time, deviceID string) (*Report, error) {
	var (
		rows       []analytics.DailyAggregate
		start, end time.Time
		err        error
	)
	switch kind {
	case KindWeekly:
		start = analytics.WeekStart(date)
		end = start.AddDate(0, 0, 6)
		rows, err = s.aggregates.ListByWeek(ctx, start, deviceID)
	case KindMonthly:
		start = analytics.MonthStart(date)
		end = start.AddDate(0, 1, -1)
		rows, err = s.aggregates.ListByMonth(ctx, start, deviceID)
	default:
		return nil, ErrInvalidKind
	}
	if err != nil {
		return nil, fmt.Errorf("reports: load aggregates: %w", err)
	}

	report := &Report{
		Kind:        kind,
		PeriodStart: start,
		PeriodEnd:   end,
		DeviceID:    deviceID,
		Currency:    s.currency,
		GeneratedAt: s.clock.Now().UTC(),
		Rows:        rows,
	}
	for _, row := range rows {
		report.TotalEnergyKWh += row.TotalEnergyKWh
		report.TotalCost += row.TotalCost
		report.PeakEnergyKWh += row.PeakEnergyKWh
		report.OffPeakKWh += row.OffPeakEnergyKWh
	}
	return report, nil
}

// Export builds and renders the requested report.
func (s *Service) Export(ctx context.Context, req Request) (*File, error) {
	started := time.Now()
	format, err := ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	date, err := stats.ParseDate(req.Date, s.clock.Now(), s.location)
	if err != nil {
		return nil, err
	}

	file, err := s.export(ctx, format, kind, date, req.DeviceID)
	if err != nil {
		metrics.ObserveReportExport(string(format), metrics.ResultError, time.Since(started))
		s.logger.Warn("report export failed", zap.String("format", string(format)), zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}
	metrics.ObserveReportExport(string(format), metrics.ResultSuccess, time.Since(started))
	return file, nil
}

func (s *Service) export(ctx context.Context, format Format, kind Kind, date time.Time, deviceID string) (*File, error) {
	report, err := s.Build(ctx, kind, date, deviceID)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("aggregates-%s-%s.%s", kind, report.PeriodStart.Format("2006-01-02"), format)
	switch format {
	case FormatPDF:
		body, err := RenderPDF(report)
		if err != nil {
			return nil, fmt.Errorf("reports: render pdf: %w", err)
		}
		return &File{Name: name, ContentType: "application/pdf", Body: body}, nil
	default:
		body, err := RenderXLSX(report)
		if err != nil {
			return nil, fmt.Errorf("reports: render xlsx: %w", err)
		}
		return &File{Name: name, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Body: body}, nil
	}
}
