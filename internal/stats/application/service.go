package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	analytics "energyiq/internal/analytics/domain/aggregate"
	insights "energyiq/internal/insights/domain"
	masterdata "energyiq/internal/masterdata/domain"
	stats "energyiq/internal/stats/domain"
)

// ReadingQuery sums raw readings per device and clock hour.
type ReadingQuery interface {
	// HourlyTotals returns hour buckets with from <= hour < to. An empty
	// deviceID means every device.
	HourlyTotals(ctx context.Context, from, to time.Time, deviceID string) ([]stats.HourlyTotal, error)
}

// Settings are the immutable pricing and calendar inputs of the service.
type Settings struct {
	UnitPrice    float64
	PeakWindow   analytics.HourWindow
	Location     *time.Location
	InsightLimit int
}

// Service answers dashboard statistics and projections. It only reads.
type Service struct {
	readings   ReadingQuery
	aggregates analytics.Reader
	insights   insights.Repository
	devices    masterdata.DeviceRepository
	settings   Settings
	pool       pond.Pool
	clock      analytics.Clock
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPool sets the worker pool used for concurrent window queries.
func WithPool(pool pond.Pool) Option {
	return func(s *Service) {
		if pool != nil {
			s.pool = pool
		}
	}
}

// WithClock sets the clock used to resolve an empty reference date.
func WithClock(clock analytics.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the stats service.
func NewService(readings ReadingQuery, aggregates analytics.Reader, insightRepo insights.Repository, devices masterdata.DeviceRepository, settings Settings, opts ...Option) (*Service, error) {
	if readings == nil {
		return nil, errors.New("stats service: nil reading query")
	}
	if aggregates == nil {
		return nil, errors.New("stats service: nil aggregate reader")
	}
	if insightRepo == nil {
		return nil, errors.New("stats service: nil insight repository")
	}
	if devices == nil {
		return nil, errors.New("stats service: nil device repository")
	}
	if err := settings.PeakWindow.Validate(); err != nil {
		return nil, err
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.InsightLimit <= 0 {
		settings.InsightLimit = 3
	}
	s := &Service{
		readings:   readings,
		aggregates: aggregates,
		insights:   insightRepo,
		devices:    devices,
		settings:   settings,
		clock:      analytics.SystemClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = pond.NewPool(4, pond.WithQueueSize(64))
	}
	return s, nil
}

// Query identifies a period window by its reference date.
type Query struct {
	Period string
	Date   string
}

type windowTotals struct {
	period     stats.Period
	day        time.Time
	classifier stats.Classifier
	current    []stats.HourlyTotal
	previous   []stats.HourlyTotal
}

// load resolves the query windows and fetches both concurrently.
func (s *Service) load(ctx context.Context, q Query, deviceID string) (windowTotals, error) {
	period, err := stats.ParsePeriod(q.Period)
	if err != nil {
		return windowTotals{}, err
	}
	day, err := stats.ParseDate(q.Date, s.clock.Now(), s.settings.Location)
	if err != nil {
		return windowTotals{}, err
	}
	cur, prev, err := stats.Windows(period, day, s.settings.Location)
	if err != nil {
		return windowTotals{}, err
	}

	var (
		current, previous       []stats.HourlyTotal
		currentErr, previousErr error
	)
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			currentErr = err
			return
		}
		current, currentErr = s.readings.HourlyTotals(groupCtx, cur.Start, cur.End, deviceID)
	})
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			previousErr = err
			return
		}
		previous, previousErr = s.readings.HourlyTotals(groupCtx, prev.Start, prev.End, deviceID)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn("window query group failed", zap.Error(err))
	}
	if currentErr != nil {
		return windowTotals{}, fmt.Errorf("stats service: current window: %w", currentErr)
	}
	if previousErr != nil {
		return windowTotals{}, fmt.Errorf("stats service: previous window: %w", previousErr)
	}

	return windowTotals{
		period: period,
		day:    day,
		classifier: stats.Classifier{
			Period:     period,
			PeakWindow: s.settings.PeakWindow,
			Location:   s.settings.Location,
		},
		current:  current,
		previous: previous,
	}, nil
}

// PeriodStats returns per-device energy, cost and peak figures for the
// window with their change against the previous window.
func (s *Service) PeriodStats(ctx context.Context, q Query) (PeriodStats, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return PeriodStats{}, err
	}

	current := groupByDevice(w.current)
	previous := groupByDevice(w.previous)
	out := PeriodStats{Period: string(w.period), Date: w.day, Devices: []DeviceStats{}}
	for _, dev := range current.order {
		totals := current.totals[dev.id]
		prevTotals := previous.totals[dev.id]

		energy := stats.Sum(totals)
		prevEnergy := stats.Sum(prevTotals)
		peak, offPeak := w.classifier.Split(totals)
		prevPeak, prevOffPeak := w.classifier.Split(prevTotals)
		ratio := analytics.SafeRatio(peak, offPeak)
		prevRatio := analytics.SafeRatio(prevPeak, prevOffPeak)
		cost := energy * s.settings.UnitPrice
		prevCost := prevEnergy * s.settings.UnitPrice

		out.Devices = append(out.Devices, DeviceStats{
			DeviceID:           dev.id,
			DeviceName:         dev.name,
			EnergyKWh:          energy,
			Cost:               cost,
			PeakKWh:            peak,
			OffPeakKWh:         offPeak,
			PeakToOffPeakRatio: ratio,
			PeakBucket:         w.classifier.PeakBucket(totals),
			PreviousPeakBucket: w.classifier.PeakBucket(prevTotals),
			PreviousEnergyKWh:  prevEnergy,
			PreviousCost:       prevCost,
			PreviousRatio:      prevRatio,
			EnergyChange:       stats.PercentChange(energy, prevEnergy),
			CostChange:         stats.PercentChange(cost, prevCost),
			PeakChange:         stats.PercentChange(peak, prevPeak),
			OffPeakChange:      stats.PercentChange(offPeak, prevOffPeak),
			RatioChange:        stats.PercentChange(ratio, prevRatio),
			Trend:              stats.TrendOf(energy, prevEnergy),
		})
		out.TotalEnergyKWh += energy
		out.TotalCost += cost
	}
	return out, nil
}

// PeakOffPeakRatio splits the window into peak and off-peak energy.
func (s *Service) PeakOffPeakRatio(ctx context.Context, q Query) (RatioResult, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return RatioResult{}, err
	}
	peak, offPeak := w.classifier.Split(w.current)
	prevPeak, prevOffPeak := w.classifier.Split(w.previous)
	ratio := analytics.SafeRatio(peak, offPeak)
	prevRatio := analytics.SafeRatio(prevPeak, prevOffPeak)
	return RatioResult{
		PeakKWh:       peak,
		OffPeakKWh:    offPeak,
		Ratio:         ratio,
		PreviousRatio: prevRatio,
		Change:        stats.PercentChange(ratio, prevRatio),
		Trend:         stats.TrendOf(ratio, prevRatio),
	}, nil
}

// TotalEnergyUsage compares total energy of the window with the previous one.
func (s *Service) TotalEnergyUsage(ctx context.Context, q Query) (Comparison, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return Comparison{}, err
	}
	return compare(stats.Sum(w.current), stats.Sum(w.previous)), nil
}

// TotalCost compares total cost of the window with the previous one.
func (s *Service) TotalCost(ctx context.Context, q Query) (Comparison, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return Comparison{}, err
	}
	price := s.settings.UnitPrice
	return compare(stats.Sum(w.current)*price, stats.Sum(w.previous)*price), nil
}

// PeakHour returns the hour (hourly) or day of month (monthly) with the most
// energy for the window and the previous one, nil when a window has no data.
func (s *Service) PeakHour(ctx context.Context, q Query) (PeakResult, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return PeakResult{}, err
	}
	cur := peakOf(w.classifier, w.current)
	prev := peakOf(w.classifier, w.previous)
	return PeakResult{
		Period:            string(w.period),
		Bucket:            cur.bucket,
		Label:             cur.label,
		EnergyKWh:         cur.energy,
		PreviousBucket:    prev.bucket,
		PreviousLabel:     prev.label,
		PreviousEnergyKWh: prev.energy,
	}, nil
}

type peakPoint struct {
	bucket *int
	label  string
	energy float64
}

func peakOf(c stats.Classifier, totals []stats.HourlyTotal) peakPoint {
	out := peakPoint{bucket: c.PeakBucket(totals)}
	if out.bucket == nil {
		return out
	}
	for _, t := range totals {
		if c.Bucket(t.HourStart) == *out.bucket {
			out.energy += t.EnergyKWh
			if out.label == "" {
				out.label = c.Label(t.HourStart)
			}
		}
	}
	return out
}

// ConsumptionChart returns one point per hour (hourly) or day (monthly)
// that has data, in time order, for the window and the previous one.
func (s *Service) ConsumptionChart(ctx context.Context, q Query) (ChartComparison, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return ChartComparison{}, err
	}
	return ChartComparison{
		Current:  series(w.classifier, w.current),
		Previous: series(w.classifier, w.previous),
	}, nil
}

func series(c stats.Classifier, totals []stats.HourlyTotal) Chart {
	type point struct {
		at    time.Time
		label string
		value float64
	}
	byBucket := make(map[int]*point)
	for _, t := range totals {
		bucket := c.Bucket(t.HourStart)
		p, ok := byBucket[bucket]
		if !ok {
			p = &point{at: t.HourStart, label: c.Label(t.HourStart)}
			byBucket[bucket] = p
		}
		if t.HourStart.Before(p.at) {
			p.at = t.HourStart
		}
		p.value += t.EnergyKWh
	}
	points := make([]*point, 0, len(byBucket))
	for _, p := range byBucket {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

	chart := Chart{Labels: make([]string, 0, len(points)), Values: make([]float64, 0, len(points))}
	for _, p := range points {
		chart.Labels = append(chart.Labels, p.label)
		chart.Values = append(chart.Values, p.value)
	}
	return chart
}

// CostBreakdownByDevice returns the window cost per device, ordered by name.
func (s *Service) CostBreakdownByDevice(ctx context.Context, q Query) (Chart, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return Chart{}, err
	}
	current := groupByDevice(w.current)
	devices := current.byName()
	chart := Chart{Labels: make([]string, 0, len(devices)), Values: make([]float64, 0, len(devices))}
	for _, dev := range devices {
		chart.Labels = append(chart.Labels, dev.name)
		chart.Values = append(chart.Values, stats.Sum(current.totals[dev.id])*s.settings.UnitPrice)
	}
	return chart, nil
}

// EnergyUsageByDevice returns the window energy per device, ordered by name,
// with each device's change against the previous window.
func (s *Service) EnergyUsageByDevice(ctx context.Context, q Query) (DeviceBreakdown, error) {
	w, err := s.load(ctx, q, "")
	if err != nil {
		return DeviceBreakdown{}, err
	}
	current := groupByDevice(w.current)
	previous := groupByDevice(w.previous)
	devices := current.byName()
	out := DeviceBreakdown{
		Labels:  make([]string, 0, len(devices)),
		Values:  make([]float64, 0, len(devices)),
		Changes: make([]float64, 0, len(devices)),
	}
	for _, dev := range devices {
		energy := stats.Sum(current.totals[dev.id])
		out.Labels = append(out.Labels, dev.name)
		out.Values = append(out.Values, energy)
		out.Changes = append(out.Changes, stats.PercentChange(energy, stats.Sum(previous.totals[dev.id])))
	}
	return out, nil
}

// ProjectedEnergy extrapolates month-end energy from the aggregates of the
// reference month up to the reference date.
func (s *Service) ProjectedEnergy(ctx context.Context, date, deviceID string) (ProjectionResult, error) {
	return s.project(ctx, date, deviceID)
}

// ProjectedCost extrapolates month-end cost. It shares the energy projection,
// month-to-date cost included.
func (s *Service) ProjectedCost(ctx context.Context, date, deviceID string) (ProjectionResult, error) {
	return s.project(ctx, date, deviceID)
}

func (s *Service) project(ctx context.Context, date, deviceID string) (ProjectionResult, error) {
	day, err := stats.ParseDate(date, s.clock.Now(), s.settings.Location)
	if err != nil {
		return ProjectionResult{}, err
	}
	aggs, err := s.aggregates.ListRange(ctx, analytics.Filter{
		From:     analytics.MonthStart(day),
		To:       day,
		DeviceID: deviceID,
	})
	if err != nil {
		return ProjectionResult{}, fmt.Errorf("stats service: load aggregates: %w", err)
	}
	p := stats.Project(aggs, day, s.settings.UnitPrice)
	return ProjectionResult{
		DeviceID:         deviceID,
		Month:            p.Month,
		ElapsedDays:      p.ElapsedDays,
		DaysInMonth:      p.DaysInMonth,
		TotalEnergyKWh:   stats.Round(p.TotalEnergyKWh, 4),
		TotalCost:        stats.Round(p.TotalEnergyKWh*s.settings.UnitPrice, 2),
		ProjectedKWh:     stats.Round(p.ProjectedKWh, 4),
		AverageDailyKWh:  stats.Round(p.AverageDailyKWh, 4),
		ProjectedCost:    stats.Round(p.ProjectedCost, 2),
		AverageDailyCost: stats.Round(p.AverageDailyCost, 2),
	}, nil
}

// Insights returns the active insights, newest batch first. A non-positive
// limit uses the configured default.
func (s *Service) Insights(ctx context.Context, limit int) ([]insights.Insight, error) {
	if limit <= 0 {
		limit = s.settings.InsightLimit
	}
	out, err := s.insights.ListActive(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("stats service: list insights: %w", err)
	}
	if out == nil {
		out = []insights.Insight{}
	}
	return out, nil
}

// Devices lists every known device.
func (s *Service) Devices(ctx context.Context) ([]masterdata.Device, error) {
	out, err := s.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats service: list devices: %w", err)
	}
	if out == nil {
		out = []masterdata.Device{}
	}
	return out, nil
}

func compare(current, previous float64) Comparison {
	return Comparison{
		Current:  current,
		Previous: previous,
		Change:   stats.PercentChange(current, previous),
		Trend:    stats.TrendOf(current, previous),
	}
}

type deviceRef struct {
	id   string
	name string
}

type deviceTotals struct {
	order  []deviceRef
	totals map[string][]stats.HourlyTotal
}

func groupByDevice(totals []stats.HourlyTotal) deviceTotals {
	out := deviceTotals{totals: make(map[string][]stats.HourlyTotal)}
	for _, t := range totals {
		if _, ok := out.totals[t.DeviceID]; !ok {
			name := t.DeviceName
			if name == "" {
				name = t.DeviceID
			}
			out.order = append(out.order, deviceRef{id: t.DeviceID, name: name})
		}
		out.totals[t.DeviceID] = append(out.totals[t.DeviceID], t)
	}
	return out
}

func (d deviceTotals) byName() []deviceRef {
	out := make([]deviceRef, len(d.order))
	copy(out, d.order)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].id < out[j].id
	})
	return out
}
