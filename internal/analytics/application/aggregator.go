package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"energyiq/internal/analytics/domain/aggregate"
	"energyiq/internal/observability/metrics"
)

// Aggregator rolls unprocessed readings up into device-day aggregates.
type Aggregator struct {
	uow    aggregate.UnitOfWork
	policy aggregate.Policy
	clock  aggregate.Clock
	logger *zap.Logger
}

// NewAggregator constructs the aggregator.
func NewAggregator(uow aggregate.UnitOfWork, policy aggregate.Policy, clock aggregate.Clock, logger *zap.Logger) (*Aggregator, error) {
	if uow == nil {
		return nil, errors.New("aggregator: nil unit of work")
	}
	if err := policy.PeakWindow.Validate(); err != nil {
		return nil, err
	}
	if policy.Location == nil {
		return nil, errors.New("aggregator: nil location")
	}
	if clock == nil {
		clock = aggregate.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{uow: uow, policy: policy, clock: clock, logger: logger}, nil
}

// Run processes the whole unprocessed backlog in one transaction and returns
// the number of device-days committed. On any error nothing is committed.
func (a *Aggregator) Run(ctx context.Context) (int, error) {
	started := a.clock.Now()
	var processed, marked int

	err := a.uow.WithinTx(ctx, func(ctx context.Context, tx aggregate.AggregationTx) error {
		processed, marked = 0, 0

		acquired, err := tx.AcquireRunLock(ctx)
		if err != nil {
			return fmt.Errorf("aggregator: lock: %w", err)
		}
		if !acquired {
			return aggregate.ErrAggregationInProgress
		}

		groups, err := tx.UnprocessedDeviceDays(ctx, a.policy.Location)
		if err != nil {
			return fmt.Errorf("aggregator: list device-days: %w", err)
		}

		for _, group := range groups {
			if err := ctx.Err(); err != nil {
				return err
			}
			start, end := aggregate.DayBounds(group.Day, a.policy.Location)
			readings, err := tx.ReadingsForDeviceDay(ctx, group.DeviceID, start, end)
			if err != nil {
				return fmt.Errorf("aggregator: readings %s %s: %w", group.DeviceID, group.Day.Format("2006-01-02"), err)
			}

			agg, err := aggregate.ComputeDailyAggregate(group.DeviceID, group.Day, readings, a.policy)
			if err != nil {
				return fmt.Errorf("aggregator: compute %s %s: %w", group.DeviceID, group.Day.Format("2006-01-02"), err)
			}
			if err := tx.UpsertAggregate(ctx, agg); err != nil {
				return fmt.Errorf("aggregator: upsert %s %s: %w", group.DeviceID, group.Day.Format("2006-01-02"), err)
			}

			ids := unprocessedIDs(readings)
			if err := tx.MarkProcessed(ctx, ids); err != nil {
				return fmt.Errorf("aggregator: mark processed %s %s: %w", group.DeviceID, group.Day.Format("2006-01-02"), err)
			}
			processed++
			marked += len(ids)
		}
		return nil
	})

	elapsed := a.clock.Now().Sub(started)
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, aggregate.ErrAggregationInProgress) {
			result = metrics.ResultSkipped
		}
		metrics.ObserveAggregatorRun(result, elapsed, 0)
		a.logger.Warn("aggregation run rolled back", zap.Error(err), zap.Duration("elapsed", elapsed))
		return 0, err
	}

	metrics.ObserveAggregatorRun(metrics.ResultSuccess, elapsed, processed)
	a.logger.Info("aggregation run committed",
		zap.Int("device_days", processed),
		zap.Int("readings_marked", marked),
		zap.Duration("elapsed", elapsed),
	)
	return processed, nil
}

func unprocessedIDs(readings []aggregate.Reading) []int64 {
	ids := make([]int64, 0, len(readings))
	for _, reading := range readings {
		if !reading.Processed {
			ids = append(ids, reading.ID)
		}
	}
	return ids
}
