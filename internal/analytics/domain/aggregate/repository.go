package aggregate

import (
	"context"
	"time"
)

// UnitOfWork runs fn inside one all-or-nothing transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx AggregationTx) error) error
}

// AggregationTx is the transactional view the aggregator works against.
type AggregationTx interface {
	// AcquireRunLock takes the run-scoped aggregation lock, released on commit or rollback.
	AcquireRunLock(ctx context.Context) (bool, error)
	UnprocessedDeviceDays(ctx context.Context, loc *time.Location) ([]DeviceDay, error)
	ReadingsForDeviceDay(ctx context.Context, deviceID string, start, end time.Time) ([]Reading, error)
	UpsertAggregate(ctx context.Context, agg DailyAggregate) error
	MarkProcessed(ctx context.Context, ids []int64) error
}

// Filter narrows aggregate range queries. Zero fields are unbounded.
type Filter struct {
	From     time.Time
	To       time.Time
	DeviceID string
}

// Reader is the read side of the aggregate store.
type Reader interface {
	// ListRange returns aggregates with From <= date <= To, date then device ordered.
	ListRange(ctx context.Context, filter Filter) ([]DailyAggregate, error)
	ListByWeek(ctx context.Context, weekStart time.Time, deviceID string) ([]DailyAggregate, error)
	ListByMonth(ctx context.Context, monthStart time.Time, deviceID string) ([]DailyAggregate, error)
}
