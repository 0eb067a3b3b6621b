package aggregate

import "errors"

var (
	// ErrEmptyDeviceID is returned when a device id is empty.
	ErrEmptyDeviceID = errors.New("aggregate: empty device id")
	// ErrInvalidDay is returned when the calendar day is zero.
	ErrInvalidDay = errors.New("aggregate: invalid day")
	// ErrNegativeEnergy is returned when a reading carries negative energy.
	ErrNegativeEnergy = errors.New("aggregate: negative energy")
	// ErrReadingOutsideDay is returned when a reading does not belong to the device-day.
	ErrReadingOutsideDay = errors.New("aggregate: reading outside device-day")
	// ErrInvalidPeakWindow is returned when the peak window is malformed.
	ErrInvalidPeakWindow = errors.New("aggregate: invalid peak window")
	// ErrAggregationInProgress is returned when another aggregation run holds the lock.
	ErrAggregationInProgress = errors.New("aggregate: aggregation in progress")
)
