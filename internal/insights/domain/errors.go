package insights

import "errors"

var (
	// ErrEmptyBatch is returned when a batch id is missing.
	ErrEmptyBatch = errors.New("insights: empty batch id")
	// ErrInvalidLimit is returned when a list limit is not positive.
	ErrInvalidLimit = errors.New("insights: invalid limit")
)
