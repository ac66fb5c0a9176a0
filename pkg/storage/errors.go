package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a document cannot be stored as given.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateKey is returned when a write violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
)

// RowError is a failure for a single document of a bulk write.
type RowError struct {
	Index  int
	CoinID string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Index, e.CoinID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// BulkInsertError reports a bulk append where some rows were not confirmed.
type BulkInsertError struct {
	Inserted int
	Failed   []RowError
}

func (e *BulkInsertError) Error() string {
	msg := fmt.Sprintf("bulk insert: %d inserted, %d failed", e.Inserted, len(e.Failed))
	if len(e.Failed) > 0 {
		msg += ": first error: " + e.Failed[0].Error()
	}
	return msg
}

// Unwrap exposes the row causes to errors.Is/As.
func (e *BulkInsertError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}
