package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks connection and query failures.
	ErrStoreUnavailable = errors.New("article store unavailable")

	// ErrSchemaMismatch is returned when a query needs a column the live
	// table does not have.
	ErrSchemaMismatch = errors.New("article table schema mismatch")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func missingColumn(column string) error {
	return fmt.Errorf("column %q: %w", column, ErrSchemaMismatch)
}
