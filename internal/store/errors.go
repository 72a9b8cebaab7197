package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record with the same key already exists.
	ErrConflict = errors.New("already exists")
)

const (
	pqUniqueViolation     = "unique_violation"
	pqForeignKeyViolation = "foreign_key_violation"
)

// pqErrorName returns the condition name of a Postgres error, or "".
func pqErrorName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name()
	}
	return ""
}
