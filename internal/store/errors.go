package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalid is returned when a value violates a column or reference constraint.
	ErrInvalid = errors.New("invalid value")
)

const (
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
	pqNotNullViolation    = "23502"
	pqForeignKeyViolation = "23503"
)

// translateError maps driver constraint errors to the store sentinels.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return ErrConflict
	case pqCheckViolation, pqNotNullViolation, pqForeignKeyViolation:
		return ErrInvalid
	}
	return err
}
