package repo

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a queried record does not exist
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with a unique constraint
var ErrDuplicate = errors.New("duplicate record")

// isUniqueViolation reports whether err is a Postgres unique-constraint error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
