package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres error codes the repositories recover from locally.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// conflict. Slug and tag writers treat this as retryable.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// IsUndefinedTable reports whether err means the target table does not
// exist. Tag storage may be unprovisioned; callers degrade to a no-op.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUndefinedTable
}
