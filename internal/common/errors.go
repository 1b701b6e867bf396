// Package common defines shared sentinel errors used across the store,
// evaluator and API layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound         = errors.New("not found")
	ErrDuplicateTrigger = errors.New("duplicate triggering revision")

	// Evaluator-level errors. A malformed event is logged and skipped;
	// the rest of the batch continues.
	ErrConstraintViolation = errors.New("constraint violation")

	// Transport/storage failure: the whole batch is aborted and retried
	// wholesale on the next scheduled run.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
