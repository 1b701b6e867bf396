package models

import (
	"fmt"
	"time"

	"github.com/wikimaint/adminwatch/internal/common"
)

// EventKind distinguishes edits from logged actions in the activity feed.
type EventKind string

const (
	EventRevision EventKind = "revision"
	EventLog      EventKind = "log"
)

// Event is one revision or log entry from the upstream activity feed. The
// feed is replayable and at-least-once; the evaluator deduplicates by ID.
type Event struct {
	UserID    int64     `json:"user_id"`
	ID        int64     `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Namespace int64     `json:"namespace"`
}

// Validate reports ErrConstraintViolation for events the evaluator must
// skip: unknown kind, missing id or missing timestamp.
func (e *Event) Validate() error {
	if e.Kind != EventRevision && e.Kind != EventLog {
		return fmt.Errorf("%w: unknown event kind %q", common.ErrConstraintViolation, e.Kind)
	}
	if e.UserID <= 0 {
		return fmt.Errorf("%w: missing user id", common.ErrConstraintViolation)
	}
	if e.ID <= 0 {
		return fmt.Errorf("%w: missing event id", common.ErrConstraintViolation)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", common.ErrConstraintViolation)
	}
	return nil
}

// Newer reports whether the event should advance a stored (id, timestamp)
// pair: a later timestamp wins, ties are broken by the larger id.
func (e *Event) Newer(storedID *int64, storedTS *time.Time) bool {
	if storedTS == nil {
		return true
	}
	if e.Timestamp.After(*storedTS) {
		return true
	}
	return e.Timestamp.Equal(*storedTS) && storedID != nil && e.ID > *storedID
}
