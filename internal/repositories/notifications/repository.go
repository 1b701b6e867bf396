package notifications

import (
	"context"

	"github.com/wikimaint/adminwatch/internal/models"
)

// Repository is the append-only notification log. There is no update or
// delete surface; rows disappear only when their user is deleted.
type Repository interface {
	// Append inserts the notification and returns its assigned id.
	// When another notification already holds the same triggering revision
	// it returns common.ErrDuplicateTrigger; callers treat that as a
	// successful no-op.
	Append(ctx context.Context, note *models.Notification) (int64, error)

	// GetByTrigger returns the notification tied to the given triggering
	// revision, or common.ErrNotFound when the trigger is free.
	GetByTrigger(ctx context.Context, revID int64) (*models.Notification, error)

	// ListByUser returns the user's notifications in insertion order.
	ListByUser(ctx context.Context, userID int64) ([]*models.Notification, error)
}
