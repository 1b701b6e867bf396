package users

import (
	"context"
	"time"

	"github.com/wikimaint/adminwatch/internal/models"
)

// Repository is the user activity store. Writes are whole-row and atomic;
// there are no partial-field updates.
type Repository interface {
	// Upsert inserts a new user or fully replaces the existing row by id.
	Upsert(ctx context.Context, user *models.User) error

	// Get returns the current row or common.ErrNotFound.
	Get(ctx context.Context, userID int64) (*models.User, error)

	// GetForUpdate is Get with a row lock, for use inside a transaction.
	// Concurrent evaluators for the same user serialize on it.
	GetForUpdate(ctx context.Context, userID int64) (*models.User, error)

	// GetByName looks a user up by display name (renames keep the id stable).
	GetByName(ctx context.Context, name string) (*models.User, error)

	// Delete removes the user; notifications and folded revisions follow by
	// FK cascade. Returns common.ErrNotFound when no such row exists.
	Delete(ctx context.Context, userID int64) error

	// ListSysops returns every user currently flagged sysop, ordered by id.
	// The scheduled sweep re-evaluates this whole set each pass.
	ListSysops(ctx context.Context) ([]*models.User, error)

	// ClearStaleSysops drops the sysop flag and any pending desysop timestamp
	// for users not refreshed since before. Returns the number of rows changed.
	ClearStaleSysops(ctx context.Context, before time.Time) (int64, error)
}
