package repomanager

import (
	"context"
	"database/sql"

	"github.com/wikimaint/adminwatch/internal/dbx"
	"github.com/wikimaint/adminwatch/internal/repositories/foldedrevs"
	"github.com/wikimaint/adminwatch/internal/repositories/notifications"
	"github.com/wikimaint/adminwatch/internal/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// constructors serve both auto-commit calls (*sql.DB) and per-user
// transactions (*sql.Tx).
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Notifications(db dbx.DBTX) notifications.Repository
	FoldedRevs(db dbx.DBTX) foldedrevs.Repository
}
