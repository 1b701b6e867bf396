// Package foldedrevs provides the PostgreSQL-backed folded-revision ledger.
package foldedrevs

import (
	"context"
	"fmt"

	"github.com/wikimaint/adminwatch/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// MarkFolded is an atomic conditional insert: the primary key on rev_id makes
// the first writer win and everyone after see zero rows affected.
func (r *PostgresRepository) MarkFolded(ctx context.Context, revID, userID int64) (bool, error) {
	query := `
		INSERT INTO folded_revisions (rev_id, rev_user_id)
		VALUES ($1, $2)
		ON CONFLICT (rev_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, revID, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
