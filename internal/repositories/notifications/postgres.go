// Package notifications provides the PostgreSQL-backed notification log.
package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wikimaint/adminwatch/internal/common"
	"github.com/wikimaint/adminwatch/internal/dbx"
	"github.com/wikimaint/adminwatch/internal/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts one notification row. ON CONFLICT DO NOTHING keeps a losing
// insert from aborting the surrounding transaction; zero returned rows means
// the triggering revision is already taken and the caller lost the race.
func (r *PostgresRepository) Append(ctx context.Context, note *models.Notification) (int64, error) {
	query := `
		INSERT INTO notifications (note_user_id, note_type, note_rev_id, note_rev_timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (note_rev_id) DO NOTHING
		RETURNING note_id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		note.UserID, note.Type, note.RevID, note.RevTimestamp).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrDuplicateTrigger
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	note.ID = id
	return id, nil
}

// GetByTrigger returns the notification holding the given triggering
// revision, or common.ErrNotFound. Callers that lose an Append use it to
// learn which note type took the trigger.
func (r *PostgresRepository) GetByTrigger(ctx context.Context, revID int64) (*models.Notification, error) {
	query := `
		SELECT note_id, note_user_id, note_type, note_rev_id, note_rev_timestamp
		FROM notifications
		WHERE note_rev_id = $1
	`
	var note models.Notification
	err := r.db.QueryRowContext(ctx, query, revID).
		Scan(&note.ID, &note.UserID, &note.Type, &note.RevID, &note.RevTimestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &note, nil
}

// ListByUser returns the user's notifications ordered by insertion (note_id).
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Notification, error) {
	query := `
		SELECT note_id, note_user_id, note_type, note_rev_id, note_rev_timestamp
		FROM notifications
		WHERE note_user_id = $1
		ORDER BY note_id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Notification
	for rows.Next() {
		var note models.Notification
		if err := rows.Scan(&note.ID, &note.UserID, &note.Type, &note.RevID, &note.RevTimestamp); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, &note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
