// Package users provides the PostgreSQL-backed user activity store.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const userColumns = `user_id, user_name,
		user_last_rev_id, user_last_rev_timestamp,
		user_last_log_id, user_last_log_timestamp,
		user_policy_editcount, user_desysop_timestamp, user_risk_editcount,
		user_sysop, user_bot, user_bureaucrat,
		user_last_updated_timestamp`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var (
		lastRevID, lastLogID sql.NullInt64
		lastRevTS, lastLogTS sql.NullTime
		desysopTS            sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name,
		&lastRevID, &lastRevTS,
		&lastLogID, &lastLogTS,
		&u.PolicyEditcount, &desysopTS, &u.RiskEditcount,
		&u.Sysop, &u.Bot, &u.Bureaucrat,
		&u.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if lastRevID.Valid {
		u.LastRevID = &lastRevID.Int64
		u.LastRevTimestamp = &lastRevTS.Time
	}
	if lastLogID.Valid {
		u.LastLogID = &lastLogID.Int64
		u.LastLogTimestamp = &lastLogTS.Time
	}
	if desysopTS.Valid {
		u.DesysopTimestamp = &desysopTS.Time
	}
	return u, nil
}

// Upsert writes the complete row, replacing every column of an existing user.
func (r *PostgresRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id)
		DO UPDATE SET
			user_name = EXCLUDED.user_name,
			user_last_rev_id = EXCLUDED.user_last_rev_id,
			user_last_rev_timestamp = EXCLUDED.user_last_rev_timestamp,
			user_last_log_id = EXCLUDED.user_last_log_id,
			user_last_log_timestamp = EXCLUDED.user_last_log_timestamp,
			user_policy_editcount = EXCLUDED.user_policy_editcount,
			user_desysop_timestamp = EXCLUDED.user_desysop_timestamp,
			user_risk_editcount = EXCLUDED.user_risk_editcount,
			user_sysop = EXCLUDED.user_sysop,
			user_bot = EXCLUDED.user_bot,
			user_bureaucrat = EXCLUDED.user_bureaucrat,
			user_last_updated_timestamp = EXCLUDED.user_last_updated_timestamp
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name,
		user.LastRevID, user.LastRevTimestamp,
		user.LastLogID, user.LastLogTimestamp,
		user.PolicyEditcount, user.DesysopTimestamp, user.RiskEditcount,
		user.Sysop, user.Bot, user.Bureaucrat,
		user.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return r.get(ctx, query, userID)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE`
	return r.get(ctx, query, userID)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_name = $1`
	return r.get(ctx, query, name)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListSysops(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE user_sysop = TRUE
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ClearStaleSysops(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE users
		SET user_sysop = FALSE, user_desysop_timestamp = NULL
		WHERE user_sysop = TRUE
		AND user_last_updated_timestamp < $1
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
