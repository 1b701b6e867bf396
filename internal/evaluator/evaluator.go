// Package evaluator recomputes user activity rows from incoming event
// batches and decides when a policy notification must be raised.
package evaluator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wikimaint/adminwatch/internal/common"
	"github.com/wikimaint/adminwatch/internal/dbx"
	"github.com/wikimaint/adminwatch/internal/logging"
	"github.com/wikimaint/adminwatch/internal/models"
	"github.com/wikimaint/adminwatch/internal/repositories/foldedrevs"
	"github.com/wikimaint/adminwatch/internal/repositories/notifications"
	"github.com/wikimaint/adminwatch/internal/repositories/repomanager"
	"github.com/wikimaint/adminwatch/internal/repositories/users"
)

// Evaluator applies event batches to the activity store. Each user is
// processed in its own transaction: the row update and any notification
// appends commit or roll back together, so a crash can never leave counters
// advanced without the matching notification.
type Evaluator struct {
	db  *sql.DB
	rm  repomanager.RepositoryManager
	cfg PolicyConfig
	log logging.Logger

	// now is a seam for tests.
	now func() time.Time
}

func New(db *sql.DB, rm repomanager.RepositoryManager, cfg PolicyConfig, log logging.Logger) *Evaluator {
	return &Evaluator{db: db, rm: rm, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// ProcessBatch groups a mixed batch by user and evaluates each user
// independently. Storage failures abort the whole batch; the caller retries
// it wholesale on the next scheduled run, which is safe because
// recomputation is idempotent.
func (e *Evaluator) ProcessBatch(ctx context.Context, events []models.Event) ([]*models.Notification, error) {
	batchID := uuid.NewString()
	log := e.log.With("batch_id", batchID)

	byUser := make(map[int64][]models.Event)
	var order []int64
	for _, ev := range events {
		if ev.UserID <= 0 {
			log.Warn(ctx, "skipping event without user id", "event_id", ev.ID)
			continue
		}
		if _, seen := byUser[ev.UserID]; !seen {
			order = append(order, ev.UserID)
		}
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}

	var emitted []*models.Notification
	for _, userID := range order {
		notes, err := e.Evaluate(ctx, userID, byUser[userID])
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, notes...)
	}
	log.Info(ctx, "batch processed", "events", len(events), "users", len(order), "notifications", len(emitted))
	return emitted, nil
}

// Evaluate recomputes one user's row from the given events and appends any
// triggered notifications, all inside a single transaction scoped to that
// user. An unknown user is created with zeroed counters rather than failing.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64, events []models.Event) ([]*models.Notification, error) {
	var emitted []*models.Notification

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := e.rm.Users(tx)
		notesRepo := e.rm.Notifications(tx)
		foldedRepo := e.rm.FoldedRevs(tx)

		now := e.now()

		user, err := usersRepo.GetForUpdate(ctx, userID)
		if err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}
			// First sight of this account: start from a zeroed row.
			user = &models.User{ID: userID}
		}

		notes, err := e.applyEvents(ctx, foldedRepo, user, events, now)
		if err != nil {
			return err
		}

		if note := e.checkInactivity(ctx, user, now); note != nil {
			notes = append(notes, note)
		}

		user.Touch(now)
		if err := usersRepo.Upsert(ctx, user); err != nil {
			return err
		}

		for _, note := range notes {
			if _, err := notesRepo.Append(ctx, note); err != nil {
				if errors.Is(err, common.ErrDuplicateTrigger) {
					if err := e.resolveDuplicate(ctx, usersRepo, notesRepo, user, note); err != nil {
						return err
					}
					continue
				}
				return err
			}
			emitted = append(emitted, note)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: user %d: %v", common.ErrStoreUnavailable, userID, err)
	}
	return emitted, nil
}

// resolveDuplicate handles a notification append lost to the trigger's
// uniqueness constraint. Losing to a note of the same type means a
// concurrent run already emitted it and the loss is a no-op. Losing an
// inactivity warning to a note of a different type means the warning can
// never be logged for this trigger, so the desysop it would have announced
// must not stay scheduled.
func (e *Evaluator) resolveDuplicate(ctx context.Context, usersRepo users.Repository, notesRepo notifications.Repository, user *models.User, note *models.Notification) error {
	if note.Type == models.NoteInactivityWarning && user.DesysopTimestamp != nil {
		existing, err := notesRepo.GetByTrigger(ctx, note.RevID)
		if err != nil {
			return err
		}
		if existing.Type != note.Type {
			user.DesysopTimestamp = nil
			if err := usersRepo.Upsert(ctx, user); err != nil {
				return err
			}
			e.log.Warn(ctx, "inactivity warning trigger already taken, desysop not scheduled",
				"user_id", user.ID, "rev_id", note.RevID, "existing_type", existing.Type.String())
			return nil
		}
	}
	e.log.Info(ctx, "duplicate trigger, notification skipped",
		"user_id", user.ID, "rev_id", note.RevID, "note_type", note.Type.String())
	return nil
}

// applyEvents folds the batch into the user's row: monotonic advance of the
// last-seen fields, additive counter updates, and risk-ceiling detection.
// Malformed events are logged and skipped; already-folded revisions are
// no-ops, which is what makes replaying a batch idempotent.
func (e *Evaluator) applyEvents(ctx context.Context, folded foldedrevs.Repository, user *models.User, events []models.Event, now time.Time) ([]*models.Notification, error) {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var notes []*models.Notification
	for i := range sorted {
		ev := &sorted[i]
		if err := ev.Validate(); err != nil {
			e.log.Warn(ctx, "skipping malformed event", "user_id", user.ID, "event_id", ev.ID, "error", err)
			continue
		}
		if ev.UserID != user.ID {
			e.log.Warn(ctx, "skipping event for wrong user", "user_id", user.ID, "event_user_id", ev.UserID)
			continue
		}

		switch ev.Kind {
		case models.EventLog:
			if ev.Newer(user.LastLogID, user.LastLogTimestamp) {
				id, ts := ev.ID, ev.Timestamp
				user.LastLogID = &id
				user.LastLogTimestamp = &ts
			}

		case models.EventRevision:
			newlyFolded, err := folded.MarkFolded(ctx, ev.ID, user.ID)
			if err != nil {
				return nil, err
			}
			if !newlyFolded {
				e.log.Debug(ctx, "revision already folded, replay ignored", "user_id", user.ID, "rev_id", ev.ID)
				continue
			}

			if ev.Newer(user.LastRevID, user.LastRevTimestamp) {
				id, ts := ev.ID, ev.Timestamp
				user.LastRevID = &id
				user.LastRevTimestamp = &ts
			}

			// Policy counters are only meaningful for observed sysops;
			// ordinary and bot accounts keep zeroed counters.
			if user.Sysop && !user.Bot && e.cfg.qualifies(ev, now) {
				user.PolicyEditcount++
				user.RiskEditcount++
				if e.cfg.RiskCeiling > 0 && user.RiskEditcount == e.cfg.RiskCeiling {
					// This exact edit crossed the ceiling.
					notes = append(notes, &models.Notification{
						UserID:       user.ID,
						Type:         models.NoteRiskThreshold,
						RevID:        ev.ID,
						RevTimestamp: ev.Timestamp,
					})
				}
			}
		}
	}
	return notes, nil
}

// checkInactivity applies the inactivity policy to the refreshed row. The
// triggering revision is the stored last-activity event, so a rerun proposes
// the same trigger and the log's uniqueness constraint suppresses it even if
// the desysop timestamp were ever cleared by hand.
func (e *Evaluator) checkInactivity(ctx context.Context, user *models.User, now time.Time) *models.Notification {
	if !user.Sysop || user.Bot || user.DesysopTimestamp != nil {
		return nil
	}
	lastID, lastTS := user.LastActivity()
	if lastTS == nil {
		// Nothing recorded yet: no trigger to tie a notification to. The
		// user is picked up as soon as any activity event arrives.
		e.log.Debug(ctx, "inactivity check skipped, no recorded activity", "user_id", user.ID)
		return nil
	}
	if now.Sub(*lastTS) <= e.cfg.InactivityThreshold {
		return nil
	}

	due := now.Add(e.cfg.DesysopGrace)
	user.DesysopTimestamp = &due
	return &models.Notification{
		UserID:       user.ID,
		Type:         models.NoteInactivityWarning,
		RevID:        lastID,
		RevTimestamp: *lastTS,
	}
}
