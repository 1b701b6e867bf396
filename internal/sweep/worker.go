// Package sweep runs the scheduled inactivity pass: it re-evaluates every
// observed sysop even when no new events arrive for them, and retires rows
// that drop out of the refresh.
package sweep

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/wikimaint/adminwatch/internal/logging"
	"github.com/wikimaint/adminwatch/internal/models"
	"github.com/wikimaint/adminwatch/internal/repositories/repomanager"
)

// UserEvaluator re-runs policy evaluation for a single user. The sweep
// always calls it with an empty event batch.
type UserEvaluator interface {
	Evaluate(ctx context.Context, userID int64, events []models.Event) ([]*models.Notification, error)
}

type Worker struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	eval     UserEvaluator
	interval time.Duration
	log      logging.Logger
	now      func() time.Time
}

func New(db *sql.DB, rm repomanager.RepositoryManager, eval UserEvaluator, interval time.Duration, log logging.Logger) *Worker {
	return &Worker{
		db:       db,
		rm:       rm,
		eval:     eval,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run blocks, sweeping every interval until ctx is cancelled. Cancellation
// mid-sweep loses at most one partial pass; the next pass recomputes the
// same state, so nothing is missed.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info(ctx, "inactivity sweep scheduled", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info(ctx, "inactivity sweep stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over every observed sysop, active or not: each one
// is evaluated with an empty event batch, which refreshes the row and raises
// inactivity warnings that come due without any new events. The trailing
// clear then retires sysop rows not refreshed by the pass. A completed pass
// stamps every sysop row at or after its start time, so the clear can never
// touch a row it just evaluated.
func (w *Worker) Sweep(ctx context.Context) {
	log := w.log.With("run_id", uuid.NewString())
	passStart := w.now().UTC()

	sysops, err := w.rm.Users(w.db).ListSysops(ctx)
	if err != nil {
		log.Error(ctx, "listing sysops failed", "error", err)
		return
	}

	var warned int
	for _, u := range sysops {
		notes, err := w.eval.Evaluate(ctx, u.ID, nil)
		if err != nil {
			log.Error(ctx, "sweep evaluation failed", "user_id", u.ID, "error", err)
			return
		}
		warned += len(notes)
	}

	cleared, err := w.rm.Users(w.db).ClearStaleSysops(ctx, passStart)
	if err != nil {
		log.Error(ctx, "clearing stale sysops failed", "error", err)
		return
	}

	log.Info(ctx, "sweep finished",
		"sysops", len(sysops), "notifications", warned, "cleared", cleared)
}
