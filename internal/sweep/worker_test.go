package sweep

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikimaint/adminwatch/internal/dbx"
	"github.com/wikimaint/adminwatch/internal/logging"
	"github.com/wikimaint/adminwatch/internal/models"
	"github.com/wikimaint/adminwatch/internal/repositories/foldedrevs"
	"github.com/wikimaint/adminwatch/internal/repositories/notifications"
	"github.com/wikimaint/adminwatch/internal/repositories/users"
)

var sweepNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type sweepUsersRepo struct {
	users.Repository

	rows    map[int64]*models.User
	listErr error

	clearBefore time.Time
	clearErr    error
	clearCalled bool
}

func newSweepUsersRepo(rows ...*models.User) *sweepUsersRepo {
	r := &sweepUsersRepo{rows: make(map[int64]*models.User)}
	for _, u := range rows {
		r.rows[u.ID] = u
	}
	return r
}

func (r *sweepUsersRepo) ListSysops(ctx context.Context) ([]*models.User, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.User
	for _, u := range r.rows {
		if u.Sysop {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *sweepUsersRepo) ClearStaleSysops(ctx context.Context, before time.Time) (int64, error) {
	r.clearCalled = true
	r.clearBefore = before
	if r.clearErr != nil {
		return 0, r.clearErr
	}
	var n int64
	for _, u := range r.rows {
		if u.Sysop && u.LastUpdated.Before(before) {
			u.Sysop = false
			u.DesysopTimestamp = nil
			n++
		}
	}
	return n, nil
}

type sweepRepoManager struct {
	users *sweepUsersRepo
}

func (m *sweepRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *sweepRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *sweepRepoManager) Notifications(db dbx.DBTX) notifications.Repository  { return nil }
func (m *sweepRepoManager) FoldedRevs(db dbx.DBTX) foldedrevs.Repository        { return nil }

// recordingEval refreshes the row like the real evaluator does: every
// evaluated user gets a fresh LastUpdated even with no events.
type recordingEval struct {
	repo      *sweepUsersRepo
	evaluated []int64
	notes     map[int64][]*models.Notification
	failFor   int64
}

func (e *recordingEval) Evaluate(ctx context.Context, userID int64, events []models.Event) ([]*models.Notification, error) {
	if e.failFor != 0 && userID == e.failFor {
		return nil, errors.New("tx failed")
	}
	if u, ok := e.repo.rows[userID]; ok {
		u.Touch(sweepNow)
	}
	e.evaluated = append(e.evaluated, userID)
	return e.notes[userID], nil
}

func newTestWorker(repo *sweepUsersRepo, eval *recordingEval) *Worker {
	eval.repo = repo
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	w := New(nil, &sweepRepoManager{users: repo}, eval, time.Hour, log)
	w.now = func() time.Time { return sweepNow }
	return w
}

func TestSweep_EvaluatesEverySysop(t *testing.T) {
	repo := newSweepUsersRepo(
		&models.User{ID: 7, Sysop: true, LastUpdated: sweepNow.Add(-3 * time.Hour)},
		&models.User{ID: 9, Sysop: true, LastUpdated: sweepNow.Add(-3 * time.Hour)},
		&models.User{ID: 11, LastUpdated: sweepNow.Add(-3 * time.Hour)},
	)
	eval := &recordingEval{notes: map[int64][]*models.Notification{
		7: {{UserID: 7, Type: models.NoteInactivityWarning}},
	}}

	w := newTestWorker(repo, eval)
	w.Sweep(context.Background())

	assert.ElementsMatch(t, []int64{7, 9}, eval.evaluated)
	require.True(t, repo.clearCalled)
	assert.Equal(t, sweepNow, repo.clearBefore)
}

// A sysop with an old last edit but nothing due keeps the flag: the pass
// refreshes the row before the trailing clear runs.
func TestSweep_QuietSysopKeepsFlag(t *testing.T) {
	lastEdit := sweepNow.Add(-30 * 24 * time.Hour)
	revID := int64(500)
	repo := newSweepUsersRepo(&models.User{
		ID: 7, Name: "Example", Sysop: true,
		LastRevID: &revID, LastRevTimestamp: &lastEdit,
		LastUpdated: sweepNow.Add(-3 * time.Hour),
	})
	eval := &recordingEval{}

	w := newTestWorker(repo, eval)
	w.Sweep(context.Background())

	assert.True(t, repo.rows[7].Sysop)
	assert.Equal(t, sweepNow, repo.rows[7].LastUpdated)
}

func TestSweep_ListFailureSkipsPass(t *testing.T) {
	repo := newSweepUsersRepo()
	repo.listErr = errors.New("db down")
	eval := &recordingEval{}

	w := newTestWorker(repo, eval)
	w.Sweep(context.Background())

	assert.Empty(t, eval.evaluated)
	assert.False(t, repo.clearCalled)
}

func TestSweep_EvaluationFailureAbortsPass(t *testing.T) {
	repo := newSweepUsersRepo(
		&models.User{ID: 7, Sysop: true, LastUpdated: sweepNow.Add(-3 * time.Hour)},
	)
	eval := &recordingEval{failFor: 7}

	w := newTestWorker(repo, eval)
	w.Sweep(context.Background())

	// The trailing clear never runs after a failed evaluation, so an
	// unrefreshed row cannot lose its flag to the abort.
	assert.Empty(t, eval.evaluated)
	assert.False(t, repo.clearCalled)
	assert.True(t, repo.rows[7].Sysop)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := newSweepUsersRepo()
	eval := &recordingEval{repo: repo}

	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	w := New(nil, &sweepRepoManager{users: repo}, eval, 5*time.Millisecond, log)
	w.now = func() time.Time { return sweepNow }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.True(t, repo.clearCalled)
}