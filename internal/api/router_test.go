package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikimaint/adminwatch/internal/auth"
	"github.com/wikimaint/adminwatch/internal/common"
	"github.com/wikimaint/adminwatch/internal/config"
	"github.com/wikimaint/adminwatch/internal/dbx"
	"github.com/wikimaint/adminwatch/internal/logging"
	"github.com/wikimaint/adminwatch/internal/models"
	"github.com/wikimaint/adminwatch/internal/repositories/foldedrevs"
	"github.com/wikimaint/adminwatch/internal/repositories/notifications"
	"github.com/wikimaint/adminwatch/internal/repositories/users"
)

type memUsersRepo struct {
	rows map[int64]*models.User
	err  error
}

func (m *memUsersRepo) Upsert(ctx context.Context, u *models.User) error {
	if m.err != nil {
		return m.err
	}
	c := *u
	m.rows[u.ID] = &c
	return nil
}

func (m *memUsersRepo) Get(ctx context.Context, id int64) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUsersRepo) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	return m.Get(ctx, id)
}

func (m *memUsersRepo) GetByName(ctx context.Context, name string) (*models.User, error) {
	for _, u := range m.rows {
		if u.Name == name {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memUsersRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memUsersRepo) ListSysops(ctx context.Context) ([]*models.User, error) {
	return nil, nil
}

func (m *memUsersRepo) ClearStaleSysops(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type memNotesRepo struct {
	notes []*models.Notification
	err   error
}

func (m *memNotesRepo) Append(ctx context.Context, n *models.Notification) (int64, error) {
	m.notes = append(m.notes, n)
	return int64(len(m.notes)), nil
}

func (m *memNotesRepo) GetByTrigger(ctx context.Context, revID int64) (*models.Notification, error) {
	for _, n := range m.notes {
		if n.RevID == revID {
			return n, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memNotesRepo) ListByUser(ctx context.Context, id int64) ([]*models.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Notification
	for _, n := range m.notes {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

type memRepoManager struct {
	users *memUsersRepo
	notes *memNotesRepo
}

func (m *memRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *memRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *memRepoManager) Notifications(db dbx.DBTX) notifications.Repository  { return m.notes }
func (m *memRepoManager) FoldedRevs(db dbx.DBTX) foldedrevs.Repository        { return nil }

type fakeEval struct {
	emitted []*models.Notification
	err     error
	got     []models.Event
}

func (f *fakeEval) ProcessBatch(ctx context.Context, events []models.Event) ([]*models.Notification, error) {
	f.got = events
	if f.err != nil {
		return nil, f.err
	}
	return f.emitted, nil
}

type testServer struct {
	router http.Handler
	rm     *memRepoManager
	eval   *fakeEval
	mock   sqlmock.Sqlmock
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rm := &memRepoManager{
		users: &memUsersRepo{rows: make(map[int64]*models.User)},
		notes: &memNotesRepo{},
	}
	eval := &fakeEval{}
	log := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	return &testServer{
		router: NewRouter(cfg, db, rm, eval, log),
		rm:     rm,
		eval:   eval,
		mock:   mock,
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth_OK(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.mock.ExpectPing()

	w := doJSON(t, s.router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_Degraded(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.mock.ExpectPing().WillReturnError(errors.New("down"))

	w := doJSON(t, s.router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPutUser(t *testing.T) {
	s := newTestServer(t, &config.Config{})

	w := doJSON(t, s.router, http.MethodPut, "/api/v1/users/7", map[string]any{
		"user_name": "Example",
		"sysop":     true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored := s.rm.users.rows[7]
	require.NotNil(t, stored)
	assert.Equal(t, "Example", stored.Name)
	assert.True(t, stored.Sysop)
	assert.False(t, stored.LastUpdated.IsZero())
}

func TestPutUser_Invalid(t *testing.T) {
	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{name: "bad id", path: "/api/v1/users/abc", body: map[string]any{"user_name": "X"}},
		{name: "missing name", path: "/api/v1/users/7", body: map[string]any{}},
		{name: "id mismatch", path: "/api/v1/users/7", body: map[string]any{"user_id": 8, "user_name": "X"}},
		{
			name: "unpaired rev fields",
			path: "/api/v1/users/7",
			body: map[string]any{"user_name": "X", "last_rev_id": 5},
		},
		{
			name: "last_updated behind activity",
			path: "/api/v1/users/7",
			body: map[string]any{
				"user_name":          "X",
				"last_rev_id":        5,
				"last_rev_timestamp": time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
				"last_updated":       time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &config.Config{})
			w := doJSON(t, s.router, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPutUser_DefaultsLastUpdatedPastActivity(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	future := time.Now().UTC().Add(2 * time.Hour)

	w := doJSON(t, s.router, http.MethodPut, "/api/v1/users/7", map[string]any{
		"user_name":          "Example",
		"last_rev_id":        5,
		"last_rev_timestamp": future,
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored := s.rm.users.rows[7]
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastRevTimestamp)
	assert.False(t, stored.LastUpdated.Before(*stored.LastRevTimestamp))
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.rm.users.rows[7] = &models.User{ID: 7, Name: "Example", LastUpdated: time.Now().UTC()}

	w := doJSON(t, s.router, http.MethodGet, "/api/v1/users/7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got userPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "Example", got.UserName)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	w := doJSON(t, s.router, http.MethodGet, "/api/v1/users/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.rm.users.rows[7] = &models.User{ID: 7, Name: "Example"}

	w := doJSON(t, s.router, http.MethodDelete, "/api/v1/users/7", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.rm.users.rows)

	w = doJSON(t, s.router, http.MethodDelete, "/api/v1/users/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNotifications(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.rm.notes.notes = []*models.Notification{
		{ID: 1, UserID: 7, Type: models.NoteInactivityWarning, RevID: 100, RevTimestamp: time.Now().UTC()},
		{ID: 2, UserID: 8, Type: models.NoteRiskThreshold, RevID: 200, RevTimestamp: time.Now().UTC()},
	}

	w := doJSON(t, s.router, http.MethodGet, "/api/v1/users/7/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []*notificationPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "inactivity-warning", got[0].TypeName)
}

func TestPostEvents(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.eval.emitted = []*models.Notification{
		{ID: 1, UserID: 7, Type: models.NoteRiskThreshold, RevID: 100, RevTimestamp: time.Now().UTC()},
	}

	w := doJSON(t, s.router, http.MethodPost, "/api/v1/events", []map[string]any{
		{"user_id": 7, "id": 100, "kind": "revision", "timestamp": time.Now().UTC(), "namespace": 0},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, s.eval.got, 1)
	assert.Equal(t, int64(100), s.eval.got[0].ID)

	var resp struct {
		Events        int                    `json:"events"`
		Notifications []*notificationPayload `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Events)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "risk-threshold", resp.Notifications[0].TypeName)
}

func TestPostEvents_StoreUnavailable(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	s.eval.err = fmt.Errorf("%w: user 7: down", common.ErrStoreUnavailable)

	w := doJSON(t, s.router, http.MethodPost, "/api/v1/events", []map[string]any{
		{"user_id": 7, "id": 100, "kind": "revision", "timestamp": time.Now().UTC()},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBearerAuth(t *testing.T) {
	cfg := &config.Config{SecretKey: "test-secret"}
	s := newTestServer(t, cfg)
	s.rm.users.rows[7] = &models.User{ID: 7, Name: "Example"}

	// No token.
	w := doJSON(t, s.router, http.MethodGet, "/api/v1/users/7", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Bad token.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/7", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	token, err := auth.GenerateToken("test", []byte(cfg.SecretKey), time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/7", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	s.mock.ExpectPing()
	w = doJSON(t, s.router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
