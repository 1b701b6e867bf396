// Package api exposes the activity store and notification log over HTTP:
// event ingestion for the upstream feed and read endpoints for downstream
// consumers that deliver messages or execute policy actions.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wikimaint/adminwatch/internal/common"
	"github.com/wikimaint/adminwatch/internal/config"
	"github.com/wikimaint/adminwatch/internal/logging"
	"github.com/wikimaint/adminwatch/internal/models"
	"github.com/wikimaint/adminwatch/internal/repositories/repomanager"
)

// BatchProcessor is what the ingest endpoint needs from the evaluator.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []models.Event) ([]*models.Notification, error)
}

type Handlers struct {
	db   *sql.DB
	rm   repomanager.RepositoryManager
	eval BatchProcessor
	log  logging.Logger
}

const maxEventBatchBytes = 4 << 20

func NewRouter(cfg *config.Config, db *sql.DB, rm repomanager.RepositoryManager, eval BatchProcessor, log logging.Logger) http.Handler {
	h := &Handlers{db: db, rm: rm, eval: eval, log: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(log))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))
	}

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.SecretKey != "" {
			r.Use(bearerAuth([]byte(cfg.SecretKey), log))
		}
		r.Put("/users/{id}", h.PutUser)
		r.Get("/users/{id}", h.GetUser)
		r.Delete("/users/{id}", h.DeleteUser)
		r.Get("/users/{id}/notifications", h.ListNotifications)
		r.Post("/events", h.PostEvents)
	})

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func userID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// PutUser is the observation-entry path: callers submit the complete row
// (an account became sysop, was renamed, changed flags).
func (h *Handlers) PutUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var payload userPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if payload.UserID != 0 && payload.UserID != id {
		writeError(w, http.StatusBadRequest, "body user_id does not match path")
		return
	}
	payload.UserID = id
	if payload.UserName == "" {
		writeError(w, http.StatusBadRequest, "user_name is required")
		return
	}
	if (payload.LastRevID == nil) != (payload.LastRevTimestamp == nil) ||
		(payload.LastLogID == nil) != (payload.LastLogTimestamp == nil) {
		writeError(w, http.StatusBadRequest, "id/timestamp pairs must be set together")
		return
	}
	if !payload.LastUpdated.IsZero() &&
		((payload.LastRevTimestamp != nil && payload.LastUpdated.Before(*payload.LastRevTimestamp)) ||
			(payload.LastLogTimestamp != nil && payload.LastUpdated.Before(*payload.LastLogTimestamp))) {
		writeError(w, http.StatusBadRequest, "last_updated must not precede the activity timestamps")
		return
	}

	user := payload.toModel()
	if user.LastUpdated.IsZero() {
		user.Touch(time.Now().UTC())
	}

	if err := h.rm.Users(h.db).Upsert(r.Context(), user); err != nil {
		h.log.Error(r.Context(), "user upsert failed", "user_id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.rm.Users(h.db).Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error(r.Context(), "user lookup failed", "user_id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(user))
}

// DeleteUser removes an account from observation; its notifications go with
// it by cascade.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.rm.Users(h.db).Delete(r.Context(), id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error(r.Context(), "user delete failed", "user_id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	notes, err := h.rm.Notifications(h.db).ListByUser(r.Context(), id)
	if err != nil {
		h.log.Error(r.Context(), "notification list failed", "user_id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	payloads := make([]*notificationPayload, 0, len(notes))
	for _, n := range notes {
		payloads = append(payloads, toNotificationPayload(n))
	}
	writeJSON(w, http.StatusOK, payloads)
}

// PostEvents ingests a batch from the activity feed. The feed is
// at-least-once: replays are deduplicated downstream, so a retried POST of
// the same batch is safe.
func (h *Handlers) PostEvents(w http.ResponseWriter, r *http.Request) {
	var events []models.Event
	body := http.MaxBytesReader(w, r.Body, maxEventBatchBytes)
	if err := json.NewDecoder(body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	emitted, err := h.eval.ProcessBatch(r.Context(), events)
	if err != nil {
		h.log.Error(r.Context(), "batch processing failed", "events", len(events), "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry the batch")
		return
	}

	payloads := make([]*notificationPayload, 0, len(emitted))
	for _, n := range emitted {
		payloads = append(payloads, toNotificationPayload(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        len(events),
		"notifications": payloads,
	})
}
