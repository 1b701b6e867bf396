package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wikimaint/adminwatch/internal/models"
)

// userPayload is the wire form of a user row. Field names follow the
// persisted schema.
type userPayload struct {
	UserID           int64      `json:"user_id"`
	UserName         string     `json:"user_name"`
	LastRevID        *int64     `json:"last_rev_id,omitempty"`
	LastRevTimestamp *time.Time `json:"last_rev_timestamp,omitempty"`
	LastLogID        *int64     `json:"last_log_id,omitempty"`
	LastLogTimestamp *time.Time `json:"last_log_timestamp,omitempty"`
	PolicyEditcount  int64      `json:"policy_editcount"`
	DesysopTimestamp *time.Time `json:"desysop_timestamp,omitempty"`
	RiskEditcount    int64      `json:"risk_editcount"`
	Sysop            bool       `json:"sysop"`
	Bot              bool       `json:"bot"`
	Bureaucrat       bool       `json:"bureaucrat"`
	LastUpdated      time.Time  `json:"last_updated"`
}

func toUserPayload(u *models.User) *userPayload {
	return &userPayload{
		UserID:           u.ID,
		UserName:         u.Name,
		LastRevID:        u.LastRevID,
		LastRevTimestamp: u.LastRevTimestamp,
		LastLogID:        u.LastLogID,
		LastLogTimestamp: u.LastLogTimestamp,
		PolicyEditcount:  u.PolicyEditcount,
		DesysopTimestamp: u.DesysopTimestamp,
		RiskEditcount:    u.RiskEditcount,
		Sysop:            u.Sysop,
		Bot:              u.Bot,
		Bureaucrat:       u.Bureaucrat,
		LastUpdated:      u.LastUpdated,
	}
}

func (p *userPayload) toModel() *models.User {
	return &models.User{
		ID:               p.UserID,
		Name:             p.UserName,
		LastRevID:        p.LastRevID,
		LastRevTimestamp: p.LastRevTimestamp,
		LastLogID:        p.LastLogID,
		LastLogTimestamp: p.LastLogTimestamp,
		PolicyEditcount:  p.PolicyEditcount,
		DesysopTimestamp: p.DesysopTimestamp,
		RiskEditcount:    p.RiskEditcount,
		Sysop:            p.Sysop,
		Bot:              p.Bot,
		Bureaucrat:       p.Bureaucrat,
		LastUpdated:      p.LastUpdated,
	}
}

type notificationPayload struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Type         int16     `json:"note_type"`
	TypeName     string    `json:"note_type_name"`
	RevID        int64     `json:"rev_id"`
	RevTimestamp time.Time `json:"rev_timestamp"`
}

func toNotificationPayload(n *models.Notification) *notificationPayload {
	return &notificationPayload{
		ID:           n.ID,
		UserID:       n.UserID,
		Type:         int16(n.Type),
		TypeName:     n.Type.String(),
		RevID:        n.RevID,
		RevTimestamp: n.RevTimestamp,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
