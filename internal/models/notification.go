package models

import "time"

// NoteType identifies which policy fired. The codes follow the historical
// numbering of the notification schema.
type NoteType int16

const (
	NoteInactivityWarning NoteType = 11
	NoteRiskThreshold     NoteType = 20
)

func (t NoteType) String() string {
	switch t {
	case NoteInactivityWarning:
		return "inactivity-warning"
	case NoteRiskThreshold:
		return "risk-threshold"
	}
	return "unknown"
}

// Notification is one emitted policy event, append-only. RevID is the
// triggering revision: at most one notification may ever be tied to the same
// revision, which is what prevents duplicate emission for the same edit.
type Notification struct {
	ID           int64
	UserID       int64
	Type         NoteType
	RevID        int64
	RevTimestamp time.Time
}
