// Package models holds the persistent data model: observed users, emitted
// notifications and the incoming activity events the evaluator consumes.
package models

import "time"

// User is one observed wiki account. Rows are written whole: callers compute
// the complete row and submit it, so readers never see a user with stale
// activity fields next to fresh counters.
//
// LastRevID/LastRevTimestamp are both set or both nil, same for the log pair.
type User struct {
	ID   int64
	Name string

	LastRevID        *int64
	LastRevTimestamp *time.Time
	LastLogID        *int64
	LastLogTimestamp *time.Time

	// PolicyEditcount counts qualifying edits inside the policy window.
	// RiskEditcount is the stricter risk-policy counter. Both are additive;
	// only an external window rollover resets them.
	PolicyEditcount int64
	RiskEditcount   int64

	// DesysopTimestamp is set once a desysop for inactivity has been
	// scheduled; nil otherwise.
	DesysopTimestamp *time.Time

	Sysop      bool
	Bot        bool
	Bureaucrat bool

	// LastUpdated is set on every recomputation and is always at or after
	// the activity timestamps above.
	LastUpdated time.Time
}

// Touch marks the row as recomputed at now. LastUpdated must stay at or
// after both activity timestamps, so a future-dated event from a skewed
// feed clock pushes it past now rather than leaving it behind.
func (u *User) Touch(now time.Time) {
	u.LastUpdated = now
	if u.LastRevTimestamp != nil && u.LastRevTimestamp.After(u.LastUpdated) {
		u.LastUpdated = *u.LastRevTimestamp
	}
	if u.LastLogTimestamp != nil && u.LastLogTimestamp.After(u.LastUpdated) {
		u.LastUpdated = *u.LastLogTimestamp
	}
}

// LastActivity returns the id and timestamp of the most recent recorded
// activity (edit or logged action), or (0, nil) when the user has none.
func (u *User) LastActivity() (int64, *time.Time) {
	switch {
	case u.LastRevTimestamp != nil && u.LastLogTimestamp != nil:
		if u.LastLogTimestamp.After(*u.LastRevTimestamp) {
			return *u.LastLogID, u.LastLogTimestamp
		}
		return *u.LastRevID, u.LastRevTimestamp
	case u.LastRevTimestamp != nil:
		return *u.LastRevID, u.LastRevTimestamp
	case u.LastLogTimestamp != nil:
		return *u.LastLogID, u.LastLogTimestamp
	}
	return 0, nil
}
