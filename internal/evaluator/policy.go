package evaluator

import (
	"time"

	"github.com/wikimaint/adminwatch/internal/models"
)

// PolicyConfig carries the activity-policy parameters. All thresholds are
// supplied by configuration; nothing here is specific to one wiki's policy
// text.
type PolicyConfig struct {
	// InactivityThreshold is the elapsed time since the last edit or logged
	// action after which an inactivity warning is due.
	InactivityThreshold time.Duration

	// DesysopGrace is how far in the future the desysop is scheduled when a
	// warning is emitted.
	DesysopGrace time.Duration

	// RiskCeiling triggers a risk-threshold notification when the risk
	// counter crosses it upward.
	RiskCeiling int64

	// CountWindow bounds the counting rule: only revisions no older than the
	// window at evaluation time are folded into the counters.
	CountWindow time.Duration

	// Namespaces restricts which edits qualify for counting. Empty means
	// every namespace qualifies.
	Namespaces []int64
}

func (c PolicyConfig) namespaceQualifies(ns int64) bool {
	if len(c.Namespaces) == 0 {
		return true
	}
	for _, allowed := range c.Namespaces {
		if ns == allowed {
			return true
		}
	}
	return false
}

// qualifies reports whether a revision event counts toward the policy and
// risk counters.
func (c PolicyConfig) qualifies(e *models.Event, now time.Time) bool {
	if e.Kind != models.EventRevision {
		return false
	}
	if !c.namespaceQualifies(e.Namespace) {
		return false
	}
	if c.CountWindow > 0 && e.Timestamp.Before(now.Add(-c.CountWindow)) {
		return false
	}
	return true
}
