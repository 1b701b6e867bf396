package foldedrevs

import "context"

// Repository is the ledger of revision ids already folded into a user's
// counters. It is what keeps a replayed event batch from double-counting.
type Repository interface {
	// MarkFolded records the revision as folded and reports whether it was
	// newly recorded. false means the revision was folded by an earlier run
	// and the caller must treat the event as a no-op.
	MarkFolded(ctx context.Context, revID, userID int64) (bool, error)
}
