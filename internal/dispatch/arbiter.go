package dispatch

import (
	"context"
	"errors"

	"github.com/phd59fr/mailbridge/internal/logging"
	"github.com/phd59fr/mailbridge/internal/store"
)

// Outcome is the definitive result of an acknowledgment attempt. The
// acting user always gets one of these, never silence.
type Outcome int

const (
	// OutcomeHandled means this attempt won the transition.
	OutcomeHandled Outcome = iota
	// OutcomeAlreadyHandled means another attempt got there first. This is
	// an expected result of concurrent acknowledgment, not a failure.
	OutcomeAlreadyHandled
	// OutcomeUnknown means no delivery matches the given id.
	OutcomeUnknown
)

// Arbiter resolves concurrent "mark as handled" races. The store's
// conditional update guarantees at most one winner per delivery.
type Arbiter struct {
	store *store.Store
}

// NewArbiter creates an arbiter backed by the given store.
func NewArbiter(st *store.Store) *Arbiter {
	return &Arbiter{store: st}
}

// Acknowledge attempts the pending-to-handled transition for the delivery
// with the given platform delivery id, recording the acting user.
func (a *Arbiter) Acknowledge(ctx context.Context, deliveryID, actor int64) (Outcome, error) {
	err := a.store.MarkHandled(ctx, deliveryID, actor)
	switch {
	case err == nil:
		logging.Log.Infof("Delivery %d handled by user %d", deliveryID, actor)
		return OutcomeHandled, nil
	case errors.Is(err, store.ErrAlreadyHandled):
		return OutcomeAlreadyHandled, nil
	case errors.Is(err, store.ErrNotFound):
		return OutcomeUnknown, nil
	default:
		return OutcomeUnknown, err
	}
}
