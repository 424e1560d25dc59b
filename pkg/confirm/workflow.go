package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helioscrm/agentgate/internal/metrics"
	"github.com/helioscrm/agentgate/internal/observability"
	"github.com/helioscrm/agentgate/pkg/dispatch"
)

// ErrNotPending is returned when resolving an invocation that is not
// awaiting confirmation, including one that was already resolved or
// swept by expiry.
var ErrNotPending = errors.New("invocation is not awaiting confirmation")

// Options configures a Workflow. Store defaults to the dispatcher's
// store; a workflow built without a dispatcher can sweep expirations
// but cannot execute approvals.
type Options struct {
	Dispatcher *dispatch.Dispatcher
	Store      dispatch.Store
	Metrics    *metrics.Metrics // optional

	// Clock overrides time.Now for tests
	Clock func() time.Time
}

// ErrNoExecutor is returned when approving without a dispatcher
var ErrNoExecutor = errors.New("workflow has no dispatcher to execute approvals")

// Workflow resolves pending confirmations against the same store the
// dispatcher writes to.
type Workflow struct {
	dispatcher *dispatch.Dispatcher
	store      dispatch.Store
	metrics    *metrics.Metrics
	clock      func() time.Time
}

// NewWorkflow creates a confirmation workflow
func NewWorkflow(opts Options) (*Workflow, error) {
	store := opts.Store
	if store == nil && opts.Dispatcher != nil {
		store = opts.Dispatcher.Store()
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Workflow{
		dispatcher: opts.Dispatcher,
		store:      store,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
	}, nil
}

// Resolve applies a reviewer's decision to a parked invocation.
// Approval executes the stored arguments and returns the execution
// result; rejection moves the invocation to DENIED. Resolving an
// invocation that is not awaiting confirmation fails with ErrNotPending
// and changes nothing.
func (w *Workflow) Resolve(ctx context.Context, invocationID, reviewer string, approved bool) (dispatch.InvocationResult, error) {
	inv, err := w.store.GetInvocation(ctx, invocationID)
	if err != nil {
		return dispatch.InvocationResult{}, err
	}
	if inv.Status != dispatch.StatusAwaitingConfirmation {
		return dispatch.InvocationResult{}, fmt.Errorf("%w: invocation %s is %s", ErrNotPending, invocationID, inv.Status)
	}
	if approved && w.dispatcher == nil {
		return dispatch.InvocationResult{}, ErrNoExecutor
	}

	now := w.clock()
	decision := dispatch.ConfirmationRejected
	if approved {
		decision = dispatch.ConfirmationApproved
	}

	if _, err := w.store.ResolvePending(ctx, invocationID, reviewer, decision, now); err != nil {
		if errors.Is(err, dispatch.ErrConfirmationResolved) {
			// Lost a race with another reviewer or the sweeper.
			return dispatch.InvocationResult{}, fmt.Errorf("%w: invocation %s", ErrNotPending, invocationID)
		}
		return dispatch.InvocationResult{}, err
	}

	if w.metrics != nil {
		w.metrics.PendingConfirmations.Dec()
		w.metrics.ConfirmationsResolvedTotal.WithLabelValues(string(decision)).Inc()
	}

	log.Info().
		Str("invocation_id", invocationID).
		Str("reviewer", reviewer).
		Bool("approved", approved).
		Msg("Confirmation resolved")

	if approved {
		return w.dispatcher.ExecuteApproved(ctx, inv, reviewer)
	}

	denied, err := w.deny(ctx, inv.ID, "reviewer:"+reviewer, "rejected by reviewer")
	if err != nil {
		return dispatch.InvocationResult{}, err
	}
	return dispatch.InvocationResult{
		Outcome:      dispatch.OutcomeDenied,
		InvocationID: denied.ID,
		Reason:       "rejected by reviewer",
	}, nil
}

// ExpireStale sweeps confirmations past their deadline and denies the
// invocations behind them. Returns the denied invocations so hosts can
// notify the sessions that were waiting on them. A reviewer resolving
// concurrently wins; the sweep skips that entry.
func (w *Workflow) ExpireStale(ctx context.Context) ([]*dispatch.Invocation, error) {
	now := w.clock()
	stale, err := w.store.ListExpiredPending(ctx, now)
	if err != nil {
		return nil, err
	}

	var expired []*dispatch.Invocation
	for _, pc := range stale {
		if _, err := w.store.ResolvePending(ctx, pc.InvocationID, "system", dispatch.ConfirmationExpired, now); err != nil {
			if errors.Is(err, dispatch.ErrConfirmationResolved) {
				continue
			}
			return expired, err
		}

		denied, err := w.deny(ctx, pc.InvocationID, "system", "Expired")
		if err != nil {
			if errors.Is(err, dispatch.ErrStaleTransition) {
				continue
			}
			return expired, err
		}

		if w.metrics != nil {
			w.metrics.PendingConfirmations.Dec()
			w.metrics.ConfirmationsExpiredTotal.Inc()
		}
		expired = append(expired, denied)
	}

	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("Expired stale confirmations")
	}
	return expired, nil
}

// deny moves an awaiting invocation to DENIED and mirrors the audit
// entry.
func (w *Workflow) deny(ctx context.Context, invocationID, actor, reason string) (*dispatch.Invocation, error) {
	at := w.clock()
	updated, err := w.store.Transition(ctx, invocationID,
		dispatch.StatusAwaitingConfirmation, dispatch.StatusDenied, actor, reason, at)
	if err != nil {
		return nil, err
	}

	observability.RecordTransition(ctx, observability.AuditEvent{
		InvocationID: updated.ID,
		ToolName:     updated.ToolName,
		FromStatus:   string(dispatch.StatusAwaitingConfirmation),
		ToStatus:     string(dispatch.StatusDenied),
		Actor:        actor,
		Reason:       reason,
		Timestamp:    at,
	})

	return updated, nil
}
