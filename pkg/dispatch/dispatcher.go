package dispatch

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/helioscrm/agentgate/internal/metrics"
	"github.com/helioscrm/agentgate/internal/observability"
	"github.com/helioscrm/agentgate/internal/tracing"
	"github.com/helioscrm/agentgate/pkg/contract"
	"github.com/helioscrm/agentgate/pkg/policy"
	"github.com/helioscrm/agentgate/pkg/registry"
)

// Outcome is the closed set of result shapes the agent loop receives
type Outcome string

const (
	OutcomeValidationError Outcome = "validation-error"
	OutcomeDenied          Outcome = "denied"
	OutcomePending         Outcome = "pending"
	OutcomeExecuted        Outcome = "executed"
	OutcomeFailed          Outcome = "failed"
)

// InvocationResult is returned to the agent loop for every invocation
// that was persisted. Pending is a third outcome, neither success nor
// failure; the loop is expected to narrate it to the human.
type InvocationResult struct {
	Outcome        Outcome               `json:"outcome"`
	InvocationID   string                `json:"invocation_id"`
	Violations     []contract.Violation  `json:"violations,omitempty"`
	Reason         string                `json:"reason,omitempty"`
	Output         interface{}           `json:"output,omitempty"`
	Retryable      bool                  `json:"retryable,omitempty"`
	ConfirmationID string                `json:"confirmation_id,omitempty"`
	ExpiresAt      time.Time             `json:"expires_at,omitempty"`
}

// Options configures a Dispatcher
type Options struct {
	Registry *registry.Registry
	Policy   *policy.Engine
	Store    Store
	Executor Executor
	Metrics  *metrics.Metrics // optional

	// ConfirmationTTL bounds how long a pending confirmation stays
	// open before the sweeper expires it
	ConfirmationTTL time.Duration
	// DefaultTimeout bounds executor calls for contracts without a
	// per-tool timeout
	DefaultTimeout time.Duration
	// Clock overrides time.Now for tests
	Clock func() time.Time
}

// Dispatcher validates, authorizes, and routes tool calls
type Dispatcher struct {
	registry        *registry.Registry
	policy          *policy.Engine
	store           Store
	executor        Executor
	metrics         *metrics.Metrics
	locks           *keyedLocks
	confirmationTTL time.Duration
	defaultTimeout  time.Duration
	clock           func() time.Time
}

// New creates a Dispatcher
func New(opts Options) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("policy engine is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = 30 * time.Minute
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Dispatcher{
		registry:        opts.Registry,
		policy:          opts.Policy,
		store:           opts.Store,
		executor:        opts.Executor,
		metrics:         opts.Metrics,
		locks:           newKeyedLocks(),
		confirmationTTL: opts.ConfirmationTTL,
		defaultTimeout:  opts.DefaultTimeout,
		clock:           opts.Clock,
	}, nil
}

// Store returns the dispatcher's store, shared with the confirmation
// workflow so both see the same invocation records.
func (d *Dispatcher) Store() Store {
	return d.store
}

// Invoke runs one tool call through validation, policy, and execution
// or parking. The returned error is non-nil only for UnknownTool and
// internal store defects; every expected condition (validation
// failure, denial, pending, executor failure) is a typed result.
func (d *Dispatcher) Invoke(ctx context.Context, toolName string, rawArgs interface{}, invCtx Context) (InvocationResult, error) {
	entry, err := d.registry.Get(toolName)
	if err != nil {
		// No invocation is created for unknown tools.
		log.Warn().Str("tool", toolName).Msg("Invocation for unregistered tool")
		return InvocationResult{}, err
	}

	if invCtx.Timestamp.IsZero() {
		invCtx.Timestamp = d.clock()
	}
	inv := NewInvocation(toolName, rawArgs, invCtx)

	ctx, span := tracing.StartSpan(ctx, "dispatch.invoke",
		attribute.String("tool.name", toolName),
		attribute.String("invocation.id", inv.ID),
		attribute.String("session.id", invCtx.SessionID),
	)
	defer span.End()
	ctx = tracing.WithInvocationID(ctx, inv.ID)

	if err := d.store.CreateInvocation(ctx, inv); err != nil {
		return InvocationResult{}, fmt.Errorf("failed to persist invocation: %w", err)
	}
	observability.RecordTransition(ctx, observability.AuditEvent{
		InvocationID: inv.ID,
		ToolName:     inv.ToolName,
		ToStatus:     string(StatusPendingValidation),
		Actor:        "agent",
		Reason:       "invocation received",
		Timestamp:    inv.CreatedAt,
	})

	validation := entry.Validator.Validate(rawArgs)
	if !validation.Valid {
		if err := d.transition(ctx, inv, StatusRejected, "system", "schema validation failed"); err != nil {
			return InvocationResult{}, err
		}
		if d.metrics != nil {
			d.metrics.ValidationFailuresTotal.WithLabelValues(toolName).Inc()
			d.metrics.InvocationsTotal.WithLabelValues(toolName, string(OutcomeValidationError)).Inc()
		}
		return InvocationResult{
			Outcome:      OutcomeValidationError,
			InvocationID: inv.ID,
			Violations:   validation.Violations,
			Reason:       "schema validation failed",
		}, nil
	}

	if err := d.store.SetArgs(ctx, inv.ID, validation.Args); err != nil {
		return InvocationResult{}, err
	}
	inv.Args = validation.Args
	if err := d.transition(ctx, inv, StatusValidated, "system", "schema validation passed"); err != nil {
		return InvocationResult{}, err
	}

	decision := d.policy.Decide(entry.Contract, policy.Request{
		SessionID: invCtx.SessionID,
		TicketID:  invCtx.TicketID,
		Actor:     invCtx.Actor,
		Timestamp: invCtx.Timestamp,
	})
	span.SetAttributes(attribute.String("policy.decision", string(decision.Decision)))
	if d.metrics != nil {
		d.metrics.DecisionsTotal.WithLabelValues(toolName, string(decision.Decision)).Inc()
	}

	switch decision.Decision {
	case policy.DecisionDeny:
		if err := d.transition(ctx, inv, StatusDenied, "system", decision.Reason); err != nil {
			return InvocationResult{}, err
		}
		if d.metrics != nil {
			d.metrics.InvocationsTotal.WithLabelValues(toolName, string(OutcomeDenied)).Inc()
		}
		return InvocationResult{
			Outcome:      OutcomeDenied,
			InvocationID: inv.ID,
			Reason:       decision.Reason,
		}, nil

	case policy.DecisionRequireConfirmation:
		unlock := d.locks.Lock(d.entityKey(inv))
		defer unlock()
		return d.park(ctx, inv, decision.Reason)

	case policy.DecisionAutoExecute:
		unlock := d.locks.Lock(d.entityKey(inv))
		defer unlock()
		return d.execute(ctx, entry.Contract, inv, StatusValidated, "agent")

	default:
		// Unreachable unless the policy engine grows a decision this
		// switch does not know about.
		return InvocationResult{}, fmt.Errorf("unhandled policy decision %q", decision.Decision)
	}
}

// AsyncResult pairs a result with the internal error channel shape
type AsyncResult struct {
	Result InvocationResult
	Err    error
}

// InvokeAsync runs Invoke off the caller's goroutine so a slow tool
// does not stall unrelated sessions.
func (d *Dispatcher) InvokeAsync(ctx context.Context, toolName string, rawArgs interface{}, invCtx Context) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		result, err := d.Invoke(ctx, toolName, rawArgs, invCtx)
		out <- AsyncResult{Result: result, Err: err}
	}()
	return out
}

// ExecuteApproved runs the executor for an invocation a reviewer has
// approved, transitioning it out of AWAITING_CONFIRMATION. Called by
// the confirmation workflow under the same per-ticket serialization
// rules as auto-execution.
func (d *Dispatcher) ExecuteApproved(ctx context.Context, inv *Invocation, reviewer string) (InvocationResult, error) {
	entry, err := d.registry.Get(inv.ToolName)
	if err != nil {
		return InvocationResult{}, err
	}

	unlock := d.locks.Lock(d.entityKey(inv))
	defer unlock()

	return d.execute(ctx, entry.Contract, inv, StatusAwaitingConfirmation, "reviewer:"+reviewer)
}

// park creates the pending confirmation and moves the invocation to
// AWAITING_CONFIRMATION.
func (d *Dispatcher) park(ctx context.Context, inv *Invocation, reason string) (InvocationResult, error) {
	now := d.clock()
	pc := &PendingConfirmation{
		ID:           gonanoid.Must(),
		InvocationID: inv.ID,
		RequestedAt:  now,
		ExpiresAt:    now.Add(d.confirmationTTL),
	}

	if err := d.store.CreatePendingConfirmation(ctx, pc); err != nil {
		return InvocationResult{}, err
	}
	if err := d.transition(ctx, inv, StatusAwaitingConfirmation, "system", reason); err != nil {
		return InvocationResult{}, err
	}
	if d.metrics != nil {
		d.metrics.PendingConfirmations.Inc()
		d.metrics.InvocationsTotal.WithLabelValues(inv.ToolName, string(OutcomePending)).Inc()
	}

	log.Info().
		Str("invocation_id", inv.ID).
		Str("tool", inv.ToolName).
		Time("expires_at", pc.ExpiresAt).
		Msg("Invocation parked for confirmation")

	return InvocationResult{
		Outcome:        OutcomePending,
		InvocationID:   inv.ID,
		Reason:         reason,
		ConfirmationID: pc.ID,
		ExpiresAt:      pc.ExpiresAt,
	}, nil
}

// execute runs the executor under the per-tool timeout and transitions
// the invocation to EXECUTED or FAILED. The caller holds the entity
// lock; it is released only after the audit entry is committed.
func (d *Dispatcher) execute(ctx context.Context, tc *contract.ToolContract, inv *Invocation, from Status, actor string) (InvocationResult, error) {
	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, execErr := d.executor.Execute(execCtx, inv.ToolName, inv.Args, inv.Context)
	duration := time.Since(start)

	if d.metrics != nil {
		d.metrics.ExecutorDuration.WithLabelValues(inv.ToolName).Observe(duration.Seconds())
	}

	if execErr != nil {
		retryable := IsRetryable(execErr)
		reason := execErr.Error()
		if execCtx.Err() == context.DeadlineExceeded {
			retryable = true
			reason = fmt.Sprintf("executor timeout after %v", timeout)
		}

		if err := d.transition(ctx, inv, StatusFailed, actor, reason); err != nil {
			return InvocationResult{}, err
		}
		if d.metrics != nil {
			d.metrics.ExecutorErrorsTotal.WithLabelValues(inv.ToolName, fmt.Sprintf("%t", retryable)).Inc()
			d.metrics.InvocationsTotal.WithLabelValues(inv.ToolName, string(OutcomeFailed)).Inc()
		}

		log.Error().
			Err(execErr).
			Str("invocation_id", inv.ID).
			Str("tool", inv.ToolName).
			Dur("duration", duration).
			Bool("retryable", retryable).
			Msg("Executor failed")

		return InvocationResult{
			Outcome:      OutcomeFailed,
			InvocationID: inv.ID,
			Reason:       reason,
			Retryable:    retryable,
		}, nil
	}

	if err := d.transition(ctx, inv, StatusExecuted, actor, "executed successfully"); err != nil {
		return InvocationResult{}, err
	}
	if d.metrics != nil {
		d.metrics.InvocationsTotal.WithLabelValues(inv.ToolName, string(OutcomeExecuted)).Inc()
	}

	log.Debug().
		Str("invocation_id", inv.ID).
		Str("tool", inv.ToolName).
		Dur("duration", duration).
		Msg("Tool executed")

	return InvocationResult{
		Outcome:      OutcomeExecuted,
		InvocationID: inv.ID,
		Output:       output,
	}, nil
}

// transition commits one status change and mirrors the audit entry to
// the observability sink.
func (d *Dispatcher) transition(ctx context.Context, inv *Invocation, to Status, actor, reason string) error {
	at := d.clock()
	updated, err := d.store.Transition(ctx, inv.ID, inv.Status, to, actor, reason, at)
	if err != nil {
		return fmt.Errorf("transition %s -> %s for invocation %s: %w", inv.Status, to, inv.ID, err)
	}

	observability.RecordTransition(ctx, observability.AuditEvent{
		InvocationID: inv.ID,
		ToolName:     inv.ToolName,
		FromStatus:   string(inv.Status),
		ToStatus:     string(to),
		Actor:        actor,
		Reason:       reason,
		Timestamp:    at,
	})

	inv.Status = updated.Status
	inv.UpdatedAt = updated.UpdatedAt
	return nil
}

// entityKey picks the serialization key for executor calls: the ticket
// when known, otherwise the session, otherwise the invocation itself.
func (d *Dispatcher) entityKey(inv *Invocation) string {
	if inv.Context.TicketID != "" {
		return "ticket:" + inv.Context.TicketID
	}
	if inv.Context.SessionID != "" {
		return "session:" + inv.Context.SessionID
	}
	return "invocation:" + inv.ID
}
