package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an invocation
type Status string

const (
	StatusPendingValidation    Status = "PENDING_VALIDATION"
	StatusValidated            Status = "VALIDATED"
	StatusRejected             Status = "REJECTED"
	StatusExecuted             Status = "EXECUTED"
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusDenied               Status = "DENIED"
	StatusFailed               Status = "FAILED"
)

// allowedTransitions enumerates every legal status edge. Anything
// outside this map is a programming error, not a runtime condition.
var allowedTransitions = map[Status][]Status{
	StatusPendingValidation:    {StatusValidated, StatusRejected},
	StatusValidated:            {StatusExecuted, StatusAwaitingConfirmation, StatusDenied, StatusFailed},
	StatusAwaitingConfirmation: {StatusExecuted, StatusDenied, StatusFailed},
}

// Terminal reports whether the status permits no further transitions
func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransitionTo reports whether the edge s -> next is legal
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Context identifies the session, ticket, and actor behind a tool call
type Context struct {
	SessionID string    `json:"session_id"`
	TicketID  string    `json:"ticket_id"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// Invocation is one runtime attempt to call a tool. Created by the
// dispatcher on receipt; mutated only through store transitions.
type Invocation struct {
	ID           string                 `json:"id"`
	ToolName     string                 `json:"tool_name"`
	RawArguments interface{}            `json:"raw_arguments"`
	Args         map[string]interface{} `json:"args,omitempty"` // normalized, set after validation
	Context      Context                `json:"context"`
	Status       Status                 `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewInvocation creates an invocation in PENDING_VALIDATION
func NewInvocation(toolName string, rawArgs interface{}, invCtx Context) *Invocation {
	if invCtx.Timestamp.IsZero() {
		invCtx.Timestamp = time.Now().UTC()
	}
	return &Invocation{
		ID:           uuid.NewString(),
		ToolName:     toolName,
		RawArguments: rawArgs,
		Context:      invCtx,
		Status:       StatusPendingValidation,
		CreatedAt:    invCtx.Timestamp,
		UpdatedAt:    invCtx.Timestamp,
	}
}

// AuditEntry records one status transition, append-only. The full
// history of an invocation is reconstructable from its entries alone,
// in timestamp order.
type AuditEntry struct {
	InvocationID string    `json:"invocation_id"`
	FromStatus   Status    `json:"from_status"`
	ToStatus     Status    `json:"to_status"`
	Actor        string    `json:"actor"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

// ConfirmationDecision is the terminal resolution of a pending confirmation
type ConfirmationDecision string

const (
	ConfirmationApproved ConfirmationDecision = "APPROVED"
	ConfirmationRejected ConfirmationDecision = "REJECTED"
	ConfirmationExpired  ConfirmationDecision = "EXPIRED"
)

// PendingConfirmation parks an invocation awaiting human review.
// At most one open confirmation exists per invocation; once resolved
// or expired it is terminal.
type PendingConfirmation struct {
	ID           string               `json:"id"`
	InvocationID string               `json:"invocation_id"`
	RequestedAt  time.Time            `json:"requested_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
	Reviewer     string               `json:"reviewer,omitempty"` // empty until resolved
	Decision     ConfirmationDecision `json:"decision,omitempty"`
	ResolvedAt   *time.Time           `json:"resolved_at,omitempty"`
}

// Open reports whether the confirmation still awaits a decision
func (pc *PendingConfirmation) Open() bool {
	return pc.Decision == ""
}
