package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrInvocationNotFound is returned for unknown invocation IDs
	ErrInvocationNotFound = errors.New("invocation not found")

	// ErrStaleTransition is returned when the invocation is no longer
	// in the status a transition expects
	ErrStaleTransition = errors.New("invocation status changed concurrently")

	// ErrIllegalTransition indicates a transition outside the status
	// machine; this is a programming error
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrConfirmationExists is returned when an invocation already has
	// an open pending confirmation
	ErrConfirmationExists = errors.New("pending confirmation already exists")

	// ErrConfirmationNotFound is returned for unknown confirmations
	ErrConfirmationNotFound = errors.New("pending confirmation not found")

	// ErrConfirmationResolved is returned when resolving an already
	// terminal confirmation
	ErrConfirmationResolved = errors.New("pending confirmation already resolved")
)

// Store persists invocations, their audit trail, and pending
// confirmations. Transition commits the status change and its audit
// entry atomically, so no caller can observe one without the other.
type Store interface {
	CreateInvocation(ctx context.Context, inv *Invocation) error
	GetInvocation(ctx context.Context, id string) (*Invocation, error)
	SetArgs(ctx context.Context, id string, args map[string]interface{}) error
	Transition(ctx context.Context, id string, from, to Status, actor, reason string, at time.Time) (*Invocation, error)
	AuditTrail(ctx context.Context, id string) ([]AuditEntry, error)

	CreatePendingConfirmation(ctx context.Context, pc *PendingConfirmation) error
	GetPendingByInvocation(ctx context.Context, invocationID string) (*PendingConfirmation, error)
	ResolvePending(ctx context.Context, invocationID, reviewer string, decision ConfirmationDecision, at time.Time) (*PendingConfirmation, error)
	ListExpiredPending(ctx context.Context, now time.Time) ([]*PendingConfirmation, error)

	Close() error
}

// MemoryStore is the in-process Store used by tests and single-node
// deployments that do not need durability.
type MemoryStore struct {
	mu            sync.RWMutex
	invocations   map[string]*Invocation
	audit         map[string][]AuditEntry
	confirmations map[string]*PendingConfirmation // keyed by invocation ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invocations:   make(map[string]*Invocation),
		audit:         make(map[string][]AuditEntry),
		confirmations: make(map[string]*PendingConfirmation),
	}
}

// CreateInvocation stores a new invocation and its creation audit entry
func (s *MemoryStore) CreateInvocation(_ context.Context, inv *Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invocations[inv.ID]; exists {
		return fmt.Errorf("invocation %s already exists", inv.ID)
	}

	stored := copyInvocation(inv)
	s.invocations[inv.ID] = stored
	s.audit[inv.ID] = append(s.audit[inv.ID], AuditEntry{
		InvocationID: inv.ID,
		ToStatus:     inv.Status,
		Actor:        "agent",
		Reason:       "invocation received",
		Timestamp:    inv.CreatedAt,
	})
	return nil
}

// GetInvocation retrieves an invocation by ID
func (s *MemoryStore) GetInvocation(_ context.Context, id string) (*Invocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invocations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvocationNotFound, id)
	}
	return copyInvocation(inv), nil
}

// SetArgs stores the normalized argument bundle
func (s *MemoryStore) SetArgs(_ context.Context, id string, args map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invocations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvocationNotFound, id)
	}
	inv.Args = args
	return nil
}

// Transition moves an invocation from one status to another and
// appends the audit entry under the same lock. Fails with
// ErrStaleTransition when the invocation is no longer in `from`.
func (s *MemoryStore) Transition(_ context.Context, id string, from, to Status, actor, reason string, at time.Time) (*Invocation, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invocations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvocationNotFound, id)
	}
	if inv.Status != from {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrStaleTransition, from, inv.Status)
	}

	inv.Status = to
	inv.UpdatedAt = at
	s.audit[id] = append(s.audit[id], AuditEntry{
		InvocationID: id,
		FromStatus:   from,
		ToStatus:     to,
		Actor:        actor,
		Reason:       reason,
		Timestamp:    at,
	})

	return copyInvocation(inv), nil
}

// AuditTrail returns the invocation's audit entries in timestamp order
func (s *MemoryStore) AuditTrail(_ context.Context, id string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.invocations[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvocationNotFound, id)
	}

	entries := append([]AuditEntry(nil), s.audit[id]...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// CreatePendingConfirmation parks an invocation for review. At most
// one open confirmation may exist per invocation.
func (s *MemoryStore) CreatePendingConfirmation(_ context.Context, pc *PendingConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.confirmations[pc.InvocationID]; ok && existing.Open() {
		return fmt.Errorf("%w: invocation %s", ErrConfirmationExists, pc.InvocationID)
	}

	stored := *pc
	s.confirmations[pc.InvocationID] = &stored
	return nil
}

// GetPendingByInvocation retrieves the confirmation for an invocation
func (s *MemoryStore) GetPendingByInvocation(_ context.Context, invocationID string) (*PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pc, ok := s.confirmations[invocationID]
	if !ok {
		return nil, fmt.Errorf("%w: invocation %s", ErrConfirmationNotFound, invocationID)
	}
	copied := *pc
	return &copied, nil
}

// ResolvePending records the reviewer's decision. Only open
// confirmations can be resolved; resolution is terminal.
func (s *MemoryStore) ResolvePending(_ context.Context, invocationID, reviewer string, decision ConfirmationDecision, at time.Time) (*PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.confirmations[invocationID]
	if !ok {
		return nil, fmt.Errorf("%w: invocation %s", ErrConfirmationNotFound, invocationID)
	}
	if !pc.Open() {
		return nil, fmt.Errorf("%w: invocation %s", ErrConfirmationResolved, invocationID)
	}

	pc.Reviewer = reviewer
	pc.Decision = decision
	resolvedAt := at
	pc.ResolvedAt = &resolvedAt

	copied := *pc
	return &copied, nil
}

// ListExpiredPending returns open confirmations past their expiry
func (s *MemoryStore) ListExpiredPending(_ context.Context, now time.Time) ([]*PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*PendingConfirmation
	for _, pc := range s.confirmations {
		if pc.Open() && pc.ExpiresAt.Before(now) {
			copied := *pc
			expired = append(expired, &copied)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].RequestedAt.Before(expired[j].RequestedAt)
	})
	return expired, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func copyInvocation(inv *Invocation) *Invocation {
	copied := *inv
	if inv.Args != nil {
		args := make(map[string]interface{}, len(inv.Args))
		for k, v := range inv.Args {
			args[k] = v
		}
		copied.Args = args
	}
	return &copied
}
