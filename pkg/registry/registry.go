package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/helioscrm/agentgate/pkg/contract"
)

var (
	// ErrDuplicateToolName is returned when a contract reuses a name
	ErrDuplicateToolName = errors.New("duplicate tool name")

	// ErrUnknownTool is returned when no contract matches the name
	ErrUnknownTool = errors.New("unknown tool")

	// ErrFrozen is returned when registering after Freeze
	ErrFrozen = errors.New("registry is frozen")
)

// Entry bundles a contract with its precompiled validator and its
// provider-facing schema document.
type Entry struct {
	Contract  *contract.ToolContract
	Validator *contract.Validator
	External  contract.ExternalSchemaDocument
}

// Registry holds all registered tool contracts, keyed by name.
// Register everything at startup, then Freeze; afterwards all reads
// are lock-free.
type Registry struct {
	mu     sync.RWMutex
	frozen atomic.Bool
	tools  map[string]*Entry
	names  []string // sorted, rebuilt on register
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		tools: make(map[string]*Entry),
	}
}

// Register validates, compiles, and translates a contract, then adds
// it to the catalog. Fails fast on duplicate names, unsatisfiable
// schemas, and untranslatable constructs.
func (r *Registry) Register(tc *contract.ToolContract) error {
	if r.frozen.Load() {
		return fmt.Errorf("cannot register %q: %w", tc.Name, ErrFrozen)
	}

	if err := tc.Validate(); err != nil {
		return fmt.Errorf("invalid tool contract: %w", err)
	}

	validator, err := contract.NewValidator(tc)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	external, err := tc.ExternalSchema()
	if err != nil {
		return fmt.Errorf("failed to translate schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the lock so a Freeze racing with this call cannot
	// admit a registration after readers have gone lock-free.
	if r.frozen.Load() {
		return fmt.Errorf("cannot register %q: %w", tc.Name, ErrFrozen)
	}

	if _, exists := r.tools[tc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateToolName, tc.Name)
	}

	r.tools[tc.Name] = &Entry{
		Contract:  tc,
		Validator: validator,
		External:  external,
	}
	r.names = append(r.names, tc.Name)
	sort.Strings(r.names)

	log.Info().
		Str("tool", tc.Name).
		Str("category", string(tc.Category)).
		Str("risk_tier", string(tc.RiskTier)).
		Msg("Tool contract registered")

	return nil
}

// MustRegister registers a contract and panics on failure. Intended
// for startup wiring where a bad contract is a programming error.
func (r *Registry) MustRegister(tc *contract.ToolContract) {
	if err := r.Register(tc); err != nil {
		panic(err)
	}
}

// Freeze marks the registry read-only. Further Register calls fail.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
	log.Info().Int("tools", len(r.tools)).Msg("Tool registry frozen")
}

// Get retrieves a registered entry by tool name
func (r *Registry) Get(name string) (*Entry, error) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	entry, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry, nil
}

// ListByCategory returns contracts in a category, sorted by name
func (r *Registry) ListByCategory(category contract.Category) []*contract.ToolContract {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	var matched []*contract.ToolContract
	for _, name := range r.names {
		if tc := r.tools[name].Contract; tc.Category == category {
			matched = append(matched, tc)
		}
	}
	return matched
}

// All returns every registered contract, sorted by name
func (r *Registry) All() []*contract.ToolContract {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	all := make([]*contract.ToolContract, 0, len(r.names))
	for _, name := range r.names {
		all = append(all, r.tools[name].Contract)
	}
	return all
}

// AllExternalSchemas returns the provider-facing schema documents for
// every registered tool, sorted by name. The order is stable so
// repeated advertisement to the provider is cache-friendly.
func (r *Registry) AllExternalSchemas() []contract.ExternalSchemaDocument {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	docs := make([]contract.ExternalSchemaDocument, 0, len(r.names))
	for _, name := range r.names {
		docs = append(docs, r.tools[name].External)
	}
	return docs
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return len(r.tools)
}
