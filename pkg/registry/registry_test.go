package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscrm/agentgate/pkg/contract"
)

func statusContract() *contract.ToolContract {
	return &contract.ToolContract{
		Name:        "update_ticket_status",
		Description: "Update the status of a support ticket",
		Category:    contract.CategoryTicketManagement,
		RiskTier:    contract.RiskAuto,
		Input: map[string]contract.FieldSpec{
			"status": {
				Kind:     contract.KindString,
				Required: true,
				Enum:     []string{"OPEN", "IN_PROGRESS", "RESOLVED", "CLOSED"},
			},
		},
	}
}

func refundContract() *contract.ToolContract {
	return &contract.ToolContract{
		Name:        "process_refund_request",
		Description: "Issue a refund to a customer",
		Category:    contract.CategoryBusinessAction,
		RiskTier:    contract.RiskNeverAuto,
		Input: map[string]contract.FieldSpec{
			"amount":   {Kind: contract.KindNumber, Required: true},
			"order_id": {Kind: contract.KindString, Required: true},
		},
	}
}

// TestRegistry_Register tests successful registration
func TestRegistry_Register(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(statusContract()))
	require.NoError(t, r.Register(refundContract()))
	assert.Equal(t, 2, r.Len())

	entry, err := r.Get("update_ticket_status")
	require.NoError(t, err)
	assert.Equal(t, contract.RiskAuto, entry.Contract.RiskTier)
	assert.NotNil(t, entry.Validator)
}

// TestRegistry_DuplicateName tests name uniqueness enforcement
func TestRegistry_DuplicateName(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(statusContract()))

	err := r.Register(statusContract())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateToolName)
}

// TestRegistry_UnknownTool tests lookup of an unregistered name
func TestRegistry_UnknownTool(t *testing.T) {
	r := New()

	_, err := r.Get("delete_everything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

// TestRegistry_RejectsUntranslatable tests fail-fast at registration
func TestRegistry_RejectsUntranslatable(t *testing.T) {
	r := New()

	tc := statusContract()
	tc.Input["variant"] = contract.FieldSpec{Kind: "union"}

	assert.Error(t, r.Register(tc))
	assert.Equal(t, 0, r.Len())
}

// TestRegistry_RejectsUnsatisfiable tests satisfiability enforcement
func TestRegistry_RejectsUnsatisfiable(t *testing.T) {
	r := New()

	min, max := 10, 5
	tc := statusContract()
	tc.Input["note"] = contract.FieldSpec{Kind: contract.KindString, MinLength: &min, MaxLength: &max}

	assert.Error(t, r.Register(tc))
}

// TestRegistry_FreezeBlocksRegistration tests write-once semantics
func TestRegistry_FreezeBlocksRegistration(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(statusContract()))

	r.Freeze()

	err := r.Register(refundContract())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrozen)

	// Reads still work after freeze.
	_, err = r.Get("update_ticket_status")
	assert.NoError(t, err)
}

// TestRegistry_FreezeConcurrentRegister tests that registrations racing
// with Freeze either land in the catalog or fail with ErrFrozen; none
// are silently admitted after readers go lock-free.
func TestRegistry_FreezeConcurrentRegister(t *testing.T) {
	r := New()

	const writers = 8
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc := statusContract()
			tc.Name = fmt.Sprintf("update_ticket_status_%d", i)
			errs[i] = r.Register(tc)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Freeze()
	}()
	wg.Wait()

	registered := make(map[string]bool)
	for _, tc := range r.All() {
		registered[tc.Name] = true
	}
	for i, err := range errs {
		name := fmt.Sprintf("update_ticket_status_%d", i)
		if err != nil {
			assert.ErrorIs(t, err, ErrFrozen)
			assert.False(t, registered[name])
		} else {
			assert.True(t, registered[name])
		}
	}
}

// TestRegistry_ListByCategory tests category queries
func TestRegistry_ListByCategory(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(statusContract()))
	require.NoError(t, r.Register(refundContract()))

	business := r.ListByCategory(contract.CategoryBusinessAction)
	require.Len(t, business, 1)
	assert.Equal(t, "process_refund_request", business[0].Name)

	assert.Empty(t, r.ListByCategory(contract.CategoryEscalation))
}

// TestRegistry_AllExternalSchemas_Stable tests stable advertisement order
func TestRegistry_AllExternalSchemas_Stable(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(statusContract()))
	require.NoError(t, r.Register(refundContract()))
	r.Freeze()

	first, err := json.Marshal(r.AllExternalSchemas())
	require.NoError(t, err)
	second, err := json.Marshal(r.AllExternalSchemas())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	docs := r.AllExternalSchemas()
	require.Len(t, docs, 2)
	assert.Equal(t, "process_refund_request", docs[0].Name)
	assert.Equal(t, "update_ticket_status", docs[1].Name)
}

// TestRegistry_ProviderAdapters tests Anthropic and OpenAI advertisement
func TestRegistry_ProviderAdapters(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(statusContract()))
	r.Freeze()

	anthropicTools := AnthropicTools(r)
	require.Len(t, anthropicTools, 1)
	require.NotNil(t, anthropicTools[0].OfTool)
	assert.Equal(t, "update_ticket_status", anthropicTools[0].OfTool.Name)
	assert.Equal(t, []string{"status"}, anthropicTools[0].OfTool.InputSchema.Required)

	openaiTools := OpenAITools(r)
	require.Len(t, openaiTools, 1)
	assert.Equal(t, "update_ticket_status", openaiTools[0].Function.Name)
}
