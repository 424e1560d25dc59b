package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExternalSchema_ProtocolShape tests the provider-fixed field names
func TestExternalSchema_ProtocolShape(t *testing.T) {
	doc, err := ticketStatusContract().ExternalSchema()
	require.NoError(t, err)

	assert.Equal(t, "update_ticket_status", doc.Name)
	assert.Equal(t, "object", doc.InputSchema.Type)
	assert.Equal(t, []string{"status"}, doc.InputSchema.Required)

	status, ok := doc.InputSchema.Properties["status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "string", status["type"])
	assert.Equal(t, []string{"OPEN", "IN_PROGRESS", "RESOLVED", "CLOSED"}, status["enum"])
	assert.Equal(t, "New ticket status", status["description"])

	reason, ok := doc.InputSchema.Properties["reason"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 500, reason["maxLength"])
}

// TestExternalSchema_Deterministic tests byte-identical repeated translation
func TestExternalSchema_Deterministic(t *testing.T) {
	tc := &ToolContract{
		Name:        "process_refund_request",
		Description: "Issue a refund to a customer",
		Category:    CategoryBusinessAction,
		RiskTier:    RiskNeverAuto,
		Input: map[string]FieldSpec{
			"amount":   {Kind: KindNumber, Required: true, Minimum: floatPtr(0.01)},
			"currency": {Kind: KindString, Required: true, Enum: []string{"USD", "EUR"}},
			"order_id": {Kind: KindString, Required: true},
			"note":     {Kind: KindString, Default: "requested by customer"},
		},
	}

	first, err := tc.ExternalSchema()
	require.NoError(t, err)
	second, err := tc.ExternalSchema()
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, firstJSON, secondJSON)
	assert.Equal(t, []string{"amount", "currency", "order_id"}, first.InputSchema.Required)
}

// TestExternalSchema_OptionalWithDefault tests default unwrapping
func TestExternalSchema_OptionalWithDefault(t *testing.T) {
	tc := &ToolContract{
		Name:        "search_knowledge_base",
		Description: "Search help articles",
		Category:    CategoryKnowledge,
		RiskTier:    RiskAuto,
		Input: map[string]FieldSpec{
			"query": {Kind: KindString, Required: true},
			"limit": {Kind: KindInteger, Default: 5, Minimum: floatPtr(1), Maximum: floatPtr(50)},
		},
	}

	doc, err := tc.ExternalSchema()
	require.NoError(t, err)

	assert.Equal(t, []string{"query"}, doc.InputSchema.Required)

	limit, ok := doc.InputSchema.Properties["limit"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "integer", limit["type"])
	assert.Equal(t, 5, limit["default"])
}

// TestExternalSchema_RequiredWithDefault tests that a defaulted field
// is unwrapped and dropped from the required list, keeping the
// advertised contract aligned with what validation enforces.
func TestExternalSchema_RequiredWithDefault(t *testing.T) {
	tc := &ToolContract{
		Name:        "update_ticket_status",
		Description: "Update the status of a support ticket",
		Category:    CategoryTicketManagement,
		RiskTier:    RiskAuto,
		Input: map[string]FieldSpec{
			"status": {Kind: KindString, Required: true, Enum: []string{"OPEN", "RESOLVED"}},
			"priority": {
				Kind:     KindString,
				Required: true,
				Default:  "NORMAL",
				Enum:     []string{"LOW", "NORMAL", "HIGH"},
			},
		},
	}

	doc, err := tc.ExternalSchema()
	require.NoError(t, err)

	assert.Equal(t, []string{"status"}, doc.InputSchema.Required,
		"a defaulted field must not be advertised as required")

	priority, ok := doc.InputSchema.Properties["priority"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "NORMAL", priority["default"])

	// The validator agrees: absence is filled in, not rejected.
	v, err := NewValidator(tc)
	require.NoError(t, err)
	result := v.Validate(map[string]interface{}{"status": "OPEN"})
	require.True(t, result.Valid)
	assert.Equal(t, "NORMAL", result.Args["priority"])
}

// TestExternalSchema_NestedObjectAndArray tests recursive translation
func TestExternalSchema_NestedObjectAndArray(t *testing.T) {
	tc := &ToolContract{
		Name:        "send_customer_message",
		Description: "Send a message to the customer",
		Category:    CategoryCommunication,
		RiskTier:    RiskConfirm,
		Input: map[string]FieldSpec{
			"body": {Kind: KindString, Required: true, MinLength: intPtr(1)},
			"attachments": {
				Kind:  KindArray,
				Items: &FieldSpec{Kind: KindString},
			},
			"routing": {
				Kind: KindObject,
				Fields: map[string]FieldSpec{
					"channel": {Kind: KindString, Required: true, Enum: []string{"email", "sms"}},
					"cc":      {Kind: KindArray, Items: &FieldSpec{Kind: KindString}},
				},
			},
		},
	}

	doc, err := tc.ExternalSchema()
	require.NoError(t, err)

	attachments := doc.InputSchema.Properties["attachments"].(map[string]interface{})
	items := attachments["items"].(map[string]interface{})
	assert.Equal(t, "string", items["type"])

	routing := doc.InputSchema.Properties["routing"].(map[string]interface{})
	assert.Equal(t, "object", routing["type"])
	assert.Equal(t, []string{"channel"}, routing["required"])
}

// TestExternalSchema_UnsupportedKind tests fail-fast on untranslatable kinds
func TestExternalSchema_UnsupportedKind(t *testing.T) {
	tc := ticketStatusContract()
	tc.Input["variant"] = FieldSpec{Kind: "union"}

	_, err := tc.ExternalSchema()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant")
}
