package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

// ticketStatusContract is a representative AUTO-tier contract used
// across the package tests.
func ticketStatusContract() *ToolContract {
	return &ToolContract{
		Name:        "update_ticket_status",
		Description: "Update the status of a support ticket",
		Category:    CategoryTicketManagement,
		RiskTier:    RiskAuto,
		Timeout:     10 * time.Second,
		Input: map[string]FieldSpec{
			"status": {
				Kind:        KindString,
				Description: "New ticket status",
				Required:    true,
				Enum:        []string{"OPEN", "IN_PROGRESS", "RESOLVED", "CLOSED"},
			},
			"reason": {
				Kind:        KindString,
				Description: "Why the status changed",
				MaxLength:   intPtr(500),
			},
		},
	}
}

// TestToolContract_Validate_Valid tests that a well-formed contract passes
func TestToolContract_Validate_Valid(t *testing.T) {
	err := ticketStatusContract().Validate()
	assert.NoError(t, err)
}

// TestToolContract_Validate_Metadata tests metadata checks
func TestToolContract_Validate_Metadata(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ToolContract)
	}{
		{"empty name", func(tc *ToolContract) { tc.Name = "" }},
		{"empty description", func(tc *ToolContract) { tc.Description = "" }},
		{"invalid category", func(tc *ToolContract) { tc.Category = "billing" }},
		{"invalid risk tier", func(tc *ToolContract) { tc.RiskTier = "MAYBE" }},
		{"negative timeout", func(tc *ToolContract) { tc.Timeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := ticketStatusContract()
			tt.mutate(tc)
			assert.Error(t, tc.Validate())
		})
	}
}

// TestToolContract_Validate_Unsatisfiable tests contradictory constraints
func TestToolContract_Validate_Unsatisfiable(t *testing.T) {
	tests := []struct {
		name  string
		field FieldSpec
	}{
		{
			"min length above max length",
			FieldSpec{Kind: KindString, MinLength: intPtr(10), MaxLength: intPtr(5)},
		},
		{
			"empty enum",
			FieldSpec{Kind: KindString, Enum: []string{}},
		},
		{
			"minimum above maximum",
			FieldSpec{Kind: KindNumber, Minimum: floatPtr(100), Maximum: floatPtr(1)},
		},
		{
			"array without element spec",
			FieldSpec{Kind: KindArray},
		},
		{
			"min items above max items",
			FieldSpec{Kind: KindArray, Items: &FieldSpec{Kind: KindString}, MinItems: intPtr(3), MaxItems: intPtr(1)},
		},
		{
			"enum on non-string field",
			FieldSpec{Kind: KindInteger, Enum: []string{"1"}},
		},
		{
			"unknown kind",
			FieldSpec{Kind: "union"},
		},
		{
			"nested object violation",
			FieldSpec{Kind: KindObject, Fields: map[string]FieldSpec{
				"inner": {Kind: KindString, MinLength: intPtr(9), MaxLength: intPtr(2)},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := ticketStatusContract()
			tc.Input["bad"] = tt.field
			assert.Error(t, tc.Validate())
		})
	}
}

// TestToolContract_RequiredFields tests sorted required field extraction
func TestToolContract_RequiredFields(t *testing.T) {
	tc := &ToolContract{
		Name:        "create_ticket",
		Description: "Create a ticket",
		Category:    CategoryTicketManagement,
		RiskTier:    RiskAuto,
		Input: map[string]FieldSpec{
			"subject":  {Kind: KindString, Required: true},
			"body":     {Kind: KindString, Required: true},
			"priority": {Kind: KindString},
		},
	}
	require.NoError(t, tc.Validate())

	assert.Equal(t, []string{"body", "subject"}, tc.RequiredFields())
}

// TestIsValidCategory tests category validation
func TestIsValidCategory(t *testing.T) {
	assert.True(t, IsValidCategory("ticket-management"))
	assert.True(t, IsValidCategory("business-action"))
	assert.True(t, IsValidCategory("Communication"))
	assert.False(t, IsValidCategory("billing"))
	assert.False(t, IsValidCategory(""))
}

// TestIsValidRiskTier tests risk tier validation
func TestIsValidRiskTier(t *testing.T) {
	assert.True(t, IsValidRiskTier(RiskAuto))
	assert.True(t, IsValidRiskTier(RiskConfirm))
	assert.True(t, IsValidRiskTier(RiskNeverAuto))
	assert.False(t, IsValidRiskTier("SOMETIMES"))
}
