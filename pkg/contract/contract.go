package contract

import (
	"fmt"
	"strings"
	"time"
)

// RiskTier classifies how much human oversight a tool requires
type RiskTier string

const (
	RiskAuto      RiskTier = "AUTO"       // may execute without review
	RiskConfirm   RiskTier = "CONFIRM"    // always requires review
	RiskNeverAuto RiskTier = "NEVER_AUTO" // hard floor: review is never waived
)

// IsValidRiskTier checks if a risk tier is valid
func IsValidRiskTier(tier RiskTier) bool {
	switch tier {
	case RiskAuto, RiskConfirm, RiskNeverAuto:
		return true
	}
	return false
}

// Category represents a category of tools
type Category string

const (
	CategoryTicketManagement Category = "ticket-management"
	CategoryCommunication    Category = "communication"
	CategoryEscalation       Category = "escalation"
	CategoryKnowledge        Category = "knowledge"
	CategoryBusinessAction   Category = "business-action"
	CategorySystem           Category = "system"
)

// AllCategories returns all valid tool categories
func AllCategories() []Category {
	return []Category{
		CategoryTicketManagement,
		CategoryCommunication,
		CategoryEscalation,
		CategoryKnowledge,
		CategoryBusinessAction,
		CategorySystem,
	}
}

// IsValidCategory checks if a category is valid
func IsValidCategory(category string) bool {
	cat := Category(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}

// FieldKind is the closed set of structural types a field may have.
// Anything outside this set cannot be translated to the provider
// protocol and is rejected at registration.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindInteger FieldKind = "integer"
	KindBoolean FieldKind = "boolean"
	KindArray   FieldKind = "array"
	KindObject  FieldKind = "object"
)

// FieldSpec describes one field of a tool's input schema
type FieldSpec struct {
	Kind        FieldKind            `json:"kind"`
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Default     interface{}          `json:"default,omitempty"`
	Enum        []string             `json:"enum,omitempty"`       // string fields only
	MinLength   *int                 `json:"min_length,omitempty"` // string fields
	MaxLength   *int                 `json:"max_length,omitempty"`
	Minimum     *float64             `json:"minimum,omitempty"` // numeric fields
	Maximum     *float64             `json:"maximum,omitempty"`
	MinItems    *int                 `json:"min_items,omitempty"` // array fields
	MaxItems    *int                 `json:"max_items,omitempty"`
	Items       *FieldSpec           `json:"items,omitempty"`  // array element spec
	Fields      map[string]FieldSpec `json:"fields,omitempty"` // object fields
}

// ToolContract is the registered, immutable description of one callable
// agent action. Contracts are registered once at startup and never
// mutated afterwards.
type ToolContract struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    Category             `json:"category"`
	RiskTier    RiskTier             `json:"risk_tier"`
	Timeout     time.Duration        `json:"timeout,omitempty"`
	Input       map[string]FieldSpec `json:"input"`
}

// Validate checks the contract's metadata and schema satisfiability.
// A contract that fails here must not be registered.
func (tc *ToolContract) Validate() error {
	if tc.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tc.Description == "" {
		return fmt.Errorf("tool description cannot be empty for %s", tc.Name)
	}
	if !IsValidCategory(string(tc.Category)) {
		return fmt.Errorf("invalid category %q for tool %s", tc.Category, tc.Name)
	}
	if !IsValidRiskTier(tc.RiskTier) {
		return fmt.Errorf("invalid risk tier %q for tool %s", tc.RiskTier, tc.Name)
	}
	if tc.Timeout < 0 {
		return fmt.Errorf("negative timeout for tool %s", tc.Name)
	}
	for name, field := range tc.Input {
		if name == "" {
			return fmt.Errorf("tool %s has a field with empty name", tc.Name)
		}
		if err := field.satisfiable(name); err != nil {
			return fmt.Errorf("tool %s: %w", tc.Name, err)
		}
	}
	return nil
}

// satisfiable checks the field for contradictory constraints, recursing
// into array elements and nested objects. path identifies the field in
// error messages.
func (fs FieldSpec) satisfiable(path string) error {
	switch fs.Kind {
	case KindString:
		if fs.MinLength != nil && fs.MaxLength != nil && *fs.MinLength > *fs.MaxLength {
			return fmt.Errorf("field %s: min_length %d exceeds max_length %d", path, *fs.MinLength, *fs.MaxLength)
		}
		if fs.Enum != nil && len(fs.Enum) == 0 {
			return fmt.Errorf("field %s: empty enum is unsatisfiable", path)
		}
	case KindNumber, KindInteger:
		if fs.Minimum != nil && fs.Maximum != nil && *fs.Minimum > *fs.Maximum {
			return fmt.Errorf("field %s: minimum %v exceeds maximum %v", path, *fs.Minimum, *fs.Maximum)
		}
	case KindBoolean:
		// No constraints to contradict.
	case KindArray:
		if fs.Items == nil {
			return fmt.Errorf("field %s: array field requires an element spec", path)
		}
		if fs.MinItems != nil && fs.MaxItems != nil && *fs.MinItems > *fs.MaxItems {
			return fmt.Errorf("field %s: min_items %d exceeds max_items %d", path, *fs.MinItems, *fs.MaxItems)
		}
		if err := fs.Items.satisfiable(path + "[]"); err != nil {
			return err
		}
	case KindObject:
		for name, nested := range fs.Fields {
			if err := nested.satisfiable(path + "." + name); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("field %s: unsupported kind %q", path, fs.Kind)
	}

	if fs.Enum != nil && fs.Kind != KindString {
		return fmt.Errorf("field %s: enum is only valid on string fields", path)
	}

	return nil
}

// RequiredFields returns the names of required top-level fields, sorted
func (tc *ToolContract) RequiredFields() []string {
	return sortedRequired(tc.Input)
}
