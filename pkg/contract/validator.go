package contract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Violation describes one field-level schema violation
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationResult is either a normalized argument bundle or an ordered
// list of violations. It is derived per call and never stored.
type ValidationResult struct {
	Valid      bool                   `json:"valid"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Violations []Violation            `json:"violations,omitempty"`
}

// Validator validates raw tool-call arguments against one contract.
// The underlying schema compiles once at construction; Validate is a
// pure function of the compiled schema and its input.
type Validator struct {
	contract *ToolContract
	schema   *gojsonschema.Schema
}

// NewValidator compiles the contract's input schema for validation
func NewValidator(tc *ToolContract) (*Validator, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	schemaMap := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	properties := schemaMap["properties"].(map[string]interface{})
	for name, field := range tc.Input {
		prop, err := propertySchema(field, name)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.Name, err)
		}
		properties[name] = prop
	}
	if required := sortedRequired(tc.Input); len(required) > 0 {
		schemaMap["required"] = required
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to compile schema: %w", tc.Name, err)
	}

	return &Validator{contract: tc, schema: schema}, nil
}

// Validate checks raw arguments against the contract. It never panics
// and never returns an error: malformed input comes back as violations
// so the agent loop can feed them to the model for self-correction.
//
// Unknown extra fields are dropped, not rejected. Null values are
// treated as absent. Absent optional fields with a declared default are
// filled in before validation.
func (v *Validator) Validate(raw interface{}) ValidationResult {
	args, ok := coerceObject(raw)
	if !ok {
		return ValidationResult{
			Valid: false,
			Violations: []Violation{{
				Field:      "(root)",
				Constraint: "object",
				Message:    "arguments must be a JSON object",
			}},
		}
	}

	normalized := make(map[string]interface{}, len(args))
	for name := range v.contract.Input {
		value, present := args[name]
		if !present || value == nil {
			continue
		}
		normalized[name] = value
	}
	for name, field := range v.contract.Input {
		if _, present := normalized[name]; !present && field.Default != nil {
			normalized[name] = field.Default
		}
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		// The loader can only fail on unmarshalable input, which
		// coerceObject already ruled out; treat it as a root violation
		// rather than escaping as an error.
		return ValidationResult{
			Valid: false,
			Violations: []Violation{{
				Field:      "(root)",
				Constraint: "object",
				Message:    err.Error(),
			}},
		}
	}

	if !result.Valid() {
		violations := make([]Violation, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			violations = append(violations, Violation{
				Field:      violationField(resultErr),
				Constraint: resultErr.Type(),
				Message:    resultErr.Description(),
			})
		}
		sort.Slice(violations, func(i, j int) bool {
			if violations[i].Field != violations[j].Field {
				return violations[i].Field < violations[j].Field
			}
			return violations[i].Constraint < violations[j].Constraint
		})
		return ValidationResult{Valid: false, Violations: violations}
	}

	return ValidationResult{Valid: true, Args: normalized}
}

// violationField resolves the field path for a schema error. Required
// violations report the parent object, so the missing property name is
// appended to point at the actual field.
func violationField(resultErr gojsonschema.ResultError) string {
	field := resultErr.Field()
	if resultErr.Type() != "required" {
		return field
	}
	property, ok := resultErr.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == "" || field == "(root)" {
		return property
	}
	return field + "." + property
}

// coerceObject converts untrusted raw arguments to a map. Accepts
// decoded maps as well as raw JSON bytes or strings from providers
// that deliver arguments undecoded.
func coerceObject(raw interface{}) (map[string]interface{}, bool) {
	switch value := raw.(type) {
	case nil:
		return map[string]interface{}{}, true
	case map[string]interface{}:
		return value, true
	case json.RawMessage:
		return unmarshalObject([]byte(value))
	case []byte:
		return unmarshalObject(value)
	case string:
		return unmarshalObject([]byte(value))
	default:
		return nil, false
	}
}

func unmarshalObject(data []byte) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, true
}
