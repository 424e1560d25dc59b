package contract

import (
	"fmt"
	"sort"
)

// ObjectSchema is the provider-facing JSON-schema form of a contract's
// input. The field names (type, properties, required, enum, items) are
// fixed by the tool-calling protocol and must not be renamed.
type ObjectSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// ExternalSchemaDocument is one tool as advertised to the LLM provider
type ExternalSchemaDocument struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema ObjectSchema `json:"input_schema"`
}

// ExternalSchema translates the contract into the provider protocol
// shape. The mapping is pure and order-stable: required names are
// sorted and properties marshal with sorted keys, so the same contract
// always yields byte-identical JSON.
//
// A contract using a kind outside the closed set fails here; the
// registry calls this at registration so untranslatable contracts are
// rejected before any tool call can reach them.
func (tc *ToolContract) ExternalSchema() (ExternalSchemaDocument, error) {
	properties := make(map[string]interface{}, len(tc.Input))
	for name, field := range tc.Input {
		prop, err := propertySchema(field, name)
		if err != nil {
			return ExternalSchemaDocument{}, fmt.Errorf("tool %s: %w", tc.Name, err)
		}
		properties[name] = prop
	}

	return ExternalSchemaDocument{
		Name:        tc.Name,
		Description: tc.Description,
		InputSchema: ObjectSchema{
			Type:       "object",
			Properties: properties,
			Required:   sortedRequired(tc.Input),
		},
	}, nil
}

// propertySchema maps one field spec to its JSON-schema property form.
// Optional and defaulted fields are unwrapped to their inner type; the
// default travels as the "default" annotation and the field is simply
// left out of "required".
func propertySchema(fs FieldSpec, path string) (map[string]interface{}, error) {
	prop := map[string]interface{}{}

	switch fs.Kind {
	case KindString, KindNumber, KindInteger, KindBoolean:
		prop["type"] = string(fs.Kind)
	case KindArray:
		if fs.Items == nil {
			return nil, fmt.Errorf("field %s: array field requires an element spec", path)
		}
		items, err := propertySchema(*fs.Items, path+"[]")
		if err != nil {
			return nil, err
		}
		prop["type"] = "array"
		prop["items"] = items
	case KindObject:
		nested := make(map[string]interface{}, len(fs.Fields))
		for name, field := range fs.Fields {
			sub, err := propertySchema(field, path+"."+name)
			if err != nil {
				return nil, err
			}
			nested[name] = sub
		}
		prop["type"] = "object"
		prop["properties"] = nested
		if required := sortedRequired(fs.Fields); len(required) > 0 {
			prop["required"] = required
		}
	default:
		return nil, fmt.Errorf("field %s: kind %q cannot be translated", path, fs.Kind)
	}

	if fs.Description != "" {
		prop["description"] = fs.Description
	}
	if fs.Default != nil {
		prop["default"] = fs.Default
	}
	if len(fs.Enum) > 0 {
		prop["enum"] = append([]string(nil), fs.Enum...)
	}
	if fs.MinLength != nil {
		prop["minLength"] = *fs.MinLength
	}
	if fs.MaxLength != nil {
		prop["maxLength"] = *fs.MaxLength
	}
	if fs.Minimum != nil {
		prop["minimum"] = *fs.Minimum
	}
	if fs.Maximum != nil {
		prop["maximum"] = *fs.Maximum
	}
	if fs.MinItems != nil {
		prop["minItems"] = *fs.MinItems
	}
	if fs.MaxItems != nil {
		prop["maxItems"] = *fs.MaxItems
	}

	return prop, nil
}

// sortedRequired returns the required field names in sorted order.
// A field with a default is never required on the wire: the validator
// fills it when absent, so advertising it as mandatory would promise
// stricter input than is enforced.
func sortedRequired(fields map[string]FieldSpec) []string {
	var required []string
	for name, field := range fields {
		if field.Required && field.Default == nil {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}
