package registry

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicTools converts the registry's external schema documents to
// Anthropic tool parameters for advertisement. Pure mapping; the
// document order (name-sorted) carries through.
func AnthropicTools(r *Registry) []anthropic.ToolUnionParam {
	docs := r.AllExternalSchemas()
	tools := make([]anthropic.ToolUnionParam, 0, len(docs))

	for _, doc := range docs {
		toolParam := anthropic.ToolParam{
			Name:        doc.Name,
			Description: anthropic.String(doc.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: doc.InputSchema.Properties,
				Required:   doc.InputSchema.Required,
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	return tools
}
