package registry

import (
	"github.com/openai/openai-go"
)

// OpenAITools converts the registry's external schema documents to
// OpenAI function tool parameters for advertisement.
func OpenAITools(r *Registry) []openai.ChatCompletionToolParam {
	docs := r.AllExternalSchemas()
	tools := make([]openai.ChatCompletionToolParam, 0, len(docs))

	for _, doc := range docs {
		parameters := map[string]interface{}{
			"type":       doc.InputSchema.Type,
			"properties": doc.InputSchema.Properties,
		}
		if len(doc.InputSchema.Required) > 0 {
			parameters["required"] = doc.InputSchema.Required
		}

		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        doc.Name,
				Description: openai.String(doc.Description),
				Parameters:  openai.FunctionParameters(parameters),
			},
		})
	}

	return tools
}
