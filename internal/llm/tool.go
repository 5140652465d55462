package llm

import (
	"encoding/json"
	"fmt"
)

// Parameter describes one string-typed tool parameter.
type Parameter struct {
	Name        string
	Description string
	Required    bool
}

// Tool is a callable auxiliary function a model may invoke mid-generation.
// Handlers are synchronous and must not have side effects.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     func(args map[string]any) (string, error)
}

// InputSchema renders the parameters as a JSON-schema object, the format both
// provider SDKs accept.
func (t *Tool) InputSchema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	required := []string{}
	for _, parameter := range t.Parameters {
		properties[parameter.Name] = map[string]any{
			"type":        "string",
			"description": parameter.Description,
		}
		if parameter.Required {
			required = append(required, parameter.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// findTool returns the named tool, or nil.
func findTool(tools []*Tool, name string) *Tool {
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	return nil
}

// invokeTool runs the named tool against raw JSON arguments and returns the
// parsed arguments alongside the result. Unknown tools and handler failures
// are reported as result strings so the model can recover.
func invokeTool(tools []*Tool, name string, rawArguments []byte) (map[string]any, string) {
	arguments := map[string]any{}
	if len(rawArguments) > 0 {
		if err := json.Unmarshal(rawArguments, &arguments); err != nil {
			return arguments, fmt.Sprintf("invalid tool arguments: %v", err)
		}
	}

	tool := findTool(tools, name)
	if tool == nil {
		return arguments, fmt.Sprintf("unknown tool: %s", name)
	}

	result, err := tool.Handler(arguments)
	if err != nil {
		return arguments, fmt.Sprintf("tool %s failed: %v", name, err)
	}
	return arguments, result
}
